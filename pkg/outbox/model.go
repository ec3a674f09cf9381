package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/storefront-engine/pkg/tracing"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

type Event struct {
	ID            string
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
	Headers       map[string]string
	Traceparent   string
	CreatedAt     time.Time
	Status        Status
	RelayID       string
	LeaseUntil    time.Time
	RetryCount    int
	LastError     string
}

// NewEvent marshals payload and stamps the event with a fresh id and the
// trace context carried by ctx.
func NewEvent(ctx context.Context, aggregateType, aggregateID, eventType string, payload any, now time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return Event{
		ID:            uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Type:          eventType,
		Payload:       raw,
		Headers:       map[string]string{},
		Traceparent:   tracing.Traceparent(ctx),
		CreatedAt:     now,
		Status:        StatusPending,
	}, nil
}
