package outbox

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/dmehra2102/storefront-engine/pkg/docstore"
)

const Collection = "outbox"

// Record buffers ev in tx so it commits together with the state change it
// describes.
func Record(tx docstore.Tx, ev Event) error {
	if ev.ID == "" {
		return errors.New("outbox: event id is empty")
	}
	if ev.Status == "" {
		ev.Status = StatusPending
	}
	return tx.Create(Collection, ev.ID, encodeEvent(ev))
}

// DocStore keeps outbox events in the same document store as the aggregates.
type DocStore struct {
	log         *slog.Logger
	store       docstore.Store
	maxAttempts int
	now         func() time.Time
}

func NewDocStore(log *slog.Logger, store docstore.Store, maxAttempts int) *DocStore {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &DocStore{
		log:         log,
		store:       store,
		maxAttempts: maxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// LockBatch leases up to batchSize pending events to relayID, oldest first.
// Events whose lease expired are picked up again.
func (s *DocStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error) {
	var events []Event
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		events = events[:0]
		now := s.now()

		pending, err := tx.Query(ctx, Collection, docstore.Eq("status", string(StatusPending)))
		if err != nil {
			return err
		}
		leased, err := tx.Query(ctx, Collection, docstore.Eq("status", string(StatusInProgress)))
		if err != nil {
			return err
		}
		for _, d := range leased {
			if until, ok := docstore.AsTime(d.Data["leaseUntil"]); ok && until.Before(now) {
				pending = append(pending, d)
			}
		}

		candidates := make([]Event, 0, len(pending))
		for _, d := range pending {
			candidates = append(candidates, decodeEvent(d))
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
				return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
			}
			return candidates[i].ID < candidates[j].ID
		})
		if len(candidates) > batchSize {
			candidates = candidates[:batchSize]
		}

		for _, ev := range candidates {
			ev.Status = StatusInProgress
			ev.RelayID = relayID
			ev.LeaseUntil = now.Add(lease)
			if err := tx.Set(Collection, ev.ID, encodeEvent(ev)); err != nil {
				return err
			}
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (s *DocStore) MarkSent(ctx context.Context, ids []string) error {
	return s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		docs := make([]*docstore.Document, 0, len(ids))
		for _, id := range ids {
			d, err := tx.Get(ctx, Collection, id)
			if errors.Is(err, docstore.ErrNotFound) {
				s.log.Warn("outbox event vanished before mark sent", "event_id", id)
				continue
			}
			if err != nil {
				return err
			}
			docs = append(docs, d)
		}
		for _, d := range docs {
			ev := decodeEvent(d)
			ev.Status = StatusSent
			ev.LeaseUntil = time.Time{}
			if err := tx.Set(Collection, ev.ID, encodeEvent(ev)); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkFailed returns the event to pending until it has failed maxAttempts
// times, after which it is parked as failed.
func (s *DocStore) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		d, err := tx.Get(ctx, Collection, id)
		if err != nil {
			return err
		}
		ev := decodeEvent(d)
		ev.RetryCount++
		ev.LastError = errMsg
		ev.LeaseUntil = time.Time{}
		ev.Status = StatusPending
		if ev.RetryCount >= s.maxAttempts {
			ev.Status = StatusFailed
			s.log.Error("outbox event parked", "event_id", id, "retries", ev.RetryCount, "err", errMsg)
		}
		return tx.Set(Collection, ev.ID, encodeEvent(ev))
	})
}

// ByStatus lists events in a given status, oldest first.
func (s *DocStore) ByStatus(ctx context.Context, st Status) ([]Event, error) {
	docs, err := s.store.Query(ctx, Collection, docstore.Eq("status", string(st)))
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(docs))
	for _, d := range docs {
		out = append(out, decodeEvent(d))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func encodeEvent(ev Event) map[string]any {
	headers := make(map[string]any, len(ev.Headers))
	for k, v := range ev.Headers {
		headers[k] = v
	}
	data := map[string]any{
		"id":            ev.ID,
		"aggregateType": ev.AggregateType,
		"aggregateId":   ev.AggregateID,
		"type":          ev.Type,
		"payload":       string(ev.Payload),
		"headers":       headers,
		"traceparent":   ev.Traceparent,
		"createdAt":     ev.CreatedAt,
		"status":        string(ev.Status),
		"relayId":       ev.RelayID,
		"retryCount":    int64(ev.RetryCount),
		"lastError":     ev.LastError,
	}
	if !ev.LeaseUntil.IsZero() {
		data["leaseUntil"] = ev.LeaseUntil
	}
	return data
}

func decodeEvent(doc *docstore.Document) Event {
	d := doc.Data
	ev := Event{
		ID:            doc.ID,
		AggregateType: docstore.AsString(d["aggregateType"]),
		AggregateID:   docstore.AsString(d["aggregateId"]),
		Type:          docstore.AsString(d["type"]),
		Payload:       []byte(docstore.AsString(d["payload"])),
		Headers:       docstore.AsStringMap(d["headers"]),
		Traceparent:   docstore.AsString(d["traceparent"]),
		Status:        Status(docstore.AsString(d["status"])),
		RelayID:       docstore.AsString(d["relayId"]),
		RetryCount:    docstore.AsInt(d["retryCount"]),
		LastError:     docstore.AsString(d["lastError"]),
	}
	ev.CreatedAt, _ = docstore.AsTime(d["createdAt"])
	ev.LeaseUntil, _ = docstore.AsTime(d["leaseUntil"])
	return ev
}
