package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/storefront-engine/internal/catalog/application"
	orderdom "github.com/dmehra2102/storefront-engine/internal/order/domain"
	"github.com/dmehra2102/storefront-engine/pkg/tracing"
)

type Restocker interface {
	RestockOrder(ctx context.Context, orderID string, lines []application.RestockLine) (bool, error)
}

// Deduper skips messages already handled. It is a fast path only; restocks
// are exactly-once through the store regardless.
type Deduper interface {
	Key(topic string, partition int, offset int64) string
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	minBackoff = 200 * time.Millisecond
	maxBackoff = 30 * time.Second
)

type Consumer struct {
	log        *slog.Logger
	reader     MessageReader
	svc        Restocker
	idem       Deduper
	tracer     trace.Tracer
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewConsumer(log *slog.Logger, brokers []string, topic, group string, svc Restocker, idem Deduper) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	return NewConsumerWithReader(log, r, svc, idem)
}

func NewConsumerWithReader(log *slog.Logger, r MessageReader, svc Restocker, idem Deduper) *Consumer {
	return &Consumer{
		log:        log,
		reader:     r,
		svc:        svc,
		idem:       idem,
		tracer:     otel.Tracer("inventory-consumer"),
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
	}
}

// Run handles messages in partition order. A message that fails is retried
// until it succeeds or ctx ends; committing a later offset would acknowledge
// it too.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.handleWithRetry(ctx, msg); err != nil {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("commit failed", "offset", msg.Offset, "err", err)
		}
	}
}

// handleWithRetry only returns an error once ctx is done.
func (c *Consumer) handleWithRetry(ctx context.Context, msg kafka.Message) error {
	backoff := c.minBackoff
	for attempt := 1; ; attempt++ {
		err := c.Handle(ctx, msg)
		if err == nil {
			return nil
		}
		c.log.Warn("message handling failed, retrying",
			"partition", msg.Partition, "offset", msg.Offset, "attempt", attempt, "backoff", backoff, "err", err)
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		if backoff *= 2; backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

// Handle restocks the units of an order that was cancelled after its stock
// was committed. Every other event is acknowledged without action. A nil
// Deduper disables the fast path.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) error {
	if tracing.HeaderValue(msg.Headers, "event_type") != orderdom.EventOrderStatusChanged {
		return nil
	}

	var key string
	if c.idem != nil {
		key = c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
		seen, err := c.idem.Seen(ctx, key)
		if err != nil {
			c.log.Error("idempotency check failed", "err", err)
		} else if seen {
			c.log.Info("duplicate message skipped", "key", key)
			return nil
		}
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumeOrderStatusChanged")
	defer span.End()

	var ev orderdom.OrderStatusChanged
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.log.Error("unmarshal failed", "offset", msg.Offset, "err", err)
		return nil
	}
	span.SetAttributes(attribute.String("order_id", ev.OrderID), attribute.String("status", string(ev.To)))
	if ev.To != orderdom.StatusCancelled || !ev.StockCommitted {
		return nil
	}

	lines := make([]application.RestockLine, 0, len(ev.Items))
	for _, it := range ev.Items {
		lines = append(lines, application.RestockLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	restocked, err := c.svc.RestockOrder(msgCtx, ev.OrderID, lines)
	if err != nil {
		span.RecordError(err)
		c.log.Error("restock failed", "order_id", ev.OrderID, "err", err)
		if c.idem != nil {
			if fErr := c.idem.Forget(ctx, key); fErr != nil {
				c.log.Error("idempotency release failed", "key", key, "err", fErr)
			}
		}
		return err
	}
	if restocked {
		c.log.Info("cancelled order restocked", "order_id", ev.OrderID, "lines", len(lines))
	} else {
		c.log.Info("order already restocked", "order_id", ev.OrderID)
	}
	return nil
}
