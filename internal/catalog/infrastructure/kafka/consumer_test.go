package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/dmehra2102/storefront-engine/internal/catalog/application"
	orderdom "github.com/dmehra2102/storefront-engine/internal/order/domain"
)

type fakeRestocker struct {
	calls map[string][]application.RestockLine
	fail  error
	// failures makes the next n calls for an order fail
	failures map[string]int
}

func (f *fakeRestocker) RestockOrder(ctx context.Context, orderID string, lines []application.RestockLine) (bool, error) {
	if f.fail != nil {
		return false, f.fail
	}
	if f.failures[orderID] > 0 {
		f.failures[orderID]--
		return false, errors.New("serialization failure")
	}
	if _, done := f.calls[orderID]; done {
		return false, nil
	}
	f.calls[orderID] = lines
	return true, nil
}

type fakeDeduper struct {
	seen map[string]bool
}

func (d *fakeDeduper) Key(topic string, partition int, offset int64) string {
	return fmt.Sprintf("%s:%d:%d", topic, partition, offset)
}

func (d *fakeDeduper) Seen(ctx context.Context, key string) (bool, error) {
	if d.seen[key] {
		return true, nil
	}
	d.seen[key] = true
	return false, nil
}

func (d *fakeDeduper) Forget(ctx context.Context, key string) error {
	delete(d.seen, key)
	return nil
}

func newTestConsumer(r *fakeRestocker) (*Consumer, *fakeDeduper) {
	d := &fakeDeduper{seen: map[string]bool{}}
	return &Consumer{
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		svc:        r,
		idem:       d,
		tracer:     noop.NewTracerProvider().Tracer("test"),
		minBackoff: time.Millisecond,
		maxBackoff: 4 * time.Millisecond,
	}, d
}

func statusMsg(t *testing.T, offset int64, ev orderdom.OrderStatusChanged) kafka.Message {
	t.Helper()
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{
		Topic:   "storefront.events",
		Offset:  offset,
		Key:     []byte(ev.OrderID),
		Value:   raw,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(orderdom.EventOrderStatusChanged)}},
	}
}

func TestHandle_RestocksCancelledCommittedOrders(t *testing.T) {
	r := &fakeRestocker{calls: map[string][]application.RestockLine{}}
	c, _ := newTestConsumer(r)

	ev := orderdom.OrderStatusChanged{
		OrderID: "o1", From: orderdom.StatusPending, To: orderdom.StatusCancelled, StockCommitted: true,
		Items: []orderdom.OrderItem{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}},
	}
	if err := c.Handle(context.Background(), statusMsg(t, 1, ev)); err != nil {
		t.Fatal(err)
	}
	if got := r.calls["o1"]; len(got) != 2 || got[0].Quantity != 2 {
		t.Fatalf("unexpected restock lines %+v", got)
	}

	// redelivery of the same offset is skipped before reaching the service
	r.calls = map[string][]application.RestockLine{}
	if err := c.Handle(context.Background(), statusMsg(t, 1, ev)); err != nil {
		t.Fatal(err)
	}
	if len(r.calls) != 0 {
		t.Fatal("duplicate offset reached the service")
	}
}

func TestHandle_IgnoresOtherEvents(t *testing.T) {
	r := &fakeRestocker{calls: map[string][]application.RestockLine{}}
	c, _ := newTestConsumer(r)

	uncommitted := orderdom.OrderStatusChanged{OrderID: "o2", To: orderdom.StatusCancelled, StockCommitted: false}
	shipped := orderdom.OrderStatusChanged{OrderID: "o3", To: orderdom.StatusShipped, StockCommitted: true}
	for i, ev := range []orderdom.OrderStatusChanged{uncommitted, shipped} {
		if err := c.Handle(context.Background(), statusMsg(t, int64(10+i), ev)); err != nil {
			t.Fatal(err)
		}
	}
	other := kafka.Message{Offset: 20, Value: []byte(`{}`), Headers: []kafka.Header{{Key: "event_type", Value: []byte("CartUpdated")}}}
	if err := c.Handle(context.Background(), other); err != nil {
		t.Fatal(err)
	}
	if len(r.calls) != 0 {
		t.Fatalf("unexpected restocks %+v", r.calls)
	}
}

func TestHandle_FailureReleasesKey(t *testing.T) {
	r := &fakeRestocker{calls: map[string][]application.RestockLine{}, fail: errors.New("store down")}
	c, d := newTestConsumer(r)

	ev := orderdom.OrderStatusChanged{OrderID: "o4", To: orderdom.StatusCancelled, StockCommitted: true,
		Items: []orderdom.OrderItem{{ProductID: "p1", Quantity: 1}}}
	msg := statusMsg(t, 30, ev)
	if err := c.Handle(context.Background(), msg); err == nil {
		t.Fatal("expected error")
	}
	if d.seen[d.Key(msg.Topic, msg.Partition, msg.Offset)] {
		t.Fatal("key should be released after a failure")
	}

	r.fail = nil
	if err := c.Handle(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if len(r.calls["o4"]) != 1 {
		t.Fatal("retry did not restock")
	}
}

func TestHandle_WithoutDeduper(t *testing.T) {
	r := &fakeRestocker{calls: map[string][]application.RestockLine{}}
	c, _ := newTestConsumer(r)
	c.idem = nil

	ev := orderdom.OrderStatusChanged{OrderID: "o5", To: orderdom.StatusCancelled, StockCommitted: true,
		Items: []orderdom.OrderItem{{ProductID: "p1", Quantity: 3}}}
	for i := 0; i < 2; i++ {
		if err := c.Handle(context.Background(), statusMsg(t, 40, ev)); err != nil {
			t.Fatal(err)
		}
	}
	if got := r.calls["o5"]; len(got) != 1 || got[0].Quantity != 3 {
		t.Fatalf("unexpected restock lines %+v", got)
	}
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
	drained   chan struct{}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		msg := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	if len(r.msgs) == 0 {
		close(r.drained)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func TestRun_RetriesFailedMessageBeforeCommittingLaterOnes(t *testing.T) {
	r := &fakeRestocker{
		calls:    map[string][]application.RestockLine{},
		failures: map[string]int{"o4": 2},
	}
	c, _ := newTestConsumer(r)

	cancelled := func(id string) orderdom.OrderStatusChanged {
		return orderdom.OrderStatusChanged{OrderID: id, To: orderdom.StatusCancelled, StockCommitted: true,
			Items: []orderdom.OrderItem{{ProductID: "p1", Quantity: 1}}}
	}
	reader := &fakeReader{
		msgs:    []kafka.Message{statusMsg(t, 30, cancelled("o4")), statusMsg(t, 31, cancelled("o5"))},
		drained: make(chan struct{}),
	}
	c.reader = reader

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-reader.drained:
	case <-ctx.Done():
		t.Fatal("messages were not all committed")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(r.calls["o4"]) != 1 || len(r.calls["o5"]) != 1 {
		t.Fatalf("both orders should be restocked, got %+v", r.calls)
	}
	reader.mu.Lock()
	defer reader.mu.Unlock()
	if len(reader.committed) != 2 || reader.committed[0] != 30 || reader.committed[1] != 31 {
		t.Fatalf("unexpected commits %v", reader.committed)
	}
	if !reader.closed {
		t.Fatal("reader not closed")
	}
}

func TestRun_StopsRetryingWhenContextEnds(t *testing.T) {
	r := &fakeRestocker{calls: map[string][]application.RestockLine{}, fail: errors.New("store down")}
	c, _ := newTestConsumer(r)
	ev := orderdom.OrderStatusChanged{OrderID: "o6", To: orderdom.StatusCancelled, StockCommitted: true,
		Items: []orderdom.OrderItem{{ProductID: "p1", Quantity: 1}}}
	reader := &fakeReader{msgs: []kafka.Message{statusMsg(t, 50, ev)}, drained: make(chan struct{})}
	c.reader = reader

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(reader.committed) != 0 {
		t.Fatalf("failed message must stay uncommitted, got %v", reader.committed)
	}
}
