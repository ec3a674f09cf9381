package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dmehra2102/storefront-engine/pkg/docstore"
)

type fakeProducer struct {
	mu   sync.Mutex
	msgs []kafka.Message
	fail error
}

func (p *fakeProducer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func record(t *testing.T, store docstore.Store, aggregateID, typ string, at time.Time) Event {
	t.Helper()
	ev, err := NewEvent(context.Background(), "cart", aggregateID, typ, map[string]string{"userId": aggregateID}, at)
	if err != nil {
		t.Fatal(err)
	}
	err = store.RunTransaction(context.Background(), func(ctx context.Context, tx docstore.Tx) error {
		return Record(tx, ev)
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	return ev
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestRelay_DispatchesInOrderAndMarksSent(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	second := record(t, mem, "u2", "CartUpdated", base.Add(time.Second))
	first := record(t, mem, "u1", "CartCleared", base)

	producer := &fakeProducer{}
	store := NewDocStore(discard(), mem, 3)
	relay := NewRelay(discard(), store, NewDispatcher(discard(), producer, "storefront.events"), "test")

	n, err := relay.RunOnce(ctx)
	if err != nil || n != 2 {
		t.Fatalf("run once: n=%d err=%v", n, err)
	}
	if len(producer.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(producer.msgs))
	}
	if string(producer.msgs[0].Key) != first.AggregateID || string(producer.msgs[1].Key) != second.AggregateID {
		t.Fatalf("messages out of order: %s, %s", producer.msgs[0].Key, producer.msgs[1].Key)
	}
	if got := header(producer.msgs[0], "event_type"); got != "CartCleared" {
		t.Fatalf("unexpected event_type header %q", got)
	}

	sent, err := store.ByStatus(ctx, StatusSent)
	if err != nil || len(sent) != 2 {
		t.Fatalf("expected 2 sent events, got %d (%v)", len(sent), err)
	}
	n, err = relay.RunOnce(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second run should be empty: n=%d err=%v", n, err)
	}
}

func TestRelay_FailureRetriesThenParks(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemoryStore()
	record(t, mem, "u1", "CartUpdated", time.Now())

	producer := &fakeProducer{fail: errors.New("broker down")}
	store := NewDocStore(discard(), mem, 2)
	relay := NewRelay(discard(), store, NewDispatcher(discard(), producer, "t"), "test")

	if _, err := relay.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	pending, _ := store.ByStatus(ctx, StatusPending)
	if len(pending) != 1 || pending[0].RetryCount != 1 || pending[0].LastError != "broker down" {
		t.Fatalf("expected one pending retry, got %+v", pending)
	}

	if _, err := relay.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	failed, _ := store.ByStatus(ctx, StatusFailed)
	if len(failed) != 1 || failed[0].RetryCount != 2 {
		t.Fatalf("expected parked event, got %+v", failed)
	}

	producer.fail = nil
	if n, _ := relay.RunOnce(ctx); n != 0 {
		t.Fatalf("parked events must not be retried, sent %d", n)
	}
}

func TestLockBatch_ReclaimsExpiredLease(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemoryStore()
	record(t, mem, "u1", "CartUpdated", time.Now())

	store := NewDocStore(discard(), mem, 3)
	clock := time.Now().UTC()
	store.now = func() time.Time { return clock }

	got, err := store.LockBatch(ctx, "relay-a", 10, time.Second)
	if err != nil || len(got) != 1 {
		t.Fatalf("first lock: %d %v", len(got), err)
	}
	got, err = store.LockBatch(ctx, "relay-b", 10, time.Second)
	if err != nil || len(got) != 0 {
		t.Fatalf("leased event handed out twice: %d %v", len(got), err)
	}

	clock = clock.Add(2 * time.Second)
	got, err = store.LockBatch(ctx, "relay-b", 10, time.Second)
	if err != nil || len(got) != 1 || got[0].RelayID != "relay-b" {
		t.Fatalf("expired lease not reclaimed: %+v %v", got, err)
	}
}
