package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	catalogapp "github.com/dmehra2102/storefront-engine/internal/catalog/application"
	"github.com/dmehra2102/storefront-engine/internal/engine/domain"
	orderapp "github.com/dmehra2102/storefront-engine/internal/order/application"
	"github.com/dmehra2102/storefront-engine/pkg/docstore"
	"github.com/dmehra2102/storefront-engine/pkg/outbox"
)

var ErrInvalidInput = errors.New("invalid input")

// Service is the consistency engine. Every mutation runs in one docstore
// transaction that also records the outbox events describing it;
// subscribers are notified only after the commit succeeds.
type Service struct {
	log       *slog.Logger
	store     docstore.Store
	products  catalogapp.ProductRepository
	carts     CartRepository
	wishlists WishlistRepository
	ledger    *orderapp.Ledger
	hub       *Hub
	tracer    trace.Tracer
	now       func() time.Time
}

type Deps struct {
	Store     docstore.Store
	Products  catalogapp.ProductRepository
	Carts     CartRepository
	Wishlists WishlistRepository
	Ledger    *orderapp.Ledger
	Hub       *Hub
}

func NewService(log *slog.Logger, d Deps) *Service {
	hub := d.Hub
	if hub == nil {
		hub = NewHub(log, 0)
	}
	return &Service{
		log:       log,
		store:     d.Store,
		products:  d.Products,
		carts:     d.Carts,
		wishlists: d.Wishlists,
		ledger:    d.Ledger,
		hub:       hub,
		tracer:    otel.Tracer("storefront-engine"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe streams change notifications for one user, or for all users
// when userID is empty.
func (s *Service) Subscribe(userID string) (<-chan domain.Notification, func()) {
	return s.hub.Subscribe(strings.TrimSpace(userID))
}

// effects collects what a transaction attempt wants to announce. It is
// reset on every retry.
type effects struct {
	events []outbox.Event
	notes  []domain.Notification
}

func (fx *effects) emit(ctx context.Context, aggregateType, aggregateID string, n domain.Notification, payload any) error {
	ev, err := outbox.NewEvent(ctx, aggregateType, aggregateID, string(n.Type), payload, n.At)
	if err != nil {
		return err
	}
	fx.events = append(fx.events, ev)
	fx.notes = append(fx.notes, n)
	return nil
}

// mutate runs fn in a transaction, appends the outbox writes fn emitted and
// publishes notifications once committed.
func (s *Service) mutate(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx, fx *effects) error) error {
	var fx effects
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		fx = effects{}
		if err := fn(ctx, tx, &fx); err != nil {
			return err
		}
		for _, ev := range fx.events {
			if err := outbox.Record(tx, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, n := range fx.notes {
		s.hub.Publish(n)
	}
	return nil
}

func (s *Service) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func required(values ...string) error {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return ErrInvalidInput
		}
	}
	return nil
}
