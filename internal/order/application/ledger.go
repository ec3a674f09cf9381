package application

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/storefront-engine/internal/order/domain"
	"github.com/dmehra2102/storefront-engine/pkg/docstore"
)

// Placement describes how an order came to be.
type Placement struct {
	Source         domain.Source
	CartID         string
	StockCommitted bool
}

// Ledger owns order records. Its methods run inside a caller's transaction
// so order writes commit together with cart and stock changes.
type Ledger struct {
	repo  OrderRepository
	newID func() string
}

func NewLedger(repo OrderRepository) *Ledger {
	return &Ledger{repo: repo, newID: uuid.NewString}
}

// Place validates spec and buffers a new pending order in tx.
func (l *Ledger) Place(tx docstore.Tx, spec domain.Spec, p Placement, now time.Time) (domain.Order, error) {
	o, err := domain.NewOrder(l.newID(), spec, p.Source, now)
	if err != nil {
		return domain.Order{}, err
	}
	o.CartID = p.CartID
	o.StockCommitted = p.StockCommitted
	if err := l.repo.Create(tx, o); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// Transition loads the order, applies the status change and buffers the
// write. It returns the updated order and its previous status.
func (l *Ledger) Transition(ctx context.Context, tx docstore.Tx, id string, next domain.OrderStatus, now time.Time) (domain.Order, domain.OrderStatus, error) {
	o, err := l.repo.Get(ctx, tx, id)
	if err != nil {
		return domain.Order{}, "", err
	}
	from := o.Status
	if err := o.Transition(next, now); err != nil {
		return domain.Order{}, from, err
	}
	if err := l.repo.Save(tx, o); err != nil {
		return domain.Order{}, from, err
	}
	return o, from, nil
}

func (l *Ledger) Get(ctx context.Context, rd docstore.Reader, id string) (domain.Order, error) {
	return l.repo.Get(ctx, rd, id)
}

func (l *Ledger) List(ctx context.Context, rd docstore.Reader, userID string) ([]domain.Order, error) {
	return l.repo.List(ctx, rd, userID)
}
