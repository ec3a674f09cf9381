package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dmehra2102/storefront-engine/internal/catalog/domain"
	"github.com/dmehra2102/storefront-engine/pkg/docstore"
)

type Service struct {
	log   *slog.Logger
	store docstore.Store
	repo  ProductRepository
	now   func() time.Time
}

func NewService(log *slog.Logger, store docstore.Store, repo ProductRepository) *Service {
	return &Service{
		log:   log,
		store: store,
		repo:  repo,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Get(ctx context.Context, id string) (domain.Product, error) {
	return s.repo.Get(ctx, s.store, id)
}

// Upsert writes a catalog record as-is. Used for seeding; catalog
// administration lives outside this service.
func (s *Service) Upsert(ctx context.Context, p domain.Product) error {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" || p.Price < 0 || p.Stock < 0 {
		return fmt.Errorf("%w: %q", domain.ErrInvalidProduct, p.ID)
	}
	now := s.now()
	return s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		existing, err := s.repo.Get(ctx, tx, p.ID)
		switch {
		case err == nil:
			p.CreatedAt = existing.CreatedAt
		case errors.Is(err, domain.ErrProductNotFound):
			p.CreatedAt = now
		default:
			return err
		}
		p.UpdatedAt = now
		return s.repo.Save(tx, p)
	})
}

// RestockOrder returns the units of a cancelled order to stock. It reports
// false when the order was already restocked.
func (s *Service) RestockOrder(ctx context.Context, orderID string, lines []RestockLine) (bool, error) {
	if strings.TrimSpace(orderID) == "" {
		return false, errors.New("restock: order id is empty")
	}
	now := s.now()
	restocked := true

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		restocked = true
		done, err := s.repo.Restocked(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if done {
			restocked = false
			return nil
		}

		qty := map[string]int{}
		order := []string{}
		for _, l := range lines {
			if l.Quantity <= 0 {
				continue
			}
			if _, seen := qty[l.ProductID]; !seen {
				order = append(order, l.ProductID)
			}
			qty[l.ProductID] += l.Quantity
		}

		products := make([]domain.Product, 0, len(order))
		units := 0
		for _, id := range order {
			p, err := s.repo.Get(ctx, tx, id)
			if errors.Is(err, domain.ErrProductNotFound) {
				s.log.Warn("restock skipped missing product", "order_id", orderID, "product_id", id)
				continue
			}
			if err != nil {
				return err
			}
			if err := p.Restock(qty[id], now); err != nil {
				return err
			}
			units += qty[id]
			products = append(products, p)
		}

		if err := s.repo.MarkRestocked(tx, orderID, units, now); err != nil {
			return err
		}
		for _, p := range products {
			if err := s.repo.SaveStock(tx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return restocked, nil
}
