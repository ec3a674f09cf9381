package application

import (
	"context"

	"github.com/dmehra2102/storefront-engine/internal/order/domain"
	"github.com/dmehra2102/storefront-engine/pkg/docstore"
)

type OrderRepository interface {
	Get(ctx context.Context, rd docstore.Reader, id string) (domain.Order, error)
	Create(tx docstore.Tx, o domain.Order) error
	Save(tx docstore.Tx, o domain.Order) error
	List(ctx context.Context, rd docstore.Reader, userID string) ([]domain.Order, error)
}
