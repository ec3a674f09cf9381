package application

import (
	"context"
	"time"

	"github.com/dmehra2102/storefront-engine/internal/catalog/domain"
	"github.com/dmehra2102/storefront-engine/pkg/docstore"
)

type ProductRepository interface {
	Get(ctx context.Context, rd docstore.Reader, id string) (domain.Product, error)
	Save(tx docstore.Tx, p domain.Product) error
	SaveStock(tx docstore.Tx, p domain.Product) error
	Restocked(ctx context.Context, rd docstore.Reader, orderID string) (bool, error)
	MarkRestocked(tx docstore.Tx, orderID string, units int, now time.Time) error
}

// RestockLine is one product quantity to return to stock.
type RestockLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}
