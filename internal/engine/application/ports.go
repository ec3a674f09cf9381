package application

import (
	"context"
	"time"

	cartdom "github.com/dmehra2102/storefront-engine/internal/cart/domain"
	wishdom "github.com/dmehra2102/storefront-engine/internal/wishlist/domain"
	"github.com/dmehra2102/storefront-engine/pkg/docstore"
)

type CartRepository interface {
	GetActive(ctx context.Context, rd docstore.Reader, userID string, now time.Time) (*cartdom.Cart, error)
	SaveActive(tx docstore.Tx, c *cartdom.Cart) error
	DeleteActive(tx docstore.Tx, userID string) error
	CreateCompleted(tx docstore.Tx, c *cartdom.Cart) error
	CompletedOwner(ctx context.Context, rd docstore.Reader, id string) (string, error)
	GetCompleted(ctx context.Context, rd docstore.Reader, id string) (*cartdom.Cart, error)
	ListCompleted(ctx context.Context, rd docstore.Reader, userID string) ([]*cartdom.Cart, error)
	Completed(ctx context.Context, rd docstore.Reader, userID string) (int, error)
	SetCompleted(tx docstore.Tx, userID string, n int, now time.Time) error
}

type WishlistRepository interface {
	Get(ctx context.Context, rd docstore.Reader, userID string) (*wishdom.Wishlist, error)
	Save(tx docstore.Tx, w *wishdom.Wishlist) error
}
