package application

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dmehra2102/storefront-engine/internal/engine/domain"
	wishdom "github.com/dmehra2102/storefront-engine/internal/wishlist/domain"
	"github.com/dmehra2102/storefront-engine/pkg/docstore"
)

func (s *Service) ListWishlist(ctx context.Context, userID string) ([]string, error) {
	userID = strings.TrimSpace(userID)
	if err := required(userID); err != nil {
		return nil, err
	}
	w, err := s.wishlists.Get(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}
	return w.Sorted(), nil
}

// AddWishlistItem adds productID to the user's set. Adding a present id is a
// no-op and writes nothing.
func (s *Service) AddWishlistItem(ctx context.Context, userID, productID string) ([]string, error) {
	userID = strings.TrimSpace(userID)
	return s.changeWishlist(ctx, "AddWishlistItem", userID, productID, func(w *wishdom.Wishlist) (bool, error) {
		return w.Add(productID, s.now())
	})
}

// RemoveWishlistItem removes productID; removing an absent id is a no-op.
func (s *Service) RemoveWishlistItem(ctx context.Context, userID, productID string) ([]string, error) {
	userID = strings.TrimSpace(userID)
	return s.changeWishlist(ctx, "RemoveWishlistItem", userID, productID, func(w *wishdom.Wishlist) (bool, error) {
		return w.Remove(productID, s.now()), nil
	})
}

func (s *Service) changeWishlist(ctx context.Context, op, userID, productID string, change func(*wishdom.Wishlist) (bool, error)) (ids []string, err error) {
	userID = strings.TrimSpace(userID)
	ctx, span := s.start(ctx, op, attribute.String("user_id", userID), attribute.String("product_id", productID))
	defer func() { finish(span, err) }()

	if err := required(userID, productID); err != nil {
		return nil, err
	}

	err = s.mutate(ctx, func(ctx context.Context, tx docstore.Tx, fx *effects) error {
		w, err := s.wishlists.Get(ctx, tx, userID)
		if err != nil {
			return err
		}
		ids = w.Sorted()
		changed, err := change(w)
		if err != nil || !changed {
			return err
		}
		if err := s.wishlists.Save(tx, w); err != nil {
			return err
		}
		ids = w.Sorted()
		n := domain.Notification{
			Type:      domain.WishlistUpdated,
			UserID:    w.UserID,
			ProductID: productID,
			ItemCount: len(w.ProductIDs),
			At:        w.UpdatedAt,
		}
		return fx.emit(ctx, "wishlist", w.UserID, n, domain.WishlistChanged{UserID: w.UserID, ProductIDs: ids})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
