package persistence

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmehra2102/storefront-engine/internal/wishlist/domain"
	"github.com/dmehra2102/storefront-engine/pkg/docstore"
)

const Collection = "wishlists"

type Repository struct {
	log *slog.Logger
}

func NewRepository(log *slog.Logger) *Repository {
	return &Repository{log: log}
}

// Get returns the user's wishlist, empty when none was stored yet.
func (r *Repository) Get(ctx context.Context, rd docstore.Reader, userID string) (*domain.Wishlist, error) {
	w := domain.New(userID)
	doc, err := rd.Get(ctx, Collection, w.UserID)
	if errors.Is(err, docstore.ErrNotFound) {
		return w, nil
	}
	if err != nil {
		return nil, err
	}
	for _, v := range docstore.AsSlice(doc.Data["productIds"]) {
		w.ProductIDs = append(w.ProductIDs, docstore.AsString(v))
	}
	w.UpdatedAt, _ = docstore.AsTime(doc.Data["updatedAt"])
	w.Normalize()
	return w, nil
}

func (r *Repository) Save(tx docstore.Tx, w *domain.Wishlist) error {
	w.Normalize()
	ids := make([]any, 0, len(w.ProductIDs))
	for _, id := range w.ProductIDs {
		ids = append(ids, id)
	}
	return tx.Set(Collection, w.UserID, map[string]any{
		"userId":     w.UserID,
		"productIds": ids,
		"updatedAt":  w.UpdatedAt,
	})
}
