package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dmehra2102/storefront-engine/internal/cart/domain"
	"github.com/dmehra2102/storefront-engine/pkg/docstore"
)

const (
	ActiveCollection    = "carts"
	CompletedCollection = "completed_carts"
	CountersCollection  = "purchase_counters"
)

type Repository struct {
	log *slog.Logger
}

func NewRepository(log *slog.Logger) *Repository {
	return &Repository{log: log}
}

// GetActive returns the active cart of a user, or a fresh empty one when the
// user has none. The fresh cart is not persisted.
func (r *Repository) GetActive(ctx context.Context, rd docstore.Reader, userID string, now time.Time) (*domain.Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, domain.ErrInvalidCart
	}
	doc, err := rd.Get(ctx, ActiveCollection, uid)
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.NewActive(uid, now), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load active cart %s: %w", uid, err)
	}
	c := decodeCart(doc)
	if err := c.Validate(); err != nil {
		r.log.Warn("active cart failed validation, recomputing total", "user_id", uid, "err", err)
		c.Recalculate()
	}
	return c, nil
}

// SaveActive overwrites the whole active cart document with a recomputed total.
func (r *Repository) SaveActive(tx docstore.Tx, c *domain.Cart) error {
	c.Recalculate()
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Status != domain.StatusActive {
		return domain.ErrNotActive
	}
	return tx.Set(ActiveCollection, c.UserID, encodeCart(c))
}

func (r *Repository) DeleteActive(tx docstore.Tx, userID string) error {
	return tx.Delete(ActiveCollection, userID)
}

// CreateCompleted writes an archive. The commit fails with
// docstore.ErrAlreadyExists when the id is taken.
func (r *Repository) CreateCompleted(tx docstore.Tx, c *domain.Cart) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Status != domain.StatusCompleted {
		return fmt.Errorf("%w: archive status %q", domain.ErrInvalidCart, c.Status)
	}
	return tx.Create(CompletedCollection, c.ID, encodeCart(c))
}

// CompletedOwner returns the user owning an archive id, or "" when unused.
func (r *Repository) CompletedOwner(ctx context.Context, rd docstore.Reader, id string) (string, error) {
	doc, err := rd.Get(ctx, CompletedCollection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return docstore.AsString(doc.Data["userId"]), nil
}

func (r *Repository) GetCompleted(ctx context.Context, rd docstore.Reader, id string) (*domain.Cart, error) {
	doc, err := rd.Get(ctx, CompletedCollection, strings.TrimSpace(id))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrArchiveNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeCart(doc), nil
}

// ListCompleted returns a user's archives, newest first.
func (r *Repository) ListCompleted(ctx context.Context, rd docstore.Reader, userID string) ([]*domain.Cart, error) {
	docs, err := rd.Query(ctx, CompletedCollection, docstore.Eq("userId", userID))
	if err != nil {
		return nil, err
	}
	docstore.SortByCreated(docs, "completedAt")
	out := make([]*domain.Cart, 0, len(docs))
	for _, d := range docs {
		out = append(out, decodeCart(d))
	}
	return out, nil
}

// Completed returns how many carts the user has completed so far.
func (r *Repository) Completed(ctx context.Context, rd docstore.Reader, userID string) (int, error) {
	doc, err := rd.Get(ctx, CountersCollection, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return docstore.AsInt(doc.Data["completed"]), nil
}

func (r *Repository) SetCompleted(tx docstore.Tx, userID string, n int, now time.Time) error {
	return tx.Set(CountersCollection, userID, map[string]any{
		"userId":    userID,
		"completed": int64(n),
		"updatedAt": now,
	})
}

func encodeCart(c *domain.Cart) map[string]any {
	items := make([]any, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, map[string]any{
			"productId": it.ProductID,
			"name":      it.Name,
			"price":     it.Price,
			"quantity":  int64(it.Quantity),
			"image":     it.Image,
			"category":  it.Category,
		})
	}
	data := map[string]any{
		"id":        c.ID,
		"userId":    c.UserID,
		"items":     items,
		"total":     c.Total,
		"status":    string(c.Status),
		"createdAt": c.CreatedAt,
		"updatedAt": c.UpdatedAt,
	}
	if c.Status == domain.StatusCompleted {
		data["userName"] = c.UserName
		data["compraNumber"] = int64(c.CompraNumber)
		data["completedAt"] = c.CompletedAt
	}
	return data
}

func decodeCart(doc *docstore.Document) *domain.Cart {
	d := doc.Data
	c := &domain.Cart{
		ID:           doc.ID,
		UserID:       docstore.AsString(d["userId"]),
		Items:        []domain.Item{},
		Total:        docstore.AsInt64(d["total"]),
		Status:       domain.Status(docstore.AsString(d["status"])),
		UserName:     docstore.AsString(d["userName"]),
		CompraNumber: docstore.AsInt(d["compraNumber"]),
	}
	if c.Status == "" {
		c.Status = domain.StatusActive
	}
	for _, raw := range docstore.AsSlice(d["items"]) {
		m := docstore.AsMap(raw)
		if m == nil {
			continue
		}
		c.Items = append(c.Items, domain.Item{
			ProductID: docstore.AsString(m["productId"]),
			Name:      docstore.AsString(m["name"]),
			Price:     docstore.AsInt64(m["price"]),
			Quantity:  docstore.AsInt(m["quantity"]),
			Image:     docstore.AsString(m["image"]),
			Category:  docstore.AsString(m["category"]),
		})
	}
	c.CreatedAt, _ = docstore.AsTime(d["createdAt"])
	c.UpdatedAt, _ = docstore.AsTime(d["updatedAt"])
	c.CompletedAt, _ = docstore.AsTime(d["completedAt"])
	return c
}
