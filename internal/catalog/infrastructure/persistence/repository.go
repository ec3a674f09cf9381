package persistence

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

const (
	ProductsCollection = "products"
	RestocksCollection = "restocks"
)

type Repository struct {
	log *slog.Logger
}

func NewRepository(log *slog.Logger) *Repository {
	return &Repository{log: log}
}

func (r *Repository) Get(ctx context.Context, rd docstore.Reader, id string) (domain.Product, error) {
	pid := strings.TrimSpace(id)
	if pid == "" {
		return domain.Product{}, domain.ErrProductNotFound
	}
	doc, err := rd.Get(ctx, ProductsCollection, pid)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return domain.Product{}, fmt.Errorf("%s: %w", pid, domain.ErrProductNotFound)
		}
		return domain.Product{}, err
	}
	return decodeProduct(doc), nil
}

// Save writes the fields the catalog models. Fields other systems keep on
// the product document are left in place.
func (r *Repository) Save(tx docstore.Tx, p domain.Product) error {
	if p.Stock < 0 {
		return fmt.Errorf("product %s: negative stock %d", p.ID, p.Stock)
	}
	return tx.Merge(ProductsCollection, p.ID, encodeProduct(p))
}

// SaveStock writes only stock and updatedAt.
func (r *Repository) SaveStock(tx docstore.Tx, p domain.Product) error {
	if p.Stock < 0 {
		return fmt.Errorf("product %s: negative stock %d", p.ID, p.Stock)
	}
	return tx.Merge(ProductsCollection, p.ID, map[string]any{
		"stock":     int64(p.Stock),
		"updatedAt": p.UpdatedAt,
	})
}

func (r *Repository) Restocked(ctx context.Context, rd docstore.Reader, orderID string) (bool, error) {
	_, err := rd.Get(ctx, RestocksCollection, orderID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// MarkRestocked claims the one-time restock slot of an order. The commit
// fails with docstore.ErrAlreadyExists when the order was restocked before.
func (r *Repository) MarkRestocked(tx docstore.Tx, orderID string, units int, now time.Time) error {
	return tx.Create(RestocksCollection, orderID, map[string]any{
		"orderId":     orderID,
		"units":       int64(units),
		"restockedAt": now,
	})
}

func encodeProduct(p domain.Product) map[string]any {
	specs := map[string]any{}
	for k, v := range p.Specifications {
		specs[k] = v
	}
	return map[string]any{
		"id":             p.ID,
		"name":           p.Name,
		"price":          p.Price,
		"stock":          int64(p.Stock),
		"isActive":       p.IsActive,
		"image":          p.Image,
		"category":       p.Category,
		"specifications": specs,
		"createdAt":      p.CreatedAt,
		"updatedAt":      p.UpdatedAt,
	}
}

func decodeProduct(doc *docstore.Document) domain.Product {
	d := doc.Data
	p := domain.Product{
		ID:             doc.ID,
		Name:           docstore.AsString(d["name"]),
		Price:          docstore.AsInt64(d["price"]),
		Stock:          docstore.AsInt(d["stock"]),
		IsActive:       docstore.AsBool(d["isActive"]),
		Image:          docstore.AsString(d["image"]),
		Category:       docstore.AsString(d["category"]),
		Specifications: docstore.AsStringMap(d["specifications"]),
	}
	var ok bool
	if p.CreatedAt, ok = docstore.AsTime(d["createdAt"]); !ok {
		p.CreatedAt = doc.CreatedAt
	}
	if p.UpdatedAt, ok = docstore.AsTime(d["updatedAt"]); !ok {
		p.UpdatedAt = doc.UpdatedAt
	}
	return p
}
