package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dmehra2102/storefront-engine/internal/order/domain"
	"github.com/dmehra2102/storefront-engine/pkg/docstore"
)

const Collection = "orders"

type Repository struct {
	log *slog.Logger
}

func NewRepository(log *slog.Logger) *Repository {
	return &Repository{log: log}
}

func (r *Repository) Get(ctx context.Context, rd docstore.Reader, id string) (domain.Order, error) {
	oid := strings.TrimSpace(id)
	if oid == "" {
		return domain.Order{}, domain.ErrNotFound
	}
	doc, err := rd.Get(ctx, Collection, oid)
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.Order{}, fmt.Errorf("%s: %w", oid, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc), nil
}

// Create inserts a new order; the commit fails if the id exists.
func (r *Repository) Create(tx docstore.Tx, o domain.Order) error {
	return tx.Create(Collection, o.ID, encodeOrder(o))
}

func (r *Repository) Save(tx docstore.Tx, o domain.Order) error {
	return tx.Set(Collection, o.ID, encodeOrder(o))
}

// List returns orders newest first, for one user or for everyone when
// userID is empty.
func (r *Repository) List(ctx context.Context, rd docstore.Reader, userID string) ([]domain.Order, error) {
	var filters []docstore.Filter
	if uid := strings.TrimSpace(userID); uid != "" {
		filters = append(filters, docstore.Eq("userId", uid))
	}
	docs, err := rd.Query(ctx, Collection, filters...)
	if err != nil {
		return nil, err
	}
	docstore.SortByCreated(docs, "createdAt")
	out := make([]domain.Order, 0, len(docs))
	for _, d := range docs {
		out = append(out, decodeOrder(d))
	}
	return out, nil
}

func encodeOrder(o domain.Order) map[string]any {
	items := make([]any, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, map[string]any{
			"productId": it.ProductID,
			"name":      it.Name,
			"price":     it.Price,
			"quantity":  int64(it.Quantity),
			"image":     it.Image,
		})
	}
	return map[string]any{
		"id":              o.ID,
		"userId":          o.UserID,
		"userName":        o.Name,
		"userEmail":       o.Email,
		"userPhone":       o.Phone,
		"items":           items,
		"total":           o.Total,
		"status":          string(o.Status),
		"shippingAddress": o.ShippingAddress,
		"paymentMethod":   o.PaymentMethod,
		"source":          string(o.Source),
		"cartId":          o.CartID,
		"stockCommitted":  o.StockCommitted,
		"createdAt":       o.CreatedAt,
		"updatedAt":       o.UpdatedAt,
	}
}

func decodeOrder(doc *docstore.Document) domain.Order {
	d := doc.Data
	o := domain.Order{
		ID: doc.ID,
		Customer: domain.Customer{
			UserID: docstore.AsString(d["userId"]),
			Name:   docstore.AsString(d["userName"]),
			Email:  docstore.AsString(d["userEmail"]),
			Phone:  docstore.AsString(d["userPhone"]),
		},
		Total:           docstore.AsInt64(d["total"]),
		Status:          domain.OrderStatus(docstore.AsString(d["status"])),
		ShippingAddress: docstore.AsString(d["shippingAddress"]),
		PaymentMethod:   docstore.AsString(d["paymentMethod"]),
		Source:          domain.Source(docstore.AsString(d["source"])),
		CartID:          docstore.AsString(d["cartId"]),
		StockCommitted:  docstore.AsBool(d["stockCommitted"]),
	}
	for _, raw := range docstore.AsSlice(d["items"]) {
		m := docstore.AsMap(raw)
		if m == nil {
			continue
		}
		o.Items = append(o.Items, domain.OrderItem{
			ProductID: docstore.AsString(m["productId"]),
			Name:      docstore.AsString(m["name"]),
			Price:     docstore.AsInt64(m["price"]),
			Quantity:  docstore.AsInt(m["quantity"]),
			Image:     docstore.AsString(m["image"]),
		})
	}
	o.CreatedAt, _ = docstore.AsTime(d["createdAt"])
	o.UpdatedAt, _ = docstore.AsTime(d["updatedAt"])
	return o
}
