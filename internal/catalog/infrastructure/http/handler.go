package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmehra2102/storefront-engine/internal/catalog/domain"
)

type Catalog interface {
	Get(ctx context.Context, id string) (domain.Product, error)
	Upsert(ctx context.Context, p domain.Product) error
}

// Handler serves the product records the engine checks stock and price
// against. Mounted under /products.
type Handler struct {
	log     *slog.Logger
	catalog Catalog
}

func NewHandler(log *slog.Logger, catalog Catalog) *Handler {
	return &Handler{log: log, catalog: catalog}
}

func (h *Handler) Routes(mw ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(mw...)
	r.Get("/{productID}", h.get)
	r.Put("/{productID}", h.put)
	return r
}

type productBody struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Price          int64             `json:"price"`
	Stock          int               `json:"stock"`
	IsActive       bool              `json:"isActive"`
	Image          string            `json:"image,omitempty"`
	Category       string            `json:"category,omitempty"`
	Specifications map[string]string `json:"specifications,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

func toBody(p domain.Product) productBody {
	return productBody{
		ID:             p.ID,
		Name:           p.Name,
		Price:          p.Price,
		Stock:          p.Stock,
		IsActive:       p.IsActive,
		Image:          p.Image,
		Category:       p.Category,
		Specifications: p.Specifications,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Get(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBody(p))
}

func (h *Handler) put(w http.ResponseWriter, r *http.Request) {
	var in productBody
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body", "code": "invalid_input"})
		return
	}
	id := chi.URLParam(r, "productID")
	err := h.catalog.Upsert(r.Context(), domain.Product{
		ID:             id,
		Name:           in.Name,
		Price:          in.Price,
		Stock:          in.Stock,
		IsActive:       in.IsActive,
		Image:          in.Image,
		Category:       in.Category,
		Specifications: in.Specifications,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBody(p))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error(), "code": "not_found"})
	case errors.Is(err, domain.ErrInvalidProduct):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error(), "code": "invalid_input"})
	default:
		h.log.Error("catalog request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error", "code": "internal"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
