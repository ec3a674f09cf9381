package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	cartdom "github.com/dmehra2102/storefront-engine/internal/cart/domain"
	catalogdom "github.com/dmehra2102/storefront-engine/internal/catalog/domain"
	"github.com/dmehra2102/storefront-engine/internal/engine/application"
	orderdom "github.com/dmehra2102/storefront-engine/internal/order/domain"
	wishdom "github.com/dmehra2102/storefront-engine/internal/wishlist/domain"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("engine-http"),
	}
}

// Routes builds the router. mw wraps the mutating API, e.g. idempotent
// replay; the event stream and health check bypass it.
func (h *Handler) Routes(mw ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, h.trace)

	r.Get("/healthz", h.health)

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/events", h.events)

		r.Group(func(r chi.Router) {
			r.Use(mw...)
			r.Get("/cart", h.getCart)
			r.Delete("/cart", h.clearCart)
			r.Post("/cart/items", h.addToCart)
			r.Put("/cart/items/{productID}", h.updateQuantity)
			r.Delete("/cart/items/{productID}", h.removeItem)
			r.Post("/cart/complete", h.completeCart)
			r.Post("/cart/checkout", h.checkout)
			r.Post("/buy-now", h.buyNow)
			r.Get("/purchases", h.listPurchases)
			r.Get("/purchases/{cartID}", h.getPurchase)
			r.Get("/wishlist", h.listWishlist)
			r.Put("/wishlist/{productID}", h.addWishlist)
			r.Delete("/wishlist/{productID}", h.removeWishlist)
		})
	})

	r.Route("/orders", func(r chi.Router) {
		r.Use(mw...)
		r.Post("/", h.createOrder)
		r.Get("/", h.listOrders)
		r.Get("/{orderID}", h.getOrder)
		r.Put("/{orderID}/status", h.updateOrderStatus)
	})
	return r
}

// trace continues an incoming W3C trace and names the span after the
// matched route.
func (h *Handler) trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := h.tracer.Start(ctx, r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctx))

		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			span.SetName(r.Method + " " + rc.RoutePattern())
		}
		span.SetAttributes(attribute.String("http.method", r.Method))
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type addItemReq struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity"`
}

type quantityReq struct {
	Quantity int `json:"quantity"`
}

type completeReq struct {
	UserName string `json:"userName"`
}

type buyNowReq struct {
	application.Purchase
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity"`
}

type statusReq struct {
	Status string `json:"status"`
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetCart(r.Context(), chi.URLParam(r, "userID"))
	h.respond(w, r, http.StatusOK, c, err)
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.service.AddToCart(r.Context(), chi.URLParam(r, "userID"), req.ProductID, quantityOrOne(req.Quantity))
	h.respond(w, r, http.StatusOK, c, err)
}

func (h *Handler) updateQuantity(w http.ResponseWriter, r *http.Request) {
	var req quantityReq
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.service.UpdateCartItemQuantity(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "productID"), req.Quantity)
	h.respond(w, r, http.StatusOK, c, err)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.RemoveCartItem(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "productID"))
	h.respond(w, r, http.StatusOK, c, err)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.ClearCart(r.Context(), chi.URLParam(r, "userID"))
	h.respond(w, r, http.StatusOK, c, err)
}

func (h *Handler) completeCart(w http.ResponseWriter, r *http.Request) {
	var req completeReq
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.service.CompleteCart(r.Context(), chi.URLParam(r, "userID"), req.UserName)
	h.respond(w, r, http.StatusCreated, c, err)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req application.Purchase
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.Checkout(r.Context(), chi.URLParam(r, "userID"), req)
	h.respond(w, r, http.StatusCreated, res, err)
}

func (h *Handler) buyNow(w http.ResponseWriter, r *http.Request) {
	var req buyNowReq
	if !h.decode(w, r, &req) {
		return
	}
	o, err := h.service.BuyNow(r.Context(), chi.URLParam(r, "userID"), req.ProductID, quantityOrOne(req.Quantity), req.Purchase)
	h.respond(w, r, http.StatusCreated, o, err)
}

func (h *Handler) listPurchases(w http.ResponseWriter, r *http.Request) {
	carts, err := h.service.ListCompletedCarts(r.Context(), chi.URLParam(r, "userID"))
	h.respond(w, r, http.StatusOK, carts, err)
}

func (h *Handler) getPurchase(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetCompletedCart(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "cartID"))
	h.respond(w, r, http.StatusOK, c, err)
}

func (h *Handler) listWishlist(w http.ResponseWriter, r *http.Request) {
	ids, err := h.service.ListWishlist(r.Context(), chi.URLParam(r, "userID"))
	h.respond(w, r, http.StatusOK, map[string][]string{"productIds": ids}, err)
}

func (h *Handler) addWishlist(w http.ResponseWriter, r *http.Request) {
	ids, err := h.service.AddWishlistItem(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "productID"))
	h.respond(w, r, http.StatusOK, map[string][]string{"productIds": ids}, err)
}

func (h *Handler) removeWishlist(w http.ResponseWriter, r *http.Request) {
	ids, err := h.service.RemoveWishlistItem(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "productID"))
	h.respond(w, r, http.StatusOK, map[string][]string{"productIds": ids}, err)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var spec orderdom.Spec
	if !h.decode(w, r, &spec) {
		return
	}
	o, err := h.service.CreateOrder(r.Context(), spec)
	h.respond(w, r, http.StatusCreated, o, err)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context(), r.URL.Query().Get("userId"))
	h.respond(w, r, http.StatusOK, orders, err)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	h.respond(w, r, http.StatusOK, o, err)
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if !h.decode(w, r, &req) {
		return
	}
	o, err := h.service.UpdateOrderStatus(r.Context(), chi.URLParam(r, "orderID"), req.Status)
	h.respond(w, r, http.StatusOK, o, err)
}

func quantityOrOne(q *int) int {
	if q == nil {
		return 1
	}
	return *q
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid body", Code: "invalid_input"})
		return false
	}
	return true
}

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	InCart    *int   `json:"inCart,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, body any, err error) {
	if err == nil {
		writeJSON(w, status, body)
		return
	}
	code, kind := classify(err)
	resp := errorBody{Error: err.Error(), Code: kind}
	var stockErr *catalogdom.InsufficientStockError
	if errors.As(err, &stockErr) {
		inCart, available := stockErr.InCart, stockErr.Available()
		resp.InCart, resp.Available = &inCart, &available
	}
	if code >= http.StatusInternalServerError {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		resp.Error = "internal error"
	}
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("error.code", kind))
	writeJSON(w, code, resp)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, catalogdom.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, catalogdom.ErrProductInactive):
		return http.StatusConflict, "product_inactive"
	case errors.Is(err, cartdom.ErrEmptyCart):
		return http.StatusConflict, "empty_cart"
	case errors.Is(err, orderdom.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, application.ErrArchiveCollision):
		return http.StatusConflict, "archive_collision"
	case errors.Is(err, cartdom.ErrItemNotFound):
		return http.StatusNotFound, "item_not_found"
	case errors.Is(err, catalogdom.ErrProductNotFound),
		errors.Is(err, orderdom.ErrNotFound),
		errors.Is(err, cartdom.ErrArchiveNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, orderdom.ErrEmptyItems):
		return http.StatusBadRequest, "empty_items"
	case errors.Is(err, orderdom.ErrInvalidTotal):
		return http.StatusBadRequest, "invalid_total"
	case errors.Is(err, application.ErrInvalidInput),
		errors.Is(err, orderdom.ErrInvalidItem),
		errors.Is(err, orderdom.ErrMissingCustomer),
		errors.Is(err, orderdom.ErrUnknownStatus),
		errors.Is(err, cartdom.ErrInvalidQuantity),
		errors.Is(err, cartdom.ErrInvalidCart),
		errors.Is(err, catalogdom.ErrInvalidQuantity),
		errors.Is(err, wishdom.ErrInvalidProductID):
		return http.StatusBadRequest, "invalid_input"
	}
	return http.StatusInternalServerError, "internal"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
