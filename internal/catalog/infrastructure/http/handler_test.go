package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dmehra2102/storefront-engine/internal/catalog/application"
	"github.com/dmehra2102/storefront-engine/internal/catalog/infrastructure/persistence"
	"github.com/dmehra2102/storefront-engine/pkg/docstore"
)

func newTestHandler() http.Handler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := docstore.NewMemoryStore()
	svc := application.NewService(log, store, persistence.NewRepository(log))
	return NewHandler(log, svc).Routes()
}

func TestProducts_PutThenGet(t *testing.T) {
	h := newTestHandler()

	body := `{"name":"Mug","price":1200,"stock":4,"isActive":true,"specifications":{"color":"red"}}`
	req := httptest.NewRequest(http.MethodPut, "/p1", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("put: %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/p1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("get: %d %s", rr.Code, rr.Body.String())
	}
	var got productBody
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID != "p1" || got.Stock != 4 || got.Price != 1200 || !got.IsActive || got.Specifications["color"] != "red" {
		t.Fatalf("unexpected product %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("createdAt not set")
	}
}

func TestProducts_Errors(t *testing.T) {
	h := newTestHandler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/p1", strings.NewReader(`{"stock":-1}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative stock, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/p1", strings.NewReader(`{`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad body, got %d", rr.Code)
	}
}
