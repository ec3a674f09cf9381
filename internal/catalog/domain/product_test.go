package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCheckReservation(t *testing.T) {
	p := Product{ID: "p1", Price: 100, Stock: 5, IsActive: true}

	if err := p.CheckReservation(0, 2); err != nil {
		t.Fatalf("2 of 5: %v", err)
	}
	if err := p.CheckReservation(2, 3); err != nil {
		t.Fatalf("2+3 of 5: %v", err)
	}

	err := p.CheckReservation(2, 4)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("err=%v, want ErrInsufficientStock", err)
	}
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("err is not *InsufficientStockError: %T", err)
	}
	if stockErr.InCart != 2 || stockErr.Available() != 3 {
		t.Fatalf("inCart=%d available=%d, want 2 and 3", stockErr.InCart, stockErr.Available())
	}
	if !strings.Contains(err.Error(), "already have 2") || !strings.Contains(err.Error(), "only 3 left") {
		t.Fatalf("message not actionable: %q", err.Error())
	}

	if err := p.CheckReservation(0, 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("zero quantity err=%v", err)
	}
}

func TestDecrementNeverNegative(t *testing.T) {
	now := time.Now()
	p := Product{ID: "p1", Stock: 3}
	if err := p.Decrement(2, now); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if err := p.Decrement(2, now); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("err=%v, want ErrInsufficientStock", err)
	}
	if p.Stock != 1 {
		t.Fatalf("stock=%d, want 1", p.Stock)
	}
	if err := p.Restock(4, now); err != nil || p.Stock != 5 {
		t.Fatalf("restock: stock=%d err=%v", p.Stock, err)
	}
}
