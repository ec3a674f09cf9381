package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrProductInactive   = errors.New("product inactive")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInvalidProduct    = errors.New("invalid product")
)

// Product is the catalog record the engine reads stock and price from.
// Price is in integer currency units.
type Product struct {
	ID             string
	Name           string
	Price          int64
	Stock          int
	IsActive       bool
	Image          string
	Category       string
	Specifications map[string]string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// InsufficientStockError says how many units the user already holds in the
// cart and how many more can be taken.
type InsufficientStockError struct {
	ProductID string
	Stock     int
	InCart    int
	Requested int
}

func (e *InsufficientStockError) Available() int {
	if n := e.Stock - e.InCart; n > 0 {
		return n
	}
	return 0
}

func (e *InsufficientStockError) Error() string {
	if e.InCart > 0 {
		return fmt.Sprintf("insufficient stock for %s: you already have %d in your cart, only %d left",
			e.ProductID, e.InCart, e.Available())
	}
	return fmt.Sprintf("insufficient stock for %s: requested %d, only %d left", e.ProductID, e.Requested, e.Available())
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// CheckReservation validates that inCart units already held plus requested
// more fit in the current stock.
func (p Product) CheckReservation(inCart, requested int) error {
	if requested <= 0 {
		return ErrInvalidQuantity
	}
	if p.Stock < inCart+requested {
		return &InsufficientStockError{ProductID: p.ID, Stock: p.Stock, InCart: inCart, Requested: requested}
	}
	return nil
}

// Decrement takes qty units out of stock. Stock never goes negative.
func (p *Product) Decrement(qty int, now time.Time) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if p.Stock < qty {
		return &InsufficientStockError{ProductID: p.ID, Stock: p.Stock, Requested: qty}
	}
	p.Stock -= qty
	p.UpdatedAt = now
	return nil
}

func (p *Product) Restock(qty int, now time.Time) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	p.Stock += qty
	p.UpdatedAt = now
	return nil
}
