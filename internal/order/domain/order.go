package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound          = errors.New("order: not found")
	ErrEmptyItems        = errors.New("order: no items")
	ErrInvalidTotal      = errors.New("order: total does not match items")
	ErrInvalidItem       = errors.New("order: invalid item")
	ErrMissingCustomer   = errors.New("order: user id is required")
	ErrInvalidTransition = errors.New("order: invalid status transition")
	ErrUnknownStatus     = errors.New("order: unknown status")
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
}

func ParseStatus(s string) (OrderStatus, error) {
	st := OrderStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Source records how an order was placed.
type Source string

const (
	SourceDirect Source = "direct"
	SourceCart   Source = "cart"
	SourceBuyNow Source = "buy_now"
)

type OrderItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	Image     string `json:"image,omitempty"`
}

type Customer struct {
	UserID string `json:"userId"`
	Name   string `json:"userName"`
	Email  string `json:"userEmail,omitempty"`
	Phone  string `json:"userPhone,omitempty"`
}

// Spec is what a caller submits to place an order.
type Spec struct {
	Customer
	Items           []OrderItem `json:"items"`
	Total           int64       `json:"total"`
	ShippingAddress string      `json:"shippingAddress,omitempty"`
	PaymentMethod   string      `json:"paymentMethod,omitempty"`
}

// Order is an immutable snapshot except for Status and UpdatedAt.
type Order struct {
	ID string `json:"id"`
	Customer
	Items           []OrderItem `json:"items"`
	Total           int64       `json:"total"`
	Status          OrderStatus `json:"status"`
	ShippingAddress string      `json:"shippingAddress,omitempty"`
	PaymentMethod   string      `json:"paymentMethod,omitempty"`
	Source          Source      `json:"source"`
	CartID          string      `json:"cartId,omitempty"`
	StockCommitted  bool        `json:"stockCommitted"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// Validate checks a spec without placing it.
func (s Spec) Validate() error {
	if len(s.Items) == 0 {
		return ErrEmptyItems
	}
	var total int64
	for _, it := range s.Items {
		if strings.TrimSpace(it.ProductID) == "" || it.Quantity <= 0 || it.Price < 0 {
			return fmt.Errorf("%w: %+v", ErrInvalidItem, it)
		}
		total += int64(it.Quantity) * it.Price
	}
	if total != s.Total {
		return fmt.Errorf("%w: got %d, items sum to %d", ErrInvalidTotal, s.Total, total)
	}
	if strings.TrimSpace(s.UserID) == "" {
		return ErrMissingCustomer
	}
	return nil
}

func NewOrder(id string, spec Spec, source Source, now time.Time) (Order, error) {
	if err := spec.Validate(); err != nil {
		return Order{}, err
	}
	if source == "" {
		source = SourceDirect
	}
	return Order{
		ID:              id,
		Customer:        spec.Customer,
		Items:           append([]OrderItem(nil), spec.Items...),
		Total:           spec.Total,
		Status:          StatusPending,
		ShippingAddress: spec.ShippingAddress,
		PaymentMethod:   spec.PaymentMethod,
		Source:          source,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Transition moves the order to next along the status graph.
func (o *Order) Transition(next OrderStatus, now time.Time) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = now
	return nil
}

// Units sums quantities per product.
func (o Order) Units() map[string]int {
	out := make(map[string]int, len(o.Items))
	for _, it := range o.Items {
		out[it.ProductID] += it.Quantity
	}
	return out
}
