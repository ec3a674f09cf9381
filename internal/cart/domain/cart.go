package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidCart     = errors.New("cart: invalid")
	ErrItemNotFound    = errors.New("cart: item not found")
	ErrEmptyCart       = errors.New("cart: empty")
	ErrInvalidQuantity = errors.New("cart: quantity must be positive")
	ErrNotActive       = errors.New("cart: not active")
	ErrArchiveNotFound = errors.New("cart: completed cart not found")
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Item is one line of a cart. Name, Price, Image and Category are snapshots
// taken when the product was first added.
type Item struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	Image     string `json:"image,omitempty"`
	Category  string `json:"category,omitempty"`
}

func (it Item) Subtotal() int64 {
	return it.Price * int64(it.Quantity)
}

// Cart is either the single active cart of a user or a completed archive.
// Items keep insertion order and ProductID is unique among them.
type Cart struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Items        []Item    `json:"items"`
	Total        int64     `json:"total"`
	Status       Status    `json:"status"`
	UserName     string    `json:"userName,omitempty"`
	CompraNumber int       `json:"compraNumber,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	CompletedAt  time.Time `json:"completedAt,omitempty"`
}

// NewActive returns an empty active cart. The active cart is keyed by its user.
func NewActive(userID string, now time.Time) *Cart {
	uid := strings.TrimSpace(userID)
	return &Cart{
		ID:        uid,
		UserID:    uid,
		Items:     []Item{},
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Quantity returns how many units of productID the cart holds.
func (c *Cart) Quantity(productID string) int {
	if i := c.index(productID); i >= 0 {
		return c.Items[i].Quantity
	}
	return 0
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Add increments an existing line or appends a new one. Stock is checked by
// the caller against Quantity before calling Add.
func (c *Cart) Add(item Item, now time.Time) error {
	if err := c.mutable(); err != nil {
		return err
	}
	item.ProductID = strings.TrimSpace(item.ProductID)
	if item.ProductID == "" {
		return ErrInvalidCart
	}
	if item.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if i := c.index(item.ProductID); i >= 0 {
		c.Items[i].Quantity += item.Quantity
	} else {
		c.Items = append(c.Items, item)
	}
	c.touch(now)
	return nil
}

// SetQuantity replaces the quantity of a line; qty <= 0 removes it.
func (c *Cart) SetQuantity(productID string, qty int, now time.Time) error {
	if err := c.mutable(); err != nil {
		return err
	}
	i := c.index(productID)
	if i < 0 {
		return fmt.Errorf("%s: %w", productID, ErrItemNotFound)
	}
	if qty <= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	} else {
		c.Items[i].Quantity = qty
	}
	c.touch(now)
	return nil
}

// Remove drops a line. It reports whether anything was removed; removing an
// absent product is not an error.
func (c *Cart) Remove(productID string, now time.Time) (bool, error) {
	if err := c.mutable(); err != nil {
		return false, err
	}
	i := c.index(productID)
	if i < 0 {
		return false, nil
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	c.touch(now)
	return true, nil
}

func (c *Cart) Clear(now time.Time) error {
	if err := c.mutable(); err != nil {
		return err
	}
	c.Items = []Item{}
	c.touch(now)
	return nil
}

// Complete builds the immutable archive of this cart under archiveID.
// The receiver is left untouched.
func (c *Cart) Complete(archiveID, userName string, compraNumber int, now time.Time) (*Cart, error) {
	if err := c.mutable(); err != nil {
		return nil, err
	}
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}
	if strings.TrimSpace(archiveID) == "" || compraNumber <= 0 {
		return nil, ErrInvalidCart
	}
	archived := &Cart{
		ID:           archiveID,
		UserID:       c.UserID,
		Items:        append([]Item(nil), c.Items...),
		Status:       StatusCompleted,
		UserName:     strings.TrimSpace(userName),
		CompraNumber: compraNumber,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    now,
		CompletedAt:  now,
	}
	archived.Recalculate()
	return archived, archived.Validate()
}

// Recalculate sets Total to the sum of line subtotals.
func (c *Cart) Recalculate() {
	var total int64
	for _, it := range c.Items {
		total += it.Subtotal()
	}
	c.Total = total
}

// Validate checks the stored invariants: positive quantities, unique product
// ids, and a total equal to the sum of the lines.
func (c *Cart) Validate() error {
	if c == nil || strings.TrimSpace(c.UserID) == "" || strings.TrimSpace(c.ID) == "" {
		return ErrInvalidCart
	}
	if c.Status != StatusActive && c.Status != StatusCompleted {
		return fmt.Errorf("%w: status %q", ErrInvalidCart, c.Status)
	}
	seen := make(map[string]struct{}, len(c.Items))
	var total int64
	for _, it := range c.Items {
		if it.Quantity <= 0 || it.Price < 0 {
			return fmt.Errorf("%w: line %s", ErrInvalidCart, it.ProductID)
		}
		if _, dup := seen[it.ProductID]; dup {
			return fmt.Errorf("%w: duplicate line %s", ErrInvalidCart, it.ProductID)
		}
		seen[it.ProductID] = struct{}{}
		total += it.Subtotal()
	}
	if total != c.Total {
		return fmt.Errorf("%w: total %d != %d", ErrInvalidCart, c.Total, total)
	}
	return nil
}

func (c *Cart) mutable() error {
	if c == nil {
		return ErrInvalidCart
	}
	if c.Status != StatusActive {
		return ErrNotActive
	}
	return nil
}

func (c *Cart) touch(now time.Time) {
	c.Recalculate()
	c.UpdatedAt = now
}

func (c *Cart) index(productID string) int {
	pid := strings.TrimSpace(productID)
	for i := range c.Items {
		if c.Items[i].ProductID == pid {
			return i
		}
	}
	return -1
}
