package domain

import (
	"time"

	cartdom "github.com/dmehra2102/storefront-engine/internal/cart/domain"
)

type EventType string

const (
	CartUpdated        EventType = "CartUpdated"
	CartCleared        EventType = "CartCleared"
	CartCompleted      EventType = "CartCompleted"
	WishlistUpdated    EventType = "WishlistUpdated"
	OrderPlaced        EventType = "OrderPlaced"
	OrderStatusChanged EventType = "OrderStatusChanged"
)

// Notification is what subscribers receive after a change commits.
type Notification struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"userId"`
	CartID    string    `json:"cartId,omitempty"`
	OrderID   string    `json:"orderId,omitempty"`
	ProductID string    `json:"productId,omitempty"`
	Status    string    `json:"status,omitempty"`
	Total     int64     `json:"total"`
	ItemCount int       `json:"itemCount"`
	At        time.Time `json:"at"`
}

type CartChanged struct {
	UserID    string         `json:"userId"`
	ProductID string         `json:"productId,omitempty"`
	Items     []cartdom.Item `json:"items"`
	Total     int64          `json:"total"`
}

type CartArchived struct {
	UserID       string         `json:"userId"`
	ArchiveID    string         `json:"archiveId"`
	CompraNumber int            `json:"compraNumber"`
	Items        []cartdom.Item `json:"items"`
	Total        int64          `json:"total"`
}

type WishlistChanged struct {
	UserID     string   `json:"userId"`
	ProductIDs []string `json:"productIds"`
}
