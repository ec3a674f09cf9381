package domain

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type OrderPlaced struct {
	OrderID        string      `json:"orderId"`
	UserID         string      `json:"userId"`
	Source         Source      `json:"source"`
	CartID         string      `json:"cartId,omitempty"`
	Total          int64       `json:"total"`
	Items          []OrderItem `json:"items"`
	StockCommitted bool        `json:"stockCommitted"`
}

// OrderStatusChanged carries the items so consumers can restock a cancelled
// order without reading it back.
type OrderStatusChanged struct {
	OrderID        string      `json:"orderId"`
	UserID         string      `json:"userId"`
	From           OrderStatus `json:"from"`
	To             OrderStatus `json:"to"`
	StockCommitted bool        `json:"stockCommitted"`
	Items          []OrderItem `json:"items"`
}

func NewOrderPlaced(o Order) OrderPlaced {
	return OrderPlaced{
		OrderID:        o.ID,
		UserID:         o.UserID,
		Source:         o.Source,
		CartID:         o.CartID,
		Total:          o.Total,
		Items:          o.Items,
		StockCommitted: o.StockCommitted,
	}
}
