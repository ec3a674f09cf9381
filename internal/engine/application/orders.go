package application

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dmehra2102/storefront-engine/internal/engine/domain"
	orderapp "github.com/dmehra2102/storefront-engine/internal/order/application"
	orderdom "github.com/dmehra2102/storefront-engine/internal/order/domain"
	"github.com/dmehra2102/storefront-engine/pkg/docstore"
)

// CreateOrder records an order as submitted. Stock is not touched.
func (s *Service) CreateOrder(ctx context.Context, spec orderdom.Spec) (o orderdom.Order, err error) {
	spec.UserID = strings.TrimSpace(spec.UserID)
	ctx, span := s.start(ctx, "CreateOrder", attribute.String("user_id", spec.UserID), attribute.Int("items", len(spec.Items)))
	defer func() { finish(span, err) }()

	if err := spec.Validate(); err != nil {
		return orderdom.Order{}, err
	}

	err = s.mutate(ctx, func(ctx context.Context, tx docstore.Tx, fx *effects) error {
		o, err = s.ledger.Place(tx, spec, orderapp.Placement{Source: orderdom.SourceDirect}, s.now())
		if err != nil {
			return err
		}
		return s.emitOrderPlaced(ctx, fx, o)
	})
	if err != nil {
		return orderdom.Order{}, err
	}
	s.log.Info("order created", "order_id", o.ID, "user_id", o.UserID, "total", o.Total)
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (orderdom.Order, error) {
	if err := required(id); err != nil {
		return orderdom.Order{}, err
	}
	return s.ledger.Get(ctx, s.store, id)
}

// ListOrders returns orders newest first; an empty userID lists everyone's.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]orderdom.Order, error) {
	userID = strings.TrimSpace(userID)
	return s.ledger.List(ctx, s.store, userID)
}

// UpdateOrderStatus moves an order along its status graph. status must be
// one of the known status names.
func (s *Service) UpdateOrderStatus(ctx context.Context, id, status string) (o orderdom.Order, err error) {
	ctx, span := s.start(ctx, "UpdateOrderStatus", attribute.String("order_id", id), attribute.String("status", status))
	defer func() { finish(span, err) }()

	if err := required(id); err != nil {
		return orderdom.Order{}, err
	}
	next, err := orderdom.ParseStatus(status)
	if err != nil {
		return orderdom.Order{}, err
	}

	err = s.mutate(ctx, func(ctx context.Context, tx docstore.Tx, fx *effects) error {
		now := s.now()
		var from orderdom.OrderStatus
		o, from, err = s.ledger.Transition(ctx, tx, id, next, now)
		if err != nil {
			return err
		}
		n := domain.Notification{
			Type:      domain.OrderStatusChanged,
			UserID:    o.UserID,
			OrderID:   o.ID,
			Status:    string(o.Status),
			Total:     o.Total,
			ItemCount: len(o.Items),
			At:        now,
		}
		return fx.emit(ctx, "order", o.ID, n, orderdom.OrderStatusChanged{
			OrderID:        o.ID,
			UserID:         o.UserID,
			From:           from,
			To:             o.Status,
			StockCommitted: o.StockCommitted,
			Items:          o.Items,
		})
	})
	if err != nil {
		return orderdom.Order{}, err
	}
	s.log.Info("order status changed", "order_id", o.ID, "status", o.Status)
	return o, nil
}

func (s *Service) emitOrderPlaced(ctx context.Context, fx *effects, o orderdom.Order) error {
	n := domain.Notification{
		Type:      domain.OrderPlaced,
		UserID:    o.UserID,
		OrderID:   o.ID,
		CartID:    o.CartID,
		Status:    string(o.Status),
		Total:     o.Total,
		ItemCount: len(o.Items),
		At:        o.CreatedAt,
	}
	return fx.emit(ctx, "order", o.ID, n, orderdom.NewOrderPlaced(o))
}
