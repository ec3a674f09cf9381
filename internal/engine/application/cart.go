package application

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	cartdom "github.com/dmehra2102/storefront-engine/internal/cart/domain"
	catalogdom "github.com/dmehra2102/storefront-engine/internal/catalog/domain"
	"github.com/dmehra2102/storefront-engine/internal/engine/domain"
	"github.com/dmehra2102/storefront-engine/pkg/docstore"
)

func (s *Service) GetCart(ctx context.Context, userID string) (*cartdom.Cart, error) {
	userID = strings.TrimSpace(userID)
	if err := required(userID); err != nil {
		return nil, err
	}
	return s.carts.GetActive(ctx, s.store, userID, s.now())
}

// AddToCart adds qty units of productID to the user's active cart, creating
// the cart on first use. The units already in the cart plus qty must fit in
// the product's current stock.
func (s *Service) AddToCart(ctx context.Context, userID, productID string, qty int) (c *cartdom.Cart, err error) {
	userID = strings.TrimSpace(userID)
	ctx, span := s.start(ctx, "AddToCart",
		attribute.String("user_id", userID), attribute.String("product_id", productID), attribute.Int("quantity", qty))
	defer func() { finish(span, err) }()

	if err := required(userID, productID); err != nil {
		return nil, err
	}
	if qty <= 0 {
		return nil, cartdom.ErrInvalidQuantity
	}

	err = s.mutate(ctx, func(ctx context.Context, tx docstore.Tx, fx *effects) error {
		now := s.now()
		p, err := s.products.Get(ctx, tx, productID)
		if err != nil {
			return err
		}
		if !p.IsActive {
			return fmt.Errorf("%s: %w", p.ID, catalogdom.ErrProductInactive)
		}
		c, err = s.carts.GetActive(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		if err := p.CheckReservation(c.Quantity(p.ID), qty); err != nil {
			return err
		}
		if err := c.Add(cartdom.Item{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  qty,
			Image:     p.Image,
			Category:  p.Category,
		}, now); err != nil {
			return err
		}
		if err := s.carts.SaveActive(tx, c); err != nil {
			return err
		}
		return s.emitCart(ctx, fx, domain.CartUpdated, c, p.ID)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("cart item added", "user_id", userID, "product_id", productID, "quantity", qty)
	return c, nil
}

// UpdateCartItemQuantity sets the quantity of a line. qty <= 0 removes it.
// Increases are checked against current stock; decreases are not.
func (s *Service) UpdateCartItemQuantity(ctx context.Context, userID, productID string, qty int) (c *cartdom.Cart, err error) {
	userID = strings.TrimSpace(userID)
	ctx, span := s.start(ctx, "UpdateCartItemQuantity",
		attribute.String("user_id", userID), attribute.String("product_id", productID), attribute.Int("quantity", qty))
	defer func() { finish(span, err) }()

	if err := required(userID, productID); err != nil {
		return nil, err
	}

	err = s.mutate(ctx, func(ctx context.Context, tx docstore.Tx, fx *effects) error {
		now := s.now()
		c, err = s.carts.GetActive(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		current := c.Quantity(productID)
		if current == 0 {
			return fmt.Errorf("%s: %w", productID, cartdom.ErrItemNotFound)
		}
		if qty > current {
			p, err := s.products.Get(ctx, tx, productID)
			if err != nil {
				return err
			}
			if !p.IsActive {
				return fmt.Errorf("%s: %w", p.ID, catalogdom.ErrProductInactive)
			}
			if err := p.CheckReservation(current, qty-current); err != nil {
				return err
			}
		}
		if err := c.SetQuantity(productID, qty, now); err != nil {
			return err
		}
		if err := s.carts.SaveActive(tx, c); err != nil {
			return err
		}
		return s.emitCart(ctx, fx, domain.CartUpdated, c, productID)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// RemoveCartItem drops a line; removing an absent product changes nothing.
func (s *Service) RemoveCartItem(ctx context.Context, userID, productID string) (c *cartdom.Cart, err error) {
	userID = strings.TrimSpace(userID)
	ctx, span := s.start(ctx, "RemoveCartItem",
		attribute.String("user_id", userID), attribute.String("product_id", productID))
	defer func() { finish(span, err) }()

	if err := required(userID, productID); err != nil {
		return nil, err
	}

	err = s.mutate(ctx, func(ctx context.Context, tx docstore.Tx, fx *effects) error {
		now := s.now()
		c, err = s.carts.GetActive(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		removed, err := c.Remove(productID, now)
		if err != nil || !removed {
			return err
		}
		if err := s.carts.SaveActive(tx, c); err != nil {
			return err
		}
		return s.emitCart(ctx, fx, domain.CartUpdated, c, productID)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ClearCart empties the active cart without changing its identity.
func (s *Service) ClearCart(ctx context.Context, userID string) (c *cartdom.Cart, err error) {
	userID = strings.TrimSpace(userID)
	ctx, span := s.start(ctx, "ClearCart", attribute.String("user_id", userID))
	defer func() { finish(span, err) }()

	if err := required(userID); err != nil {
		return nil, err
	}

	err = s.mutate(ctx, func(ctx context.Context, tx docstore.Tx, fx *effects) error {
		now := s.now()
		c, err = s.carts.GetActive(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		if c.IsEmpty() {
			return nil
		}
		if err := c.Clear(now); err != nil {
			return err
		}
		if err := s.carts.SaveActive(tx, c); err != nil {
			return err
		}
		return s.emitCart(ctx, fx, domain.CartCleared, c, "")
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) emitCart(ctx context.Context, fx *effects, typ domain.EventType, c *cartdom.Cart, productID string) error {
	n := domain.Notification{
		Type:      typ,
		UserID:    c.UserID,
		CartID:    c.ID,
		ProductID: productID,
		Total:     c.Total,
		ItemCount: len(c.Items),
		At:        c.UpdatedAt,
	}
	return fx.emit(ctx, "cart", c.UserID, n, domain.CartChanged{
		UserID:    c.UserID,
		ProductID: productID,
		Items:     c.Items,
		Total:     c.Total,
	})
}
