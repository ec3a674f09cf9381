package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	cartdom "github.com/dmehra2102/storefront-engine/internal/cart/domain"
	catalogdom "github.com/dmehra2102/storefront-engine/internal/catalog/domain"
	"github.com/dmehra2102/storefront-engine/internal/engine/domain"
	orderapp "github.com/dmehra2102/storefront-engine/internal/order/application"
	orderdom "github.com/dmehra2102/storefront-engine/internal/order/domain"
	"github.com/dmehra2102/storefront-engine/pkg/docstore"
)

const maxArchiveProbes = 50

var ErrArchiveCollision = errors.New("cart: could not derive a free archive id")

// Purchase is the customer data an order snapshots.
type Purchase struct {
	Name            string `json:"userName"`
	Email           string `json:"userEmail,omitempty"`
	Phone           string `json:"userPhone,omitempty"`
	ShippingAddress string `json:"shippingAddress,omitempty"`
	PaymentMethod   string `json:"paymentMethod,omitempty"`
}

func (p Purchase) spec(userID string, items []orderdom.OrderItem, total int64) orderdom.Spec {
	return orderdom.Spec{
		Customer:        orderdom.Customer{UserID: userID, Name: p.Name, Email: p.Email, Phone: p.Phone},
		Items:           items,
		Total:           total,
		ShippingAddress: p.ShippingAddress,
		PaymentMethod:   p.PaymentMethod,
	}
}

type CheckoutResult struct {
	Cart  *cartdom.Cart  `json:"cart"`
	Order orderdom.Order `json:"order"`
}

// completion is the read half of completing a cart: everything needed to
// write the archive, gathered before any write in the transaction.
type completion struct {
	active  *cartdom.Cart
	archive *cartdom.Cart
}

func (s *Service) prepareCompletion(ctx context.Context, tx docstore.Tx, userID, userName string, now time.Time) (*completion, error) {
	active, err := s.carts.GetActive(ctx, tx, userID, now)
	if err != nil {
		return nil, err
	}
	if active.IsEmpty() {
		return nil, cartdom.ErrEmptyCart
	}
	done, err := s.carts.Completed(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	id, n, err := s.archiveID(ctx, tx, userID, userName, done+1)
	if err != nil {
		return nil, err
	}
	archive, err := active.Complete(id, userName, n, now)
	if err != nil {
		return nil, err
	}
	return &completion{active: active, archive: archive}, nil
}

// archiveID finds the id for the n-th purchase. An id already held by this
// user means the counter lags behind the archives, so n moves forward. An id
// held by another user with the same slug gets a user suffix.
func (s *Service) archiveID(ctx context.Context, rd docstore.Reader, userID, userName string, n int) (string, int, error) {
	for i := 0; i < maxArchiveProbes; i++ {
		candidates := []string{
			cartdom.ArchiveID(userName, n),
			cartdom.DisambiguatedArchiveID(userName, n, userID),
		}
		bump := false
		for _, id := range candidates {
			owner, err := s.carts.CompletedOwner(ctx, rd, id)
			if err != nil {
				return "", 0, err
			}
			if owner == "" {
				return id, n, nil
			}
			if owner == userID {
				bump = true
				break
			}
		}
		if !bump {
			break
		}
		n++
	}
	return "", 0, fmt.Errorf("%w: user %s", ErrArchiveCollision, userID)
}

func (s *Service) commitCompletion(ctx context.Context, tx docstore.Tx, fx *effects, c *completion, now time.Time) error {
	a := c.archive
	if err := s.carts.CreateCompleted(tx, a); err != nil {
		return err
	}
	if err := s.carts.DeleteActive(tx, a.UserID); err != nil {
		return err
	}
	if err := s.carts.SetCompleted(tx, a.UserID, a.CompraNumber, now); err != nil {
		return err
	}
	n := domain.Notification{
		Type:      domain.CartCompleted,
		UserID:    a.UserID,
		CartID:    a.ID,
		Total:     a.Total,
		ItemCount: len(a.Items),
		At:        now,
	}
	return fx.emit(ctx, "cart", a.UserID, n, domain.CartArchived{
		UserID:       a.UserID,
		ArchiveID:    a.ID,
		CompraNumber: a.CompraNumber,
		Items:        a.Items,
		Total:        a.Total,
	})
}

// CompleteCart archives the active cart under a stable id and removes it.
// Archive, counter and deletion commit together.
func (s *Service) CompleteCart(ctx context.Context, userID, userName string) (archived *cartdom.Cart, err error) {
	userID = strings.TrimSpace(userID)
	ctx, span := s.start(ctx, "CompleteCart", attribute.String("user_id", userID))
	defer func() { finish(span, err) }()

	if err := required(userID); err != nil {
		return nil, err
	}

	err = s.mutate(ctx, func(ctx context.Context, tx docstore.Tx, fx *effects) error {
		now := s.now()
		c, err := s.prepareCompletion(ctx, tx, userID, userName, now)
		if err != nil {
			return err
		}
		archived = c.archive
		return s.commitCompletion(ctx, tx, fx, c, now)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("cart completed", "user_id", userID, "archive_id", archived.ID, "compra_number", archived.CompraNumber)
	return archived, nil
}

// Checkout completes the cart and places an order for it, taking the units
// out of stock, all in one transaction.
func (s *Service) Checkout(ctx context.Context, userID string, p Purchase) (res CheckoutResult, err error) {
	userID = strings.TrimSpace(userID)
	ctx, span := s.start(ctx, "Checkout", attribute.String("user_id", userID))
	defer func() { finish(span, err) }()

	if err := required(userID); err != nil {
		return CheckoutResult{}, err
	}

	err = s.mutate(ctx, func(ctx context.Context, tx docstore.Tx, fx *effects) error {
		now := s.now()
		c, err := s.prepareCompletion(ctx, tx, userID, p.Name, now)
		if err != nil {
			return err
		}

		products := make([]catalogdom.Product, 0, len(c.archive.Items))
		items := make([]orderdom.OrderItem, 0, len(c.archive.Items))
		for _, it := range c.archive.Items {
			prod, err := s.products.Get(ctx, tx, it.ProductID)
			if err != nil {
				return err
			}
			if !prod.IsActive {
				return fmt.Errorf("%s: %w", prod.ID, catalogdom.ErrProductInactive)
			}
			if err := prod.Decrement(it.Quantity, now); err != nil {
				return err
			}
			products = append(products, prod)
			items = append(items, orderdom.OrderItem{
				ProductID: it.ProductID,
				Name:      it.Name,
				Price:     it.Price,
				Quantity:  it.Quantity,
				Image:     it.Image,
			})
		}

		if err := s.commitCompletion(ctx, tx, fx, c, now); err != nil {
			return err
		}
		for _, prod := range products {
			if err := s.products.SaveStock(tx, prod); err != nil {
				return err
			}
		}
		o, err := s.ledger.Place(tx, p.spec(userID, items, c.archive.Total), orderapp.Placement{
			Source:         orderdom.SourceCart,
			CartID:         c.archive.ID,
			StockCommitted: true,
		}, now)
		if err != nil {
			return err
		}
		res = CheckoutResult{Cart: c.archive, Order: o}
		return s.emitOrderPlaced(ctx, fx, o)
	})
	if err != nil {
		return CheckoutResult{}, err
	}
	s.log.Info("cart checked out", "user_id", userID, "archive_id", res.Cart.ID, "order_id", res.Order.ID)
	return res, nil
}

// BuyNow orders qty units of one product directly, leaving the cart alone.
func (s *Service) BuyNow(ctx context.Context, userID, productID string, qty int, p Purchase) (o orderdom.Order, err error) {
	userID = strings.TrimSpace(userID)
	ctx, span := s.start(ctx, "BuyNow",
		attribute.String("user_id", userID), attribute.String("product_id", productID), attribute.Int("quantity", qty))
	defer func() { finish(span, err) }()

	if err := required(userID, productID); err != nil {
		return orderdom.Order{}, err
	}
	if qty <= 0 {
		return orderdom.Order{}, catalogdom.ErrInvalidQuantity
	}

	err = s.mutate(ctx, func(ctx context.Context, tx docstore.Tx, fx *effects) error {
		now := s.now()
		prod, err := s.products.Get(ctx, tx, productID)
		if err != nil {
			return err
		}
		if !prod.IsActive {
			return fmt.Errorf("%s: %w", prod.ID, catalogdom.ErrProductInactive)
		}
		if err := prod.Decrement(qty, now); err != nil {
			return err
		}
		if err := s.products.SaveStock(tx, prod); err != nil {
			return err
		}
		item := orderdom.OrderItem{ProductID: prod.ID, Name: prod.Name, Price: prod.Price, Quantity: qty, Image: prod.Image}
		o, err = s.ledger.Place(tx, p.spec(userID, []orderdom.OrderItem{item}, item.Price*int64(qty)), orderapp.Placement{
			Source:         orderdom.SourceBuyNow,
			StockCommitted: true,
		}, now)
		if err != nil {
			return err
		}
		return s.emitOrderPlaced(ctx, fx, o)
	})
	if err != nil {
		return orderdom.Order{}, err
	}
	s.log.Info("buy now placed", "user_id", userID, "product_id", productID, "order_id", o.ID)
	return o, nil
}

func (s *Service) ListCompletedCarts(ctx context.Context, userID string) ([]*cartdom.Cart, error) {
	userID = strings.TrimSpace(userID)
	if err := required(userID); err != nil {
		return nil, err
	}
	return s.carts.ListCompleted(ctx, s.store, userID)
}

// GetCompletedCart returns one archive of userID.
func (s *Service) GetCompletedCart(ctx context.Context, userID, archiveID string) (*cartdom.Cart, error) {
	userID = strings.TrimSpace(userID)
	if err := required(userID, archiveID); err != nil {
		return nil, err
	}
	c, err := s.carts.GetCompleted(ctx, s.store, archiveID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, fmt.Errorf("%s: %w", archiveID, cartdom.ErrArchiveNotFound)
	}
	return c, nil
}
