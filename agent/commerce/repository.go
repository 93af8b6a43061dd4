package commerce

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
	"github.com/uptrace/bun"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrUnknownMenuItem = errors.New("menu item not found")
)

const maxQuantity = 50

// Repository performs the cart and order mutations. Each operation runs in a
// single transaction and is never retried.
type Repository struct {
	db  bun.IDB
	now func() time.Time
}

type Option func(*Repository)

func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRepository(db bun.IDB, opts ...Option) (*Repository, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}
	r := &Repository{db: db, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// AddToCart puts an item in the caller's active cart, creating the cart when
// none is active. The unit price is read from the menu, never from the caller.
func (r *Repository) AddToCart(ctx context.Context, in AddItem) (AddResult, error) {
	in, err := normalizeAddItem(in)
	if err != nil {
		return AddResult{}, err
	}

	var res AddResult
	err = r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		menu := menuPrice{}
		if err := tx.NewSelect().Model(&menu).Column("id", "price").Where("m.id = ?", in.MenuID).Limit(1).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrUnknownMenuItem
			}
			return fmt.Errorf("read menu price: %w", err)
		}

		cartID, err := r.activeCart(ctx, tx, in.UserID)
		if err != nil {
			return err
		}

		item := CartItem{
			ID:       uuid.NewString(),
			CartID:   cartID,
			MenuID:   in.MenuID,
			Price:    menu.Price,
			Quantity: in.Quantity,
		}
		if _, err := tx.NewInsert().Model(&item).Exec(ctx); err != nil {
			return fmt.Errorf("insert cart item: %w", err)
		}

		res = AddResult{CartID: cartID, ItemID: item.ID, Price: item.Price}
		return nil
	})
	if err != nil {
		return AddResult{}, classify("commerce.add_to_cart", in.UserID, err)
	}

	log.Info().Str("user", in.UserID).Str("cart", res.CartID).Str("menu", in.MenuID).Int("quantity", in.Quantity).Msg("commerce: item added")
	return res, nil
}

// Checkout turns the active cart into one pending payment per line under a
// single order id and closes the cart.
func (r *Repository) Checkout(ctx context.Context, userID string) (Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", contractx.ErrValidation)
	}

	var order Order
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var items []CartItem
		err := activeCartItems(tx, userID, &items).Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read cart items: %w", err)
		}

		now := r.now()
		order, err = buildOrder(orderID(now), userID, items, now)
		if err != nil {
			return err
		}

		if _, err := tx.NewInsert().Model(&order.Lines).Exec(ctx); err != nil {
			return fmt.Errorf("insert payments: %w", err)
		}

		_, err = tx.NewUpdate().
			Model((*Cart)(nil)).
			Set("status = ?", CartStatusCompleted).
			Where("user_id = ?", userID).
			Where("status = ?", CartStatusActive).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("close cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return Order{}, classify("commerce.checkout", userID, err)
	}

	log.Info().Str("user", userID).Str("order", order.ID).Int("lines", len(order.Lines)).Float64("total", order.Total).Msg("commerce: order placed")
	return order, nil
}

// activeCartItems selects the lines of the caller's active cart and locks the
// cart row, so a concurrent checkout waits and then sees the cart closed.
func activeCartItems(db bun.IDB, userID string, items *[]CartItem) *bun.SelectQuery {
	return db.NewSelect().
		Model(items).
		Join("JOIN carts AS c ON c.id = ci.cart_id").
		Where("c.user_id = ?", userID).
		Where("c.status = ?", CartStatusActive).
		For("UPDATE OF c")
}

func (r *Repository) activeCart(ctx context.Context, tx bun.Tx, userID string) (string, error) {
	cart := Cart{}
	err := tx.NewSelect().
		Model(&cart).
		Column("id").
		Where("c.user_id = ?", userID).
		Where("c.status = ?", CartStatusActive).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return cart.ID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("read active cart: %w", err)
	}

	cart = Cart{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    CartStatusActive,
		CreatedAt: r.now(),
	}
	if _, err := tx.NewInsert().Model(&cart).Exec(ctx); err != nil {
		return "", fmt.Errorf("create cart: %w", err)
	}
	return cart.ID, nil
}

func normalizeAddItem(in AddItem) (AddItem, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.MenuID = strings.TrimSpace(in.MenuID)
	switch {
	case in.UserID == "":
		return in, fmt.Errorf("%w: user id is required", contractx.ErrValidation)
	case in.MenuID == "":
		return in, fmt.Errorf("%w: menu id is required", contractx.ErrValidation)
	case in.Quantity <= 0 || in.Quantity > maxQuantity:
		return in, fmt.Errorf("%w: quantity must be between 1 and %d", contractx.ErrValidation, maxQuantity)
	}
	return in, nil
}

func orderID(now time.Time) string {
	return fmt.Sprintf("ORD-%d", now.UnixMilli())
}

func buildOrder(id, userID string, items []CartItem, now time.Time) (Order, error) {
	if len(items) == 0 {
		return Order{}, ErrEmptyCart
	}
	order := Order{ID: id, Status: PaymentStatusPending, Lines: make([]Payment, 0, len(items))}
	for _, item := range items {
		amount := item.Price * float64(item.Quantity)
		order.Total += amount
		order.Lines = append(order.Lines, Payment{
			ID:        uuid.NewString(),
			OrderID:   id,
			UserID:    userID,
			MenuID:    item.MenuID,
			Amount:    amount,
			Status:    PaymentStatusPending,
			CreatedAt: now,
		})
	}
	return order, nil
}

// classify keeps domain errors as they are and hides everything else behind
// a StoreFailure.
func classify(op, userID string, err error) error {
	if errors.Is(err, ErrEmptyCart) || errors.Is(err, ErrUnknownMenuItem) {
		return err
	}
	log.Error().Err(err).Str("op", op).Str("user", userID).Msg("commerce: transaction rolled back")
	return contractx.NewStoreFailure(op, err)
}
