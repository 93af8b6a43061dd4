package commerce

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	CartStatusActive    = "active"
	CartStatusCompleted = "completed"

	PaymentStatusPending = "pending"
)

type Cart struct {
	bun.BaseModel `bun:"table:carts,alias:c"`

	ID        string    `bun:"id,pk"`
	UserID    string    `bun:"user_id,notnull"`
	Status    string    `bun:"status,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

type CartItem struct {
	bun.BaseModel `bun:"table:cart_items,alias:ci"`

	ID       string  `bun:"id,pk"`
	CartID   string  `bun:"cart_id,notnull"`
	MenuID   string  `bun:"menu_id,notnull"`
	Price    float64 `bun:"price,notnull"`
	Quantity int     `bun:"quantity,notnull"`
}

// Payment is one order line. An order is the set of payments sharing OrderID.
type Payment struct {
	bun.BaseModel `bun:"table:payments,alias:p"`

	ID        string    `bun:"id,pk"`
	OrderID   string    `bun:"order_id,notnull"`
	UserID    string    `bun:"user_id,notnull"`
	MenuID    string    `bun:"menu_id,notnull"`
	Amount    float64   `bun:"amount,notnull"`
	Status    string    `bun:"status,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

type menuPrice struct {
	bun.BaseModel `bun:"table:menus,alias:m"`

	ID    string  `bun:"id,pk"`
	Price float64 `bun:"price"`
}

// AddItem asks for quantity units of a menu item in the caller's active cart.
type AddItem struct {
	UserID   string `json:"-"`
	MenuID   string `json:"menuId"`
	Quantity int    `json:"quantity"`
}

type AddResult struct {
	CartID string  `json:"cartId"`
	ItemID string  `json:"itemId"`
	Price  float64 `json:"price"`
}

type Order struct {
	ID     string    `json:"orderId"`
	Total  float64   `json:"total"`
	Status string    `json:"status"`
	Lines  []Payment `json:"-"`
}
