package policy

import (
	"github.com/tanpawarit/food-delivery-assistant/agent/sqlgate"
)

// Relation names of the food delivery schema.
const (
	RelRestaurants = "restaurants"
	RelMenus       = "menus"
	RelUsers       = "users"
	RelCarts       = "carts"
	RelCartItems   = "cart_items"
	RelPayments    = "payments"
	RelDiscount    = "discount"
)

var schema = map[string][]string{
	RelRestaurants: {"id", "name", "location", "image", "rating", "cost", "description"},
	RelMenus:       {"id", "restaurant_id", "name", "description", "image", "is_veg", "price", "rating", "votes"},
	RelUsers:       {"id", "name", "email", "password"},
	RelCarts:       {"id", "user_id", "status", "created_at"},
	RelCartItems:   {"id", "cart_id", "menu_id", "price", "quantity"},
	RelPayments:    {"id", "order_id", "user_id", "menu_id", "amount", "status", "created_at"},
	RelDiscount:    {"id", "restaurant_id", "code", "description", "percentage", "valid_until"},
}

// Catalog returns the known relations and columns of the store.
func Catalog() sqlgate.Catalog {
	return sqlgate.NewCatalog(schema)
}
