package prompt

import (
	_ "embed"
	"strings"

	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
)

var (
	//go:embed template/router.txt
	routerRaw string

	//go:embed template/answer.txt
	answerRaw string

	//go:embed template/restaurants.txt
	restaurantsRaw string

	//go:embed template/menu.txt
	menuRaw string

	//go:embed template/users.txt
	usersRaw string

	//go:embed template/carts.txt
	cartsRaw string

	//go:embed template/payments.txt
	paymentsRaw string

	//go:embed template/discounts.txt
	discountsRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Router string
	Answer string

	Restaurants string
	Menu        string
	Users       string
	Carts       string
	Payments    string
	Discounts   string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Router:      strings.TrimSpace(routerRaw),
		Answer:      strings.TrimSpace(answerRaw),
		Restaurants: strings.TrimSpace(restaurantsRaw),
		Menu:        strings.TrimSpace(menuRaw),
		Users:       strings.TrimSpace(usersRaw),
		Carts:       strings.TrimSpace(cartsRaw),
		Payments:    strings.TrimSpace(paymentsRaw),
		Discounts:   strings.TrimSpace(discountsRaw),
	}
}

// ForRoute returns the handler prompt of route, or "" for routes without a
// handler.
func (p PromptSet) ForRoute(route contractx.Route) string {
	switch route {
	case contractx.RouteRestaurants:
		return p.Restaurants
	case contractx.RouteMenu:
		return p.Menu
	case contractx.RouteUsers:
		return p.Users
	case contractx.RouteCarts:
		return p.Carts
	case contractx.RoutePayments:
		return p.Payments
	case contractx.RouteDiscounts:
		return p.Discounts
	default:
		return ""
	}
}
