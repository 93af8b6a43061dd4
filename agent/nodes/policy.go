package routernode

import (
	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
	"github.com/tanpawarit/food-delivery-assistant/agent/policy"
)

type keywordRoute struct {
	word  string
	route contractx.Route
}

// User-scoped keywords are checked before general ones, so a query matching
// both resolves to the user-scoped route.
var userKeywords = []keywordRoute{
	{"cart", contractx.RouteCarts},
	{"carts", contractx.RouteCarts},
	{"basket", contractx.RouteCarts},
	{"checkout", contractx.RoutePayments},
	{"order", contractx.RoutePayments},
	{"orders", contractx.RoutePayments},
	{"ordered", contractx.RoutePayments},
	{"payment", contractx.RoutePayments},
	{"payments", contractx.RoutePayments},
	{"paid", contractx.RoutePayments},
	{"refund", contractx.RoutePayments},
	{"history", contractx.RoutePayments},
	{"profile", contractx.RouteUsers},
	{"address", contractx.RouteUsers},
	{"account", contractx.RouteUsers},
	{"password", contractx.RouteUsers},
	{"email", contractx.RouteUsers},
}

var generalKeywords = []keywordRoute{
	{"offer", contractx.RouteDiscounts},
	{"offers", contractx.RouteDiscounts},
	{"discount", contractx.RouteDiscounts},
	{"discounts", contractx.RouteDiscounts},
	{"coupon", contractx.RouteDiscounts},
	{"coupons", contractx.RouteDiscounts},
	{"deal", contractx.RouteDiscounts},
	{"deals", contractx.RouteDiscounts},
	{"menu", contractx.RouteMenu},
	{"menus", contractx.RouteMenu},
	{"dish", contractx.RouteMenu},
	{"dishes", contractx.RouteMenu},
	{"food", contractx.RouteMenu},
	{"veg", contractx.RouteMenu},
	{"vegetarian", contractx.RouteMenu},
	{"price", contractx.RouteMenu},
	{"prices", contractx.RouteMenu},
	{"restaurant", contractx.RouteRestaurants},
	{"restaurants", contractx.RouteRestaurants},
	{"eat", contractx.RouteRestaurants},
}

var followUpMarkers = []string{
	"it", "its", "that", "this", "those", "these", "them", "one", "ones",
	"more", "also", "same", "again", "else", "first", "second", "third", "last",
}

// matchKeywords returns the route the query's keywords point at, or "" when
// no keyword matches.
func matchKeywords(query string) contractx.Route {
	words := policy.Words(query)
	for _, group := range [][]keywordRoute{userKeywords, generalKeywords} {
		for _, kw := range group {
			if _, ok := words[kw.word]; ok {
				return kw.route
			}
		}
	}
	return ""
}

func isFollowUp(query string) bool {
	words := policy.Words(query)
	for _, m := range followUpMarkers {
		if _, ok := words[m]; ok {
			return true
		}
	}
	return false
}

// hintFor resolves the keyword route of query. Follow-ups without keywords
// inherit the route of the most recent user turn that had one.
func hintFor(query string, history []contractx.Turn) contractx.Route {
	if route := matchKeywords(query); route != "" {
		return route
	}
	if !isFollowUp(query) {
		return ""
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != contractx.RoleUser {
			continue
		}
		if route := matchKeywords(history[i].Content); route != "" {
			return route
		}
	}
	return ""
}
