package policy

import (
	"strings"

	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
)

const (
	defaultCap    = 10
	popularityCap = 20
	fuzzyEdits    = 2
)

var (
	rankingWords    = []string{"top", "best", "highest", "famous", "popular", "rated", "ranked"}
	popularityWords = []string{"famous", "popular", "trending"}
)

var rankingOrder = []contractx.OrderTerm{
	{Column: "rating", Desc: true},
	{Column: "votes", Desc: true},
}

var cartItemsAnchor = map[string]contractx.Anchor{
	RelCartItems: {Relation: RelCarts, Column: "cart_id", Key: "id"},
}

var policies = map[contractx.Route]contractx.HandlerPolicy{
	contractx.RouteRestaurants: {
		Domain:           contractx.RouteRestaurants,
		AllowedRelations: contractx.Set(RelRestaurants, RelMenus),
		DeniedColumns:    contractx.Set("password"),
		DefaultLimit:     defaultCap,
		MaxLimit:         50,
		FuzzyColumns:     contractx.Set("restaurants.name", "restaurants.location", "menus.name"),
		FuzzyTolerance:   fuzzyEdits,
		EmptyMessage:     "I couldn't find any restaurants matching that.",
		Apology:          "Sorry, I couldn't look up restaurants for that request. Could you rephrase it?",
	},
	contractx.RouteMenu: {
		Domain:           contractx.RouteMenu,
		AllowedRelations: contractx.Set(RelMenus, RelRestaurants),
		DeniedColumns:    contractx.Set("password"),
		DefaultLimit:     defaultCap,
		MaxLimit:         50,
		FuzzyColumns:     contractx.Set("menus.name", "restaurants.name", "restaurants.location"),
		FuzzyTolerance:   fuzzyEdits,
		EmptyMessage:     "I couldn't find any dishes matching that.",
		Apology:          "Sorry, I couldn't look up the menu for that request. Could you rephrase it?",
	},
	contractx.RouteUsers: {
		Domain:           contractx.RouteUsers,
		AllowedRelations: contractx.Set(RelUsers, RelCarts, RelCartItems),
		DeniedColumns:    contractx.Set("password", "users.password"),
		Anchors:          cartItemsAnchor,
		IdentityScope:    map[string]string{RelUsers: "id", RelCarts: "user_id"},
		RequireIdentity:  true,
		DefaultLimit:     defaultCap,
		MaxLimit:         20,
		SignInMessage:    "To create an account, please use the Sign Up page with your name, email and a password. Once you're signed in I can help with your profile, cart and orders.",
		EmptyMessage:     "I couldn't find any account details for you.",
		Apology:          "Sorry, I can't share that information.",
	},
	contractx.RouteCarts: {
		Domain:           contractx.RouteCarts,
		AllowedRelations: contractx.Set(RelCarts, RelCartItems, RelMenus),
		DeniedColumns:    contractx.Set("password"),
		Anchors:          cartItemsAnchor,
		AllowedValues:    map[string][]string{"carts.status": {"active", "completed"}},
		IdentityScope:    map[string]string{RelCarts: "user_id"},
		RequireIdentity:  true,
		DefaultLimit:     popularityCap,
		MaxLimit:         50,
		SignInMessage:    "Please sign in to view your cart.",
		EmptyMessage:     "Your cart is empty.",
		Apology:          "Sorry, I couldn't look up your cart right now.",
	},
	contractx.RoutePayments: {
		Domain:           contractx.RoutePayments,
		AllowedRelations: contractx.Set(RelPayments, RelMenus, RelRestaurants),
		DeniedColumns:    contractx.Set("password"),
		AllowedValues:    map[string][]string{"payments.status": {"pending", "completed", "failed"}},
		IdentityScope:    map[string]string{RelPayments: "user_id"},
		DefaultLimit:     defaultCap,
		MaxLimit:         50,
		DefaultOrder:     []contractx.OrderTerm{{Column: "created_at", Desc: true}},
		AlwaysOrder:      true,
		EmptyMessage:     "I couldn't find any orders or payments for you.",
		Apology:          "Sorry, I couldn't look up your orders for that request.",
	},
	contractx.RouteDiscounts: {
		Domain:           contractx.RouteDiscounts,
		AllowedRelations: contractx.Set(RelDiscount, RelRestaurants),
		DeniedColumns:    contractx.Set("password"),
		DefaultLimit:     defaultCap,
		MaxLimit:         50,
		FuzzyColumns:     contractx.Set("restaurants.name"),
		FuzzyTolerance:   fuzzyEdits,
		EmptyMessage:     "There are no active offers right now. Please check back later!",
		Apology:          "Sorry, I couldn't look up offers for that request.",
	},
}

// For returns the policy of route. The second result is false for routes
// that have no handler.
func For(route contractx.Route) (contractx.HandlerPolicy, bool) {
	p, ok := policies[route]
	if !ok {
		return contractx.HandlerPolicy{}, false
	}
	return p.Clone(), true
}

// ForQuery tightens p for one query. Ranking language on the browsing
// domains asks for rating then votes ordering; popularity listings raise the
// default cap.
func ForQuery(p contractx.HandlerPolicy, query string) contractx.HandlerPolicy {
	if p.Domain != contractx.RouteRestaurants && p.Domain != contractx.RouteMenu {
		return p
	}
	out := p.Clone()
	words := Words(query)
	if containsAny(words, rankingWords) {
		out.DefaultOrder = append([]contractx.OrderTerm(nil), rankingOrder...)
		out.AlwaysOrder = true
	}
	if containsAny(words, popularityWords) && out.DefaultLimit < popularityCap {
		out.DefaultLimit = popularityCap
	}
	return out
}

// Words splits text into lower-case words.
func Words(text string) map[string]struct{} {
	fields := splitWords(text)
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[f] = struct{}{}
	}
	return out
}

func splitWords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '\''
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, "'"); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func containsAny(words map[string]struct{}, candidates []string) bool {
	for _, c := range candidates {
		if _, ok := words[c]; ok {
			return true
		}
	}
	return false
}

var identityCreationPhrases = []string{
	"sign up",
	"signup",
	"register",
	"create account",
	"create an account",
	"create my account",
	"new account",
	"new user",
}

// IsIdentityCreation reports whether query asks to create an account.
func IsIdentityCreation(query string) bool {
	q := " " + strings.Join(splitWords(query), " ") + " "
	for _, phrase := range identityCreationPhrases {
		if strings.Contains(q, " "+phrase+" ") {
			return true
		}
	}
	return false
}
