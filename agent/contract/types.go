package contract

import (
	"strings"
)

type AgentType string

const (
	AgentTypeRouter  AgentType = "router"
	AgentTypeHandler AgentType = "handler"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// Turn is one attributed message. Timestamp is unix milliseconds.
type Turn struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Route is the closed set of dispatch outcomes: one per domain handler plus
// the authentication short-circuit.
type Route string

const (
	RouteRestaurants  Route = "restaurants"
	RouteMenu         Route = "menu"
	RouteUsers        Route = "users"
	RouteCarts        Route = "carts"
	RoutePayments     Route = "payments"
	RouteDiscounts    Route = "discounts"
	RouteAuthRequired Route = "auth_required"
)

// HandlerRoutes lists the domain handlers in declaration order.
var HandlerRoutes = []Route{
	RouteRestaurants,
	RouteMenu,
	RouteUsers,
	RouteCarts,
	RoutePayments,
	RouteDiscounts,
}

func ParseRoute(raw string) (Route, bool) {
	r := Route(strings.ToLower(strings.TrimSpace(raw)))
	switch r {
	case RouteRestaurants, RouteMenu, RouteUsers, RouteCarts, RoutePayments, RouteDiscounts, RouteAuthRequired:
		return r, true
	default:
		return "", false
	}
}

type Scope string

const (
	ScopeGeneral   Scope = "general"
	ScopeUser      Scope = "user"
	ScopeUndecided Scope = ""
)

func (r Route) Scope() Scope {
	switch r {
	case RouteUsers, RouteCarts, RoutePayments, RouteAuthRequired:
		return ScopeUser
	default:
		return ScopeGeneral
	}
}

func (r Route) IsHandler() bool {
	return r != RouteAuthRequired && r != ""
}

// Fragment is one pushed piece of a streamed answer.
type Fragment struct {
	Ordinal  int
	Delta    string
	Terminal bool
}

// Emitter forwards a text delta to the caller. A non-nil error means the
// transport is gone and the producer must stop.
type Emitter func(delta string) error

// ChatRequest is the inbound gateway request.
type ChatRequest struct {
	Query    string `json:"query"`
	Identity string `json:"userId,omitempty"`
	History  []Turn `json:"history,omitempty"`

	// Origin is the caller network address; used only to derive an anonymous
	// session key.
	Origin string `json:"-"`
}

// RouteRequest is what the router sees for one turn.
type RouteRequest struct {
	Query     string
	Identity  string
	CallerKey string
	History   []Turn
}

// HandlerRequest is the routed context handed to a domain handler.
type HandlerRequest struct {
	Route     Route
	Query     string
	Identity  string
	CallerKey string
	History   []Turn
}

type ClassifyRequest struct {
	Query    string `json:"query"`
	Identity bool   `json:"authenticated"`
	History  []Turn `json:"history"`
}

type ClassifyResponse struct {
	Route    string `json:"route"`
	FollowUp bool   `json:"follow_up"`
	Reason   string `json:"reason,omitempty"`
}

type ToolRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

type ToolResult struct {
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Row is one result row keyed by column label.
type Row map[string]any

// LoginRequiredMessage is the fixed reply to a user-scoped request without
// an identity.
const LoginRequiredMessage = "Please login to continue."
