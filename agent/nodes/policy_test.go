package routernode

import (
	"testing"

	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
)

func TestMatchKeywordsPrefersUserScope(t *testing.T) {
	t.Parallel()

	cases := []struct {
		query string
		want  contractx.Route
	}{
		{"show me top rated restaurants", contractx.RouteRestaurants},
		{"cheap veg dishes", contractx.RouteMenu},
		{"any coupons today?", contractx.RouteDiscounts},
		{"what's in my cart", contractx.RouteCarts},
		{"restaurants I ordered from", contractx.RoutePayments},
		{"discount on my order", contractx.RoutePayments},
		{"update my address", contractx.RouteUsers},
		{"hello", ""},
	}
	for _, tc := range cases {
		if got := matchKeywords(tc.query); got != tc.want {
			t.Fatalf("matchKeywords(%q) = %q, want %q", tc.query, got, tc.want)
		}
	}
}

func TestHintForFollowUp(t *testing.T) {
	t.Parallel()

	history := []contractx.Turn{
		{Role: contractx.RoleUser, Content: "show my cart"},
		{Role: contractx.RoleAssistant, Content: "Your cart has 2 items."},
		{Role: contractx.RoleUser, Content: "thanks"},
		{Role: contractx.RoleAssistant, Content: "Anything else?"},
	}

	if got := hintFor("remove that one", history); got != contractx.RouteCarts {
		t.Fatalf("follow-up hint = %q, want carts", got)
	}
	if got := hintFor("good morning", history); got != "" {
		t.Fatalf("new topic hint = %q, want empty", got)
	}
	if got := hintFor("what about menus there", history); got != contractx.RouteMenu {
		t.Fatalf("keyword hint = %q, want menu", got)
	}
}

func TestExcludeInFlightDropsCurrentTurnAndCaps(t *testing.T) {
	t.Parallel()

	history := make([]contractx.Turn, 0, 10)
	for i := 0; i < 9; i++ {
		history = append(history, contractx.Turn{Role: contractx.RoleAssistant, Content: "a", Timestamp: int64(i)})
	}
	history = append(history, contractx.Turn{Role: contractx.RoleUser, Content: "current", Timestamp: 9})

	got := excludeInFlight(history, "current")
	if len(got) != maxHistoryTurns {
		t.Fatalf("len = %d, want %d", len(got), maxHistoryTurns)
	}
	if got[len(got)-1].Timestamp != 8 {
		t.Fatalf("last turn = %+v", got[len(got)-1])
	}

	kept := excludeInFlight(history[:3], "something else")
	if len(kept) != 3 {
		t.Fatalf("len = %d, want 3", len(kept))
	}
}

func TestGuardIdentityShortCircuitsAnonymousUserScope(t *testing.T) {
	t.Parallel()

	st, err := GuardIdentity(&GraphState{Req: contractx.RouteRequest{Query: "track my payment"}})
	if err != nil {
		t.Fatalf("GuardIdentity() error = %v", err)
	}
	if !st.ShortCircuit || st.Route != contractx.RouteAuthRequired {
		t.Fatalf("unexpected state: %+v", st)
	}

	st, err = GuardIdentity(&GraphState{Req: contractx.RouteRequest{Query: "track my payment", Identity: "3"}})
	if err != nil {
		t.Fatalf("GuardIdentity() error = %v", err)
	}
	if st.ShortCircuit || st.Hint != contractx.RoutePayments {
		t.Fatalf("unexpected state: %+v", st)
	}

	st, err = GuardIdentity(&GraphState{Req: contractx.RouteRequest{Query: "sign up for a new account"}})
	if err != nil {
		t.Fatalf("GuardIdentity() error = %v", err)
	}
	if st.ShortCircuit {
		t.Fatal("identity creation must not short-circuit")
	}
}
