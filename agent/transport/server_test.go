package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tanpawarit/food-delivery-assistant/agent/agents/assembler"
	"github.com/tanpawarit/food-delivery-assistant/agent/agents/chat"
	"github.com/tanpawarit/food-delivery-assistant/agent/commerce"
	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
)

type fakeChat struct {
	parts []string
	err   error
	reqs  []contractx.ChatRequest
}

func (f *fakeChat) Chat(ctx context.Context, req contractx.ChatRequest, sink assembler.Sink) (assembler.Result, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return assembler.Result{}, f.err
	}
	ordinal := 0
	for _, p := range f.parts {
		ordinal++
		if err := sink.Send(contractx.Fragment{Ordinal: ordinal, Delta: p}); err != nil {
			return assembler.Result{}, nil
		}
	}
	ordinal++
	_ = sink.Send(contractx.Fragment{Ordinal: ordinal, Terminal: true})
	return assembler.Result{Text: strings.Join(f.parts, ""), Fragments: ordinal}, nil
}

type fakeCommerce struct {
	addErr      error
	checkoutErr error
	added       []commerce.AddItem
	checkouts   []string
}

func (f *fakeCommerce) AddToCart(ctx context.Context, in commerce.AddItem) (commerce.AddResult, error) {
	f.added = append(f.added, in)
	if f.addErr != nil {
		return commerce.AddResult{}, f.addErr
	}
	return commerce.AddResult{CartID: "cart-1", ItemID: "item-1", Price: 150}, nil
}

func (f *fakeCommerce) Checkout(ctx context.Context, userID string) (commerce.Order, error) {
	f.checkouts = append(f.checkouts, userID)
	if f.checkoutErr != nil {
		return commerce.Order{}, f.checkoutErr
	}
	return commerce.Order{ID: "ORD-1", Total: 300, Status: commerce.PaymentStatusPending}, nil
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func signToken(t *testing.T, secret, sub string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return signed
}

func TestHealth(t *testing.T) {
	t.Parallel()

	h := NewRouter(Config{}, Deps{Chat: &fakeChat{}})
	resp := do(t, h, http.MethodGet, "/api/health", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if strings.TrimSpace(resp.Body.String()) != `{"status":"Chat Api is Active"}` {
		t.Fatalf("body = %q", resp.Body.String())
	}
}

func TestReadyReportsFailingCheck(t *testing.T) {
	t.Parallel()

	h := NewRouter(Config{}, Deps{
		Chat: &fakeChat{},
		Checks: map[string]Pinger{
			"postgres": PingFunc(func(context.Context) error { return nil }),
			"cache":    PingFunc(func(context.Context) error { return errors.New("dial tcp: refused") }),
		},
	})

	resp := do(t, h, http.MethodGet, "/api/ready", "", nil)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "degraded" || body.Checks["postgres"] != "ok" || body.Checks["cache"] != "unavailable" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if strings.Contains(resp.Body.String(), "refused") {
		t.Fatal("check error detail leaked")
	}
}

func TestChatStreamsPlainText(t *testing.T) {
	t.Parallel()

	svc := &fakeChat{parts: []string{"1. Toit\n", "2. Truffles"}}
	h := NewRouter(Config{}, Deps{Chat: svc})

	resp := do(t, h, http.MethodPost, "/api/chat", `{"query":"top restaurants","userId":"7"}`, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Fatalf("content type = %q", ct)
	}
	if resp.Body.String() != "1. Toit\n2. Truffles" {
		t.Fatalf("body = %q", resp.Body.String())
	}
	if !resp.Flushed {
		t.Fatal("fragments were not flushed")
	}

	req := svc.reqs[0]
	if req.Query != "top restaurants" || req.Identity != "7" || req.Origin != "192.0.2.1" {
		t.Fatalf("unexpected chat request: %+v", req)
	}
}

func TestChatEmptyQueryIsBadRequest(t *testing.T) {
	t.Parallel()

	h := NewRouter(Config{}, Deps{Chat: &fakeChat{err: chat.ErrInvalidQuery}})
	resp := do(t, h, http.MethodPost, "/api/chat", `{"query":""}`, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}

	resp = do(t, h, http.MethodPost, "/api/chat", `{"query":`, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", resp.Code)
	}
}

func TestChatUsesTokenSubjectWhenSecretSet(t *testing.T) {
	t.Parallel()

	svc := &fakeChat{parts: []string{"ok"}}
	h := NewRouter(Config{JWTSecret: "s3cret"}, Deps{Chat: svc})

	token := signToken(t, "s3cret", "42", time.Now().Add(time.Hour))
	resp := do(t, h, http.MethodPost, "/api/chat", `{"query":"my cart","userId":"7"}`, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if svc.reqs[0].Identity != "42" {
		t.Fatalf("identity = %q, want token subject", svc.reqs[0].Identity)
	}

	resp = do(t, h, http.MethodPost, "/api/chat", `{"query":"my cart","userId":"7"}`, nil)
	if resp.Code != http.StatusOK || svc.reqs[1].Identity != "" {
		t.Fatalf("body identity must be ignored without a token: %q", svc.reqs[1].Identity)
	}
}

func TestChatRejectsBadToken(t *testing.T) {
	t.Parallel()

	svc := &fakeChat{}
	h := NewRouter(Config{JWTSecret: "s3cret"}, Deps{Chat: svc})

	for _, token := range []string{
		signToken(t, "other", "42", time.Now().Add(time.Hour)),
		signToken(t, "s3cret", "42", time.Now().Add(-time.Hour)),
		signToken(t, "s3cret", "", time.Now().Add(time.Hour)),
		"not-a-jwt",
	} {
		resp := do(t, h, http.MethodPost, "/api/chat", `{"query":"hi"}`, map[string]string{
			"Authorization": "Bearer " + token,
		})
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.Code)
		}
	}
	if len(svc.reqs) != 0 {
		t.Fatal("chat must not run for a rejected token")
	}
}

func TestCartRequiresIdentity(t *testing.T) {
	t.Parallel()

	shop := &fakeCommerce{}
	h := NewRouter(Config{}, Deps{Chat: &fakeChat{}, Commerce: shop})

	resp := do(t, h, http.MethodPost, "/api/cart/items", `{"menuId":"m1","quantity":1}`, nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	if len(shop.added) != 0 {
		t.Fatal("commerce must not run without identity")
	}

	resp = do(t, h, http.MethodPost, "/api/cart/items", `{"userId":"7","menuId":"m1","quantity":2}`, nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	if shop.added[0].UserID != "7" || shop.added[0].MenuID != "m1" || shop.added[0].Quantity != 2 {
		t.Fatalf("unexpected item: %+v", shop.added[0])
	}
}

func TestCheckoutMapsErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusCreated},
		{commerce.ErrEmptyCart, http.StatusConflict},
		{contractx.NewStoreFailure("commerce.checkout", errors.New("deadlock detected")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		shop := &fakeCommerce{checkoutErr: tc.err}
		h := NewRouter(Config{}, Deps{Chat: &fakeChat{}, Commerce: shop})

		resp := do(t, h, http.MethodPost, "/api/orders", `{"userId":"7"}`, nil)
		if resp.Code != tc.want {
			t.Fatalf("err %v: expected %d, got %d", tc.err, tc.want, resp.Code)
		}
		if strings.Contains(resp.Body.String(), "deadlock") {
			t.Fatal("store detail leaked")
		}
	}
}

func TestCommerceRoutesAbsentWithoutService(t *testing.T) {
	t.Parallel()

	h := NewRouter(Config{}, Deps{Chat: &fakeChat{}})
	resp := do(t, h, http.MethodPost, "/api/orders", `{"userId":"7"}`, nil)
	if resp.Code != http.StatusNotFound && resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected commerce routes to be absent, got %d", resp.Code)
	}
}
