package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tanpawarit/food-delivery-assistant/agent/agents/assembler"
	"github.com/tanpawarit/food-delivery-assistant/agent/commerce"
	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
)

type Config struct {
	Addr              string        `envconfig:"ADDR" default:":8080"`
	ReadHeaderTimeout time.Duration `split_words:"true" default:"10s"`
	IdleTimeout       time.Duration `split_words:"true" default:"60s"`
	ShutdownTimeout   time.Duration `split_words:"true" default:"15s"`
	JWTSecret         string        `envconfig:"JWT_SECRET"`
	MaxBodyBytes      int64         `split_words:"true" default:"65536"`
}

type ChatService interface {
	Chat(ctx context.Context, req contractx.ChatRequest, sink assembler.Sink) (assembler.Result, error)
}

type CommerceService interface {
	AddToCart(ctx context.Context, in commerce.AddItem) (commerce.AddResult, error)
	Checkout(ctx context.Context, userID string) (commerce.Order, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// Deps are the services behind the HTTP surface. Commerce and Checks are
// optional.
type Deps struct {
	Chat     ChatService
	Commerce CommerceService
	Checks   map[string]Pinger
}

type server struct {
	cfg      Config
	chat     ChatService
	commerce CommerceService
	checks   map[string]Pinger
	identity *identityResolver
}

func NewRouter(cfg Config, deps Deps) http.Handler {
	s := &server{
		cfg:      cfg,
		chat:     deps.Chat,
		commerce: deps.Commerce,
		checks:   deps.Checks,
		identity: newIdentityResolver(cfg.JWTSecret),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", s.handleHealth)
		api.Get("/ready", s.handleReady)
		api.Post("/chat", s.handleChat)
		if s.commerce != nil {
			api.Post("/cart/items", s.handleAddToCart)
			api.Post("/orders", s.handleCheckout)
		}
	})

	return r
}

// NewServer returns an http.Server for handler. No write timeout is set so
// long streamed answers are not cut off.
func NewServer(cfg Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
