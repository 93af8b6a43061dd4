package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanpawarit/food-delivery-assistant/agent/agents/assembler"
	"github.com/tanpawarit/food-delivery-assistant/agent/agents/chat"
	handlerx "github.com/tanpawarit/food-delivery-assistant/agent/agents/handler"
	"github.com/tanpawarit/food-delivery-assistant/agent/agents/router"
	"github.com/tanpawarit/food-delivery-assistant/agent/commerce"
	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
	llmx "github.com/tanpawarit/food-delivery-assistant/agent/llm"
	"github.com/tanpawarit/food-delivery-assistant/agent/memory"
	"github.com/tanpawarit/food-delivery-assistant/agent/policy"
	"github.com/tanpawarit/food-delivery-assistant/agent/sqlgate"
	"github.com/tanpawarit/food-delivery-assistant/agent/transport"
	configx "github.com/tanpawarit/food-delivery-assistant/pkg/config"
	_ "github.com/tanpawarit/food-delivery-assistant/pkg/logger/autoload"
	openrouterx "github.com/tanpawarit/food-delivery-assistant/pkg/openrouter"
	postgresx "github.com/tanpawarit/food-delivery-assistant/pkg/postgres"
	telemetryx "github.com/tanpawarit/food-delivery-assistant/pkg/telemetry"
)

type MemoryConfig struct {
	Backend        string        `default:"upstash"`
	LocalMaxCost   int64         `split_words:"true" default:"67108864"`
	KeyPrefix      string        `split_words:"true" default:"chat:context:"`
	TTL            time.Duration `envconfig:"TTL" default:"5m"`
	MaxTurns       int           `split_words:"true" default:"8"`
	PersistTimeout time.Duration `split_words:"true" default:"3s"`
}

type GateConfig struct {
	QueryTimeout   time.Duration `split_words:"true" default:"5s"`
	KnownValues    int           `split_words:"true" default:"128"`
	KnownValuesTTL time.Duration `envconfig:"KNOWN_VALUES_TTL" default:"10m"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelCfg := configx.MustNew[telemetryx.Config]("OTEL")
	shutdownTracing, err := telemetryx.Setup(ctx, *otelCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracing")
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")
	routerModelCfg := llmCfg.OpenRouterFor(contractx.AgentTypeRouter)
	openRouterClient := openrouterx.NewClient(routerModelCfg)
	if openRouterClient == nil {
		log.Fatal().Msg("failed to initialize openrouter client")
	}
	modelPinger, err := openrouterx.NewPinger(openRouterClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize model readiness check")
	}

	pgCfg := configx.MustNew[postgresx.Config]("POSTGRES")
	db := postgresx.MustOpen(ctx, *pgCfg)
	defer db.Close()

	gateCfg := configx.MustNew[GateConfig]("GATE")
	catalog := policy.Catalog()
	sqlStore, err := sqlgate.NewSQLStore(db.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize query store")
	}
	gate, err := sqlgate.New(catalog, sqlStore,
		sqlgate.WithTimeout(gateCfg.QueryTimeout),
		sqlgate.WithCorrector(sqlgate.NewCorrector(sqlStore, catalog, gateCfg.KnownValues, gateCfg.KnownValuesTTL)),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize query gate")
	}

	memCfg := configx.MustNew[MemoryConfig]("MEMORY")
	cache, closeCache := mustCache(*memCfg)
	defer closeCache()
	memoryStore, err := memory.NewStore(cache,
		memory.WithKeyPrefix(memCfg.KeyPrefix),
		memory.WithTTL(memCfg.TTL),
		memory.WithMaxTurns(memCfg.MaxTurns),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize memory store")
	}

	registry, err := handlerx.NewRegistry(ctx, *llmCfg, gate, catalog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize handlers")
	}
	routeSvc, err := router.New(registry, memoryStore)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize router")
	}
	asm, err := assembler.New(memoryStore, assembler.WithPersistTimeout(memCfg.PersistTimeout))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize assembler")
	}
	chatSvc, err := chat.New(routeSvc, memoryStore, asm)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize chat service")
	}
	shop, err := commerce.NewRepository(db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize commerce repository")
	}

	httpCfg := configx.MustNew[transport.Config]("APP")
	srv := transport.NewServer(*httpCfg, transport.NewRouter(*httpCfg, transport.Deps{
		Chat:     chatSvc,
		Commerce: shop,
		Checks: map[string]transport.Pinger{
			"postgres": transport.PingFunc(db.PingContext),
			"memory":   cache,
			"model":    modelPinger,
		},
	}))

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("chat api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpCfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
}

// mustCache selects the session cache backend named by MEMORY_BACKEND.
func mustCache(memCfg MemoryConfig) (memory.Cache, func()) {
	switch strings.ToLower(strings.TrimSpace(memCfg.Backend)) {
	case "redis":
		redisCfg := configx.MustNew[memory.RedisConfig]("REDIS")
		c, err := memory.NewRedisCache(*redisCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize redis cache")
		}
		return c, func() { _ = c.Close() }
	case "local":
		c, err := memory.NewLocalCache(memCfg.LocalMaxCost)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize local cache")
		}
		log.Warn().Msg("local session cache keeps history per instance only")
		return c, c.Close
	case "upstash", "":
		upstashCfg := configx.MustNew[memory.UpstashRedisConfig]("UPSTASH_REDIS_REST")
		c, err := memory.NewUpstashCache(*upstashCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize upstash cache")
		}
		return c, func() {}
	default:
		log.Fatal().Str("backend", memCfg.Backend).Msg("unknown memory backend")
		return nil, func() {}
	}
}
