package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dipeo/dipeo/internal/config"
	"github.com/dipeo/dipeo/internal/conversation"
	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/engine"
	"github.com/dipeo/dipeo/internal/eventbus"
	"github.com/dipeo/dipeo/internal/handler/builtin"
	"github.com/dipeo/dipeo/internal/llm"
	"github.com/dipeo/dipeo/internal/llm/anthropicprovider"
	"github.com/dipeo/dipeo/internal/llm/openaiprovider"
	"github.com/dipeo/dipeo/internal/llm/tools"
	"github.com/dipeo/dipeo/internal/observability"
	"github.com/dipeo/dipeo/internal/storage/pgeventstore"
	"github.com/dipeo/dipeo/internal/transport/rest"
	"github.com/dipeo/dipeo/internal/transport/ws"
)

func main() {
	var (
		port       = flag.String("port", "", "server port (overrides config)")
		jwtSecret  = flag.String("jwt-secret", "", "HMAC secret enabling JWT auth on the websocket stream; empty allows unauthenticated connections")
		maxParallel = flag.Int("max-parallel", 0, "max handlers dispatched concurrently per tick (overrides config)")
	)
	flag.Parse()

	cfg := config.Load()
	if *port != "" {
		cfg.Port = *port
	}
	if *maxParallel > 0 {
		cfg.MaxParallel = *maxParallel
	}

	log := observability.Setup(cfg.LogLevel)
	log.Info().Str("port", cfg.Port).Int("max_parallel", cfg.MaxParallel).Msg("starting dipeo execution engine")

	var store *pgeventstore.Store
	var eventStore engine.EventStore
	if cfg.DatabaseDSN != "" {
		store = pgeventstore.New(cfg.DatabaseDSN)
		ctx := context.Background()
		if err := store.InitSchema(ctx); err != nil {
			log.Error().Err(err).Msg("failed to initialize event store schema")
			os.Exit(1)
		}
		log.Info().Str("dsn", maskDSN(cfg.DatabaseDSN)).Msg("event store schema ready")
		eventStore = store
	} else {
		log.Info().Msg("DATABASE_DSN not set, running without durable event persistence")
	}

	router := llm.NewRouter()
	router.Register("anthropic", anthropicprovider.New(resolveAPIKey))
	router.Register("openai", openaiprovider.New(resolveAPIKey))

	memorySelector := llm.NewMemorySelector(
		router,
		cfg.LLM,
		cfg.LLM.MemorySelectionService,
		cfg.LLM.MemorySelectionModel,
		domain.ApiKeyID(cfg.LLM.MemorySelectionApiKeyID),
	)

	bus := eventbus.NewInProcessBus()

	// The registry needs a SubDiagramRunner closure before the Engine it
	// will run inside exists, and the Engine needs the registry to exist
	// before it can be built. runner is the tied knot: the registry
	// captures an indirection that calls through runner, and runner is
	// assigned the real implementation once eng is built below, before
	// any request can reach it.
	var runner builtin.Runner
	registry := builtin.NewRegistry(builtin.Deps{
		Conversation:   conversation.New(),
		Router:         router,
		MemorySelector: memorySelector,
		Tools:          tools.NewRegistry(),
		MemoryCfg:      cfg.Memory,
		LLMCfg:         cfg.LLM,
		SubDiagramRunner: func(ctx context.Context, diagramName string, diagramData map[string]any, inputs map[string]any) (map[string]any, error) {
			return runner(ctx, diagramName, diagramData, inputs)
		},
	})

	engCfg := engine.DefaultConfig()
	engCfg.MaxParallel = cfg.MaxParallel
	eng := engine.New(registry, bus, eventStore, engCfg)
	runner = engine.SubDiagramRunner(eng, cfg.BaseDir)

	execLogger := observability.NewExecutionLogger(log)
	logSub := bus.Subscribe(256)
	logCtx, stopLogging := context.WithCancel(context.Background())
	go execLogger.Run(logCtx, logSub)

	var auth ws.Authenticator = ws.NoAuth{}
	if *jwtSecret != "" {
		auth = ws.NewJWTAuth(*jwtSecret)
		log.Info().Msg("websocket stream requires a valid JWT")
	} else {
		log.Warn().Msg("websocket stream running without authentication (no -jwt-secret set)")
	}
	wsHandler := ws.NewHandler(bus, auth, log)

	srv := rest.NewServer(eng, wsHandler, log)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // the websocket stream can run far longer than a diagram's own node timeouts
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", httpServer.Addr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")
	stopLogging()
	logSub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}
	if store != nil {
		store.Close()
	}

	log.Info().Msg("server exited gracefully")
}

// resolveAPIKey resolves an ApiKeyID to a credential via environment
// variable DIPEO_API_KEY_<ID-uppercased, dashes replaced by underscores>,
// deferring actual secret storage
// to whatever the host process's environment already provides rather
// than introducing a secrets store this module doesn't otherwise need.
func resolveAPIKey(id domain.ApiKeyID) (string, error) {
	envName := "DIPEO_API_KEY_" + strings.ToUpper(strings.ReplaceAll(string(id), "-", "_"))
	if key, ok := os.LookupEnv(envName); ok && key != "" {
		return key, nil
	}
	return "", fmt.Errorf("no credential configured for api key id %q (expected env var %s)", id, envName)
}

// maskDSN masks the password segment of a DSN before it reaches a log
// line, in the teacher's scan-for-the-separator style.
func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	start, end := -1, -1
	for i := 0; i < len(dsn); i++ {
		if dsn[i] == ':' && start == -1 && i+1 < len(dsn) && dsn[i+1] != '/' {
			start = i + 1
		}
		if dsn[i] == '@' && start != -1 {
			end = i
			break
		}
	}
	if start != -1 && end != -1 && end > start {
		return dsn[:start] + "***" + dsn[end:]
	}
	return dsn
}
