// ACP Gateway - fronts a hotel property management system with the Agent
// Commerce Protocol: signed intents, multi-round negotiation, idempotent
// booking execution.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"acp-gateway/internal/adapter"
	"acp-gateway/internal/config"
	"acp-gateway/internal/handler"
	"acp-gateway/internal/middleware"
	"acp-gateway/internal/negotiation"
	"acp-gateway/internal/pms"
	"acp-gateway/internal/protocol"
	"acp-gateway/internal/registry"
	"acp-gateway/internal/resilience"
	"acp-gateway/internal/store"
	"acp-gateway/internal/trust"
	"acp-gateway/internal/txn"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Initialize structured logger
	logger := initLogger()

	// Load configuration
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("db_path", cfg.DBPath),
		slog.String("pms_base_url", cfg.PMS.BaseURL),
		slog.Bool("redis_cache", cfg.RedisAddr != ""),
	)

	// Open the store and apply seed records
	st, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	if err := seed(ctx, st, cfg); err != nil {
		return fmt.Errorf("seeding store: %w", err)
	}

	// Availability cache: Redis when configured, in-process otherwise
	cache, closeCache, err := newCache(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating cache: %w", err)
	}
	defer closeCache()

	// PMS adapter with circuit breaker, retry, and token refresh
	pmsAdapter := pms.New(adapter.Config{
		BaseURL:      cfg.PMS.BaseURL,
		ClientID:     cfg.PMS.ClientID,
		ClientSecret: cfg.PMS.ClientSecret,
	}, cache, logger)

	// Transaction manager and the trust layer around it
	engine := negotiation.NewEngine(cfg.Policy())
	manager := txn.NewManager(st, pmsAdapter, engine, logger)
	authenticator := trust.NewAuthenticator(st, st, trust.DefaultFloors(), logger)
	reg := registry.New(st, logger)
	validator := &protocol.Validator{MinClientVersion: cfg.MinClientVersion}

	h := handler.New(validator, authenticator, reg, manager, cfg.Policy(), pmsAdapter, logger)

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Apply middleware chain: recovery → logging → protocol → handler
	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.Logging(logger),
		protocol.Middleware(validator, logger),
	)(mux)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Channel for server errors
	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// newCache selects the availability cache implementation. Redis is shared
// across instances; the in-process cache suits a single replica.
func newCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (resilience.AvailabilityCache, func(), error) {
	if cfg.RedisAddr == "" {
		return resilience.NewMemoryCache(), func() {}, nil
	}
	redisCache, err := resilience.NewRedisCache(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("using redis availability cache", slog.String("addr", cfg.RedisAddr))
	return redisCache, func() { redisCache.Close() }, nil
}

// seed registers configured properties and agents. Upserts, so restarting
// with the same config is harmless.
func seed(ctx context.Context, st *store.Store, cfg *config.Config) error {
	for _, p := range cfg.Properties {
		if err := st.UpsertProperty(ctx, &store.Property{
			EntityID: p.EntityID,
			Name:     p.Name,
			IsActive: p.Active,
		}); err != nil {
			return fmt.Errorf("seeding property %s: %w", p.EntityID, err)
		}
	}
	for _, a := range cfg.Agents {
		if err := st.UpsertAgent(ctx, &store.AgentIdentity{
			AgentID:     a.AgentID,
			KeyType:     store.KeyType(a.KeyType),
			KeyMaterial: a.KeyMaterial,
			Reputation:  a.Reputation,
			Status:      store.AgentActive,
		}); err != nil {
			return fmt.Errorf("seeding agent %s: %w", a.AgentID, err)
		}
	}
	return nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
