package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"calendar-mcp/internal/calendar"
	"calendar-mcp/internal/config"
	"calendar-mcp/internal/discovery"
	"calendar-mcp/internal/dispatch"
	"calendar-mcp/internal/graph"
	"calendar-mcp/internal/logger"
	"calendar-mcp/internal/registry"
	"calendar-mcp/internal/server"
	"calendar-mcp/internal/tracing"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway HTTP server",
		RunE:  runServe,
	}
	cmd.Flags().String("config", "", "Path to calendar-mcp.yaml")
	cmd.Flags().IntP("port", "p", 0, "Listen port (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	port, _ := cmd.Flags().GetInt("port")

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, log)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	backend, closeBackend, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeBackend()

	reg := registry.New()
	if err := calendar.Register(reg, backend); err != nil {
		return fmt.Errorf("register calendar tools: %w", err)
	}
	d := dispatch.New(reg, dispatch.Options{HandlerTimeout: cfg.Dispatch.HandlerTimeout, Logger: log})
	b := discovery.NewBroadcaster(reg, cfg.Discovery, log)
	srv := server.New(server.Config{
		APIKey:         cfg.Auth.APIKey,
		RequestTimeout: cfg.Dispatch.RequestTimeout,
		MaxBodyBytes:   cfg.Dispatch.MaxBodyBytes,
	}, reg, d, b, log)

	// Cancelling baseCtx ends every open discovery stream so Shutdown can finish.
	baseCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("gateway listening",
			zap.String("addr", httpServer.Addr),
			zap.Bool("tls", cfg.Server.TLS()),
			zap.String("backend", cfg.Calendar.Backend),
			zap.Strings("tools", reg.Names()),
		)
		if cfg.Server.TLS() {
			errCh <- httpServer.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			errCh <- httpServer.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		cancelStreams()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}

// openBackend builds the configured calendar backend, wrapped in the
// availability cache when one is configured. The returned func releases it.
func openBackend(ctx context.Context, cfg *config.Config, log *zap.Logger) (calendar.Backend, func(), error) {
	var (
		backend calendar.Backend
		closers []func()
	)
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Calendar.Backend {
	case config.BackendSQLite:
		store, err := calendar.NewSQLiteStore(cfg.Calendar.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = store.Close() })
		backend = store
	case config.BackendGraph:
		g := cfg.Calendar.Graph
		client := graph.NewWithCredentials(ctx, g.BaseURL, graph.Credentials{
			TenantID:     g.TenantID,
			ClientID:     g.ClientID,
			ClientSecret: g.ClientSecret,
			UserID:       g.UserID,
		}, g.Timeout)
		backend = calendar.NewGraphStore(client)
	default:
		backend = calendar.NewMemoryStore()
	}

	switch cfg.Cache.Driver {
	case config.CacheMemory:
		backend = calendar.WithCache(backend, calendar.NewMemoryCache(cfg.Cache.TTL), log)
	case config.CacheRedis:
		rc := cfg.Cache.Redis
		client := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = client.Close()
			release()
			return nil, nil, fmt.Errorf("connect redis %s: %w", rc.Addr, err)
		}
		closers = append(closers, func() { _ = client.Close() })
		backend = calendar.WithCache(backend, calendar.NewRedisCache(client, rc.Prefix, cfg.Cache.TTL), log)
	}
	return backend, release, nil
}
