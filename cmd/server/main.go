package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/prospect-cadence/internal/api"
	"github.com/ignite/prospect-cadence/internal/config"
	"github.com/ignite/prospect-cadence/internal/domain"
	"github.com/ignite/prospect-cadence/internal/pkg/logger"
	"github.com/ignite/prospect-cadence/internal/queue"
	"github.com/ignite/prospect-cadence/internal/repository/postgres"
	"github.com/ignite/prospect-cadence/internal/warmup"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %w", port, addr, err)
	}
	return ln.Close()
}

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		fatal("failed to load config", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		fatal("pre-flight check failed", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		fatal("failed to open database", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime())

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := db.PingContext(pingCtx); err != nil {
		fatal("failed to ping database", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		fatal("failed to ping redis", err)
	}

	store := postgres.NewStore(db)
	q := queue.NewRedisQueue(rdb, cfg.Redis.Prefix)

	steps := make([]domain.WarmupStep, 0, len(cfg.Warmup.Steps))
	for _, s := range cfg.Warmup.Steps {
		steps = append(steps, domain.WarmupStep{FromDay: s.FromDay, ToDay: s.ToDay, Limit: s.Limit})
	}

	handlers := api.NewHandlers(store, q, warmup.NewService(store), api.NewHealthChecker(db, rdb, q), api.Options{
		WebhookSecret: cfg.Server.WebhookSecret,
		DefaultRegion: cfg.Gateway.DefaultRegion,
		WarmupSteps:   steps,
	})
	if cfg.Server.WebhookSecret == "" {
		logger.Warn("webhook secret not set, gateway webhooks are unauthenticated")
	}

	addr := fmt.Sprintf("%s:%d", host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.SetupRoutes(handlers, cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server error", err)
		}
	}()

	<-done
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}

func fatal(msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
