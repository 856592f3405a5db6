package main

import (
	"context"
	"database/sql"
	"errors"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/prospect-cadence/internal/alert"
	"github.com/ignite/prospect-cadence/internal/antiban"
	"github.com/ignite/prospect-cadence/internal/config"
	"github.com/ignite/prospect-cadence/internal/domain"
	"github.com/ignite/prospect-cadence/internal/gateway"
	"github.com/ignite/prospect-cadence/internal/pkg/distlock"
	"github.com/ignite/prospect-cadence/internal/pkg/logger"
	"github.com/ignite/prospect-cadence/internal/queue"
	"github.com/ignite/prospect-cadence/internal/replygen"
	"github.com/ignite/prospect-cadence/internal/repository/postgres"
	"github.com/ignite/prospect-cadence/internal/warmup"
	"github.com/ignite/prospect-cadence/internal/worker"
)

func main() {
	cfg, err := config.LoadFromEnv(configPath())
	if err != nil {
		fatal("failed to load config", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.Info("starting cadence worker")

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
	logger.Info("connected to database and redis", "redis", cfg.Redis.Addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := postgres.NewStore(db)
	q := queue.NewRedisQueue(rdb, cfg.Redis.Prefix)
	locks := distlock.NewFactory(rdb, db, cfg.Redis.Prefix, cfg.Cadence.LockTTL())
	gw := gateway.NewHTTPClient(cfg.Gateway)
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))

	alerter := buildAlerter(ctx, cfg.Alerts)
	monitor := antiban.NewMonitor(store, alerter, antiban.PolicyFromConfig(cfg.AntiBan))
	warmups := warmup.NewService(store)

	var generator replygen.Generator
	if cfg.Bedrock.Enabled {
		bedrock, err := replygen.NewBedrockGenerator(ctx, cfg.Bedrock)
		if err != nil {
			logger.Error("bedrock generator unavailable, inbound replies go to human review", "error", err)
		} else {
			generator = replygen.WithFallback(bedrock)
			logger.Info("bedrock reply generator ready", "model", cfg.Bedrock.ModelID)
		}
	}

	dispatch := worker.NewDispatchWorker(store, q, locks, rng)
	sender := worker.NewSendWorker(store, gw, q, locks, monitor, alerter, rng)
	replies := worker.NewAutoReplyGate(store, q, generator, alerter, cfg.Cadence.HistoryTurns, rng)
	connections := worker.NewConnectionMonitor(store, gw)

	tasks := map[string]worker.TaskFunc{
		worker.TaskFeed: func(ctx context.Context) error {
			reports, err := dispatch.RunPass(ctx, time.Now())
			if err != nil {
				return err
			}
			queued := 0
			for _, r := range reports {
				queued += r.Scheduled
			}
			logger.Info("dispatch pass finished", "campaigns", len(reports), "queued", queued)
			return nil
		},
		worker.TaskReset: store.ResetDailyCounters,
		worker.TaskWarmup: func(ctx context.Context) error {
			n, err := warmups.AdvanceAll(ctx)
			if err != nil {
				return err
			}
			logger.Info("warm-up ramps advanced", "count", n)
			return nil
		},
		worker.TaskHealth: func(ctx context.Context) error {
			changed, err := connections.Refresh(ctx)
			if err != nil {
				return err
			}
			if cfg.Warmup.AutoStart {
				startMissingWarmups(ctx, store, warmups, warmupSteps(cfg.Warmup))
			}
			tripped := 0
			results, err := monitor.CheckAll(ctx)
			for _, r := range results {
				if r.Verdict == antiban.Trip {
					tripped++
				}
			}
			logger.Info("health sweep finished", "status_changes", changed, "tripped", tripped)
			return err
		},
	}
	orchestrator := worker.NewOrchestrator(q, cfg.Schedules, tasks)

	pools := []*queue.Pool{
		// One consumer: a single send is in flight at any time.
		queue.NewPool(q, queue.MessageSend, sender.Handle,
			queue.WithLimiter(queue.NewRedisLimiter(rdb, cfg.Redis.Prefix+":ratelimit:"+queue.MessageSend, cfg.Cadence.SendInterval())),
			queue.WithPollInterval(cfg.Cadence.PollInterval())),
		queue.NewPool(q, queue.AIReply, replies.Handle,
			queue.WithConcurrency(cfg.Cadence.ReplyConcurrency),
			queue.WithPollInterval(cfg.Cadence.PollInterval())),
		queue.NewPool(q, queue.SchedulerTicks, orchestrator.HandleTick,
			queue.WithPollInterval(cfg.Cadence.PollInterval())),
	}
	for _, p := range pools {
		if err := p.Start(ctx); err != nil {
			fatal("failed to start worker pool", err)
		}
	}
	if err := orchestrator.Start(ctx); err != nil {
		fatal("failed to start orchestrator", err)
	}
	go worker.NewLinkRecoveryWorker(store, worker.DefaultRecoveryInterval, worker.DefaultStaleAge).Start(ctx)
	logger.Info("worker running",
		"send_interval", cfg.Cadence.SendInterval().String(),
		"feed", cfg.Schedules.Feed,
		"reset", cfg.Schedules.Reset,
		"warmup", cfg.Schedules.Warmup,
		"health", cfg.Schedules.Health)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	orchestrator.Stop()
	cancel()
	for _, p := range pools {
		p.Stop()
	}
	logger.Info("worker stopped")
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/config.yaml"
}

func buildAlerter(ctx context.Context, cfg config.AlertsConfig) alert.Alerter {
	alerters := alert.Multi{alert.LogAlerter{}}
	if !cfg.Enabled {
		return alerters
	}
	ses, err := alert.NewSESAlerter(ctx, cfg)
	if err != nil {
		logger.Error("ses alerter unavailable, alerts are logged only", "error", err)
		return alerters
	}
	return append(alerters, ses)
}

func warmupSteps(cfg config.WarmupConfig) []domain.WarmupStep {
	steps := make([]domain.WarmupStep, 0, len(cfg.Steps))
	for _, s := range cfg.Steps {
		steps = append(steps, domain.WarmupStep{FromDay: s.FromDay, ToDay: s.ToDay, Limit: s.Limit})
	}
	return steps
}

// startMissingWarmups enrolls connected accounts that have no ramp yet.
func startMissingWarmups(ctx context.Context, store *postgres.Store, warmups *warmup.Service, steps []domain.WarmupStep) {
	accounts, err := store.ListConnectedAccounts(ctx)
	if err != nil {
		logger.Warn("failed to list connected accounts for warm-up", "error", err)
		return
	}
	for _, a := range accounts {
		_, err := warmups.Start(ctx, a.ID, steps)
		switch {
		case err == nil:
			logger.Info("warm-up started", "account", a.ID)
		case errors.Is(err, warmup.ErrAlreadyStarted):
		default:
			logger.Warn("failed to start warm-up", "account", a.ID, "error", err)
		}
	}
}

func fatal(msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
