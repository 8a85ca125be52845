package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/engagement-hub/config"
	"github.com/alem-hub/engagement-hub/internal/application/command"
	"github.com/alem-hub/engagement-hub/internal/application/escalation"
	"github.com/alem-hub/engagement-hub/internal/application/query"
	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
	"github.com/alem-hub/engagement-hub/internal/infrastructure/external/telegram"
	"github.com/alem-hub/engagement-hub/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/engagement-hub/internal/infrastructure/persistence/postgres"
	redisstore "github.com/alem-hub/engagement-hub/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/engagement-hub/internal/infrastructure/statussync"
	httpserver "github.com/alem-hub/engagement-hub/internal/interface/http"
	"github.com/alem-hub/engagement-hub/pkg/circuitbreaker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the status push channel",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, log)
	},
}

// serve wires the service and blocks until ctx is cancelled or a component
// fails.
func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	log.Info("starting engagementd", "environment", cfg.App.Environment)

	// ─────────────────────────────────────────────────────────────────────────
	// 1. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// ─────────────────────────────────────────────────────────────────────────
	// 2. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var cache *redisstore.Cache
	if cfg.Redis.Enabled {
		cache, err = redisstore.NewCache(ctx, redisstore.Config{
			URL:          cfg.Redis.URL,
			Addr:         cfg.Redis.Addr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   3,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer cache.Close()
		log.Info("redis connected")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STATUS PUSH
	// ─────────────────────────────────────────────────────────────────────────
	hubConfig := statussync.DefaultHubConfig()
	hubConfig.CheckOrigin = originChecker(cfg.HTTP.AllowedOrigins)
	hubConfig.Logger = log
	hub := statussync.NewHub(hubConfig)
	defer hub.Close()

	var (
		publisher   escalation.StatusPublisher = hub
		relay       *statussync.RedisRelay
		sc          *redisstore.StatusCache
		statusCache query.StatusCache
	)
	if cache != nil {
		relay, err = statussync.NewRedisRelay(statussync.RelayConfig{
			Broker: statussync.NewRedisBroker(cache),
			Local:  hub,
			Logger: log,
		})
		if err != nil {
			return err
		}
		defer relay.Close()

		publisher = relay

		sc = redisstore.NewStatusCache(cache, cfg.Engagement.StatusCacheTTL)
		statusCache = sc
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ESCALATION
	// ─────────────────────────────────────────────────────────────────────────
	notifier := mentorNotifier(ctx, cfg, cache, log)

	coordinator := escalation.NewCoordinator(
		store,
		notifier,
		publisher,
		escalation.Config{
			NotifyTimeout:  cfg.Mentor.NotifyTimeout,
			PublishTimeout: cfg.Engagement.PublishTimeout,
		},
		log,
	)
	if sc != nil {
		coordinator.WithStatusInvalidator(sc)
	}

	deps := command.Deps{
		Store:       store,
		Machine:     engagement.NewMachine(engagement.Thresholds{PassScore: cfg.Engagement.PassScore, PassMinutes: cfg.Engagement.PassMinutes}),
		Coordinator: coordinator,
		IDs:         command.UUIDGenerator{},
		Logger:      log,
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HTTP
	// ─────────────────────────────────────────────────────────────────────────
	health := httpserver.NewHealthChecker(cfg.App.Version)
	health.AddCheck("store", httpserver.PingCheck(store))
	if cache != nil {
		health.AddCheck("redis", httpserver.PingCheck(cache))
	}

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.BasePath = cfg.HTTP.BasePath
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute

	server := httpserver.NewServer(httpConfig, httpserver.Dependencies{
		RegisterStudent:      command.NewRegisterStudentHandler(deps),
		DailyCheckIn:         command.NewDailyCheckInHandler(deps),
		ReportViolation:      command.NewReportViolationHandler(deps),
		AssignIntervention:   command.NewAssignInterventionHandler(deps, cfg.Engagement.RejectDuplicateInterventions),
		CompleteIntervention: command.NewCompleteInterventionHandler(deps),
		GetStatus:            query.NewGetStatusHandler(store, statusCache, log),
		GetLogs:              query.NewGetLogsHandler(store),
		StatusStream:         hub,
		Health:               health,
		Logger:               log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 6. RUN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.Start)

	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown", "timeout", cfg.App.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			log.Error("failed to stop HTTP server gracefully", "error", err)
		}
		_ = hub.Close()
		coordinator.Drain()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("engagementd stopped with error", "error", err)
		return err
	}
	log.Info("shutdown completed successfully")
	return nil
}

// openStore returns PostgreSQL when DATABASE_URL is set and the in-memory
// store otherwise.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (engagement.Store, func(), error) {
	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store; data is lost on restart")
		return memory.New(), func() {}, nil
	}

	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL, poolOptions(cfg), log)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Database.AutoMigrate {
		applied, err := postgres.NewMigrator(conn).Up(ctx)
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		log.Info("migrations applied", "count", len(applied))
	}

	log.Info("database connected")
	return postgres.NewStore(conn), conn.Close, nil
}

// mentorNotifier builds the Telegram transport behind a circuit breaker and,
// with Redis, a per-student rate limit.
func mentorNotifier(ctx context.Context, cfg *config.Config, cache *redisstore.Cache, log *slog.Logger) escalation.Notifier {
	if !cfg.MentorEnabled() {
		log.Warn("mentor transport not configured, escalations will be skipped")
		return telegram.NewMentorNotifier(nil, 0, nil, log)
	}

	clientConfig := telegram.DefaultClientConfig(cfg.Mentor.TelegramToken)
	clientConfig.BaseURL = cfg.Mentor.TelegramBaseURL
	clientConfig.Logger = log

	breaker := circuitbreaker.MentorTransportBreaker(
		func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		circuitbreaker.WithFailureThreshold(cfg.Mentor.BreakerThreshold),
		circuitbreaker.WithTimeout(cfg.Mentor.BreakerTimeout),
	)

	client := telegram.NewClient(clientConfig)
	checkCtx, cancel := context.WithTimeout(ctx, cfg.Mentor.NotifyTimeout)
	if err := client.GetMe(checkCtx); err != nil {
		log.Warn("mentor bot token check failed, notifications may fail", "error", err)
	}
	cancel()

	var notifier escalation.Notifier = telegram.NewMentorNotifier(client, cfg.Mentor.ChatID, breaker, log)

	if cache != nil && cfg.Mentor.RateLimit > 0 {
		limiter := redisstore.NewNotifyLimiter(cache, cfg.Mentor.RateLimit, cfg.Mentor.RateWindow)
		notifier = escalation.NewRateLimitedNotifier(notifier, limiter, log)
	}
	return notifier
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
