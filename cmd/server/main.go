package main // Entry point package

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/iliyamo/moderation-escalation/internal/config"
	"github.com/iliyamo/moderation-escalation/internal/database"
	"github.com/iliyamo/moderation-escalation/internal/handler"
	"github.com/iliyamo/moderation-escalation/internal/middleware"
	"github.com/iliyamo/moderation-escalation/internal/queue"
	"github.com/iliyamo/moderation-escalation/internal/router"
	"github.com/iliyamo/moderation-escalation/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	setupLogger(cfg)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, v ...any) {
		log.Info().Str("component", "maxprocs").Msgf(format, v...)
	})); err != nil {
		log.Warn().Err(err).Msg("failed to set GOMAXPROCS")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, dialect, err := database.Connect(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("database connect failed")
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, dialect); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	pc, err := config.LoadPolicyConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid moderation policy")
	}
	rdb := config.NewRedisClient()
	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb)
	svc := service.New(db, dialect, service.Options{
		Policy:              pc.Policy(),
		AllowDegradedWrites: pc.DegradedViolations,
		StrictAudit:         pc.AuditStrict,
		Notifier:            service.NewQueuePublisher(cfg.RabbitMQURL, cfg.NotificationQueue),
		Cache:               cache,
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestID(), middleware.RequestLogger(), echomw.Recover())

	opts := router.Options{JWTSecret: cfg.JWTSecret, StatsCache: cache.Serve(service.StatsCacheKey)}
	if rl := config.LoadRateLimitConfig(); rl.Enabled {
		opts.RateLimit = middleware.NewTokenBucket(rl, rdb)
	}

	router.RegisterRoutes(e, db)
	router.RegisterAPI(e, router.Handlers{
		Moderation:  handler.NewModerationHandler(svc.Moderator, svc.Ledger, svc.Audit),
		Appeals:     handler.NewAppealHandler(svc.Appeals),
		Maintenance: &handler.MaintenanceHandler{Tracker: svc.Tracker},
	}, opts)

	if cfg.ConsumeNotifications {
		go func() {
			if err := queue.StartNotificationConsumer(ctx, cfg.RabbitMQURL, cfg.NotificationQueue); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("component", "notification-consumer").Msg("consumer stopped")
			}
		}()
	}

	addr := ":" + cfg.Port
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Str("driver", cfg.DBDriver).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}

// setupLogger installs the global zerolog logger.  Development runs get the
// human-readable console writer.
func setupLogger(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
