package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mymmrac/telego"
	"github.com/rs/zerolog"

	"peergate/internal/config"
	"peergate/internal/database"
	"peergate/internal/gateway"
	"peergate/internal/ledger"
	"peergate/internal/lock"
	"peergate/internal/notify"
	"peergate/internal/orchestrator"
	"peergate/internal/panel"
	"peergate/internal/quota"
	"peergate/internal/repo"
	"peergate/internal/scheduler"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg := config.LoadConfig()

	limits, err := quota.ParseLimits(cfg.PlanLimits)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid PLAN_LIMITS")
	}

	db, err := database.ConnectPostgres(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not connect to database")
	}
	logger.Info().Msg("connected to PostgreSQL")

	rdb, err := database.ConnectRedis(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not connect to redis")
	}
	logger.Info().Msg("connected to Redis")

	var sink notify.Sink = notify.Nop{}
	if cfg.BotToken != "" {
		bot, err := telego.NewBot(cfg.BotToken)
		if err != nil {
			logger.Fatal().Err(err).Msg("could not create bot")
		}
		sink = notify.NewTelegram(bot, logger)
	} else {
		logger.Warn().Msg("TELEGRAM_BOT_TOKEN not set, notifications disabled")
	}

	panelClient := panel.NewClient(cfg.PanelURL, cfg.PanelKey, cfg.PanelTimeout)
	remote := gateway.New(panelClient, gateway.RetryConfig{
		MaxTries:        cfg.GatewayMaxTries,
		InitialInterval: cfg.GatewayRetryBackoff,
	}, logger)

	locks := lock.NewManager(lock.NewRedisStore(rdb), cfg.LockTTL, logger)
	subs := repo.NewGormSubscriptions(db)
	peers := repo.NewGormPeers(db)
	led := ledger.New(subs, logger)

	orch := orchestrator.New(orchestrator.Config{
		Locks:    locks,
		Ledger:   led,
		Peers:    peers,
		Remote:   remote,
		Limits:   limits,
		Sink:     sink,
		LockWait: cfg.LockWait,
		Logger:   logger,
	})

	sched := scheduler.New(scheduler.Config{
		Subs:       subs,
		Orch:       orch,
		Sink:       sink,
		Marker:     notify.NewRedisMarker(rdb),
		Interval:   cfg.SweepInterval,
		NotifyLead: cfg.NotifyLead,
		Logger:     logger,
	})

	reconciler := orchestrator.NewReconciler(locks, peers, remote, cfg.ReconcileInterval, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		reconciler.Run(ctx)
	}()

	logger.Info().Msg("service started successfully")
	<-ctx.Done()

	logger.Info().Msg("shutting down")
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn().Msg("shutdown timed out")
	}
}
