package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleet_service_bot/internal/auth"
	"fleet_service_bot/internal/config"
	"fleet_service_bot/internal/domain"
	"fleet_service_bot/internal/feature/admin"
	"fleet_service_bot/internal/feature/user"
	"fleet_service_bot/internal/fleet"
	"fleet_service_bot/internal/health"
	"fleet_service_bot/internal/logging"
	"fleet_service_bot/internal/notify"
	"fleet_service_bot/internal/session"
	"fleet_service_bot/internal/store"
	"fleet_service_bot/internal/telegram"
	"fleet_service_bot/internal/ticket"
)

const (
	mongoConnectTimeout     = 10 * time.Second
	mongoIndexTimeout       = 5 * time.Second
	mongoDisconnectTimeout  = 5 * time.Second
	adminBootstrapTimeout   = 5 * time.Second
	healthShutdownTimeout   = 5 * time.Second
	telegramShutdownTimeout = 10 * time.Second
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":    "startup",
		"mongo_db": cfg.MongoDB,
	}).Info("configuration loaded")

	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	mongoManager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		logger.WithError(err).Error("mongo connection error")
		fmt.Fprintf(os.Stderr, "mongo connection error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "mongo_connect").Info("connected to mongo")

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
	if err := mongoManager.EnsureBaseIndexes(indexCtx); err != nil {
		cancelIndexes()
		logger.WithError(err).Error("mongo index setup error")
		fmt.Fprintf(os.Stderr, "mongo index setup error: %v\n", err)
		os.Exit(1)
	}
	cancelIndexes()

	logger.WithField("event", "mongo_indexes").Info("ensured base mongo indexes")

	adminRegistrar := admin.NewRegistrar(mongoManager.Users(), logger)
	adminCtx, cancelAdmins := context.WithTimeout(context.Background(), adminBootstrapTimeout)
	if err := adminRegistrar.EnsureAdmins(adminCtx, cfg.AdminIDs); err != nil {
		cancelAdmins()
		logger.WithError(err).Error("admin bootstrap error")
		fmt.Fprintf(os.Stderr, "admin bootstrap error: %v\n", err)
		os.Exit(1)
	}
	cancelAdmins()

	userRepository := domain.NewUserRepository(mongoManager.Users())
	policy := auth.NewPolicy(cfg.AdminIDs, userRepository)
	sequence := store.NewSequence(mongoManager.Counters())
	registry := fleet.NewRegistry(mongoManager.Cars(), sequence, logger)
	dispatcher := notify.NewDispatcher(logger)
	engine := ticket.NewEngine(mongoManager.Services(), sequence, registry, userRepository, policy, dispatcher, logger)
	sessions := session.NewStore(session.DefaultTTL)
	userRegistrar := user.NewRegistrar(mongoManager.Users(), logger)
	statsProvider := store.NewStatsProvider(mongoManager.Users(), mongoManager.Cars(), mongoManager.Services())

	tgClient, err := telegram.NewClient(cfg, logger,
		telegram.WithEngine(engine),
		telegram.WithRegistry(registry),
		telegram.WithPolicy(policy),
		telegram.WithRoleGranter(userRepository),
		telegram.WithUserRegistrar(userRegistrar),
		telegram.WithSessions(sessions),
		telegram.WithStatsProvider(statsProvider),
	)
	if err != nil {
		logger.WithError(err).Error("telegram client setup error")
		fmt.Fprintf(os.Stderr, "telegram client setup error: %v\n", err)
		os.Exit(1)
	}

	dispatcher.Bind(tgClient)

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	healthServer := health.NewServer(cfg.HTTPPort, mongoManager, logger)
	go func() {
		if err := healthServer.ListenAndServe(); err != nil {
			logger.WithError(err).Error("health server error")
		}
	}()

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telegramCtx, cancelTelegram := context.WithCancel(context.Background())
	tgDone := make(chan struct{})

	go func() {
		tgClient.Start(telegramCtx)
		close(tgDone)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping telegram polling")
	case <-tgDone:
		logger.WithField("event", "telegram_stopped_early").Warn("telegram client stopped before shutdown signal")
	}

	cancelTelegram()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-tgDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
	}
	cancelWait()

	dispatcher.Flush()

	healthCtx, cancelHealth := context.WithTimeout(context.Background(), healthShutdownTimeout)
	if err := healthServer.Shutdown(healthCtx); err != nil {
		logger.WithError(err).Error("health server shutdown error")
	}
	cancelHealth()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
	if err := mongoManager.Close(shutdownCtx); err != nil {
		logger.WithError(err).Error("mongo disconnect error")
	} else {
		logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
	}
	cancelShutdown()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}
