package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"etf-reversion-bot/config"
	"etf-reversion-bot/internal/api"
	"etf-reversion-bot/internal/auth"
	"etf-reversion-bot/internal/bot"
	"etf-reversion-bot/internal/cache"
	"etf-reversion-bot/internal/database"
	"etf-reversion-bot/internal/events"
	"etf-reversion-bot/internal/learning"
	"etf-reversion-bot/internal/logging"
	"etf-reversion-bot/internal/marketdata"
	"etf-reversion-bot/internal/notification"
	"etf-reversion-bot/internal/portfolio"
	"etf-reversion-bot/internal/scheduler"
	"etf-reversion-bot/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Fatal("failed to load configuration", "error", err.Error())
	}

	logging.SetDefault(logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		Component:  "bot",
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	}))
	log := logging.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Vault fills in secrets the config file leaves empty.
	if cfg.VaultConfig.Enabled {
		vaultClient, err := vault.NewClient(cfg.VaultConfig)
		if err != nil {
			log.Fatal("failed to create vault client", "error", err.Error())
		}
		if err := vaultClient.ApplyOverrides(ctx, cfg); err != nil {
			log.Fatal("failed to load secrets from vault", "error", err.Error())
		}
		log.Info("vault secrets applied")
	}

	db, err := database.NewDB(cfg.DatabaseConfig)
	if err != nil {
		log.Fatal("failed to connect to database", "error", err.Error())
	}
	defer db.Close()

	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := db.RunMigrations(migrateCtx); err != nil {
		cancel()
		log.Fatal("failed to run migrations", "error", err.Error())
	}
	cancel()
	repo := database.NewRepository(db)

	redisCache, err := cache.New(cfg.RedisConfig)
	if err != nil {
		log.Warn("redis unavailable, running without cache", "error", err.Error())
	}
	if redisCache != nil {
		defer redisCache.Close()
	}

	bus := events.NewEventBus()

	notifier := notification.NewManager(cfg.NotificationConfig.Enabled)
	notifier.AddNotifier(notification.NewTelegramNotifier(notification.TelegramConfig{
		BotToken: cfg.NotificationConfig.Telegram.BotToken,
		ChatID:   cfg.NotificationConfig.Telegram.ChatID,
		Enabled:  cfg.NotificationConfig.Telegram.Enabled,
	}))
	notifier.AddNotifier(notification.NewDiscordNotifier(notification.DiscordConfig{
		WebhookURL: cfg.NotificationConfig.Discord.WebhookURL,
		Enabled:    cfg.NotificationConfig.Discord.Enabled,
	}))

	tracker, err := loadOrCreateTracker(ctx, repo, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize portfolio", "error", err.Error())
	}

	provider := marketdata.NewYahooProvider(15*time.Second, cfg.MarketDataConfig.ProxyURL)
	learner := learning.NewLearner(repo, log.WithComponent("learning"))

	engine := bot.NewEngine(bot.Deps{
		Config:   cfg,
		Store:    repo,
		Provider: provider,
		Cache:    redisCache,
		Learner:  learner,
		Tracker:  tracker,
		Bus:      bus,
		Notifier: notifier,
	})
	if err := engine.Init(ctx); err != nil {
		log.Fatal("failed to initialize engine", "error", err.Error())
	}

	var authService *auth.Service
	if cfg.AuthConfig.Enabled {
		authService = auth.NewService(cfg.AuthConfig)
	}

	server := api.NewServer(api.Deps{
		Config:      cfg,
		Engine:      engine,
		Tracker:     tracker,
		Store:       repo,
		Bus:         bus,
		AuthService: authService,
	})
	go func() {
		if err := server.Start(); err != nil {
			log.Error("http server stopped", "error", err.Error())
			stop()
		}
	}()

	var sched *scheduler.Scheduler
	if cfg.SchedulerConfig.Enabled {
		sched = scheduler.New(ctx, cfg.SchedulerConfig, engine)
		if err := sched.Register(); err != nil {
			log.Fatal("failed to register scheduled refreshes", "error", err.Error())
		}
		sched.Start()
	}

	bus.Publish(events.Event{
		Type: events.EventBotStarted,
		Data: map[string]interface{}{"pairs": len(engine.Signals())},
	})
	log.Info("bot started")

	<-ctx.Done()
	log.Info("shutdown signal received")

	bus.Publish(events.Event{Type: events.EventBotStopped})
	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(),
		time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err.Error())
	}

	log.Info("shutdown complete")
}

// loadOrCreateTracker restores the persisted portfolio or seeds a new one
// from the configured initial value.
func loadOrCreateTracker(ctx context.Context, repo *database.Repository, cfg *config.Config, log *logging.Logger) (*portfolio.Tracker, error) {
	plog := zerolog.New(os.Stdout).With().Timestamp().Logger()

	snap, found, err := repo.LoadPortfolio(ctx)
	if err != nil {
		return nil, err
	}
	if found {
		log.Info("portfolio restored",
			"total_value", snap.TotalValue.String(), "positions", len(snap.Positions))
		return portfolio.Restore(snap, plog), nil
	}

	initial := decimal.NewFromFloat(cfg.PortfolioConfig.InitialValue)
	log.Info("seeding new portfolio", "initial_value", initial.String())
	return portfolio.NewTracker(initial, plog), nil
}
