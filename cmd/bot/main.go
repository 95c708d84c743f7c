package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/funpay-tools/steampoints-bot/internal/bot"
	"github.com/funpay-tools/steampoints-bot/internal/config"
	"github.com/funpay-tools/steampoints-bot/internal/funpay"
	adminhttp "github.com/funpay-tools/steampoints-bot/internal/http"
	"github.com/funpay-tools/steampoints-bot/internal/journal"
	"github.com/funpay-tools/steampoints-bot/internal/notify"
	"github.com/funpay-tools/steampoints-bot/internal/observability/metrics"
	"github.com/funpay-tools/steampoints-bot/internal/points"
	"github.com/funpay-tools/steampoints-bot/internal/provider"
	"github.com/funpay-tools/steampoints-bot/internal/state"
	"github.com/funpay-tools/steampoints-bot/pkg/logging"
)

func main() {
	// .env is optional; real deployments configure through the
	// environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	market, err := funpay.New(funpay.Config{
		BaseURL:   cfg.FunPayBaseURL,
		AuthToken: cfg.FunPayAuthToken,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to create funpay client", "error", err)
		os.Exit(1)
	}

	account, err := market.GetAccount(ctx)
	if err != nil {
		logger.Error("failed to fetch funpay account", "error", err)
		os.Exit(1)
	}
	logger.Info("authorized on funpay",
		"account_id", account.ID,
		"username", account.Username,
	)

	gateway, err := provider.New(provider.Config{
		BaseURL: cfg.BSPBaseURL,
		APIKey:  cfg.BSPAPIKey,
		Timeout: cfg.RequestTimeout,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to create provider client", "error", err)
		os.Exit(1)
	}

	var store state.Store
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		store = state.NewRedisStore(rdb, cfg.StateTTL)
		logger.Info("using redis conversation store", "addr", cfg.RedisAddr, "ttl", cfg.StateTTL)
	} else {
		store = state.NewMemoryStore()
		logger.Info("using in-memory conversation store")
	}

	botMetrics := metrics.NewBotMetrics(nil)

	var orderJournal *journal.Journal
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		orderJournal = journal.New(pool, logger)
		logger.Info("order journal enabled")
	}

	sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger)
	alerts := notify.NewService(sender, cfg.OperatorEmail, logger)

	resolver := &points.Resolver{
		MinPoints:      cfg.MinPoints,
		LotMultipliers: cfg.LotMultipliers,
		TitleInference: cfg.TitleInference,
	}

	driver := bot.NewDriver(
		bot.Config{
			CategoryID:           cfg.CategoryID,
			DeactivateCategoryID: cfg.DeactivateCategoryID,
			MinPoints:            cfg.MinPoints,
			AutoRefund:           cfg.AutoRefund,
			AutoDeactivate:       cfg.AutoDeactivate,
			MinBalance:           cfg.BSPMinBalance,
		},
		market, gateway, store, resolver, logger,
		bot.WithAccountID(account.ID),
		bot.WithWorkerCount(cfg.WorkerCount),
		bot.WithMetrics(botMetrics),
		bot.WithJournal(orderJournal),
		bot.WithNotifier(alerts),
	)

	srv := adminhttp.NewServer(adminhttp.ServerConfig{
		Port:      cfg.AdminPort,
		JWTSecret: cfg.AdminJWTSecret,
		Store:     store,
		Logger:    logger,
	})
	go func() {
		logger.Info("admin server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server failed", "error", err)
		}
	}()

	runner := funpay.NewRunner(market, cfg.PollDelay, logger)
	events := runner.Listen(ctx)

	done := make(chan struct{})
	go func() {
		driver.Run(ctx, events)
		close(done)
	}()
	logger.Info("bot started",
		"category_id", cfg.CategoryID,
		"min_points", cfg.MinPoints,
		"workers", cfg.WorkerCount,
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown failed", "error", err)
	}

	select {
	case <-done:
		logger.Info("bot stopped")
	case <-shutdownCtx.Done():
		logger.Error("shutdown timed out", "error", shutdownCtx.Err())
	}
}
