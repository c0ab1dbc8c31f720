package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stock-opportunity-engine/internal/screener/config"
	"stock-opportunity-engine/internal/screener/delivery/consumer"
	delivery "stock-opportunity-engine/internal/screener/delivery/http"
	"stock-opportunity-engine/internal/screener/progress"
	"stock-opportunity-engine/internal/screener/provider"
	"stock-opportunity-engine/internal/screener/repository"
	"stock-opportunity-engine/internal/screener/rules"
	"stock-opportunity-engine/internal/screener/service"
	"stock-opportunity-engine/pkg/common"
	"stock-opportunity-engine/pkg/logger"
	"stock-opportunity-engine/pkg/postgres"
	"stock-opportunity-engine/pkg/redis"
	"stock-opportunity-engine/pkg/telegram"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the screener service",
	Run:   runServe,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Runs one synchronous scan and prints the top recommendations",
	Run:   runScan,
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	appLogger.Info("Starting Stock Opportunity Engine", logger.Field("name", cfg.App.Name))

	db, err := postgres.NewDB(postgresConfig(cfg))
	if err != nil {
		appLogger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}
	if sqlDB, err := db.DB.DB(); err == nil {
		defer sqlDB.Close()
	}

	redisClient, err := redis.NewClient(redis.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		appLogger.Fatal("Failed to initialize Redis", logger.ErrorField(err))
	}
	defer redisClient.Close()

	runRepo := repository.NewRunRepository(db.DB)
	recRepo := repository.NewRecommendationRepository(db.DB)
	cacheRepo := repository.NewFundamentalsCacheRepository(db.DB)

	rulesRepo := rules.NewFileRepository(cfg.Screener.RulesPath)
	tracker := progress.NewTracker()

	var notifier telegram.Notifier = telegram.NoopNotifier{}
	if cfg.Telegram.Enabled {
		notifier, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			appLogger.Fatal("Failed to initialize Telegram notifier", logger.ErrorField(err))
		}
	}

	providerFactory := func(r *rules.Rules) provider.DataProvider {
		return provider.Build(r, provider.Deps{CacheRepo: cacheRepo, Tracker: tracker, Logger: appLogger})
	}

	pipeline := service.NewPipelineService(rulesRepo, runRepo, recRepo, providerFactory, tracker, notifier, appLogger)
	publisher := service.NewScanPublisher(redisClient.Client, cfg.Redis.StreamMaxLen)

	pollingInterval, err := time.ParseDuration(cfg.Screener.PollingInterval)
	if err != nil {
		appLogger.Fatal("Invalid polling interval", logger.ErrorField(err))
	}
	schedulerSvc := service.NewSchedulerService(rulesRepo, publisher, appLogger, pollingInterval)
	go schedulerSvc.Start(ctx)

	scanTimeout, err := time.ParseDuration(cfg.Screener.StreamTimeout)
	if err != nil {
		appLogger.Fatal("Invalid stream timeout", logger.ErrorField(err))
	}
	scanConsumer := consumer.NewRedisConsumer(redisClient.Client, pipeline, appLogger, scanTimeout)
	scanConsumer.Start(ctx)
	defer scanConsumer.Stop()

	e := echo.New()
	e.HideBanner = true

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	apiV1 := e.Group("/api/v1")
	scanHandler := delivery.NewScanHandler(pipeline, publisher, tracker, runRepo, recRepo, appLogger)
	scanHandler.RegisterRoutes(apiV1)
	rulesHandler := delivery.NewRulesHandler(rulesRepo, appLogger)
	rulesHandler.RegisterRoutes(apiV1)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.API.Port)
		appLogger.Info("HTTP server starting", logger.Field("address", addr))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			appLogger.Error("HTTP server failed to start", logger.ErrorField(err))
			stop()
		}
	}()

	<-ctx.Done()

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	appLogger.Info("Server exiting")
}

func runScan(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	db, err := postgres.NewDB(postgresConfig(cfg))
	if err != nil {
		appLogger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}
	if sqlDB, err := db.DB.DB(); err == nil {
		defer sqlDB.Close()
	}

	runRepo := repository.NewRunRepository(db.DB)
	recRepo := repository.NewRecommendationRepository(db.DB)
	cacheRepo := repository.NewFundamentalsCacheRepository(db.DB)
	rulesRepo := rules.NewFileRepository(cfg.Screener.RulesPath)
	tracker := progress.NewTracker()

	providerFactory := func(r *rules.Rules) provider.DataProvider {
		return provider.Build(r, provider.Deps{CacheRepo: cacheRepo, Tracker: tracker, Logger: appLogger})
	}

	pipeline := service.NewPipelineService(rulesRepo, runRepo, recRepo, providerFactory, tracker, telegram.NoopNotifier{}, appLogger)

	result, err := pipeline.RunScan(ctx, common.RunTypeCLIManual)
	if err != nil {
		appLogger.Fatal("Scan failed", logger.ErrorField(err))
	}

	fmt.Printf("Run #%d completed with %d recommendations\n", result.Run.ID, len(result.Recommendations))
	for i, rec := range result.Recommendations {
		if i >= 5 {
			break
		}
		fmt.Printf("%d. %s score=%.2f\n", rec.Rank, rec.Symbol, rec.FinalScore)
	}
}

func postgresConfig(cfg *config.Config) postgres.Config {
	return postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		TimeZone:        cfg.Database.TimeZone,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	}
}

func main() {
	rootCmd := &cobra.Command{Use: "stock-opportunity-engine"}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "Path to the configuration file")

	rootCmd.AddCommand(serveCmd, scanCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing stock-opportunity-engine CLI: %s\n", err)
		os.Exit(1)
	}
}
