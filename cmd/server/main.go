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

	"agri-storefront/config"
	"agri-storefront/internal/api"
	"agri-storefront/internal/backend"
	"agri-storefront/internal/broker"
	"agri-storefront/internal/cart"
	"agri-storefront/internal/checkout"
	"agri-storefront/internal/feed"
	"agri-storefront/internal/redisclient"
	"agri-storefront/internal/service"
	"agri-storefront/internal/store"
	"agri-storefront/internal/util"
	"agri-storefront/internal/verification"
	"agri-storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port))

	tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicStorefront)
	defer producer.Close()
	eventPublisher := broker.NewEventPublisher(producer)

	backendClient := backend.NewClient(cfg.Backend.URL, cfg.Backend.Timeout)
	feedClient := feed.NewClient(cfg.Feed.URL, cfg.Feed.APIKey, 15*time.Second, cfg.Feed.RPS)
	if cfg.Feed.URL == "" || cfg.Feed.APIKey == "" {
		logger.Warn("Transaction feed is not configured, bank transfers will never be confirmed")
	}

	carts := cart.NewManager(cfg.Cart.Namespace, cart.NewRedisPersister(redisClient, cfg.Cart.TTL))
	committer := service.NewOrderCommitter(backendClient, redisClient, eventPublisher, carts, cfg.Cart.ConfirmationTTL)
	checkoutService := service.NewCheckoutService(carts, backendClient, committer, feedClient, eventPublisher, service.CheckoutConfig{
		Bank: checkout.BankAccount{
			BankID:      cfg.Bank.BankID,
			AccountNo:   cfg.Bank.AccountNo,
			AccountName: cfg.Bank.AccountName,
		},
		NoteSuffix: cfg.Bank.NoteSuffix,
		Verification: verification.Config{
			PollInterval: cfg.Verification.PollInterval,
			Timeout:      cfg.Verification.Timeout,
		},
	})
	reconciliationService := service.NewReconciliationService(db)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	go carts.RunEviction(workerCtx, 0, cfg.Cart.IdleEviction)

	consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicStorefront, cfg.Kafka.ConsumerGroup)
	reconciliationWorker := worker.NewReconciliationWorker(consumer, reconciliationService)
	go func() {
		if err := reconciliationWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Reconciliation worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(carts, checkoutService, committer, backendClient, reconciliationService, map[string]api.ReadinessCheck{
		"postgres": db.Ping,
		"redis":    redisClient.Ping,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	checkoutService.Shutdown(shutdownCtx)

	workerCancel()
	if err := reconciliationWorker.Stop(); err != nil {
		logger.Warn("Error stopping worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
