package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/events"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/gateway"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/handlers"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/repository"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/server"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/service"

	_ "github.com/lib/pq"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("starting checkout-service", zap.Int("port", cfg.Server.Port))

	db, err := initDatabase(cfg, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient := repository.NewRedisClient(cfg.Redis)
	defer redisClient.Close()

	orderRepo := repository.NewPostgresOrderRepository(db, logger)
	cartRepo := repository.NewPostgresCartRepository(db, logger)
	inventoryRepo := repository.NewPostgresInventoryRepository(db, logger)
	paymentRepo := repository.NewPostgresPaymentRepository(db, logger)
	documentRepo := repository.NewPostgresDocumentRepository(db, logger)
	idempotencyRepo := repository.NewPostgresIdempotencyRepository(db, logger)
	orderCache := repository.NewRedisOrderCache(redisClient, cfg.Redis.TTL, logger)

	keyRegistry := gateway.NewRedisKeyRegistry(redisClient, cfg.Checkout.IdempotencyTTL)
	cardGateway := gateway.NewCardGateway(keyRegistry, logger)

	publisher := events.NewKafkaPublisher(cfg.Kafka, logger)
	defer publisher.Close()

	documentService := service.NewDocumentService(documentRepo, publisher, logger)

	checkoutService := service.NewCheckoutService(
		cartRepo,
		orderRepo,
		inventoryRepo,
		paymentRepo,
		idempotencyRepo,
		cardGateway,
		documentService,
		publisher,
		orderCache,
		cfg,
		logger,
	)

	orderService := service.NewOrderService(
		orderRepo,
		paymentRepo,
		inventoryRepo,
		cardGateway,
		orderCache,
		publisher,
		cfg,
		logger,
	)

	paymentService := service.NewPaymentService(paymentRepo, cardGateway, logger)

	sweeper := service.NewSweeper(inventoryRepo, idempotencyRepo, cfg.Checkout.SweepInterval, logger)
	sweeper.Start(context.Background())

	h := handlers.NewHandlers(checkoutService, orderService, paymentService, documentService, cfg, logger)
	srv := server.NewServer(cfg, h, logger)

	go func() {
		if err := srv.Run(); err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	sweeper.Stop()

	logger.Info("server exited")
}

func initDatabase(cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.String("name", cfg.Database.Name),
	)

	return db, nil
}
