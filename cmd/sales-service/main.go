package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/client"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/config"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/consumer"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/db"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/discovery"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/handlers"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/logging"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/metrics"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/publisher"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/purchase"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/server"
)

const serviceName = "sales-service"

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.MustNewLogger(cfg.Service, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL
	database, err := db.NewPostgresDB(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	if err := database.EnsureSchema(ctx, db.SalesSchema); err != nil {
		logger.Fatal("failed to apply schema", zap.Error(err))
	}

	// Connect to RabbitMQ
	rabbitMQ, err := messaging.NewRabbitMQ(cfg.RabbitMQ, logger)
	if err != nil {
		logger.Fatal("failed to connect to RabbitMQ", zap.Error(err))
	}
	defer rabbitMQ.Close()

	purchasePublisher, err := publisher.NewPurchasePublisher(rabbitMQ)
	if err != nil {
		logger.Fatal("failed to create publisher", zap.Error(err))
	}

	// Resolve the customer and inventory services through Consul, falling back to static URLs
	consul := server.Consul(cfg, logger)
	var lookup discovery.Lookup
	if consul != nil {
		lookup = consul
	}
	resolver := discovery.NewResolver(lookup, cfg.Services, logger)
	go resolver.Watch(ctx, 10*time.Second)

	customerClient := client.NewCustomerClient(resolver, cfg.Purchase.CallTimeout)
	inventoryClient := client.NewInventoryClient(resolver, cfg.Purchase.CallTimeout)

	purchaseRepo := db.NewPurchaseRepository(database)
	attemptRepo := db.NewAttemptRepository(database)
	m := metrics.New("sales_service")

	orchestrator := purchase.NewOrchestrator(purchase.Deps{
		Customers: customerClient,
		Inventory: inventoryClient,
		Ledger:    purchaseRepo,
		Attempts:  attemptRepo,
		Events:    purchasePublisher,
		Metrics:   m,
	}, cfg.Purchase)

	messages, err := rabbitMQ.Consume(publisher.LedgerWriteFailedQueue, 10)
	if err != nil {
		logger.Fatal("failed to start consumer", zap.Error(err))
	}
	go consumer.NewLedgerRepairConsumer(purchaseRepo, attemptRepo, logger).Process(ctx, messages)

	router, err := server.NewEngine(cfg, logger, m)
	if err != nil {
		logger.Fatal("failed to build router", zap.Error(err))
	}

	health := handlers.NewHealthHandler(serviceName, map[string]handlers.Pinger{"postgres": database})
	router.GET("/health", health.HealthCheck)
	handlers.NewSalesHandler(orchestrator, inventoryClient).Register(router)

	if err := server.Run(ctx, cfg, logger, consul, router); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
