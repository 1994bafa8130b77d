package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/config"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/consumer"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/db"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/handlers"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/logging"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/metrics"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/publisher"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/server"
)

const serviceName = "customer-service"

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

	if err := database.EnsureSchema(ctx, db.CustomerSchema); err != nil {
		logger.Fatal("failed to apply schema", zap.Error(err))
	}

	// Connect to RabbitMQ
	rabbitMQ, err := messaging.NewRabbitMQ(cfg.RabbitMQ, logger)
	if err != nil {
		logger.Fatal("failed to connect to RabbitMQ", zap.Error(err))
	}
	defer rabbitMQ.Close()

	customerRepo := db.NewCustomerRepository(database)

	// Refunds the sales service could not apply inline arrive here
	if err := rabbitMQ.DeclareQueue(publisher.CompensationFailedQueue); err != nil {
		logger.Fatal("failed to declare queue", zap.Error(err))
	}
	messages, err := rabbitMQ.Consume(publisher.CompensationFailedQueue, 10)
	if err != nil {
		logger.Fatal("failed to start consumer", zap.Error(err))
	}
	go consumer.NewRefundConsumer(customerRepo, logger).Process(ctx, messages)

	m := metrics.New("customer_service")
	router, err := server.NewEngine(cfg, logger, m)
	if err != nil {
		logger.Fatal("failed to build router", zap.Error(err))
	}

	health := handlers.NewHealthHandler(serviceName, map[string]handlers.Pinger{"postgres": database})
	router.GET("/health", health.HealthCheck)
	handlers.NewCustomerHandler(customerRepo).Register(router)

	if err := server.Run(ctx, cfg, logger, server.Consul(cfg, logger), router); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
