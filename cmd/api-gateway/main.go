package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/config"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/discovery"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/gateway"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/logging"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/metrics"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/server"
)

const serviceName = "api-gateway"

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

	consul := server.Consul(cfg, logger)
	var lookup discovery.Lookup
	if consul != nil {
		lookup = consul
	}
	resolver := discovery.NewResolver(lookup, cfg.Services, logger)
	go resolver.Watch(ctx, 10*time.Second)

	router, err := server.NewEngine(cfg, logger, metrics.New("api_gateway"))
	if err != nil {
		logger.Fatal("failed to build router", zap.Error(err))
	}
	gateway.New(resolver, logger, 2*time.Second).Register(router)

	if err := server.Run(ctx, cfg, logger, consul, router); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
