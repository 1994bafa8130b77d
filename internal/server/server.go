// Package server wires the pieces every service binary shares: the gin
// engine with its configured middleware, /metrics, Consul registration and
// graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/config"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/discovery"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/metrics"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/middleware"
)

// NewEngine builds a gin engine running the configured middleware stages.
func NewEngine(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*gin.Engine, error) {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	stages, err := middleware.Build(cfg.Middleware.Stages, middleware.Deps{
		Logger:  logger,
		Metrics: m,
		API:     cfg.API,
	})
	if err != nil {
		return nil, err
	}

	engine := gin.New()
	engine.Use(stages...)
	engine.GET("/metrics", gin.WrapH(m.Handler()))
	return engine, nil
}

// Consul connects to Consul when enabled. It returns nil when disabled or
// unreachable; services then run on static URLs.
func Consul(cfg *config.Config, logger *zap.Logger) *discovery.ConsulClient {
	if !cfg.Consul.Enabled {
		return nil
	}
	consul, err := discovery.NewConsulClient(cfg.Consul, logger)
	if err != nil {
		logger.Warn("consul unavailable, using static service URLs", zap.Error(err))
		return nil
	}
	return consul
}

// Run serves engine until ctx is done, then shuts down within the configured
// timeout. The service is registered in Consul while it runs.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger, consul *discovery.ConsulClient, engine http.Handler) error {
	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: engine,
	}

	serverID := fmt.Sprintf("%s-%d", cfg.Service, cfg.HTTP.Port)
	if consul != nil {
		err := consul.Register(discovery.ServiceConfig{
			Name: cfg.Service,
			ID:   serverID,
			Port: cfg.HTTP.Port,
			Tags: []string{"minishop", cfg.Env},
		})
		if err != nil {
			logger.Warn("failed to register with consul", zap.Error(err))
		} else {
			defer func() {
				if err := consul.Deregister(serverID); err != nil {
					logger.Warn("failed to deregister from consul", zap.Error(err))
				}
			}()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
