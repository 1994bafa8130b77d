package discovery

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/config"
)

// Service names registered in Consul.
const (
	CustomerService  = "customer-service"
	InventoryService = "inventory-service"
	SalesService     = "sales-service"
)

// Lookup finds a healthy instance URL. *ConsulClient implements it.
type Lookup interface {
	GetServiceURL(serviceName string) (string, error)
}

// Resolver caches service URLs discovered through Consul and falls back to
// static URLs when Consul is disabled or has no healthy instance.
type Resolver struct {
	lookup    Lookup
	fallbacks map[string]string
	logger    *zap.Logger

	mu   sync.RWMutex
	urls map[string]string
}

// NewResolver builds a resolver for the configured services. lookup may be nil.
func NewResolver(lookup Lookup, services config.ServicesConfig, logger *zap.Logger) *Resolver {
	return NewStaticResolver(lookup, map[string]string{
		CustomerService:  services.CustomerURL,
		InventoryService: services.InventoryURL,
		SalesService:     services.SalesURL,
	}, logger)
}

func NewStaticResolver(lookup Lookup, fallbacks map[string]string, logger *zap.Logger) *Resolver {
	r := &Resolver{
		lookup:    lookup,
		fallbacks: fallbacks,
		logger:    logger,
		urls:      make(map[string]string, len(fallbacks)),
	}
	for name, url := range fallbacks {
		r.urls[name] = url
	}
	r.Refresh()
	return r
}

// ServiceURL returns the current base URL for a service.
func (r *Resolver) ServiceURL(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.urls[name]
}

// Snapshot returns a copy of the current routes.
func (r *Resolver) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.urls))
	for k, v := range r.urls {
		out[k] = v
	}
	return out
}

// Refresh re-resolves every service.
func (r *Resolver) Refresh() {
	for name, fallback := range r.fallbacks {
		url := fallback
		if r.lookup != nil {
			found, err := r.lookup.GetServiceURL(name)
			if err != nil {
				r.logger.Debug("service not in consul, using fallback",
					zap.String("service", name), zap.String("url", fallback), zap.Error(err))
			} else {
				url = found
			}
		}

		r.mu.Lock()
		if r.urls[name] != url {
			r.logger.Info("updated route", zap.String("service", name), zap.String("url", url))
			r.urls[name] = url
		}
		r.mu.Unlock()
	}
}

// Watch refreshes the routes every interval until ctx is done.
func (r *Resolver) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Refresh()
		}
	}
}
