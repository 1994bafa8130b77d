// Package gateway routes public requests to the backend service that owns
// them. Backend URLs come from the discovery resolver and a proxy is rebuilt
// whenever a service moves.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/apperr"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/discovery"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/logging"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/middleware"
)

// Routes supplies backend base URLs. *discovery.Resolver implements it.
type Routes interface {
	ServiceURL(name string) string
	Snapshot() map[string]string
}

// Prefixes maps each public path prefix to the service that serves it.
var Prefixes = map[string]string{
	"/customers": discovery.CustomerService,
	"/items":     discovery.InventoryService,
	"/sales":     discovery.SalesService,
	"/purchases": discovery.SalesService,
}

type route struct {
	target string
	proxy  *httputil.ReverseProxy
}

type Gateway struct {
	routes Routes
	logger *zap.Logger
	client *http.Client

	mu      sync.Mutex
	proxies map[string]route
}

func New(routes Routes, logger *zap.Logger, healthTimeout time.Duration) *Gateway {
	return &Gateway{
		routes:  routes,
		logger:  logger,
		client:  &http.Client{Timeout: healthTimeout},
		proxies: make(map[string]route),
	}
}

func writeError(w http.ResponseWriter, e *apperr.Error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(apperr.HTTPStatus(e.Code))
	_ = json.NewEncoder(w).Encode(e)
}

func unavailable(service string, err error) *apperr.Error {
	return apperr.Wrap(err, apperr.CodeServiceUnavailable, service+" unavailable").
		With("service", service)
}

// proxy returns the reverse proxy for service, rebuilding it when the
// resolved URL changed since the last request.
func (g *Gateway) proxy(service string) (*httputil.ReverseProxy, error) {
	target := g.routes.ServiceURL(service)
	if target == "" {
		return nil, unavailable(service, fmt.Errorf("no route"))
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.proxies[service]; ok && r.target == target {
		return r.proxy, nil
	}

	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return nil, unavailable(service, fmt.Errorf("invalid url %q", target))
	}

	p := httputil.NewSingleHostReverseProxy(u)
	p.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		g.logger.Warn("proxy error",
			zap.String("service", service),
			zap.String("path", r.URL.Path),
			zap.String("request_id", logging.RequestID(r.Context())),
			zap.Error(err))
		writeError(w, unavailable(service, err))
	}

	g.proxies[service] = route{target: target, proxy: p}
	g.logger.Info("updated proxy", zap.String("service", service), zap.String("url", target))
	return p, nil
}

// Forward proxies the request to service.
func (g *Gateway) Forward(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := g.proxy(service)
		if err != nil {
			status, body := apperr.Response(err)
			c.AbortWithStatusJSON(status, body)
			return
		}
		if id := logging.RequestID(c.Request.Context()); id != "" {
			c.Request.Header.Set(middleware.HeaderRequestID, id)
		}
		g.logger.Debug("routing request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("service", service))
		p.ServeHTTP(c.Writer, c.Request)
	}
}

// Register mounts the proxy routes and the gateway's own endpoints.
func (g *Gateway) Register(r gin.IRoutes) {
	prefixes := make([]string, 0, len(Prefixes))
	for prefix := range Prefixes {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)

	for _, prefix := range prefixes {
		handler := g.Forward(Prefixes[prefix])
		r.Any(prefix, handler)
		r.Any(prefix+"/*path", handler)
	}

	r.GET("/health", g.HealthCheck)
	r.GET("/services", g.ListServices)
}

func (g *Gateway) probe(ctx context.Context, base string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// HealthCheck reports the gateway as degraded when any backend is unhealthy.
func (g *Gateway) HealthCheck(c *gin.Context) {
	services := g.routes.Snapshot()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		statuses = make(map[string]string, len(services))
	)
	for name, base := range services {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state := "unhealthy"
			if g.probe(c.Request.Context(), base) {
				state = "healthy"
			}
			mu.Lock()
			statuses[name] = state
			mu.Unlock()
		}()
	}
	wg.Wait()

	status := "healthy"
	for _, s := range statuses {
		if s != "healthy" {
			status = "degraded"
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"service":  "api-gateway",
		"services": statuses,
	})
}

func (g *Gateway) ListServices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"services": g.routes.Snapshot()})
}
