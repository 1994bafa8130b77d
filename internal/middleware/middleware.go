// Package middleware provides the gin request pipeline stages shared by the
// services. Stages are selected and ordered by configuration; see Build.
package middleware

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/apperr"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/config"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/logging"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/metrics"
)

const (
	HeaderRequestID  = "X-Request-ID"
	HeaderAPIVersion = "API-Version"

	ContextAPIVersion = "api_version"
)

// Stage names accepted in middleware.stages.
const (
	StageRequestID  = "request_id"
	StageRecovery   = "recovery"
	StageLogging    = "logging"
	StageMetrics    = "metrics"
	StageAPIVersion = "api_version"
)

// Deps are what the stages may need.
type Deps struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	API     config.APIConfig
}

// Build returns the configured stages in order.
func Build(stages []string, deps Deps) ([]gin.HandlerFunc, error) {
	handlers := make([]gin.HandlerFunc, 0, len(stages))
	for _, stage := range stages {
		switch stage {
		case StageRequestID:
			handlers = append(handlers, RequestID())
		case StageRecovery:
			handlers = append(handlers, Recovery(deps.Logger))
		case StageLogging:
			handlers = append(handlers, Logger(deps.Logger))
		case StageMetrics:
			handlers = append(handlers, Metrics(deps.Metrics))
		case StageAPIVersion:
			handlers = append(handlers, APIVersion(deps.API))
		default:
			return nil, fmt.Errorf("unknown middleware stage %q", stage)
		}
	}
	return handlers, nil
}

func abort(c *gin.Context, err error) {
	status, body := apperr.Response(err)
	c.AbortWithStatusJSON(status, body)
}

// RequestID propagates X-Request-ID, generating one when absent.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)
		c.Request = c.Request.WithContext(logging.ContextWithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// Recovery turns a panic into a logged INTERNAL_ERROR response.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
					zap.String("request_id", logging.RequestID(c.Request.Context())),
					zap.Stack("stack"))
				abort(c, apperr.New(apperr.CodeInternal, "internal server error"))
			}
		}()
		c.Next()
	}
}

func quiet(path string) bool {
	return path == "/health" || path == "/metrics"
}

// Logger stores a request-scoped logger in the context and logs each request.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqLogger := logger.With(
			zap.String("request_id", logging.RequestID(c.Request.Context())),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)
		c.Request = c.Request.WithContext(logging.ContextWithLogger(c.Request.Context(), reqLogger))

		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			reqLogger.Error("request failed", fields...)
		case quiet(c.Request.URL.Path):
			reqLogger.Debug("request", fields...)
		default:
			reqLogger.Info("request", fields...)
		}
	}
}

// Metrics records latency and count per matched route.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest(c.Request.Method, route, fmt.Sprint(c.Writer.Status()), time.Since(start))
	}
}

// APIVersion negotiates the API-Version header. A missing header selects the
// default version; an unsupported one is rejected with INVALID_VERSION.
func APIVersion(api config.APIConfig) gin.HandlerFunc {
	def := api.DefaultVersion
	if def == "" && len(api.Versions) > 0 {
		def = api.Versions[0]
	}
	return func(c *gin.Context) {
		version := c.GetHeader(HeaderAPIVersion)
		if version == "" {
			version = def
		}
		if !slices.Contains(api.Versions, version) {
			abort(c, apperr.New(apperr.CodeInvalidVersion, "unsupported API version").
				With("requested_version", version).
				With("supported_versions", api.Versions))
			return
		}
		c.Set(ContextAPIVersion, version)
		c.Header(HeaderAPIVersion, version)
		c.Next()
	}
}
