// Package httpapi exposes the REST and WebSocket surface of the service:
// outbound queue control, call history and analytics, the carrier voice
// webhook, the media stream endpoint and knowledge-base management.
package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vocalq/outbound/internal/bridge"
	"github.com/vocalq/outbound/internal/dialer"
	"github.com/vocalq/outbound/internal/health"
	"github.com/vocalq/outbound/internal/knowledge"
	"github.com/vocalq/outbound/internal/observe"
	"github.com/vocalq/outbound/internal/store"
)

// Config assembles the collaborators the API serves. Calls and Dialer are
// required; the remaining fields degrade gracefully when nil (the affected
// routes answer 503 or are not registered).
type Config struct {
	Dialer   *dialer.Dialer
	Calls    store.CallStore
	Searcher *knowledge.Searcher
	Bridge   *bridge.Bridge
	Health   *health.Handler
	Metrics  *observe.Metrics
	Logger   *slog.Logger
}

// Server builds the gin router for the service.
type Server struct {
	cfg Config
}

// New validates cfg and creates a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Dialer == nil {
		return nil, fmt.Errorf("httpapi: nil dialer")
	}
	if cfg.Calls == nil {
		return nil, fmt.Errorf("httpapi: nil call store")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{cfg: cfg}, nil
}

// Router builds the route tree. The returned engine is ready to serve.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if s.cfg.Metrics != nil {
		r.Use(observe.Middleware(s.cfg.Metrics))
	}
	r.Use(corsMiddleware())

	if s.cfg.Health != nil {
		r.GET("/healthz", gin.WrapF(s.cfg.Health.Healthz))
		r.GET("/readyz", gin.WrapF(s.cfg.Health.Readyz))
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.POST("/outbound/start", s.startOutbound)
	api.GET("/outbound/status", s.outboundStatus)

	api.GET("/calls", s.listCalls)
	api.GET("/calls/active", s.activeCalls)
	api.GET("/calls/analytics", s.callAnalytics)
	api.GET("/calls/:id", s.getCall)
	api.POST("/calls/twilio", s.twilioWebhook)

	api.GET("/stream", s.stream)

	api.POST("/knowledge", s.addDocument)
	api.GET("/knowledge", s.listDocuments)
	api.DELETE("/knowledge/:id", s.deleteDocument)

	return r
}

// corsMiddleware allows the browser dashboard to talk to the API from any
// origin. The API carries no cookie auth, so the permissive policy is safe.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// errorDetail is the error payload shape shared by every handler.
func errorDetail(c *gin.Context, status int, detail string) {
	c.JSON(status, gin.H{"detail": detail})
}
