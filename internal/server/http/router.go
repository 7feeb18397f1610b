// Package http exposes the triage service over a gin router.
package http

import (
	"net/http"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/config"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/observability"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/server/ports"

	"github.com/gin-gonic/gin"
)

// RouterDeps are the collaborators of NewRouter. Metrics and Tracer may be nil.
type RouterDeps struct {
	Tickets   TicketAPI
	Health    ports.HealthChecker
	Metrics   *observability.MetricsCollector
	Tracer    *observability.TracerProvider
	Server    config.ServerConfig
	StartedAt time.Time
	// Debug keeps gin in debug mode.
	Debug bool
}

// NewRouter creates the HTTP router with all endpoints.
func NewRouter(deps RouterDeps) *gin.Engine {
	if !deps.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	startedAt := deps.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(ObservabilityMiddleware(deps.Tracer, logging.NewComponentLogger("HTTP")))
	engine.Use(CORSMiddleware(deps.Server.CORSOrigins))

	handler := NewAPIHandler(deps.Tickets, deps.Health, WithStartedAt(startedAt))

	engine.GET("/health", handler.HandleHealth)
	if deps.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	limited := engine.Group("/")
	limited.Use(RateLimitMiddleware(RateLimitConfig{
		RequestsPerMinute: deps.Server.RateLimit.RequestsPerMinute,
		Burst:             deps.Server.RateLimit.Burst,
	}))
	limited.POST("/triage", handler.HandleTriage)

	api := limited.Group("/api/v1")
	api.POST("/triage", handler.HandleTriage)
	api.GET("/tickets/:id", handler.HandleGetTicket)
	api.GET("/customers/:id/history", handler.HandleCustomerHistory)
	api.GET("/customers/:id/tickets/open", handler.HandleOpenTickets)
	api.GET("/customers/:id/tickets/active", handler.HandleActiveTickets)

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, apiErrorResponse{Error: "route not found"})
	})
	return engine
}
