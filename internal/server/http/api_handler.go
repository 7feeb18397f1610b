package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/server/app"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/server/ports"

	"github.com/gin-gonic/gin"
)

const defaultMaxTriageBodySize int64 = 1 << 20

// TicketAPI is the application service behind the ticket endpoints.
type TicketAPI interface {
	Triage(ctx context.Context, ticket domain.Ticket) (*app.TriageResponse, error)
	GetTicket(ctx context.Context, ticketID string) (*app.TicketDetail, error)
	History(ctx context.Context, customerID string, limit int) ([]domain.TicketRecord, error)
	OpenTickets(ctx context.Context, customerID string) ([]domain.TicketRecord, error)
	ActiveTickets(ctx context.Context, customerID string) ([]app.ActiveTicket, error)
}

// APIHandler serves the REST endpoints.
type APIHandler struct {
	tickets       TicketAPI
	healthChecker ports.HealthChecker
	startedAt     time.Time
	maxBodySize   int64
	logger        logging.Logger
}

// APIHandlerOption customizes an APIHandler.
type APIHandlerOption func(*APIHandler)

// WithStartedAt sets the process start time reported by /health.
func WithStartedAt(t time.Time) APIHandlerOption {
	return func(h *APIHandler) { h.startedAt = t }
}

// WithMaxTriageBodySize bounds the triage request body.
func WithMaxTriageBodySize(n int64) APIHandlerOption {
	return func(h *APIHandler) {
		if n > 0 {
			h.maxBodySize = n
		}
	}
}

// NewAPIHandler creates the REST handler.
func NewAPIHandler(tickets TicketAPI, healthChecker ports.HealthChecker, opts ...APIHandlerOption) *APIHandler {
	h := &APIHandler{
		tickets:       tickets,
		healthChecker: healthChecker,
		startedAt:     time.Now(),
		maxBodySize:   defaultMaxTriageBodySize,
		logger:        logging.NewComponentLogger("APIHandler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleTriage runs one ticket through the workflow.
func (h *APIHandler) HandleTriage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodySize)

	var ticket domain.Ticket
	if err := c.ShouldBindJSON(&ticket); err != nil {
		h.writeJSONError(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	resp, err := h.tickets.Triage(c.Request.Context(), ticket)
	if err != nil {
		h.writeServiceError(c, "triage failed", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleGetTicket returns a stored ticket and its conversation.
func (h *APIHandler) HandleGetTicket(c *gin.Context) {
	detail, err := h.tickets.GetTicket(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, "failed to load ticket", err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// HandleCustomerHistory lists a customer's tickets, newest first.
func (h *APIHandler) HandleCustomerHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeJSONError(c, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = parsed
	}
	customerID := c.Param("id")
	records, err := h.tickets.History(c.Request.Context(), customerID, limit)
	if err != nil {
		h.writeServiceError(c, "failed to load history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customer_id": customerID, "tickets": records})
}

// HandleOpenTickets lists open ticket rows.
func (h *APIHandler) HandleOpenTickets(c *gin.Context) {
	customerID := c.Param("id")
	records, err := h.tickets.OpenTickets(c.Request.Context(), customerID)
	if err != nil {
		h.writeServiceError(c, "failed to load open tickets", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customer_id": customerID, "tickets": records})
}

// HandleActiveTickets lists activated tickets with their summaries.
func (h *APIHandler) HandleActiveTickets(c *gin.Context) {
	customerID := c.Param("id")
	tickets, err := h.tickets.ActiveTickets(c.Request.Context(), customerID)
	if err != nil {
		h.writeServiceError(c, "failed to load active tickets", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customer_id": customerID, "tickets": tickets})
}

// HandleHealth reports uptime and component status. Any component in
// error turns the response into a 503.
func (h *APIHandler) HandleHealth(c *gin.Context) {
	var components []ports.ComponentHealth
	if h.healthChecker != nil {
		components = h.healthChecker.CheckAll(c.Request.Context())
	}

	status, code := "ok", http.StatusOK
	for _, component := range components {
		switch component.Status {
		case ports.HealthStatusError:
			status, code = "error", http.StatusServiceUnavailable
		case ports.HealthStatusNotReady:
			if status == "ok" {
				status = "degraded"
			}
		}
	}

	c.JSON(code, gin.H{
		"status":         status,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"started_at":     h.startedAt.UTC(),
		"components":     components,
	})
}

func (h *APIHandler) writeServiceError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, app.ErrValidation):
		h.writeJSONError(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, app.ErrNotFound):
		h.writeJSONError(c, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, app.ErrUnavailable):
		h.writeJSONError(c, http.StatusServiceUnavailable, message, err)
	case errors.Is(err, context.Canceled):
		h.writeJSONError(c, 499, "request canceled", err)
	default:
		h.writeJSONError(c, http.StatusInternalServerError, message, err)
	}
}
