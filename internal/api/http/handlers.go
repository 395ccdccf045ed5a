package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/scriptgate/internal/broker"
	"github.com/GriffinCanCode/scriptgate/internal/domain/metadata"
	"github.com/GriffinCanCode/scriptgate/internal/domain/scripts"
	"github.com/GriffinCanCode/scriptgate/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scriptgate/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/scriptgate/internal/providers/notify"
)

// Version is reported by the root and health endpoints.
const Version = broker.HandlerVersion

// PermissionStore is where user connect grants live.
type PermissionStore interface {
	ListPermissions(scriptID string) []scripts.UserPermission
	PutPermission(scriptID, domain string, allow bool) (scripts.UserPermission, error)
	DeletePermission(scriptID, domain string) error
}

// SessionLister lists open channels.
type SessionLister interface {
	List() []string
	Has(id string) bool
}

// NotificationHistory is the notification surface as the API sees it.
type NotificationHistory interface {
	History() []notify.Notification
	Dismiss(id string) bool
}

// Handlers contains all HTTP handlers
type Handlers struct {
	scripts       *scripts.Manager
	broker        *broker.Broker
	permissions   PermissionStore
	sessions      SessionLister
	notifications NotificationHistory
	updates       scripts.UpdateSource
	breaker       *resilience.Breaker
	metrics       *monitoring.Metrics
	logger        *zap.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(manager *scripts.Manager, b *broker.Broker, permissions PermissionStore, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		scripts:     manager,
		broker:      b,
		permissions: permissions,
		logger:      logger,
	}
}

// WithSessions enables the session routes.
func (h *Handlers) WithSessions(s SessionLister) *Handlers {
	h.sessions = s
	return h
}

// WithNotifications enables the notification routes.
func (h *Handlers) WithNotifications(n NotificationHistory) *Handlers {
	h.notifications = n
	return h
}

// WithUpdates enables update checks through source.
func (h *Handlers) WithUpdates(source scripts.UpdateSource) *Handlers {
	h.updates = source
	return h
}

// WithBreaker reports the dependency circuit breaker in /health.
func (h *Handlers) WithBreaker(b *resilience.Breaker) *Handlers {
	h.breaker = b
	return h
}

// WithMetrics adds metrics tracking to the handlers
func (h *Handlers) WithMetrics(metrics *monitoring.Metrics) *Handlers {
	h.metrics = metrics
	return h
}

// Register adds every route to r.
func (h *Handlers) Register(r gin.IRouter) {
	h.RegisterPublic(r)
	h.RegisterManagement(r)
}

// RegisterPublic adds the routes that reveal nothing about installed
// scripts or grants.
func (h *Handlers) RegisterPublic(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/schema/invocation", h.Schema)

	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
		r.GET("/metrics/json", h.MetricsSnapshot)
	}
}

// RegisterManagement adds the script, permission, session and
// notification routes. Callers put them behind authentication.
func (h *Handlers) RegisterManagement(r gin.IRouter) {
	r.GET("/scripts", h.ListScripts)
	r.POST("/scripts", h.InstallScript)
	r.POST("/scripts/updates", h.CheckUpdates)
	r.GET("/scripts/:id", h.GetScript)
	r.PUT("/scripts/:id", h.UpdateScript)
	r.DELETE("/scripts/:id", h.DeleteScript)
	r.POST("/scripts/:id/enabled", h.SetEnabled)

	r.GET("/scripts/:id/permissions", h.ListPermissions)
	r.PUT("/scripts/:id/permissions/:domain", h.PutPermission)
	r.DELETE("/scripts/:id/permissions/:domain", h.DeletePermission)

	r.POST("/match", h.Match)

	r.GET("/sessions", h.ListSessions)
	r.GET("/sessions/:id/menu", h.ListMenu)
	r.POST("/sessions/:id/menu/:key", h.TriggerMenu)

	r.GET("/notifications", h.ListNotifications)
	r.DELETE("/notifications/:id", h.DismissNotification)
}

// Root identifies the service
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": broker.HandlerName,
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":             "healthy",
		"scripts":            len(h.scripts.List()),
		"pending_operations": h.broker.Pending(),
	}
	if h.sessions != nil {
		body["sessions"] = len(h.sessions.List())
	}
	if h.breaker != nil {
		state := h.breaker.State()
		body["dependencies"] = gin.H{"circuit": state.String(), "counts": h.breaker.Counts()}
		if state == resilience.StateOpen {
			body["status"] = "degraded"
		}
	}
	c.JSON(http.StatusOK, body)
}

// Schema describes the params of every capability
func (h *Handlers) Schema(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"capabilities": broker.Capabilities(),
		"schemas":      broker.Schemas(),
	})
}

// MetricsSnapshot returns the JSON metrics summary
func (h *Handlers) MetricsSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, scripts.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, metadata.ErrMissingBlock), errors.Is(err, metadata.ErrMissingName):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
