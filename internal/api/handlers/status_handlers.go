package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agrimesh-platform/edge-gateway/pkg/logging"

	"github.com/agrimesh-platform/edge-gateway/internal/application"
)

// StatusHandlers contains handlers for the admin status routes
type StatusHandlers struct {
	service *application.StatusApplicationService
	logger  *logging.Logger
}

// NewStatusHandlers creates a new StatusHandlers
func NewStatusHandlers(service *application.StatusApplicationService, logger *logging.Logger) *StatusHandlers {
	return &StatusHandlers{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers status routes on the router
func (h *StatusHandlers) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/circuits", h.GetCircuits)
	router.GET("/dispatch/stats", h.GetDispatchStats)
}

// GetCircuits returns a snapshot of every registered circuit breaker
func (h *StatusHandlers) GetCircuits(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.CircuitStatus())
}

// GetDispatchStats returns breaker, limiter and cache snapshots in one view
func (h *StatusHandlers) GetDispatchStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.DispatchStats())
}
