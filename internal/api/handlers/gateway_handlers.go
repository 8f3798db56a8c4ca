package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agrimesh-platform/edge-gateway/pkg/errors"
	"github.com/agrimesh-platform/edge-gateway/pkg/logging"
	"github.com/agrimesh-platform/edge-gateway/pkg/middleware"

	"github.com/agrimesh-platform/edge-gateway/internal/application"
)

// GatewayHandlers contains handlers for the gateway's composition routes
type GatewayHandlers struct {
	service *application.GatewayApplicationService
	logger  *logging.Logger
}

// NewGatewayHandlers creates a new GatewayHandlers
func NewGatewayHandlers(service *application.GatewayApplicationService, logger *logging.Logger) *GatewayHandlers {
	return &GatewayHandlers{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers gateway routes on the router
func (h *GatewayHandlers) RegisterRoutes(router *gin.RouterGroup) {
	fields := router.Group("/fields")
	{
		fields.GET("/:fieldId/overview", h.GetFieldOverview)
		fields.GET("/:fieldId/weather", h.GetFieldWeather)
	}

	farms := router.Group("/farms")
	{
		farms.GET("/:farmId/dashboard", h.GetFarmDashboard)
	}
}

// GetFieldOverview handles the composed field overview
func (h *GatewayHandlers) GetFieldOverview(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	if appErr := middleware.ValidatePathParam(c, "fieldId", "field_id"); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}
	fieldID := c.Param("fieldId")

	middleware.AddSpanAttributes(c, map[string]interface{}{
		"field.id": fieldID,
	})

	query := application.FieldOverviewQuery{
		FieldID:   fieldID,
		CallerKey: middleware.GetCallerKey(c),
	}

	overview, err := h.service.FieldOverview(c.Request.Context(), query)
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok {
			responder.RespondWithAppError(appErr)
		} else {
			responder.RespondWithError(err)
		}
		return
	}

	c.JSON(http.StatusOK, overview)
}

// GetFieldWeather handles the single-target weather passthrough. Pipeline
// failures are not masked here: a rate-limited, circuit-open or timed-out
// call each surfaces with its own error code.
func (h *GatewayHandlers) GetFieldWeather(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	if appErr := middleware.ValidatePathParam(c, "fieldId", "field_id"); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}
	fieldID := c.Param("fieldId")

	middleware.AddSpanAttributes(c, map[string]interface{}{
		"field.id":      fieldID,
		"weather.range": c.Query("range"),
	})

	query := application.FieldWeatherQuery{
		FieldID:   fieldID,
		Range:     c.Query("range"),
		CallerKey: middleware.GetCallerKey(c),
	}

	weather, err := h.service.FieldWeather(c.Request.Context(), query)
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok {
			responder.RespondWithAppError(appErr)
		} else {
			responder.RespondWithError(err)
		}
		return
	}

	c.JSON(http.StatusOK, weather)
}

// GetFarmDashboard handles the composed farm dashboard
func (h *GatewayHandlers) GetFarmDashboard(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	if appErr := middleware.ValidatePathParam(c, "farmId", "farm_id"); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}
	farmID := c.Param("farmId")

	middleware.AddSpanAttributes(c, map[string]interface{}{
		"farm.id": farmID,
	})

	query := application.FarmDashboardQuery{
		FarmID:    farmID,
		CallerKey: middleware.GetCallerKey(c),
	}

	dashboard, err := h.service.FarmDashboard(c.Request.Context(), query)
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok {
			responder.RespondWithAppError(appErr)
		} else {
			responder.RespondWithError(err)
		}
		return
	}

	c.JSON(http.StatusOK, dashboard)
}
