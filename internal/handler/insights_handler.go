package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/stockroomhq/stockroom/internal/service"
	"github.com/stockroomhq/stockroom/internal/utils"
)

// InsightsHandler serves the aggregate pages: dashboard, categories,
// low-stock, analytics, and reports.
type InsightsHandler struct {
	insightsService *service.InsightsService
}

// NewInsightsHandler constructs an InsightsHandler.
func NewInsightsHandler(insightsService *service.InsightsService) *InsightsHandler {
	return &InsightsHandler{insightsService: insightsService}
}

// GetDashboard handles GET /v1/dashboard
func (h *InsightsHandler) GetDashboard(c *gin.Context) {
	data, err := h.insightsService.Dashboard(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to build dashboard")
		utils.Error(c, 500, "INTERNAL_ERROR", "Failed to retrieve dashboard")
		return
	}
	utils.Success(c, 200, "Dashboard retrieved", data)
}

// GetCategories handles GET /v1/categories
func (h *InsightsHandler) GetCategories(c *gin.Context) {
	data, err := h.insightsService.Categories(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to build category stats")
		utils.Error(c, 500, "INTERNAL_ERROR", "Failed to retrieve categories")
		return
	}
	utils.Success(c, 200, "Categories retrieved", data)
}

// GetLowStock handles GET /v1/low-stock
func (h *InsightsHandler) GetLowStock(c *gin.Context) {
	data, err := h.insightsService.LowStock(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to build low stock report")
		utils.Error(c, 500, "INTERNAL_ERROR", "Failed to retrieve low stock products")
		return
	}
	utils.Success(c, 200, "Low stock products retrieved", data)
}

// GetAnalytics handles GET /v1/analytics
func (h *InsightsHandler) GetAnalytics(c *gin.Context) {
	data, err := h.insightsService.Analytics(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to build analytics")
		utils.Error(c, 500, "INTERNAL_ERROR", "Failed to retrieve analytics")
		return
	}
	utils.Success(c, 200, "Analytics retrieved", data)
}

// GetInventoryReport handles GET /v1/reports/inventory
func (h *InsightsHandler) GetInventoryReport(c *gin.Context) {
	data, err := h.insightsService.InventoryReport(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to build inventory report")
		utils.Error(c, 500, "INTERNAL_ERROR", "Failed to generate inventory report")
		return
	}
	utils.Success(c, 200, "Inventory report generated", data)
}
