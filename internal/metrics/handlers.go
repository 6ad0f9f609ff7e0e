package metrics

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MetricsHandlers provides HTTP handlers for campaign reporting
type MetricsHandlers struct {
	service *Service
}

// NewMetricsHandlers creates new metrics handlers
func NewMetricsHandlers(service *Service) *MetricsHandlers {
	return &MetricsHandlers{
		service: service,
	}
}

// RegisterRoutes registers the metrics routes. The banner segment is
// optional, so each view is registered with and without it.
func (h *MetricsHandlers) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/getAverageMetrics/:campaignId", h.Aggregate)
	router.GET("/getAverageMetrics/:campaignId/:bannerId", h.Aggregate)
	router.GET("/getFullMetrics/:campaignId", h.Raw)
	router.GET("/getFullMetrics/:campaignId/:bannerId", h.Raw)
}

// Aggregate returns the summary statistics of a campaign/banner
func (h *MetricsHandlers) Aggregate(c *gin.Context) {
	campaignID := c.Param("campaignId")
	bannerID := c.Param("bannerId")

	c.JSON(http.StatusOK, h.service.Aggregate(c.Request.Context(), campaignID, bannerID))
}

// Raw returns every session row of a campaign/banner
func (h *MetricsHandlers) Raw(c *gin.Context) {
	campaignID := c.Param("campaignId")
	bannerID := c.Param("bannerId")

	c.JSON(http.StatusOK, h.service.Raw(c.Request.Context(), campaignID, bannerID))
}
