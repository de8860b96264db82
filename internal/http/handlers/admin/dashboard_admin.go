package admin

import (
	"github.com/shopledger/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetDashboard 仪表盘快照，refresh=true 时跳过缓存
func (h *Handler) GetDashboard(c *gin.Context) {
	force := c.Query("refresh") == "true" || c.Query("refresh") == "1"
	snapshot, err := h.AnalyticsService.Dashboard(c.Request.Context(), force)
	if err != nil {
		respondServiceError(c, err, "dashboard fetch failed")
		return
	}
	response.Success(c, snapshot)
}

// GetCacheStats 缓存失效协调器计数
func (h *Handler) GetCacheStats(c *gin.Context) {
	response.Success(c, gin.H{
		"enabled":     h.Store != nil,
		"coordinator": h.CacheCoordinator.Stats(),
	})
}
