package admin

import (
	"errors"
	"time"

	"github.com/shopledger/internal/http/response"
	"github.com/shopledger/internal/worker"

	"github.com/gin-gonic/gin"
)

// ListJobs 可手动触发的后台任务
func (h *Handler) ListJobs(c *gin.Context) {
	if h.Scheduler == nil {
		response.Success(c, []string{})
		return
	}
	response.Success(c, h.Scheduler.Jobs())
}

// RunJob 立即执行一次后台任务
func (h *Handler) RunJob(c *gin.Context) {
	if h.Scheduler == nil {
		respondError(c, response.CodeInternal, "scheduler unavailable", nil)
		return
	}
	name := c.Param("name")
	started := time.Now()
	if err := h.Scheduler.RunJob(c.Request.Context(), name); err != nil {
		if errors.Is(err, worker.ErrUnknownJob) {
			response.NotFound(c, "job not found")
			return
		}
		respondError(c, response.CodeInternal, "job run failed", err)
		return
	}
	requestLog(c).Infow("admin_job_triggered", "admin_id", currentAdminID(c), "job", name)
	response.Success(c, gin.H{
		"job":         name,
		"duration_ms": time.Since(started).Milliseconds(),
	})
}
