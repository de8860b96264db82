package admin

import (
	"github.com/shopledger/internal/provider"
	"github.com/shopledger/internal/worker"
)

// Handler 后台管理接口处理器入口
// 说明：该处理器仅用于管理端 API。
type Handler struct {
	*provider.Container
	Scheduler *worker.Scheduler
}

// New 创建后台处理器，scheduler 为空时任务接口返回不可用
func New(c *provider.Container, scheduler *worker.Scheduler) *Handler {
	return &Handler{Container: c, Scheduler: scheduler}
}
