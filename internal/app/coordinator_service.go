package app

import (
	"context"
	"errors"
	"sync"

	"github.com/shopledger/internal/service"
)

// CoordinatorService 缓存失效协调器的后台消费循环
type CoordinatorService struct {
	coordinator *service.CacheCoordinator
	done        chan struct{}
	once        sync.Once
}

// NewCoordinatorService 创建协调器服务
func NewCoordinatorService(coordinator *service.CacheCoordinator) *CoordinatorService {
	return &CoordinatorService{coordinator: coordinator, done: make(chan struct{})}
}

// Name 服务名称
func (s *CoordinatorService) Name() string {
	return "cache_coordinator"
}

// Start 阻塞消费事件直到 ctx 取消
func (s *CoordinatorService) Start(ctx context.Context) error {
	if s == nil || s.coordinator == nil {
		return errors.New("cache coordinator not initialized")
	}
	defer s.once.Do(func() { close(s.done) })
	s.coordinator.Run(ctx)
	return nil
}

// Stop 等待消费循环退出后处理缓冲区剩余事件
func (s *CoordinatorService) Stop(ctx context.Context) error {
	if s == nil || s.coordinator == nil {
		return nil
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.coordinator.Drain(ctx)
	return nil
}
