package worker

import (
	"context"
	"errors"

	"github.com/shopledger/internal/config"
	"github.com/shopledger/internal/logger"
	"github.com/shopledger/internal/queue"

	"github.com/hibiken/asynq"
)

// Service 异步队列与定时任务服务
type Service struct {
	name      string
	server    *asynq.Server
	mux       *asynq.ServeMux
	consumer  *Consumer
	scheduler *Scheduler
}

// NewService 创建 worker 服务，队列与调度器至少启用一个
func NewService(cfg *config.Config, consumer *Consumer) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	s := &Service{name: "worker", consumer: consumer}
	if cfg.Queue.Enabled {
		opt, serverCfg := queue.BuildServerConfig(&cfg.Queue)
		serverCfg.Logger = logger.S().Named("asynq")
		s.server = asynq.NewServer(opt, serverCfg)
		s.mux = asynq.NewServeMux()
		consumer.Register(s.mux)
	}
	if cfg.Scheduler.Enabled {
		scheduler, err := NewScheduler(cfg.Scheduler, consumer.Container)
		if err != nil {
			return nil, err
		}
		s.scheduler = scheduler
	}
	if s.server == nil && s.scheduler == nil {
		return nil, errors.New("queue and scheduler both disabled")
	}
	return s, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Scheduler 返回定时任务调度器（未启用时为 nil）
func (s *Service) Scheduler() *Scheduler {
	if s == nil {
		return nil
	}
	return s.scheduler
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || (s.server == nil && s.scheduler == nil) {
		return errors.New("worker not initialized")
	}
	if s.scheduler != nil {
		s.scheduler.Start()
	}
	if s.server != nil {
		if err := s.server.Start(s.mux); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return nil
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	var stopErr error
	if s.scheduler != nil {
		if err := s.scheduler.Stop(ctx); err != nil {
			logger.Warnw("worker_scheduler_stop_failed", "error", err)
			stopErr = err
		}
	}
	if s.server != nil {
		s.server.Shutdown()
	}
	return stopErr
}
