package app

import (
	"errors"
	"fmt"
	"net"

	"github.com/shopledger/internal/config"
	"github.com/shopledger/internal/provider"
	"github.com/shopledger/internal/router"
	"github.com/shopledger/internal/worker"
)

// BuildRunner 构建服务运行器
func BuildRunner(cfg *config.Config, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	if !validMode(mode) {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	container := provider.NewContainer(cfg)

	services := []Service{NewCoordinatorService(container.CacheCoordinator)}

	// 初始化 Worker 服务
	var scheduler *worker.Scheduler
	if mode == ModeAll || mode == ModeWorker {
		consumer := worker.NewConsumer(container)
		workerService, err := worker.NewService(cfg, consumer)
		if err != nil {
			return nil, err
		}
		scheduler = workerService.Scheduler()
		services = append(services, workerService)
	}

	// 初始化 HTTP 服务
	if mode == ModeAll || mode == ModeAPI {
		if scheduler == nil {
			// 仅供后台手动触发任务，不启动定时
			manual, err := worker.NewScheduler(cfg.Scheduler, container)
			if err != nil {
				return nil, err
			}
			scheduler = manual
		}
		engine := router.SetupRouter(cfg, container, scheduler)
		services = append(services, NewHTTPService(cfg.Server, engine))
	}

	return NewRunner(services...), nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}

	opts.Logger.Infow("app_start",
		"addr", net.JoinHostPort(opts.Config.Server.Host, opts.Config.Server.Port),
		"mode", opts.Mode,
		"services", runner.Names(),
	)
	return RunWithOptions(runner, opts)
}
