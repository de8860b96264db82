package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopledger/internal/config"
	"github.com/shopledger/internal/logger"
	"github.com/shopledger/internal/provider"

	"github.com/robfig/cron/v3"
)

const (
	JobOrderProgression      = "order_progression"
	JobInventoryCacheCleanup = "inventory_cache_cleanup"
	JobAnalyticsRefresh      = "analytics_refresh"

	defaultJobTimeout = 5 * time.Minute
)

// ErrUnknownJob 未注册的定时任务
var ErrUnknownJob = errors.New("unknown scheduled job")

// JobFunc 定时任务执行体
type JobFunc func(ctx context.Context) error

// Scheduler 周期任务调度器
// 同一任务上一次未结束时跳过本轮，panic 由 cron 恢复
type Scheduler struct {
	cron    *cron.Cron
	jobs    map[string]JobFunc
	timeout time.Duration
	now     func() time.Time

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler 按配置注册订单推进、库存缓存清理与统计刷新任务
func NewScheduler(cfg config.SchedulerConfig, c *provider.Container) (*Scheduler, error) {
	s := newScheduler()
	if c == nil {
		return s, nil
	}
	if c.ProgressionService != nil {
		if err := s.Add(JobOrderProgression, cfg.ProgressionSpec, func(ctx context.Context) error {
			_, err := c.ProgressionService.Sweep(ctx, s.now())
			return err
		}); err != nil {
			return nil, err
		}
	}
	if c.AnalyticsService != nil {
		if err := s.Add(JobInventoryCacheCleanup, cfg.CacheCleanupSpec, c.AnalyticsService.CleanupInventoryCache); err != nil {
			return nil, err
		}
		if err := s.Add(JobAnalyticsRefresh, cfg.AnalyticsRefreshSpec, func(ctx context.Context) error {
			_, err := c.AnalyticsService.Refresh(ctx)
			return err
		}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func newScheduler() *Scheduler {
	cronLogger := logger.CronLogger{}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		), cron.WithLogger(cronLogger)),
		jobs:    map[string]JobFunc{},
		timeout: defaultJobTimeout,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add 注册任务，spec 为空时仅可手动触发
func (s *Scheduler) Add(name string, spec string, job JobFunc) error {
	name = strings.TrimSpace(name)
	if name == "" || job == nil {
		return errors.New("job name and func are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}
	s.jobs[name] = job
	spec = strings.TrimSpace(spec)
	if spec == "" {
		logger.Infow("scheduler_job_manual_only", "job", name)
		return nil
	}
	if _, err := s.cron.AddFunc(spec, func() { _ = s.run(s.ctx, name, job) }); err != nil {
		delete(s.jobs, name)
		return fmt.Errorf("job %s: invalid spec %q: %w", name, spec, err)
	}
	return nil
}

// Jobs 已注册的任务名（排序后）
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunJob 立即执行一次指定任务
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, name, job)
}

func (s *Scheduler) run(ctx context.Context, name string, job JobFunc) error {
	jobCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	startedAt := time.Now()
	if err := job(jobCtx); err != nil {
		logger.Warnw("scheduler_job_failed", "job", name, "error", err, "elapsed", time.Since(startedAt))
		return err
	}
	logger.Debugw("scheduler_job_done", "job", name, "elapsed", time.Since(startedAt))
	return nil
}

// Start 启动调度
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Infow("scheduler_started", "jobs", s.Jobs())
}

// Stop 停止调度并等待运行中的任务结束
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
