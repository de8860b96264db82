package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopledger/internal/config"
	"github.com/shopledger/internal/constants"
	"github.com/shopledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestSchedulerAddValidatesSpec(t *testing.T) {
	s := newScheduler()
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Add("manual", "", noop))
	require.Error(t, s.Add("manual", "", noop))
	require.Error(t, s.Add("broken", "every now and then", noop))
	require.Error(t, s.Add("", "@hourly", noop))
	require.Error(t, s.Add("nil_func", "@hourly", nil))
	assert.Equal(t, []string{"manual"}, s.Jobs())
}

func TestSchedulerRunJob(t *testing.T) {
	s := newScheduler()
	var calls atomic.Int32
	boom := errors.New("boom")
	require.NoError(t, s.Add("count", "", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Errorf("job context should carry a deadline")
		}
		calls.Add(1)
		return nil
	}))
	require.NoError(t, s.Add("fail", "", func(context.Context) error { return boom }))

	require.NoError(t, s.RunJob(context.Background(), "count"))
	assert.EqualValues(t, 1, calls.Load())
	assert.ErrorIs(t, s.RunJob(context.Background(), "fail"), boom)
	assert.ErrorIs(t, s.RunJob(context.Background(), "missing"), ErrUnknownJob)
}

func TestSchedulerFiresOnSchedule(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newScheduler()
	fired := make(chan struct{}, 1)
	require.NoError(t, s.Add("tick", "@every 1s", func(context.Context) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	}))
	s.Start()

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatalf("scheduled job did not fire")
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
}

func TestOrderProgressionJobAdvancesDueOrders(t *testing.T) {
	c, _ := newWorkerTestContainer(t)
	s, err := NewScheduler(config.SchedulerConfig{}, c)
	require.NoError(t, err)
	order := createTestOrder(t, c, 3, 1)

	// 未到期时不推进
	require.NoError(t, s.RunJob(context.Background(), JobOrderProgression))
	reloaded, err := c.OrderRepo.GetByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStatusPending, reloaded.Status)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, c.DB.Model(&models.Order{}).Where("id = ?", order.ID).Update("next_action_at", past).Error)
	require.NoError(t, s.RunJob(context.Background(), JobOrderProgression))

	reloaded, err = c.OrderRepo.GetByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStatusConfirmed, reloaded.Status)
	require.NotNil(t, reloaded.NextActionAt)
	assert.True(t, reloaded.NextActionAt.After(past))
}

func TestAnalyticsJobsRun(t *testing.T) {
	c, store := newWorkerTestContainer(t)
	s, err := NewScheduler(config.SchedulerConfig{}, c)
	require.NoError(t, err)
	createTestOrder(t, c, 3, 1)

	require.NoError(t, s.RunJob(context.Background(), JobAnalyticsRefresh))
	assert.True(t, store.has(constants.CacheKeyAnalyticsDash))

	require.NoError(t, store.SetJSON(context.Background(), constants.CacheKeyProductsAll, []int{1}, 0))
	require.NoError(t, s.RunJob(context.Background(), JobInventoryCacheCleanup))
	assert.False(t, store.has(constants.CacheKeyProductsAll))
}
