package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"neogvm/internal/config"
	"neogvm/internal/service/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRunner 统计各阶段被调用次数
type countingRunner struct {
	mu    sync.Mutex
	calls map[string]int
	order []string
	block chan struct{}
}

func newCountingRunner() *countingRunner {
	return &countingRunner{calls: map[string]int{}}
}

func (r *countingRunner) RunStage(ctx context.Context, name string) ([]*pipeline.StageResult, error) {
	r.mu.Lock()
	r.calls[name]++
	r.order = append(r.order, name)
	block := r.block
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if name == pipeline.StageFetch {
		return nil, errors.New("bridge unavailable")
	}
	return []*pipeline.StageResult{{Stage: name}}, nil
}

func (r *countingRunner) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

func TestIntervals(t *testing.T) {
	got := Intervals(&config.StageIntervals{DiscoverIDs: time.Hour, Fetch: time.Minute})
	assert.Equal(t, time.Hour, got[pipeline.StageDiscoverIDs])
	assert.Equal(t, time.Minute, got[pipeline.StageFetch])
	assert.Equal(t, time.Duration(0), got[pipeline.StageIngest])
}

func TestRunOnStart(t *testing.T) {
	runner := newCountingRunner()
	s := NewSchedulerService(runner, map[string]time.Duration{pipeline.StageFetch: time.Hour}, true)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return runner.count(pipeline.StageIngest) == 1 }, 2*time.Second, 10*time.Millisecond)
	runner.mu.Lock()
	assert.Equal(t, pipeline.Stages, runner.order)
	runner.mu.Unlock()

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, pipeline.StageFetch, jobs[0].Stage)
	assert.False(t, jobs[0].Next.IsZero())
}

func TestStagesRunOnTheirOwnInterval(t *testing.T) {
	runner := newCountingRunner()
	s := NewSchedulerService(runner, map[string]time.Duration{
		pipeline.StageFetch: time.Second,
		pipeline.StageParse: time.Hour,
	}, false)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	// 失败的阶段下一周期照常触发
	assert.Eventually(t, func() bool { return runner.count(pipeline.StageFetch) >= 2 }, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, 0, runner.count(pipeline.StageParse))
	assert.Equal(t, 0, runner.count(pipeline.StageDiscoverIDs))
}

func TestOverlappingRunsAreAllowed(t *testing.T) {
	runner := newCountingRunner()
	runner.block = make(chan struct{})
	s := NewSchedulerService(runner, map[string]time.Duration{pipeline.StageParse: time.Second}, false)
	require.NoError(t, s.Start(context.Background()))

	// 第一次运行一直阻塞，后续触发不等待它
	assert.Eventually(t, func() bool { return runner.count(pipeline.StageParse) >= 2 }, 5*time.Second, 50*time.Millisecond)

	// Stop 取消进行中的运行
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestStartTwice(t *testing.T) {
	s := NewSchedulerService(newCountingRunner(), nil, false)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.Error(t, s.Start(context.Background()))
	assert.Empty(t, s.Jobs())
}

func TestStopWithoutStart(t *testing.T) {
	s := NewSchedulerService(newCountingRunner(), nil, false)
	s.Stop()
}
