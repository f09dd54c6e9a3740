package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loes-hub/outcome-engine/pkg/logger"
)

type fakeJob struct {
	name  string
	runs  atomic.Int32
	err   error
	block chan struct{}
}

func (j *fakeJob) Name() string        { return j.name }
func (j *fakeJob) Description() string { return "test job" }

func (j *fakeJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

func newTestScheduler() *Scheduler {
	return NewScheduler(SchedulerConfig{Logger: logger.Discard(), TickInterval: 5 * time.Millisecond})
}

func TestParseSchedule(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC)

	tests := []struct {
		spec string
		want time.Time
	}{
		{"6h", base.Add(6 * time.Hour)},
		{"0 2 * * *", time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC)},
		{"*/30 * * * *", time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)},
		{"@daily", time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)},
		{"@every 90m", base.Add(90 * time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			s, err := ParseSchedule(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Next(base))
		})
	}

	for _, bad := range []string{"", "-1h", "61 * * * *", "not a schedule"} {
		_, err := ParseSchedule(bad)
		assert.Error(t, err, bad)
	}
}

func TestRegister(t *testing.T) {
	s := newTestScheduler()
	job := &fakeJob{name: "a"}

	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Hour)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Hour)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&fakeJob{name: "b"}, nil), ErrNilSchedule)

	infos := s.ListJobs()
	require.Len(t, infos, 1)
	assert.Equal(t, "@every 1h0m0s", infos[0].Schedule)
	assert.False(t, infos[0].NextRun.IsZero())
	assert.False(t, s.IsRunning())
}

func TestOnJobComplete_RecordsFailure(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Logger: logger.Discard(), TickInterval: time.Hour, RunOnStart: true})
	boom := errors.New("boom")
	require.NoError(t, s.Register(&fakeJob{name: "a", err: boom}, NewIntervalSchedule(time.Hour)))

	results := make(chan JobResult, 1)
	s.OnJobComplete(func(r JobResult) { results <- r })

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	select {
	case res := <-results:
		assert.ErrorIs(t, res.Error, boom)
		assert.False(t, res.Success)
		assert.Equal(t, "a", res.JobName)
	case <-time.After(time.Second):
		t.Fatal("job did not run on start")
	}

	info := s.ListJobs()[0]
	assert.Equal(t, int64(1), info.RunCount)
	assert.Equal(t, int64(1), info.FailCount)
	require.NotNil(t, info.LastResult)
	assert.ErrorIs(t, info.LastResult.Error, boom)
	assert.True(t, s.IsRunning())
}

func TestStart_RunOnStartAndNoOverlap(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Logger: logger.Discard(), TickInterval: 5 * time.Millisecond, RunOnStart: true})
	job := &fakeJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Millisecond)))

	var mu sync.Mutex
	done := 0
	s.OnJobComplete(func(JobResult) {
		mu.Lock()
		done++
		mu.Unlock()
	})

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.Eventually(t, func() bool { return s.ListJobs()[0].SkipCount > 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), job.runs.Load(), "a running job is not started again")

	assert.True(t, s.ListJobs()[0].Running)

	close(job.block)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return done >= 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}
