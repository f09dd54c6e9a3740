package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loes-hub/outcome-engine/internal/application/command"
	"github.com/loes-hub/outcome-engine/internal/domain/achievement"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
	"github.com/loes-hub/outcome-engine/internal/infrastructure/persistence/memory"
	"github.com/loes-hub/outcome-engine/pkg/logger"
	"github.com/loes-hub/outcome-engine/pkg/retry"
)

func sampleStore(t *testing.T) *memory.Store {
	t.Helper()
	s, err := memory.Sample()
	require.NoError(t, err)
	return s
}

func calcHandler(s *memory.Store) *command.CalculateCourseAttainmentHandler {
	return command.NewCalculateCourseAttainmentHandler(s, s, s, nil, nil, logger.Discard(), command.DefaultCalculateCourseAttainmentConfig())
}

type fakeLocker struct {
	held     bool
	released int

	// fail makes the first calls return err.
	fail  int
	err   error
	calls int
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, error) {
	l.calls++
	if l.calls <= l.fail {
		return nil, l.err
	}
	if l.held {
		return nil, nil
	}
	return func(context.Context) error {
		l.released++
		return nil
	}, nil
}

type fakeReports struct {
	saved map[string]any
}

func (r *fakeReports) SaveReport(_ context.Context, job string, report any) error {
	if r.saved == nil {
		r.saved = map[string]any{}
	}
	r.saved[job] = report
	return nil
}

type fakeStats struct{ succeeded, failed, skipped int }

func (s *fakeStats) ObserveRecompute(succeeded, failed, skipped int) {
	s.succeeded, s.failed, s.skipped = succeeded, failed, skipped
}

type sourceSpy struct {
	mu      sync.Mutex
	inner   CourseCalculator
	sources []achievement.Source
	failOn  shared.ID
}

func (s *sourceSpy) Handle(ctx context.Context, cmd command.CalculateCourseAttainmentCommand) (*command.CalculateCourseAttainmentResult, error) {
	s.mu.Lock()
	s.sources = append(s.sources, cmd.Source)
	s.mu.Unlock()
	if cmd.CourseID == s.failOn {
		return nil, errors.New("database unavailable")
	}
	return s.inner.Handle(ctx, cmd)
}

func TestRecomputeAttainment_AllCoursesWithOutcomes(t *testing.T) {
	store := sampleStore(t)
	spy := &sourceSpy{inner: calcHandler(store)}
	locker := &fakeLocker{}
	reports := &fakeReports{}
	stats := &fakeStats{}

	job := NewRecomputeAttainmentJob(store, spy, locker, reports, stats, logger.Discard(), RecomputeAttainmentConfig{Concurrency: 2})
	require.NoError(t, job.Run(context.Background()))

	report := job.LastStats()
	require.NotNil(t, report)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 2, report.Succeeded)
	assert.Zero(t, report.Failed)
	require.Len(t, report.Courses, 2)
	assert.Equal(t, shared.ID(10), report.Courses[0].CourseID)
	assert.Equal(t, "TOUR101", report.Courses[0].CourseCode)
	assert.Equal(t, shared.ID(20), report.Courses[1].CourseID)

	assert.Positive(t, report.ResultsWritten)
	assert.Equal(t, store.ResultCount(), report.ResultsWritten)
	for _, src := range spy.sources {
		assert.Equal(t, achievement.SourceScheduledRecompute, src)
	}

	assert.Equal(t, 1, locker.released)
	assert.Same(t, report, reports.saved[RecomputeAttainmentName])
	assert.Equal(t, 2, stats.succeeded)
}

func TestRecomputeAttainment_ConfiguredCourses(t *testing.T) {
	store := sampleStore(t)
	job := NewRecomputeAttainmentJob(store, calcHandler(store), nil, nil, nil, logger.Discard(), RecomputeAttainmentConfig{
		CourseIDs: []shared.ID{30, 10, 10},
	})
	require.NoError(t, job.Run(context.Background()))

	report := job.LastStats()
	require.Len(t, report.Courses, 2)
	assert.Equal(t, CourseSucceeded, report.Courses[0].Status)
	assert.Equal(t, shared.ID(30), report.Courses[1].CourseID)
	assert.Equal(t, CourseSkipped, report.Courses[1].Status, "courses without outcomes are skipped")
}

func TestRecomputeAttainment_ProgramCourses(t *testing.T) {
	store := sampleStore(t)
	job := NewRecomputeAttainmentJob(store, calcHandler(store), nil, nil, nil, logger.Discard(), RecomputeAttainmentConfig{
		ProgramIDs: []shared.ID{1},
	})
	require.NoError(t, job.Run(context.Background()))

	report := job.LastStats()
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Skipped)
}

func TestRecomputeAttainment_FailureDoesNotAbortRun(t *testing.T) {
	store := sampleStore(t)
	spy := &sourceSpy{inner: calcHandler(store), failOn: 10}
	stats := &fakeStats{}

	job := NewRecomputeAttainmentJob(store, spy, nil, nil, stats, logger.Discard(), RecomputeAttainmentConfig{})
	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 courses failed")

	report := job.LastStats()
	assert.Equal(t, CourseFailed, report.Courses[0].Status)
	assert.Equal(t, "database unavailable", report.Courses[0].Error)
	assert.Equal(t, CourseSucceeded, report.Courses[1].Status)
	assert.Equal(t, 1, stats.failed)
}

func TestRecomputeAttainment_LockHeld(t *testing.T) {
	store := sampleStore(t)
	job := NewRecomputeAttainmentJob(store, calcHandler(store), &fakeLocker{held: true}, nil, nil, logger.Discard(), RecomputeAttainmentConfig{})

	require.NoError(t, job.Run(context.Background()))
	assert.Nil(t, job.LastStats())
	assert.Zero(t, store.ResultCount())
}

func TestRecomputeAttainment_Job(t *testing.T) {
	job := NewRecomputeAttainmentJob(nil, nil, nil, nil, nil, nil, RecomputeAttainmentConfig{})
	assert.Equal(t, "recompute_attainment", job.Name())
	assert.NotEmpty(t, job.Description())
	assert.Equal(t, DefaultRecomputeAttainmentConfig().Concurrency, job.config.Concurrency)
}

func fastLockRetry(j *RecomputeAttainmentJob) {
	j.lockRetrier = retry.LockRetrier(
		retry.WithInitialDelay(time.Millisecond),
		retry.WithMaxDelay(time.Millisecond),
		retry.WithOnRetry(j.logLockRetry),
	)
}

func TestRecomputeAttainment_RetriesTransientLockError(t *testing.T) {
	store := sampleStore(t)
	locker := &fakeLocker{fail: 2, err: retry.Retryable(errors.New("connection reset"))}

	job := NewRecomputeAttainmentJob(store, calcHandler(store), locker, nil, nil, logger.Discard(), RecomputeAttainmentConfig{})
	fastLockRetry(job)
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 3, locker.calls)
	assert.Equal(t, 1, locker.released)
	require.NotNil(t, job.LastStats())
	assert.Equal(t, 2, job.LastStats().Succeeded)
}

func TestRecomputeAttainment_LockErrorNotRetried(t *testing.T) {
	store := sampleStore(t)
	boom := errors.New("NOAUTH Authentication required")
	locker := &fakeLocker{fail: 1, err: boom}

	job := NewRecomputeAttainmentJob(store, calcHandler(store), locker, nil, nil, logger.Discard(), RecomputeAttainmentConfig{})
	fastLockRetry(job)
	err := job.Run(context.Background())

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, locker.calls)
	assert.Nil(t, job.LastStats())
}

func TestRecomputeAttainment_LockRetriesExhausted(t *testing.T) {
	store := sampleStore(t)
	locker := &fakeLocker{fail: 100, err: retry.Retryable(errors.New("i/o timeout"))}

	job := NewRecomputeAttainmentJob(store, calcHandler(store), locker, nil, nil, logger.Discard(), RecomputeAttainmentConfig{})
	fastLockRetry(job)
	err := job.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire lock")
	assert.Equal(t, retry.LockRetrier().Config().MaxAttempts, locker.calls)
}
