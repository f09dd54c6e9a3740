// Package jobs contains the scheduled jobs run by the worker.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/loes-hub/outcome-engine/internal/application/command"
	"github.com/loes-hub/outcome-engine/internal/domain/achievement"
	"github.com/loes-hub/outcome-engine/internal/domain/outcome"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
	"github.com/loes-hub/outcome-engine/pkg/logger"
	"github.com/loes-hub/outcome-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOMPUTE ATTAINMENT JOB
// Recomputes the achievement results of every course that has outcomes (or a
// configured subset) so stored results follow late grade changes.
// ══════════════════════════════════════════════════════════════════════════════

// RecomputeAttainmentName is the registered job name.
const RecomputeAttainmentName = "recompute_attainment"

// CourseLister resolves which courses a run covers.
type CourseLister interface {
	ListCourses(ctx context.Context, programID shared.ID) ([]*outcome.Course, error)
	ListCoursesWithOutcomes(ctx context.Context) ([]*outcome.Course, error)
}

// CourseCalculator recomputes one course.
// Implemented by command.CalculateCourseAttainmentHandler.
type CourseCalculator interface {
	Handle(ctx context.Context, cmd command.CalculateCourseAttainmentCommand) (*command.CalculateCourseAttainmentResult, error)
}

// Locker keeps concurrent workers from recomputing at the same time.
// Implemented by redis.Locker. Errors marked retry.Retryable are retried.
type Locker interface {
	TryLock(ctx context.Context, resource string, ttl time.Duration) (func(context.Context) error, error)
}

// ReportStore keeps the report of the last run. Implemented by
// redis.RunReportStore.
type ReportStore interface {
	SaveReport(ctx context.Context, jobName string, report any) error
}

// StatsRecorder exports run tallies. Implemented by metrics.Metrics.
type StatsRecorder interface {
	ObserveRecompute(succeeded, failed, skipped int)
}

// RecomputeAttainmentConfig contains configuration for the job.
type RecomputeAttainmentConfig struct {
	// CourseIDs limits the run to these courses. Takes precedence over
	// ProgramIDs.
	CourseIDs []shared.ID

	// ProgramIDs limits the run to the courses of these programs.
	ProgramIDs []shared.ID

	// Concurrency bounds how many courses are recomputed at once.
	Concurrency int

	// Timeout is the maximum duration of one run. Zero means no limit.
	Timeout time.Duration

	// LockTTL bounds how long the distributed lock is held.
	LockTTL time.Duration
}

// DefaultRecomputeAttainmentConfig returns sensible defaults.
func DefaultRecomputeAttainmentConfig() RecomputeAttainmentConfig {
	return RecomputeAttainmentConfig{
		Concurrency: 4,
		Timeout:     30 * time.Minute,
		LockTTL:     30 * time.Minute,
	}
}

// CourseOutcome is the result of one course in a run.
type CourseOutcome struct {
	CourseID       shared.ID `json:"course_id"`
	CourseCode     string    `json:"course_code,omitempty"`
	Status         string    `json:"status"`
	ResultsWritten int       `json:"results_written"`
	Error          string    `json:"error,omitempty"`
}

// Course statuses in a RunReport.
const (
	CourseSucceeded = "succeeded"
	CourseFailed    = "failed"
	CourseSkipped   = "skipped"
)

// RunReport describes one run of the job.
type RunReport struct {
	RunID          string          `json:"run_id"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    time.Time       `json:"completed_at"`
	Duration       time.Duration   `json:"duration"`
	Succeeded      int             `json:"succeeded"`
	Failed         int             `json:"failed"`
	Skipped        int             `json:"skipped"`
	ResultsWritten int             `json:"results_written"`
	Courses        []CourseOutcome `json:"courses"`
}

// RecomputeAttainmentJob implements scheduler.Job.
type RecomputeAttainmentJob struct {
	courses    CourseLister
	calculator CourseCalculator
	locker     Locker
	reports    ReportStore
	stats      StatsRecorder
	logger     *slog.Logger
	config     RecomputeAttainmentConfig

	lockRetrier *retry.Retrier
	now         func() time.Time
	lastStats   atomic.Value // *RunReport
}

// NewRecomputeAttainmentJob creates the job. locker, reports and stats are
// optional.
func NewRecomputeAttainmentJob(
	courses CourseLister,
	calculator CourseCalculator,
	locker Locker,
	reports ReportStore,
	stats StatsRecorder,
	log *slog.Logger,
	config RecomputeAttainmentConfig,
) *RecomputeAttainmentJob {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultRecomputeAttainmentConfig().Concurrency
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultRecomputeAttainmentConfig().LockTTL
	}

	j := &RecomputeAttainmentJob{
		courses:    courses,
		calculator: calculator,
		locker:     locker,
		reports:    reports,
		stats:      stats,
		logger:     logger.OrDefault(log).With(logger.Component(RecomputeAttainmentName)),
		config:     config,
		now:        time.Now,
	}
	j.lockRetrier = retry.LockRetrier(retry.WithOnRetry(j.logLockRetry))
	return j
}

func (j *RecomputeAttainmentJob) logLockRetry(attempt int, err error, delay time.Duration) {
	j.logger.Warn("lock acquire failed, retrying",
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
		logger.Err(err),
	)
}

// Name returns the job name.
func (j *RecomputeAttainmentJob) Name() string {
	return RecomputeAttainmentName
}

// Description returns a human-readable description.
func (j *RecomputeAttainmentJob) Description() string {
	return "Recomputes stored achievement results for every course with outcomes"
}

// LastStats returns the report of the last completed run, or nil.
func (j *RecomputeAttainmentJob) LastStats() *RunReport {
	r, _ := j.lastStats.Load().(*RunReport)
	return r
}

// Run executes one recompute pass. A lock held by another worker is not an
// error; the run is skipped.
func (j *RecomputeAttainmentJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	if j.locker != nil {
		release, err := retry.DoWithData(ctx, j.lockRetrier, func(ctx context.Context) (func(context.Context) error, error) {
			return j.locker.TryLock(ctx, RecomputeAttainmentName, j.config.LockTTL)
		})
		if err != nil {
			return fmt.Errorf("%s: acquire lock: %w", RecomputeAttainmentName, err)
		}
		if release == nil {
			j.logger.Info("lock held by another worker, run skipped")
			return nil
		}
		defer func() {
			// The run context may already be done; release on a fresh one.
			relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := release(relCtx); err != nil {
				j.logger.Warn("release lock failed", logger.Err(err))
			}
		}()
	}

	report := &RunReport{RunID: uuid.NewString(), StartedAt: j.now()}
	log := j.logger.With(slog.String("run_id", report.RunID))

	targets, err := j.targets(ctx)
	if err != nil {
		return fmt.Errorf("%s: list courses: %w", RecomputeAttainmentName, err)
	}
	log.Info("recompute started", slog.Int("courses", len(targets)))

	report.Courses = j.recompute(ctx, log, targets)
	for _, c := range report.Courses {
		switch c.Status {
		case CourseSucceeded:
			report.Succeeded++
			report.ResultsWritten += c.ResultsWritten
		case CourseFailed:
			report.Failed++
		case CourseSkipped:
			report.Skipped++
		}
	}
	report.CompletedAt = j.now()
	report.Duration = report.CompletedAt.Sub(report.StartedAt)
	j.lastStats.Store(report)

	if j.stats != nil {
		j.stats.ObserveRecompute(report.Succeeded, report.Failed, report.Skipped)
	}
	if j.reports != nil {
		if err := j.reports.SaveReport(ctx, RecomputeAttainmentName, report); err != nil {
			log.Warn("save run report failed", logger.Err(err))
		}
	}

	log.Info("recompute completed",
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", report.Failed),
		slog.Int("skipped", report.Skipped),
		slog.Int("results_written", report.ResultsWritten),
		logger.Latency(report.Duration),
	)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", RecomputeAttainmentName, err)
	}
	if report.Failed > 0 {
		return fmt.Errorf("%s: %d of %d courses failed", RecomputeAttainmentName, report.Failed, len(report.Courses))
	}
	return nil
}

// targets returns the course IDs of this run in ascending order.
func (j *RecomputeAttainmentJob) targets(ctx context.Context) ([]shared.ID, error) {
	if len(j.config.CourseIDs) > 0 {
		return shared.NewIDSet(j.config.CourseIDs...).Sorted(), nil
	}

	var courses []*outcome.Course
	if len(j.config.ProgramIDs) > 0 {
		for _, pid := range j.config.ProgramIDs {
			cs, err := j.courses.ListCourses(ctx, pid)
			if err != nil {
				return nil, err
			}
			courses = append(courses, cs...)
		}
	} else {
		cs, err := j.courses.ListCoursesWithOutcomes(ctx)
		if err != nil {
			return nil, err
		}
		courses = cs
	}

	set := shared.NewIDSet()
	for _, c := range courses {
		set.Add(c.ID)
	}
	return set.Sorted(), nil
}

func (j *RecomputeAttainmentJob) recompute(ctx context.Context, log *slog.Logger, ids []shared.ID) []CourseOutcome {
	out := make([]CourseOutcome, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.config.Concurrency)

	for i, id := range ids {
		g.Go(func() error {
			co := CourseOutcome{CourseID: id}
			if err := gctx.Err(); err != nil {
				co.Status, co.Error = CourseSkipped, err.Error()
			} else {
				res, err := j.calculator.Handle(gctx, command.CalculateCourseAttainmentCommand{
					CourseID: id,
					Source:   achievement.SourceScheduledRecompute,
				})
				switch {
				case err == nil:
					co.Status, co.CourseCode, co.ResultsWritten = CourseSucceeded, res.CourseCode, res.ResultsWritten
				case errors.Is(err, shared.ErrCourseHasNoOutcomes):
					co.Status = CourseSkipped
				default:
					co.Status, co.Error = CourseFailed, err.Error()
					log.Error("course recompute failed", logger.CourseID(id.Int64()), logger.Err(err))
				}
			}
			out[i] = co
			// Per-course failures are reported, never abort the run.
			return nil
		})
	}
	_ = g.Wait()

	return out
}
