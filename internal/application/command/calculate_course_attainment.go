// Package command contains write operations (CQRS - Commands).
// Commands recompute or change stored state: achievement results and
// inferred outcome mappings. Read-only reports live in package query.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/loes-hub/outcome-engine/internal/domain/achievement"
	"github.com/loes-hub/outcome-engine/internal/domain/assessment"
	"github.com/loes-hub/outcome-engine/internal/domain/outcome"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
	"github.com/loes-hub/outcome-engine/pkg/logger"
	"github.com/loes-hub/outcome-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CALCULATE COURSE ATTAINMENT COMMAND
// Computes every student's achievement on every outcome of a course from one
// shared snapshot, tallies the class rate per outcome and upserts the results.
// ══════════════════════════════════════════════════════════════════════════════

// CalculateCourseAttainmentCommand contains the data needed to recompute a course.
type CalculateCourseAttainmentCommand struct {
	// CourseID is the course to recompute.
	CourseID shared.ID

	// Source tags the stored results. Default: course_calculation.
	Source achievement.Source

	// DryRun computes without writing results.
	DryRun bool
}

// Validate validates the command.
func (c CalculateCourseAttainmentCommand) Validate() error {
	if !c.CourseID.IsValid() {
		return shared.NewDomainError("command", "CalculateCourseAttainment", shared.ErrInvalidID, "course_id must be positive")
	}
	switch c.Source {
	case "", achievement.SourceCourseCalculation, achievement.SourceScheduledRecompute:
		return nil
	}
	return shared.NewDomainError("command", "CalculateCourseAttainment", shared.ErrInvalidInput, "unknown result source")
}

// OutcomeAttainmentDTO is the class result for one outcome.
type OutcomeAttainmentDTO struct {
	OutcomeID     shared.ID `json:"outcome_id"`
	Code          string    `json:"code"`
	Threshold     float64   `json:"threshold"`
	ClassRate     float64   `json:"class_rate"`
	AchievedCount int       `json:"achieved_count"`
	AssessedCount int       `json:"assessed_count"`

	// TaggedQuestions is the number of questions tagged with the outcome.
	TaggedQuestions int `json:"tagged_questions"`

	// LevelFlagged is set when the stored cognitive level was not recognized.
	LevelFlagged bool `json:"level_flagged,omitempty"`
}

// StudentResultDTO is one computed (student, outcome) achievement.
type StudentResultDTO struct {
	StudentID   shared.ID `json:"student_id"`
	OutcomeID   shared.ID `json:"outcome_id"`
	Achievement float64   `json:"achievement"`
	Achieved    bool      `json:"achieved"`
}

// CalculateCourseAttainmentResult contains the result of a recompute.
type CalculateCourseAttainmentResult struct {
	CourseID   shared.ID              `json:"course_id"`
	CourseCode string                 `json:"course_code"`
	Outcomes   []OutcomeAttainmentDTO `json:"outcomes"`
	Students   []StudentResultDTO     `json:"students"`

	// ResultsWritten is zero on a dry run.
	ResultsWritten int                `json:"results_written"`
	Source         achievement.Source `json:"source"`
	ComputedAt     time.Time          `json:"computed_at"`
	Duration       time.Duration      `json:"duration"`
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// CourseReader is the part of the curriculum store the command reads.
type CourseReader interface {
	GetCourse(ctx context.Context, id shared.ID) (*outcome.Course, error)
	ListOutcomes(ctx context.Context, courseID shared.ID) ([]*outcome.Outcome, error)
}

// SnapshotLoader fetches the graded work of a course in one pass.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context, courseID shared.ID, outcomeIDs []shared.ID) (*assessment.Snapshot, error)
}

// ResultWriter stores achievement results.
type ResultWriter interface {
	UpsertResults(ctx context.Context, results []*achievement.Result) error
}

// Recorder receives command measurements. Implemented by the metrics package.
type Recorder interface {
	ObserveCourseCalculation(source string, outcomes, results int, d time.Duration, err error)
	ObserveMappingApply(created, updated, removed, skipped int)
}

type noopRecorder struct{}

func (noopRecorder) ObserveCourseCalculation(string, int, int, time.Duration, error) {}
func (noopRecorder) ObserveMappingApply(int, int, int, int)                          {}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CalculateCourseAttainmentConfig contains configuration for the handler.
type CalculateCourseAttainmentConfig struct {
	// Concurrency bounds the per-outcome fan-out.
	Concurrency int
}

// DefaultCalculateCourseAttainmentConfig returns default configuration.
func DefaultCalculateCourseAttainmentConfig() CalculateCourseAttainmentConfig {
	return CalculateCourseAttainmentConfig{Concurrency: 4}
}

// CalculateCourseAttainmentHandler handles CalculateCourseAttainmentCommand.
type CalculateCourseAttainmentHandler struct {
	courses   CourseReader
	snapshots SnapshotLoader
	results   ResultWriter
	retrier   *retry.Retrier
	recorder  Recorder
	logger    *slog.Logger
	config    CalculateCourseAttainmentConfig

	now   func() time.Time
	newID func() string
}

// NewCalculateCourseAttainmentHandler creates a new handler. A nil retrier
// uses retry.StoreRetrier; a nil recorder records nothing.
func NewCalculateCourseAttainmentHandler(
	courses CourseReader,
	snapshots SnapshotLoader,
	results ResultWriter,
	retrier *retry.Retrier,
	recorder Recorder,
	log *slog.Logger,
	config CalculateCourseAttainmentConfig,
) *CalculateCourseAttainmentHandler {
	if config.Concurrency <= 0 {
		config = DefaultCalculateCourseAttainmentConfig()
	}
	if retrier == nil {
		retrier = retry.StoreRetrier()
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}

	return &CalculateCourseAttainmentHandler{
		courses:   courses,
		snapshots: snapshots,
		results:   results,
		retrier:   retrier,
		recorder:  recorder,
		logger:    logger.OrDefault(log).With(logger.Component("calculate_course_attainment")),
		config:    config,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Handle executes the command.
func (h *CalculateCourseAttainmentHandler) Handle(ctx context.Context, cmd CalculateCourseAttainmentCommand) (*CalculateCourseAttainmentResult, error) {
	started := h.now()

	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("calculate_course_attainment: validation failed: %w", err)
	}
	source := cmd.Source
	if source == "" {
		source = achievement.SourceCourseCalculation
	}

	res, err := h.handle(ctx, cmd, source, started)
	outcomes, written := 0, 0
	if res != nil {
		outcomes, written = len(res.Outcomes), res.ResultsWritten
	}
	h.recorder.ObserveCourseCalculation(string(source), outcomes, written, h.now().Sub(started), err)

	return res, err
}

func (h *CalculateCourseAttainmentHandler) handle(
	ctx context.Context,
	cmd CalculateCourseAttainmentCommand,
	source achievement.Source,
	started time.Time,
) (*CalculateCourseAttainmentResult, error) {
	course, err := h.courses.GetCourse(ctx, cmd.CourseID)
	if err != nil {
		return nil, fmt.Errorf("calculate_course_attainment: %w", err)
	}

	outcomes, err := h.courses.ListOutcomes(ctx, course.ID)
	if err != nil {
		return nil, fmt.Errorf("calculate_course_attainment: list outcomes: %w", err)
	}
	if len(outcomes) == 0 {
		return nil, fmt.Errorf("calculate_course_attainment: %w", shared.ErrCourseHasNoOutcomes)
	}

	ids := make([]shared.ID, 0, len(outcomes))
	for _, o := range outcomes {
		ids = append(ids, o.ID)
		if !o.LevelRecognized && o.LevelLabel != "" {
			h.logger.Warn("unrecognized cognitive level, using lowest tier",
				logger.OutcomeID(o.ID.Int64()),
				slog.String("label", o.LevelLabel),
			)
		}
	}

	snap, err := h.snapshots.LoadSnapshot(ctx, course.ID, ids)
	if err != nil {
		return nil, fmt.Errorf("calculate_course_attainment: load snapshot: %w", err)
	}

	// Each goroutine owns one slot; the snapshot is read-only.
	cohorts := make([]achievement.CohortAttainment, len(outcomes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.config.Concurrency)
	for i, o := range outcomes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cohorts[i] = achievement.Cohort(snap, o)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("calculate_course_attainment: %w", err)
	}

	computedAt := h.now().UTC()
	result := &CalculateCourseAttainmentResult{
		CourseID:   course.ID,
		CourseCode: course.Code,
		Outcomes:   make([]OutcomeAttainmentDTO, 0, len(outcomes)),
		Students:   make([]StudentResultDTO, 0),
		Source:     source,
		ComputedAt: computedAt,
	}

	var rows []*achievement.Result
	for i, o := range outcomes {
		ca := cohorts[i]
		result.Outcomes = append(result.Outcomes, OutcomeAttainmentDTO{
			OutcomeID:       o.ID,
			Code:            o.Code,
			Threshold:       o.Threshold,
			ClassRate:       ca.ClassRate,
			AchievedCount:   ca.AchievedCount,
			AssessedCount:   ca.AssessedCount,
			TaggedQuestions: len(snap.QuestionsFor(o.ID)),
			LevelFlagged:    !o.LevelRecognized,
		})
		for _, c := range ca.Students {
			result.Students = append(result.Students, StudentResultDTO{
				StudentID:   c.StudentID,
				OutcomeID:   c.OutcomeID,
				Achievement: c.Achievement,
				Achieved:    c.Achieved,
			})
			rows = append(rows, achievement.NewResult(h.newID(), c, computedAt, source))
		}
	}

	if !cmd.DryRun && len(rows) > 0 {
		err := h.retrier.Do(ctx, func(ctx context.Context) error {
			return h.results.UpsertResults(ctx, rows)
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("calculate_course_attainment: store results: %w", err)
		}
		result.ResultsWritten = len(rows)
	}

	result.Duration = h.now().Sub(started)

	h.logger.Info("course attainment calculated",
		logger.CourseID(course.ID.Int64()),
		slog.Int("outcomes", len(result.Outcomes)),
		slog.Int("results", len(rows)),
		slog.Bool("dry_run", cmd.DryRun),
		slog.String("source", string(source)),
		logger.Latency(result.Duration),
	)

	return result, nil
}
