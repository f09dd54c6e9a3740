package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loes-hub/outcome-engine/internal/domain/achievement"
	"github.com/loes-hub/outcome-engine/internal/domain/mapping"
	"github.com/loes-hub/outcome-engine/internal/domain/outcome"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
	"github.com/loes-hub/outcome-engine/internal/domain/textmatch"
	"github.com/loes-hub/outcome-engine/internal/infrastructure/persistence/memory"
	"github.com/loes-hub/outcome-engine/pkg/logger"
	"github.com/loes-hub/outcome-engine/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStore(t *testing.T) *memory.Store {
	t.Helper()
	s, err := memory.Sample()
	require.NoError(t, err)
	return s
}

type recorded struct {
	source   string
	outcomes int
	results  int
	err      error
	applied  [4]int
}

func (r *recorded) ObserveCourseCalculation(source string, outcomes, results int, _ time.Duration, err error) {
	r.source, r.outcomes, r.results, r.err = source, outcomes, results, err
}

func (r *recorded) ObserveMappingApply(created, updated, removed, skipped int) {
	r.applied = [4]int{created, updated, removed, skipped}
}

// ══════════════════════════════════════════════════════════════════════════════
// CALCULATE COURSE ATTAINMENT
// ══════════════════════════════════════════════════════════════════════════════

func newCalcHandler(s *memory.Store, w ResultWriter, rec Recorder) *CalculateCourseAttainmentHandler {
	h := NewCalculateCourseAttainmentHandler(s, s, w, retry.New(retry.WithInitialDelay(time.Millisecond)), rec, logger.Discard(), CalculateCourseAttainmentConfig{Concurrency: 2})
	h.now = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }
	return h
}

func TestCalculateCourseAttainment(t *testing.T) {
	ctx := context.Background()
	s := sampleStore(t)
	rec := &recorded{}
	h := newCalcHandler(s, s, rec)

	res, err := h.Handle(ctx, CalculateCourseAttainmentCommand{CourseID: 10})
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 2)
	clo1, clo2 := res.Outcomes[0], res.Outcomes[1]

	assert.Equal(t, shared.ID(101), clo1.OutcomeID)
	assert.Equal(t, 2, clo1.AssessedCount)
	assert.Equal(t, 1, clo1.AchievedCount)
	assert.InDelta(t, 0.5, clo1.ClassRate, 1e-12)
	assert.Equal(t, 2, clo1.TaggedQuestions)

	assert.Equal(t, 1, clo2.AchievedCount)
	assert.Equal(t, 1, clo2.TaggedQuestions)

	require.Len(t, res.Students, 4)
	assert.InDelta(t, 0.86, res.Students[0].Achievement, 1e-9)
	assert.True(t, res.Students[0].Achieved)
	assert.InDelta(t, 0.56, res.Students[1].Achievement, 1e-9)
	assert.False(t, res.Students[1].Achieved)

	assert.Equal(t, 4, res.ResultsWritten)
	assert.Equal(t, achievement.SourceCourseCalculation, res.Source)
	assert.Equal(t, 4, s.ResultCount())

	stored, err := s.ListStudentResults(ctx, 1, []shared.ID{101, 102})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, achievement.SourceCourseCalculation, stored[0].Source)
	assert.NotEmpty(t, stored[0].ID)

	assert.Equal(t, "course_calculation", rec.source)
	assert.Equal(t, 2, rec.outcomes)
	assert.Equal(t, 4, rec.results)
	assert.NoError(t, rec.err)
}

func TestCalculateCourseAttainment_RecomputeOverwrites(t *testing.T) {
	ctx := context.Background()
	s := sampleStore(t)
	h := newCalcHandler(s, s, nil)

	_, err := h.Handle(ctx, CalculateCourseAttainmentCommand{CourseID: 20})
	require.NoError(t, err)
	_, err = h.Handle(ctx, CalculateCourseAttainmentCommand{CourseID: 20, Source: achievement.SourceScheduledRecompute})
	require.NoError(t, err)

	assert.Equal(t, 6, s.ResultCount())
	stored, err := s.ListStudentResults(ctx, 3, []shared.ID{201})
	require.NoError(t, err)
	assert.Equal(t, achievement.SourceScheduledRecompute, stored[0].Source)
}

func TestCalculateCourseAttainment_DryRun(t *testing.T) {
	s := sampleStore(t)
	h := newCalcHandler(s, s, nil)

	res, err := h.Handle(context.Background(), CalculateCourseAttainmentCommand{CourseID: 20, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ResultsWritten)
	assert.Len(t, res.Students, 6)
	assert.Equal(t, 0, s.ResultCount())
}

func TestCalculateCourseAttainment_Errors(t *testing.T) {
	ctx := context.Background()
	s := sampleStore(t)
	h := newCalcHandler(s, s, nil)

	_, err := h.Handle(ctx, CalculateCourseAttainmentCommand{})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(ctx, CalculateCourseAttainmentCommand{CourseID: 99})
	assert.ErrorIs(t, err, shared.ErrCourseNotFound)

	_, err = h.Handle(ctx, CalculateCourseAttainmentCommand{CourseID: 30})
	assert.ErrorIs(t, err, shared.ErrCourseHasNoOutcomes)
}

type flakyWriter struct {
	calls int
	fail  int
	err   error
}

func (f *flakyWriter) UpsertResults(context.Context, []*achievement.Result) error {
	f.calls++
	if f.calls <= f.fail {
		return f.err
	}
	return nil
}

func TestCalculateCourseAttainment_RetriesTransientWrites(t *testing.T) {
	s := sampleStore(t)
	w := &flakyWriter{fail: 2, err: retry.Retryable(errors.New("serialization failure"))}
	h := newCalcHandler(s, w, nil)

	res, err := h.Handle(context.Background(), CalculateCourseAttainmentCommand{CourseID: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, w.calls)
	assert.Equal(t, 4, res.ResultsWritten)
}

func TestCalculateCourseAttainment_NonRetryableWriteError(t *testing.T) {
	s := sampleStore(t)
	boom := errors.New("disk full")
	w := &flakyWriter{fail: 5, err: boom}
	rec := &recorded{}
	h := newCalcHandler(s, w, rec)

	_, err := h.Handle(context.Background(), CalculateCourseAttainmentCommand{CourseID: 10})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, w.calls)
	assert.ErrorIs(t, rec.err, boom)
}

// ══════════════════════════════════════════════════════════════════════════════
// APPLY MAPPING SUGGESTIONS
// ══════════════════════════════════════════════════════════════════════════════

func newApplyHandler(s *memory.Store) *ApplyMappingSuggestionsHandler {
	scorer := mapping.NewScorer(mapping.DefaultScorerConfig(), textmatch.NewNormalizer(textmatch.DefaultNormalizerConfig()))
	return NewApplyMappingSuggestionsHandler(s, s, scorer, nil, logger.Discard())
}

func findChange(t *testing.T, res *ApplyMappingSuggestionsResult, o, p shared.ID) MappingChangeDTO {
	t.Helper()
	for _, c := range res.Changes {
		if c.OutcomeID == o && c.ProgramOutcomeID == p {
			return c
		}
	}
	t.Fatalf("no change for %d/%d", o, p)
	return MappingChangeDTO{}
}

func TestApplyMappingSuggestions_KeepsManualMappings(t *testing.T) {
	ctx := context.Background()
	s := sampleStore(t)
	h := newApplyHandler(s)

	res, err := h.Handle(ctx, ApplyMappingSuggestionsCommand{CourseID: 20})
	require.NoError(t, err)
	require.Len(t, res.Changes, 4)

	manual := findChange(t, res, 201, 1001)
	assert.Equal(t, ActionKept, manual.Action)
	assert.Equal(t, outcome.SourceManual, manual.PreviousSource)

	stored, err := s.ListByProgramOutcome(ctx, 1001)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, outcome.SourceManual, stored[0].Source)
	assert.Equal(t, outcome.TierMajor, stored[0].Tier)
}

func TestApplyMappingSuggestions_UpdatesInferred(t *testing.T) {
	ctx := context.Background()
	s := sampleStore(t)
	h := newApplyHandler(s)

	res, err := h.Handle(ctx, ApplyMappingSuggestionsCommand{CourseID: 20, ProgramOutcomeIDs: []shared.ID{1001}})
	require.NoError(t, err)
	require.Len(t, res.Changes, 2)

	inferred := findChange(t, res, 202, 1001)
	assert.Equal(t, outcome.TierNeutral, inferred.PreviousTier)
	stored, err := s.ListByProgramOutcome(ctx, 1001)
	require.NoError(t, err)
	var got *outcome.Mapping
	for _, m := range stored {
		if m.OutcomeID == 202 {
			got = m
		}
	}

	// {đánh giá hiệu quả marketing điểm đến} vs {chiến dịch marketing điểm đến}: K=3/9
	assert.InDelta(t, 0.6/3+0.3+0.02, inferred.Score, 1e-12)
	assert.Equal(t, outcome.TierNeutral, inferred.SuggestedTier)
	assert.Equal(t, ActionUpdated, inferred.Action)
	require.NotNil(t, got)
	assert.Equal(t, outcome.SourceInferred, got.Source)
	assert.InDelta(t, inferred.Score, got.Score, 1e-12)

	second, err := h.Handle(ctx, ApplyMappingSuggestionsCommand{CourseID: 20, ProgramOutcomeIDs: []shared.ID{1001}})
	require.NoError(t, err)
	again := findChange(t, second, 202, 1001)
	assert.Equal(t, ActionUnchanged, again.Action)
}

func TestApplyMappingSuggestions_RemovesInferredWhenNone(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	s.AddProgram(outcome.Program{ID: 1})
	s.AddCourse(outcome.Course{ID: 1, ProgramID: 1, Credits: 3})
	s.AddOutcome(outcome.Outcome{ID: 1, CourseID: 1, Text: "ghi nhớ thuật ngữ", Threshold: 0.7})
	s.AddProgramOutcome(outcome.ProgramOutcome{ID: 9, ProgramID: 1, Description: "quản lý tài chính doanh nghiệp"})
	require.NoError(t, s.Upsert(ctx, &outcome.Mapping{OutcomeID: 1, ProgramOutcomeID: 9, Tier: outcome.TierLow, Source: outcome.SourceInferred}))

	rec := &recorded{}
	scorer := mapping.NewScorer(mapping.DefaultScorerConfig(), textmatch.NewNormalizer(textmatch.DefaultNormalizerConfig()))
	h := NewApplyMappingSuggestionsHandler(s, s, scorer, rec, logger.Discard())

	dry, err := h.Handle(ctx, ApplyMappingSuggestionsCommand{CourseID: 1, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, dry.Removed)
	stored, err := s.ListByCourse(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, stored, 1, "dry run writes nothing")

	res, err := h.Handle(ctx, ApplyMappingSuggestionsCommand{CourseID: 1})
	require.NoError(t, err)
	assert.Equal(t, outcome.TierNone, res.Changes[0].SuggestedTier)
	assert.Equal(t, ActionRemoved, res.Changes[0].Action)
	assert.Equal(t, [4]int{0, 0, 1, 0}, rec.applied)

	stored, err = s.ListByCourse(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestApplyMappingSuggestions_CreatesStrongMapping(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	s.AddCourse(outcome.Course{ID: 1, ProgramID: 1})
	s.AddOutcome(outcome.Outcome{ID: 1, CourseID: 1, Verb: "Thiết kế", Text: "chiến dịch marketing điểm đến", Level: 6, Threshold: 0.7})
	s.AddProgramOutcome(outcome.ProgramOutcome{ID: 9, ProgramID: 1, Description: "thiết kế chiến dịch marketing điểm đến"})

	res, err := newApplyHandler(s).Handle(ctx, ApplyMappingSuggestionsCommand{CourseID: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, outcome.TierMajor, res.Changes[0].SuggestedTier)

	stored, err := s.ListByCourse(ctx, 1)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, outcome.SourceInferred, stored[0].Source)
}

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT MAPPING MATRIX
// ══════════════════════════════════════════════════════════════════════════════

func sampleMatrix(dryRun bool) ImportMappingMatrixCommand {
	return ImportMappingMatrixCommand{
		ProgramID: 1,
		Columns:   []string{"PLO1", "PLO2", "ELO7"},
		Rows: []MatrixRow{
			{Line: 2, CourseCode: "TOUR101", Cells: []string{"S", "", ""}},
			{Line: 3, CourseCode: "mkt201", Cells: []string{"H", "-", "x"}},
			{Line: 4, CourseCode: "TOUR301", Cells: []string{"M", "M", ""}},
			{Line: 5, CourseCode: "XYZ999", Cells: []string{"M"}},
			{Line: 6, CourseCode: "  "},
		},
		DryRun: dryRun,
	}
}

func TestImportMappingMatrix(t *testing.T) {
	ctx := context.Background()
	s := sampleStore(t)
	rec := &recorded{}
	h := NewImportMappingMatrixHandler(s, s, rec, logger.Discard())

	res, err := h.Handle(ctx, sampleMatrix(false))
	require.NoError(t, err)

	assert.Equal(t, 2, res.CoursesProcessed)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 2, res.Updated)
	require.Len(t, res.Errors, 3)
	assert.Contains(t, res.Errors[0], `column "ELO7"`)
	assert.Contains(t, res.Errors[1], "has no outcomes")
	assert.Contains(t, res.Errors[2], "XYZ999")
	assert.Equal(t, [4]int{2, 2, 0, 0}, rec.applied)

	stored, err := s.ListByProgramOutcome(ctx, 1001)
	require.NoError(t, err)
	require.Len(t, stored, 4, "a row code applies to every outcome of the course")
	for _, m := range stored {
		assert.Equal(t, outcome.SourceImported, m.Source)
	}

	again, err := h.Handle(ctx, sampleMatrix(false))
	require.NoError(t, err)
	assert.Equal(t, 4, again.Unchanged)
	assert.Zero(t, again.Created+again.Updated)
}

func TestImportMappingMatrix_DryRun(t *testing.T) {
	ctx := context.Background()
	s := sampleStore(t)

	res, err := NewImportMappingMatrixHandler(s, s, nil, logger.Discard()).Handle(ctx, sampleMatrix(true))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)

	stored, err := s.ListByCourse(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, stored, 2, "dry run writes nothing")
}

func TestImportMappingMatrix_SurvivesSuggestions(t *testing.T) {
	ctx := context.Background()
	s := sampleStore(t)

	_, err := NewImportMappingMatrixHandler(s, s, nil, logger.Discard()).Handle(ctx, sampleMatrix(false))
	require.NoError(t, err)

	res, err := newApplyHandler(s).Handle(ctx, ApplyMappingSuggestionsCommand{CourseID: 20, ProgramOutcomeIDs: []shared.ID{1001}})
	require.NoError(t, err)

	imported := findChange(t, res, 202, 1001)
	assert.Equal(t, ActionKept, imported.Action)
	assert.Equal(t, outcome.SourceImported, imported.PreviousSource)

	stored, err := s.ListByCourse(ctx, 20)
	require.NoError(t, err)
	for _, m := range stored {
		if m.OutcomeID == 202 && m.ProgramOutcomeID == 1001 {
			assert.Equal(t, outcome.TierMajor, m.Tier)
			assert.Equal(t, outcome.SourceImported, m.Source)
		}
	}
}

func TestImportMappingMatrix_Validation(t *testing.T) {
	s := sampleStore(t)
	h := NewImportMappingMatrixHandler(s, s, nil, logger.Discard())

	_, err := h.Handle(context.Background(), ImportMappingMatrixCommand{Columns: []string{"PLO1"}})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), ImportMappingMatrixCommand{ProgramID: 1})
	assert.True(t, shared.IsValidation(err))
}
