package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loes-hub/outcome-engine/internal/domain/achievement"
	"github.com/loes-hub/outcome-engine/internal/domain/bloom"
	"github.com/loes-hub/outcome-engine/internal/domain/outcome"
	"github.com/loes-hub/outcome-engine/internal/domain/prerequisite"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
	"github.com/loes-hub/outcome-engine/internal/infrastructure/persistence/memory"
)

func openSample(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	s, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	fx, err := memory.SampleFixture()
	require.NoError(t, err)
	require.NoError(t, fx.Apply(ctx, s))
	return s
}

func TestOpen_MigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Migrate(ctx))
}

func TestCurriculum(t *testing.T) {
	ctx := context.Background()
	s := openSample(t)

	programs, err := s.ListPrograms(ctx)
	require.NoError(t, err)
	require.Len(t, programs, 1)
	assert.Equal(t, 0.7, programs[0].ExpectedThreshold)

	courses, err := s.ListCourses(ctx, 1)
	require.NoError(t, err)
	require.Len(t, courses, 3)
	assert.Equal(t, "TOUR101", courses[0].Code)

	withOutcomes, err := s.ListCoursesWithOutcomes(ctx)
	require.NoError(t, err)
	assert.Len(t, withOutcomes, 2)

	o, err := s.GetOutcome(ctx, 202)
	require.NoError(t, err)
	assert.Equal(t, bloom.Evaluate, o.Level)
	assert.True(t, o.LevelRecognized)
	assert.Equal(t, 0.6, o.Threshold)

	outs, err := s.ListOutcomes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, outs, 2)
	assert.Equal(t, outcome.DefaultThreshold, outs[0].Threshold)

	plos, err := s.ListProgramOutcomes(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, plos, 2)
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	s := openSample(t)

	_, err := s.GetCourse(ctx, 99)
	assert.ErrorIs(t, err, shared.ErrCourseNotFound)

	_, err = s.GetProgram(ctx, 99)
	assert.ErrorIs(t, err, shared.ErrProgramNotFound)

	_, err = s.GetProgramOutcome(ctx, 99)
	assert.ErrorIs(t, err, shared.ErrProgramOutcomeNotFound)

	_, err = s.GetStudent(ctx, 99)
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)

	_, err = s.GetRule(ctx, 99)
	assert.ErrorIs(t, err, shared.ErrRuleNotFound)

	assert.ErrorIs(t, s.Delete(ctx, 101, 1001), shared.ErrMappingNotFound)
}

func TestLoadSnapshot(t *testing.T) {
	ctx := context.Background()
	s := openSample(t)

	snap, err := s.LoadSnapshot(ctx, 10, []shared.ID{101, 102})
	require.NoError(t, err)

	assert.Equal(t, []shared.ID{1, 2}, snap.AssessedStudents())
	require.Len(t, snap.QuestionsFor(101), 2)
	require.Len(t, snap.QuestionsFor(102), 1)
	assert.Equal(t, []shared.ID{101, 102}, snap.QuestionsFor(102)[0].OutcomeIDs)

	v, ok := snap.Score(1, 121)
	assert.True(t, ok)
	assert.Equal(t, 9.0, v)

	_, ok = snap.Score(1, 211)
	assert.False(t, ok, "scores on untagged questions are not loaded")

	a, ok := snap.Assessment(12)
	require.True(t, ok)
	assert.Equal(t, 0.6, a.Weight)

	empty, err := s.LoadSnapshot(ctx, 30, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.AssessedCount())
}

func TestMappings(t *testing.T) {
	ctx := context.Background()
	s := openSample(t)

	byCourse, err := s.ListByCourse(ctx, 20)
	require.NoError(t, err)
	require.Len(t, byCourse, 2)
	assert.Equal(t, outcome.SourceInferred, byCourse[1].Source)

	require.NoError(t, s.Upsert(ctx, &outcome.Mapping{OutcomeID: 202, ProgramOutcomeID: 1002, Tier: outcome.TierLow, Source: outcome.SourceInferred}))
	require.NoError(t, s.Upsert(ctx, &outcome.Mapping{OutcomeID: 202, ProgramOutcomeID: 1002, Tier: outcome.TierMajor, Source: outcome.SourceManual}))

	byPLO, err := s.ListByProgramOutcome(ctx, 1002)
	require.NoError(t, err)
	require.Len(t, byPLO, 3)
	assert.Equal(t, outcome.TierMajor, byPLO[2].Tier)
	assert.Equal(t, outcome.SourceManual, byPLO[2].Source)

	err = s.Upsert(ctx, &outcome.Mapping{OutcomeID: 999, ProgramOutcomeID: 1002, Tier: outcome.TierLow, Source: outcome.SourceManual})
	assert.True(t, shared.IsNotFound(err))

	require.NoError(t, s.Delete(ctx, 202, 1002))
	byPLO, err = s.ListByProgramOutcome(ctx, 1002)
	require.NoError(t, err)
	assert.Len(t, byPLO, 2)
}

func TestResults_UpsertByPair(t *testing.T) {
	ctx := context.Background()
	s := openSample(t)
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertResults(ctx, []*achievement.Result{
		{StudentID: 1, OutcomeID: 101, Achievement: 0.5, ComputedAt: now, Source: achievement.SourceCourseCalculation},
		{ID: "b", StudentID: 1, OutcomeID: 102, Achievement: 0.9, Achieved: true, ComputedAt: now, Source: achievement.SourceCourseCalculation},
	}))
	require.NoError(t, s.UpsertResults(ctx, []*achievement.Result{
		{ID: "c", StudentID: 1, OutcomeID: 101, Achievement: 0.8, Achieved: true, ComputedAt: now.Add(time.Hour), Source: achievement.SourceScheduledRecompute},
	}))

	got, err := s.ListStudentResults(ctx, 1, []shared.ID{101, 102, 201})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "c", got[0].ID)
	assert.True(t, got[0].Achieved)
	assert.Equal(t, 0.8, got[0].Achievement)
	assert.Equal(t, achievement.SourceScheduledRecompute, got[0].Source)
	assert.True(t, now.Add(time.Hour).Equal(got[0].ComputedAt))

	assert.Equal(t, "b", got[1].ID)

	none, err := s.ListStudentResults(ctx, 1, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRules(t *testing.T) {
	ctx := context.Background()
	s := openSample(t)

	rules, err := s.ListRules(ctx, 20)
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, prerequisite.TypeStrict, rules[0].Type)

	cond, ok := rules[1].Condition.(prerequisite.OutcomeAchievementRatio)
	require.True(t, ok)
	assert.Equal(t, []shared.ID{101, 102}, cond.RequiredOutcomeIDs)
	assert.Equal(t, 2024, rules[2].EffectiveYear)

	r := &prerequisite.Rule{CourseID: 30, PrereqCourseID: 10, Type: prerequisite.TypeStrict, Condition: prerequisite.PassCourse{}}
	require.NoError(t, s.SaveRule(ctx, r))
	assert.Equal(t, shared.ID(4), r.ID)

	r.Type = prerequisite.TypeRecommended
	require.NoError(t, s.SaveRule(ctx, r))
	got, err := s.GetRule(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, prerequisite.TypeRecommended, got.Type)

	bad := &prerequisite.Rule{CourseID: 30, PrereqCourseID: 77, Type: prerequisite.TypeStrict, Condition: prerequisite.PassCourse{}}
	assert.ErrorIs(t, s.SaveRule(ctx, bad), shared.ErrCourseNotFound)
}

func TestRules_MalformedPayloadReadsDefaults(t *testing.T) {
	ctx := context.Background()
	s := openSample(t)

	_, err := s.db.ExecContext(ctx, `UPDATE prerequisite_rules SET condition_payload = '{not json' WHERE id = 2`)
	require.NoError(t, err)

	rule, err := s.GetRule(ctx, 2)
	require.NoError(t, err)
	_, ok := rule.Condition.(prerequisite.OutcomeAchievementRatio)
	assert.True(t, ok)
}

func TestFixture_ApplyTwice(t *testing.T) {
	ctx := context.Background()
	s := openSample(t)

	fx, err := memory.SampleFixture()
	require.NoError(t, err)
	require.NoError(t, fx.Apply(ctx, s))

	students, err := s.ListStudents(ctx, "")
	require.NoError(t, err)
	assert.Len(t, students, 3)

	k20, err := s.ListStudents(ctx, "K20")
	require.NoError(t, err)
	assert.Len(t, k20, 2)
}

func TestIDList(t *testing.T) {
	assert.Equal(t, "[]", idList([]shared.ID(nil)))
	assert.Equal(t, "[1,22,333]", idList([]shared.ID{1, 22, 333}))
}
