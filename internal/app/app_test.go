package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loes-hub/outcome-engine/config"
	"github.com/loes-hub/outcome-engine/internal/application/command"
	"github.com/loes-hub/outcome-engine/internal/application/query"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
	"github.com/loes-hub/outcome-engine/internal/infrastructure/persistence/memory"
	"github.com/loes-hub/outcome-engine/pkg/logger"
)

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "mongo"}, config.DefaultEngineConfig(), logger.Discard())
	assert.ErrorContains(t, err, `unknown store driver "mongo"`)
}

func TestOpen_MemoryUsesSample(t *testing.T) {
	b, err := Open(context.Background(), config.DatabaseConfig{Driver: config.DriverMemory}, config.DefaultEngineConfig(), logger.Discard())
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Migrate(context.Background()))
	require.NoError(t, b.Ping(context.Background()))
	c, err := b.Store.GetCourse(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "TOUR101", c.Code)
}

func TestOpen_SQLiteSeedAndCalculate(t *testing.T) {
	ctx := context.Background()
	b, err := Open(ctx, config.DatabaseConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "outcomes.db"),
	}, config.DefaultEngineConfig(), logger.Discard())
	require.NoError(t, err)

	require.NoError(t, b.Migrate(ctx))
	require.NoError(t, b.Ping(ctx))
	fx, err := memory.SampleFixture()
	require.NoError(t, err)
	require.NoError(t, b.Seed(ctx, fx))

	e := NewEngine(b.Store, config.DefaultEngineConfig(), EngineOptions{Logger: logger.Discard()})

	res, err := e.CalculateCourse.Handle(ctx, command.CalculateCourseAttainmentCommand{CourseID: 10})
	require.NoError(t, err)
	assert.Len(t, res.Outcomes, 2)
	assert.Positive(t, res.ResultsWritten)

	rep, err := e.ProgramAttainment.Handle(ctx, query.GetProgramAttainmentQuery{ProgramID: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, rep.Outcomes)

	require.NoError(t, b.Close())
	assert.Error(t, b.Ping(ctx), "a closed database does not answer")
}

func TestNewEngine_SameResultsAcrossStores(t *testing.T) {
	ctx := context.Background()

	mem, err := Open(ctx, config.DatabaseConfig{Driver: config.DriverMemory}, config.DefaultEngineConfig(), logger.Discard())
	require.NoError(t, err)

	lite, err := Open(ctx, config.DatabaseConfig{Driver: config.DriverSQLite, SQLitePath: ":memory:"}, config.DefaultEngineConfig(), logger.Discard())
	require.NoError(t, err)
	defer lite.Close()
	require.NoError(t, lite.Migrate(ctx))
	fx, err := memory.SampleFixture()
	require.NoError(t, err)
	require.NoError(t, lite.Seed(ctx, fx))

	q := query.SuggestOutcomeMappingsQuery{CourseID: shared.ID(20)}
	want, err := NewEngine(mem.Store, config.DefaultEngineConfig(), EngineOptions{}).SuggestMappings.Handle(ctx, q)
	require.NoError(t, err)
	got, err := NewEngine(lite.Store, config.DefaultEngineConfig(), EngineOptions{}).SuggestMappings.Handle(ctx, q)
	require.NoError(t, err)

	assert.Equal(t, want.Suggestions, got.Suggestions)
}
