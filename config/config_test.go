package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loes-hub/outcome-engine/internal/domain/mapping"
	"github.com/loes-hub/outcome-engine/internal/domain/prerequisite"
	"github.com/loes-hub/outcome-engine/internal/domain/textmatch"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"APP_ENV", "STORE_DRIVER", "DATABASE_URL", "DB_HOST", "DB_USER", "SQLITE_PATH",
		"ENGINE_TUNABLES_FILE", "SCHEDULER_RECOMPUTE_SCHEDULE", "SCHEDULER_RECOMPUTE_CONCURRENCY",
		"SCHEDULER_RECOMPUTE_COURSES", "REDIS_ENABLED", "REDIS_PORT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.Equal(t, "6h", cfg.Scheduler.RecomputeSchedule)
	assert.Equal(t, 4, cfg.Scheduler.RecomputeConcurrency)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, time.UTC, cfg.App.Location)
	assert.Equal(t, DefaultEngineConfig(), cfg.Engine)
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/outcomes")
	t.Setenv("SCHEDULER_RECOMPUTE_COURSES", "10, 20,x,30")
	t.Setenv("SCHEDULER_RECOMPUTE_SCHEDULE", "0 2 * * *")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Database.Driver, "a database URL selects postgres")
	assert.Equal(t, []int64{10, 20, 30}, cfg.Scheduler.RecomputeCourseIDs)
	assert.Equal(t, "0 2 * * *", cfg.Scheduler.RecomputeSchedule)
}

func TestLoad_ValidationAggregates(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("SCHEDULER_RECOMPUTE_CONCURRENCY", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration errors:")
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "SCHEDULER_RECOMPUTE_CONCURRENCY")
}

func TestLoad_UnknownDriver(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "mongo")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `STORE_DRIVER "mongo"`)
}

func TestLoad_TunablesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "tunables.yaml")
	require.NoError(t, os.WriteFile(path, []byte("suggestion:\n  limit: 3\n"), 0o600))
	t.Setenv("ENGINE_TUNABLES_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Engine.Suggestion.Limit)
	assert.Equal(t, 0.6, cfg.Engine.Suggestion.OverlapWeight, "missing keys keep defaults")
}

func TestParseEngine(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
		check   func(t *testing.T, c *EngineConfig)
	}{
		{
			name: "empty document yields defaults",
			yaml: "",
			check: func(t *testing.T, c *EngineConfig) {
				assert.Equal(t, DefaultEngineConfig(), *c)
			},
		},
		{
			name: "partial override",
			yaml: "mapping:\n  cutpoints: {major: 0.8}\ntext:\n  stopwords: [the, of]\n",
			check: func(t *testing.T, c *EngineConfig) {
				assert.Equal(t, 0.8, c.Mapping.Cutpoints.Major)
				assert.Equal(t, 0.45, c.Mapping.Cutpoints.Neutral)
				assert.Equal(t, []string{"the", "of"}, c.Text.Stopwords)
				assert.Equal(t, 2, c.Text.MinTokenLength)
			},
		},
		{
			name: "default threshold",
			yaml: "achievement: {default_threshold: 0.8}\n",
			check: func(t *testing.T, c *EngineConfig) {
				assert.Equal(t, 0.8, c.Achievement.DefaultThreshold)
			},
		},
		{name: "default threshold out of range", yaml: "achievement: {default_threshold: 1.2}\n", wantErr: "achievement.default_threshold must be in [0, 1]"},
		{name: "unknown key", yaml: "mapping:\n  overlap: 0.5\n", wantErr: "field overlap not found"},
		{name: "cut points out of order", yaml: "mapping:\n  cutpoints: {neutral: 0.9}\n", wantErr: "major > neutral > low"},
		{name: "weight out of range", yaml: "tier_weights: {major: 1.5}\n", wantErr: "tier_weights.major must be in [0, 1]"},
		{name: "limit", yaml: "suggestion: {limit: 0}\n", wantErr: "suggestion.limit"},
		{name: "malformed", yaml: "text: [", wantErr: "parse engine tunables"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseEngine([]byte(tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, c)
		})
	}
}

func TestEngineConfig_DomainConfigs(t *testing.T) {
	c := DefaultEngineConfig()

	assert.Equal(t, textmatch.DefaultNormalizerConfig(), c.NormalizerConfig())
	assert.Equal(t, mapping.DefaultScorerConfig(), c.ScorerConfig())
	assert.Equal(t, prerequisite.DefaultSuggestionConfig(), c.SuggestionConfig())
	assert.Equal(t, prerequisite.DefaultCheckerConfig(), c.CheckerConfig())
	assert.Equal(t, 0.66, c.OutcomeTierWeights().Neutral)

	n := c.NormalizerConfig()
	n.Stopwords[0] = "changed"
	assert.NotEqual(t, "changed", c.Text.Stopwords[0], "built configs do not alias the stopword list")
}

func TestEngineConfig_MarshalRoundTrip(t *testing.T) {
	c := DefaultEngineConfig()
	c.Suggestion.Limit = 7

	data, err := c.Marshal()
	require.NoError(t, err)

	back, err := ParseEngine(data)
	require.NoError(t, err)
	assert.Equal(t, c, *back)
}
