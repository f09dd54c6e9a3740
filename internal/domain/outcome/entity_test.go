package outcome

import (
	"testing"

	"github.com/loes-hub/outcome-engine/internal/domain/bloom"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOutcome(t *testing.T) {
	t.Run("defaults threshold", func(t *testing.T) {
		o, err := NewOutcome(NewOutcomeParams{ID: 1, CourseID: 2, Verb: "Thiết kế", Text: "chiến dịch", LevelLabel: "Create"})
		require.NoError(t, err)
		assert.Equal(t, DefaultThreshold, o.Threshold)
		assert.Equal(t, bloom.Create, o.Level)
		assert.True(t, o.LevelRecognized)
		assert.Equal(t, "Thiết kế chiến dịch", o.Statement())
	})

	t.Run("unknown level is flagged not rejected", func(t *testing.T) {
		o, err := NewOutcome(NewOutcomeParams{ID: 1, LevelLabel: "Synthesize"})
		require.NoError(t, err)
		assert.Equal(t, bloom.Lowest, o.Level)
		assert.False(t, o.LevelRecognized)
	})

	t.Run("threshold out of range", func(t *testing.T) {
		bad := 1.2
		_, err := NewOutcome(NewOutcomeParams{ID: 1, Threshold: &bad})
		assert.ErrorIs(t, err, shared.ErrValueOutOfRange)
	})
}

func TestContributionTier(t *testing.T) {
	w := DefaultTierWeights()

	assert.Equal(t, 1.0, TierMajor.Weight(w))
	assert.Equal(t, 0.66, TierNeutral.Weight(w))
	assert.Equal(t, 0.33, TierLow.Weight(w))
	assert.Equal(t, 0.0, TierNone.Weight(w))

	assert.True(t, TierLow.IsContributing())
	assert.False(t, TierNone.IsContributing())

	tier, ok := ParseTier("major")
	assert.True(t, ok)
	assert.Equal(t, TierMajor, tier)

	_, ok = ParseTier("X")
	assert.False(t, ok)
}

func TestMappingSource(t *testing.T) {
	assert.True(t, SourceManual.IsAuthoritative())
	assert.True(t, SourceImported.IsAuthoritative())
	assert.False(t, SourceInferred.IsAuthoritative())
	assert.False(t, MappingSource("robot").IsValid())
}

func TestMapping_Validate(t *testing.T) {
	m := &Mapping{OutcomeID: 1, ProgramOutcomeID: 2, Tier: TierMajor, Source: SourceManual}
	assert.NoError(t, m.Validate())

	m.Tier = "Q"
	assert.ErrorIs(t, m.Validate(), shared.ErrInvalidInput)

	m = &Mapping{ProgramOutcomeID: 2, Tier: TierMajor, Source: SourceManual}
	assert.ErrorIs(t, m.Validate(), shared.ErrInvalidID)
}

func TestCourse_DisplayName(t *testing.T) {
	assert.Equal(t, "Marketing", (&Course{ID: 1, Code: "MKT101", Title: "Marketing"}).DisplayName())
	assert.Equal(t, "MKT101", (&Course{ID: 1, Code: "MKT101"}).DisplayName())
	assert.Equal(t, "course #7", (&Course{ID: 7}).DisplayName())
}
