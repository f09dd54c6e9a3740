package bloom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		label string
		want  Level
		ok    bool
	}{
		{"Remember", Remember, true},
		{"  understand ", Understand, true},
		{"APPLY", Apply, true},
		{"Analyse", Analyze, true},
		{"evaluate", Evaluate, true},
		{"Create", Create, true},
		{"5", Evaluate, true},
		{"7", Remember, false},
		{"synthesize", Remember, false},
		{"", Remember, false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := Parse(tt.label)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestLevel_Weight(t *testing.T) {
	assert.Equal(t, 0.33, Remember.Weight())
	assert.Equal(t, 0.33, Understand.Weight())
	assert.Equal(t, 0.66, Apply.Weight())
	assert.Equal(t, 0.66, Analyze.Weight())
	assert.Equal(t, 1.0, Evaluate.Weight())
	assert.Equal(t, 1.0, Create.Weight())
	assert.Equal(t, 0.33, Level(0).Weight())
}

func TestLevel_TierAndString(t *testing.T) {
	assert.Equal(t, 6, Create.Tier())
	assert.Equal(t, 1, Level(42).Tier())
	assert.Equal(t, "Analyze", Analyze.String())
	assert.Equal(t, "Unknown", Level(0).String())
}

func TestMeanTier(t *testing.T) {
	assert.Equal(t, 0.0, MeanTier(nil))
	assert.Equal(t, 3.5, MeanTier([]Level{Apply, Analyze}))
	assert.InDelta(t, 10.0/3.0, MeanTier([]Level{Remember, Apply, Create}), 1e-12)
}
