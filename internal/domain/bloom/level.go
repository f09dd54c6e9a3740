// Package bloom models the six-tier cognitive scale used to classify
// learning outcomes.
package bloom

import (
	"strconv"
	"strings"
)

// Level is a cognitive tier. Higher values are more complex.
type Level int

const (
	Remember   Level = 1
	Understand Level = 2
	Apply      Level = 3
	Analyze    Level = 4
	Evaluate   Level = 5
	Create     Level = 6
)

// Lowest is the tier assumed for labels that cannot be parsed.
const Lowest = Remember

// Weight bands for mapping scores.
const (
	WeightLow    = 0.33
	WeightMedium = 0.66
	WeightHigh   = 1.0
)

var names = map[Level]string{
	Remember:   "Remember",
	Understand: "Understand",
	Apply:      "Apply",
	Analyze:    "Analyze",
	Evaluate:   "Evaluate",
	Create:     "Create",
}

var aliases = map[string]Level{
	"remember":   Remember,
	"understand": Understand,
	"apply":      Apply,
	"analyze":    Analyze,
	"analyse":    Analyze,
	"evaluate":   Evaluate,
	"create":     Create,
}

// IsValid checks if the level is one of the six tiers.
func (l Level) IsValid() bool {
	return l >= Remember && l <= Create
}

// String returns the canonical label, or "Unknown".
func (l Level) String() string {
	if n, ok := names[l]; ok {
		return n
	}
	return "Unknown"
}

// Tier returns the numeric tier, 1 through 6. Invalid levels report the lowest tier.
func (l Level) Tier() int {
	if !l.IsValid() {
		return int(Lowest)
	}
	return int(l)
}

// Weight returns the mapping-score band: tiers 1-2 are low, 3-4 medium, 5-6 high.
func (l Level) Weight() float64 {
	switch l {
	case Apply, Analyze:
		return WeightMedium
	case Evaluate, Create:
		return WeightHigh
	default:
		return WeightLow
	}
}

// Parse converts a label such as "Create", "analyse" or "4" into a Level.
// The boolean is false when the label is not recognized, in which case the
// lowest tier is returned so callers can flag the record and continue.
func Parse(label string) (Level, bool) {
	s := strings.ToLower(strings.TrimSpace(label))
	if l, ok := aliases[s]; ok {
		return l, true
	}
	if n, err := strconv.Atoi(s); err == nil && Level(n).IsValid() {
		return Level(n), true
	}
	return Lowest, false
}

// MeanTier returns the arithmetic mean tier of levels, or 0 for none.
func MeanTier(levels []Level) float64 {
	if len(levels) == 0 {
		return 0
	}
	sum := 0
	for _, l := range levels {
		sum += l.Tier()
	}
	return float64(sum) / float64(len(levels))
}
