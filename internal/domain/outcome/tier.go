package outcome

import "strings"

// ContributionTier is the strength of a CLO's support for a PLO.
type ContributionTier string

const (
	TierMajor   ContributionTier = "M"
	TierNeutral ContributionTier = "N"
	TierLow     ContributionTier = "L"
	TierNone    ContributionTier = "-"
)

// IsValid checks if the tier is one of the four known values.
func (t ContributionTier) IsValid() bool {
	switch t {
	case TierMajor, TierNeutral, TierLow, TierNone:
		return true
	}
	return false
}

// IsContributing reports whether the tier counts toward program attainment.
func (t ContributionTier) IsContributing() bool {
	return t == TierMajor || t == TierNeutral || t == TierLow
}

// Weight returns the contribution weight of the tier, 0 for None.
func (t ContributionTier) Weight(w TierWeights) float64 {
	switch t {
	case TierMajor:
		return w.Major
	case TierNeutral:
		return w.Neutral
	case TierLow:
		return w.Low
	default:
		return 0
	}
}

// Label returns a readable name.
func (t ContributionTier) Label() string {
	switch t {
	case TierMajor:
		return "Major"
	case TierNeutral:
		return "Neutral"
	case TierLow:
		return "Low"
	case TierNone:
		return "None"
	default:
		return "Unknown"
	}
}

// ParseTier accepts the stored code ("M", "N", "L", "-") or the readable
// label, case-insensitively.
func ParseTier(s string) (ContributionTier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "major":
		return TierMajor, true
	case "n", "neutral":
		return TierNeutral, true
	case "l", "low":
		return TierLow, true
	case "-", "none", "":
		return TierNone, true
	}
	return TierNone, false
}

// TierWeights are the contribution weights of the contributing tiers.
type TierWeights struct {
	Major   float64
	Neutral float64
	Low     float64
}

// DefaultTierWeights returns 1.0 / 0.66 / 0.33.
func DefaultTierWeights() TierWeights {
	return TierWeights{Major: 1.0, Neutral: 0.66, Low: 0.33}
}
