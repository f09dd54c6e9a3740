package prerequisite

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/loes-hub/outcome-engine/internal/domain/bloom"
	"github.com/loes-hub/outcome-engine/internal/domain/outcome"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
	"github.com/loes-hub/outcome-engine/internal/domain/textmatch"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUGGESTION ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// NoSpecificReason is the only match reason of a suggestion with nothing else to say.
const NoSpecificReason = "no specific reason"

// SuggestionConfig tunes the suggestion engine.
type SuggestionConfig struct {
	OverlapWeight float64
	BloomWeight   float64

	// Limit is the maximum number of suggestions returned.
	Limit int

	// ReasonSampleSize caps the shared keywords quoted in a reason.
	ReasonSampleSize int

	// ReasonOverlapFloor is the overlap above which shared keywords are quoted.
	ReasonOverlapFloor float64
}

// DefaultSuggestionConfig returns 0.6 / 0.4 weights and the top 5.
func DefaultSuggestionConfig() SuggestionConfig {
	return SuggestionConfig{
		OverlapWeight:      0.6,
		BloomWeight:        0.4,
		Limit:              5,
		ReasonSampleSize:   3,
		ReasonOverlapFloor: 0.2,
	}
}

// Candidate is one outcome statement of a course that is not stored yet.
type Candidate struct {
	Text  string
	Level bloom.Level
}

// CourseProfile is an existing course with its outcomes.
type CourseProfile struct {
	Course   *outcome.Course
	Outcomes []*outcome.Outcome
}

// Suggestion is a ranked prerequisite candidate.
type Suggestion struct {
	CourseID   shared.ID
	Code       string
	Title      string
	Confidence float64

	Overlap float64
	// BloomGap is mean input tier minus mean course tier.
	BloomGap float64

	MatchReasons []string
}

// SuggestionEngine ranks existing courses as prerequisites for a new one.
// It is immutable and safe for concurrent use.
type SuggestionEngine struct {
	cfg        SuggestionConfig
	normalizer *textmatch.Normalizer
}

// NewSuggestionEngine creates a SuggestionEngine that tokenizes with n.
func NewSuggestionEngine(cfg SuggestionConfig, n *textmatch.Normalizer) *SuggestionEngine {
	return &SuggestionEngine{cfg: cfg, normalizer: n}
}

// Config returns the engine configuration.
func (e *SuggestionEngine) Config() SuggestionConfig {
	return e.cfg
}

// Suggest scores every course that has outcomes against the candidates and
// returns the best ones, highest confidence first. Ties keep course ID order.
func (e *SuggestionEngine) Suggest(candidates []Candidate, courses []CourseProfile) []Suggestion {
	if len(candidates) == 0 {
		return []Suggestion{}
	}

	inputTokens := textmatch.NewKeywordSet()
	inputLevels := make([]bloom.Level, 0, len(candidates))
	for _, c := range candidates {
		inputTokens.Merge(e.normalizer.Normalize(c.Text))
		inputLevels = append(inputLevels, c.Level)
	}
	inputTier := bloom.MeanTier(inputLevels)

	profiles := make([]CourseProfile, 0, len(courses))
	for _, p := range courses {
		if p.Course == nil || len(p.Outcomes) == 0 {
			continue
		}
		profiles = append(profiles, p)
	}
	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].Course.ID < profiles[j].Course.ID
	})

	out := make([]Suggestion, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, e.score(inputTokens, inputTier, p))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})

	if e.cfg.Limit > 0 && len(out) > e.cfg.Limit {
		out = out[:e.cfg.Limit]
	}
	return out
}

func (e *SuggestionEngine) score(input textmatch.KeywordSet, inputTier float64, p CourseProfile) Suggestion {
	tokens := textmatch.NewKeywordSet()
	levels := make([]bloom.Level, 0, len(p.Outcomes))
	for _, o := range p.Outcomes {
		tokens.Merge(e.normalizer.Normalize(o.Text))
		levels = append(levels, o.Level)
	}

	overlap := textmatch.JaccardEmptyAsEqual(input, tokens)
	gap := inputTier - bloom.MeanTier(levels)
	bloomScore := shared.Clamp(1-math.Abs(gap)/6, 0, 1)

	s := Suggestion{
		CourseID:   p.Course.ID,
		Code:       p.Course.Code,
		Title:      p.Course.Title,
		Confidence: e.cfg.OverlapWeight*overlap + e.cfg.BloomWeight*bloomScore,
		Overlap:    overlap,
		BloomGap:   gap,
	}

	var reasons []string
	if overlap > e.cfg.ReasonOverlapFloor {
		if common := textmatch.Shared(input, tokens); len(common) > 0 {
			if n := e.cfg.ReasonSampleSize; n > 0 && len(common) > n {
				common = common[:n]
			}
			reasons = append(reasons, "shared keywords: "+strings.Join(common, ", "))
		}
	}
	switch {
	case gap > 0:
		reasons = append(reasons, fmt.Sprintf("cognitive level higher by %.1f tiers", gap))
	case gap < 0:
		reasons = append(reasons, fmt.Sprintf("cognitive level lower by %.1f tiers", -gap))
	}
	if len(reasons) == 0 {
		reasons = []string{NoSpecificReason}
	}
	s.MatchReasons = reasons

	return s
}
