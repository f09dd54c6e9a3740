// Package mapping infers how strongly a course outcome supports a program
// outcome from keyword overlap, cognitive level and shared strong keywords.
package mapping

import (
	"unicode/utf8"

	"github.com/loes-hub/outcome-engine/internal/domain/bloom"
	"github.com/loes-hub/outcome-engine/internal/domain/outcome"
	"github.com/loes-hub/outcome-engine/internal/domain/textmatch"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Cutpoints are the inclusive lower bounds of each contributing tier.
type Cutpoints struct {
	Major   float64
	Neutral float64
	Low     float64
}

// Classify converts a score into a tier.
func (c Cutpoints) Classify(score float64) outcome.ContributionTier {
	switch {
	case score >= c.Major:
		return outcome.TierMajor
	case score >= c.Neutral:
		return outcome.TierNeutral
	case score >= c.Low:
		return outcome.TierLow
	default:
		return outcome.TierNone
	}
}

// ScorerConfig holds the signal weights and cut points of the scorer.
type ScorerConfig struct {
	OverlapWeight float64 // K
	BloomWeight   float64 // B
	BonusWeight   float64 // H

	// StrongKeywordBonus is the value of H when it fires.
	StrongKeywordBonus float64

	// H fires with at least StrongKeywordMinShared shared tokens, or with any
	// shared token longer than StrongKeywordLength characters.
	StrongKeywordMinShared int
	StrongKeywordLength    int

	Cutpoints Cutpoints
}

// DefaultScorerConfig returns 0.6 / 0.3 / 0.1 weights, a 0.2 bonus and
// 0.70 / 0.45 / 0.20 cut points.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		OverlapWeight:          0.6,
		BloomWeight:            0.3,
		BonusWeight:            0.1,
		StrongKeywordBonus:     0.2,
		StrongKeywordMinShared: 2,
		StrongKeywordLength:    4,
		Cutpoints: Cutpoints{
			Major:   0.70,
			Neutral: 0.45,
			Low:     0.20,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SCORER
// ══════════════════════════════════════════════════════════════════════════════

// Signals are the three inputs of a mapping score.
type Signals struct {
	K float64
	B float64
	H float64

	// Shared lists the tokens the two statements have in common, sorted.
	Shared []string
}

// Suggestion is a scored, classified CLO↔PLO pair.
type Suggestion struct {
	Score float64
	Tier  outcome.ContributionTier
	Signals
}

// Scorer computes mapping suggestions. It is immutable and safe for concurrent use.
type Scorer struct {
	cfg        ScorerConfig
	normalizer *textmatch.Normalizer
}

// NewScorer creates a Scorer that tokenizes with n.
func NewScorer(cfg ScorerConfig, n *textmatch.Normalizer) *Scorer {
	return &Scorer{cfg: cfg, normalizer: n}
}

// Config returns the scorer configuration.
func (s *Scorer) Config() ScorerConfig {
	return s.cfg
}

// Score rates how strongly the course outcome supports the program outcome.
func (s *Scorer) Score(o *outcome.Outcome, plo *outcome.ProgramOutcome) Suggestion {
	return s.ScoreText(o.Statement(), o.Level, plo.Description)
}

// ScoreText is Score for raw text.
func (s *Scorer) ScoreText(courseStatement string, level bloom.Level, programText string) Suggestion {
	return s.ScoreSets(s.normalizer.Normalize(courseStatement), level, s.normalizer.Normalize(programText))
}

// ScoreSets is Score for already-normalized keyword sets.
func (s *Scorer) ScoreSets(course textmatch.KeywordSet, level bloom.Level, program textmatch.KeywordSet) Suggestion {
	shared := textmatch.Shared(course, program)
	sig := Signals{
		K:      textmatch.Jaccard(course, program),
		B:      level.Weight(),
		H:      s.bonus(shared),
		Shared: shared,
	}

	score := s.Combine(sig.K, sig.B, sig.H)
	return Suggestion{
		Score:   score,
		Tier:    s.cfg.Cutpoints.Classify(score),
		Signals: sig,
	}
}

// Combine returns the weighted sum of the three signals.
func (s *Scorer) Combine(k, b, h float64) float64 {
	return s.cfg.OverlapWeight*k + s.cfg.BloomWeight*b + s.cfg.BonusWeight*h
}

func (s *Scorer) bonus(shared []string) float64 {
	if len(shared) >= s.cfg.StrongKeywordMinShared {
		return s.cfg.StrongKeywordBonus
	}
	for _, tok := range shared {
		if utf8.RuneCountInString(tok) > s.cfg.StrongKeywordLength {
			return s.cfg.StrongKeywordBonus
		}
	}
	return 0
}
