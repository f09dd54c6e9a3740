package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/loes-hub/outcome-engine/internal/domain/mapping"
	"github.com/loes-hub/outcome-engine/internal/domain/outcome"
	"github.com/loes-hub/outcome-engine/internal/domain/prerequisite"
	"github.com/loes-hub/outcome-engine/internal/domain/textmatch"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE TUNABLES
// ══════════════════════════════════════════════════════════════════════════════

// EngineConfig holds every numeric tunable of the engine. Keys missing from
// the YAML file keep their DefaultEngineConfig value.
//
//	achievement:
//	  default_threshold: 0.7
//	text:
//	  min_token_length: 2
//	  stopwords: [và, của, các]
//	tier_weights: {major: 1.0, neutral: 0.66, low: 0.33}
//	mapping:
//	  overlap_weight: 0.6
//	  cutpoints: {major: 0.70, neutral: 0.45, low: 0.20}
//	prerequisite:
//	  default_required_ratio: 0.66
type EngineConfig struct {
	Achievement  AchievementConfig  `yaml:"achievement"`
	Text         TextConfig         `yaml:"text"`
	TierWeights  TierWeightsConfig  `yaml:"tier_weights"`
	Mapping      MappingConfig      `yaml:"mapping"`
	Suggestion   SuggestionConfig   `yaml:"suggestion"`
	Prerequisite PrerequisiteConfig `yaml:"prerequisite"`
}

// AchievementConfig holds the defaults of achievement calculation.
type AchievementConfig struct {
	// DefaultThreshold is given to outcomes created without a threshold.
	DefaultThreshold float64 `yaml:"default_threshold"`
}

// TextConfig configures keyword normalization.
type TextConfig struct {
	MinTokenLength int      `yaml:"min_token_length"`
	Stopwords      []string `yaml:"stopwords"`
}

// TierWeightsConfig is the weight of each contribution tier.
type TierWeightsConfig struct {
	Major   float64 `yaml:"major"`
	Neutral float64 `yaml:"neutral"`
	Low     float64 `yaml:"low"`
}

// CutpointsConfig maps a mapping score to a tier.
type CutpointsConfig struct {
	Major   float64 `yaml:"major"`
	Neutral float64 `yaml:"neutral"`
	Low     float64 `yaml:"low"`
}

// MappingConfig configures the outcome mapping scorer.
type MappingConfig struct {
	OverlapWeight          float64         `yaml:"overlap_weight"`
	BloomWeight            float64         `yaml:"bloom_weight"`
	BonusWeight            float64         `yaml:"bonus_weight"`
	StrongKeywordBonus     float64         `yaml:"strong_keyword_bonus"`
	StrongKeywordMinShared int             `yaml:"strong_keyword_min_shared"`
	StrongKeywordLength    int             `yaml:"strong_keyword_length"`
	Cutpoints              CutpointsConfig `yaml:"cutpoints"`
}

// SuggestionConfig configures the prerequisite suggestion engine.
type SuggestionConfig struct {
	OverlapWeight      float64 `yaml:"overlap_weight"`
	BloomWeight        float64 `yaml:"bloom_weight"`
	Limit              int     `yaml:"limit"`
	ReasonSampleSize   int     `yaml:"reason_sample_size"`
	ReasonOverlapFloor float64 `yaml:"reason_overlap_floor"`
}

// PrerequisiteConfig holds the defaults applied to rules that omit them.
type PrerequisiteConfig struct {
	DefaultRequiredRatio float64 `yaml:"default_required_ratio"`
	DefaultMinimumScore  float64 `yaml:"default_minimum_score"`
}

// DefaultEngineConfig returns the defaults of every domain component.
func DefaultEngineConfig() EngineConfig {
	n := textmatch.DefaultNormalizerConfig()
	w := outcome.DefaultTierWeights()
	m := mapping.DefaultScorerConfig()
	s := prerequisite.DefaultSuggestionConfig()
	c := prerequisite.DefaultCheckerConfig()

	return EngineConfig{
		Achievement: AchievementConfig{DefaultThreshold: outcome.DefaultThreshold},
		Text: TextConfig{
			MinTokenLength: n.MinTokenLength,
			Stopwords:      n.Stopwords,
		},
		TierWeights: TierWeightsConfig{Major: w.Major, Neutral: w.Neutral, Low: w.Low},
		Mapping: MappingConfig{
			OverlapWeight:          m.OverlapWeight,
			BloomWeight:            m.BloomWeight,
			BonusWeight:            m.BonusWeight,
			StrongKeywordBonus:     m.StrongKeywordBonus,
			StrongKeywordMinShared: m.StrongKeywordMinShared,
			StrongKeywordLength:    m.StrongKeywordLength,
			Cutpoints: CutpointsConfig{
				Major:   m.Cutpoints.Major,
				Neutral: m.Cutpoints.Neutral,
				Low:     m.Cutpoints.Low,
			},
		},
		Suggestion: SuggestionConfig{
			OverlapWeight:      s.OverlapWeight,
			BloomWeight:        s.BloomWeight,
			Limit:              s.Limit,
			ReasonSampleSize:   s.ReasonSampleSize,
			ReasonOverlapFloor: s.ReasonOverlapFloor,
		},
		Prerequisite: PrerequisiteConfig{
			DefaultRequiredRatio: c.DefaultRequiredRatio,
			DefaultMinimumScore:  c.DefaultMinimumScore,
		},
	}
}

// LoadEngineFile reads and validates a tunables file.
func LoadEngineFile(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	cfg, err := ParseEngine(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseEngine decodes YAML on top of the defaults and validates the result.
// Unknown keys are rejected. An empty document yields the defaults.
func ParseEngine(data []byte) (*EngineConfig, error) {
	cfg := DefaultEngineConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse engine tunables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Marshal renders the config as YAML.
func (c EngineConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks ranges and cut-point ordering.
func (c EngineConfig) Validate() error {
	var errs []string
	unit := func(name string, v float64) {
		if math.IsNaN(v) || v < 0 || v > 1 {
			errs = append(errs, fmt.Sprintf("%s must be in [0, 1], got %v", name, v))
		}
	}

	unit("achievement.default_threshold", c.Achievement.DefaultThreshold)

	if c.Text.MinTokenLength < 1 {
		errs = append(errs, "text.min_token_length must be at least 1")
	}

	unit("tier_weights.major", c.TierWeights.Major)
	unit("tier_weights.neutral", c.TierWeights.Neutral)
	unit("tier_weights.low", c.TierWeights.Low)

	unit("mapping.overlap_weight", c.Mapping.OverlapWeight)
	unit("mapping.bloom_weight", c.Mapping.BloomWeight)
	unit("mapping.bonus_weight", c.Mapping.BonusWeight)
	unit("mapping.strong_keyword_bonus", c.Mapping.StrongKeywordBonus)
	if c.Mapping.StrongKeywordMinShared < 1 {
		errs = append(errs, "mapping.strong_keyword_min_shared must be at least 1")
	}
	if c.Mapping.StrongKeywordLength < 1 {
		errs = append(errs, "mapping.strong_keyword_length must be at least 1")
	}
	cp := c.Mapping.Cutpoints
	unit("mapping.cutpoints.major", cp.Major)
	unit("mapping.cutpoints.neutral", cp.Neutral)
	unit("mapping.cutpoints.low", cp.Low)
	if !(cp.Major > cp.Neutral && cp.Neutral > cp.Low) {
		errs = append(errs, "mapping.cutpoints must satisfy major > neutral > low")
	}

	unit("suggestion.overlap_weight", c.Suggestion.OverlapWeight)
	unit("suggestion.bloom_weight", c.Suggestion.BloomWeight)
	unit("suggestion.reason_overlap_floor", c.Suggestion.ReasonOverlapFloor)
	if c.Suggestion.Limit < 1 {
		errs = append(errs, "suggestion.limit must be at least 1")
	}
	if c.Suggestion.ReasonSampleSize < 0 {
		errs = append(errs, "suggestion.reason_sample_size cannot be negative")
	}

	unit("prerequisite.default_required_ratio", c.Prerequisite.DefaultRequiredRatio)
	if c.Prerequisite.DefaultMinimumScore < 0 {
		errs = append(errs, "prerequisite.default_minimum_score cannot be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("engine tunables: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN CONFIGS
// ══════════════════════════════════════════════════════════════════════════════

// NormalizerConfig builds the shared text normalizer configuration.
func (c EngineConfig) NormalizerConfig() textmatch.NormalizerConfig {
	stop := make([]string, len(c.Text.Stopwords))
	copy(stop, c.Text.Stopwords)
	return textmatch.NormalizerConfig{
		MinTokenLength: c.Text.MinTokenLength,
		Stopwords:      stop,
	}
}

// OutcomeTierWeights builds the program aggregation weights.
func (c EngineConfig) OutcomeTierWeights() outcome.TierWeights {
	return outcome.TierWeights{
		Major:   c.TierWeights.Major,
		Neutral: c.TierWeights.Neutral,
		Low:     c.TierWeights.Low,
	}
}

func (c EngineConfig) ScorerConfig() mapping.ScorerConfig {
	m := c.Mapping
	return mapping.ScorerConfig{
		OverlapWeight:          m.OverlapWeight,
		BloomWeight:            m.BloomWeight,
		BonusWeight:            m.BonusWeight,
		StrongKeywordBonus:     m.StrongKeywordBonus,
		StrongKeywordMinShared: m.StrongKeywordMinShared,
		StrongKeywordLength:    m.StrongKeywordLength,
		Cutpoints: mapping.Cutpoints{
			Major:   m.Cutpoints.Major,
			Neutral: m.Cutpoints.Neutral,
			Low:     m.Cutpoints.Low,
		},
	}
}

func (c EngineConfig) SuggestionConfig() prerequisite.SuggestionConfig {
	s := c.Suggestion
	return prerequisite.SuggestionConfig{
		OverlapWeight:      s.OverlapWeight,
		BloomWeight:        s.BloomWeight,
		Limit:              s.Limit,
		ReasonSampleSize:   s.ReasonSampleSize,
		ReasonOverlapFloor: s.ReasonOverlapFloor,
	}
}

func (c EngineConfig) CheckerConfig() prerequisite.CheckerConfig {
	return prerequisite.CheckerConfig{
		DefaultRequiredRatio: c.Prerequisite.DefaultRequiredRatio,
		DefaultMinimumScore:  c.Prerequisite.DefaultMinimumScore,
	}
}
