package outcome

import (
	"strings"
	"time"

	"github.com/loes-hub/outcome-engine/internal/domain/bloom"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
)

// DefaultThreshold is the achievement ratio a student must reach on an outcome.
const DefaultThreshold = 0.7

// ══════════════════════════════════════════════════════════════════════════════
// PROGRAM & COURSE
// ══════════════════════════════════════════════════════════════════════════════

// Program is a degree programme that owns courses and program outcomes.
type Program struct {
	ID   shared.ID
	Code string
	Name string

	// ExpectedThreshold is the target program attainment rate used in reports.
	ExpectedThreshold float64
}

// Course is one course offering of a program.
type Course struct {
	ID          shared.ID
	ProgramID   shared.ID
	Code        string
	Title       string
	Credits     int
	VersionYear int
}

// DisplayName returns the title, falling back to the code and then the ID.
func (c *Course) DisplayName() string {
	if c == nil {
		return ""
	}
	if t := strings.TrimSpace(c.Title); t != "" {
		return t
	}
	if c.Code != "" {
		return c.Code
	}
	return "course #" + c.ID.String()
}

// ══════════════════════════════════════════════════════════════════════════════
// OUTCOMES
// ══════════════════════════════════════════════════════════════════════════════

// Outcome is a course learning outcome (CLO).
type Outcome struct {
	ID       shared.ID
	CourseID shared.ID
	Code     string
	Verb     string
	Text     string

	// Level is the cognitive tier. When the stored label was not recognized,
	// Level is bloom.Lowest and LevelRecognized is false.
	Level           bloom.Level
	LevelLabel      string
	LevelRecognized bool

	// Threshold is the achievement ratio in [0, 1] a student must reach.
	Threshold float64
}

// NewOutcomeParams contains the parameters for NewOutcome.
type NewOutcomeParams struct {
	ID         shared.ID
	CourseID   shared.ID
	Code       string
	Verb       string
	Text       string
	LevelLabel string

	// Threshold defaults to DefaultThreshold when nil.
	Threshold *float64
}

// NewOutcome builds a validated Outcome. An unrecognized level label is not
// an error; it is recorded on the entity.
func NewOutcome(p NewOutcomeParams) (*Outcome, error) {
	threshold := DefaultThreshold
	if p.Threshold != nil {
		threshold = *p.Threshold
	}

	level, ok := bloom.Parse(p.LevelLabel)
	o := &Outcome{
		ID:              p.ID,
		CourseID:        p.CourseID,
		Code:            p.Code,
		Verb:            p.Verb,
		Text:            p.Text,
		Level:           level,
		LevelLabel:      p.LevelLabel,
		LevelRecognized: ok,
		Threshold:       threshold,
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Validate checks the outcome invariants.
func (o *Outcome) Validate() error {
	if !shared.Ratio(o.Threshold).IsValid() {
		return shared.ErrInvalidThreshold
	}
	return nil
}

// Statement returns the verb and text joined by a space, as scored against PLOs.
func (o *Outcome) Statement() string {
	return strings.TrimSpace(o.Verb + " " + o.Text)
}

// ProgramOutcome is a program learning outcome (PLO).
type ProgramOutcome struct {
	ID          shared.ID
	ProgramID   shared.ID
	Code        string
	Description string
}

// ══════════════════════════════════════════════════════════════════════════════
// MAPPINGS
// ══════════════════════════════════════════════════════════════════════════════

// MappingSource records who decided a mapping tier.
type MappingSource string

const (
	SourceManual   MappingSource = "manual"
	SourceImported MappingSource = "imported"
	SourceInferred MappingSource = "inferred"
)

// IsValid checks if the source is known.
func (s MappingSource) IsValid() bool {
	switch s {
	case SourceManual, SourceImported, SourceInferred:
		return true
	}
	return false
}

// IsAuthoritative reports whether the tier was set by a person and must not be
// replaced by inference.
func (s MappingSource) IsAuthoritative() bool {
	return s == SourceManual || s == SourceImported
}

// Mapping links one CLO to one PLO with a contribution tier.
type Mapping struct {
	OutcomeID        shared.ID
	ProgramOutcomeID shared.ID
	Tier             ContributionTier
	Source           MappingSource

	// Score is the scorer output for inferred mappings, zero otherwise.
	Score     float64
	UpdatedAt time.Time
}

// Validate checks the mapping invariants.
func (m *Mapping) Validate() error {
	if !m.OutcomeID.IsValid() || !m.ProgramOutcomeID.IsValid() {
		return shared.NewDomainError("outcome", "ValidateMapping", shared.ErrInvalidID, "mapping requires outcome and program outcome IDs")
	}
	if !m.Tier.IsValid() {
		return shared.ErrInvalidTier
	}
	if !m.Source.IsValid() {
		return shared.NewDomainError("outcome", "ValidateMapping", shared.ErrInvalidInput, "invalid mapping source")
	}
	return nil
}
