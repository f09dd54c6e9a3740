// Package prerequisite models course prerequisite rules, suggests likely
// prerequisites for a new course and checks whether a student satisfies a rule.
package prerequisite

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/loes-hub/outcome-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RULE TYPE
// ══════════════════════════════════════════════════════════════════════════════

// Type is how binding a prerequisite is.
type Type string

const (
	TypeStrict      Type = "strict"
	TypeCorequisite Type = "coreq"
	TypeRecommended Type = "recommended"
)

// IsValid checks if the type is known.
func (t Type) IsValid() bool {
	switch t {
	case TypeStrict, TypeCorequisite, TypeRecommended:
		return true
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// CONDITIONS
// ══════════════════════════════════════════════════════════════════════════════

// ConditionKind names a condition case as stored.
type ConditionKind string

const (
	KindPassCourse              ConditionKind = "pass_course"
	KindOutcomeAchievementRatio ConditionKind = "clo_achievement"
	KindProgramOutcomeThreshold ConditionKind = "plo_threshold"
	KindMinimumScore            ConditionKind = "min_score"
)

// Condition is the closed set of prerequisite conditions. Optional fields are
// pointers; nil means "use the checker default".
type Condition interface {
	Kind() ConditionKind
	isCondition()
}

// PassCourse requires the prerequisite course to have been passed.
type PassCourse struct{}

// OutcomeAchievementRatio requires a share of the listed outcomes to be achieved.
type OutcomeAchievementRatio struct {
	RequiredOutcomeIDs []shared.ID `json:"required_clo_ids,omitempty"`
	RequiredRatio      *float64    `json:"required_ratio,omitempty"`
}

// ProgramOutcomeThreshold requires a program outcome attainment level.
type ProgramOutcomeThreshold struct {
	ProgramOutcomeID shared.ID `json:"plo_id,omitempty"`
	Threshold        *float64  `json:"threshold,omitempty"`
}

// MinimumScore requires a minimum course score.
type MinimumScore struct {
	MinScore *float64 `json:"min_score,omitempty"`
}

// UnknownCondition carries a kind this version does not understand.
type UnknownCondition struct {
	RawKind string
	Payload json.RawMessage
}

func (PassCourse) Kind() ConditionKind              { return KindPassCourse }
func (OutcomeAchievementRatio) Kind() ConditionKind { return KindOutcomeAchievementRatio }
func (ProgramOutcomeThreshold) Kind() ConditionKind { return KindProgramOutcomeThreshold }
func (MinimumScore) Kind() ConditionKind            { return KindMinimumScore }
func (u UnknownCondition) Kind() ConditionKind      { return ConditionKind(u.RawKind) }

func (PassCourse) isCondition()              {}
func (OutcomeAchievementRatio) isCondition() {}
func (ProgramOutcomeThreshold) isCondition() {}
func (MinimumScore) isCondition()            {}
func (UnknownCondition) isCondition()        {}

// Ratio returns the required ratio or def when unset.
func (c OutcomeAchievementRatio) Ratio(def float64) float64 {
	if c.RequiredRatio == nil {
		return def
	}
	return *c.RequiredRatio
}

// DecodeCondition builds a Condition from its stored kind and JSON payload.
// Missing keys keep their zero/default meaning. A payload that is not valid
// JSON still yields the condition with defaults, together with
// ErrInvalidPayloadJSON so the caller can log it.
func DecodeCondition(kind string, payload []byte) (Condition, error) {
	k := ConditionKind(strings.ToLower(strings.TrimSpace(kind)))
	if k == "" {
		k = KindPassCourse
	}

	var decodeErr error
	decode := func(dst any) {
		if len(payload) == 0 || string(payload) == "null" {
			return
		}
		if err := json.Unmarshal(payload, dst); err != nil {
			decodeErr = fmt.Errorf("%w: %v", shared.ErrInvalidPayloadJSON, err)
		}
	}

	switch k {
	case KindPassCourse:
		return PassCourse{}, nil
	case KindOutcomeAchievementRatio:
		var c OutcomeAchievementRatio
		decode(&c)
		if decodeErr != nil {
			c = OutcomeAchievementRatio{}
		}
		return c, decodeErr
	case KindProgramOutcomeThreshold:
		var c ProgramOutcomeThreshold
		decode(&c)
		if decodeErr != nil {
			c = ProgramOutcomeThreshold{}
		}
		return c, decodeErr
	case KindMinimumScore:
		var c MinimumScore
		decode(&c)
		if decodeErr != nil {
			c = MinimumScore{}
		}
		return c, decodeErr
	default:
		return UnknownCondition{RawKind: kind, Payload: append(json.RawMessage(nil), payload...)}, nil
	}
}

// EncodeCondition returns the stored kind and JSON payload of c.
func EncodeCondition(c Condition) (string, []byte, error) {
	switch v := c.(type) {
	case nil:
		return string(KindPassCourse), []byte("{}"), nil
	case PassCourse:
		return string(KindPassCourse), []byte("{}"), nil
	case UnknownCondition:
		if len(v.Payload) == 0 {
			return v.RawKind, []byte("{}"), nil
		}
		return v.RawKind, v.Payload, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", nil, err
		}
		return string(c.Kind()), data, nil
	}
}
