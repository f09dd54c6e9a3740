package prerequisite

import (
	"context"
	"errors"
	"fmt"

	"github.com/loes-hub/outcome-engine/internal/domain/achievement"
	"github.com/loes-hub/outcome-engine/internal/domain/outcome"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SATISFACTION CHECKER
// ══════════════════════════════════════════════════════════════════════════════

// Status classifies a check result.
type Status string

const (
	StatusMet            Status = "met"
	StatusNotTaken       Status = "not_taken"
	StatusNotAchieved    Status = "not_achieved"
	StatusInsufficient   Status = "insufficient"
	StatusUnverified     Status = "unverified"
	StatusNotImplemented Status = "not_implemented"
	StatusInvalid        Status = "invalid"
)

// CheckResult is the uniform outcome of every condition kind.
type CheckResult struct {
	Meets          bool
	Details        string
	MissingCourses []string
	Status         Status

	// Unverified is set when Meets is an optimistic default because the
	// prerequisite course has nothing to check against.
	Unverified bool

	Kind ConditionKind
}

// CheckerConfig holds the defaults applied to conditions with missing parameters.
type CheckerConfig struct {
	DefaultRequiredRatio float64
	DefaultMinimumScore  float64
}

// DefaultCheckerConfig returns a 0.66 ratio and a 5.0 minimum score.
func DefaultCheckerConfig() CheckerConfig {
	return CheckerConfig{
		DefaultRequiredRatio: 0.66,
		DefaultMinimumScore:  5.0,
	}
}

// HistoryReader is the data the checker needs about courses and a student.
type HistoryReader interface {
	GetCourse(ctx context.Context, id shared.ID) (*outcome.Course, error)
	ListOutcomes(ctx context.Context, courseID shared.ID) ([]*outcome.Outcome, error)
	ListStudentResults(ctx context.Context, studentID shared.ID, outcomeIDs []shared.ID) ([]*achievement.Result, error)
}

// Checker decides whether a student satisfies a prerequisite rule.
// Conditions that cannot be evaluated come back as a result, never an error;
// errors are reserved for the data store.
type Checker struct {
	cfg     CheckerConfig
	history HistoryReader
}

// NewChecker creates a Checker.
func NewChecker(cfg CheckerConfig, history HistoryReader) *Checker {
	return &Checker{cfg: cfg, history: history}
}

// Check evaluates rule for the student.
func (c *Checker) Check(ctx context.Context, studentID shared.ID, rule *Rule) (CheckResult, error) {
	var (
		res CheckResult
		err error
	)

	switch cond := rule.Condition.(type) {
	case nil, PassCourse:
		res, err = c.checkPassCourse(ctx, studentID, rule.PrereqCourseID)
	case OutcomeAchievementRatio:
		res, err = c.checkOutcomeRatio(ctx, studentID, cond)
	case MinimumScore:
		minScore := c.cfg.DefaultMinimumScore
		if cond.MinScore != nil {
			minScore = *cond.MinScore
		}
		res = CheckResult{
			Details: fmt.Sprintf("condition kind %s (minimum %.1f) is not implemented", cond.Kind(), minScore),
			Status:  StatusNotImplemented,
		}
	case ProgramOutcomeThreshold:
		res = CheckResult{
			Details: fmt.Sprintf("condition kind %s is not implemented", cond.Kind()),
			Status:  StatusNotImplemented,
		}
	default:
		res = CheckResult{
			Details: fmt.Sprintf("invalid condition kind %q", cond.Kind()),
			Status:  StatusInvalid,
		}
	}
	if err != nil {
		return CheckResult{}, err
	}

	if rule.Condition == nil {
		res.Kind = KindPassCourse
	} else {
		res.Kind = rule.Condition.Kind()
	}
	return res, nil
}

func (c *Checker) checkPassCourse(ctx context.Context, studentID, courseID shared.ID) (CheckResult, error) {
	outcomes, err := c.history.ListOutcomes(ctx, courseID)
	if err != nil {
		return CheckResult{}, fmt.Errorf("list prerequisite outcomes: %w", err)
	}
	if len(outcomes) == 0 {
		return CheckResult{
			Meets:      true,
			Details:    "prerequisite course has no outcomes to verify; assumed satisfied",
			Status:     StatusUnverified,
			Unverified: true,
		}, nil
	}

	ids := make([]shared.ID, 0, len(outcomes))
	for _, o := range outcomes {
		ids = append(ids, o.ID)
	}

	results, err := c.history.ListStudentResults(ctx, studentID, ids)
	if err != nil {
		return CheckResult{}, fmt.Errorf("list student results: %w", err)
	}

	name, err := c.courseName(ctx, courseID)
	if err != nil {
		return CheckResult{}, err
	}

	if len(results) == 0 {
		return CheckResult{
			Details:        "not yet taken: " + name,
			MissingCourses: []string{name},
			Status:         StatusNotTaken,
		}, nil
	}

	for _, r := range results {
		if r.Achieved {
			return CheckResult{
				Meets:          true,
				Details:        "completed: " + name,
				MissingCourses: []string{},
				Status:         StatusMet,
			}, nil
		}
	}

	return CheckResult{
		Details:        "not achieved: " + name,
		MissingCourses: []string{name},
		Status:         StatusNotAchieved,
	}, nil
}

func (c *Checker) checkOutcomeRatio(ctx context.Context, studentID shared.ID, cond OutcomeAchievementRatio) (CheckResult, error) {
	required := make([]shared.ID, 0, len(cond.RequiredOutcomeIDs))
	seen := shared.NewIDSet()
	for _, id := range cond.RequiredOutcomeIDs {
		if seen.Has(id) {
			continue
		}
		seen.Add(id)
		required = append(required, id)
	}

	achieved := 0
	if len(required) > 0 {
		results, err := c.history.ListStudentResults(ctx, studentID, required)
		if err != nil {
			return CheckResult{}, fmt.Errorf("list student results: %w", err)
		}
		for _, r := range results {
			if r.Achieved && seen.Has(r.OutcomeID) {
				achieved++
			}
		}
	}

	ratio := shared.SafeDivide(float64(achieved), float64(len(required)))
	if ratio >= cond.Ratio(c.cfg.DefaultRequiredRatio) {
		return CheckResult{
			Meets:   true,
			Details: fmt.Sprintf("achieved %d/%d required outcomes", achieved, len(required)),
			Status:  StatusMet,
		}, nil
	}
	return CheckResult{
		Details: fmt.Sprintf("insufficient outcomes achieved (%d/%d)", achieved, len(required)),
		Status:  StatusInsufficient,
	}, nil
}

func (c *Checker) courseName(ctx context.Context, id shared.ID) (string, error) {
	course, err := c.history.GetCourse(ctx, id)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return (&outcome.Course{ID: id}).DisplayName(), nil
	case err != nil:
		return "", fmt.Errorf("get prerequisite course: %w", err)
	}
	return course.DisplayName(), nil
}
