package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loes-hub/outcome-engine/internal/domain/assessment"
	"github.com/loes-hub/outcome-engine/internal/domain/prerequisite"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
	"github.com/loes-hub/outcome-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHECK PREREQUISITE QUERY
// Проверяет, выполняет ли студент предварительные условия курса.
// Студент допущен, если выполнены все обязательные (strict) правила.
// ══════════════════════════════════════════════════════════════════════════════

// CheckPrerequisiteQuery содержит параметры запроса.
type CheckPrerequisiteQuery struct {
	StudentID shared.ID

	// CourseID - курс, на который записывается студент. Проверяются все его правила.
	CourseID shared.ID

	// RuleID - проверить одно правило (CourseID тогда не обязателен).
	RuleID shared.ID

	// Year - год версии учебного плана (0 = любой).
	Year int
}

// Validate проверяет корректность параметров запроса.
func (q CheckPrerequisiteQuery) Validate() error {
	if !q.StudentID.IsValid() {
		return shared.NewDomainError("query", "CheckPrerequisite", shared.ErrInvalidID, "student_id must be positive")
	}
	if !q.CourseID.IsValid() && !q.RuleID.IsValid() {
		return shared.NewDomainError("query", "CheckPrerequisite", shared.ErrInvalidInput, "course_id or rule_id is required")
	}
	if q.Year < 0 {
		return shared.NewDomainError("query", "CheckPrerequisite", shared.ErrValueOutOfRange, "year cannot be negative")
	}
	return nil
}

// RuleCheckDTO - результат проверки одного правила.
type RuleCheckDTO struct {
	RuleID         shared.ID                  `json:"rule_id"`
	PrereqCourseID shared.ID                  `json:"prereq_course_id"`
	Type           prerequisite.Type          `json:"type"`
	Kind           prerequisite.ConditionKind `json:"condition_type"`
	Meets          bool                       `json:"meets"`
	Status         prerequisite.Status        `json:"status"`
	Details        string                     `json:"details"`
	MissingCourses []string                   `json:"missing_courses"`
	Unverified     bool                       `json:"unverified"`
}

// CheckPrerequisiteResult содержит результат запроса.
type CheckPrerequisiteResult struct {
	StudentID shared.ID      `json:"student_id"`
	CourseID  shared.ID      `json:"course_id"`
	Eligible  bool           `json:"eligible"`
	Rules     []RuleCheckDTO `json:"rules"`
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// RuleReader - чтение правил.
type RuleReader interface {
	GetRule(ctx context.Context, id shared.ID) (*prerequisite.Rule, error)
	ListRules(ctx context.Context, courseID shared.ID) ([]*prerequisite.Rule, error)
}

// StudentReader - чтение студентов.
type StudentReader interface {
	GetStudent(ctx context.Context, id shared.ID) (*assessment.Student, error)
	ListStudents(ctx context.Context, cohort shared.Cohort) ([]*assessment.Student, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CheckPrerequisiteHandler обрабатывает запрос.
type CheckPrerequisiteHandler struct {
	rules    RuleReader
	students StudentReader
	checker  *prerequisite.Checker
	recorder Recorder
	logger   *slog.Logger
}

// NewCheckPrerequisiteHandler создаёт новый обработчик.
func NewCheckPrerequisiteHandler(
	rules RuleReader,
	students StudentReader,
	checker *prerequisite.Checker,
	recorder Recorder,
	log *slog.Logger,
) *CheckPrerequisiteHandler {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &CheckPrerequisiteHandler{
		rules:    rules,
		students: students,
		checker:  checker,
		recorder: recorder,
		logger:   logger.OrDefault(log).With(logger.Component("check_prerequisite")),
	}
}

// Handle выполняет запрос.
func (h *CheckPrerequisiteHandler) Handle(ctx context.Context, q CheckPrerequisiteQuery) (res *CheckPrerequisiteResult, err error) {
	started := time.Now()
	defer func() { h.recorder.ObserveQuery("check_prerequisite", time.Since(started), err) }()

	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("check_prerequisite: validation failed: %w", err)
	}

	if _, err := h.students.GetStudent(ctx, q.StudentID); err != nil {
		return nil, fmt.Errorf("check_prerequisite: %w", err)
	}

	rules, courseID, err := h.selectRules(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("check_prerequisite: %w", err)
	}

	res = &CheckPrerequisiteResult{
		StudentID: q.StudentID,
		CourseID:  courseID,
		Eligible:  true,
		Rules:     make([]RuleCheckDTO, 0, len(rules)),
	}

	for _, rule := range rules {
		cr, err := h.checker.Check(ctx, q.StudentID, rule)
		if err != nil {
			return nil, fmt.Errorf("check_prerequisite: rule %s: %w", rule.ID, err)
		}
		if cr.Status == prerequisite.StatusNotImplemented || cr.Status == prerequisite.StatusInvalid {
			h.logger.Warn("prerequisite condition not evaluated",
				logger.StudentID(q.StudentID.Int64()),
				logger.RuleID(rule.ID.Int64()),
				slog.String("kind", string(cr.Kind)),
				slog.String("status", string(cr.Status)),
			)
		}
		if rule.Type == prerequisite.TypeStrict && !cr.Meets {
			res.Eligible = false
		}

		missing := cr.MissingCourses
		if missing == nil {
			missing = []string{}
		}
		res.Rules = append(res.Rules, RuleCheckDTO{
			RuleID:         rule.ID,
			PrereqCourseID: rule.PrereqCourseID,
			Type:           rule.Type,
			Kind:           cr.Kind,
			Meets:          cr.Meets,
			Status:         cr.Status,
			Details:        cr.Details,
			MissingCourses: missing,
			Unverified:     cr.Unverified,
		})
	}

	return res, nil
}

// selectRules returns either the single requested rule or every rule of the
// course in force for the year.
func (h *CheckPrerequisiteHandler) selectRules(ctx context.Context, q CheckPrerequisiteQuery) ([]*prerequisite.Rule, shared.ID, error) {
	if q.RuleID.IsValid() {
		rule, err := h.rules.GetRule(ctx, q.RuleID)
		if err != nil {
			return nil, 0, err
		}
		if q.CourseID.IsValid() && rule.CourseID != q.CourseID {
			return nil, 0, shared.ErrRuleNotFound
		}
		return []*prerequisite.Rule{rule}, rule.CourseID, nil
	}

	all, err := h.rules.ListRules(ctx, q.CourseID)
	if err != nil {
		return nil, 0, fmt.Errorf("list rules: %w", err)
	}
	rules := make([]*prerequisite.Rule, 0, len(all))
	for _, r := range all {
		if r.AppliesTo(q.Year) {
			rules = append(rules, r)
		}
	}
	return rules, q.CourseID, nil
}
