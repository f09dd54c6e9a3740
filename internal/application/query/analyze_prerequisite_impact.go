package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loes-hub/outcome-engine/internal/domain/outcome"
	"github.com/loes-hub/outcome-engine/internal/domain/prerequisite"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
	"github.com/loes-hub/outcome-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANALYZE PREREQUISITE IMPACT QUERY
// Сколько студентов не смогут записаться на курс при текущих правилах.
// Для каждого студента перечисляются курсы, которых не хватает.
// Нереализованные виды условий считаются невыполненными, но не прерывают анализ.
// ══════════════════════════════════════════════════════════════════════════════

// MissingStatus - почему курс указан как недостающий.
type MissingStatus string

const (
	MissingNotTaken    MissingStatus = "not taken"
	MissingNotAchieved MissingStatus = "not achieved"
)

// AnalyzePrerequisiteImpactQuery содержит параметры запроса.
type AnalyzePrerequisiteImpactQuery struct {
	CourseID shared.ID

	// Year - учитывать только правила этого года (0 = все).
	Year int

	// Cohort - только студенты этого набора (пусто = все).
	Cohort shared.Cohort
}

// Validate проверяет корректность параметров запроса.
func (q AnalyzePrerequisiteImpactQuery) Validate() error {
	if !q.CourseID.IsValid() {
		return shared.NewDomainError("query", "AnalyzePrerequisiteImpact", shared.ErrInvalidID, "course_id must be positive")
	}
	if q.Year < 0 {
		return shared.NewDomainError("query", "AnalyzePrerequisiteImpact", shared.ErrValueOutOfRange, "year cannot be negative")
	}
	return nil
}

// MissingCourseDTO - недостающий курс студента.
type MissingCourseDTO struct {
	CourseID shared.ID     `json:"course_id"`
	Name     string        `json:"name"`
	Status   MissingStatus `json:"status"`
}

// AffectedStudentDTO - студент, не выполняющий условия.
type AffectedStudentDTO struct {
	ID                   shared.ID          `json:"id"`
	Name                 string             `json:"name"`
	StudentNumber        string             `json:"student_number"`
	Reason               string             `json:"reason"`
	MissingCourses       []string           `json:"missing_courses"`
	MissingCourseDetails []MissingCourseDTO `json:"missing_course_details"`
}

// AnalyzePrerequisiteImpactResult содержит результат запроса.
type AnalyzePrerequisiteImpactResult struct {
	CourseID        shared.ID            `json:"course_id"`
	TotalStudents   int                  `json:"total_students"`
	MissingCount    int                  `json:"missing_count"`
	RiskScore       float64              `json:"risk_score"`
	MissingStudents []AffectedStudentDTO `json:"missing_students"`
	RulesEvaluated  int                  `json:"rules_evaluated"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CourseGetter - название курса для отчёта.
type CourseGetter interface {
	GetCourse(ctx context.Context, id shared.ID) (*outcome.Course, error)
}

// AnalyzePrerequisiteImpactHandler обрабатывает запрос.
type AnalyzePrerequisiteImpactHandler struct {
	rules       RuleReader
	students    StudentReader
	courses     CourseGetter
	checker     *prerequisite.Checker
	recorder    Recorder
	logger      *slog.Logger
	concurrency int
}

// NewAnalyzePrerequisiteImpactHandler создаёт новый обработчик.
// concurrency - сколько студентов проверять параллельно (<= 0 означает 4).
func NewAnalyzePrerequisiteImpactHandler(
	rules RuleReader,
	students StudentReader,
	courses CourseGetter,
	checker *prerequisite.Checker,
	recorder Recorder,
	log *slog.Logger,
	concurrency int,
) *AnalyzePrerequisiteImpactHandler {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &AnalyzePrerequisiteImpactHandler{
		rules:       rules,
		students:    students,
		courses:     courses,
		checker:     checker,
		recorder:    recorder,
		logger:      logger.OrDefault(log).With(logger.Component("analyze_prerequisite_impact")),
		concurrency: concurrency,
	}
}

// Handle выполняет запрос.
func (h *AnalyzePrerequisiteImpactHandler) Handle(ctx context.Context, q AnalyzePrerequisiteImpactQuery) (res *AnalyzePrerequisiteImpactResult, err error) {
	started := time.Now()
	defer func() { h.recorder.ObserveQuery("analyze_prerequisite_impact", time.Since(started), err) }()

	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("analyze_prerequisite_impact: validation failed: %w", err)
	}

	if _, err := h.courses.GetCourse(ctx, q.CourseID); err != nil {
		return nil, fmt.Errorf("analyze_prerequisite_impact: %w", err)
	}

	res = &AnalyzePrerequisiteImpactResult{
		CourseID:        q.CourseID,
		MissingStudents: []AffectedStudentDTO{},
	}

	all, err := h.rules.ListRules(ctx, q.CourseID)
	if err != nil {
		return nil, fmt.Errorf("analyze_prerequisite_impact: list rules: %w", err)
	}
	rules := make([]*prerequisite.Rule, 0, len(all))
	for _, r := range all {
		if r.AppliesTo(q.Year) {
			rules = append(rules, r)
		}
	}
	res.RulesEvaluated = len(rules)

	// Нет правил: никто не затронут.
	if len(rules) == 0 {
		return res, nil
	}

	names := make(map[shared.ID]string, len(rules))
	for _, r := range rules {
		if _, ok := names[r.PrereqCourseID]; ok {
			continue
		}
		c, err := h.courses.GetCourse(ctx, r.PrereqCourseID)
		switch {
		case shared.IsNotFound(err):
			names[r.PrereqCourseID] = "course #" + r.PrereqCourseID.String()
		case err != nil:
			return nil, fmt.Errorf("analyze_prerequisite_impact: get course %s: %w", r.PrereqCourseID, err)
		default:
			names[r.PrereqCourseID] = c.DisplayName()
		}
	}

	students, err := h.students.ListStudents(ctx, q.Cohort)
	if err != nil {
		return nil, fmt.Errorf("analyze_prerequisite_impact: list students: %w", err)
	}
	res.TotalStudents = len(students)

	rows := make([]*AffectedStudentDTO, len(students))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.concurrency)
	for i, st := range students {
		g.Go(func() error {
			var missing []MissingCourseDTO
			listed := shared.NewIDSet()
			for _, r := range rules {
				cr, err := h.checker.Check(gctx, st.ID, r)
				if err != nil {
					return fmt.Errorf("student %s rule %s: %w", st.ID, r.ID, err)
				}
				if cr.Status == prerequisite.StatusNotImplemented || cr.Status == prerequisite.StatusInvalid {
					h.logger.Warn("prerequisite condition not evaluated",
						logger.StudentID(st.ID.Int64()),
						logger.RuleID(r.ID.Int64()),
						slog.String("kind", string(cr.Kind)),
					)
				}
				// A course is listed once, with the status of its first failing rule.
				if cr.Meets || listed.Has(r.PrereqCourseID) {
					continue
				}
				listed.Add(r.PrereqCourseID)
				// Нехватка CLO тоже "not achieved": курс студент проходил.
				status := MissingNotTaken
				if cr.Status == prerequisite.StatusNotAchieved || cr.Status == prerequisite.StatusInsufficient {
					status = MissingNotAchieved
				}
				missing = append(missing, MissingCourseDTO{
					CourseID: r.PrereqCourseID,
					Name:     names[r.PrereqCourseID],
					Status:   status,
				})
			}
			if len(missing) == 0 {
				return nil
			}

			row := &AffectedStudentDTO{
				ID:                   st.ID,
				Name:                 st.Name,
				StudentNumber:        st.StudentNumber,
				MissingCourses:       make([]string, 0, len(missing)),
				MissingCourseDetails: missing,
			}
			for _, m := range missing {
				row.MissingCourses = append(row.MissingCourses, m.Name)
			}
			row.Reason = strings.Join(row.MissingCourses, ", ")
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyze_prerequisite_impact: %w", err)
	}

	for _, row := range rows {
		if row != nil {
			res.MissingStudents = append(res.MissingStudents, *row)
		}
	}
	res.MissingCount = len(res.MissingStudents)
	res.RiskScore = shared.SafeDivide(float64(res.MissingCount), float64(res.TotalStudents))

	h.logger.Info("prerequisite impact analyzed",
		logger.CourseID(q.CourseID.Int64()),
		slog.Int("rules", len(rules)),
		slog.Int("students", res.TotalStudents),
		slog.Int("missing", res.MissingCount),
	)
	return res, nil
}
