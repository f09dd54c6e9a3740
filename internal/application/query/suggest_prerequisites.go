package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loes-hub/outcome-engine/internal/domain/bloom"
	"github.com/loes-hub/outcome-engine/internal/domain/outcome"
	"github.com/loes-hub/outcome-engine/internal/domain/prerequisite"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
	"github.com/loes-hub/outcome-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUGGEST PREREQUISITES QUERY
// Для нового курса (ещё не сохранённого) по его CLO подбирает существующие
// курсы, которые стоит сделать предварительными.
// ══════════════════════════════════════════════════════════════════════════════

// CandidateOutcome - CLO проектируемого курса.
type CandidateOutcome struct {
	Text       string `json:"text"`
	BloomLevel string `json:"bloom_level"`
}

// SuggestPrerequisitesQuery содержит параметры запроса.
type SuggestPrerequisitesQuery struct {
	Outcomes []CandidateOutcome

	// ExcludeCourseID - не предлагать этот курс (сам проектируемый курс, если он уже есть).
	ExcludeCourseID shared.ID
}

// Validate проверяет корректность параметров запроса.
func (q SuggestPrerequisitesQuery) Validate() error {
	if len(q.Outcomes) == 0 {
		return shared.ErrEmptyCandidateSet
	}
	if q.ExcludeCourseID < 0 {
		return shared.NewDomainError("query", "SuggestPrerequisites", shared.ErrInvalidID, "exclude_course_id cannot be negative")
	}
	return nil
}

// PrerequisiteSuggestionDTO - предложенный курс.
type PrerequisiteSuggestionDTO struct {
	CourseID     shared.ID `json:"course_id"`
	Code         string    `json:"code"`
	Title        string    `json:"title"`
	Confidence   float64   `json:"confidence"`
	Overlap      float64   `json:"overlap"`
	BloomGap     float64   `json:"bloom_gap"`
	MatchReasons []string  `json:"match_reasons"`
}

// SuggestPrerequisitesResult содержит результат запроса.
type SuggestPrerequisitesResult struct {
	Suggestions []PrerequisiteSuggestionDTO `json:"suggestions"`

	// FlaggedLevels - нераспознанные уровни Блума во входных CLO.
	FlaggedLevels []string `json:"flagged_levels"`
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// CourseCatalog - курсы, у которых есть CLO.
type CourseCatalog interface {
	ListCoursesWithOutcomes(ctx context.Context) ([]*outcome.Course, error)
	ListOutcomes(ctx context.Context, courseID shared.ID) ([]*outcome.Outcome, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SuggestPrerequisitesHandler обрабатывает запрос.
type SuggestPrerequisitesHandler struct {
	catalog  CourseCatalog
	engine   *prerequisite.SuggestionEngine
	recorder Recorder
	logger   *slog.Logger
}

// NewSuggestPrerequisitesHandler создаёт новый обработчик.
func NewSuggestPrerequisitesHandler(
	catalog CourseCatalog,
	engine *prerequisite.SuggestionEngine,
	recorder Recorder,
	log *slog.Logger,
) *SuggestPrerequisitesHandler {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &SuggestPrerequisitesHandler{
		catalog:  catalog,
		engine:   engine,
		recorder: recorder,
		logger:   logger.OrDefault(log).With(logger.Component("suggest_prerequisites")),
	}
}

// Handle выполняет запрос.
func (h *SuggestPrerequisitesHandler) Handle(ctx context.Context, q SuggestPrerequisitesQuery) (res *SuggestPrerequisitesResult, err error) {
	started := time.Now()
	defer func() { h.recorder.ObserveQuery("suggest_prerequisites", time.Since(started), err) }()

	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("suggest_prerequisites: %w", err)
	}

	res = &SuggestPrerequisitesResult{
		Suggestions:   []PrerequisiteSuggestionDTO{},
		FlaggedLevels: []string{},
	}

	candidates := make([]prerequisite.Candidate, 0, len(q.Outcomes))
	for i, c := range q.Outcomes {
		level, ok := bloom.Parse(c.BloomLevel)
		if !ok {
			h.logger.Warn("unrecognized bloom level",
				slog.String("label", c.BloomLevel),
				slog.Int("candidate", i),
			)
			res.FlaggedLevels = append(res.FlaggedLevels, c.BloomLevel)
		}
		candidates = append(candidates, prerequisite.Candidate{Text: c.Text, Level: level})
	}

	courses, err := h.catalog.ListCoursesWithOutcomes(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest_prerequisites: list courses: %w", err)
	}

	profiles := make([]prerequisite.CourseProfile, 0, len(courses))
	for _, c := range courses {
		if c.ID == q.ExcludeCourseID {
			continue
		}
		outs, err := h.catalog.ListOutcomes(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("suggest_prerequisites: list outcomes of course %s: %w", c.ID, err)
		}
		profiles = append(profiles, prerequisite.CourseProfile{Course: c, Outcomes: outs})
	}

	for _, s := range h.engine.Suggest(candidates, profiles) {
		res.Suggestions = append(res.Suggestions, PrerequisiteSuggestionDTO{
			CourseID:     s.CourseID,
			Code:         s.Code,
			Title:        s.Title,
			Confidence:   s.Confidence,
			Overlap:      s.Overlap,
			BloomGap:     s.BloomGap,
			MatchReasons: s.MatchReasons,
		})
	}

	h.logger.Debug("prerequisites suggested",
		slog.Int("candidates", len(candidates)),
		slog.Int("courses", len(profiles)),
		slog.Int("suggestions", len(res.Suggestions)),
	)
	return res, nil
}
