package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loes-hub/outcome-engine/internal/domain/mapping"
	"github.com/loes-hub/outcome-engine/internal/domain/outcome"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
	"github.com/loes-hub/outcome-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUGGEST OUTCOME MAPPINGS QUERY
// Матрица CLO × PLO: для каждого CLO курса и каждого PLO его программы
// рассчитывается оценка и предлагаемый уровень вклада.
// Сохранённые сопоставления показываются рядом, но не изменяются.
// ══════════════════════════════════════════════════════════════════════════════

// SuggestOutcomeMappingsQuery содержит параметры запроса.
type SuggestOutcomeMappingsQuery struct {
	CourseID shared.ID

	// IncludeNone - включать пары с уровнем None.
	IncludeNone bool
}

// Validate проверяет корректность параметров запроса.
func (q SuggestOutcomeMappingsQuery) Validate() error {
	if !q.CourseID.IsValid() {
		return shared.NewDomainError("query", "SuggestOutcomeMappings", shared.ErrInvalidID, "course_id must be positive")
	}
	return nil
}

// MappingSuggestionDTO - одна ячейка матрицы.
type MappingSuggestionDTO struct {
	OutcomeID        shared.ID                `json:"outcome_id"`
	OutcomeCode      string                   `json:"outcome_code"`
	ProgramOutcomeID shared.ID                `json:"program_outcome_id"`
	ProgramCode      string                   `json:"program_outcome_code"`
	Score            float64                  `json:"score"`
	Tier             outcome.ContributionTier `json:"tier"`
	Overlap          float64                  `json:"overlap"`
	BloomWeight      float64                  `json:"bloom_weight"`
	Bonus            float64                  `json:"bonus"`
	SharedKeywords   []string                 `json:"shared_keywords"`

	// LevelFlagged - уровень Блума CLO не распознан.
	LevelFlagged bool `json:"level_flagged"`

	// Текущее сохранённое сопоставление (пусто, если нет).
	StoredTier   outcome.ContributionTier `json:"stored_tier,omitempty"`
	StoredSource outcome.MappingSource    `json:"stored_source,omitempty"`
}

// SuggestOutcomeMappingsResult содержит результат запроса.
type SuggestOutcomeMappingsResult struct {
	CourseID    shared.ID              `json:"course_id"`
	CourseCode  string                 `json:"course_code"`
	Suggestions []MappingSuggestionDTO `json:"suggestions"`
	GeneratedAt time.Time              `json:"generated_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// CurriculumReader - курсы, их CLO и PLO программы.
type CurriculumReader interface {
	GetCourse(ctx context.Context, id shared.ID) (*outcome.Course, error)
	ListOutcomes(ctx context.Context, courseID shared.ID) ([]*outcome.Outcome, error)
	ListProgramOutcomes(ctx context.Context, programID shared.ID) ([]*outcome.ProgramOutcome, error)
}

// CourseMappingReader - сохранённые сопоставления курса.
type CourseMappingReader interface {
	ListByCourse(ctx context.Context, courseID shared.ID) ([]*outcome.Mapping, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SuggestOutcomeMappingsHandler обрабатывает запрос матрицы.
type SuggestOutcomeMappingsHandler struct {
	curriculum CurriculumReader
	mappings   CourseMappingReader
	scorer     *mapping.Scorer
	recorder   Recorder
	logger     *slog.Logger
}

// NewSuggestOutcomeMappingsHandler создаёт новый обработчик.
func NewSuggestOutcomeMappingsHandler(
	curriculum CurriculumReader,
	mappings CourseMappingReader,
	scorer *mapping.Scorer,
	recorder Recorder,
	log *slog.Logger,
) *SuggestOutcomeMappingsHandler {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &SuggestOutcomeMappingsHandler{
		curriculum: curriculum,
		mappings:   mappings,
		scorer:     scorer,
		recorder:   recorder,
		logger:     logger.OrDefault(log).With(logger.Component("suggest_outcome_mappings")),
	}
}

type mappingKey struct {
	outcomeID, programOutcomeID shared.ID
}

// Handle выполняет запрос.
func (h *SuggestOutcomeMappingsHandler) Handle(ctx context.Context, q SuggestOutcomeMappingsQuery) (res *SuggestOutcomeMappingsResult, err error) {
	started := time.Now()
	defer func() { h.recorder.ObserveQuery("suggest_outcome_mappings", time.Since(started), err) }()

	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("suggest_outcome_mappings: validation failed: %w", err)
	}

	course, err := h.curriculum.GetCourse(ctx, q.CourseID)
	if err != nil {
		return nil, fmt.Errorf("suggest_outcome_mappings: %w", err)
	}
	outcomes, err := h.curriculum.ListOutcomes(ctx, course.ID)
	if err != nil {
		return nil, fmt.Errorf("suggest_outcome_mappings: list outcomes: %w", err)
	}
	plos, err := h.curriculum.ListProgramOutcomes(ctx, course.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("suggest_outcome_mappings: list program outcomes: %w", err)
	}
	existing, err := h.mappings.ListByCourse(ctx, course.ID)
	if err != nil {
		return nil, fmt.Errorf("suggest_outcome_mappings: list mappings: %w", err)
	}

	stored := make(map[mappingKey]*outcome.Mapping, len(existing))
	for _, m := range existing {
		stored[mappingKey{m.OutcomeID, m.ProgramOutcomeID}] = m
	}

	res = &SuggestOutcomeMappingsResult{
		CourseID:    course.ID,
		CourseCode:  course.Code,
		Suggestions: make([]MappingSuggestionDTO, 0, len(outcomes)*len(plos)),
		GeneratedAt: time.Now().UTC(),
	}

	for _, o := range outcomes {
		if !o.LevelRecognized {
			h.logger.Warn("unrecognized bloom level",
				slog.String("label", o.LevelLabel),
				logger.OutcomeID(o.ID.Int64()),
			)
		}
		for _, plo := range plos {
			s := h.scorer.Score(o, plo)
			m, hasStored := stored[mappingKey{o.ID, plo.ID}]
			if s.Tier == outcome.TierNone && !q.IncludeNone && !hasStored {
				continue
			}

			dto := MappingSuggestionDTO{
				OutcomeID:        o.ID,
				OutcomeCode:      o.Code,
				ProgramOutcomeID: plo.ID,
				ProgramCode:      plo.Code,
				Score:            s.Score,
				Tier:             s.Tier,
				Overlap:          s.K,
				BloomWeight:      s.B,
				Bonus:            s.H,
				SharedKeywords:   s.Shared,
				LevelFlagged:     !o.LevelRecognized,
			}
			if dto.SharedKeywords == nil {
				dto.SharedKeywords = []string{}
			}
			if hasStored {
				dto.StoredTier = m.Tier
				dto.StoredSource = m.Source
			}
			res.Suggestions = append(res.Suggestions, dto)
		}
	}

	return res, nil
}
