// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loes-hub/outcome-engine/internal/domain/achievement"
	"github.com/loes-hub/outcome-engine/internal/domain/assessment"
	"github.com/loes-hub/outcome-engine/internal/domain/outcome"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
	"github.com/loes-hub/outcome-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRAM ATTAINMENT QUERY
// Считает достижение программных результатов (PLO) по курсам программы, чьи
// CLO сопоставлены с PLO, с весами по кредитам и уровню вклада. Сопоставления
// с курсами других программ не учитываются.
// Ничего не записывает: результаты студентов не сохраняются.
// ══════════════════════════════════════════════════════════════════════════════

// GetProgramAttainmentQuery содержит параметры запроса.
type GetProgramAttainmentQuery struct {
	// ProgramID - программа.
	ProgramID shared.ID

	// ProgramOutcomeID - один PLO (0 = все PLO программы).
	ProgramOutcomeID shared.ID
}

// Validate проверяет корректность параметров запроса.
func (q GetProgramAttainmentQuery) Validate() error {
	if !q.ProgramID.IsValid() {
		return shared.NewDomainError("query", "GetProgramAttainment", shared.ErrInvalidID, "program_id must be positive")
	}
	if q.ProgramOutcomeID < 0 {
		return shared.NewDomainError("query", "GetProgramAttainment", shared.ErrInvalidID, "program_outcome_id cannot be negative")
	}
	return nil
}

// ContributionDTO - одно слагаемое (курс, CLO) в сумме PLO.
type ContributionDTO struct {
	CourseID      shared.ID                `json:"course_id"`
	CourseCode    string                   `json:"course_code"`
	OutcomeID     shared.ID                `json:"outcome_id"`
	Credits       int                      `json:"credits"`
	Tier          outcome.ContributionTier `json:"tier"`
	TierWeight    float64                  `json:"tier_weight"`
	AchievedCount int                      `json:"achieved_count"`
	AssessedCount int                      `json:"assessed_count"`
}

// ProgramOutcomeAttainmentDTO - результат по одному PLO.
type ProgramOutcomeAttainmentDTO struct {
	ProgramOutcomeID shared.ID         `json:"program_outcome_id"`
	Code             string            `json:"code"`
	Rate             float64           `json:"rate"`
	Numerator        float64           `json:"numerator"`
	Denominator      float64           `json:"denominator"`
	Contributions    []ContributionDTO `json:"contributions"`

	// MeetsExpectation - Rate >= ожидаемого порога программы.
	MeetsExpectation bool `json:"meets_expectation"`
}

// GetProgramAttainmentResult содержит результат запроса.
type GetProgramAttainmentResult struct {
	ProgramID         shared.ID                     `json:"program_id"`
	ProgramCode       string                        `json:"program_code"`
	ExpectedThreshold float64                       `json:"expected_threshold"`
	Outcomes          []ProgramOutcomeAttainmentDTO `json:"outcomes"`
	GeneratedAt       time.Time                     `json:"generated_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// ProgramReader - часть хранилища учебного плана, нужная запросу.
type ProgramReader interface {
	GetProgram(ctx context.Context, id shared.ID) (*outcome.Program, error)
	GetCourse(ctx context.Context, id shared.ID) (*outcome.Course, error)
	GetOutcome(ctx context.Context, id shared.ID) (*outcome.Outcome, error)
	GetProgramOutcome(ctx context.Context, id shared.ID) (*outcome.ProgramOutcome, error)
	ListProgramOutcomes(ctx context.Context, programID shared.ID) ([]*outcome.ProgramOutcome, error)
}

// MappingReader - чтение сопоставлений CLO↔PLO.
type MappingReader interface {
	ListByProgramOutcome(ctx context.Context, programOutcomeID shared.ID) ([]*outcome.Mapping, error)
}

// SnapshotLoader загружает оценки курса за один проход.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context, courseID shared.ID, outcomeIDs []shared.ID) (*assessment.Snapshot, error)
}

// Recorder получает метрики запросов. Реализуется пакетом metrics.
type Recorder interface {
	ObserveQuery(name string, d time.Duration, err error)
}

type noopRecorder struct{}

func (noopRecorder) ObserveQuery(string, time.Duration, error) {}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetProgramAttainmentConfig - настройки обработчика.
type GetProgramAttainmentConfig struct {
	TierWeights outcome.TierWeights

	// Concurrency - сколько курсов считать параллельно.
	Concurrency int
}

// DefaultGetProgramAttainmentConfig возвращает настройки по умолчанию.
func DefaultGetProgramAttainmentConfig() GetProgramAttainmentConfig {
	return GetProgramAttainmentConfig{
		TierWeights: outcome.DefaultTierWeights(),
		Concurrency: 4,
	}
}

// GetProgramAttainmentHandler обрабатывает запросы достижения PLO.
type GetProgramAttainmentHandler struct {
	programs  ProgramReader
	mappings  MappingReader
	snapshots SnapshotLoader
	recorder  Recorder
	logger    *slog.Logger
	config    GetProgramAttainmentConfig
}

// NewGetProgramAttainmentHandler создаёт новый обработчик.
func NewGetProgramAttainmentHandler(
	programs ProgramReader,
	mappings MappingReader,
	snapshots SnapshotLoader,
	recorder Recorder,
	log *slog.Logger,
	config GetProgramAttainmentConfig,
) *GetProgramAttainmentHandler {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultGetProgramAttainmentConfig().Concurrency
	}
	if config.TierWeights == (outcome.TierWeights{}) {
		config.TierWeights = outcome.DefaultTierWeights()
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &GetProgramAttainmentHandler{
		programs:  programs,
		mappings:  mappings,
		snapshots: snapshots,
		recorder:  recorder,
		logger:    logger.OrDefault(log).With(logger.Component("get_program_attainment")),
		config:    config,
	}
}

// Handle выполняет запрос.
func (h *GetProgramAttainmentHandler) Handle(ctx context.Context, q GetProgramAttainmentQuery) (res *GetProgramAttainmentResult, err error) {
	started := time.Now()
	defer func() { h.recorder.ObserveQuery("get_program_attainment", time.Since(started), err) }()

	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_program_attainment: validation failed: %w", err)
	}

	program, err := h.programs.GetProgram(ctx, q.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("get_program_attainment: %w", err)
	}

	var plos []*outcome.ProgramOutcome
	if q.ProgramOutcomeID.IsValid() {
		plo, err := h.programs.GetProgramOutcome(ctx, q.ProgramOutcomeID)
		if err != nil {
			return nil, fmt.Errorf("get_program_attainment: %w", err)
		}
		if plo.ProgramID != program.ID {
			return nil, fmt.Errorf("get_program_attainment: %w", shared.ErrProgramOutcomeNotFound)
		}
		plos = []*outcome.ProgramOutcome{plo}
	} else {
		plos, err = h.programs.ListProgramOutcomes(ctx, program.ID)
		if err != nil {
			return nil, fmt.Errorf("get_program_attainment: list program outcomes: %w", err)
		}
	}

	res = &GetProgramAttainmentResult{
		ProgramID:         program.ID,
		ProgramCode:       program.Code,
		ExpectedThreshold: program.ExpectedThreshold,
		Outcomes:          make([]ProgramOutcomeAttainmentDTO, 0, len(plos)),
		GeneratedAt:       time.Now().UTC(),
	}

	for _, plo := range plos {
		acc, courses, err := h.aggregate(ctx, program.ID, plo)
		if err != nil {
			return nil, fmt.Errorf("get_program_attainment: program outcome %s: %w", plo.ID, err)
		}

		dto := ProgramOutcomeAttainmentDTO{
			ProgramOutcomeID: plo.ID,
			Code:             plo.Code,
			Rate:             acc.Rate(),
			Numerator:        acc.Numerator(),
			Denominator:      acc.Denominator(),
			Contributions:    make([]ContributionDTO, 0),
		}
		dto.MeetsExpectation = dto.Denominator > 0 && dto.Rate >= program.ExpectedThreshold
		for _, c := range acc.Contributions() {
			dto.Contributions = append(dto.Contributions, ContributionDTO{
				CourseID:      c.CourseID,
				CourseCode:    courses[c.CourseID],
				OutcomeID:     c.OutcomeID,
				Credits:       c.Credits,
				Tier:          c.Tier,
				TierWeight:    c.TierWeight,
				AchievedCount: c.AchievedCount,
				AssessedCount: c.AssessedCount,
			})
		}
		res.Outcomes = append(res.Outcomes, dto)
	}

	return res, nil
}

type courseTerms struct {
	course   *outcome.Course
	outcomes []*outcome.Outcome
	tiers    map[shared.ID]outcome.ContributionTier
}

// aggregate folds every contributing mapping of plo whose course belongs to
// programID into one accumulator. Course codes are returned for the DTO.
func (h *GetProgramAttainmentHandler) aggregate(ctx context.Context, programID shared.ID, plo *outcome.ProgramOutcome) (*achievement.ProgramAttainment, map[shared.ID]string, error) {
	total := achievement.NewProgramAttainment(h.config.TierWeights)
	codes := make(map[shared.ID]string)

	mappings, err := h.mappings.ListByProgramOutcome(ctx, plo.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list mappings: %w", err)
	}

	byCourse := make(map[shared.ID]*courseTerms)
	for _, m := range mappings {
		if !m.Tier.IsContributing() {
			continue
		}
		o, err := h.programs.GetOutcome(ctx, m.OutcomeID)
		if shared.IsNotFound(err) {
			h.logger.Warn("mapping references missing outcome",
				logger.OutcomeID(m.OutcomeID.Int64()),
				logger.ProgramOutcomeID(plo.ID.Int64()),
			)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("get outcome: %w", err)
		}

		ct, ok := byCourse[o.CourseID]
		if !ok {
			ct = &courseTerms{tiers: make(map[shared.ID]outcome.ContributionTier)}
			byCourse[o.CourseID] = ct
		}
		ct.outcomes = append(ct.outcomes, o)
		ct.tiers[o.ID] = m.Tier
	}

	// Нет ни одного вклада: 0.0 без сканирования оценок.
	if len(byCourse) == 0 {
		return total, codes, nil
	}

	courseIDs := make([]shared.ID, 0, len(byCourse))
	for id := range byCourse {
		courseIDs = append(courseIDs, id)
	}
	sort.Slice(courseIDs, func(i, j int) bool { return courseIDs[i] < courseIDs[j] })

	partials := make([]*achievement.ProgramAttainment, len(courseIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.config.Concurrency)
	for i, cid := range courseIDs {
		ct := byCourse[cid]
		g.Go(func() error {
			course, err := h.programs.GetCourse(gctx, cid)
			if err != nil {
				return fmt.Errorf("get course %s: %w", cid, err)
			}
			if course.ProgramID != programID {
				h.logger.Debug("mapping from another program's course ignored",
					logger.CourseID(cid.Int64()),
					logger.ProgramID(programID.Int64()),
					logger.ProgramOutcomeID(plo.ID.Int64()),
				)
				return nil
			}
			ct.course = course

			ids := make([]shared.ID, 0, len(ct.outcomes))
			for _, o := range ct.outcomes {
				ids = append(ids, o.ID)
			}
			snap, err := h.snapshots.LoadSnapshot(gctx, cid, ids)
			if err != nil {
				return fmt.Errorf("load snapshot for course %s: %w", cid, err)
			}

			part := achievement.NewProgramAttainment(h.config.TierWeights)
			for _, o := range ct.outcomes {
				part.Add(course, ct.tiers[o.ID], achievement.Cohort(snap, o))
			}
			partials[i] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	for i, cid := range courseIDs {
		if partials[i] == nil {
			continue
		}
		total.Merge(partials[i])
		codes[cid] = byCourse[cid].course.Code
	}
	return total, codes, nil
}
