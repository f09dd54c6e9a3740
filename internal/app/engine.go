package app

import (
	"log/slog"
	"time"

	"github.com/loes-hub/outcome-engine/config"
	"github.com/loes-hub/outcome-engine/internal/application/command"
	"github.com/loes-hub/outcome-engine/internal/application/query"
	"github.com/loes-hub/outcome-engine/internal/domain/mapping"
	"github.com/loes-hub/outcome-engine/internal/domain/prerequisite"
	"github.com/loes-hub/outcome-engine/internal/domain/textmatch"
	"github.com/loes-hub/outcome-engine/pkg/logger"
)

// Recorder receives measurements from every handler. Implemented by
// metrics.Metrics.
type Recorder interface {
	command.Recorder
	query.Recorder
}

// Engine holds one handler per operation, all built from the same tunables
// and sharing one Normalizer.
type Engine struct {
	CalculateCourse   *command.CalculateCourseAttainmentHandler
	ApplyMappings     *command.ApplyMappingSuggestionsHandler
	ImportMappings    *command.ImportMappingMatrixHandler
	ProgramAttainment *query.GetProgramAttainmentHandler
	SuggestMappings   *query.SuggestOutcomeMappingsHandler
	SuggestPrereqs    *query.SuggestPrerequisitesHandler
	CheckPrereq       *query.CheckPrerequisiteHandler
	Impact            *query.AnalyzePrerequisiteImpactHandler

	Tunables config.EngineConfig
	BuiltAt  time.Time
}

// EngineOptions configures NewEngine.
type EngineOptions struct {
	// Concurrency bounds the fan-out inside a single operation.
	Concurrency int

	// Recorder is optional.
	Recorder Recorder

	Logger *slog.Logger
}

// NewEngine builds every handler over store. Rebuilding is how new tunables
// take effect: handlers are immutable once built.
func NewEngine(store Store, tunables config.EngineConfig, opts EngineOptions) *Engine {
	log := logger.OrDefault(opts.Logger)
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	var (
		cmdRec   command.Recorder
		queryRec query.Recorder
	)
	if opts.Recorder != nil {
		cmdRec, queryRec = opts.Recorder, opts.Recorder
	}

	normalizer := textmatch.NewNormalizer(tunables.NormalizerConfig())
	scorer := mapping.NewScorer(tunables.ScorerConfig(), normalizer)
	suggester := prerequisite.NewSuggestionEngine(tunables.SuggestionConfig(), normalizer)
	checker := prerequisite.NewChecker(tunables.CheckerConfig(), store)

	return &Engine{
		CalculateCourse: command.NewCalculateCourseAttainmentHandler(
			store, store, store, nil, cmdRec, log,
			command.CalculateCourseAttainmentConfig{Concurrency: opts.Concurrency},
		),
		ApplyMappings:  command.NewApplyMappingSuggestionsHandler(store, store, scorer, cmdRec, log),
		ImportMappings: command.NewImportMappingMatrixHandler(store, store, cmdRec, log),
		ProgramAttainment: query.NewGetProgramAttainmentHandler(store, store, store, queryRec, log, query.GetProgramAttainmentConfig{
			TierWeights: tunables.OutcomeTierWeights(),
			Concurrency: opts.Concurrency,
		}),
		SuggestMappings: query.NewSuggestOutcomeMappingsHandler(store, store, scorer, queryRec, log),
		SuggestPrereqs:  query.NewSuggestPrerequisitesHandler(store, suggester, queryRec, log),
		CheckPrereq:     query.NewCheckPrerequisiteHandler(store, store, checker, queryRec, log),
		Impact:          query.NewAnalyzePrerequisiteImpactHandler(store, store, store, checker, queryRec, log, opts.Concurrency),

		Tunables: tunables,
		BuiltAt:  time.Now(),
	}
}
