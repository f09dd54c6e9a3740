package command

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
// APPLY MAPPING SUGGESTIONS COMMAND
// Stores scorer tiers as inferred mappings for one course. Mappings set by a
// person (manual or imported) are never touched.
// ══════════════════════════════════════════════════════════════════════════════

// ApplyMappingSuggestionsCommand contains the data needed to apply suggestions.
type ApplyMappingSuggestionsCommand struct {
	// CourseID is the course whose outcomes are scored.
	CourseID shared.ID

	// ProgramOutcomeIDs limits the program outcomes considered. Empty means all.
	ProgramOutcomeIDs []shared.ID

	// DryRun reports the actions without writing.
	DryRun bool
}

// Validate validates the command.
func (c ApplyMappingSuggestionsCommand) Validate() error {
	if !c.CourseID.IsValid() {
		return shared.NewDomainError("command", "ApplyMappingSuggestions", shared.ErrInvalidID, "course_id must be positive")
	}
	for _, id := range c.ProgramOutcomeIDs {
		if !id.IsValid() {
			return shared.NewDomainError("command", "ApplyMappingSuggestions", shared.ErrInvalidID, "program outcome IDs must be positive")
		}
	}
	return nil
}

// MappingAction is what happened to one pair.
type MappingAction string

const (
	ActionCreated   MappingAction = "created"
	ActionUpdated   MappingAction = "updated"
	ActionRemoved   MappingAction = "removed"
	ActionKept      MappingAction = "kept"
	ActionUnchanged MappingAction = "unchanged"
	ActionNone      MappingAction = "none"
)

// MappingChangeDTO describes one scored pair and the action taken.
type MappingChangeDTO struct {
	OutcomeID        shared.ID                `json:"outcome_id"`
	OutcomeCode      string                   `json:"outcome_code"`
	ProgramOutcomeID shared.ID                `json:"program_outcome_id"`
	ProgramCode      string                   `json:"program_outcome_code"`
	Score            float64                  `json:"score"`
	SuggestedTier    outcome.ContributionTier `json:"suggested_tier"`
	PreviousTier     outcome.ContributionTier `json:"previous_tier,omitempty"`
	PreviousSource   outcome.MappingSource    `json:"previous_source,omitempty"`
	Action           MappingAction            `json:"action"`
}

// ApplyMappingSuggestionsResult contains the result of applying suggestions.
type ApplyMappingSuggestionsResult struct {
	CourseID shared.ID          `json:"course_id"`
	Changes  []MappingChangeDTO `json:"changes"`

	Created int  `json:"created"`
	Updated int  `json:"updated"`
	Removed int  `json:"removed"`
	Skipped int  `json:"skipped"`
	DryRun  bool `json:"dry_run"`
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// CurriculumReader is the part of the curriculum store the command reads.
type CurriculumReader interface {
	GetCourse(ctx context.Context, id shared.ID) (*outcome.Course, error)
	ListOutcomes(ctx context.Context, courseID shared.ID) ([]*outcome.Outcome, error)
	ListProgramOutcomes(ctx context.Context, programID shared.ID) ([]*outcome.ProgramOutcome, error)
}

// MappingWriter reads and changes stored mappings.
type MappingWriter interface {
	ListByCourse(ctx context.Context, courseID shared.ID) ([]*outcome.Mapping, error)
	Upsert(ctx context.Context, m *outcome.Mapping) error
	Delete(ctx context.Context, outcomeID, programOutcomeID shared.ID) error
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ApplyMappingSuggestionsHandler handles ApplyMappingSuggestionsCommand.
type ApplyMappingSuggestionsHandler struct {
	curriculum CurriculumReader
	mappings   MappingWriter
	scorer     *mapping.Scorer
	recorder   Recorder
	logger     *slog.Logger

	now func() time.Time
}

// NewApplyMappingSuggestionsHandler creates a new handler.
func NewApplyMappingSuggestionsHandler(
	curriculum CurriculumReader,
	mappings MappingWriter,
	scorer *mapping.Scorer,
	recorder Recorder,
	log *slog.Logger,
) *ApplyMappingSuggestionsHandler {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &ApplyMappingSuggestionsHandler{
		curriculum: curriculum,
		mappings:   mappings,
		scorer:     scorer,
		recorder:   recorder,
		logger:     logger.OrDefault(log).With(logger.Component("apply_mapping_suggestions")),
		now:        time.Now,
	}
}

type pairKey struct {
	outcome shared.ID
	program shared.ID
}

// Handle executes the command.
func (h *ApplyMappingSuggestionsHandler) Handle(ctx context.Context, cmd ApplyMappingSuggestionsCommand) (*ApplyMappingSuggestionsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("apply_mapping_suggestions: validation failed: %w", err)
	}

	course, err := h.curriculum.GetCourse(ctx, cmd.CourseID)
	if err != nil {
		return nil, fmt.Errorf("apply_mapping_suggestions: %w", err)
	}

	outcomes, err := h.curriculum.ListOutcomes(ctx, course.ID)
	if err != nil {
		return nil, fmt.Errorf("apply_mapping_suggestions: list outcomes: %w", err)
	}

	plos, err := h.curriculum.ListProgramOutcomes(ctx, course.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("apply_mapping_suggestions: list program outcomes: %w", err)
	}
	if len(cmd.ProgramOutcomeIDs) > 0 {
		plos = filterProgramOutcomes(plos, shared.NewIDSet(cmd.ProgramOutcomeIDs...))
	}

	stored, err := h.mappings.ListByCourse(ctx, course.ID)
	if err != nil {
		return nil, fmt.Errorf("apply_mapping_suggestions: list mappings: %w", err)
	}
	existing := make(map[pairKey]*outcome.Mapping, len(stored))
	for _, m := range stored {
		existing[pairKey{m.OutcomeID, m.ProgramOutcomeID}] = m
	}

	result := &ApplyMappingSuggestionsResult{
		CourseID: course.ID,
		Changes:  make([]MappingChangeDTO, 0, len(outcomes)*len(plos)),
		DryRun:   cmd.DryRun,
	}

	for _, o := range outcomes {
		for _, plo := range plos {
			s := h.scorer.Score(o, plo)
			change := MappingChangeDTO{
				OutcomeID:        o.ID,
				OutcomeCode:      o.Code,
				ProgramOutcomeID: plo.ID,
				ProgramCode:      plo.Code,
				Score:            s.Score,
				SuggestedTier:    s.Tier,
			}

			prev := existing[pairKey{o.ID, plo.ID}]
			if prev != nil {
				change.PreviousTier = prev.Tier
				change.PreviousSource = prev.Source
			}

			change.Action, err = h.apply(ctx, cmd.DryRun, o.ID, plo.ID, s, prev)
			if err != nil {
				return nil, fmt.Errorf("apply_mapping_suggestions: outcome %s, program outcome %s: %w", o.ID, plo.ID, err)
			}
			result.count(change.Action)
			result.Changes = append(result.Changes, change)
		}
	}

	h.recorder.ObserveMappingApply(result.Created, result.Updated, result.Removed, result.Skipped)
	h.logger.Info("mapping suggestions applied",
		logger.CourseID(course.ID.Int64()),
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("removed", result.Removed),
		slog.Int("skipped", result.Skipped),
		slog.Bool("dry_run", cmd.DryRun),
	)

	return result, nil
}

func (h *ApplyMappingSuggestionsHandler) apply(
	ctx context.Context,
	dryRun bool,
	outcomeID, ploID shared.ID,
	s mapping.Suggestion,
	prev *outcome.Mapping,
) (MappingAction, error) {
	if prev != nil && prev.Source.IsAuthoritative() {
		return ActionKept, nil
	}

	if !s.Tier.IsContributing() {
		if prev == nil {
			return ActionNone, nil
		}
		if !dryRun {
			if err := h.mappings.Delete(ctx, outcomeID, ploID); err != nil && !shared.IsNotFound(err) {
				return "", err
			}
		}
		return ActionRemoved, nil
	}

	if prev != nil && prev.Tier == s.Tier && prev.Score == s.Score {
		return ActionUnchanged, nil
	}

	action := ActionCreated
	if prev != nil {
		action = ActionUpdated
	}
	if !dryRun {
		m := &outcome.Mapping{
			OutcomeID:        outcomeID,
			ProgramOutcomeID: ploID,
			Tier:             s.Tier,
			Source:           outcome.SourceInferred,
			Score:            s.Score,
			UpdatedAt:        h.now().UTC(),
		}
		if err := h.mappings.Upsert(ctx, m); err != nil {
			return "", err
		}
	}
	return action, nil
}

func (r *ApplyMappingSuggestionsResult) count(a MappingAction) {
	switch a {
	case ActionCreated:
		r.Created++
	case ActionUpdated:
		r.Updated++
	case ActionRemoved:
		r.Removed++
	case ActionKept:
		r.Skipped++
	}
}

func filterProgramOutcomes(plos []*outcome.ProgramOutcome, keep shared.IDSet) []*outcome.ProgramOutcome {
	out := plos[:0:0]
	for _, p := range plos {
		if keep.Has(p.ID) {
			out = append(out, p)
		}
	}
	return out
}
