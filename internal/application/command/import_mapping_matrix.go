package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loes-hub/outcome-engine/internal/domain/mapping"
	"github.com/loes-hub/outcome-engine/internal/domain/outcome"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
	"github.com/loes-hub/outcome-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT MAPPING MATRIX COMMAND
// Loads a curriculum mapping spreadsheet: one row per course, one column per
// program outcome, a tier code in each cell. A row's code applies to every
// outcome of that course. Stored as imported mappings, which the suggestion
// command never overwrites.
// ══════════════════════════════════════════════════════════════════════════════

// MatrixRow is one course row of the spreadsheet.
type MatrixRow struct {
	// Line is the 1-based line in the source file, for error messages.
	Line int

	CourseCode string

	// Cells is aligned with ImportMappingMatrixCommand.Columns.
	Cells []string
}

// ImportMappingMatrixCommand contains the parsed spreadsheet.
type ImportMappingMatrixCommand struct {
	ProgramID shared.ID

	// Columns are the headers of the program outcome columns.
	Columns []string
	Rows    []MatrixRow

	// DryRun reports the actions without writing.
	DryRun bool
}

// Validate validates the command.
func (c ImportMappingMatrixCommand) Validate() error {
	if !c.ProgramID.IsValid() {
		return shared.NewDomainError("command", "ImportMappingMatrix", shared.ErrInvalidID, "program_id must be positive")
	}
	if len(c.Columns) == 0 {
		return shared.NewDomainError("command", "ImportMappingMatrix", shared.ErrInvalidInput, "no program outcome columns")
	}
	return nil
}

// ImportMappingMatrixResult summarizes an import. Row problems are collected
// in Errors; they do not stop the import.
type ImportMappingMatrixResult struct {
	ProgramID        shared.ID `json:"program_id"`
	CoursesProcessed int       `json:"courses_processed"`
	Created          int       `json:"created"`
	Updated          int       `json:"updated"`
	Unchanged        int       `json:"unchanged"`
	Errors           []string  `json:"errors"`
	DryRun           bool      `json:"dry_run"`
}

// ProgramCurriculumReader lists a program's courses and outcomes.
type ProgramCurriculumReader interface {
	ListCourses(ctx context.Context, programID shared.ID) ([]*outcome.Course, error)
	ListOutcomes(ctx context.Context, courseID shared.ID) ([]*outcome.Outcome, error)
	ListProgramOutcomes(ctx context.Context, programID shared.ID) ([]*outcome.ProgramOutcome, error)
}

// ImportMappingMatrixHandler handles ImportMappingMatrixCommand.
type ImportMappingMatrixHandler struct {
	curriculum ProgramCurriculumReader
	mappings   MappingWriter
	recorder   Recorder
	logger     *slog.Logger

	now func() time.Time
}

// NewImportMappingMatrixHandler creates a new handler.
func NewImportMappingMatrixHandler(
	curriculum ProgramCurriculumReader,
	mappings MappingWriter,
	recorder Recorder,
	log *slog.Logger,
) *ImportMappingMatrixHandler {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &ImportMappingMatrixHandler{
		curriculum: curriculum,
		mappings:   mappings,
		recorder:   recorder,
		logger:     logger.OrDefault(log).With(logger.Component("import_mapping_matrix")),
		now:        time.Now,
	}
}

// Handle executes the command.
func (h *ImportMappingMatrixHandler) Handle(ctx context.Context, cmd ImportMappingMatrixCommand) (*ImportMappingMatrixResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("import_mapping_matrix: validation failed: %w", err)
	}

	plos, err := h.curriculum.ListProgramOutcomes(ctx, cmd.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("import_mapping_matrix: list program outcomes: %w", err)
	}
	courses, err := h.curriculum.ListCourses(ctx, cmd.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("import_mapping_matrix: list courses: %w", err)
	}
	byCode := make(map[string]*outcome.Course, len(courses))
	for _, c := range courses {
		byCode[strings.ToUpper(strings.TrimSpace(c.Code))] = c
	}

	result := &ImportMappingMatrixResult{
		ProgramID: cmd.ProgramID,
		Errors:    make([]string, 0),
		DryRun:    cmd.DryRun,
	}

	resolver := mapping.NewColumnResolver(plos)
	columns := make([]*outcome.ProgramOutcome, len(cmd.Columns))
	for i, header := range cmd.Columns {
		plo, ok := resolver.Resolve(header)
		if !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("column %q: no matching program outcome", header))
			continue
		}
		columns[i] = plo
	}

	for _, row := range cmd.Rows {
		code := strings.ToUpper(strings.TrimSpace(row.CourseCode))
		if code == "" {
			continue
		}
		course, ok := byCode[code]
		if !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: no course %q in the program", row.Line, row.CourseCode))
			continue
		}
		if err := h.importRow(ctx, cmd.DryRun, course, row, columns, result); err != nil {
			return nil, fmt.Errorf("import_mapping_matrix: line %d: %w", row.Line, err)
		}
	}

	h.recorder.ObserveMappingApply(result.Created, result.Updated, 0, 0)
	h.logger.Info("mapping matrix imported",
		logger.ProgramID(cmd.ProgramID.Int64()),
		slog.Int("courses", result.CoursesProcessed),
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("errors", len(result.Errors)),
		slog.Bool("dry_run", cmd.DryRun),
	)
	return result, nil
}

func (h *ImportMappingMatrixHandler) importRow(
	ctx context.Context,
	dryRun bool,
	course *outcome.Course,
	row MatrixRow,
	columns []*outcome.ProgramOutcome,
	result *ImportMappingMatrixResult,
) error {
	outcomes, err := h.curriculum.ListOutcomes(ctx, course.ID)
	if err != nil {
		return fmt.Errorf("list outcomes: %w", err)
	}
	if len(outcomes) == 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("line %d: course %q has no outcomes", row.Line, course.Code))
		return nil
	}
	result.CoursesProcessed++

	stored, err := h.mappings.ListByCourse(ctx, course.ID)
	if err != nil {
		return fmt.Errorf("list mappings: %w", err)
	}
	existing := make(map[pairKey]*outcome.Mapping, len(stored))
	for _, m := range stored {
		existing[pairKey{m.OutcomeID, m.ProgramOutcomeID}] = m
	}

	for i, plo := range columns {
		if plo == nil || i >= len(row.Cells) {
			continue
		}
		tier := mapping.ParseTierCode(row.Cells[i])
		if !tier.IsContributing() {
			continue
		}

		for _, o := range outcomes {
			prev := existing[pairKey{o.ID, plo.ID}]
			switch {
			case prev != nil && prev.Tier == tier && prev.Source == outcome.SourceImported:
				result.Unchanged++
				continue
			case prev != nil:
				result.Updated++
			default:
				result.Created++
			}
			if dryRun {
				continue
			}
			if err := h.mappings.Upsert(ctx, &outcome.Mapping{
				OutcomeID:        o.ID,
				ProgramOutcomeID: plo.ID,
				Tier:             tier,
				Source:           outcome.SourceImported,
				UpdatedAt:        h.now().UTC(),
			}); err != nil {
				return fmt.Errorf("outcome %s, program outcome %s: %w", o.ID, plo.ID, err)
			}
		}
	}
	return nil
}
