package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loes-hub/outcome-engine/internal/app"
	"github.com/loes-hub/outcome-engine/internal/application/command"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
)

func newImportCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import curriculum data from spreadsheets",
	}
	cmd.AddCommand(newImportMappingsCmd(opts))
	return cmd
}

func newImportMappingsCmd(opts *globalOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "mappings <program-id> <matrix.csv>",
		Short: "Import a course × PLO mapping matrix exported from a spreadsheet",
		Long: `Import a course × PLO mapping matrix exported as CSV.

The header row names a course code column ("Mã học phần" or "Code") and one
column per program outcome ("PLO1", "ELO 2", ...). Cells hold tier codes:
H, M, A for major; N, R, ✓, V for neutral; S, L, I, X for low. Blank cells,
"-" and numbers are skipped. A row's code applies to every CLO of the course.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			programID, err := shared.ParseID(args[0])
			if err != nil {
				return err
			}
			f, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("open matrix: %w", err)
			}
			defer f.Close()

			matrix, err := readMatrix(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}
			matrix.ProgramID = programID
			matrix.DryRun = dryRun

			return opts.withEngine(cmd, func(ctx context.Context, e *app.Engine) (any, error) {
				return e.ImportMappings.Handle(ctx, matrix)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report changes without storing them")
	return cmd
}

var (
	codeHeaders = []string{"mã học phần", "mã học", "course code", "code"}
	nameHeaders = []string{"tên học phần", "tên học", "course name", "name"}
)

// headerScanRows is how many leading rows may precede the header.
const headerScanRows = 10

// readMatrix parses a mapping matrix. Title rows above the header are skipped.
func readMatrix(r io.Reader) (command.ImportMappingMatrixCommand, error) {
	var out command.ImportMappingMatrixCommand

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	codeCol, ploCols := -1, []int(nil)
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("read csv: %w", err)
		}

		if codeCol < 0 {
			if line > headerScanRows {
				return out, fmt.Errorf("no header row with a course code column in the first %d lines", headerScanRows)
			}
			codeCol, ploCols = parseHeader(rec)
			if codeCol < 0 {
				continue
			}
			if len(ploCols) == 0 {
				return out, fmt.Errorf("line %d: no PLO or ELO columns", line)
			}
			for _, i := range ploCols {
				out.Columns = append(out.Columns, strings.TrimSpace(rec[i]))
			}
			continue
		}

		row := command.MatrixRow{Line: line, Cells: make([]string, len(ploCols))}
		if codeCol < len(rec) {
			row.CourseCode = strings.TrimSpace(rec[codeCol])
		}
		for j, i := range ploCols {
			if i < len(rec) {
				row.Cells[j] = rec[i]
			}
		}
		out.Rows = append(out.Rows, row)
	}

	if codeCol < 0 {
		return out, errors.New("no header row with a course code column")
	}
	return out, nil
}

// parseHeader returns the course code column and the outcome columns, or -1
// when rec is not a header. Outcome columns follow the name column when there
// is one.
func parseHeader(rec []string) (int, []int) {
	codeCol, nameCol := -1, -1
	for i, cell := range rec {
		label := strings.ToLower(strings.TrimSpace(cell))
		if codeCol < 0 && containsAny(label, codeHeaders) {
			codeCol = i
			continue
		}
		if nameCol < 0 && containsAny(label, nameHeaders) {
			nameCol = i
		}
	}
	if codeCol < 0 {
		return -1, nil
	}

	var plos []int
	for i := nameCol + 1; i < len(rec); i++ {
		if i == codeCol {
			continue
		}
		label := strings.ToUpper(rec[i])
		if strings.Contains(label, "PLO") || strings.Contains(label, "ELO") {
			plos = append(plos, i)
		}
	}
	return codeCol, plos
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
