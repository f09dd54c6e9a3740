package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loes-hub/outcome-engine/internal/app"
	"github.com/loes-hub/outcome-engine/internal/application/command"
	"github.com/loes-hub/outcome-engine/internal/application/query"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
)

func newSuggestCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest outcome mappings or prerequisite courses",
	}
	cmd.AddCommand(newSuggestMappingsCmd(opts), newSuggestPrereqsCmd(opts))
	return cmd
}

func newSuggestMappingsCmd(opts *globalOptions) *cobra.Command {
	var (
		includeNone bool
		apply       bool
		dryRun      bool
		plos        []int64
	)

	cmd := &cobra.Command{
		Use:   "mappings <course-id>",
		Short: "Score every CLO of a course against every PLO of its program",
		Long: `Score every CLO of a course against every PLO of its program.

With --apply the inferred tiers are stored. Manual and imported mappings
are never overwritten.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			courseID, err := shared.ParseID(args[0])
			if err != nil {
				return err
			}
			return opts.withEngine(cmd, func(ctx context.Context, e *app.Engine) (any, error) {
				if !apply {
					return e.SuggestMappings.Handle(ctx, query.SuggestOutcomeMappingsQuery{
						CourseID:    courseID,
						IncludeNone: includeNone,
					})
				}
				return e.ApplyMappings.Handle(ctx, command.ApplyMappingSuggestionsCommand{
					CourseID:          courseID,
					ProgramOutcomeIDs: toIDs(plos),
					DryRun:            dryRun,
				})
			})
		},
	}
	cmd.Flags().BoolVar(&includeNone, "include-none", false, "Also list pairs scored None")
	cmd.Flags().BoolVar(&apply, "apply", false, "Store the inferred tiers")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "With --apply, report changes without storing them")
	cmd.Flags().Int64SliceVar(&plos, "plo", nil, "With --apply, only these program outcomes")
	return cmd
}

func newSuggestPrereqsCmd(opts *globalOptions) *cobra.Command {
	var (
		outcomes []string
		exclude  int64
	)

	cmd := &cobra.Command{
		Use:   "prereqs",
		Short: "Rank existing courses as prerequisites for a planned course",
		Example: `  outcomectl suggest prereqs \
    --outcome "Analyze:thị trường du lịch" \
    --outcome "Create:chiến dịch marketing"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			candidates, err := parseCandidates(outcomes)
			if err != nil {
				return err
			}
			return opts.withEngine(cmd, func(ctx context.Context, e *app.Engine) (any, error) {
				return e.SuggestPrereqs.Handle(ctx, query.SuggestPrerequisitesQuery{
					Outcomes:        candidates,
					ExcludeCourseID: shared.ID(exclude),
				})
			})
		},
	}
	cmd.Flags().StringArrayVar(&outcomes, "outcome", nil, `Planned outcome as "Level:text" (repeatable)`)
	cmd.Flags().Int64Var(&exclude, "exclude", 0, "Course to leave out of the candidates")
	return cmd
}

// parseCandidates reads "Level:text" pairs. A value without a colon is all
// text with no Bloom level.
func parseCandidates(values []string) ([]query.CandidateOutcome, error) {
	out := make([]query.CandidateOutcome, 0, len(values))
	for _, v := range values {
		level, text, found := strings.Cut(v, ":")
		if !found {
			level, text = "", v
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, fmt.Errorf("outcome %q has no text", v)
		}
		out = append(out, query.CandidateOutcome{Text: text, BloomLevel: strings.TrimSpace(level)})
	}
	return out, nil
}

func toIDs(in []int64) []shared.ID {
	if len(in) == 0 {
		return nil
	}
	out := make([]shared.ID, len(in))
	for i, v := range in {
		out[i] = shared.ID(v)
	}
	return out
}
