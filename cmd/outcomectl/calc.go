package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/loes-hub/outcome-engine/internal/app"
	"github.com/loes-hub/outcome-engine/internal/application/command"
	"github.com/loes-hub/outcome-engine/internal/application/query"
	"github.com/loes-hub/outcome-engine/internal/domain/achievement"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
)

func newCalcCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Calculate attainment",
	}
	cmd.AddCommand(newCalcCourseCmd(opts), newCalcProgramCmd(opts))
	return cmd
}

func newCalcCourseCmd(opts *globalOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "course <course-id>",
		Short: "Calculate every outcome of a course and store the results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			courseID, err := shared.ParseID(args[0])
			if err != nil {
				return err
			}
			return opts.withEngine(cmd, func(ctx context.Context, e *app.Engine) (any, error) {
				return e.CalculateCourse.Handle(ctx, command.CalculateCourseAttainmentCommand{
					CourseID: courseID,
					Source:   achievement.SourceCourseCalculation,
					DryRun:   dryRun,
				})
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Calculate without writing results")
	return cmd
}

func newCalcProgramCmd(opts *globalOptions) *cobra.Command {
	var plo int64

	cmd := &cobra.Command{
		Use:   "program <program-id>",
		Short: "Aggregate program outcome attainment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			programID, err := shared.ParseID(args[0])
			if err != nil {
				return err
			}
			return opts.withEngine(cmd, func(ctx context.Context, e *app.Engine) (any, error) {
				return e.ProgramAttainment.Handle(ctx, query.GetProgramAttainmentQuery{
					ProgramID:        programID,
					ProgramOutcomeID: shared.ID(plo),
				})
			})
		},
	}
	cmd.Flags().Int64Var(&plo, "plo", 0, "Only this program outcome (0 = all)")
	return cmd
}
