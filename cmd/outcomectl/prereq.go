package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/loes-hub/outcome-engine/internal/app"
	"github.com/loes-hub/outcome-engine/internal/application/query"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
)

func newCheckCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check rules against student history",
	}
	cmd.AddCommand(newCheckPrereqCmd(opts))
	return cmd
}

func newCheckPrereqCmd(opts *globalOptions) *cobra.Command {
	var (
		student, course, rule int64
		year                  int
	)

	cmd := &cobra.Command{
		Use:   "prereq",
		Short: "Check one rule, or every rule of a course, for a student",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if student == 0 {
				return errors.New("--student is required")
			}
			if course == 0 && rule == 0 {
				return errors.New("one of --course or --rule is required")
			}
			return opts.withEngine(cmd, func(ctx context.Context, e *app.Engine) (any, error) {
				return e.CheckPrereq.Handle(ctx, query.CheckPrerequisiteQuery{
					StudentID: shared.ID(student),
					CourseID:  shared.ID(course),
					RuleID:    shared.ID(rule),
					Year:      year,
				})
			})
		},
	}
	cmd.Flags().Int64Var(&student, "student", 0, "Student id")
	cmd.Flags().Int64Var(&course, "course", 0, "Course being enrolled in (checks all its rules)")
	cmd.Flags().Int64Var(&rule, "rule", 0, "Check only this rule")
	cmd.Flags().IntVar(&year, "year", 0, "Curriculum version year (0 = any)")
	return cmd
}

func newImpactCmd(opts *globalOptions) *cobra.Command {
	var (
		year   int
		cohort string
	)

	cmd := &cobra.Command{
		Use:   "impact <course-id>",
		Short: "List students who do not meet the prerequisites of a course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			courseID, err := shared.ParseID(args[0])
			if err != nil {
				return err
			}
			return opts.withEngine(cmd, func(ctx context.Context, e *app.Engine) (any, error) {
				return e.Impact.Handle(ctx, query.AnalyzePrerequisiteImpactQuery{
					CourseID: courseID,
					Year:     year,
					Cohort:   shared.Cohort(cohort),
				})
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "Only rules effective in this year (0 = all)")
	cmd.Flags().StringVar(&cohort, "cohort", "", "Only students of this cohort")
	return cmd
}
