package main

import (
	"context"

	"github.com/neuro-mcq/backend/internal/mcqs"
	"github.com/neuro-mcq/backend/internal/models"
	"github.com/spf13/cobra"
)

type maintenanceJob func(*mcqs.Maintenance, context.Context, bool) (*models.MaintenanceReport, error)

// maintenanceCmd builds a command that runs one repair job and prints its
// report. Jobs that support it get a --dry-run flag.
func maintenanceCmd(a *app, use, short string, withDryRun bool, job maintenanceJob) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.database()
			if err != nil {
				return err
			}
			report, err := job(mcqs.NewMaintenance(mcqs.NewStore(db)), cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
	if withDryRun {
		cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report changes without writing them")
	}
	return cmd
}

func newDedupeCmd(a *app) *cobra.Command {
	return maintenanceCmd(a, "dedupe", "Merge MCQs with the same question text, keeping the most complete",
		true, (*mcqs.Maintenance).Dedupe)
}

func newFixAnswersCmd(a *app) *cobra.Command {
	return maintenanceCmd(a, "fix-answers", "Align correct answers with the option analysis in explanations",
		true, (*mcqs.Maintenance).FixAnswers)
}

func newFixImagesCmd(a *app) *cobra.Command {
	return maintenanceCmd(a, "fix-images", "Normalize image URLs to direct links",
		true, (*mcqs.Maintenance).FixImages)
}

func newBackfillCmd(a *app) *cobra.Command {
	return maintenanceCmd(a, "backfill", "Fill unified explanations and image URLs from explanation sections",
		true, (*mcqs.Maintenance).Backfill)
}

func newPlaceholdersCmd(a *app) *cobra.Command {
	return maintenanceCmd(a, "placeholders", "Count MCQs whose explanation is a placeholder",
		false, func(m *mcqs.Maintenance, ctx context.Context, _ bool) (*models.MaintenanceReport, error) {
			return m.PlaceholderReport(ctx)
		})
}
