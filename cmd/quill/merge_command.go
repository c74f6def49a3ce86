package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"quill/internal/config"
	"quill/internal/job"
)

func newMergeCommand(ctx *commandContext) *cobra.Command {
	var storePath, stageName string

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Fold a leftover checkpoint log into its store",
		Long: "Merge applies the checkpoint log next to the store (<name>_result.csv) and truncates it.\n" +
			"Runs do this automatically; use merge to settle a store after a crash without starting a run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store, err := config.ExpandPath(strings.TrimSpace(storePath))
			if err != nil {
				return fmt.Errorf("resolve --csv: %w", err)
			}
			var report *stageReport
			if stageName = strings.ToLower(strings.TrimSpace(stageName)); stageName != "" {
				predicate, err := stagePredicate(stageName)
				if err != nil {
					return err
				}
				report = &stageReport{stage: stageName, predicate: predicate}
			}

			result, err := job.MergePending(cmd.Context(), store, cfg.Job.KeyField, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if result.Skipped {
				fmt.Fprintf(out, "No pending checkpoint entries for %s\n", store)
			} else {
				fmt.Fprintf(out, "Merged %s entries into %s (%s records updated", formatCount(result.Entries), store, formatCount(result.Applied))
				if result.Orphaned > 0 {
					fmt.Fprintf(out, ", %s unknown keys ignored", formatCount(result.Orphaned))
				}
				if result.Dropped > 0 {
					fmt.Fprintf(out, ", %s malformed lines dropped", formatCount(result.Dropped))
				}
				fmt.Fprintln(out, ")")
			}
			if report == nil {
				return nil
			}
			status, err := collectStatus(store, cfg.Job.KeyField, *report)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderStatusTable(status))
			return nil
		},
	}

	cmd.Flags().StringVar(&storePath, "csv", "", "CSV store to settle")
	cmd.Flags().StringVar(&stageName, "stage", "", "Report completion for this stage afterwards (fetch or tag)")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}
