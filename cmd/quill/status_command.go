package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"quill/internal/checkpoint"
	"quill/internal/completion"
	"quill/internal/config"
	"quill/internal/fetch"
	"quill/internal/records"
	"quill/internal/tagging"
)

type stageReport struct {
	stage     string
	predicate completion.Predicate
}

type storeStatus struct {
	Store     string `json:"store"`
	Stage     string `json:"stage"`
	Pending   int    `json:"pending"`
	Retry     int    `json:"retry"`
	Done      int    `json:"done"`
	Total     int    `json:"total"`
	Unmerged  int    `json:"unmerged_log_entries"`
	LogExists bool   `json:"log_exists"`
}

func stagePredicate(name string) (completion.Predicate, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case fetch.StageName:
		return fetch.Predicate(), nil
	case tagging.StageName:
		return tagging.Predicate(), nil
	default:
		return completion.Predicate{}, fmt.Errorf("unknown stage %q (want %s or %s)", name, fetch.StageName, tagging.StageName)
	}
}

func collectStatus(storePath, keyField string, report stageReport) (storeStatus, error) {
	store, err := records.Load(storePath, keyField)
	if err != nil {
		return storeStatus{}, err
	}
	counts := report.predicate.Tally(store.Records())
	status := storeStatus{
		Store:   storePath,
		Stage:   report.stage,
		Pending: counts.Pending,
		Retry:   counts.Retry,
		Done:    counts.Done,
		Total:   counts.Total(),
	}

	logPath := checkpoint.Path(storePath)
	entries, _, err := checkpoint.ReadEntries(logPath, keyField)
	if err != nil {
		return storeStatus{}, err
	}
	status.Unmerged = len(entries)
	status.LogExists = fileExists(logPath)
	return status, nil
}

func renderStatusTable(status storeStatus) string {
	rows := [][]string{
		{"Done", formatCount(status.Done)},
		{"Needs retry", formatCount(status.Retry)},
		{"Pending", formatCount(status.Pending)},
		{"Total", formatCount(status.Total)},
	}
	return renderTable(metricColumns("Stage "+status.Stage, "Records"), rows)
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var storePath, stageName string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report how many records a stage has completed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := config.ExpandPath(strings.TrimSpace(storePath))
			if err != nil {
				return fmt.Errorf("resolve --csv: %w", err)
			}
			stageName = strings.ToLower(strings.TrimSpace(stageName))
			predicate, err := stagePredicate(stageName)
			if err != nil {
				return err
			}
			status, err := collectStatus(store, cfg.Job.KeyField, stageReport{stage: stageName, predicate: predicate})
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader(store, colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusTable(status))

			switch {
			case status.Unmerged > 0:
				fmt.Fprintln(out, renderStatusLine("Checkpoint log", statusWarn,
					fmt.Sprintf("%s unmerged entries; run `quill merge --csv %s`", formatCount(status.Unmerged), store), colorize))
			case status.Retry+status.Pending == 0:
				fmt.Fprintln(out, renderStatusLine(stageName, statusOK, "all records complete", colorize))
			default:
				fmt.Fprintln(out, renderStatusLine(stageName, statusInfo,
					fmt.Sprintf("%s records left; run `quill %s --csv %s`", formatCount(status.Retry+status.Pending), stageName, store), colorize))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&storePath, "csv", "", "CSV store to inspect")
	cmd.Flags().StringVar(&stageName, "stage", "", "Stage to report: fetch or tag")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("csv")
	_ = cmd.MarkFlagRequired("stage")
	return cmd
}
