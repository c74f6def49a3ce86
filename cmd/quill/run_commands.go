package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"quill/internal/config"
	"quill/internal/fetch"
	"quill/internal/job"
	"quill/internal/logging"
	"quill/internal/notifications"
	"quill/internal/preflight"
	"quill/internal/runstore"
	"quill/internal/services/downloader"
	"quill/internal/stage"
	"quill/internal/tagging"
)

type runFlags struct {
	storePath     string
	articleDir    string
	limit         int
	skipPreflight bool
	jsonOutput    bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.storePath, "csv", "", "CSV store keyed by article_url")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "Process at most N incomplete records (0 = all)")
	cmd.Flags().BoolVar(&f.skipPreflight, "skip-preflight", false, "Skip dependency checks before the run")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "Print the run summary as JSON")
	_ = cmd.MarkFlagRequired("csv")
}

func (f *runFlags) resolve(cfg *config.Config) error {
	store, err := config.ExpandPath(strings.TrimSpace(f.storePath))
	if err != nil {
		return fmt.Errorf("resolve --csv: %w", err)
	}
	f.storePath = store
	dir := strings.TrimSpace(f.articleDir)
	if dir == "" {
		dir = cfg.Paths.ArticleDir
	}
	if dir, err = config.ExpandPath(dir); err != nil {
		return fmt.Errorf("resolve --dir: %w", err)
	}
	f.articleDir = dir
	return nil
}

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags
	var saveProcessed bool
	var downloaderURL string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download articles for records missing raw files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := flags.resolve(cfg); err != nil {
				return err
			}
			if value := strings.TrimSpace(downloaderURL); value != "" {
				cfg.Downloader.URL = value
			}
			if cmd.Flags().Changed("save-processed") {
				cfg.Downloader.SaveProcessed = saveProcessed
			}

			client := downloader.NewClient(downloader.Config{
				URL:                 cfg.Downloader.URL,
				TimeoutSeconds:      cfg.Downloader.TimeoutSeconds,
				CheckTimeoutSeconds: cfg.Downloader.CheckTimeoutSeconds,
			})
			proc := fetch.New(client, fetch.Options{
				ArticleDir:    flags.articleDir,
				KeyField:      cfg.Job.KeyField,
				SaveProcessed: cfg.Downloader.SaveProcessed,
			})
			return ctx.runStage(cmd, proc, flags, preflight.StageFetch)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&flags.articleDir, "dir", "", "Directory for downloaded articles")
	cmd.Flags().BoolVar(&saveProcessed, "save-processed", false, "Also save texified and purified copies")
	cmd.Flags().StringVar(&downloaderURL, "downloader-url", "", "Override the download service URL")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

func newTagCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags
	var provider, model string
	var keywordCount int

	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Classify articles and extract keywords with an LLM",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := flags.resolve(cfg); err != nil {
				return err
			}
			if err := cfg.OverrideLLM(provider, model); err != nil {
				return err
			}
			if cmd.Flags().Changed("keyword-count") {
				if keywordCount <= 0 {
					return fmt.Errorf("--keyword-count must be positive, got %d", keywordCount)
				}
				cfg.Tagging.KeywordCount = keywordCount
			}
			if err := cfg.ValidateTagging(); err != nil {
				return err
			}

			chat, err := tagging.NewChat(cfg.GetLLM(), 0)
			if err != nil {
				return err
			}
			proc, err := tagging.New(chat, tagging.Options{
				ArticleDir:   flags.articleDir,
				KeyField:     cfg.Job.KeyField,
				Categories:   cfg.Tagging.Categories,
				KeywordCount: cfg.Tagging.KeywordCount,
			})
			if err != nil {
				return err
			}
			return ctx.runStage(cmd, proc, flags, preflight.StageTag)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&flags.articleDir, "dir", "", "Directory holding fetched articles (defaults to paths.article_dir)")
	cmd.Flags().StringVar(&provider, "provider", "", "LLM provider: openai or ollama")
	cmd.Flags().StringVar(&model, "model", "", "Override the LLM model")
	cmd.Flags().IntVar(&keywordCount, "keyword-count", 0, "Number of keywords to extract per article")
	return cmd
}

func (c *commandContext) runStage(cmd *cobra.Command, proc stage.Processor, flags runFlags, stageName string) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return err
	}
	runCtx := cmd.Context()
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	if !flags.skipPreflight {
		target := preflight.Target{Stage: stageName, StorePath: flags.storePath, ArticleDir: flags.articleDir}
		if err := printPreflight(runCtx, out, cfg, target, colorize && !flags.jsonOutput); err != nil {
			return err
		}
	}

	options := []job.Option{
		job.WithLogger(logger),
		job.WithPacer(job.NewPacer(cfg.PacingBounds())),
	}
	if cfg.Job.RecordHistory {
		history, err := runstore.Open(cfg.RunHistoryPath())
		if err != nil {
			return fmt.Errorf("open run history: %w", err)
		}
		defer history.Close()
		options = append(options, job.WithHistory(history))
	}

	runner, err := job.New(proc, job.Options{
		StorePath:   flags.storePath,
		KeyField:    cfg.Job.KeyField,
		CallTimeout: cfg.CallTimeout(),
		Limit:       flags.limit,
	}, options...)
	if err != nil {
		return err
	}

	summary, runErr := runner.Run(runCtx)
	notifyRun(runCtx, cfg, logger, summary, runErr)
	if summary.EndedAt.IsZero() {
		// The run never started, typically because the store is locked.
		return runErr
	}
	if flags.jsonOutput {
		if err := writeJSON(cmd, summary); err != nil {
			return errors.Join(runErr, err)
		}
		return runErr
	}
	for _, line := range renderRunSummary(summary, colorize) {
		fmt.Fprintln(out, line)
	}
	return runErr
}

func notifyRun(ctx context.Context, cfg *config.Config, logger *slog.Logger, summary job.Summary, runErr error) {
	notifier := notifications.NewService(cfg)
	ctx = context.WithoutCancel(ctx)
	var err error
	if runErr != nil && !summary.Interrupted {
		err = notifier.NotifyRunFailed(ctx, summary.Stage, summary.StorePath, runErr)
	} else {
		err = notifier.NotifyRunCompleted(ctx, notifications.RunReport{
			Stage:       summary.Stage,
			Store:       summary.StorePath,
			Total:       summary.Total,
			Processed:   summary.Processed,
			Succeeded:   summary.Succeeded,
			Failed:      summary.Failed,
			Deferred:    summary.Deferred,
			Duration:    summary.EndedAt.Sub(summary.StartedAt),
			Interrupted: summary.Interrupted,
		})
	}
	if err != nil {
		logging.WarnWithContext(logger, "run notification failed", "notification_failed",
			logging.Error(err),
			logging.Hint("check notifications.ntfy_topic"),
		)
	}
}

func printPreflight(ctx context.Context, out io.Writer, cfg *config.Config, target preflight.Target, colorize bool) error {
	results := preflight.RunAll(ctx, cfg, target)
	failed := preflight.Failed(results)
	if len(failed) == 0 {
		return nil
	}
	for _, line := range renderSectionHeader("Preflight", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, r := range results {
		kind := statusOK
		if !r.Passed {
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	names := make([]string, 0, len(failed))
	for _, r := range failed {
		names = append(names, r.Name)
	}
	return fmt.Errorf("preflight failed: %s (use --skip-preflight to run anyway)", strings.Join(names, ", "))
}

func renderRunSummary(summary job.Summary, colorize bool) []string {
	title := fmt.Sprintf("%s run %s", summary.Stage, shortID(summary.RunID))
	lines := renderSectionHeader(title, colorize)

	outcome := statusOK
	message := "finished in " + formatDuration(summary.EndedAt.Sub(summary.StartedAt))
	switch {
	case summary.Interrupted:
		outcome = statusWarn
		message = "interrupted; progress was merged"
	case summary.Failed > 0:
		outcome = statusWarn
	}
	lines = append(lines, renderStatusLine("Result", outcome, message, colorize))

	rows := [][]string{
		{"Records", formatCount(summary.Total)},
		{"Already complete", formatCount(summary.Skipped)},
		{"Processed", formatCount(summary.Processed)},
		{"Succeeded", formatCount(summary.Succeeded)},
		{"Failed", formatCount(summary.Failed)},
		{"Retried", formatCount(summary.Retried)},
	}
	if summary.Deferred > 0 {
		rows = append(rows, []string{"Deferred by limit", formatCount(summary.Deferred)})
	}
	if summary.Dropped > 0 {
		rows = append(rows, []string{"Dropped log lines", formatCount(summary.Dropped)})
	}
	if summary.MergeIn.Applied > 0 {
		rows = append(rows, []string{"Recovered from log", formatCount(summary.MergeIn.Applied)})
	}
	lines = append(lines, renderTable(metricColumns("Metric", "Count"), rows))
	return lines
}
