package preflight

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"quill/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Target describes the run being checked.
type Target struct {
	Stage      string
	StorePath  string
	ArticleDir string
}

// Stage names understood by RunAll.
const (
	StageFetch = "fetch"
	StageTag   = "tag"
)

// RunAll executes the checks relevant to target's stage. Checks run
// concurrently; results keep a fixed order.
func RunAll(ctx context.Context, cfg *config.Config, target Target) []Result {
	if cfg == nil {
		return nil
	}
	articleDir := strings.TrimSpace(target.ArticleDir)
	if articleDir == "" {
		articleDir = cfg.Paths.ArticleDir
	}

	checks := []func(context.Context) Result{
		func(context.Context) Result { return CheckStore("Store", target.StorePath) },
		func(context.Context) Result { return CheckDirectoryAccess("State directory", cfg.Paths.StateDir) },
	}
	switch target.Stage {
	case StageFetch:
		checks = append(checks,
			func(context.Context) Result { return CheckCreatableDirectory("Article directory", articleDir) },
			func(ctx context.Context) Result { return CheckDownloader(ctx, cfg.Downloader) },
		)
	case StageTag:
		checks = append(checks,
			func(context.Context) Result { return CheckDirectoryAccess("Article directory", articleDir) },
			func(ctx context.Context) Result { return CheckLLM(ctx, "LLM", cfg.GetLLM()) },
		)
	}

	results := make([]Result, len(checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, check := range checks {
		g.Go(func() error {
			results[i] = check(gctx)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
