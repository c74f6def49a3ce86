package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"quill/internal/completion"
	"quill/internal/fileutil"
	"quill/internal/logging"
	"quill/internal/records"
	"quill/internal/services/downloader"
	"quill/internal/stage"
	"quill/internal/textutil"
)

// StageName identifies the fetch stage in logs and run history.
const StageName = "fetch"

// Output fields written by the fetch stage.
const (
	FieldRawFilename  = "raw_filename"
	FieldDownloadTime = "download_time"
	FieldArticleName  = "article_name"
)

// DownloadTimeLayout formats download_time in local time.
const DownloadTimeLayout = "2006-01-02 15:04:05"

// File suffixes appended to the article id.
const (
	RawSuffix       = "_raw.md"
	TexifiedSuffix  = "_texified.md"
	PurifiedSuffix  = "_purified.txt"
	articleFileMode = 0o644
)

// Fetcher downloads an article.
type Fetcher interface {
	Fetch(ctx context.Context, articleURL string) (downloader.Article, error)
}

// Options configures the fetch processor.
type Options struct {
	ArticleDir    string
	KeyField      string
	SaveProcessed bool
}

// Processor downloads each pending article.
type Processor struct {
	fetcher Fetcher
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
}

// New constructs the fetch processor.
func New(fetcher Fetcher, opts Options) *Processor {
	return &Processor{
		fetcher: fetcher,
		opts:    opts,
		logger:  logging.NewNop(),
		now:     time.Now,
	}
}

// WithClock overrides the clock used for download_time.
func (p *Processor) WithClock(now func() time.Time) *Processor {
	if now != nil {
		p.now = now
	}
	return p
}

// SetLogger implements stage.LoggerAware.
func (p *Processor) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	p.logger = logging.NewComponentLogger(logger, StageName)
}

// Name implements stage.Processor.
func (p *Processor) Name() string { return StageName }

// Completion returns the fetch stage's required fields and sentinels.
func (p *Processor) Completion() completion.Predicate {
	return Predicate()
}

// Predicate is the fetch stage completion rule, shared with status reporting.
func Predicate() completion.Predicate {
	return completion.Predicate{
		Required: []string{FieldRawFilename, FieldDownloadTime, FieldArticleName},
		Sentinels: map[string]string{
			FieldRawFilename:  "Failed",
			FieldDownloadTime: "N/A",
			FieldArticleName:  "N/A",
		},
	}
}

// Process downloads the record's article and writes it to the article directory.
func (p *Processor) Process(ctx context.Context, rec records.Record) (map[string]string, error) {
	articleURL := strings.TrimSpace(rec.Get(p.opts.KeyField))
	if articleURL == "" {
		return nil, stage.Failure(StageName, "process", "record has no article url", nil)
	}

	article, err := p.fetcher.Fetch(ctx, articleURL)
	if err != nil {
		return nil, stage.Failure(StageName, "download", "fetch article", err)
	}

	id := textutil.ArticleID(articleURL, article.Title)
	files, err := p.save(id, article.Content)
	if err != nil {
		return nil, stage.Failure(StageName, "save", "write article files", err)
	}

	p.logger.Info("article saved",
		logging.Event("article_saved"),
		logging.String("title", article.Title),
		logging.Int("bytes", len(article.Content)),
		logging.Any("files", files),
	)
	return map[string]string{
		FieldRawFilename:  id + RawSuffix,
		FieldDownloadTime: p.now().Format(DownloadTimeLayout),
		FieldArticleName:  article.Title,
	}, nil
}

type articleFile struct {
	name string
	data string
}

func (p *Processor) save(id, content string) ([]string, error) {
	dir := p.opts.ArticleDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create article directory: %w", err)
	}
	files := []articleFile{{id + RawSuffix, content}}
	if p.opts.SaveProcessed {
		texified := textutil.Texify(content)
		files = append(files,
			articleFile{id + TexifiedSuffix, texified},
			articleFile{id + PurifiedSuffix, textutil.Purify(texified)},
		)
	}
	written := make([]string, 0, len(files))
	for _, f := range files {
		if err := fileutil.WriteFileAtomic(filepath.Join(dir, f.name), []byte(f.data), articleFileMode); err != nil {
			return written, err
		}
		written = append(written, f.name)
	}
	return written, nil
}
