package tagging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"quill/internal/completion"
	"quill/internal/fetch"
	"quill/internal/logging"
	"quill/internal/records"
	"quill/internal/services/llm"
	"quill/internal/stage"
	"quill/internal/textutil"
)

// StageName identifies the tag stage in logs and run history.
const StageName = "tag"

// Output fields written by the tag stage.
const (
	FieldCategory = "category"
	FieldKeywords = "keywords"
)

// NoCategory marks articles that fit none of the configured categories.
// Such records store an empty keyword array.
const NoCategory = "none"

// FailedSentinel marks a failed tagging attempt in both output fields.
const FailedSentinel = "Failed"

const defaultKeywordCount = 3

// Chat sends a JSON-mode prompt pair to a language model. HealthCheck backs
// the preflight LLM check.
type Chat interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	HealthCheck(ctx context.Context) error
}

// Options configures the tag processor.
type Options struct {
	ArticleDir   string
	KeyField     string
	Categories   []string
	KeywordCount int
}

// Processor classifies articles and extracts keywords.
type Processor struct {
	chat       Chat
	opts       Options
	categories map[string]string
	logger     *slog.Logger
}

// New constructs the tag processor. Categories are matched case-insensitively
// and stored in their configured spelling.
func New(chat Chat, opts Options) (*Processor, error) {
	if chat == nil {
		return nil, errors.New("tagging: chat backend required")
	}
	if opts.KeywordCount <= 0 {
		opts.KeywordCount = defaultKeywordCount
	}
	categories := make(map[string]string, len(opts.Categories))
	names := make([]string, 0, len(opts.Categories))
	for _, c := range opts.Categories {
		c = strings.TrimSpace(c)
		key := strings.ToLower(c)
		if c == "" || key == NoCategory {
			continue
		}
		if _, dup := categories[key]; dup {
			continue
		}
		categories[key] = c
		names = append(names, c)
	}
	if len(names) == 0 {
		return nil, errors.New("tagging: at least one category required")
	}
	opts.Categories = names
	return &Processor{
		chat:       chat,
		opts:       opts,
		categories: categories,
		logger:     logging.NewNop(),
	}, nil
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

// Completion returns the tag stage's required fields and sentinels.
func (p *Processor) Completion() completion.Predicate {
	return Predicate()
}

// Predicate is the tag stage completion rule, shared with status reporting.
func Predicate() completion.Predicate {
	return completion.Predicate{
		Required: []string{FieldCategory, FieldKeywords},
		Sentinels: map[string]string{
			FieldCategory: FailedSentinel,
			FieldKeywords: FailedSentinel,
		},
	}
}

// Process classifies the record's article and extracts keywords. A category
// left by an earlier run is reused so only the keywords are retried.
func (p *Processor) Process(ctx context.Context, rec records.Record) (map[string]string, error) {
	content, err := p.loadContent(rec)
	if err != nil {
		return nil, stage.Failure(StageName, "load", "read article", err)
	}

	category, reused := p.knownCategory(rec.Get(FieldCategory))
	if !reused {
		category, err = p.classify(ctx, content)
		if err != nil {
			return nil, stage.Failure(StageName, "classify", "classify article", err)
		}
	}

	keywords := "[]"
	if category != NoCategory {
		list, err := p.extractKeywords(ctx, content)
		if err != nil {
			return nil, stage.Failure(StageName, "keywords", "extract keywords", err)
		}
		keywords, err = encodeKeywords(list)
		if err != nil {
			return nil, stage.Failure(StageName, "keywords", "encode keywords", err)
		}
	}

	p.logger.Info("article tagged",
		logging.Event("article_tagged"),
		logging.String(FieldCategory, category),
		logging.String(FieldKeywords, keywords),
		logging.Bool("category_reused", reused),
	)
	return map[string]string{
		FieldCategory: category,
		FieldKeywords: keywords,
	}, nil
}

// loadContent prefers the texified file written by the fetch stage and falls
// back to texifying the raw download.
func (p *Processor) loadContent(rec records.Record) (string, error) {
	articleURL := rec.Get(p.opts.KeyField)
	id := textutil.ArticleID(articleURL, rec.Get(fetch.FieldArticleName))
	texifiedPath := filepath.Join(p.opts.ArticleDir, id+fetch.TexifiedSuffix)
	data, err := os.ReadFile(texifiedPath)
	switch {
	case err == nil:
		return requireText(string(data), texifiedPath)
	case !errors.Is(err, fs.ErrNotExist):
		return "", err
	}

	raw := strings.TrimSpace(rec.Get(fetch.FieldRawFilename))
	if raw == "" || raw == fetch.Predicate().Sentinels[fetch.FieldRawFilename] {
		return "", fmt.Errorf("article %s has not been fetched", articleURL)
	}
	rawPath := filepath.Join(p.opts.ArticleDir, filepath.Base(raw))
	data, err = os.ReadFile(rawPath)
	if err != nil {
		return "", err
	}
	return requireText(textutil.Texify(string(data)), rawPath)
}

func requireText(content, path string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%s has no text", path)
	}
	return content, nil
}

func (p *Processor) knownCategory(value string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(value))
	if key == NoCategory {
		return NoCategory, true
	}
	if c, ok := p.categories[key]; ok {
		return c, true
	}
	return "", false
}

func (p *Processor) classify(ctx context.Context, content string) (string, error) {
	reply, err := p.chat.CompleteJSON(ctx, classifyPrompt(p.opts.Categories), content)
	if err != nil {
		return "", err
	}
	var parsed struct {
		Category string `json:"category"`
	}
	if err := llm.DecodeLLMJSON(reply, &parsed); err != nil {
		return "", fmt.Errorf("parse classification: %w", err)
	}
	category, ok := p.knownCategory(parsed.Category)
	if !ok {
		return "", fmt.Errorf("model chose unknown category %q", parsed.Category)
	}
	return category, nil
}

func (p *Processor) extractKeywords(ctx context.Context, content string) ([]string, error) {
	reply, err := p.chat.CompleteJSON(ctx, keywordPrompt(p.opts.KeywordCount), content)
	if err != nil {
		return nil, err
	}
	list, err := parseKeywords(reply)
	if err != nil {
		return nil, err
	}
	list = cleanKeywords(list, p.opts.KeywordCount)
	if len(list) == 0 {
		return nil, errors.New("model returned no keywords")
	}
	return list, nil
}

// parseKeywords accepts {"keywords": [...]} or a bare array.
func parseKeywords(reply string) ([]string, error) {
	var wrapped struct {
		Keywords []string `json:"keywords"`
	}
	if err := llm.DecodeLLMJSON(reply, &wrapped); err == nil && wrapped.Keywords != nil {
		return wrapped.Keywords, nil
	}
	var bare []string
	if err := llm.DecodeLLMJSON(reply, &bare); err != nil {
		return nil, fmt.Errorf("parse keywords: %w", err)
	}
	return bare, nil
}

func cleanKeywords(list []string, limit int) []string {
	out := make([]string, 0, len(list))
	for _, k := range list {
		k = strings.TrimSpace(k)
		if k == "" || slices.Contains(out, k) {
			continue
		}
		out = append(out, k)
		if len(out) == limit {
			break
		}
	}
	return out
}

// encodeKeywords renders compact JSON without escaping non-ASCII or HTML.
func encodeKeywords(list []string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(list); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
