package tagging_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"quill/internal/completion"
	"quill/internal/records"
	"quill/internal/services"
	"quill/internal/tagging"
)

type scriptedChat struct {
	category string
	keywords string
	err      error
	prompts  []string
	inputs   []string
}

func (c *scriptedChat) HealthCheck(context.Context) error { return c.err }

func (c *scriptedChat) CompleteJSON(_ context.Context, system, user string) (string, error) {
	c.prompts = append(c.prompts, system)
	c.inputs = append(c.inputs, user)
	if c.err != nil {
		return "", c.err
	}
	if strings.Contains(system, "classify") {
		return c.category, nil
	}
	return c.keywords, nil
}

func newProcessor(t *testing.T, chat tagging.Chat) (*tagging.Processor, string) {
	t.Helper()
	dir := t.TempDir()
	p, err := tagging.New(chat, tagging.Options{
		ArticleDir:   dir,
		KeyField:     "article_url",
		Categories:   []string{"Science", "business", "none", " "},
		KeywordCount: 2,
	})
	if err != nil {
		t.Fatalf("tagging.New: %v", err)
	}
	return p, dir
}

func writeArticle(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write article: %v", err)
	}
}

func TestProcessClassifiesAndExtractsKeywords(t *testing.T) {
	chat := &scriptedChat{
		category: `{"category": "science"}`,
		keywords: "```json\n{\"keywords\": [\"量子计算\", \" 芯片 \", \"量子计算\", \"R&D\", \"extra\"]}\n```",
	}
	p, dir := newProcessor(t, chat)
	writeArticle(t, dir, "abc_texified.md", "quantum article")

	out, err := p.Process(context.Background(), records.Record{"article_url": "https://mp.weixin.qq.com/s/abc"})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if out["category"] != "Science" {
		t.Fatalf("expected configured spelling, got %q", out["category"])
	}
	if out["keywords"] != `["量子计算","芯片"]` {
		t.Fatalf("unexpected keywords %q", out["keywords"])
	}
	if len(chat.inputs) != 2 || chat.inputs[0] != "quantum article" {
		t.Fatalf("unexpected prompt inputs %v", chat.inputs)
	}
	if !strings.Contains(chat.prompts[0], `"Science", "business"`) || !strings.Contains(chat.prompts[1], "2 keywords") {
		t.Fatalf("unexpected prompts %q", chat.prompts)
	}
}

func TestProcessNoneCategorySkipsKeywords(t *testing.T) {
	chat := &scriptedChat{category: `{"category":"NONE"}`}
	p, dir := newProcessor(t, chat)
	writeArticle(t, dir, "abc_texified.md", "text")

	out, err := p.Process(context.Background(), records.Record{"article_url": "https://x.io/s/abc"})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if out["category"] != "none" || out["keywords"] != "[]" {
		t.Fatalf("unexpected outputs %v", out)
	}
	if len(chat.prompts) != 1 {
		t.Fatalf("expected classification only, got %d calls", len(chat.prompts))
	}
	if tagging.Predicate().Classify(records.Record(out)) != completion.Done {
		t.Fatal("none with [] must count as done")
	}
}

func TestProcessReusesExistingCategory(t *testing.T) {
	chat := &scriptedChat{keywords: `["a","b"]`}
	p, dir := newProcessor(t, chat)
	writeArticle(t, dir, "abc_texified.md", "text")

	out, err := p.Process(context.Background(), records.Record{
		"article_url": "https://x.io/s/abc",
		"category":    "business",
		"keywords":    "Failed",
	})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if out["category"] != "business" || out["keywords"] != `["a","b"]` {
		t.Fatalf("unexpected outputs %v", out)
	}
	if len(chat.prompts) != 1 || strings.Contains(chat.prompts[0], "classify") {
		t.Fatalf("expected keyword call only, got %q", chat.prompts)
	}
}

func TestProcessFallsBackToRawFile(t *testing.T) {
	chat := &scriptedChat{category: `{"category":"none"}`}
	p, dir := newProcessor(t, chat)
	writeArticle(t, dir, "Some_Title_raw.md", "# Head\n![i](x)\nbody [l](y)\n点击“阅读原文”tail")

	_, err := p.Process(context.Background(), records.Record{
		"article_url":  "https://example.com/post",
		"article_name": "Some_Title",
		"raw_filename": "Some_Title_raw.md",
	})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if chat.inputs[0] != "# Head\n\nbody" {
		t.Fatalf("expected texified raw content, got %q", chat.inputs[0])
	}
}

func TestProcessFailures(t *testing.T) {
	cases := map[string]struct {
		chat  *scriptedChat
		rec   records.Record
		files map[string]string
	}{
		"not fetched": {
			chat: &scriptedChat{},
			rec:  records.Record{"article_url": "https://x.io/s/abc", "raw_filename": "Failed"},
		},
		"empty article": {
			chat:  &scriptedChat{},
			rec:   records.Record{"article_url": "https://x.io/s/abc"},
			files: map[string]string{"abc_texified.md": "  \n"},
		},
		"unknown category": {
			chat:  &scriptedChat{category: `{"category":"sports"}`},
			rec:   records.Record{"article_url": "https://x.io/s/abc"},
			files: map[string]string{"abc_texified.md": "text"},
		},
		"unparseable keywords": {
			chat:  &scriptedChat{category: `{"category":"science"}`, keywords: "keywords are a, b"},
			rec:   records.Record{"article_url": "https://x.io/s/abc"},
			files: map[string]string{"abc_texified.md": "text"},
		},
		"no keywords": {
			chat:  &scriptedChat{category: `{"category":"science"}`, keywords: `{"keywords":[" "]}`},
			rec:   records.Record{"article_url": "https://x.io/s/abc"},
			files: map[string]string{"abc_texified.md": "text"},
		},
		"backend error": {
			chat:  &scriptedChat{err: services.Wrap(services.ErrExternalTool, "llm", "complete", "down", nil)},
			rec:   records.Record{"article_url": "https://x.io/s/abc"},
			files: map[string]string{"abc_texified.md": "text"},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p, dir := newProcessor(t, tc.chat)
			for file, content := range tc.files {
				writeArticle(t, dir, file, content)
			}
			_, err := p.Process(context.Background(), tc.rec)
			if !errors.Is(err, services.ErrRowProcessing) {
				t.Fatalf("expected row processing failure, got %v", err)
			}
		})
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := tagging.New(nil, tagging.Options{Categories: []string{"a"}}); err == nil {
		t.Fatal("expected error without chat backend")
	}
	if _, err := tagging.New(&scriptedChat{}, tagging.Options{Categories: []string{"none", ""}}); err == nil {
		t.Fatal("expected error without real categories")
	}
}

func TestPredicate(t *testing.T) {
	pred := tagging.Predicate()
	if err := pred.Validate(); err != nil {
		t.Fatalf("predicate invalid: %v", err)
	}
	if pred.Classify(records.Record{"category": "science", "keywords": "Failed"}) != completion.Retry {
		t.Fatal("failed keywords must be retried")
	}
	if pred.Classify(records.Record{"category": "science"}) != completion.Pending {
		t.Fatal("missing keywords must be pending")
	}
}
