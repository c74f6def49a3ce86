package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"quill/internal/config"
)

const userAgent = "quill/0.1"

// RunReport is the subset of a run summary worth announcing.
type RunReport struct {
	Stage       string
	Store       string
	Total       int
	Processed   int
	Succeeded   int
	Failed      int
	Deferred    int
	Duration    time.Duration
	Interrupted bool
}

// Service defines the notification surface used by the CLI.
type Service interface {
	NotifyRunCompleted(ctx context.Context, report RunReport) error
	NotifyRunFailed(ctx context.Context, stage, store string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, report RunReport) error {
	duration := report.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	store := storeName(report.Store)

	var title, message string
	tags := []string{"quill", report.Stage}
	switch {
	case report.Interrupted:
		title = fmt.Sprintf("quill - %s interrupted", report.Stage)
		message = fmt.Sprintf("%s: stopped after %d of %d records in %s; progress was merged",
			store, report.Processed, report.Total, duration)
		tags = append(tags, "interrupted")
	case report.Failed > 0:
		title = fmt.Sprintf("quill - %s complete (with failures)", report.Stage)
		message = fmt.Sprintf("%s: %d succeeded, %d failed in %s", store, report.Succeeded, report.Failed, duration)
		tags = append(tags, "completed", "warning")
	default:
		title = fmt.Sprintf("quill - %s complete", report.Stage)
		message = fmt.Sprintf("%s: %d records processed in %s", store, report.Processed, duration)
		tags = append(tags, "completed")
	}
	if report.Deferred > 0 {
		message += fmt.Sprintf("\n%d records left for the next run", report.Deferred)
	}
	return n.send(ctx, payload{title: title, message: message, tags: tags})
}

func (n *ntfyService) NotifyRunFailed(ctx context.Context, stage, store string, err error) error {
	var builder strings.Builder
	builder.WriteString("Run failed")
	if name := storeName(store); name != "" {
		builder.WriteString(" on ")
		builder.WriteString(name)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    fmt.Sprintf("quill - %s error", stage),
		message:  builder.String(),
		tags:     []string{"quill", stage, "error"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "quill - Test",
		message:  "Notification system test",
		tags:     []string{"quill", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func storeName(path string) string {
	path = strings.TrimSpace(path)
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

type noopService struct{}

func (noopService) NotifyRunCompleted(context.Context, RunReport) error             { return nil }
func (noopService) NotifyRunFailed(context.Context, string, string, error) error { return nil }
func (noopService) TestNotification(context.Context) error                       { return nil }
