package downloader

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quill/internal/services"
	"quill/internal/textutil"
)

const (
	defaultFetchTimeout = 60 * time.Second
	defaultCheckTimeout = 10 * time.Second
	defaultFileName     = "article_raw.md"
)

// HTTPDoer describes the HTTP client used by the downloader.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config captures the download service settings.
type Config struct {
	URL                 string
	TimeoutSeconds      int
	CheckTimeoutSeconds int
}

// Article is a downloaded article ready to be written to disk.
type Article struct {
	URL      string
	FileName string
	Title    string
	Content  string
}

// Client talks to the download service.
type Client struct {
	serviceURL   string
	client       HTTPDoer
	fetchTimeout time.Duration
	checkTimeout time.Duration
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// NewClient constructs a downloader for the configured service.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		serviceURL:   strings.TrimSpace(cfg.URL),
		client:       http.DefaultClient,
		fetchTimeout: secondsOr(cfg.TimeoutSeconds, defaultFetchTimeout),
		checkTimeout: secondsOr(cfg.CheckTimeoutSeconds, defaultCheckTimeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ServiceURL reports the download service endpoint.
func (c *Client) ServiceURL() string {
	return c.serviceURL
}

// CheckURL confirms articleURL answers a HEAD request with a 2xx status.
func (c *Client) CheckURL(ctx context.Context, articleURL string) error {
	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, articleURL, nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, "downloader", "check url", "invalid article url", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "downloader", "check url", "request failed", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return services.Wrap(services.ErrExternalTool, "downloader", "check url",
			fmt.Sprintf("article unreachable (status %d)", resp.StatusCode), nil)
	}
	return nil
}

// Fetch downloads articleURL through the service.
func (c *Client) Fetch(ctx context.Context, articleURL string) (Article, error) {
	articleURL = strings.TrimSpace(articleURL)
	if articleURL == "" {
		return Article{}, services.Wrap(services.ErrValidation, "downloader", "fetch", "article url required", nil)
	}
	if err := c.CheckURL(ctx, articleURL); err != nil {
		return Article{}, err
	}

	endpoint, err := c.requestURL(articleURL)
	if err != nil {
		return Article{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Article{}, services.Wrap(services.ErrConfiguration, "downloader", "fetch", "build request", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Article{}, services.Wrap(services.ErrExternalTool, "downloader", "fetch", "request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Article{}, services.Wrap(services.ErrExternalTool, "downloader", "fetch", "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return Article{}, services.Wrap(services.ErrExternalTool, "downloader", "fetch",
			fmt.Sprintf("service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	content := string(body)
	if strings.TrimSpace(content) == "" {
		return Article{}, services.Wrap(services.ErrExternalTool, "downloader", "fetch", "empty article body", nil)
	}

	fileName := AttachmentFileName(resp.Header.Get("Content-Disposition"))
	title := textutil.FormatTitle(fileName)
	if title == "" {
		title = textutil.DefaultTitle
	}
	return Article{
		URL:      articleURL,
		FileName: fileName,
		Title:    title,
		Content:  textutil.ConvertHTMLTables(content),
	}, nil
}

// HealthCheck confirms the download service answers HTTP at all. Any status
// below 500 counts, since the service rejects requests without a url.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.serviceURL == "" {
		return services.Wrap(services.ErrConfiguration, "downloader", "health", "service url not configured", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serviceURL, nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "downloader", "health", "invalid service url", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "downloader", "health", "service unreachable", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusInternalServerError {
		return services.Wrap(services.ErrExternalTool, "downloader", "health",
			fmt.Sprintf("service returned %d", resp.StatusCode), nil)
	}
	return nil
}

func (c *Client) requestURL(articleURL string) (string, error) {
	if c.serviceURL == "" {
		return "", services.Wrap(services.ErrConfiguration, "downloader", "fetch", "service url not configured", nil)
	}
	base, err := url.Parse(c.serviceURL)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "downloader", "fetch", "invalid service url", err)
	}
	query := base.Query()
	query.Set("url", articleURL)
	query.Set("image", "url")
	base.RawQuery = query.Encode()
	return base.String(), nil
}

// AttachmentFileName extracts the filename parameter of a Content-Disposition
// header. Headers that mime rejects (raw UTF-8 in unquoted values is common)
// are scanned by hand.
func AttachmentFileName(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return defaultFileName
	}
	if _, params, err := mime.ParseMediaType(header); err == nil {
		if name := strings.TrimSpace(params["filename"]); name != "" {
			return name
		}
		return defaultFileName
	}
	for _, part := range strings.Split(header, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "filename") {
			continue
		}
		if name := strings.Trim(strings.TrimSpace(value), `"`); name != "" {
			return name
		}
	}
	return defaultFileName
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
