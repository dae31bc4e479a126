// Package fetch downloads web pages for look and reduces them to the
// readable text that gets chunked and embedded.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spinach-rag/spinach/internal/buildinfo"
	"github.com/spinach-rag/spinach/internal/httpkit"
)

const (
	// DefaultTimeout bounds a whole page download.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBytes caps the response body (5 MB).
	DefaultMaxBytes int64 = 5 << 20
)

// UserAgent is sent on page fetches. Some sites refuse clients that do
// not look like a browser.
func UserAgent() string {
	return "Mozilla/5.0 (compatible; " + buildinfo.UserAgent() + ")"
}

// ErrBinaryContent is returned for responses that are not text.
var ErrBinaryContent = errors.New("response is not text")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.Code)
}

// Result holds the fetched and extracted content from a URL.
type Result struct {
	URL         string
	Title       string
	Content     string
	ContentType string
	Truncated   bool
}

// Fetcher downloads and extracts readable content from web pages.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	logger   *slog.Logger
}

// New creates a Fetcher. maxBytes <= 0 uses DefaultMaxBytes.
func New(maxBytes int64, logger *slog.Logger) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client: httpkit.NewClient(
			httpkit.WithTimeout(DefaultTimeout),
			httpkit.WithUserAgent(UserAgent()),
		),
		maxBytes: maxBytes,
		logger:   logger.With("component", "fetch"),
	}
}

// MaxBytes is the response body cap.
func (f *Fetcher) MaxBytes() int64 { return f.maxBytes }

// Fetch downloads rawURL and returns its readable text. HTML is reduced
// to visible text; other text types pass through unchanged.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("fetch: url is required")
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: invalid url: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpkit.DrainAndClose(resp.Body, 4096)
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}

	// Read one byte past the cap to learn whether the body was cut.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}
	truncated := int64(len(body)) > f.maxBytes
	if truncated {
		body = body[:f.maxBytes]
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)

	result := &Result{
		URL:         rawURL,
		ContentType: contentType,
		Truncated:   truncated,
	}

	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		result.Title, result.Content = extractHTML(string(body))
	case strings.HasPrefix(mediaType, "text/"), utf8.Valid(body):
		result.Content = strings.ToValidUTF8(string(body), "")
	default:
		return nil, fmt.Errorf("fetch %s (%s): %w", rawURL, contentType, ErrBinaryContent)
	}

	f.logger.Debug("page fetched",
		"url", rawURL,
		"content_type", mediaType,
		"bytes", len(body),
		"chars", len(result.Content),
		"truncated", truncated,
	)
	return result, nil
}
