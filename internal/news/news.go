// Package news retrieves headlines from NewsAPI (https://newsapi.org/)
// and formats them into a digest the chat model can summarize.
//
// Two endpoints are used: top-headlines for a set of sources, and
// everything for a keyword search restricted to sources and sorted by
// relevancy.
package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spinach-rag/spinach/internal/httpkit"
)

// ErrNoAPIKey is returned before any request when no key is configured.
var ErrNoAPIKey = errors.New("news API key not configured")

// DefaultBaseURL is the NewsAPI v2 root.
const DefaultBaseURL = "https://newsapi.org/v2"

// DefaultCount is the number of articles returned when Query.Count is 0.
const DefaultCount = 10

// Article is one news article.
type Article struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// Query selects what to fetch. An empty Search asks for top headlines;
// a non-empty one searches all articles. Empty Sources means the
// client's default sources.
type Query struct {
	Sources []string
	Search  string
	Count   int
}

// Config configures a [Client].
type Config struct {
	APIKey  string
	BaseURL string
	// Sources are used when a query names none.
	Sources []string
	// Count is used when a query asks for 0 articles.
	Count  int
	Logger *slog.Logger
}

// Client talks to NewsAPI.
type Client struct {
	apiKey     string
	baseURL    string
	sources    []string
	count      int
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a NewsAPI client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Count <= 0 {
		cfg.Count = DefaultCount
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		sources: cfg.Sources,
		count:   cfg.Count,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(20*time.Second),
			httpkit.WithLogger(cfg.Logger),
		),
		logger: cfg.Logger,
	}
}

type wireResponse struct {
	Status       string `json:"status"`
	Code         string `json:"code"`
	Message      string `json:"message"`
	TotalResults int    `json:"totalResults"`
	Articles     []struct {
		Source struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"source"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		Content     string    `json:"content"`
		URL         string    `json:"url"`
		PublishedAt time.Time `json:"publishedAt"`
	} `json:"articles"`
}

// Fetch runs q and returns at most q.Count articles.
func (c *Client) Fetch(ctx context.Context, q Query) ([]Article, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	sources := q.Sources
	if len(sources) == 0 {
		sources = c.sources
	}
	count := q.Count
	if count <= 0 {
		count = c.count
	}

	params := url.Values{}
	if len(sources) > 0 {
		params.Set("sources", strings.Join(sources, ","))
	}
	endpoint := "/top-headlines"
	if q.Search != "" {
		endpoint = "/everything"
		params.Set("q", q.Search)
		params.Set("sortBy", "relevancy")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("news: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news: request failed: %w", err)
	}
	defer resp.Body.Close()

	var wr wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, fmt.Errorf("news: HTTP %d: decode response: %w", resp.StatusCode, err)
	}
	if wr.Status == "error" {
		return nil, fmt.Errorf("news: %s: %s", wr.Code, wr.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news: HTTP %d", resp.StatusCode)
	}

	c.logger.Debug("news fetched",
		"endpoint", endpoint,
		"sources", params.Get("sources"),
		"total", wr.TotalResults,
		"returned", len(wr.Articles),
		"elapsed", time.Since(start),
	)

	articles := make([]Article, 0, min(count, len(wr.Articles)))
	for _, a := range wr.Articles {
		if len(articles) == count {
			break
		}
		source := a.Source.Name
		if source == "" {
			source = a.Source.ID
		}
		articles = append(articles, Article{
			Title:       a.Title,
			Description: a.Description,
			Content:     a.Content,
			URL:         a.URL,
			Source:      source,
			PublishedAt: a.PublishedAt,
		})
	}
	return articles, nil
}
