package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spinach-rag/spinach/internal/httpkit"
)

const serperURL = "https://google.serper.dev/search"

// Serper implements the Provider interface for the Serper Google search
// API.
type Serper struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// NewSerper creates a Serper provider.
func NewSerper(apiKey string) *Serper {
	return &Serper{
		apiKey:   apiKey,
		endpoint: serperURL,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(15 * time.Second),
		),
	}
}

func (s *Serper) Name() string { return "serper" }

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
	HL  string `json:"hl,omitempty"`
}

type serperResponse struct {
	Organic []struct {
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
		Position int    `json:"position"`
	} `json:"organic"`
}

func (s *Serper) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("serper: %w", ErrNoAPIKey)
	}

	body, err := json.Marshal(serperRequest{Q: query, Num: opts.count(), HL: opts.Language})
	if err != nil {
		return nil, fmt.Errorf("serper: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("serper: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serper: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serper: HTTP %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}

	var sr serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("serper: decode response: %w", err)
	}

	results := make([]Result, 0, len(sr.Organic))
	for _, r := range sr.Organic {
		results = append(results, Result{
			Title:   r.Title,
			URL:     r.Link,
			Snippet: r.Snippet,
		})
	}
	return results, nil
}
