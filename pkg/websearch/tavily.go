// Package websearch implements the workflow's web search capability on top of
// the Tavily search API.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"filings-rag-be/pkg/rag/port"
)

const defaultURL = "https://api.tavily.com/search"

type TavilyClient struct {
	apiKey  string
	baseURL string
	depth   string
	client  *http.Client
	limiter *rate.Limiter
}

var _ port.WebSearcher = (*TavilyClient)(nil)

type Option func(*TavilyClient)

// WithRate limits outgoing requests to perSecond with the given burst.
func WithRate(perSecond float64, burst int) Option {
	return func(c *TavilyClient) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithBaseURL(url string) Option {
	return func(c *TavilyClient) {
		if url != "" {
			c.baseURL = url
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *TavilyClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

// NewTavilyClient defaults to basic search depth and two requests per second.
func NewTavilyClient(apiKey string, opts ...Option) *TavilyClient {
	c := &TavilyClient{
		apiKey:  apiKey,
		baseURL: defaultURL,
		depth:   "basic",
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(2), 2),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchRequest struct {
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type searchResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search returns at most k results. It waits for the limiter, so a cancelled
// ctx returns early without calling the API.
func (c *TavilyClient) Search(ctx context.Context, query string, k int) ([]port.WebResult, error) {
	if k <= 0 {
		k = 3
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("tavily rate limit wait: %w", err)
	}

	data, err := json.Marshal(searchRequest{Query: query, SearchDepth: c.depth, MaxResults: k})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily api error (status %d): %s", resp.StatusCode, string(raw))
	}

	var out searchResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	results := make([]port.WebResult, 0, len(out.Results))
	for _, r := range out.Results {
		if len(results) == k {
			break
		}
		results = append(results, port.WebResult{Title: r.Title, URL: r.URL, Content: r.Content})
	}
	return results, nil
}
