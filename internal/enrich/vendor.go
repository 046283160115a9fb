// Package enrich holds the best-effort enrichment adapters: vendor web
// search and expense categorization. Their failures never abort a workflow
// run; the orchestrator reports them and moves on.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tomwr/receiptflow/internal/receipt"
)

// ErrMissingCredential is returned when no search API key is configured.
// This is a normal outcome, not an exceptional one; the orchestrator reports
// it and continues the run.
var ErrMissingCredential = errors.New("search API key not configured")

// defaultResultCount is how many search results we ask for; the provider is
// never asked for more than maxResultCount.
const (
	defaultResultCount = 5
	maxResultCount     = 10
)

// Searcher looks up public information about a merchant.
type Searcher interface {
	// SearchVendor issues one web search for the merchant and returns the
	// raw result list. The caller adopts the first result.
	SearchVendor(ctx context.Context, merchantName string) (*receipt.VendorInfo, error)
}

// SerperClient implements Searcher against the serper.dev search API.
type SerperClient struct {
	apiKey      string
	baseURL     string
	resultCount int
	client      *http.Client
}

// NewSerperClient creates a vendor search client. An empty apiKey is allowed;
// searches will fail with ErrMissingCredential until one is configured.
func NewSerperClient(apiKey string) *SerperClient {
	return &SerperClient{
		apiKey:      apiKey,
		baseURL:     "https://google.serper.dev",
		resultCount: defaultResultCount,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

// NewSerperClientWithBaseURL creates a client against a custom endpoint for
// testing.
func NewSerperClientWithBaseURL(apiKey, baseURL string) *SerperClient {
	c := NewSerperClient(apiKey)
	c.baseURL = baseURL
	return c
}

type serperRequest struct {
	Query string `json:"q"`
	Num   int    `json:"num"`
}

type serperResponse struct {
	Organic []struct {
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
		Position int    `json:"position"`
	} `json:"organic"`
}

// SearchVendor issues the single search query for a merchant.
func (s *SerperClient) SearchVendor(ctx context.Context, merchantName string) (*receipt.VendorInfo, error) {
	if s.apiKey == "" {
		return nil, ErrMissingCredential
	}

	count := s.resultCount
	if count > maxResultCount {
		count = maxResultCount
	}
	reqBody := serperRequest{
		Query: fmt.Sprintf("%s official site address reviews", merchantName),
		Num:   count,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling search request: %w", err)
	}

	url := fmt.Sprintf("%s/search", s.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("X-API-KEY", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling search API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("search API error (status %d): %s", resp.StatusCode, string(body))
	}

	var searchResp serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	info := &receipt.VendorInfo{Results: make([]receipt.SearchResult, 0, len(searchResp.Organic))}
	for _, r := range searchResp.Organic {
		score := 0.0
		if r.Position > 0 {
			score = 1.0 / float64(r.Position)
		}
		info.Results = append(info.Results, receipt.SearchResult{
			Title:   r.Title,
			URL:     r.Link,
			Snippet: r.Snippet,
			Score:   score,
		})
	}
	return info, nil
}

var _ Searcher = (*SerperClient)(nil)
