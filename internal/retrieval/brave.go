package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const defaultBraveURL = "https://api.search.brave.com/res/v1/web/search"

// Brave implements the Brave Search API.
type Brave struct {
	apiKey string
	apiURL string
	web    *webClient
}

// NewBrave creates a Brave backend.
func NewBrave(apiKey, apiURL string, opts HTTPOptions) (*Brave, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("brave api key is required")
	}
	if strings.TrimSpace(apiURL) == "" {
		apiURL = defaultBraveURL
	}
	return &Brave{apiKey: apiKey, apiURL: apiURL, web: newWebClient("brave", opts)}, nil
}

// Name implements WebSearcher.
func (b *Brave) Name() string { return "brave" }

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Search implements WebSearcher.
func (b *Brave) Search(ctx context.Context, query string, n int) ([]WebResult, error) {
	endpoint, err := url.Parse(b.apiURL)
	if err != nil {
		return nil, fmt.Errorf("parse brave url: %w", err)
	}
	q := endpoint.Query()
	q.Set("q", query)
	if n > 0 {
		q.Set("count", strconv.Itoa(n))
	}
	endpoint.RawQuery = q.Encode()

	data, err := b.web.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("create brave request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Subscription-Token", b.apiKey)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var decoded braveResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decode brave response: %w", err)
	}
	results := make([]WebResult, 0, len(decoded.Web.Results))
	for _, item := range decoded.Web.Results {
		results = append(results, WebResult{
			Content: strings.TrimSpace(item.Description),
			Link:    item.URL,
			Title:   item.Title,
		})
	}
	if n > 0 && len(results) > n {
		results = results[:n]
	}
	return results, nil
}
