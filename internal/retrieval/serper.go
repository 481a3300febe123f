package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const defaultSerperURL = "https://google.serper.dev/search"

// Serper searches Google through the serper.dev API.
type Serper struct {
	apiKey string
	apiURL string
	web    *webClient
}

// NewSerper creates a Serper backend.
func NewSerper(apiKey, apiURL string, opts HTTPOptions) (*Serper, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("serper api key is required")
	}
	if strings.TrimSpace(apiURL) == "" {
		apiURL = defaultSerperURL
	}
	return &Serper{apiKey: apiKey, apiURL: apiURL, web: newWebClient("serper", opts)}, nil
}

// Name implements WebSearcher.
func (s *Serper) Name() string { return "serper" }

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

// Search implements WebSearcher.
func (s *Serper) Search(ctx context.Context, query string, n int) ([]WebResult, error) {
	payload, err := json.Marshal(map[string]interface{}{"q": query, "num": n})
	if err != nil {
		return nil, err
	}
	data, err := s.web.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create serper request: %w", err)
		}
		req.Header.Set("X-API-KEY", s.apiKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var decoded serperResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decode serper response: %w", err)
	}
	results := make([]WebResult, 0, len(decoded.Organic))
	for _, item := range decoded.Organic {
		results = append(results, WebResult{
			Content: item.Snippet,
			Link:    item.Link,
			Title:   item.Title,
		})
	}
	if n > 0 && len(results) > n {
		results = results[:n]
	}
	return results, nil
}
