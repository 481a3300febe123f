package retrieval

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

const defaultDuckDuckGoURL = "https://lite.duckduckgo.com/lite/"

// DuckDuckGo scrapes the DuckDuckGo lite HTML endpoint. It needs no API key.
type DuckDuckGo struct {
	apiURL string
	web    *webClient
}

// NewDuckDuckGo creates a DuckDuckGo backend.
func NewDuckDuckGo(apiURL string, opts HTTPOptions) *DuckDuckGo {
	if strings.TrimSpace(apiURL) == "" {
		apiURL = defaultDuckDuckGoURL
	}
	return &DuckDuckGo{apiURL: apiURL, web: newWebClient("duckduckgo", opts)}
}

// Name implements WebSearcher.
func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// Search implements WebSearcher.
func (d *DuckDuckGo) Search(ctx context.Context, query string, n int) ([]WebResult, error) {
	form := url.Values{"q": {query}}.Encode()
	data, err := d.web.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiURL, strings.NewReader(form))
		if err != nil {
			return nil, fmt.Errorf("create duckduckgo request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; gatedagent)")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	results, err := parseDuckDuckGo(data)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(results) > n {
		results = results[:n]
	}
	return results, nil
}

// parseDuckDuckGo pairs each result-link anchor with the result-snippet
// cell that follows it.
func parseDuckDuckGo(page []byte) ([]WebResult, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse duckduckgo page: %w", err)
	}

	var results []WebResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result-link"):
				results = append(results, WebResult{
					Link:  attr(n, "href"),
					Title: strings.TrimSpace(textOf(n)),
				})
				return
			case hasClass(n, "result-snippet"):
				if len(results) > 0 && results[len(results)-1].Content == "" {
					results[len(results)-1].Content = strings.Join(strings.Fields(textOf(n)), " ")
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
