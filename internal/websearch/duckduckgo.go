// Package websearch gives the research agent live web results. It scrapes
// the DuckDuckGo HTML endpoint, which needs no API key.
package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/counselai/counsel/internal/fault"
)

const (
	defaultEndpoint   = "https://html.duckduckgo.com/html/"
	defaultTimeout    = 15 * time.Second
	defaultMaxResults = 5
	userAgent         = "counsel/1.0 (+https://github.com/counselai/counsel)"
)

// Result is one search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Client queries DuckDuckGo's HTML search page.
type Client struct {
	endpoint   string
	maxResults int
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the search endpoint. Used in tests.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithMaxResults caps the number of results returned per query.
func WithMaxResults(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		endpoint:   defaultEndpoint,
		maxResults: defaultMaxResults,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search returns up to maxResults hits for the query. A query that matches
// nothing returns an empty slice, not an error.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	u := c.endpoint + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.KindConnectivity, "websearch.search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fault.New(fault.KindConnectivity, "websearch.search",
			"search returned status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fault.Wrap(fault.KindConnectivity, "websearch.search", err)
	}

	results := parseResults(doc)
	if len(results) > c.maxResults {
		results = results[:c.maxResults]
	}
	return results, nil
}

// parseResults walks the page looking for result__a links and their
// result__snippet siblings.
func parseResults(doc *html.Node) []Result {
	var results []Result
	var current *Result

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result__a"):
				if current != nil {
					results = append(results, *current)
				}
				current = &Result{
					Title: strings.TrimSpace(textContent(n)),
					URL:   resolveHref(attr(n, "href")),
				}
			case hasClass(n, "result__snippet"):
				if current != nil && current.Snippet == "" {
					current.Snippet = strings.TrimSpace(textContent(n))
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	if current != nil {
		results = append(results, *current)
	}
	return results
}

// resolveHref unwraps DuckDuckGo's redirect links (uddg parameter) and
// normalizes protocol-relative URLs.
func resolveHref(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}
