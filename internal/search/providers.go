package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nugget/cinebot/internal/httpkit"
)

const (
	braveEndpoint  = "https://api.search.brave.com/res/v1/web/search"
	googleEndpoint = "https://www.googleapis.com/customsearch/v1"

	providerTimeout = 15 * time.Second
)

func newProviderClient() *http.Client {
	return httpkit.NewClient(httpkit.WithTimeout(providerTimeout))
}

// limit truncates results to the requested count.
func limit(results []Result, opts Options) []Result {
	if n := opts.count(); len(results) > n {
		return results[:n]
	}
	return results
}

// SearXNG queries a self-hosted SearXNG instance.
type SearXNG struct {
	baseURL string
	client  *http.Client
}

// NewSearXNG creates a provider for the instance rooted at baseURL.
func NewSearXNG(baseURL string) *SearXNG {
	return &SearXNG{baseURL: strings.TrimRight(baseURL, "/"), client: newProviderClient()}
}

func (s *SearXNG) Name() string { return "searxng" }

// Search runs a query. SearXNG has no result count parameter, so
// results are truncated locally.
func (s *SearXNG) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	params := url.Values{"q": {query}, "format": {"json"}}
	if opts.Language != "" {
		params.Set("language", opts.Language)
	}

	var body struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := httpkit.GetJSON(ctx, s.client, s.baseURL+"/search", params, nil, &body); err != nil {
		return nil, fmt.Errorf("searxng: %w", err)
	}

	results := make([]Result, 0, len(body.Results))
	for _, r := range body.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return limit(results, opts), nil
}

// Ping checks the instance's health endpoint.
func (s *SearXNG) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("searxng: %w", err)
	}
	if err := httpkit.CheckStatus(resp); err != nil {
		return fmt.Errorf("searxng: %w", err)
	}
	httpkit.DrainAndClose(resp.Body, 1024)
	return nil
}

// Brave queries the Brave Search API.
type Brave struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewBrave creates a Brave Search provider.
func NewBrave(apiKey string) *Brave {
	return &Brave{apiKey: apiKey, endpoint: braveEndpoint, client: newProviderClient()}
}

func (b *Brave) Name() string { return "brave" }

func (b *Brave) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	params := url.Values{"q": {query}, "count": {strconv.Itoa(opts.count())}}
	if opts.Language != "" {
		params.Set("search_lang", opts.Language)
	}

	var body struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	header := http.Header{"X-Subscription-Token": {b.apiKey}}
	if err := httpkit.GetJSON(ctx, b.client, b.endpoint, params, header, &body); err != nil {
		return nil, fmt.Errorf("brave: %w", err)
	}

	results := make([]Result, 0, len(body.Web.Results))
	for _, r := range body.Web.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return limit(results, opts), nil
}

// Google queries a Google Programmable Search Engine identified by cx.
type Google struct {
	apiKey   string
	cx       string
	endpoint string
	client   *http.Client
}

// NewGoogle creates a Google Custom Search provider.
func NewGoogle(apiKey, cx string) *Google {
	return &Google{apiKey: apiKey, cx: cx, endpoint: googleEndpoint, client: newProviderClient()}
}

func (g *Google) Name() string { return "google" }

// Search runs a query. The API returns at most 10 results per request.
func (g *Google) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	params := url.Values{
		"key": {g.apiKey},
		"cx":  {g.cx},
		"q":   {query},
		"num": {strconv.Itoa(min(opts.count(), 10))},
	}
	if opts.Language != "" {
		params.Set("lr", "lang_"+opts.Language)
	}

	var body struct {
		Items []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"items"`
	}
	if err := httpkit.GetJSON(ctx, g.client, g.endpoint, params, nil, &body); err != nil {
		return nil, fmt.Errorf("google: %w", err)
	}

	results := make([]Result, 0, len(body.Items))
	for _, it := range body.Items {
		results = append(results, Result{Title: it.Title, URL: it.Link, Snippet: it.Snippet})
	}
	return results, nil
}
