package productmeta

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/docutag/productmeta/models"
	"golang.org/x/time/rate"
)

// ProxyRendererConfig configures a ScraperAPI-style rendering proxy
type ProxyRendererConfig struct {
	BaseURL       string        // e.g. https://api.scraperapi.com/
	APIKey        string        // sent as api_key
	CountryCode   string        // optional geo targeting, sent as country_code
	Timeout       time.Duration // rendering is slow; tens of seconds
	RatePerSecond float64       // request budget; 0 means unlimited
	MaxPageBytes  int64
}

// DefaultProxyRendererConfig returns the proxy defaults
func DefaultProxyRendererConfig() ProxyRendererConfig {
	return ProxyRendererConfig{
		BaseURL:       "https://api.scraperapi.com/",
		Timeout:       60 * time.Second,
		RatePerSecond: 1,
		MaxPageBytes:  5 * 1024 * 1024,
	}
}

// ProxyRenderer fetches pages through a third-party service that executes
// page scripts server-side
type ProxyRenderer struct {
	config  ProxyRendererConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewProxyRenderer builds a rate-limited proxy renderer
func NewProxyRenderer(config ProxyRendererConfig) *ProxyRenderer {
	limit := rate.Inf
	if config.RatePerSecond > 0 {
		limit = rate.Limit(config.RatePerSecond)
	}
	return &ProxyRenderer{
		config:  config,
		client:  newHTTPClient(config.Timeout),
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (r *ProxyRenderer) Kind() models.Fetcher {
	return models.FetcherProxy
}

// Fetch returns the rendered HTML of pageURL
func (r *ProxyRenderer) Fetch(ctx context.Context, pageURL string) (string, error) {
	if r.config.BaseURL == "" || r.config.APIKey == "" {
		return "", ErrRenderUnavailable
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("render rate limit: %w", err)
	}

	endpoint, err := url.Parse(r.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid render proxy URL: %w", err)
	}
	q := endpoint.Query()
	q.Set("api_key", r.config.APIKey)
	q.Set("url", pageURL)
	q.Set("render", "true")
	if r.config.CountryCode != "" {
		q.Set("country_code", r.config.CountryCode)
	}
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch rendered page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: render proxy HTTP %d", ErrNoContent, resp.StatusCode)
	}

	return readHTML(resp.Body, resp.Header.Get("Content-Type"), r.config.MaxPageBytes)
}
