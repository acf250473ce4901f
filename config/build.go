package config

import (
	"log/slog"
	"net/http"

	"github.com/docutag/productmeta"
	"github.com/docutag/productmeta/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Pipeline maps the loaded settings onto the extractor configuration
func (c *Config) Pipeline(logger *slog.Logger, m *metrics.PipelineMetrics) productmeta.Config {
	return productmeta.Config{
		HTTPTimeout:       c.Fetch.Timeout,
		UserAgent:         c.Fetch.UserAgent,
		MaxPageBytes:      c.Fetch.MaxPageBytes,
		ImageTimeout:      c.Image.Timeout,
		MaxImageSizeBytes: c.Image.MaxBytes,
		MaxImageDimension: c.Image.MaxDimension,
		MaxImagePixels:    c.Image.MaxPixels,
		ImageQuality:      c.Image.Quality,
		RenderHosts:       c.Render.Hosts,
		QuickAddBudget:    c.QuickAdd.Budget,
		Logger:            logger,
		Metrics:           m,
	}
}

// Renderer builds the configured rendering backend, or nil for "none"
func (c *Config) Renderer() productmeta.Renderer {
	switch c.Render.Provider {
	case "proxy":
		return productmeta.NewProxyRenderer(productmeta.ProxyRendererConfig{
			BaseURL:       c.Render.ProxyURL,
			APIKey:        c.Render.APIKey,
			CountryCode:   c.Render.CountryCode,
			Timeout:       c.Render.Timeout,
			RatePerSecond: c.Render.RatePerSecond,
			MaxPageBytes:  c.Fetch.MaxPageBytes,
		})
	case "browser":
		return productmeta.NewBrowserRenderer(c.Render.ControlURL, c.Render.Timeout)
	}
	return nil
}

// PreviewProvider builds the configured link preview provider, or nil for "none"
func (c *Config) PreviewProvider() productmeta.PreviewProvider {
	client := &http.Client{
		Timeout:   c.Fetch.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	switch c.Preview.Provider {
	case "html":
		return productmeta.NewHTMLPreviewProvider(
			productmeta.NewHTTPFetcher(client, c.Fetch.UserAgent, c.Fetch.MaxPageBytes),
		)
	case "service":
		return productmeta.NewServicePreviewProvider(client, c.Preview.ServiceURL, c.Preview.APIKey)
	}
	return nil
}

// LogLevel returns the slog level for Log.Level, defaulting to info
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}
