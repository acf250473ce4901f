// Package productmeta extracts a product's title, price and representative
// image from an arbitrary merchant page. Extraction is best effort: every
// failure past URL validation degrades to a later source in the cascade or to
// an empty field, never to an error.
package productmeta

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/docutag/productmeta/metrics"
	"github.com/docutag/productmeta/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Config contains extractor configuration
type Config struct {
	HTTPTimeout       time.Duration // Page fetch timeout
	UserAgent         string
	MaxPageBytes      int64
	ImageTimeout      time.Duration // Timeout for downloading individual images
	MaxImageSizeBytes int64         // Maximum image size to download (bytes)
	MaxImageDimension int           // Longest side of the stored image
	MaxImagePixels    int64         // Decoded width*height limit, checked before decoding
	ImageQuality      int           // JPEG quality 1-100
	RenderHosts       []string      // Hosts always fetched through the renderer
	QuickAddBudget    time.Duration // Default wall-clock budget for QuickAdd
	Logger            *slog.Logger
	Metrics           *metrics.PipelineMetrics // nil disables metrics
}

// DefaultConfig returns default extractor configuration
func DefaultConfig() Config {
	return Config{
		HTTPTimeout:       20 * time.Second,
		UserAgent:         DefaultUserAgent,
		MaxPageBytes:      5 * 1024 * 1024,  // 5MB of HTML is plenty
		ImageTimeout:      15 * time.Second, // 15s timeout per image
		MaxImageSizeBytes: 10 * 1024 * 1024, // 10MB max image size
		MaxImageDimension: 800,
		MaxImagePixels:    40_000_000, // 40MP, about 160MB decoded
		ImageQuality:      70,
		QuickAddBudget:    3 * time.Second,
	}
}

// Options tune a single extraction
type Options struct {
	Render bool // Fetch through the renderer first
}

// Extractor runs the metadata cascade
type Extractor struct {
	config     Config
	httpClient *http.Client
	fetcher    PageFetcher
	renderer   Renderer        // may be nil
	preview    PreviewProvider // may be nil
	images     *ImageResolver
	logger     *slog.Logger
	metrics    *metrics.PipelineMetrics
	tracer     trace.Tracer
}

// New creates an Extractor. renderer and preview may be nil, which disables
// the rendering path and the link preview fallback respectively.
func New(config Config, renderer Renderer, preview PreviewProvider) *Extractor {
	defaults := DefaultConfig()
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = defaults.HTTPTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
	if config.QuickAddBudget <= 0 {
		config.QuickAddBudget = defaults.QuickAddBudget
	}
	if config.MaxImageDimension <= 0 {
		config.MaxImageDimension = defaults.MaxImageDimension
	}
	if config.MaxImagePixels <= 0 {
		config.MaxImagePixels = defaults.MaxImagePixels
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := newHTTPClient(config.HTTPTimeout)

	return &Extractor{
		config:     config,
		httpClient: client,
		fetcher:    NewHTTPFetcher(client, config.UserAgent, config.MaxPageBytes),
		renderer:   renderer,
		preview:    preview,
		images:     NewImageResolver(client, config),
		logger:     logger,
		metrics:    config.Metrics,
		tracer:     otel.Tracer("github.com/docutag/productmeta"),
	}
}

// FetchMetadata extracts title, price and image from pageURL. The only error
// returned besides caller cancellation is ErrInvalidURL; every other failure
// yields empty fields.
func (e *Extractor) FetchMetadata(ctx context.Context, pageURL string) (*models.ProductMetadata, error) {
	report, err := e.Extract(ctx, pageURL, Options{})
	if report == nil {
		return &models.ProductMetadata{}, err
	}
	return &report.Metadata, err
}

// QuickAdd runs Extract under a wall-clock budget. When the budget runs out
// the partial work is discarded and the title is derived from the URL alone.
// A non-positive budget uses Config.QuickAddBudget.
func (e *Extractor) QuickAdd(ctx context.Context, pageURL string, budget time.Duration) (*models.Report, error) {
	start := time.Now()
	if budget <= 0 {
		budget = e.config.QuickAddBudget
	}

	if _, err := parsePageURL(pageURL); err != nil {
		e.metrics.RecordExtraction("invalid_url")
		return &models.Report{URL: pageURL, FetchedAt: start}, err
	}

	quickCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	report, err := e.Extract(quickCtx, pageURL, Options{})
	if err == nil {
		return report, nil
	}

	// Only our own deadline triggers the URL fallback; the caller's
	// cancellation is passed through
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		e.metrics.RecordQuickAddTimeout()
		e.logger.Info("quick add budget exhausted, using URL title",
			"url", pageURL,
			"budget", budget.String(),
		)

		title := TitleFromURL(pageURL)
		return &models.Report{
			URL:            pageURL,
			Metadata:       models.ProductMetadata{Title: &title},
			TitleSource:    models.SourceURL,
			TimedOut:       true,
			ProcessingTime: time.Since(start).Seconds(),
			Warnings:       []string{fmt.Sprintf("Extraction exceeded %s budget; title derived from URL", budget)},
			FetchedAt:      start,
		}, nil
	}

	return report, err
}

// Extract runs the full cascade and reports where each field came from.
// Errors are limited to ErrInvalidURL and context cancellation; in both
// cases a non-nil report is returned.
func (e *Extractor) Extract(ctx context.Context, pageURL string, opts Options) (*models.Report, error) {
	start := time.Now()
	report := &models.Report{URL: pageURL, FetchedAt: start}

	parsed, err := parsePageURL(pageURL)
	if err != nil {
		e.metrics.RecordExtraction("invalid_url")
		return report, err
	}

	ctx, span := e.tracer.Start(ctx, "productmeta.Extract",
		trace.WithAttributes(
			attribute.String("url.full", pageURL),
			attribute.Bool("productmeta.render", opts.Render),
		),
	)
	defer span.End()

	run := &extraction{
		e:       e,
		opts:    opts,
		pageURL: parsed,
		report:  report,
		logger:  e.logger.With("url", pageURL),
	}

	for st := stageFetching; st <= stageDone; st++ {
		if err := ctx.Err(); err != nil {
			report.ProcessingTime = time.Since(start).Seconds()
			span.SetStatus(codes.Error, "cancelled")
			span.RecordError(err)
			e.metrics.RecordExtraction("cancelled")
			run.logger.Info("extraction cancelled", "stage", st.String(), "error", err)
			return report, err
		}
		if st == stageDone {
			break
		}

		span.AddEvent(st.String())
		run.logger.Debug("extraction stage", "stage", st.String())
		run.step(ctx, st)
	}

	report.ProcessingTime = time.Since(start).Seconds()
	outcome := outcomeOf(&report.Metadata, report.Metadata.Price != nil)
	e.metrics.RecordExtraction(outcome)
	span.SetAttributes(
		attribute.String("productmeta.outcome", outcome),
		attribute.String("productmeta.fetcher", string(report.Fetcher)),
	)

	run.logger.Info("extraction complete",
		"outcome", outcome,
		"title_source", report.TitleSource,
		"price_source", report.PriceSource,
		"image_source", report.ImageSource,
		"fetcher", report.Fetcher,
		"duration", time.Since(start).String(),
	)

	return report, nil
}

// parsePageURL accepts absolute http(s) URLs only
func parsePageURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: URL must be http or https", ErrInvalidURL)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, nil
}

func outcomeOf(m *models.ProductMetadata, hasPrice bool) string {
	found := 0
	for _, ok := range []bool{m.HasTitle(), hasPrice, m.HasImage()} {
		if ok {
			found++
		}
	}
	switch found {
	case 3:
		return "complete"
	case 0:
		return "empty"
	}
	return "partial"
}
