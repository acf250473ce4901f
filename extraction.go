package productmeta

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/docutag/productmeta/models"
	"github.com/shopspring/decimal"
)

// extraction carries the state of one Extract call through its stages
type extraction struct {
	e       *Extractor
	opts    Options
	pageURL *url.URL
	report  *models.Report
	logger  *slog.Logger

	doc   *document
	title string
	price *decimal.Decimal
}

func (x *extraction) step(ctx context.Context, st stage) {
	switch st {
	case stageFetching:
		x.fetch(ctx)
	case stageExtractingStructured:
		x.extractTitle(ctx)
		x.extractPrice(ctx, false)
	case stageExtractingFallbacks:
		x.extractPrice(ctx, true)
	case stageResolvingImage:
		x.resolveImage(ctx)
	case stageFinalizing:
		x.applyPreview(ctx)
		x.finalize()
	}
}

func (x *extraction) warn(format string, args ...any) {
	x.report.Warnings = append(x.report.Warnings, fmt.Sprintf(format, args...))
}

// fetch acquires the page. Failure leaves an empty document so the later
// stages fall through to the link preview.
func (x *extraction) fetch(ctx context.Context) {
	e := x.e
	pageURL := x.pageURL.String()
	x.doc = parseDocument(x.pageURL, "")
	renderFirst := e.renderer != nil && (x.opts.Render || e.isRenderHost(x.pageURL.Hostname()))

	if x.opts.Render && e.renderer == nil {
		x.warn("Rendering requested but no renderer is configured")
	}

	if renderFirst {
		if x.tryFetch(ctx, e.renderer, e.renderer.Kind(), pageURL) {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}

	if x.tryFetch(ctx, e.fetcher, models.FetcherDirect, pageURL) {
		return
	}

	if !renderFirst && e.renderer != nil && ctx.Err() == nil {
		x.logger.Info("direct fetch yielded no content, trying renderer")
		if x.tryFetch(ctx, e.renderer, e.renderer.Kind(), pageURL) {
			return
		}
	}
}

func (x *extraction) tryFetch(ctx context.Context, f PageFetcher, kind models.Fetcher, pageURL string) bool {
	start := time.Now()
	raw, err := f.Fetch(ctx, pageURL)
	if err != nil {
		x.e.metrics.RecordFetch(string(kind), "error", time.Since(start))
		x.logger.Warn("page fetch failed", "fetcher", kind, "error", err)
		x.warn("%s fetch failed: %v", kind, err)
		return false
	}

	d := parseDocument(x.pageURL, raw)
	if d.empty() {
		x.e.metrics.RecordFetch(string(kind), "empty", time.Since(start))
		x.warn("%s fetch returned an empty page", kind)
		return false
	}

	x.e.metrics.RecordFetch(string(kind), "ok", time.Since(start))
	x.doc = d
	x.report.Fetcher = kind
	return true
}

func (e *Extractor) isRenderHost(host string) bool {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	for _, h := range e.config.RenderHosts {
		h = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "www."))
		if h != "" && (host == h || strings.HasSuffix(host, "."+h)) {
			return true
		}
	}
	return false
}

func (x *extraction) extractTitle(ctx context.Context) {
	for _, s := range titleStrategies {
		if ctx.Err() != nil {
			return
		}
		for _, candidate := range s.extract(x.doc) {
			if candidate == "" {
				continue
			}
			x.title = candidate
			x.report.TitleSource = s.source
			x.logger.Debug("title found", "source", s.source)
			return
		}
	}
}

// extractPrice walks the price strategies of the given tier. The first
// candidate that normalizes within the plausibility range wins.
func (x *extraction) extractPrice(ctx context.Context, heuristic bool) {
	if x.price != nil {
		return
	}
	for _, s := range priceStrategies {
		if s.heuristic != heuristic {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		for _, raw := range s.extract(x.doc) {
			candidate := models.ExtractionCandidate{RawText: raw, Source: s.source}
			price, err := NormalizePrice(candidate.RawText)
			if err != nil {
				reason := "unparseable"
				if errors.Is(err, ErrPriceOutOfRange) {
					reason = "out_of_range"
				}
				x.e.metrics.RecordPriceRejection(string(candidate.Source), reason)
				x.logger.Debug("price candidate rejected",
					"source", candidate.Source,
					"raw", candidate.RawText,
					"reason", reason,
				)
				continue
			}
			x.price = &price
			x.report.PriceSource = candidate.Source
			x.logger.Debug("price found", "source", candidate.Source, "price", price.String())
			return
		}
	}
}

// resolveImage downloads candidates in priority order and stops at the first
// one that decodes
func (x *extraction) resolveImage(ctx context.Context) {
	seen := make(map[string]bool)
	failed := 0
	defer func() {
		if failed > 0 {
			x.warn("Skipped %d image candidates that could not be downloaded or decoded", failed)
		}
	}()

	for _, s := range imageStrategies {
		for _, candidate := range s.extract(x.doc) {
			if ctx.Err() != nil {
				return
			}

			resolved, err := ResolveImageURL(x.pageURL, candidate)
			if err != nil {
				x.e.metrics.RecordImageAttempt(string(s.source), "invalid_url")
				x.logger.Debug("image candidate rejected", "source", s.source, "candidate", candidate, "error", err)
				continue
			}
			if seen[resolved] {
				continue
			}
			seen[resolved] = true

			if x.tryImage(ctx, s.source, resolved) {
				return
			}
			failed++
		}
	}
}

func (x *extraction) tryImage(ctx context.Context, source models.Source, imageURL string) bool {
	resolved, data, err := x.e.images.Resolve(ctx, x.pageURL, imageURL)
	if err != nil {
		x.e.metrics.RecordImageAttempt(string(source), "error")
		x.logger.Warn("image candidate failed", "source", source, "image_url", imageURL, "error", err)
		return false
	}

	x.e.metrics.RecordImageAttempt(string(source), "ok")
	x.report.Metadata.Image = data
	x.report.ImageURL = resolved
	x.report.ImageSource = source
	return true
}

// applyPreview fills a missing title or image from the link preview
// provider. Fields already found are never overwritten.
func (x *extraction) applyPreview(ctx context.Context) {
	needTitle := x.title == ""
	needImage := !x.report.Metadata.HasImage()
	if x.e.preview == nil || (!needTitle && !needImage) {
		return
	}

	preview, err := x.e.preview.Preview(ctx, x.pageURL.String())
	if err != nil {
		x.logger.Info("link preview unavailable", "error", err)
		x.warn("Link preview failed: %v", err)
		return
	}

	if needTitle {
		if t := normalizeText(preview.Title); t != "" {
			x.title = t
			x.report.TitleSource = models.SourcePreview
		}
	}

	if needImage && preview.ImageURL != "" && ctx.Err() == nil {
		if !x.tryImage(ctx, models.SourcePreview, preview.ImageURL) {
			x.warn("Preview image could not be downloaded or decoded")
		}
	}
}

func (x *extraction) finalize() {
	if x.title != "" {
		if cleaned := CleanTitle(x.title); cleaned != "" {
			x.report.Metadata.Title = &cleaned
			x.e.metrics.RecordField("title", string(x.report.TitleSource))
		} else {
			x.report.TitleSource = models.SourceNone
		}
	}
	if x.price != nil {
		x.report.Metadata.Price = x.price
		x.e.metrics.RecordField("price", string(x.report.PriceSource))
	}
	if x.report.Metadata.HasImage() {
		x.e.metrics.RecordField("image", string(x.report.ImageSource))
	}
}
