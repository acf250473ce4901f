package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductMetadata is the output of a single extraction. Every field is optional.
type ProductMetadata struct {
	Title *string          `json:"title,omitempty"`
	Price *decimal.Decimal `json:"price,omitempty"`
	Image []byte           `json:"image,omitempty"` // JPEG, downsized
}

// HasTitle reports whether a non-empty title was determined
func (m *ProductMetadata) HasTitle() bool {
	return m != nil && m.Title != nil && *m.Title != ""
}

// HasImage reports whether an image was downloaded
func (m *ProductMetadata) HasImage() bool {
	return m != nil && len(m.Image) > 0
}

// Source identifies where an extracted value came from
type Source string

const (
	SourceNone      Source = ""
	SourceJSONLD    Source = "json-ld"
	SourceOpenGraph Source = "opengraph"
	SourceMicrodata Source = "microdata"
	SourceHTML      Source = "html"    // heuristic patterns over raw markup
	SourcePreview   Source = "preview" // link preview fallback
	SourceURL       Source = "url"     // derived from the URL alone
)

// ExtractionCandidate is a raw price token with its provenance, kept only
// until it is normalized
type ExtractionCandidate struct {
	RawText string `json:"raw_text"`
	Source  Source `json:"source"`
}

// Fetcher names the path used to acquire the page HTML
type Fetcher string

const (
	FetcherNone    Fetcher = ""
	FetcherDirect  Fetcher = "direct"
	FetcherProxy   Fetcher = "proxy"
	FetcherBrowser Fetcher = "browser"
)

// Report is a ProductMetadata plus provenance for each field
type Report struct {
	URL            string          `json:"url"`
	Metadata       ProductMetadata `json:"metadata"`
	TitleSource    Source          `json:"title_source,omitempty"`
	PriceSource    Source          `json:"price_source,omitempty"`
	ImageSource    Source          `json:"image_source,omitempty"`
	ImageURL       string          `json:"image_url,omitempty"` // absolute URL the image was downloaded from
	Fetcher        Fetcher         `json:"fetcher,omitempty"`
	TimedOut       bool            `json:"timed_out"`
	ProcessingTime float64         `json:"processing_time_seconds"`
	Warnings       []string        `json:"warnings,omitempty"` // Non-fatal processing warnings
	FetchedAt      time.Time       `json:"fetched_at"`
}

// MetadataRequest is the body of POST /api/metadata
type MetadataRequest struct {
	URL    string `json:"url"`
	Render bool   `json:"render"` // Force the rendering path
	Force  bool   `json:"force"`  // Bypass the result cache
}

// QuickAddRequest is the body of POST /api/quick-add
type QuickAddRequest struct {
	URL       string `json:"url"`
	TimeoutMS int    `json:"timeout_ms,omitempty"`
}

// MetadataResponse is the API representation of a Report
type MetadataResponse struct {
	ID             string   `json:"id"`
	URL            string   `json:"url"`
	Title          string   `json:"title,omitempty"`
	Price          string   `json:"price,omitempty"`
	ImageBase64    string   `json:"image_base64,omitempty"`
	ImageKey       string   `json:"image_key,omitempty"` // Set when the image was written to the image store
	SourceImageURL string   `json:"source_image_url,omitempty"`
	TitleSource    Source   `json:"title_source,omitempty"`
	PriceSource    Source   `json:"price_source,omitempty"`
	ImageSource    Source   `json:"image_source,omitempty"`
	Fetcher        Fetcher  `json:"fetcher,omitempty"`
	TimedOut       bool     `json:"timed_out"`
	Cached         bool     `json:"cached"`
	ProcessingTime float64  `json:"processing_time_seconds"`
	Warnings       []string `json:"warnings,omitempty"`
}

// TitleResponse is the body returned by GET /api/title
type TitleResponse struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}
