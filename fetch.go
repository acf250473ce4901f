package productmeta

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/docutag/productmeta/models"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/html/charset"
)

// DefaultUserAgent is a desktop browser identity; several retailers serve an
// empty shell or a 403 to anything that looks like a bot
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// PageFetcher retrieves the HTML of a page
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// Renderer is a PageFetcher that executes JavaScript before returning the HTML
type Renderer interface {
	PageFetcher
	Kind() models.Fetcher
}

// newHTTPClient returns a client whose transport emits OpenTelemetry spans
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// HTTPFetcher performs a plain GET with browser-like headers
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

// NewHTTPFetcher wraps client. An empty userAgent uses DefaultUserAgent.
func NewHTTPFetcher(client *http.Client, userAgent string, maxBytes int64) *HTTPFetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPFetcher{client: client, userAgent: userAgent, maxBytes: maxBytes}
}

// Fetch returns the decoded page body. Non-2xx statuses, empty bodies and
// bodies that cannot be decoded to text all yield ErrNoContent.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: HTTP %d", ErrNoContent, resp.StatusCode)
	}

	return readHTML(resp.Body, resp.Header.Get("Content-Type"), f.maxBytes)
}

// readHTML reads at most maxBytes and converts the body to UTF-8 using the
// declared or sniffed charset
func readHTML(body io.Reader, contentType string, maxBytes int64) (string, error) {
	if maxBytes > 0 {
		body = io.LimitReader(body, maxBytes)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", fmt.Errorf("%w: empty body", ErrNoContent)
	}

	reader, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoContent, err)
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoContent, err)
	}

	text := string(decoded)
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("%w: body is not valid text", ErrNoContent)
	}
	if strings.ContainsRune(text, 0) {
		return "", fmt.Errorf("%w: body looks binary", ErrNoContent)
	}
	return text, nil
}
