package productmeta

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docutag/productmeta/metrics"
	"github.com/docutag/productmeta/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

// fakeRenderer returns canned HTML and counts calls
type fakeRenderer struct {
	html  string
	err   error
	calls atomic.Int32
}

func (f *fakeRenderer) Fetch(ctx context.Context, pageURL string) (string, error) {
	f.calls.Add(1)
	return f.html, f.err
}

func (f *fakeRenderer) Kind() models.Fetcher { return models.FetcherProxy }

// fakePreview returns a fixed preview and counts calls
type fakePreview struct {
	preview *Preview
	err     error
	calls   atomic.Int32
}

func (f *fakePreview) Preview(ctx context.Context, pageURL string) (*Preview, error) {
	f.calls.Add(1)
	return f.preview, f.err
}

// newMerchant serves product pages and a PNG at /images/chaise.png
func newMerchant(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	pngData := encodePNG(t, 1200, 900)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/images/chaise.png" {
			w.Header().Set("Content-Type", "image/png")
			w.Write(pngData)
			return
		}
		page, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(page))
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig() Config {
	config := DefaultConfig()
	config.HTTPTimeout = 5 * time.Second
	config.ImageTimeout = 5 * time.Second
	return config
}

func TestNew(t *testing.T) {
	e := New(DefaultConfig(), nil, nil)

	if e == nil {
		t.Fatal("Expected extractor to be non-nil")
	}
	if e.httpClient == nil {
		t.Error("Expected httpClient to be non-nil")
	}
	if e.logger == nil {
		t.Error("Expected a default logger")
	}
}

func TestExtractPriorityAcrossSources(t *testing.T) {
	server := newMerchant(t, map[string]string{
		"/produit/chaise": `<!DOCTYPE html><html><head>
<title>Chaise Design - MaBoutique</title>
<meta property="og:title" content="Chaise Design | MaBoutique">
<meta property="og:image" content="/images/missing.jpg">
<meta property="og:price:amount" content="59.99">
<script type="application/ld+json">
{"@type":"Product","name":"Chaise Design - MaBoutique","image":"/images/chaise.png",
 "offers":{"@type":"Offer","price":"49,99"}}
</script>
</head><body><span class="price">39,99 €</span></body></html>`,
	})

	e := New(testConfig(), nil, nil)
	report, err := e.Extract(context.Background(), server.URL+"/produit/chaise", Options{})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	m := report.Metadata
	if !m.HasTitle() || *m.Title != "Chaise Design" {
		t.Errorf("title = %v, want cleaned JSON-LD title", m.Title)
	}
	if report.TitleSource != models.SourceJSONLD {
		t.Errorf("title source = %s, want json-ld", report.TitleSource)
	}
	if m.Price == nil || !m.Price.Equal(decimal.RequireFromString("49.99")) {
		t.Errorf("price = %v, want 49.99", m.Price)
	}
	if report.PriceSource != models.SourceJSONLD {
		t.Errorf("price source = %s, want json-ld", report.PriceSource)
	}
	if !m.HasImage() {
		t.Fatal("expected an image")
	}
	if report.ImageURL != server.URL+"/images/chaise.png" {
		t.Errorf("image URL = %s", report.ImageURL)
	}
	if report.Fetcher != models.FetcherDirect {
		t.Errorf("fetcher = %s, want direct", report.Fetcher)
	}
}

func TestExtractSkipsImplausiblePrices(t *testing.T) {
	server := newMerchant(t, map[string]string{
		"/p": `<html><head>
<script type="application/ld+json">{"@type":"Product","name":"Vase","offers":{"price":"0.50"}}</script>
<meta property="og:price:amount" content="2024000">
</head><body>
<div itemprop="price" content="abc"></div>
<div class="sku">Réf. 123456789</div>
<div class="product-price">24,90 €</div>
</body></html>`,
	})

	reg := prometheus.NewRegistry()
	config := testConfig()
	config.Metrics = metrics.NewPipelineMetrics("test", reg)
	e := New(config, nil, nil)

	report, err := e.Extract(context.Background(), server.URL+"/p", Options{})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if report.Metadata.Price == nil || !report.Metadata.Price.Equal(decimal.RequireFromString("24.90")) {
		t.Errorf("price = %v, want 24.90 from heuristics", report.Metadata.Price)
	}
	if report.PriceSource != models.SourceHTML {
		t.Errorf("price source = %s, want html", report.PriceSource)
	}

	if got := testutil.ToFloat64(config.Metrics.PriceRejections.WithLabelValues("json-ld", "out_of_range")); got != 1 {
		t.Errorf("json-ld out_of_range rejections = %v, want 1", got)
	}
	if got := testutil.ToFloat64(config.Metrics.PriceRejections.WithLabelValues("opengraph", "out_of_range")); got != 1 {
		t.Errorf("opengraph out_of_range rejections = %v, want 1", got)
	}
}

func TestExtractGracefulDegradation(t *testing.T) {
	server := newMerchant(t, map[string]string{
		"/bare": `<html><body><p>Nothing to see</p></body></html>`,
	})

	e := New(testConfig(), nil, nil)

	for _, path := range []string{"/bare", "/missing"} {
		t.Run(path, func(t *testing.T) {
			m, err := e.FetchMetadata(context.Background(), server.URL+path)
			if err != nil {
				t.Fatalf("FetchMetadata returned error: %v", err)
			}
			if m.Title != nil || m.Price != nil || m.Image != nil {
				t.Errorf("expected empty metadata, got %+v", m)
			}
		})
	}
}

func TestExtractInvalidURL(t *testing.T) {
	e := New(testConfig(), nil, nil)

	for _, raw := range []string{"", "not a url", "ftp://shop.example/p", "/relative/path", "https://"} {
		m, err := e.FetchMetadata(context.Background(), raw)
		if !errors.Is(err, ErrInvalidURL) {
			t.Errorf("FetchMetadata(%q) error = %v, want ErrInvalidURL", raw, err)
		}
		if m == nil || m.Title != nil || m.Price != nil || m.Image != nil {
			t.Errorf("FetchMetadata(%q) = %+v, want empty metadata", raw, m)
		}
	}
}

func TestExtractPreviewFillsOnlyMissingFields(t *testing.T) {
	server := newMerchant(t, map[string]string{
		"/titled": `<html><head><meta property="og:title" content="Lampe Arc"></head></html>`,
		"/empty":  `<html><body></body></html>`,
	})

	t.Run("image only", func(t *testing.T) {
		preview := &fakePreview{preview: &Preview{Title: "Preview Title", ImageURL: "/images/chaise.png"}}
		e := New(testConfig(), nil, preview)

		report, err := e.Extract(context.Background(), server.URL+"/titled", Options{})
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if *report.Metadata.Title != "Lampe Arc" || report.TitleSource != models.SourceOpenGraph {
			t.Errorf("title overwritten: %q from %s", *report.Metadata.Title, report.TitleSource)
		}
		if !report.Metadata.HasImage() || report.ImageSource != models.SourcePreview {
			t.Errorf("expected preview image, got source %q", report.ImageSource)
		}
	})

	t.Run("title and image", func(t *testing.T) {
		preview := &fakePreview{preview: &Preview{Title: "Tabouret - Shop", ImageURL: server.URL + "/images/chaise.png"}}
		e := New(testConfig(), nil, preview)

		report, err := e.Extract(context.Background(), server.URL+"/empty", Options{})
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if !report.Metadata.HasTitle() || *report.Metadata.Title != "Tabouret" {
			t.Errorf("title = %v, want cleaned preview title", report.Metadata.Title)
		}
		if report.TitleSource != models.SourcePreview {
			t.Errorf("title source = %s", report.TitleSource)
		}
		if report.Metadata.Price != nil {
			t.Error("price must never come from the preview")
		}
	})

	t.Run("not consulted when complete", func(t *testing.T) {
		full := newMerchant(t, map[string]string{
			"/full": `<html><head><meta property="og:title" content="Chaise"><meta property="og:image" content="/images/chaise.png"></head></html>`,
		})
		preview := &fakePreview{err: ErrPreviewUnavailable}
		e := New(testConfig(), nil, preview)

		if _, err := e.Extract(context.Background(), full.URL+"/full", Options{}); err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if n := preview.calls.Load(); n != 0 {
			t.Errorf("preview called %d times, want 0", n)
		}
	})

	t.Run("failure is absorbed", func(t *testing.T) {
		preview := &fakePreview{err: ErrPreviewUnavailable}
		e := New(testConfig(), nil, preview)

		report, err := e.Extract(context.Background(), server.URL+"/empty", Options{})
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if len(report.Warnings) == 0 {
			t.Error("expected a warning for the failed preview")
		}
	})
}

func TestExtractRendererFallback(t *testing.T) {
	server := newMerchant(t, map[string]string{
		"/spa": `<html><body><div id="root"></div></body></html>`,
	})
	rendered := `<html><head><meta property="og:title" content="Rendered Chair"><meta property="og:price:amount" content="89.00"></head></html>`

	t.Run("used when direct fetch fails", func(t *testing.T) {
		renderer := &fakeRenderer{html: rendered}
		e := New(testConfig(), renderer, nil)

		report, err := e.Extract(context.Background(), server.URL+"/blocked", Options{})
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if report.Fetcher != models.FetcherProxy {
			t.Errorf("fetcher = %s, want proxy", report.Fetcher)
		}
		if !report.Metadata.HasTitle() || *report.Metadata.Title != "Rendered Chair" {
			t.Errorf("title = %v", report.Metadata.Title)
		}
	})

	t.Run("not used when direct fetch succeeds", func(t *testing.T) {
		renderer := &fakeRenderer{html: rendered}
		e := New(testConfig(), renderer, nil)

		report, err := e.Extract(context.Background(), server.URL+"/spa", Options{})
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if renderer.calls.Load() != 0 || report.Fetcher != models.FetcherDirect {
			t.Errorf("renderer calls = %d, fetcher = %s", renderer.calls.Load(), report.Fetcher)
		}
	})

	t.Run("forced by option", func(t *testing.T) {
		renderer := &fakeRenderer{html: rendered}
		e := New(testConfig(), renderer, nil)

		report, err := e.Extract(context.Background(), server.URL+"/spa", Options{Render: true})
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if report.Fetcher != models.FetcherProxy {
			t.Errorf("fetcher = %s, want proxy", report.Fetcher)
		}
		if report.Metadata.Price == nil || !report.Metadata.Price.Equal(decimal.NewFromInt(89)) {
			t.Errorf("price = %v, want 89", report.Metadata.Price)
		}
	})

	t.Run("forced by host list", func(t *testing.T) {
		renderer := &fakeRenderer{html: rendered}
		config := testConfig()
		config.RenderHosts = []string{"127.0.0.1"}
		e := New(config, renderer, nil)

		if _, err := e.Extract(context.Background(), server.URL+"/spa", Options{}); err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if renderer.calls.Load() != 1 {
			t.Errorf("renderer calls = %d, want 1", renderer.calls.Load())
		}
	})

	t.Run("renderer failure falls back to direct", func(t *testing.T) {
		renderer := &fakeRenderer{err: ErrNoContent}
		e := New(testConfig(), renderer, nil)

		report, err := e.Extract(context.Background(), server.URL+"/spa", Options{Render: true})
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if report.Fetcher != models.FetcherDirect {
			t.Errorf("fetcher = %s, want direct", report.Fetcher)
		}
	})
}

func TestQuickAddCompletesWithinBudget(t *testing.T) {
	server := newMerchant(t, map[string]string{
		"/p": `<html><head><meta property="og:title" content="Bureau en chêne"></head></html>`,
	})

	e := New(testConfig(), nil, nil)
	report, err := e.QuickAdd(context.Background(), server.URL+"/p", 5*time.Second)
	if err != nil {
		t.Fatalf("QuickAdd failed: %v", err)
	}
	if report.TimedOut {
		t.Error("did not expect a timeout")
	}
	if !report.Metadata.HasTitle() || *report.Metadata.Title != "Bureau en chêne" {
		t.Errorf("title = %v", report.Metadata.Title)
	}
}

func TestQuickAddFallsBackToURLTitle(t *testing.T) {
	released := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			close(released)
		case <-time.After(10 * time.Second):
		}
	}))
	defer server.Close()

	reg := prometheus.NewRegistry()
	config := testConfig()
	config.HTTPTimeout = 30 * time.Second
	config.Metrics = metrics.NewPipelineMetrics("test", reg)
	e := New(config, nil, nil)

	start := time.Now()
	report, err := e.QuickAdd(context.Background(), server.URL+"/produit-super-cool-2024", 200*time.Millisecond)
	if err != nil {
		t.Fatalf("QuickAdd returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("QuickAdd took %v, expected to return near the budget", elapsed)
	}

	if !report.TimedOut {
		t.Error("expected TimedOut to be set")
	}
	if report.TitleSource != models.SourceURL {
		t.Errorf("title source = %s, want url", report.TitleSource)
	}
	if !report.Metadata.HasTitle() || *report.Metadata.Title != "Produit Super Cool 2024" {
		t.Errorf("title = %v, want URL-derived title", report.Metadata.Title)
	}
	if report.Metadata.Price != nil || report.Metadata.Image != nil {
		t.Error("partial results must be discarded on timeout")
	}

	// The in-flight request must have been abandoned
	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Error("origin request was not cancelled")
	}

	if got := testutil.ToFloat64(config.Metrics.QuickAddTimeout); got != 1 {
		t.Errorf("quick add timeouts = %v, want 1", got)
	}
}

func TestQuickAddPassesCallerCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	e := New(testConfig(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := e.QuickAdd(ctx, server.URL+"/p", 5*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestQuickAddInvalidURL(t *testing.T) {
	e := New(testConfig(), nil, nil)
	if _, err := e.QuickAdd(context.Background(), "mailto:someone@shop.example", 0); !errors.Is(err, ErrInvalidURL) {
		t.Errorf("expected ErrInvalidURL, got %v", err)
	}
}

func TestOutcomeOf(t *testing.T) {
	title := "Chaise"
	if got := outcomeOf(&models.ProductMetadata{}, false); got != "empty" {
		t.Errorf("outcome = %s, want empty", got)
	}
	if got := outcomeOf(&models.ProductMetadata{Title: &title}, false); got != "partial" {
		t.Errorf("outcome = %s, want partial", got)
	}
	if got := outcomeOf(&models.ProductMetadata{Title: &title, Image: []byte{1}}, true); got != "complete" {
		t.Errorf("outcome = %s, want complete", got)
	}
}

func TestStageNames(t *testing.T) {
	var names []string
	for st := stageFetching; st <= stageDone; st++ {
		names = append(names, st.String())
	}
	want := "fetching,extracting_structured,extracting_fallbacks,resolving_image,finalizing,done"
	if got := strings.Join(names, ","); got != want {
		t.Errorf("stages = %s, want %s", got, want)
	}
}
