package productmeta

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docutag/productmeta/models"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserRenderer renders pages in a remote headless Chrome reached over the
// DevTools protocol. Each Fetch opens its own connection and browser context.
type BrowserRenderer struct {
	controlURL string
	timeout    time.Duration
}

// NewBrowserRenderer targets the DevTools endpoint at controlURL, either a
// ws:// debugger URL or an http:// address that is resolved to one
func NewBrowserRenderer(controlURL string, timeout time.Duration) *BrowserRenderer {
	return &BrowserRenderer{controlURL: controlURL, timeout: timeout}
}

func (b *BrowserRenderer) Kind() models.Fetcher {
	return models.FetcherBrowser
}

func (b *BrowserRenderer) Fetch(ctx context.Context, pageURL string) (string, error) {
	if b.controlURL == "" {
		return "", ErrRenderUnavailable
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	wsURL := b.controlURL
	if strings.HasPrefix(wsURL, "http://") || strings.HasPrefix(wsURL, "https://") {
		resolved, err := launcher.ResolveURL(wsURL)
		if err != nil {
			return "", fmt.Errorf("%w: resolve DevTools endpoint: %v", ErrRenderUnavailable, err)
		}
		wsURL = resolved
	}

	ws := &cdp.WebSocket{}
	if err := ws.Connect(ctx, wsURL, nil); err != nil {
		return "", fmt.Errorf("%w: connect: %v", ErrRenderUnavailable, err)
	}
	defer ws.Close()

	return renderPage(ctx, cdp.New().Start(ws), pageURL)
}

// renderPage loads pageURL in a fresh browser context. Disposing the context
// closes its tabs and leaves the shared browser running for other callers.
func renderPage(ctx context.Context, client rod.CDPClient, pageURL string) (string, error) {
	browser := rod.New().Client(client).Context(ctx)
	if err := browser.Connect(); err != nil {
		return "", fmt.Errorf("%w: connect: %v", ErrRenderUnavailable, err)
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return "", fmt.Errorf("%w: create browser context: %v", ErrRenderUnavailable, err)
	}
	defer func() {
		// ctx may already be done; disposal still has to reach the browser
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = incognito.Context(cleanupCtx).Close()
	}()

	page, err := incognito.Page(proto.TargetCreateTarget{URL: pageURL})
	if err != nil {
		return "", fmt.Errorf("failed to open page: %w", err)
	}

	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("failed waiting for page load: %w", err)
	}

	markup, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to read rendered HTML: %w", err)
	}
	if strings.TrimSpace(markup) == "" {
		return "", fmt.Errorf("%w: empty rendered page", ErrNoContent)
	}
	return markup, nil
}
