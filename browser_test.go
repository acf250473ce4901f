package productmeta

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/go-rod/rod/lib/cdp"
)

// recordingCDP answers the DevTools calls a render makes up to opening the
// tab, then refuses to create it
type recordingCDP struct {
	mu      sync.Mutex
	methods []string
	events  chan *cdp.Event
}

func newRecordingCDP() *recordingCDP {
	return &recordingCDP{events: make(chan *cdp.Event)}
}

func (c *recordingCDP) Event() <-chan *cdp.Event {
	return c.events
}

func (c *recordingCDP) Call(ctx context.Context, sessionID, method string, params interface{}) ([]byte, error) {
	c.mu.Lock()
	c.methods = append(c.methods, method)
	c.mu.Unlock()

	switch method {
	case "Target.createBrowserContext":
		return []byte(`{"browserContextId":"render-ctx-1"}`), nil
	case "Target.createTarget":
		return nil, errors.New("target refused")
	}
	return []byte(`{}`), nil
}

func (c *recordingCDP) called() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.methods)
}

func TestRenderPageKeepsSharedBrowserOpen(t *testing.T) {
	client := newRecordingCDP()
	defer close(client.events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := renderPage(ctx, client, "https://shop.example/p"); err == nil {
		t.Fatal("expected an error when the tab cannot be opened")
	}

	methods := client.called()
	if slices.Contains(methods, "Browser.close") {
		t.Errorf("render closed the shared browser: %v", methods)
	}
	if !slices.Contains(methods, "Target.createBrowserContext") {
		t.Errorf("expected the page to be opened in its own browser context: %v", methods)
	}
	if !slices.Contains(methods, "Target.disposeBrowserContext") {
		t.Errorf("expected the browser context to be disposed: %v", methods)
	}
}
