package productmeta

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestProxyRendererFetch(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"api_key":      q.Get("api_key"),
			"url":          q.Get("url"),
			"render":       q.Get("render"),
			"country_code": q.Get("country_code"),
		}
		if q.Get("url") == "https://shop.example/broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><meta property="og:title" content="Rendu"></head></html>`))
	}))
	defer server.Close()

	config := DefaultProxyRendererConfig()
	config.BaseURL = server.URL
	config.APIKey = "k123"
	config.CountryCode = "fr"
	config.Timeout = 5 * time.Second
	config.RatePerSecond = 0
	renderer := NewProxyRenderer(config)

	body, err := renderer.Fetch(context.Background(), "https://shop.example/p?id=1&color=red")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !strings.Contains(body, "Rendu") {
		t.Errorf("unexpected body: %s", body)
	}

	want := map[string]string{
		"api_key":      "k123",
		"url":          "https://shop.example/p?id=1&color=red",
		"render":       "true",
		"country_code": "fr",
	}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query %s = %q, want %q", k, gotQuery[k], v)
		}
	}

	if _, err := renderer.Fetch(context.Background(), "https://shop.example/broken"); !errors.Is(err, ErrNoContent) {
		t.Errorf("expected ErrNoContent on proxy failure, got %v", err)
	}
}

func TestProxyRendererRequiresKey(t *testing.T) {
	renderer := NewProxyRenderer(DefaultProxyRendererConfig())
	if _, err := renderer.Fetch(context.Background(), "https://shop.example/p"); !errors.Is(err, ErrRenderUnavailable) {
		t.Errorf("expected ErrRenderUnavailable without API key, got %v", err)
	}
}

func TestProxyRendererRateLimitHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer server.Close()

	config := DefaultProxyRendererConfig()
	config.BaseURL = server.URL
	config.APIKey = "k"
	config.RatePerSecond = 0.01 // one request, then a 100s wait
	renderer := NewProxyRenderer(config)

	if _, err := renderer.Fetch(context.Background(), "https://shop.example/a"); err != nil {
		t.Fatalf("first Fetch failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := renderer.Fetch(ctx, "https://shop.example/b"); err == nil {
		t.Error("expected the limiter to refuse a wait beyond the deadline")
	}
}

func TestBrowserRendererWithoutEndpoint(t *testing.T) {
	renderer := NewBrowserRenderer("", time.Second)
	if _, err := renderer.Fetch(context.Background(), "https://shop.example/p"); !errors.Is(err, ErrRenderUnavailable) {
		t.Errorf("expected ErrRenderUnavailable, got %v", err)
	}
}
