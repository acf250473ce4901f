package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/docutag/productmeta/models"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestTitleCommand(t *testing.T) {
	out, err := execute(t, "title", "https://www.amazon.fr/dp/B0TEST")
	if err != nil {
		t.Fatalf("title command failed: %v", err)
	}
	if strings.TrimSpace(out) != "Produit Amazon" {
		t.Errorf("output = %q, want %q", out, "Produit Amazon")
	}

	if _, err := execute(t, "title"); err == nil {
		t.Error("expected an error without a URL argument")
	}
}

func TestFetchCommand(t *testing.T) {
	t.Setenv("PRODUCTMETA_PREVIEW_PROVIDER", "none")

	merchant := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head>
<meta property="og:title" content="Lampe de bureau">
<meta property="product:price:amount" content="34,90">
</head><body></body></html>`)
	}))
	defer merchant.Close()

	out, err := execute(t, "fetch", merchant.URL+"/p/lampe")
	if err != nil {
		t.Fatalf("fetch command failed: %v", err)
	}

	var report models.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("output is not a report: %v\n%s", err, out)
	}
	if !report.Metadata.HasTitle() || *report.Metadata.Title != "Lampe de bureau" {
		t.Errorf("title = %v, want Lampe de bureau", report.Metadata.Title)
	}
	if report.Metadata.Price == nil || report.Metadata.Price.String() != "34.9" {
		t.Errorf("price = %v, want 34.9", report.Metadata.Price)
	}
	if report.PriceSource != models.SourceOpenGraph {
		t.Errorf("price source = %q, want %q", report.PriceSource, models.SourceOpenGraph)
	}

	if _, err := execute(t, "fetch", "ftp://example.com/file"); err == nil {
		t.Error("expected an error for a non-http URL")
	}
}
