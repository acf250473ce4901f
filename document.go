package productmeta

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// document is a fetched page prepared for the extractors: the raw markup for
// the pattern-based tiers and a parsed tree for the selector-based ones
type document struct {
	pageURL *url.URL
	raw     string
	dom     *goquery.Document

	meta   map[string][]string // lowercased property/name -> contents in document order
	jsonLD []string            // bodies of application/ld+json scripts
}

func parseDocument(pageURL *url.URL, raw string) *document {
	d := &document{pageURL: pageURL, raw: raw, meta: make(map[string][]string)}

	dom, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		// strings.Reader never fails; keep an empty tree regardless
		dom, _ = goquery.NewDocumentFromReader(strings.NewReader(""))
	}
	d.dom = dom

	dom.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok {
			return
		}
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}
		for _, attr := range []string{"property", "name"} {
			if key, ok := s.Attr(attr); ok {
				key = strings.ToLower(strings.TrimSpace(key))
				d.meta[key] = append(d.meta[key], content)
			}
		}
	})

	dom.Find("script").Each(func(_ int, s *goquery.Selection) {
		typ, _ := s.Attr("type")
		if strings.EqualFold(strings.TrimSpace(typ), "application/ld+json") {
			if body := strings.TrimSpace(s.Text()); body != "" {
				d.jsonLD = append(d.jsonLD, body)
			}
		}
	})

	return d
}

// metaValues returns the content of every meta tag matching one of keys, key
// order first and document order second
func (d *document) metaValues(keys ...string) []string {
	var values []string
	for _, key := range keys {
		values = append(values, d.meta[key]...)
	}
	return values
}

// empty reports whether the page yielded no markup to work with
func (d *document) empty() bool {
	return strings.TrimSpace(d.raw) == ""
}
