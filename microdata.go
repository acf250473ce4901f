package productmeta

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxMicrodataText bounds element text taken as a price; longer text is a
// container rather than a value
const maxMicrodataText = 40

func (d *document) microdataPrices() []string {
	var out []string
	d.itemprops(func(props []string, s *goquery.Selection) {
		if !hasProp(props, "price", "lowprice") {
			return
		}
		if content, ok := s.Attr("content"); ok && strings.TrimSpace(content) != "" {
			out = append(out, strings.TrimSpace(content))
			return
		}
		if text := normalizeText(s.Text()); text != "" && len(text) <= maxMicrodataText {
			out = append(out, text)
		}
	})
	return out
}

func (d *document) microdataImages() []string {
	var out []string
	d.itemprops(func(props []string, s *goquery.Selection) {
		if !hasProp(props, "image") {
			return
		}
		for _, attr := range []string{"content", "src", "href", "data-src"} {
			if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
				out = append(out, strings.TrimSpace(v))
				return
			}
		}
	})
	return out
}

// itemprops calls fn for every element carrying an itemprop attribute, with
// the attribute split into lowercased property names
func (d *document) itemprops(fn func(props []string, s *goquery.Selection)) {
	d.dom.Find("[itemprop]").Each(func(_ int, s *goquery.Selection) {
		attr, _ := s.Attr("itemprop")
		fn(strings.Fields(strings.ToLower(attr)), s)
	})
}

func hasProp(props []string, want ...string) bool {
	for _, p := range props {
		for _, w := range want {
			if p == w {
				return true
			}
		}
	}
	return false
}
