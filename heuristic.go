package productmeta

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// priceRule is one pattern of the last-resort price cascade. The first
// submatch is the raw price token.
type priceRule struct {
	name    string
	pattern *regexp.Regexp
}

// gap matches whitespace as it appears in raw markup, entities included
const gap = `(?:\s|&nbsp;|&#160;|&#xa0;|\x{00a0}|\x{202f})*`

// amount matches "1 234,56", "1.234,56", "49.99" and "49"
const amount = `(\d+(?:(?:\s|&nbsp;|&#160;|\x{00a0}|\x{202f}|[.,])\d{3})*(?:[.,]\d{1,2})?)`

const euro = `(?:€|&euro;|&#8364;|&#x20ac;)`

// priceRules run top to bottom, most specific first. Generic currency
// patterns come last because they match the most unrelated numbers.
var priceRules = []priceRule{
	{"amazon-offscreen", regexp.MustCompile(`<span[^>]*class="[^"]*\ba-offscreen\b[^"]*"[^>]*>\s*([^<]{1,40})</span>`)},
	{"amazon-priceblock", regexp.MustCompile(`id="(?:priceblock_ourprice|priceblock_dealprice|priceblock_saleprice|corePrice_feature_div)"[^>]*>\s*([^<]{1,40})<`)},
	{"fnac-pricebox", regexp.MustCompile(`class="[^"]*\b(?:f-priceBox-price|userPrice)\b[^"]*"[^>]*>\s*([^<]{1,40})<`)},
	{"price-container", regexp.MustCompile(`(?i)<[a-z][a-z0-9]*\s[^>]*(?:class|id)="[^"]*price[^"]*"[^>]*>` + gap + `([^<]{0,10}\d[^<]{0,30})<`)},
	{"data-price", regexp.MustCompile(`(?i)\bdata-(?:price|price-amount|product-price)="([^"]{1,40})"`)},
	{"euro-prefix", regexp.MustCompile(euro + gap + amount)},
	{"euro-suffix", regexp.MustCompile(amount + gap + euro)},
	{"eur-code", regexp.MustCompile(amount + gap + `EUR\b`)},
}

// maxMatchesPerRule bounds how many matches of one rule are offered to the
// normalizer before moving on
const maxMatchesPerRule = 20

// heuristicPrices returns candidates rule by rule, each rule's matches in
// document order
func (d *document) heuristicPrices() []string {
	var out []string
	for _, rule := range priceRules {
		for _, m := range rule.pattern.FindAllStringSubmatch(d.raw, maxMatchesPerRule) {
			if token := strings.TrimSpace(m[1]); token != "" {
				out = append(out, token)
			}
		}
	}
	return out
}

// imageSkipKeywords mark images that are page chrome rather than product shots
var imageSkipKeywords = []string{
	"placeholder",
	"temp",
	"temporary",
	// UI components
	"icon",
	"logo",
	"button",
	"sprite",
	"avatar",
	"badge",
	"flag",
	// Tracking pixels and spacers
	"1x1",
	"pixel",
	"tracking",
	"spacer",
	"blank",
	"transparent",
	// Social media and payment widgets
	"share",
	"facebook",
	"twitter",
	"social",
	"payment",
	// Ads and promotional
	"ad-banner",
	"advertisement",
	"promo",
	// Common junk patterns
	"spinner",
	"loader",
	"loading",
}

// shouldSkipImage reports whether an <img> candidate looks like a placeholder,
// UI component or tracking pixel
func shouldSkipImage(imageURL string) bool {
	lower := strings.ToLower(imageURL)
	if strings.HasPrefix(lower, "data:") || strings.HasSuffix(strings.SplitN(lower, "?", 2)[0], ".svg") {
		return true
	}
	for _, keyword := range imageSkipKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// htmlImageCandidates returns <img> sources in document order, lazy-loading
// attributes first, junk filtered out
func (d *document) htmlImageCandidates(limit int) []string {
	var out []string
	d.dom.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if src := imgSource(s); src != "" && !shouldSkipImage(src) {
			out = append(out, src)
		}
		return limit <= 0 || len(out) < limit
	})
	return out
}

func imgSource(s *goquery.Selection) string {
	for _, attr := range []string{"data-old-hires", "data-zoom-image", "data-src", "data-lazy-src", "data-original", "src"} {
		if v, ok := s.Attr(attr); ok {
			if v = strings.TrimSpace(v); v != "" && !strings.HasPrefix(strings.ToLower(v), "data:") {
				return v
			}
		}
	}
	if srcset, ok := s.Attr("srcset"); ok {
		return firstSrcsetURL(srcset)
	}
	return ""
}

// firstSrcsetURL returns the URL of the first srcset entry
func firstSrcsetURL(srcset string) string {
	first := strings.TrimSpace(strings.SplitN(srcset, ",", 2)[0])
	if fields := strings.Fields(first); len(fields) > 0 {
		return fields[0]
	}
	return ""
}
