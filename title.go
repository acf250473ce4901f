package productmeta

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/docutag/productmeta/slug"
)

// titleSeparators are tried in this order; each cut happens at the first
// occurrence of the separator
var titleSeparators = []string{" - ", " | ", " • "}

// CleanTitle strips brand suffixes such as " - MaBoutique" or " | Shop".
// Cleaning an already clean title is a no-op.
func CleanTitle(title string) string {
	title = strings.Join(strings.Fields(title), " ")
	for _, sep := range titleSeparators {
		if idx := strings.Index(title, sep); idx > 0 {
			title = strings.TrimSpace(title[:idx])
		}
	}
	return title
}

// normalizeText unescapes entities and collapses whitespace
func normalizeText(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}

// MaxURLTitleLength is the longest title TitleFromURL returns, ellipsis included
const MaxURLTitleLength = 60

// knownRetailers maps a host label to the canned title used for that retailer
var knownRetailers = map[string]string{
	"amazon":     "Produit Amazon",
	"amzn":       "Produit Amazon",
	"fnac":       "Produit Fnac",
	"cdiscount":  "Produit Cdiscount",
	"darty":      "Produit Darty",
	"boulanger":  "Produit Boulanger",
	"ikea":       "Produit IKEA",
	"zalando":    "Produit Zalando",
	"etsy":       "Produit Etsy",
	"ebay":       "Produit eBay",
	"leboncoin":  "Produit Leboncoin",
	"decathlon":  "Produit Decathlon",
	"aliexpress": "Produit AliExpress",
}

// TitleFromURL derives a readable title from the URL alone. Known retailers
// get a canned label; otherwise the longest path segment longer than three
// characters is humanized; otherwise "Produit sur <domain>".
func TitleFromURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return "Produit"
	}

	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	for _, label := range strings.Split(host, ".") {
		if canned, ok := knownRetailers[label]; ok {
			return canned
		}
	}

	var best string
	for _, segment := range slug.PathSegments(u.Path) {
		n := utf8.RuneCountInString(segment)
		if n > 3 && n > utf8.RuneCountInString(best) {
			best = segment
		}
	}

	if title := slug.Humanize(best); title != "" {
		return truncateRunes(title, MaxURLTitleLength)
	}
	return fmt.Sprintf("Produit sur %s", host)
}

// truncateRunes shortens s to at most max runes, ending with "..." when cut
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max-3])) + "..."
}
