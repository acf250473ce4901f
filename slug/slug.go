// Package slug turns URL path segments into readable words and product
// titles into storage-safe keys.
package slug

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLength is the longest slug Generate returns
const MaxLength = 80

var (
	nonSlugChars  = regexp.MustCompile(`[^a-z0-9-]+`)
	repeatedDash  = regexp.MustCompile(`-+`)
	pageExtension = regexp.MustCompile(`(?i)\.(html?|php|aspx?|jsp)$`)
)

// Generate creates a lowercase ASCII slug from s
func Generate(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ToLower(transliterate(s))
	s = strings.NewReplacer(" ", "-", "_", "-", ".", "-").Replace(s)
	s = nonSlugChars.ReplaceAllString(s, "")
	s = repeatedDash.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > MaxLength {
		s = strings.TrimRight(s[:MaxLength], "-")
	}
	return s
}

// ForProduct builds a slug for a product, using the title when it yields
// one and the page URL's host and last path segment otherwise
func ForProduct(title, pageURL string) string {
	if s := Generate(title); s != "" {
		return s
	}

	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	segments := PathSegments(u.Path)
	if len(segments) == 0 {
		return Generate(host)
	}
	return Generate(host + " " + segments[len(segments)-1])
}

// PathSegments splits a URL path into unescaped, non-empty segments with
// common page extensions removed
func PathSegments(path string) []string {
	var segments []string
	for _, part := range strings.Split(path, "/") {
		if unescaped, err := url.PathUnescape(part); err == nil {
			part = unescaped
		}
		part = strings.TrimSpace(pageExtension.ReplaceAllString(part, ""))
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}

// Humanize turns a slug-like segment ("produit-super-cool_2024") into
// title-cased words ("Produit Super Cool 2024")
func Humanize(segment string) string {
	words := strings.Fields(strings.NewReplacer("-", " ", "_", " ", "+", " ").Replace(segment))
	if len(words) == 0 {
		return ""
	}
	// A Caser is stateful, so one per call
	caser := cases.Title(language.Und)
	for i, w := range words {
		words[i] = caser.String(w)
	}
	return strings.Join(words, " ")
}

// transliterate strips diacritics: "Café" becomes "Cafe"
func transliterate(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

// isMn checks if a rune is a nonspacing mark (accents, diacritics)
func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}
