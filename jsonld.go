package productmeta

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// jsonLDFields holds candidate values found in JSON-LD blocks, in document order
type jsonLDFields struct {
	names  []string
	prices []string
	images []string
}

// Pattern fallback for blocks that are not valid JSON. Retailers routinely ship
// JSON-LD with trailing commas, raw newlines in strings or template leftovers.
var (
	ldProductType = regexp.MustCompile(`"@type"\s*:\s*(?:\[[^\]]*?)?"(?:Product|ProductGroup|IndividualProduct)"`)
	ldName        = regexp.MustCompile(`"name"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	ldPrice       = regexp.MustCompile(`"(?:price|lowPrice)"\s*:\s*(?:"([^"]{1,40})"|(-?[0-9]+(?:\.[0-9]+)?))`)
	ldImage       = regexp.MustCompile(`"image"\s*:\s*(?:\[\s*)?(?:\{[^{}]*?"(?:url|contentUrl)"\s*:\s*)?"((?:[^"\\]|\\.)*)"`)
)

var productTypes = map[string]bool{
	"product":           true,
	"productgroup":      true,
	"individualproduct": true,
}

var offerTypes = map[string]bool{
	"offer":          true,
	"aggregateoffer": true,
}

// jsonLDTitles returns the names of Product nodes
func (d *document) jsonLDTitles() []string {
	var out []string
	for _, f := range d.jsonLDFields() {
		out = append(out, f.names...)
	}
	return out
}

func (d *document) jsonLDPrices() []string {
	var out []string
	for _, f := range d.jsonLDFields() {
		out = append(out, f.prices...)
	}
	return out
}

func (d *document) jsonLDImages() []string {
	var out []string
	for _, f := range d.jsonLDFields() {
		out = append(out, f.images...)
	}
	return out
}

func (d *document) jsonLDFields() []jsonLDFields {
	fields := make([]jsonLDFields, 0, len(d.jsonLD))
	for _, block := range d.jsonLD {
		fields = append(fields, scanJSONLD(block))
	}
	return fields
}

// scanJSONLD decodes block when it is valid JSON and falls back to pattern
// matching otherwise. A valid but entirely untyped block is also pattern
// matched, so its fields do not depend on whether the JSON happens to parse.
func scanJSONLD(block string) jsonLDFields {
	dec := json.NewDecoder(strings.NewReader(block))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return scanJSONLDPatterns(block)
	}

	w := &ldWalker{}
	w.walk(v, ldScope{})
	if !w.sawType {
		return scanJSONLDPatterns(block)
	}
	return w.fields
}

// ldScope is what a node inherits from its ancestors
type ldScope struct {
	inProduct bool // below a Product node
	priced    bool // an enclosing Product already yielded a price
	muted     bool // below a Product nested in a priced one, whose prices are ignored
}

type ldWalker struct {
	fields  jsonLDFields
	sawType bool
}

// walk visits nodes depth first. A node's own fields are collected before its
// children, and a node's offers before its other children, which follow in
// alphabetical key order. Products nested in a priced Product (related,
// similar or variant items) contribute names and images but no prices.
func (w *ldWalker) walk(v any, scope ldScope) {
	switch node := v.(type) {
	case []any:
		for _, item := range node {
			w.walk(item, scope)
		}
	case map[string]any:
		types := ldTypes(node["@type"])
		if len(types) > 0 {
			w.sawType = true
		}
		isProduct := anyType(types, productTypes)
		isOffer := anyType(types, offerTypes)
		if isProduct && scope.priced {
			scope.muted = true
		}

		if isProduct {
			if name, ok := node["name"].(string); ok {
				if name = normalizeText(name); name != "" {
					w.fields.names = append(w.fields.names, name)
				}
			}
			w.fields.images = append(w.fields.images, ldImageValues(node["image"])...)
		}

		before := len(w.fields.prices)
		if !scope.muted && (isOffer || isProduct || (scope.inProduct && len(types) == 0)) {
			for _, key := range []string{"price", "lowPrice"} {
				if p := ldScalar(node[key]); p != "" {
					w.fields.prices = append(w.fields.prices, p)
				}
			}
		}

		child := scope
		child.inProduct = scope.inProduct || isProduct
		if offers, ok := node["offers"]; ok {
			w.walk(offers, child)
		}
		if isProduct && !scope.muted && len(w.fields.prices) > before {
			child.priced = true
		}

		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			switch k {
			case "@type", "@context", "name", "price", "lowPrice", "image", "offers":
				continue
			}
			w.walk(node[k], child)
		}
	}
}

func ldTypes(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		var out []string
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func anyType(types []string, set map[string]bool) bool {
	for _, t := range types {
		t = strings.TrimPrefix(strings.TrimPrefix(t, "http://schema.org/"), "https://schema.org/")
		if set[strings.ToLower(t)] {
			return true
		}
	}
	return false
}

// ldScalar renders a string or number field
func ldScalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	}
	return ""
}

// ldImageValues accepts a URL string, an ImageObject, or an array of either
func ldImageValues(v any) []string {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, ldImageValues(item)...)
		}
		return out
	case map[string]any:
		for _, key := range []string{"url", "contentUrl"} {
			if s, ok := t[key].(string); ok && strings.TrimSpace(s) != "" {
				return []string{strings.TrimSpace(s)}
			}
		}
	}
	return nil
}

func scanJSONLDPatterns(block string) jsonLDFields {
	var f jsonLDFields

	// The name must follow a Product type marker
	if loc := ldProductType.FindStringIndex(block); loc != nil {
		if m := ldName.FindStringSubmatch(block[loc[1]:]); m != nil {
			if name := normalizeText(unescapeJSONString(m[1])); name != "" {
				f.names = append(f.names, name)
			}
		}
	}

	for _, m := range ldPrice.FindAllStringSubmatch(block, -1) {
		if m[1] != "" {
			f.prices = append(f.prices, m[1])
		} else if m[2] != "" {
			f.prices = append(f.prices, m[2])
		}
	}

	for _, m := range ldImage.FindAllStringSubmatch(block, -1) {
		if img := strings.TrimSpace(unescapeJSONString(m[1])); img != "" {
			f.images = append(f.images, img)
		}
	}

	return f
}

// unescapeJSONString decodes JSON escapes such as \/ and \u00e9. Invalid
// escapes leave the text as it was.
func unescapeJSONString(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}
