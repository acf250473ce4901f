package productmeta

// Open Graph and Twitter Card keys, highest priority first
var (
	socialTitleKeys = []string{"og:title", "twitter:title"}
	socialImageKeys = []string{"og:image", "og:image:secure_url", "og:image:url", "twitter:image", "twitter:image:src"}
	socialPriceKeys = []string{"og:price:amount", "product:price:amount", "product:sale_price:amount"}
)

func (d *document) socialTitles() []string {
	var out []string
	for _, v := range d.metaValues(socialTitleKeys...) {
		if t := normalizeText(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (d *document) socialImages() []string {
	return d.metaValues(socialImageKeys...)
}

func (d *document) socialPrices() []string {
	return d.metaValues(socialPriceKeys...)
}
