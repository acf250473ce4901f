package productmeta

import (
	"github.com/docutag/productmeta/models"
)

// strategy yields raw candidates for one field from one source. Candidates
// are consumed in order; the first usable one wins.
type strategy struct {
	source    models.Source
	extract   func(d *document) []string
	heuristic bool // evaluated in the fallback stage
}

// Strategy lists are in priority order. A later entry is consulted only when
// every candidate of the earlier ones was missing or rejected.
var (
	titleStrategies = []strategy{
		{source: models.SourceJSONLD, extract: (*document).jsonLDTitles},
		{source: models.SourceOpenGraph, extract: (*document).socialTitles},
	}

	priceStrategies = []strategy{
		{source: models.SourceJSONLD, extract: (*document).jsonLDPrices},
		{source: models.SourceOpenGraph, extract: (*document).socialPrices},
		{source: models.SourceMicrodata, extract: (*document).microdataPrices},
		{source: models.SourceHTML, extract: (*document).heuristicPrices, heuristic: true},
	}

	imageStrategies = []strategy{
		{source: models.SourceJSONLD, extract: (*document).jsonLDImages},
		{source: models.SourceOpenGraph, extract: (*document).socialImages},
		{source: models.SourceMicrodata, extract: (*document).microdataImages},
		{source: models.SourceHTML, extract: func(d *document) []string {
			return d.htmlImageCandidates(maxHTMLImageCandidates)
		}, heuristic: true},
	}
)

// maxHTMLImageCandidates bounds downloads attempted from bare <img> tags
const maxHTMLImageCandidates = 5

// stage is a step of the extraction state machine
type stage int

const (
	stageFetching stage = iota
	stageExtractingStructured
	stageExtractingFallbacks
	stageResolvingImage
	stageFinalizing
	stageDone
)

func (s stage) String() string {
	switch s {
	case stageFetching:
		return "fetching"
	case stageExtractingStructured:
		return "extracting_structured"
	case stageExtractingFallbacks:
		return "extracting_fallbacks"
	case stageResolvingImage:
		return "resolving_image"
	case stageFinalizing:
		return "finalizing"
	case stageDone:
		return "done"
	}
	return "unknown"
}
