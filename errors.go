package productmeta

import "errors"

var (
	// ErrInvalidURL is returned when the input URL is not an absolute http(s) URL.
	// It is the only failure FetchMetadata reports to its caller.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrNoContent is returned by a page fetcher when no usable HTML was obtained
	ErrNoContent = errors.New("no content")

	// ErrUnparseablePrice is returned when a price token contains no number
	ErrUnparseablePrice = errors.New("unparseable price")

	// ErrPriceOutOfRange is returned when a price falls outside the plausibility range
	ErrPriceOutOfRange = errors.New("price outside plausible range")

	// ErrNoImage is returned when no image candidate could be downloaded and decoded
	ErrNoImage = errors.New("no usable image")

	// ErrPreviewUnavailable is returned when the link preview provider yields nothing
	ErrPreviewUnavailable = errors.New("link preview unavailable")

	// ErrRenderUnavailable is returned when no rendering backend is configured
	ErrRenderUnavailable = errors.New("rendering backend unavailable")
)
