package productmeta

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageResolver turns a candidate image reference into a downsized JPEG
type ImageResolver struct {
	client       *http.Client
	userAgent    string
	timeout      time.Duration
	maxBytes     int64
	maxDimension int
	maxPixels    int64
	quality      int
}

// NewImageResolver builds a resolver from the image settings in config
func NewImageResolver(client *http.Client, config Config) *ImageResolver {
	return &ImageResolver{
		client:       client,
		userAgent:    config.UserAgent,
		timeout:      config.ImageTimeout,
		maxBytes:     config.MaxImageSizeBytes,
		maxDimension: config.MaxImageDimension,
		maxPixels:    config.MaxImagePixels,
		quality:      config.ImageQuality,
	}
}

// Resolve resolves candidate against pageURL, downloads it and re-encodes it.
// It returns the absolute URL used and the JPEG bytes.
func (r *ImageResolver) Resolve(ctx context.Context, pageURL *url.URL, candidate string) (string, []byte, error) {
	imageURL, err := ResolveImageURL(pageURL, candidate)
	if err != nil {
		return "", nil, err
	}

	data, err := r.Download(ctx, imageURL)
	if err != nil {
		return imageURL, nil, err
	}

	out, err := Downsize(data, r.maxDimension, r.quality, r.maxPixels)
	if err != nil {
		return imageURL, nil, err
	}
	return imageURL, out, nil
}

// ResolveImageURL makes candidate absolute. Absolute URLs are returned
// unchanged; protocol-relative, root-relative and relative forms are resolved
// against pageURL. Only http and https results are accepted.
func ResolveImageURL(pageURL *url.URL, candidate string) (string, error) {
	candidate = strings.TrimSpace(html.UnescapeString(candidate))
	if candidate == "" {
		return "", fmt.Errorf("%w: empty image reference", ErrNoImage)
	}
	if strings.HasPrefix(strings.ToLower(candidate), "data:") {
		return "", fmt.Errorf("%w: inline data URI", ErrNoImage)
	}

	ref, err := url.Parse(candidate)
	if err != nil {
		return "", fmt.Errorf("%w: malformed image URL %q: %v", ErrNoImage, candidate, err)
	}

	if ref.IsAbs() {
		if ref.Scheme != "http" && ref.Scheme != "https" {
			return "", fmt.Errorf("%w: unsupported scheme %q", ErrNoImage, ref.Scheme)
		}
		return candidate, nil
	}

	if pageURL == nil {
		return "", fmt.Errorf("%w: relative image URL without page URL", ErrNoImage)
	}
	return pageURL.ResolveReference(ref).String(), nil
}

// Download fetches imageURL within the per-image timeout and size cap
func (r *ImageResolver) Download(ctx context.Context, imageURL string) ([]byte, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/*,*/*;q=0.8")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "text/") {
		return nil, fmt.Errorf("not an image: content type %s", ct)
	}

	if r.maxBytes > 0 && resp.ContentLength > r.maxBytes {
		return nil, fmt.Errorf("image too large: %d bytes (max: %d)", resp.ContentLength, r.maxBytes)
	}

	var body io.Reader = resp.Body
	if r.maxBytes > 0 {
		body = io.LimitReader(resp.Body, r.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	if r.maxBytes > 0 && int64(len(data)) > r.maxBytes {
		return nil, fmt.Errorf("image too large: exceeds %d bytes", r.maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image body")
	}

	return data, nil
}

// Downsize decodes data, applies EXIF orientation, scales the longest side
// down to maxDimension (never up) and re-encodes as JPEG at quality.
// Transparent areas are flattened onto white. Images declaring more than
// maxPixels pixels are rejected before decoding; maxPixels <= 0 disables
// the check.
func Downsize(data []byte, maxDimension, quality int, maxPixels int64) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrNoImage, cfg.Width, cfg.Height, maxPixels)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	src = applyOrientation(src, exifOrientation(data))

	b := src.Bounds()
	w, h := targetSize(b.Dx(), b.Dy(), maxDimension)
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("failed to decode image: zero dimensions")
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}

	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// targetSize scales (w, h) so the longer side is at most limit, keeping the
// aspect ratio
func targetSize(w, h, limit int) (int, int) {
	if limit <= 0 || (w <= limit && h <= limit) {
		return w, h
	}
	if w >= h {
		return limit, max(1, h*limit/w)
	}
	return max(1, w*limit/h), limit
}

// exifOrientation returns the EXIF orientation tag, or 1 when absent
func exifOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return o
}

// applyOrientation returns src transformed so that it displays upright for
// the given EXIF orientation (2-8); other values return src as is
func applyOrientation(src image.Image, orientation int) image.Image {
	if orientation < 2 || orientation > 8 {
		return src
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dw, dh := w, h
	if orientation >= 5 {
		dw, dh = h, w
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch orientation {
			case 2: // mirror horizontal
				dx, dy = w-1-x, y
			case 3: // rotate 180
				dx, dy = w-1-x, h-1-y
			case 4: // mirror vertical
				dx, dy = x, h-1-y
			case 5: // transpose
				dx, dy = y, x
			case 6: // rotate 90 clockwise
				dx, dy = h-1-y, x
			case 7: // transverse
				dx, dy = h-1-y, w-1-x
			case 8: // rotate 90 counter-clockwise
				dx, dy = y, w-1-x
			}
			dst.Set(dx, dy, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}
