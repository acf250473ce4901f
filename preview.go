package productmeta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Preview is what a link preview provider knows about a page
type Preview struct {
	Title    string `json:"title"`
	ImageURL string `json:"image_url"`
}

// PreviewProvider is a generic page-preview capability consulted when the
// cascade leaves the title or the image empty. It fetches independently.
type PreviewProvider interface {
	Preview(ctx context.Context, pageURL string) (*Preview, error)
}

// HTMLPreviewProvider builds a preview from the page's own head tags, the way
// chat and social clients unfurl links
type HTMLPreviewProvider struct {
	fetcher PageFetcher
}

// NewHTMLPreviewProvider returns a provider that fetches pages with fetcher
func NewHTMLPreviewProvider(fetcher PageFetcher) *HTMLPreviewProvider {
	return &HTMLPreviewProvider{fetcher: fetcher}
}

func (p *HTMLPreviewProvider) Preview(ctx context.Context, pageURL string) (*Preview, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	raw, err := p.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPreviewUnavailable, err)
	}

	d := parseDocument(base, raw)
	preview := &Preview{}

	titles := d.socialTitles()
	titles = append(titles, normalizeText(d.dom.Find("title").First().Text()))
	titles = append(titles, normalizeText(d.dom.Find("h1").First().Text()))
	for _, t := range titles {
		if t != "" {
			preview.Title = t
			break
		}
	}

	images := d.socialImages()
	for _, rel := range []string{"image_src", "apple-touch-icon"} {
		d.dom.Find("link").Each(func(_ int, s *goquery.Selection) {
			if r, _ := s.Attr("rel"); strings.EqualFold(strings.TrimSpace(r), rel) {
				if href, ok := s.Attr("href"); ok {
					images = append(images, href)
				}
			}
		})
	}
	for _, img := range images {
		if resolved, err := ResolveImageURL(base, img); err == nil {
			preview.ImageURL = resolved
			break
		}
	}

	if preview.Title == "" && preview.ImageURL == "" {
		return nil, ErrPreviewUnavailable
	}
	return preview, nil
}

// ServicePreviewProvider queries a JSON link-preview API
type ServicePreviewProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewServicePreviewProvider returns a provider for the service at baseURL.
// The apiKey is sent as the "key" query parameter when set.
func NewServicePreviewProvider(client *http.Client, baseURL, apiKey string) *ServicePreviewProvider {
	return &ServicePreviewProvider{client: client, baseURL: baseURL, apiKey: apiKey}
}

// servicePreviewResponse accepts both flat and "data"-wrapped payloads
type servicePreviewResponse struct {
	Title string          `json:"title"`
	Image json.RawMessage `json:"image"`
	Data  *struct {
		Title string          `json:"title"`
		Image json.RawMessage `json:"image"`
	} `json:"data"`
}

func (p *ServicePreviewProvider) Preview(ctx context.Context, pageURL string) (*Preview, error) {
	endpoint, err := url.Parse(p.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid preview service URL: %w", err)
	}
	q := endpoint.Query()
	q.Set("url", pageURL)
	if p.apiKey != "" {
		q.Set("key", p.apiKey)
	}
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPreviewUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrPreviewUnavailable, resp.StatusCode)
	}

	var body servicePreviewResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrPreviewUnavailable, err)
	}

	preview := &Preview{
		Title:    normalizeText(body.Title),
		ImageURL: previewImageURL(body.Image),
	}
	if body.Data != nil {
		if preview.Title == "" {
			preview.Title = normalizeText(body.Data.Title)
		}
		if preview.ImageURL == "" {
			preview.ImageURL = previewImageURL(body.Data.Image)
		}
	}

	if preview.Title == "" && preview.ImageURL == "" {
		return nil, ErrPreviewUnavailable
	}
	return preview, nil
}

// previewImageURL reads an image given as a string or as {"url": ...}
func previewImageURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.URL)
	}
	return ""
}
