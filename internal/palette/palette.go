// Package palette extracts dominant cover-art colors with k-means clustering.
package palette

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// Clusters is the fixed number of colors extracted per cover.
	Clusters = 2

	// maxSide bounds the downscaled image; covers are 640px and the palette doesn't need them.
	maxSide = 64

	fetchTimeout = 20 * time.Second
)

// ErrEmptyImage is returned for images without pixels.
var ErrEmptyImage = errors.New("image has no pixels")

// Extractor fetches cover images and computes their palettes.
type Extractor struct {
	http *resty.Client
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithHTTPClient replaces the underlying resty client.
func WithHTTPClient(c *resty.Client) ExtractorOption {
	return func(e *Extractor) { e.http = c }
}

// NewExtractor creates an Extractor with standard TLS verification and a request timeout.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		http: resty.New().SetTimeout(fetchTimeout),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract downloads the image at url and returns its palette as #RRGGBB strings,
// most common color first.
func (e *Extractor) Extract(ctx context.Context, url string) ([]string, error) {
	if url == "" {
		return nil, errors.New("no image url")
	}
	resp, err := e.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("fetching %s: status %d", url, resp.StatusCode())
	}

	img, format, err := image.Decode(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", url, err)
	}
	colors, err := Palette(img)
	if err != nil {
		return nil, fmt.Errorf("%s image %s: %w", format, url, err)
	}
	return colors, nil
}

// swatch is one cluster of the palette.
type swatch struct {
	color    rgb
	fraction float64
}

// Palette clusters the pixels of img into at most Clusters colors. Colors are ordered by
// population, ties broken by HSV, and brightened to MinValue.
func Palette(img image.Image) ([]string, error) {
	pixels := samplePixels(img)
	if len(pixels) == 0 {
		return nil, ErrEmptyImage
	}

	swatches, err := cluster(pixels, Clusters)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(swatches, func(i, j int) bool {
		if swatches[i].fraction != swatches[j].fraction {
			return swatches[i].fraction > swatches[j].fraction
		}
		return lessHSV(swatches[i].color, swatches[j].color)
	})

	out := make([]string, len(swatches))
	for i, s := range swatches {
		out[i] = s.color.round().brighten(MinValue).hex()
	}
	return out, nil
}

// samplePixels downscales img and returns its pixels.
func samplePixels(img image.Image) []rgb {
	b := img.Bounds()
	if b.Empty() {
		return nil
	}

	w, h := b.Dx(), b.Dy()
	if w > maxSide || h > maxSide {
		scale := float64(maxSide) / float64(max(w, h))
		w = max(1, int(float64(w)*scale))
		h = max(1, int(float64(h)*scale))
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		img, b = dst, dst.Bounds()
	}

	pixels := make([]rgb, 0, w*h)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			pixels = append(pixels, rgb{float64(r >> 8), float64(g >> 8), float64(bl >> 8)})
		}
	}
	return pixels
}

// cluster groups pixels into swatches. With no more distinct colors than k the
// distinct colors are the clusters; otherwise k-means decides. Empty clusters are dropped.
func cluster(pixels []rgb, k int) ([]swatch, error) {
	total := float64(len(pixels))

	counts := make(map[rgb]int)
	for _, p := range pixels {
		counts[p]++
	}
	if len(counts) <= k {
		out := make([]swatch, 0, len(counts))
		for c, n := range counts {
			out = append(out, swatch{color: c, fraction: float64(n) / total})
		}
		return out, nil
	}

	// k-means seeds its centers in the unit cube, so cluster on normalized channels.
	obs := make(clusters.Observations, len(pixels))
	for i, p := range pixels {
		obs[i] = clusters.Coordinates{p.r / 255, p.g / 255, p.b / 255}
	}

	km := kmeans.New()
	result, err := km.Partition(obs, k)
	if err != nil {
		return nil, fmt.Errorf("k-means: %w", err)
	}

	out := make([]swatch, 0, len(result))
	for _, c := range result {
		if len(c.Observations) == 0 {
			continue
		}
		out = append(out, swatch{
			color:    rgb{c.Center[0] * 255, c.Center[1] * 255, c.Center[2] * 255},
			fraction: float64(len(c.Observations)) / total,
		})
	}
	return out, nil
}
