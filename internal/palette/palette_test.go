package palette

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// stripes builds a 1px-high image with the given run lengths of colors.
func stripes(runs ...struct {
	c color.RGBA
	n int
}) *image.RGBA {
	total := 0
	for _, r := range runs {
		total += r.n
	}
	img := image.NewRGBA(image.Rect(0, 0, total, 1))
	x := 0
	for _, r := range runs {
		for i := 0; i < r.n; i++ {
			img.Set(x, 0, r.c)
			x++
		}
	}
	return img
}

type run = struct {
	c color.RGBA
	n int
}

func TestHex(t *testing.T) {
	tests := []struct {
		c    rgb
		want string
	}{
		{rgb{200, 100, 50}, "#C86432"},
		{rgb{255, 255, 255}, "#FFFFFF"},
		{rgb{0, 0, 0}, "#000000"},
		{rgb{10.4, 10.6, 300}, "#0A0BFF"},
	}
	for _, tt := range tests {
		if got := tt.c.hex(); got != tt.want {
			t.Errorf("%v.hex() = %s, want %s", tt.c, got, tt.want)
		}
	}
}

func TestHSV(t *testing.T) {
	tests := []struct {
		name    string
		c       rgb
		h, s, v float64
	}{
		{"red", rgb{255, 0, 0}, 0, 255, 255},
		{"green", rgb{0, 255, 0}, 60, 255, 255},
		{"blue", rgb{0, 0, 255}, 120, 255, 255},
		{"gray", rgb{100, 100, 100}, 0, 0, 100},
		{"black", rgb{0, 0, 0}, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, s, v := tt.c.hsv()
			if h != tt.h || s != tt.s || v != tt.v {
				t.Errorf("hsv() = (%v, %v, %v), want (%v, %v, %v)", h, s, v, tt.h, tt.s, tt.v)
			}
		})
	}
}

func TestBrighten(t *testing.T) {
	tests := []struct {
		name string
		c    rgb
		want string
	}{
		{"bright color unchanged", rgb{200, 100, 50}, "#C86432"},
		{"exactly at floor unchanged", rgb{150, 10, 10}, "#960A0A"},
		{"dark color scaled to floor", rgb{10, 20, 30}, "#326496"},
		{"black becomes gray", rgb{0, 0, 0}, "#969696"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.c.brighten(MinValue)
			if got.hex() != tt.want {
				t.Errorf("brighten() = %s, want %s", got.hex(), tt.want)
			}
			if _, _, v := got.round().hsv(); v < MinValue {
				t.Errorf("value %v below floor", v)
			}
		})
	}
}

func TestPalette_SolidDark(t *testing.T) {
	colors, err := Palette(solid(8, 8, color.RGBA{20, 20, 20, 255}))
	if err != nil {
		t.Fatalf("Palette() error = %v", err)
	}
	if len(colors) != 1 {
		t.Fatalf("got %d colors, want 1 for a solid image", len(colors))
	}
	if colors[0] != "#969696" {
		t.Errorf("color = %s, want #969696", colors[0])
	}
}

func TestPalette_TwoColorsOrderedByPopulation(t *testing.T) {
	img := stripes(
		run{color.RGBA{0, 0, 200, 255}, 3},
		run{color.RGBA{200, 100, 50, 255}, 7},
	)
	colors, err := Palette(img)
	if err != nil {
		t.Fatalf("Palette() error = %v", err)
	}
	want := []string{"#C86432", "#0000C8"}
	if !reflect.DeepEqual(colors, want) {
		t.Errorf("Palette() = %v, want %v", colors, want)
	}
}

func TestPalette_TieBrokenByHSV(t *testing.T) {
	// Equal populations: blue (hue 120) sorts after orange (hue ~10).
	img := stripes(
		run{color.RGBA{0, 0, 200, 255}, 5},
		run{color.RGBA{200, 100, 50, 255}, 5},
	)
	for i := 0; i < 5; i++ {
		colors, err := Palette(img)
		if err != nil {
			t.Fatalf("Palette() error = %v", err)
		}
		if colors[0] != "#C86432" || colors[1] != "#0000C8" {
			t.Fatalf("Palette() = %v, want orange first", colors)
		}
	}
}

func TestPalette_KMeans(t *testing.T) {
	img := stripes(
		run{color.RGBA{200, 0, 0, 255}, 6},
		run{color.RGBA{0, 0, 200, 255}, 3},
		run{color.RGBA{0, 0, 180, 255}, 1},
	)
	colors, err := Palette(img)
	if err != nil {
		t.Fatalf("Palette() error = %v", err)
	}
	if len(colors) != 2 {
		t.Fatalf("got %d colors, want 2", len(colors))
	}
	if colors[0] != "#C80000" {
		t.Errorf("primary = %s, want #C80000", colors[0])
	}
	if colors[1] != "#0000C3" {
		t.Errorf("secondary = %s, want #0000C3", colors[1])
	}
	for _, c := range colors {
		if len(c) != 7 || !strings.HasPrefix(c, "#") || strings.ToUpper(c) != c {
			t.Errorf("color %q is not #RRGGBB", c)
		}
	}
}

func TestPalette_Downscales(t *testing.T) {
	img := solid(640, 320, color.RGBA{220, 40, 40, 255})
	if n := len(samplePixels(img)); n != 64*32 {
		t.Errorf("sampled %d pixels, want %d", n, 64*32)
	}
	colors, err := Palette(img)
	if err != nil {
		t.Fatalf("Palette() error = %v", err)
	}
	if len(colors) != 1 || colors[0] != "#DC2828" {
		t.Errorf("Palette() = %v, want [#DC2828]", colors)
	}
}

func TestPalette_Empty(t *testing.T) {
	if _, err := Palette(image.NewRGBA(image.Rect(0, 0, 0, 0))); err != ErrEmptyImage {
		t.Errorf("Palette() error = %v, want ErrEmptyImage", err)
	}
}

func TestExtract(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(4, 4, color.RGBA{200, 100, 50, 255})); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cover.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(buf.Bytes())
		case "/text":
			w.Write([]byte("not an image"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	e := NewExtractor()
	ctx := context.Background()

	colors, err := e.Extract(ctx, server.URL+"/cover.png")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !reflect.DeepEqual(colors, []string{"#C86432"}) {
		t.Errorf("Extract() = %v", colors)
	}

	for _, path := range []string{"/missing", "/text"} {
		if _, err := e.Extract(ctx, server.URL+path); err == nil {
			t.Errorf("Extract(%s) should fail", path)
		}
	}
	if _, err := e.Extract(ctx, ""); err == nil {
		t.Error("Extract(\"\") should fail")
	}
}
