package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/steveyegge/autowebp/internal/imageformat"
)

// tinyLossless is a 1x1 lossless WebP image.
const tinyLossless = "UklGRhoAAABXRUJQVlA4TA0AAAAvAAAAEAcQERGIiP4HAA=="

func sample(t *testing.T) []byte {
	t.Helper()
	b, err := base64.StdEncoding.DecodeString(tinyLossless)
	if err != nil {
		t.Fatalf("decode sample: %v", err)
	}
	return b
}

func TestWebP_EncodePNG(t *testing.T) {
	c := NewWebP(DefaultOptions())

	out, err := c.Encode(sample(t), imageformat.PNG)
	if err != nil {
		t.Fatalf("Encode(png) failed: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 1 || b.Dy() != 1 {
		t.Errorf("bounds = %v, want 1x1", b)
	}
}

func TestWebP_EncodeJPG(t *testing.T) {
	c := NewWebP(Options{JPEGQuality: 75})

	out, err := c.Encode(sample(t), imageformat.JPG)
	if err != nil {
		t.Fatalf("Encode(jpg) failed: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(out)); err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
}

func TestWebP_Errors(t *testing.T) {
	c := NewWebP(DefaultOptions())

	_, err := c.Encode([]byte("definitely not a webp"), imageformat.PNG)
	if !errors.Is(err, ErrDecode) {
		t.Errorf("malformed input: got %v, want ErrDecode", err)
	}

	_, err = c.Encode(sample(t), imageformat.WebP)
	if !errors.Is(err, ErrUnsupportedTarget) {
		t.Errorf("webp target: got %v, want ErrUnsupportedTarget", err)
	}
}

func TestNewWebP_ClampsQuality(t *testing.T) {
	if got := NewWebP(Options{JPEGQuality: 0}).opts.JPEGQuality; got != 1 {
		t.Errorf("quality 0 clamped to %d, want 1", got)
	}
	if got := NewWebP(Options{JPEGQuality: 250}).opts.JPEGQuality; got != 100 {
		t.Errorf("quality 250 clamped to %d, want 100", got)
	}
}

func TestParsePNGCompression(t *testing.T) {
	tests := []struct {
		name    string
		want    png.CompressionLevel
		wantErr bool
	}{
		{"", png.NoCompression, false},
		{"none", png.NoCompression, false},
		{"Fast", png.BestSpeed, false},
		{"default", png.DefaultCompression, false},
		{"best", png.BestCompression, false},
		{"max", 0, true},
	}

	for _, tt := range tests {
		got, err := ParsePNGCompression(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePNGCompression(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePNGCompression(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFunc(t *testing.T) {
	var calls int
	c := Func(func(src []byte, target imageformat.Format) ([]byte, error) {
		calls++
		return append([]byte(target.String()+":"), src...), nil
	})

	out, err := c.Encode([]byte("x"), imageformat.JPG)
	if err != nil || string(out) != "jpg:x" || calls != 1 {
		t.Errorf("Func.Encode = %q, %v (calls=%d)", out, err, calls)
	}
}
