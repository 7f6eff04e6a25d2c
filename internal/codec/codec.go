// Package codec converts encoded image bytes between the supported formats.
//
// The converter treats pixel decoding and encoding as an opaque capability:
//
//	c := codec.NewWebP(codec.DefaultOptions())
//	out, err := c.Encode(webpBytes, imageformat.PNG)
//
// Implementations are stateless and safe for concurrent use.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/webp"

	"github.com/steveyegge/autowebp/internal/imageformat"
)

var (
	// ErrDecode is returned when the source bytes are not a valid image
	// of the expected source format.
	ErrDecode = errors.New("decode source image")

	// ErrEncode is returned when the decoded image cannot be encoded
	// into the target format.
	ErrEncode = errors.New("encode target image")

	// ErrUnsupportedTarget is returned for targets outside the output set.
	ErrUnsupportedTarget = errors.New("unsupported target format")
)

// Codec produces target-format bytes from source-format bytes.
type Codec interface {
	Encode(src []byte, target imageformat.Format) ([]byte, error)
}

// Func adapts an ordinary function to the Codec interface.
type Func func(src []byte, target imageformat.Format) ([]byte, error)

// Encode calls f(src, target).
func (f Func) Encode(src []byte, target imageformat.Format) ([]byte, error) {
	return f(src, target)
}

// Options tunes the encoders.
type Options struct {
	// JPEGQuality ranges from 1 to 100 inclusive.
	JPEGQuality int
	// PNGCompression selects the zlib effort used for PNG output.
	PNGCompression png.CompressionLevel
}

// DefaultOptions returns uncompressed PNG output and JPEG quality 90.
func DefaultOptions() Options {
	return Options{
		JPEGQuality:    90,
		PNGCompression: png.NoCompression,
	}
}

// ParsePNGCompression maps a configuration name to a png.CompressionLevel.
// Accepted names: none, fast, default, best.
func ParsePNGCompression(name string) (png.CompressionLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "":
		return png.NoCompression, nil
	case "fast":
		return png.BestSpeed, nil
	case "default":
		return png.DefaultCompression, nil
	case "best":
		return png.BestCompression, nil
	default:
		return 0, fmt.Errorf("unknown png compression %q (want none, fast, default or best)", name)
	}
}

// WebP decodes WebP sources and re-encodes them as PNG or JPG.
type WebP struct {
	opts Options
}

// NewWebP returns a WebP codec. Out-of-range JPEG quality is clamped.
func NewWebP(opts Options) *WebP {
	if opts.JPEGQuality < 1 {
		opts.JPEGQuality = 1
	}
	if opts.JPEGQuality > 100 {
		opts.JPEGQuality = 100
	}
	return &WebP{opts: opts}
}

// Encode implements Codec.
func (c *WebP) Encode(src []byte, target imageformat.Format) ([]byte, error) {
	if !target.IsOutput() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTarget, target)
	}

	img, err := webp.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	var buf bytes.Buffer
	if err := c.encode(&buf, img, target); err != nil {
		return nil, fmt.Errorf("%w as %s: %w", ErrEncode, target, err)
	}
	return buf.Bytes(), nil
}

func (c *WebP) encode(buf *bytes.Buffer, img image.Image, target imageformat.Format) error {
	switch target {
	case imageformat.PNG:
		enc := png.Encoder{CompressionLevel: c.opts.PNGCompression}
		return enc.Encode(buf, img)
	case imageformat.JPG:
		return jpeg.Encode(buf, img, &jpeg.Options{Quality: c.opts.JPEGQuality})
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedTarget, target)
	}
}
