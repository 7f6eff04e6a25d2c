// Package imageformat defines the fixed sets of image formats the converter
// accepts as input and can produce as output.
package imageformat

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies an image container format.
type Format int

const (
	// Unknown is the zero value and never a valid input or output.
	Unknown Format = iota
	// WebP is the only supported source format.
	WebP
	// PNG is a supported target format.
	PNG
	// JPG is a supported target format.
	JPG
)

// String returns the lowercase configuration name of the format.
func (f Format) String() string {
	switch f {
	case WebP:
		return "webp"
	case PNG:
		return "png"
	case JPG:
		return "jpg"
	default:
		return "unknown"
	}
}

// Extension returns the canonical file extension including the leading dot.
func (f Format) Extension() string {
	if f == Unknown {
		return ""
	}
	return "." + f.String()
}

// Glob returns the shell pattern matching file names of this format.
func (f Format) Glob() string {
	return "*" + f.Extension()
}

var (
	inputs  = []Format{WebP}
	outputs = []Format{PNG, JPG}
)

// Inputs returns the formats the converter reads.
func Inputs() []Format {
	return append([]Format(nil), inputs...)
}

// Outputs returns the formats the converter writes.
func Outputs() []Format {
	return append([]Format(nil), outputs...)
}

// IsInput reports whether f is a supported source format.
func (f Format) IsInput() bool {
	return contains(inputs, f)
}

// IsOutput reports whether f is a supported target format.
func (f Format) IsOutput() bool {
	return contains(outputs, f)
}

func contains(set []Format, f Format) bool {
	for _, candidate := range set {
		if candidate == f {
			return true
		}
	}
	return false
}

// Parse resolves a configuration name ("png", "JPG", "jpeg", ...) to a Format.
func Parse(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "webp":
		return WebP, nil
	case "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPG, nil
	default:
		return Unknown, fmt.Errorf("unknown image format %q", name)
	}
}

// ParseOutput resolves name and rejects formats outside the output set.
func ParseOutput(name string) (Format, error) {
	f, err := Parse(name)
	if err != nil {
		return Unknown, err
	}
	if !f.IsOutput() {
		return Unknown, fmt.Errorf("format %q cannot be used as output (supported: %s)", name, Names(outputs))
	}
	return f, nil
}

// FromPath returns the input format matching the path's final extension,
// compared case-insensitively. It returns Unknown when nothing matches.
func FromPath(path string) Format {
	ext := strings.ToLower(filepath.Ext(path))
	for _, f := range inputs {
		if ext == f.Extension() {
			return f
		}
	}
	return Unknown
}

// Names joins the configuration names of formats with ", ".
func Names(formats []Format) string {
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = f.String()
	}
	return strings.Join(names, ", ")
}
