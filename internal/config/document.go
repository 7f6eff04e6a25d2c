package config

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Document mirrors the sectioned layout of the settings file, so the
// JSON rendering of a Document is itself a valid settings file.
type Document struct {
	AutoWebpConverter ConverterSection `json:"AutoWebpConverter" yaml:"AutoWebpConverter" toml:"AutoWebpConverter"`
	Logging           LoggingSection   `json:"Logging" yaml:"Logging" toml:"Logging"`
}

// ConverterSection is the AutoWebpConverter section.
type ConverterSection struct {
	MonitorPath           string `json:"MonitorPath" yaml:"MonitorPath" toml:"MonitorPath"`
	IncludeSubdirectories bool   `json:"IncludeSubdirectories" yaml:"IncludeSubdirectories" toml:"IncludeSubdirectories"`
	OutputFormat          string `json:"OutputFormat" yaml:"OutputFormat" toml:"OutputFormat"`
	MaximumTries          int    `json:"MaximumTries" yaml:"MaximumTries" toml:"MaximumTries"`
	RetryDelay            string `json:"RetryDelay" yaml:"RetryDelay" toml:"RetryDelay"`
	QueueSize             int    `json:"QueueSize" yaml:"QueueSize" toml:"QueueSize"`
	FailurePolicy         string `json:"FailurePolicy" yaml:"FailurePolicy" toml:"FailurePolicy"`
	JpegQuality           int    `json:"JpegQuality" yaml:"JpegQuality" toml:"JpegQuality"`
	PngCompression        string `json:"PngCompression" yaml:"PngCompression" toml:"PngCompression"`
	LockFile              string `json:"LockFile,omitempty" yaml:"LockFile,omitempty" toml:"LockFile,omitempty"`
}

// LoggingSection is the Logging section.
type LoggingSection struct {
	Level      string `json:"Level" yaml:"Level" toml:"Level"`
	Format     string `json:"Format" yaml:"Format" toml:"Format"`
	File       string `json:"File,omitempty" yaml:"File,omitempty" toml:"File,omitempty"`
	MaxSizeMB  int    `json:"MaxSizeMB" yaml:"MaxSizeMB" toml:"MaxSizeMB"`
	MaxBackups int    `json:"MaxBackups" yaml:"MaxBackups" toml:"MaxBackups"`
	MaxAgeDays int    `json:"MaxAgeDays" yaml:"MaxAgeDays" toml:"MaxAgeDays"`
	Compress   bool   `json:"Compress" yaml:"Compress" toml:"Compress"`
}

// Document returns s in settings-file layout.
func (s Settings) Document() Document {
	return Document{
		AutoWebpConverter: ConverterSection{
			MonitorPath:           s.MonitorPath,
			IncludeSubdirectories: s.IncludeSubdirectories,
			OutputFormat:          s.OutputFormat,
			MaximumTries:          s.MaximumTries,
			RetryDelay:            s.RetryDelay.String(),
			QueueSize:             s.QueueSize,
			FailurePolicy:         s.FailurePolicy,
			JpegQuality:           s.JPEGQuality,
			PngCompression:        s.PNGCompression,
			LockFile:              s.LockFile,
		},
		Logging: LoggingSection{
			Level:      s.Log.Level,
			Format:     s.Log.Format,
			File:       s.Log.File,
			MaxSizeMB:  s.Log.MaxSizeMB,
			MaxBackups: s.Log.MaxBackups,
			MaxAgeDays: s.Log.MaxAgeDays,
			Compress:   s.Log.Compress,
		},
	}
}

// Formats lists the encodings accepted by Encode.
var Formats = []string{"json", "yaml", "toml"}

// Encode writes d to w as json, yaml or toml.
func (d Document) Encode(w io.Writer, format string) error {
	switch strings.ToLower(format) {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(d); err != nil {
			return err
		}
		return enc.Close()
	case "toml":
		return toml.NewEncoder(w).Encode(d)
	default:
		return fmt.Errorf("unsupported format %q (want %s)", format, strings.Join(Formats, ", "))
	}
}
