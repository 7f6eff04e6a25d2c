// Package logging builds the structured logger shared by every component.
//
// Console output goes to stderr as human-readable text when stderr is a
// terminal and as JSON otherwise, so service managers capture parseable
// lines. An optional log file is rotated by lumberjack and always JSON.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options describes logger construction parameters.
type Options struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string
	// Format is auto, text or json. Empty means auto.
	Format string

	// File enables the rotating file sink when non-empty.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Console receives console output. Nil means os.Stderr.
	Console io.Writer
}

// New constructs a slog logger from opts. The returned io.Closer releases
// the log file and must be closed on shutdown.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var consoleHandler slog.Handler
	switch format := resolveFormat(opts.Format, console); format {
	case "text":
		consoleHandler = slog.NewTextHandler(console, handlerOpts)
	case "json":
		consoleHandler = slog.NewJSONHandler(console, handlerOpts)
	default:
		return nil, nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	if opts.File == "" {
		return slog.New(consoleHandler), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure log directory: %w", err)
	}

	file := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	fileHandler := slog.NewJSONHandler(file, handlerOpts)

	return slog.New(newFanoutHandler(consoleHandler, fileHandler)), file, nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log level: unsupported value %q", name)
	}
}

// ValidFormat reports whether name is an accepted console format.
func ValidFormat(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto", "text", "json":
		return true
	}
	return false
}

func resolveFormat(name string, console io.Writer) string {
	format := strings.ToLower(strings.TrimSpace(name))
	if format != "" && format != "auto" {
		return format
	}
	if f, ok := console.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "text"
	}
	return "json"
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fanoutHandler forwards each record to every handler that accepts it.
type fanoutHandler struct {
	handlers []slog.Handler
}

func newFanoutHandler(handlers ...slog.Handler) *fanoutHandler {
	return &fanoutHandler{handlers: handlers}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}
