// Package retry executes conversion tasks with bounded retry.
//
// One attempt reads the source, encodes it, writes the destination and
// deletes the source. Attempts are separated by a fixed delay that honors
// context cancellation; an attempt that has already begun always runs to
// completion so the destination is never left half written.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/autowebp/internal/codec"
	"github.com/steveyegge/autowebp/internal/policy"
)

// DefaultDelay is the pause between two attempts on the same file.
const DefaultDelay = time.Second

const destinationPerm = 0644

var (
	// ErrConversionExhausted wraps the last attempt error once every
	// allowed attempt has failed.
	ErrConversionExhausted = errors.New("conversion retries exhausted")

	// ErrInvalidTries is returned by New when maxTries is below one.
	ErrInvalidTries = errors.New("maximum tries must be at least 1")
)

// Status is the terminal state of an Execute call.
type Status int

const (
	// Succeeded means the destination was written and the source deleted.
	Succeeded Status = iota
	// Failed means every attempt failed; the source is left in place.
	Failed
	// Aborted means the context ended while waiting between attempts.
	Aborted
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Outcome reports exactly one terminal result for a task.
type Outcome struct {
	Task     policy.Task
	Status   Status
	Attempts int
	// Written is the size of the destination file on success.
	Written int64
	Elapsed time.Duration
	// Err is nil on success, wraps ErrConversionExhausted on failure and
	// carries the context error when aborted.
	Err error
}

// OK reports whether the conversion succeeded.
func (o Outcome) OK() bool {
	return o.Status == Succeeded
}

// Option configures an Executor.
type Option func(*Executor)

// WithDelay overrides DefaultDelay.
func WithDelay(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.delay = d
		}
	}
}

// WithLogger sets the logger used for per-attempt debug notes.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// Executor runs conversion tasks. It holds no per-task state and may be
// shared by several goroutines.
type Executor struct {
	codec    codec.Codec
	maxTries int
	delay    time.Duration
	logger   *slog.Logger
}

// New creates an Executor performing at most maxTries attempts per task.
func New(c codec.Codec, maxTries int, opts ...Option) (*Executor, error) {
	if c == nil {
		return nil, fmt.Errorf("codec cannot be nil")
	}
	if maxTries < 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidTries, maxTries)
	}

	e := &Executor{
		codec:    c,
		maxTries: maxTries,
		delay:    DefaultDelay,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// MaxTries returns the attempt budget per task.
func (e *Executor) MaxTries() int {
	return e.maxTries
}

// Execute converts task, retrying failed attempts until the budget is spent.
// A task without an ID is given a fresh one, reported in Outcome.Task.
func (e *Executor) Execute(ctx context.Context, task policy.Task) Outcome {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	start := time.Now()
	out := Outcome{Task: task}

	for attempt := 1; ; attempt++ {
		out.Attempts = attempt

		written, err := e.attempt(task)
		if err == nil {
			out.Status = Succeeded
			out.Written = written
			out.Elapsed = time.Since(start)
			return out
		}

		if attempt >= e.maxTries {
			out.Status = Failed
			out.Err = fmt.Errorf("%w after %d attempt(s): %w", ErrConversionExhausted, attempt, err)
			out.Elapsed = time.Since(start)
			return out
		}

		e.logger.Debug("conversion attempt failed",
			"task", task.ID,
			"file", task.SourcePath,
			"attempt", attempt,
			"max_tries", e.maxTries,
			"error", err)

		if err := wait(ctx, e.delay); err != nil {
			out.Status = Aborted
			out.Err = err
			out.Elapsed = time.Since(start)
			return out
		}
	}
}

// attempt performs read, encode, write and delete once.
func (e *Executor) attempt(task policy.Task) (int64, error) {
	src, err := os.ReadFile(task.SourcePath)
	if err != nil {
		return 0, fmt.Errorf("read source: %w", err)
	}

	encoded, err := e.codec.Encode(src, task.Format)
	if err != nil {
		return 0, err
	}

	if err := writeFileAtomic(task.DestinationPath, encoded); err != nil {
		return 0, fmt.Errorf("write destination: %w", err)
	}

	if err := os.Remove(task.SourcePath); err != nil {
		return 0, fmt.Errorf("delete source: %w", err)
	}

	return int64(len(encoded)), nil
}

// writeFileAtomic writes data next to path under a temporary name and
// renames it into place, so readers only ever see a complete file.
func writeFileAtomic(path string, data []byte) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Chmod(destinationPerm); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	committed = true
	return nil
}

// wait sleeps for d or until ctx is done, whichever comes first.
func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
