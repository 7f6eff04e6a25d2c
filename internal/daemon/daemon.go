package daemon

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/autowebp/internal/codec"
	"github.com/steveyegge/autowebp/internal/imageformat"
	"github.com/steveyegge/autowebp/internal/policy"
	"github.com/steveyegge/autowebp/internal/retry"
)

// FailurePolicy decides what an exhausted conversion does to the daemon.
type FailurePolicy string

const (
	// FailureIsolate logs the failed file and keeps watching.
	FailureIsolate FailurePolicy = "isolate"
	// FailureExit stops the daemon with the conversion error.
	FailureExit FailurePolicy = "exit"
)

// Config holds configuration for the daemon.
type Config struct {
	// MonitorPath is the directory to watch. It must exist.
	MonitorPath string

	// IncludeSubdirectories watches the whole tree below MonitorPath.
	IncludeSubdirectories bool

	// OutputFormat is the target format name ("png" or "jpg").
	OutputFormat string

	// MaximumTries is the attempt budget per file (>= 1).
	MaximumTries int

	// RetryDelay is the pause between attempts. Zero means retry.DefaultDelay.
	RetryDelay time.Duration

	// QueueSize bounds the number of detected files waiting for the worker.
	// Zero means DefaultQueueSize.
	QueueSize int

	// FailurePolicy is "isolate" (default) or "exit".
	FailurePolicy string

	// LockPath is the single-instance lock file. Empty derives a path in
	// the system temp directory from MonitorPath.
	LockPath string
}

// DefaultQueueSize is the default capacity of the detected-file queue.
const DefaultQueueSize = 100

// DefaultConfig returns sensible defaults. MonitorPath must still be set.
func DefaultConfig() Config {
	return Config{
		OutputFormat:  imageformat.PNG.String(),
		MaximumTries:  3,
		RetryDelay:    retry.DefaultDelay,
		QueueSize:     DefaultQueueSize,
		FailurePolicy: string(FailureIsolate),
	}
}

// EventSource delivers detected files to the daemon. FileWatcher is the
// production implementation; tests inject synthetic sources.
type EventSource interface {
	Start() error
	Stop() error
	Events() <-chan FileEvent
	Errors() <-chan error
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithEventSource replaces the fsnotify watcher.
func WithEventSource(src EventSource) Option {
	return func(d *Daemon) {
		d.source = src
	}
}

// Stats counts handled files since the daemon was created.
type Stats struct {
	Converted int64
	Skipped   int64
	Failed    int64
}

// Daemon watches a directory and converts every new source image.
//
// Events are handled strictly one after another by a single worker, in the
// order the watcher reports them.
type Daemon struct {
	config   Config
	output   imageformat.Format
	policy   FailurePolicy
	executor *retry.Executor
	source   EventSource
	logger   *slog.Logger
	lock     *flock.Flock

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group

	converted atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

// New validates cfg and creates a stopped Daemon. Validation failures wrap
// ErrConfigurationInvalid and happen before any subscription.
func New(cfg Config, c codec.Codec, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	output, failurePolicy, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	executor, _, err := NewExecutor(cfg, c, logger)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		config:   cfg,
		output:   output,
		policy:   failurePolicy,
		executor: executor,
		logger:   logger,
		lock:     flock.New(cfg.LockPath),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.source == nil {
		patterns := make([]string, 0, 1)
		for _, f := range imageformat.Inputs() {
			patterns = append(patterns, f.Glob())
		}
		fw, err := NewFileWatcher(cfg.MonitorPath, patterns, cfg.IncludeSubdirectories, cfg.QueueSize)
		if err != nil {
			return nil, err
		}
		d.source = fw
	}

	return d, nil
}

// normalize validates c in place and fills defaults.
func (c *Config) normalize() (imageformat.Format, FailurePolicy, error) {
	if c.MonitorPath == "" {
		return imageformat.Unknown, "", invalid(ErrMonitorPathNotFound, "monitor path is empty")
	}
	abs, err := filepath.Abs(c.MonitorPath)
	if err != nil {
		return imageformat.Unknown, "", invalid(ErrMonitorPathNotFound, "%s", c.MonitorPath)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return imageformat.Unknown, "", invalid(ErrMonitorPathNotFound, "%s", c.MonitorPath)
	}
	c.MonitorPath = abs

	output, err := c.normalizeConversion()
	if err != nil {
		return imageformat.Unknown, "", err
	}

	failurePolicy := FailurePolicy(strings.ToLower(strings.TrimSpace(c.FailurePolicy)))
	switch failurePolicy {
	case "":
		failurePolicy = FailureIsolate
	case FailureIsolate, FailureExit:
	default:
		return imageformat.Unknown, "", invalid(ErrInvalidFailurePolicy, "%q (want %s or %s)", c.FailurePolicy, FailureIsolate, FailureExit)
	}
	c.FailurePolicy = string(failurePolicy)

	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.LockPath == "" {
		c.LockPath = DefaultLockPath(abs)
	}

	return output, failurePolicy, nil
}

// normalizeConversion validates the settings shared by the daemon and
// one-shot conversions and fills their defaults.
func (c *Config) normalizeConversion() (imageformat.Format, error) {
	if c.MaximumTries < 1 {
		return imageformat.Unknown, invalid(ErrInvalidTryCount, "%d", c.MaximumTries)
	}

	output, err := imageformat.ParseOutput(c.OutputFormat)
	if err != nil {
		return imageformat.Unknown, invalid(ErrUnsupportedOutputFormat, "%q (supported: %s)",
			c.OutputFormat, imageformat.Names(imageformat.Outputs()))
	}

	if c.RetryDelay < 0 {
		return imageformat.Unknown, invalid(ErrInvalidRetryDelay, "%s", c.RetryDelay)
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = retry.DefaultDelay
	}
	return output, nil
}

// NewExecutor validates the conversion settings of cfg (tries, output
// format, retry delay) and returns the executor and output format the
// daemon would use. MonitorPath is not checked, so one-shot conversions
// of explicit files share the daemon's rules without needing a watch.
func NewExecutor(cfg Config, c codec.Codec, logger *slog.Logger) (*retry.Executor, imageformat.Format, error) {
	output, err := cfg.normalizeConversion()
	if err != nil {
		return nil, imageformat.Unknown, err
	}
	if c == nil {
		return nil, imageformat.Unknown, fmt.Errorf("codec cannot be nil")
	}

	executor, err := retry.New(c, cfg.MaximumTries,
		retry.WithDelay(cfg.RetryDelay),
		retry.WithLogger(logger))
	if err != nil {
		return nil, imageformat.Unknown, err
	}
	return executor, output, nil
}

// DefaultLockPath returns the lock file used for monitorPath when none is
// configured. Equal directories always map to the same lock.
func DefaultLockPath(monitorPath string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(monitorPath)))
	return filepath.Join(os.TempDir(), "autowebp-"+hex.EncodeToString(sum[:8])+".lock")
}

// Config returns the validated configuration with defaults applied.
func (d *Daemon) Config() Config {
	return d.config
}

// Start moves the daemon from stopped to running: it takes the directory
// lock, subscribes to events and launches the worker. It returns
// ErrDaemonRunning if the daemon is already running.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return ErrDaemonRunning
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", d.config.LockPath, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s (lock %s)", ErrAlreadyLocked, d.config.MonitorPath, d.config.LockPath)
	}

	if err := d.source.Start(); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start watcher: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	events, errs := d.source.Events(), d.source.Errors()
	group.Go(func() error {
		return d.work(groupCtx, events, errs)
	})

	d.cancel = cancel
	d.group = group
	d.running = true

	d.logger.Info("autowebp daemon started",
		"monitor_path", d.config.MonitorPath,
		"include_subdirectories", d.config.IncludeSubdirectories,
		"output_format", d.output.String(),
		"maximum_tries", d.config.MaximumTries,
		"failure_policy", string(d.policy))
	return nil
}

// Wait blocks until the worker of the current or last run exits and
// returns the error that ended it. The worker exits when the context
// passed to Start is cancelled, when Stop is called, or when an exhausted
// conversion is escalated under FailureExit.
func (d *Daemon) Wait() error {
	d.mu.Lock()
	group := d.group
	d.mu.Unlock()

	if group == nil {
		return nil
	}
	return group.Wait()
}

// Stop moves the daemon from running to stopped. It aborts any pending
// retry delay, lets an attempt already in progress finish, unsubscribes
// from events and releases the lock. Calling Stop on a stopped daemon is a
// no-op.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}
	d.running = false

	d.cancel()
	stopErr := d.source.Stop()
	_ = d.group.Wait()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release lock", "lock", d.config.LockPath, "error", err)
	}

	stats := d.Stats()
	d.logger.Info("autowebp daemon stopped",
		"converted", stats.Converted,
		"skipped", stats.Skipped,
		"failed", stats.Failed)

	if stopErr != nil {
		return fmt.Errorf("stop watcher: %w", stopErr)
	}
	return nil
}

// Run starts the daemon, blocks until ctx is cancelled or a fatal error
// occurs, and stops it again.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}

	err := d.Wait()
	if stopErr := d.Stop(); err == nil {
		err = stopErr
	}
	return err
}

// IsRunning returns true while the daemon is running.
func (d *Daemon) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Stats returns a snapshot of the counters.
func (d *Daemon) Stats() Stats {
	return Stats{
		Converted: d.converted.Load(),
		Skipped:   d.skipped.Load(),
		Failed:    d.failed.Load(),
	}
}

// work consumes events one at a time until the run ends.
func (d *Daemon) work(ctx context.Context, events <-chan FileEvent, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := d.handle(ctx, event); err != nil {
				return err
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			d.logger.Warn("watcher error", "error", err)
		}
	}
}

// handle runs one detected file through the policy and the executor.
func (d *Daemon) handle(ctx context.Context, event FileEvent) error {
	decision := policy.Decide(event.Path, d.output)
	if decision.Skip {
		d.skipped.Add(1)
		d.logger.Info("unsupported format, skipping file",
			"file", filepath.Base(event.Path),
			"reason", decision.Reason)
		return nil
	}

	return d.report(d.executor.Execute(ctx, decision.Task))
}

// report logs an outcome and returns a non-nil error only when the outcome
// must end the run.
func (d *Daemon) report(out retry.Outcome) error {
	switch out.Status {
	case retry.Succeeded:
		d.converted.Add(1)
		d.logger.Info("successfully processed file",
			"file", filepath.Base(out.Task.SourcePath),
			"destination", filepath.Base(out.Task.DestinationPath),
			"size", humanize.Bytes(uint64(out.Written)),
			"attempts", out.Attempts,
			"elapsed", out.Elapsed.Round(time.Millisecond),
			"task", out.Task.ID)

	case retry.Failed:
		d.failed.Add(1)
		d.logger.Error("could not convert file",
			"file", out.Task.SourcePath,
			"attempts", out.Attempts,
			"error", out.Err,
			"task", out.Task.ID)
		if d.policy == FailureExit {
			return fmt.Errorf("convert %s: %w", out.Task.SourcePath, out.Err)
		}

	case retry.Aborted:
		d.logger.Info("conversion interrupted by shutdown",
			"file", filepath.Base(out.Task.SourcePath),
			"attempts", out.Attempts,
			"task", out.Task.ID)
	}
	return nil
}
