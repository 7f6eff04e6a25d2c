package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/steveyegge/autowebp/internal/codec"
	"github.com/steveyegge/autowebp/internal/config"
	"github.com/steveyegge/autowebp/internal/daemon"
	"github.com/steveyegge/autowebp/internal/imageformat"
	"github.com/steveyegge/autowebp/internal/logging"
	"github.com/steveyegge/autowebp/internal/policy"
	"github.com/steveyegge/autowebp/internal/retry"
	"github.com/steveyegge/autowebp/internal/ui"
)

var convertCmd = &cobra.Command{
	Use:   "convert [PATH...]",
	Short: "Convert existing WebP files once and exit",
	Long: `Convert WebP files that already exist, using the same output format, retry
budget and delete-on-success behavior as the daemon.

Each PATH may be a file or a directory. Directories are scanned for WebP
files, recursively when --include-subdirectories is set. Without PATH the
monitor path is scanned, which picks up files that arrived while the
daemon was not running.`,
	Run: func(cmd *cobra.Command, args []string) {
		settings, err := loadSettings(cmd)
		exitOnError(err)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		summary, err := convertPaths(ctx, settings, args, os.Stdout)
		stop()
		exitOnError(err)

		if summary.Failed > 0 {
			os.Exit(1)
		}
	},
}

type convertSummary struct {
	Converted int
	Skipped   int
	Failed    int
}

// convertPaths converts every source named by paths, or found under the
// monitor path when paths is empty, one file at a time.
func convertPaths(ctx context.Context, settings config.Settings, paths []string, out io.Writer) (convertSummary, error) {
	var summary convertSummary
	cfg := settings.DaemonConfig()

	logger, closer, err := logging.New(settings.LoggingOptions())
	if err != nil {
		return summary, err
	}
	defer closer.Close()

	opts, err := settings.CodecOptions()
	if err != nil {
		return summary, err
	}

	executor, output, err := daemon.NewExecutor(cfg, codec.NewWebP(opts), logger)
	if err != nil {
		return summary, err
	}

	scanMonitor := len(paths) == 0
	if scanMonitor {
		if settings.MonitorPath == "" {
			return summary, fmt.Errorf("%w: no paths given and no monitor path configured", daemon.ErrConfigurationInvalid)
		}
		paths = []string{settings.MonitorPath}
	}

	sources, err := collectSources(paths, settings.IncludeSubdirectories)
	if err != nil {
		return summary, err
	}

	unlock, err := lockMonitorPath(cfg, scanMonitor, sources)
	if err != nil {
		return summary, err
	}
	defer unlock()

	for _, source := range sources {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		decision := policy.Decide(source, output)
		if decision.Skip {
			summary.Skipped++
			fmt.Fprintf(out, "%s %s: %s\n", ui.RenderWarn("⚠"), source, decision.Reason)
			continue
		}

		result := executor.Execute(ctx, decision.Task)
		switch result.Status {
		case retry.Succeeded:
			summary.Converted++
			fmt.Fprintf(out, "%s %s → %s %s\n", ui.RenderPass("✓"),
				source, filepath.Base(result.Task.DestinationPath),
				ui.RenderMuted(fmt.Sprintf("(%s, %d attempt(s))", humanize.Bytes(uint64(result.Written)), result.Attempts)))
		case retry.Aborted:
			return summary, ctx.Err()
		default:
			summary.Failed++
			fmt.Fprintf(out, "%s %s: %v\n", ui.RenderFail("✗"), source, result.Err)
		}
	}

	fmt.Fprintf(out, "\n%d converted, %d skipped, %d failed\n", summary.Converted, summary.Skipped, summary.Failed)
	return summary, nil
}

// lockMonitorPath takes the daemon's single-instance lock when the run
// touches the monitor path, so a one-shot conversion never races a live
// daemon for the same files.
func lockMonitorPath(cfg daemon.Config, scanMonitor bool, sources []string) (func(), error) {
	if cfg.MonitorPath == "" {
		return func() {}, nil
	}
	root, err := filepath.Abs(cfg.MonitorPath)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", cfg.MonitorPath, err)
	}

	if !scanMonitor && !slices.ContainsFunc(sources, func(src string) bool { return within(root, src) }) {
		return func() {}, nil
	}

	lockPath := cfg.LockPath
	if lockPath == "" {
		lockPath = daemon.DefaultLockPath(root)
	}

	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", lockPath, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s (lock %s)", daemon.ErrAlreadyLocked, root, lockPath)
	}
	return func() { _ = lock.Unlock() }, nil
}

// within reports whether path lies in root or below it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// collectSources expands directories to the WebP files they contain.
// Files named explicitly are returned as given, whatever their extension,
// so the policy can report them as skipped.
func collectSources(paths []string, recursive bool) ([]string, error) {
	var sources []string

	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", path, err)
		}

		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if !info.IsDir() {
			sources = append(sources, abs)
			continue
		}

		err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != abs && !recursive {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() && imageformat.FromPath(p).IsInput() {
				sources = append(sources, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", path, err)
		}
	}
	return sources, nil
}

func init() {
	rootCmd.AddCommand(convertCmd)
}
