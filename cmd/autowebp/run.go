package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/autowebp/internal/codec"
	"github.com/steveyegge/autowebp/internal/config"
	"github.com/steveyegge/autowebp/internal/daemon"
	"github.com/steveyegge/autowebp/internal/logging"
	"github.com/steveyegge/autowebp/internal/ui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch the monitor path and convert new WebP files (foreground)",
	Long: `Run the conversion daemon in the foreground until SIGINT or SIGTERM.

The daemon will:
  1. Validate the settings and take the per-directory lock
  2. Watch the monitor path (and subdirectories if enabled) for new files
  3. Convert each new WebP file, retrying up to --maximum-tries times
  4. Delete the WebP file once the converted image is written

Run it under a process manager for unattended use. The command exits with
status 1 on invalid settings, when another instance already watches the
directory, or when a conversion fails under --failure-policy=exit.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		settings, err := loadSettings(cmd)
		exitOnError(err)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		err = runDaemon(ctx, settings, os.Stdout)
		stop()
		exitOnError(err)
	},
}

// runDaemon builds the logger, codec and daemon from settings and blocks
// until ctx is cancelled or the daemon stops on a fatal error.
func runDaemon(ctx context.Context, settings config.Settings, out io.Writer) error {
	logger, closer, err := logging.New(settings.LoggingOptions())
	if err != nil {
		return fmt.Errorf("%w: %w", daemon.ErrConfigurationInvalid, err)
	}
	defer closer.Close()

	opts, err := settings.CodecOptions()
	if err != nil {
		return fmt.Errorf("%w: %w", daemon.ErrConfigurationInvalid, err)
	}

	d, err := daemon.New(settings.DaemonConfig(), codec.NewWebP(opts), logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return err
	}

	cfg := d.Config()
	fmt.Fprintf(out, "%s Watching %s\n", ui.RenderAccent("▶"), cfg.MonitorPath)
	fmt.Fprintf(out, "   Output: %s\n", cfg.OutputFormat)
	fmt.Fprintf(out, "   Subdirectories: %v\n", cfg.IncludeSubdirectories)
	fmt.Fprintf(out, "   Tries: %d (delay %v)\n", cfg.MaximumTries, cfg.RetryDelay)
	if settings.Source != "" {
		fmt.Fprintf(out, "   Settings: %s\n", ui.RenderMuted(settings.Source))
	}
	fmt.Fprintf(out, "\nPress Ctrl+C to stop\n\n")

	runErr := d.Run(ctx)
	stats := d.Stats()

	if runErr != nil {
		if daemon.IsFatal(runErr) {
			logger.Error("autowebp daemon stopped on a fatal error", "error", runErr)
		}
		fmt.Fprintf(out, "%s Stopped: %d converted, %d skipped, %d failed\n",
			ui.RenderFail("✗"), stats.Converted, stats.Skipped, stats.Failed)
		return runErr
	}

	fmt.Fprintf(out, "%s Stopped: %d converted, %d skipped, %d failed\n",
		ui.RenderPass("✓"), stats.Converted, stats.Skipped, stats.Failed)
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)
}
