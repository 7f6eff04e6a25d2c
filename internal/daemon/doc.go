// Package daemon watches a directory for new WebP images and converts them.
//
// # Architecture
//
// The package consists of two components:
//
//   - FileWatcher: creation-event monitoring using fsnotify, optionally
//     recursive, filtered by a case-insensitive glob such as "*.webp"
//   - Daemon: validates configuration, owns the single-instance lock and
//     runs one worker that feeds every event through policy.Decide and
//     retry.Executor
//
// The watcher's Events channel is the bounded queue between the two. When
// it is full the watcher blocks instead of dropping events.
//
// # Usage
//
//	cfg := daemon.DefaultConfig()
//	cfg.MonitorPath = "/srv/uploads"
//	cfg.OutputFormat = "jpg"
//
//	d, err := daemon.New(cfg, codec.NewWebP(codec.DefaultOptions()), logger)
//	if err != nil {
//	    // errors.Is(err, daemon.ErrConfigurationInvalid)
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	if err := d.Run(ctx); err != nil {
//	    os.Exit(1)
//	}
//
// # State Machine
//
// Both FileWatcher and Daemon are either stopped or running. Start on a
// running instance returns ErrWatcherRunning or ErrDaemonRunning; Stop on
// a stopped instance is a no-op. Both can be started again after a stop.
//
// # Failure Policy
//
// A file whose attempts are exhausted is logged at error level. With
// FailureIsolate (the default) the daemon keeps watching. With FailureExit
// the worker returns the error, Run stops the daemon and the caller is
// expected to exit with a non-zero status.
//
// # Graceful Shutdown
//
// Stop cancels the run context, which interrupts a pending retry delay.
// A conversion attempt that is already running finishes first, so the
// destination is never left half written.
package daemon
