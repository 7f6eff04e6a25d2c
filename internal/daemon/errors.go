package daemon

import (
	"errors"
	"fmt"

	"github.com/steveyegge/autowebp/internal/retry"
)

// Errors returned by the daemon and its watcher.
//
// Configuration errors wrap both ErrConfigurationInvalid and the specific
// kind, so either can be checked with errors.Is:
//
//	if errors.Is(err, daemon.ErrConfigurationInvalid) {
//	    // refuse to start
//	}
var (
	// ErrConfigurationInvalid is the parent of every construction-time
	// validation failure.
	ErrConfigurationInvalid = errors.New("invalid configuration")

	// ErrMonitorPathNotFound is returned when the monitored path does not
	// exist or is not a directory.
	ErrMonitorPathNotFound = errors.New("invalid directory")

	// ErrInvalidTryCount is returned when the maximum try count is below one.
	ErrInvalidTryCount = errors.New("invalid try count")

	// ErrUnsupportedOutputFormat is returned when the output format is not
	// one of the supported targets.
	ErrUnsupportedOutputFormat = errors.New("unsupported output format")

	// ErrInvalidFailurePolicy is returned for an unknown failure policy.
	ErrInvalidFailurePolicy = errors.New("invalid failure policy")

	// ErrInvalidRetryDelay is returned for a negative retry delay.
	ErrInvalidRetryDelay = errors.New("invalid retry delay")

	// ErrDaemonRunning is returned by Start when the daemon already runs.
	ErrDaemonRunning = errors.New("daemon already running")

	// ErrWatcherRunning is returned by FileWatcher.Start when the watcher
	// already runs.
	ErrWatcherRunning = errors.New("watcher already running")

	// ErrAlreadyLocked is returned when another process holds the lock for
	// the monitored directory.
	ErrAlreadyLocked = errors.New("directory is already watched by another instance")
)

func invalid(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrConfigurationInvalid, kind, fmt.Sprintf(format, args...))
}

// IsFatal returns true if err must terminate the service: invalid
// configuration, a lost single-instance race, or an exhausted conversion
// escalated by the exit failure policy.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, ErrConfigurationInvalid) ||
		errors.Is(err, ErrAlreadyLocked) ||
		errors.Is(err, retry.ErrConversionExhausted)
}
