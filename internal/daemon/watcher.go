package daemon

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileEvent represents a newly created file whose name matched one of the
// watch patterns.
type FileEvent struct {
	// Path is the absolute path to the created file.
	Path string
	// DetectedAt is when the watcher observed the creation.
	DetectedAt time.Time
}

// FileWatcher watches a directory tree for file creation events.
// It uses fsnotify for cross-platform file system event monitoring.
//
// A FileWatcher can be started again after Stop; every run gets fresh
// Events and Errors channels, which are closed when that run stops.
type FileWatcher struct {
	root      string
	patterns  []string
	recursive bool
	buffer    int

	watcher *fsnotify.Watcher
	events  chan FileEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	used    bool
}

// NewFileWatcher creates a new FileWatcher for root. Only files whose base
// name matches one of patterns (case-insensitive, filepath.Match syntax)
// are reported. buffer is the capacity of the Events channel.
//
// The watcher must be started with Start() before it will emit events.
func NewFileWatcher(root string, patterns []string, recursive bool, buffer int) (*FileWatcher, error) {
	if root == "" {
		return nil, fmt.Errorf("root cannot be empty")
	}
	if len(patterns) == 0 {
		return nil, fmt.Errorf("at least one pattern is required")
	}

	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
		if _, err := filepath.Match(lowered[i], ""); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}
	if buffer < 1 {
		buffer = 1
	}

	fw := &FileWatcher{
		root:      absRoot,
		patterns:  lowered,
		recursive: recursive,
		buffer:    buffer,
	}
	fw.makeChannels()
	return fw, nil
}

func (fw *FileWatcher) makeChannels() {
	fw.events = make(chan FileEvent, fw.buffer)
	fw.errors = make(chan error, 10)
	fw.done = make(chan struct{})
}

// Start subscribes to creation events under the root directory and, when
// recursive, under every existing subdirectory. Subdirectories created
// later are added as they appear.
//
// Start returns ErrWatcherRunning if the watcher is already running.
func (fw *FileWatcher) Start() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return ErrWatcherRunning
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if err := fw.addTree(watcher, fw.root); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch directory %s: %w", fw.root, err)
	}

	if fw.used {
		fw.makeChannels()
	}
	fw.used = true
	fw.watcher = watcher
	fw.running = true

	fw.wg.Add(1)
	go fw.processEvents(watcher, fw.events, fw.errors, fw.done)

	return nil
}

// Stop unsubscribes from all directories and closes the Events and Errors
// channels of the current run. It blocks until the event loop has exited.
// Calling Stop on a stopped watcher is a no-op.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if !fw.running {
		return nil
	}
	fw.running = false

	close(fw.done)
	closeErr := fw.watcher.Close()
	fw.wg.Wait()

	close(fw.events)
	close(fw.errors)
	fw.watcher = nil

	if closeErr != nil {
		return fmt.Errorf("failed to close watcher: %w", closeErr)
	}
	return nil
}

// Events returns the channel that emits FileEvent notifications for the
// current run. This channel is closed when the watcher is stopped.
func (fw *FileWatcher) Events() <-chan FileEvent {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.events
}

// Errors returns the channel that emits fsnotify errors for the current
// run. This channel is closed when the watcher is stopped.
func (fw *FileWatcher) Errors() <-chan error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.errors
}

// IsRunning returns true if the watcher is currently running.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}

// Root returns the absolute path of the watched directory.
func (fw *FileWatcher) Root() string {
	return fw.root
}

// processEvents is the main event loop that turns fsnotify events into
// FileEvent notifications.
func (fw *FileWatcher) processEvents(watcher *fsnotify.Watcher, events chan<- FileEvent, errs chan<- error, done <-chan struct{}) {
	defer fw.wg.Done()

	for {
		select {
		case <-done:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if fileEvent, ok := fw.convertEvent(watcher, event); ok {
				select {
				case events <- fileEvent:
				case <-done:
					return
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}

			select {
			case errs <- err:
			case <-done:
				return
			}
		}
	}
}

// convertEvent returns (FileEvent, true) for creations of matching files.
// New directories are added to the watch set when recursive.
func (fw *FileWatcher) convertEvent(watcher *fsnotify.Watcher, event fsnotify.Event) (FileEvent, bool) {
	if !event.Has(fsnotify.Create) {
		return FileEvent{}, false
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		// Already gone again; nothing left to convert.
		return FileEvent{}, false
	}
	if info.IsDir() {
		if fw.recursive {
			// Best effort: the directory may vanish before it is walked.
			_ = fw.addTree(watcher, event.Name)
		}
		return FileEvent{}, false
	}

	if !fw.matches(event.Name) {
		return FileEvent{}, false
	}

	return FileEvent{
		Path:       event.Name,
		DetectedAt: time.Now(),
	}, true
}

func (fw *FileWatcher) matches(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	for _, p := range fw.patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

// addTree watches dir, and every directory below it when recursive.
func (fw *FileWatcher) addTree(watcher *fsnotify.Watcher, dir string) error {
	if !fw.recursive {
		return watcher.Add(dir)
	}

	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return watcher.Add(path)
	})
}
