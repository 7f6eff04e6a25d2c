package retry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/steveyegge/autowebp/internal/codec"
	"github.com/steveyegge/autowebp/internal/imageformat"
	"github.com/steveyegge/autowebp/internal/policy"
)

var errBroken = errors.New("broken codec")

// flakyCodec fails the first `failures` calls and then succeeds.
type flakyCodec struct {
	failures int32
	calls    atomic.Int32
}

func (c *flakyCodec) Encode(src []byte, target imageformat.Format) ([]byte, error) {
	n := c.calls.Add(1)
	if n <= c.failures {
		return nil, errBroken
	}
	return append([]byte(target.String()+":"), src...), nil
}

// setupTask writes a source file and returns the matching task.
func setupTask(t *testing.T, output imageformat.Format) policy.Task {
	t.Helper()

	dir := t.TempDir()
	src := filepath.Join(dir, "img.webp")
	if err := os.WriteFile(src, []byte("RIFF"), 0644); err != nil {
		t.Fatalf("Failed to write source: %v", err)
	}

	d := policy.Decide(src, output)
	if d.Skip {
		t.Fatalf("Decide(%q) skipped: %s", src, d.Reason)
	}
	return d.Task
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestNew(t *testing.T) {
	c := &flakyCodec{}

	if _, err := New(c, 0); !errors.Is(err, ErrInvalidTries) {
		t.Errorf("New(maxTries=0) error = %v, want ErrInvalidTries", err)
	}
	if _, err := New(nil, 1); err == nil {
		t.Error("New(nil codec) should fail")
	}

	e, err := New(c, 3)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if e.MaxTries() != 3 {
		t.Errorf("MaxTries() = %d, want 3", e.MaxTries())
	}
	if e.delay != DefaultDelay {
		t.Errorf("delay = %v, want %v", e.delay, DefaultDelay)
	}
}

func TestExecute_SucceedsOnThirdAttempt(t *testing.T) {
	c := &flakyCodec{failures: 2}
	e, err := New(c, 3, WithDelay(time.Millisecond))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	task := setupTask(t, imageformat.PNG)
	out := e.Execute(context.Background(), task)

	if !out.OK() {
		t.Fatalf("Execute() status = %v, err = %v", out.Status, out.Err)
	}
	if got := c.calls.Load(); got != 3 {
		t.Errorf("codec calls = %d, want 3", got)
	}
	if out.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", out.Attempts)
	}

	data, err := os.ReadFile(task.DestinationPath)
	if err != nil {
		t.Fatalf("destination missing: %v", err)
	}
	if string(data) != "png:RIFF" {
		t.Errorf("destination content = %q", data)
	}
	if out.Written != int64(len(data)) {
		t.Errorf("Written = %d, want %d", out.Written, len(data))
	}
	if _, err := os.Stat(task.SourcePath); !os.IsNotExist(err) {
		t.Errorf("source should be deleted, stat err = %v", err)
	}
}

func TestExecute_SucceedsFirstTry(t *testing.T) {
	c := &flakyCodec{}
	e, _ := New(c, 5, WithDelay(time.Hour))

	task := setupTask(t, imageformat.JPG)
	out := e.Execute(context.Background(), task)

	if !out.OK() || out.Attempts != 1 || c.calls.Load() != 1 {
		t.Fatalf("Execute() = %+v, calls = %d", out, c.calls.Load())
	}
	if filepath.Ext(task.DestinationPath) != ".jpg" {
		t.Errorf("DestinationPath = %q", task.DestinationPath)
	}
}

func TestExecute_Exhausted(t *testing.T) {
	c := &flakyCodec{failures: 1 << 30}
	e, _ := New(c, 2, WithDelay(time.Millisecond))

	task := setupTask(t, imageformat.PNG)
	out := e.Execute(context.Background(), task)

	if out.Status != Failed {
		t.Fatalf("Execute() status = %v, want failed", out.Status)
	}
	if got := c.calls.Load(); got != 2 {
		t.Errorf("codec calls = %d, want 2", got)
	}
	if !errors.Is(out.Err, ErrConversionExhausted) {
		t.Errorf("Err = %v, want ErrConversionExhausted", out.Err)
	}
	if !errors.Is(out.Err, errBroken) {
		t.Errorf("Err = %v, should wrap the last attempt error", out.Err)
	}

	if _, err := os.Stat(task.SourcePath); err != nil {
		t.Errorf("source should be untouched: %v", err)
	}
	names := listDir(t, filepath.Dir(task.SourcePath))
	if len(names) != 1 || names[0] != "img.webp" {
		t.Errorf("directory = %v, want only img.webp", names)
	}
}

func TestExecute_SingleTry(t *testing.T) {
	c := &flakyCodec{failures: 1}
	e, _ := New(c, 1, WithDelay(time.Hour))

	out := e.Execute(context.Background(), setupTask(t, imageformat.PNG))
	if out.Status != Failed || out.Attempts != 1 {
		t.Errorf("Execute() = %v after %d attempts, want failed after 1", out.Status, out.Attempts)
	}
}

func TestExecute_MissingSource(t *testing.T) {
	c := &flakyCodec{}
	e, _ := New(c, 2, WithDelay(time.Millisecond))

	task := setupTask(t, imageformat.PNG)
	if err := os.Remove(task.SourcePath); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	out := e.Execute(context.Background(), task)
	if out.Status != Failed {
		t.Fatalf("status = %v, want failed", out.Status)
	}
	if !errors.Is(out.Err, os.ErrNotExist) {
		t.Errorf("Err = %v, want os.ErrNotExist", out.Err)
	}
	if c.calls.Load() != 0 {
		t.Errorf("codec should not be called without a source")
	}
}

func TestExecute_DestinationUnwritable(t *testing.T) {
	c := &flakyCodec{}
	e, _ := New(c, 2, WithDelay(time.Millisecond))

	task := setupTask(t, imageformat.PNG)
	task.DestinationPath = filepath.Join(filepath.Dir(task.SourcePath), "missing", "img.png")

	out := e.Execute(context.Background(), task)
	if out.Status != Failed {
		t.Fatalf("status = %v, want failed", out.Status)
	}
	if _, err := os.Stat(task.SourcePath); err != nil {
		t.Errorf("source should survive a failed write: %v", err)
	}
}

func TestExecute_RenameFailureLeavesNoTemp(t *testing.T) {
	c := &flakyCodec{}
	e, _ := New(c, 2, WithDelay(time.Millisecond))

	task := setupTask(t, imageformat.PNG)
	dir := filepath.Dir(task.SourcePath)

	// A non-empty directory at the destination lets the temp file be
	// written but makes the final rename fail.
	if err := os.MkdirAll(filepath.Join(task.DestinationPath, "keep"), 0755); err != nil {
		t.Fatalf("Failed to create blocking directory: %v", err)
	}

	out := e.Execute(context.Background(), task)
	if out.Status != Failed || out.Attempts != 2 {
		t.Fatalf("Execute() = %+v, want failed after 2 attempts", out)
	}
	if !errors.Is(out.Err, ErrConversionExhausted) {
		t.Errorf("Err = %v, want ErrConversionExhausted", out.Err)
	}
	if _, err := os.Stat(task.SourcePath); err != nil {
		t.Errorf("source should survive a failed rename: %v", err)
	}

	got := listDir(t, dir)
	want := []string{"img.png", "img.webp"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("dir = %v, want %v (temp file left behind?)", got, want)
	}
	if info, err := os.Stat(task.DestinationPath); err != nil || !info.IsDir() {
		t.Errorf("blocking directory should be untouched: %v", err)
	}
}

func TestExecute_AssignsTaskID(t *testing.T) {
	e, _ := New(&flakyCodec{}, 1)

	task := setupTask(t, imageformat.PNG)
	out := e.Execute(context.Background(), task)
	if out.Task.ID == "" {
		t.Error("Execute should assign a task ID")
	}

	second := setupTask(t, imageformat.PNG)
	second.ID = "fixed"
	if out := e.Execute(context.Background(), second); out.Task.ID != "fixed" {
		t.Errorf("ID = %q, an existing ID must be kept", out.Task.ID)
	}
}

func TestExecute_AbortedDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int
	c := codec.Func(func(src []byte, target imageformat.Format) ([]byte, error) {
		calls++
		cancel()
		return nil, errBroken
	})
	e, _ := New(c, 10, WithDelay(time.Hour))

	task := setupTask(t, imageformat.PNG)

	done := make(chan Outcome, 1)
	go func() { done <- e.Execute(ctx, task) }()

	select {
	case out := <-done:
		if out.Status != Aborted {
			t.Errorf("status = %v, want aborted", out.Status)
		}
		if !errors.Is(out.Err, context.Canceled) {
			t.Errorf("Err = %v, want context.Canceled", out.Err)
		}
		if calls != 1 {
			t.Errorf("codec calls = %d, want 1", calls)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Execute() did not return after cancellation")
	}

	if _, err := os.Stat(task.SourcePath); err != nil {
		t.Errorf("source should be untouched: %v", err)
	}
}

func TestWriteFileAtomic_Overwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.png")

	if err := os.WriteFile(path, []byte("old"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := writeFileAtomic(path, []byte("new")); err != nil {
		t.Fatalf("writeFileAtomic() failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "new" {
		t.Errorf("content = %q, want new", data)
	}
	if names := listDir(t, dir); len(names) != 1 {
		t.Errorf("leftover files: %v", names)
	}
}

func TestStatus_String(t *testing.T) {
	tests := map[Status]string{
		Succeeded:  "succeeded",
		Failed:     "failed",
		Aborted:    "aborted",
		Status(42): "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
