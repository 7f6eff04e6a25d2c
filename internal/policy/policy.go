// Package policy decides what to do with a newly detected file.
//
// Decide is a pure function over path strings: it never touches the
// filesystem and equal inputs yield equal decisions.
package policy

import (
	"fmt"
	"path/filepath"

	"github.com/steveyegge/autowebp/internal/imageformat"
)

// Task describes one file conversion.
type Task struct {
	// ID correlates log lines belonging to this task. Decide leaves it
	// empty; the executor assigns one when the task runs.
	ID string
	// SourcePath is the detected file.
	SourcePath string
	// DestinationPath is SourcePath with its final extension replaced.
	DestinationPath string
	// Format is the target format.
	Format imageformat.Format
}

// Decision is the result of Decide. When Skip is true, Task is zero.
type Decision struct {
	Skip   bool
	Reason string
	Task   Task
}

// Decide maps path and the configured output format to either a conversion
// task or a skip. Only the final extension is considered and replaced, so
// "a.webp.webp" becomes "a.webp.png".
func Decide(path string, output imageformat.Format) Decision {
	if !output.IsOutput() {
		return Decision{Skip: true, Reason: fmt.Sprintf("output format %s is not supported", output)}
	}

	if imageformat.FromPath(path) == imageformat.Unknown {
		return Decision{Skip: true, Reason: "unsupported format"}
	}

	return Decision{
		Task: Task{
			SourcePath:      path,
			DestinationPath: Destination(path, output),
			Format:          output,
		},
	}
}

// Destination strips the final extension from path and appends the
// extension of output.
func Destination(path string, output imageformat.Format) string {
	ext := filepath.Ext(path)
	return path[:len(path)-len(ext)] + output.Extension()
}
