package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/steveyegge/autowebp/internal/imageformat"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		output   imageformat.Format
		wantSkip bool
		wantDest string
	}{
		{
			name:     "webp to png",
			path:     "/watched/img.webp",
			output:   imageformat.PNG,
			wantDest: "/watched/img.png",
		},
		{
			name:     "webp to jpg",
			path:     "/watched/img.webp",
			output:   imageformat.JPG,
			wantDest: "/watched/img.jpg",
		},
		{
			name:     "uppercase extension",
			path:     "/watched/IMG.WEBP",
			output:   imageformat.PNG,
			wantDest: "/watched/IMG.png",
		},
		{
			name:     "only final extension stripped",
			path:     "/watched/a.webp.webp",
			output:   imageformat.PNG,
			wantDest: "/watched/a.webp.png",
		},
		{
			name:     "extension substring in directory",
			path:     "/photos.webp/cat.webp",
			output:   imageformat.JPG,
			wantDest: "/photos.webp/cat.jpg",
		},
		{
			name:     "unsupported input",
			path:     "/watched/img.gif",
			output:   imageformat.PNG,
			wantSkip: true,
		},
		{
			name:     "no extension",
			path:     "/watched/webp",
			output:   imageformat.PNG,
			wantSkip: true,
		},
		{
			name:     "unsupported output",
			path:     "/watched/img.webp",
			output:   imageformat.WebP,
			wantSkip: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.path, tt.output)
			if d.Skip != tt.wantSkip {
				t.Fatalf("Decide(%q).Skip = %v, want %v (reason %q)", tt.path, d.Skip, tt.wantSkip, d.Reason)
			}
			if tt.wantSkip {
				if d.Reason == "" {
					t.Error("skip decision should carry a reason")
				}
				if d.Task != (Task{}) {
					t.Errorf("skip decision carries a task: %+v", d.Task)
				}
				return
			}
			if d.Task.SourcePath != tt.path {
				t.Errorf("SourcePath = %q, want %q", d.Task.SourcePath, tt.path)
			}
			if d.Task.DestinationPath != tt.wantDest {
				t.Errorf("DestinationPath = %q, want %q", d.Task.DestinationPath, tt.wantDest)
			}
			if d.Task.Format != tt.output {
				t.Errorf("Format = %v, want %v", d.Task.Format, tt.output)
			}
			if d.Task.ID != "" {
				t.Errorf("Decide should not assign an ID, got %q", d.Task.ID)
			}
		})
	}
}

func TestDecide_NoFilesystemAccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if d := Decide(path, imageformat.PNG); !d.Skip {
		t.Fatalf("Decide(%q) should skip", path)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "notes.txt" {
		t.Errorf("directory changed after Decide: %v", entries)
	}
}

func TestDecide_Deterministic(t *testing.T) {
	for _, path := range []string{"/w/a.webp", "/w/a.gif"} {
		a := Decide(path, imageformat.PNG)
		b := Decide(path, imageformat.PNG)
		if a != b {
			t.Errorf("Decide(%q) differs between calls: %+v vs %+v", path, a, b)
		}
	}
}
