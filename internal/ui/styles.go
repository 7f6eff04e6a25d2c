// Package ui styles short status glyphs for command output.
package ui

import (
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	mu       sync.RWMutex
	renderer = lipgloss.NewRenderer(os.Stdout)

	passStyle   lipgloss.Style
	failStyle   lipgloss.Style
	warnStyle   lipgloss.Style
	accentStyle lipgloss.Style
	mutedStyle  lipgloss.Style
)

func init() {
	if ShouldDisableColor() {
		renderer.SetColorProfile(termenv.Ascii)
	}
	buildStyles()
}

func buildStyles() {
	passStyle = renderer.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	failStyle = renderer.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	warnStyle = renderer.NewStyle().Foreground(lipgloss.Color("3"))
	accentStyle = renderer.NewStyle().Foreground(lipgloss.Color("4"))
	mutedStyle = renderer.NewStyle().Foreground(lipgloss.Color("8"))
}

// ShouldDisableColor reports whether styled output should be plain text:
// NO_COLOR is set, CLICOLOR is 0, or stdout is not a terminal.
func ShouldDisableColor() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return true
	}
	if os.Getenv("CLICOLOR") == "0" {
		return true
	}
	return !term.IsTerminal(int(os.Stdout.Fd()))
}

// SetColorProfile overrides the detected color profile.
func SetColorProfile(p termenv.Profile) {
	mu.Lock()
	defer mu.Unlock()
	renderer.SetColorProfile(p)
	buildStyles()
}

func render(style *lipgloss.Style, s string) string {
	mu.RLock()
	defer mu.RUnlock()
	return style.Render(s)
}

// RenderPass styles a success marker.
func RenderPass(s string) string { return render(&passStyle, s) }

// RenderFail styles a failure marker.
func RenderFail(s string) string { return render(&failStyle, s) }

// RenderWarn styles a warning marker.
func RenderWarn(s string) string { return render(&warnStyle, s) }

// RenderAccent styles informational headings.
func RenderAccent(s string) string { return render(&accentStyle, s) }

// RenderMuted styles secondary detail such as paths and sizes.
func RenderMuted(s string) string { return render(&mutedStyle, s) }
