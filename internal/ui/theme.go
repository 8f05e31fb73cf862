// Package ui provides terminal color support for the presentation layer.
// It keeps ANSI escape codes out of the packages that format output: the
// summary table and progress display ask the active theme for colors and
// stay oblivious to whether colors are enabled at all.
package ui

import (
	"os"
	"sync"
)

// Theme is one color scheme. Each field holds the ANSI escape code for a
// semantic category; an empty string means no styling.
type Theme struct {
	// Name identifies the theme.
	Name string
	// Accent highlights the headline values (total energy, iteration count).
	Accent string
	// Good marks converged runs and passing checks.
	Good string
	// Warn marks slow convergence and non-fatal irregularities.
	Warn string
	// Bad marks failed runs.
	Bad string
	// Dim de-emphasizes secondary columns.
	Dim string
	// Bold and Reset are the usual text attributes.
	Bold  string
	Reset string
}

var (
	// DarkTheme targets dark terminal backgrounds.
	DarkTheme = Theme{
		Name:   "dark",
		Accent: "\033[38;5;39m",
		Good:   "\033[38;5;82m",
		Warn:   "\033[38;5;220m",
		Bad:    "\033[38;5;196m",
		Dim:    "\033[38;5;245m",
		Bold:   "\033[1m",
		Reset:  "\033[0m",
	}

	// LightTheme targets light terminal backgrounds.
	LightTheme = Theme{
		Name:   "light",
		Accent: "\033[38;5;27m",
		Good:   "\033[38;5;28m",
		Warn:   "\033[38;5;130m",
		Bad:    "\033[38;5;124m",
		Dim:    "\033[38;5;240m",
		Bold:   "\033[1m",
		Reset:  "\033[0m",
	}

	// PlainTheme disables all styling. Active when NO_COLOR is set or the
	// -no-color flag is given.
	PlainTheme = Theme{Name: "plain"}

	current = DarkTheme
	mu      sync.RWMutex
)

// Current returns the active theme.
func Current() Theme {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Set activates a theme by name ("dark", "light", "plain"). Unknown names
// fall back to dark.
func Set(name string) {
	mu.Lock()
	defer mu.Unlock()
	switch name {
	case "light":
		current = LightTheme
	case "plain":
		current = PlainTheme
	default:
		current = DarkTheme
	}
}

// Init picks the startup theme. An explicit noColor, or any NO_COLOR value
// in the environment (per no-color.org), disables styling.
func Init(noColor bool) {
	mu.Lock()
	defer mu.Unlock()
	if noColor {
		current = PlainTheme
		return
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		current = PlainTheme
		return
	}
	current = DarkTheme
}

// Accent returns the accent escape code of the active theme.
func Accent() string { return Current().Accent }

// Good returns the success escape code of the active theme.
func Good() string { return Current().Good }

// Warn returns the warning escape code of the active theme.
func Warn() string { return Current().Warn }

// Bad returns the failure escape code of the active theme.
func Bad() string { return Current().Bad }

// Dim returns the de-emphasis escape code of the active theme.
func Dim() string { return Current().Dim }

// Bold returns the bold escape code of the active theme.
func Bold() string { return Current().Bold }

// Reset returns the reset escape code of the active theme.
func Reset() string { return Current().Reset }
