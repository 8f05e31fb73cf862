// Package testutil provides shared testing utilities used across the project.
package testutil

import "regexp"

// csiPattern matches ANSI CSI escape sequences (ESC [ ... letter), which is
// all the styling the ui themes emit.
var csiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// StripAnsiCodes removes ANSI escape codes from a string, so tests can
// assert on CLI output without color codes interfering.
//
// Parameters:
//   - s: The string potentially containing ANSI escape codes.
//
// Returns:
//   - string: The input with all ANSI escape codes removed.
func StripAnsiCodes(s string) string {
	return csiPattern.ReplaceAllString(s, "")
}
