package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestZerologAdapter_Fields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewZerologAdapter(zerolog.New(&buf))

	logger.Info("iteration complete",
		Int("iter", 3),
		Float64("err_o", 1.5e-4),
		String("mode", "canonical"),
		Bool("converged", false),
	)

	out := buf.String()
	for _, want := range []string{`"iter":3`, `"err_o":0.00015`, `"mode":"canonical"`, `"converged":false`, "iteration complete"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestZerologAdapter_Levels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewZerologAdapter(zerolog.New(&buf))

	logger.Warn("routine has never been tested")
	logger.Error("load failed", errors.New("bad basis kind"))
	logger.Debug("crop", Float64("prec", 1e-5))

	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("missing warn record in %q", out)
	}
	if !strings.Contains(out, `"error":"bad basis kind"`) {
		t.Errorf("missing error field in %q", out)
	}
	if !strings.Contains(out, `"level":"debug"`) {
		t.Errorf("missing debug record in %q", out)
	}
}

func TestConsoleLogger_VerboseGatesDebug(t *testing.T) {
	t.Parallel()

	var quiet bytes.Buffer
	NewConsoleLogger(&quiet, false).Debug("hidden")
	if quiet.Len() != 0 {
		t.Errorf("expected debug suppressed, got %q", quiet.String())
	}

	var verbose bytes.Buffer
	NewConsoleLogger(&verbose, true).Debug("visible")
	if !strings.Contains(verbose.String(), "visible") {
		t.Errorf("expected debug record, got %q", verbose.String())
	}
}

func TestNopLoggerIsSilent(t *testing.T) {
	t.Parallel()
	// Must not panic and must satisfy the interface.
	var l Logger = Nop{}
	l.Info("a")
	l.Warn("b")
	l.Error("c", errors.New("x"))
	l.Debug("d")
	l.Printf("%d", 1)
}
