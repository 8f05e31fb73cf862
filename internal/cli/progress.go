// Package cli renders the interactive surface of the solver: a live
// progress line while the iteration runs and a formatted summary once it
// finishes.
package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/briandowns/spinner"

	"github.com/qmsolve/mrscf/internal/scf"
	"github.com/qmsolve/mrscf/internal/ui"
)

// ProgressRefreshRate is the spinner animation interval. Iteration updates
// arrive much slower than this; the spinner keeps the terminal alive
// between them.
const ProgressRefreshRate = 200 * time.Millisecond

// Spinner abstracts the terminal spinner so the progress loop can be
// exercised in tests without a real terminal animation.
type Spinner interface {
	// Start begins the spinner animation.
	Start()
	// Stop halts the spinner animation.
	Stop()
	// UpdateSuffix sets the text displayed after the spinner.
	UpdateSuffix(suffix string)
}

type realSpinner struct {
	s *spinner.Spinner
}

func (rs *realSpinner) Start()                     { rs.s.Start() }
func (rs *realSpinner) Stop()                      { rs.s.Stop() }
func (rs *realSpinner) UpdateSuffix(suffix string) { rs.s.Suffix = suffix }

var newSpinner = func(options ...spinner.Option) Spinner {
	s := spinner.New(spinner.CharSets[11], ProgressRefreshRate, options...)
	return &realSpinner{s}
}

// DisplayProgress consumes iteration updates and keeps a one-line status in
// the terminal: iteration count, total energy, orbital error, and the
// current working precision. It is designed to run in a dedicated goroutine
// and returns when the update channel is closed, leaving a final status
// line on the terminal.
//
// Parameters:
//   - wg: Signaled when the display routine is done.
//   - updates: The per-iteration records from the solver's channel observer.
//   - out: The writer the progress line is rendered to.
func DisplayProgress(wg *sync.WaitGroup, updates <-chan scf.IterationUpdate, out io.Writer) {
	defer wg.Done()

	s := newSpinner(spinner.WithWriter(out))
	s.UpdateSuffix(" waiting for the first iteration")
	s.Start()
	defer s.Stop()

	var last *scf.IterationUpdate
	for u := range updates {
		u := u
		last = &u
		s.UpdateSuffix(fmt.Sprintf(" %s", progressLine(u)))
	}

	s.Stop()
	if last != nil {
		fmt.Fprintf(out, "%s\n", progressLine(*last))
	}
}

func progressLine(u scf.IterationUpdate) string {
	status := ""
	if u.Converged {
		status = fmt.Sprintf(" %sconverged%s", ui.Good(), ui.Reset())
	}
	return fmt.Sprintf("iter %s%d%s  E = %s%.8f%s  err_o = %.2e  prec = %.1e%s",
		ui.Accent(), u.Iter, ui.Reset(),
		ui.Bold(), u.Energy.Total, ui.Reset(),
		u.OrbitalError, u.Precision, status)
}

// FormatElapsed formats a duration for display: microseconds below a
// millisecond, milliseconds below a second, the default rendering above.
func FormatElapsed(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	} else if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.String()
}
