// Command mrscf runs a self-consistent-field optimization described by a
// YAML input deck and reports the converged energy, orbitals, and
// convergence history.
package main

import (
	"context"
	"os"

	"github.com/qmsolve/mrscf/internal/app"
	apperrors "github.com/qmsolve/mrscf/internal/errors"
)

func main() {
	if app.HasVersionFlag(os.Args[1:]) {
		app.PrintVersion(os.Stdout)
		os.Exit(apperrors.ExitSuccess)
	}

	a, err := app.New(os.Args, os.Stderr)
	if err != nil {
		if app.IsHelpError(err) {
			os.Exit(apperrors.ExitSuccess)
		}
		os.Exit(apperrors.ExitErrorConfig)
	}

	os.Exit(a.Run(context.Background(), os.Stdout))
}
