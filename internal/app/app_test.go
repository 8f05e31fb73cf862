package app

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/qmsolve/mrscf/internal/errors"
	"github.com/qmsolve/mrscf/internal/logging"
	"github.com/qmsolve/mrscf/internal/orbital"
)

const testDeck = `
system:
  grid:
    basis: legendre
    order: 7
    depth: 7
    corner: -8
    extent: 16
  nuclei:
    - {z: 3, x: -1}
    - {z: 3, x: 1}
  orbitals:
    - {spin: paired}
    - {spin: paired}
  well_softening: 0.5
  pair_softening: 1.0
scf:
  max_iter: 30
  orbital_threshold: 1.0e-3
  property_threshold: 1.0e-5
  history: 4
  start_prec: 1.0e-3
  final_prec: 1.0e-6
`

func writeDeck(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testDeck), 0o644))
	return path
}

func TestRun_EndToEnd(t *testing.T) {
	deck := writeDeck(t)
	dir := t.TempDir()
	checkpoint := filepath.Join(dir, "orbitals")
	plot := filepath.Join(dir, "conv.svg")

	var errBuf bytes.Buffer
	a, err := New([]string{"mrscf",
		"-input", deck,
		"-checkpoint", checkpoint,
		"-plot", plot,
		"-no-color",
	}, &errBuf)
	require.NoError(t, err, errBuf.String())

	var out bytes.Buffer
	code := a.Run(context.Background(), &out)
	require.Equal(t, apperrors.ExitSuccess, code, "stderr: %s", errBuf.String())

	assert.Contains(t, out.String(), "CONVERGED")

	// The checkpoint round-trips through the persistence contract.
	phi, err := orbital.LoadSet(checkpoint, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, phi.Size())
	assert.InDelta(t, 1.0, phi.At(0).Norm(), 1e-3)

	info, err := os.Stat(plot)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestRun_QuietPrintsEnergyOnly(t *testing.T) {
	deck := writeDeck(t)

	a, err := New([]string{"mrscf", "-input", deck, "-q", "-max-iter", "4",
		"-orbital-threshold", "-1", "-property-threshold", "-1"}, io.Discard)
	require.NoError(t, err)

	var out bytes.Buffer
	code := a.Run(context.Background(), &out)
	// Both thresholds disabled means converged after the first iteration.
	require.Equal(t, apperrors.ExitSuccess, code)

	line := strings.TrimSpace(out.String())
	assert.Regexp(t, `^-?\d+\.\d{10}$`, line, "quiet mode prints the bare total energy")
}

func TestRun_NotConvergedExitCode(t *testing.T) {
	deck := writeDeck(t)

	a, err := New([]string{"mrscf", "-input", deck, "-q",
		"-max-iter", "1",
		"-orbital-threshold", "1e-12",
		"-property-threshold", "1e-12",
	}, io.Discard)
	require.NoError(t, err)

	var out bytes.Buffer
	code := a.Run(context.Background(), &out)
	assert.Equal(t, apperrors.ExitNotConverged, code)
}

func TestRun_Canceled(t *testing.T) {
	deck := writeDeck(t)
	a, err := New([]string{"mrscf", "-input", deck, "-q"}, io.Discard)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	code := a.Run(ctx, io.Discard)
	assert.Equal(t, apperrors.ExitErrorCanceled, code)
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()
	_, err := New([]string{"mrscf"}, io.Discard)
	assert.Error(t, err, "a missing input deck is a configuration error")

	_, err = New([]string{"mrscf", "-h"}, io.Discard)
	assert.True(t, IsHelpError(err))
}

func TestBuildSystem_InitialGuess(t *testing.T) {
	deck := writeDeck(t)
	a, err := New([]string{"mrscf", "-input", deck}, io.Discard)
	require.NoError(t, err)

	sys, err := buildSystem(a.Deck, a.Config, logging.Nop{})
	require.NoError(t, err)

	// The guess is orthonormal and the operator matrix matches the set.
	S := orbital.Overlap(sys.phi, sys.phi)
	assert.InDelta(t, 1.0, S.At(0, 0), 1e-10)
	assert.InDelta(t, 0.0, S.At(0, 1), 1e-10)
	r, c := sys.fmat.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
}

func TestVersion(t *testing.T) {
	t.Parallel()
	assert.True(t, HasVersionFlag([]string{"-q", "--version"}))
	assert.False(t, HasVersionFlag([]string{"-q"}))

	var buf bytes.Buffer
	PrintVersion(&buf)
	assert.Contains(t, buf.String(), "mrscf")
	assert.Contains(t, buf.String(), "Go version")
}
