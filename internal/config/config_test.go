package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/qmsolve/mrscf/internal/errors"
	"github.com/qmsolve/mrscf/internal/field"
	"github.com/qmsolve/mrscf/internal/orbital"
	"github.com/qmsolve/mrscf/internal/scf"
)

const testDeck = `
system:
  grid:
    basis: legendre
    order: 6
    depth: 5
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
  max_iter: 12
  rotation: localized
  final_prec: 1.0e-6
`

func writeDeck(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseConfig_DeckSuppliesDefaults(t *testing.T) {
	path := writeDeck(t, testDeck)

	cfg, deck, err := ParseConfig("mrscf", []string{"-input", path}, io.Discard)
	require.NoError(t, err)
	require.NotNil(t, deck)

	// Deck scf values land in fields left at their built-in defaults.
	assert.Equal(t, 12, cfg.MaxIter)
	assert.Equal(t, "localized", cfg.Rotation)
	assert.Equal(t, 1e-6, cfg.FinalPrec)

	// Untouched fields keep the built-in defaults.
	assert.Equal(t, DefaultHistory, cfg.History)
	assert.Equal(t, DefaultMode, cfg.Mode)
	assert.Equal(t, DefaultOrbitalThreshold, cfg.OrbitalThreshold)
}

func TestParseConfig_FlagBeatsDeck(t *testing.T) {
	path := writeDeck(t, testDeck)

	cfg, _, err := ParseConfig("mrscf", []string{
		"-input", path,
		"-max-iter", "3",
		"-rotation", "canonical",
	}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.MaxIter)
	assert.Equal(t, "canonical", cfg.Rotation)
}

func TestParseConfig_EnvOverrides(t *testing.T) {
	path := writeDeck(t, testDeck)

	t.Setenv("MRSCF_HISTORY", "8")
	t.Setenv("MRSCF_MODE", "energy")
	t.Setenv("MRSCF_QUIET", "yes")

	cfg, _, err := ParseConfig("mrscf", []string{"-input", path}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.History)
	assert.Equal(t, "energy", cfg.Mode)
	assert.True(t, cfg.Quiet)
}

func TestParseConfig_FlagBeatsEnv(t *testing.T) {
	path := writeDeck(t, testDeck)
	t.Setenv("MRSCF_HISTORY", "8")

	cfg, _, err := ParseConfig("mrscf", []string{"-input", path, "-history", "2"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.History)
}

func TestParseConfig_MissingInput(t *testing.T) {
	_, _, err := ParseConfig("mrscf", nil, io.Discard)
	assert.Error(t, err)
}

func TestParseConfig_MissingDeckFile(t *testing.T) {
	_, _, err := ParseConfig("mrscf", []string{"-input", "/no/such/deck.yaml"}, io.Discard)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := AppConfig{
		Input:             "deck.yaml",
		MaxIter:           10,
		OrbitalThreshold:  1e-4,
		PropertyThreshold: 1e-6,
		History:           5,
		Rotation:          "canonical",
		Mode:              "orbital",
		StartPrec:         -1,
		FinalPrec:         -1,
		Timeout:           DefaultTimeout,
	}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"negative max-iter", func(c *AppConfig) { c.MaxIter = -1 }},
		{"negative history", func(c *AppConfig) { c.History = -1 }},
		{"bad rotation", func(c *AppConfig) { c.Rotation = "natural" }},
		{"bad mode", func(c *AppConfig) { c.Mode = "both" }},
		{"zero precision", func(c *AppConfig) { c.FinalPrec = 0 }},
		{"zero timeout", func(c *AppConfig) { c.Timeout = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadDeck_SystemValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		deck  string
		field string // empty for non-field errors (unknown basis kind)
	}{
		{"unknown basis", `
system:
  grid: {basis: chebyshev, order: 6, depth: 4, corner: -4, extent: 8}
  nuclei: [{z: 1, x: 0}]
  orbitals: [{spin: paired}]
`, ""},
		{"no nuclei", `
system:
  grid: {basis: legendre, order: 6, depth: 4, corner: -4, extent: 8}
  orbitals: [{spin: paired}]
`, "system.nuclei"},
		{"nonpositive charge", `
system:
  grid: {basis: legendre, order: 6, depth: 4, corner: -4, extent: 8}
  nuclei: [{z: 0, x: 0}]
  orbitals: [{spin: paired}]
`, "system.nuclei[0].z"},
		{"no orbitals", `
system:
  grid: {basis: legendre, order: 6, depth: 4, corner: -4, extent: 8}
  nuclei: [{z: 1, x: 0}]
`, "system.orbitals"},
		{"bad spin", `
system:
  grid: {basis: legendre, order: 6, depth: 4, corner: -4, extent: 8}
  nuclei: [{z: 1, x: 0}]
  orbitals: [{spin: sideways}]
`, "system.orbitals[0].spin"},
		{"bad extent", `
system:
  grid: {basis: legendre, order: 6, depth: 4, corner: -4, extent: 0}
  nuclei: [{z: 1, x: 0}]
  orbitals: [{spin: paired}]
`, "system.grid.extent"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "deck.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.deck), 0o644))
			_, err := LoadDeck(path)
			require.Error(t, err)
			if tc.field != "" {
				var vErr apperrors.ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.Equal(t, tc.field, vErr.Field)
			}
		})
	}
}

func TestDeck_Builders(t *testing.T) {
	path := writeDeck(t, testDeck)
	deck, err := LoadDeck(path)
	require.NoError(t, err)

	g, err := deck.BuildGrid()
	require.NoError(t, err)
	assert.Equal(t, field.Legendre, g.Kind())
	assert.Equal(t, 6, g.Order())
	assert.Equal(t, 5, g.Depth())

	nuclei := deck.Nuclei()
	require.Len(t, nuclei, 2)
	assert.Equal(t, 3.0, nuclei[0].Z)
	assert.Equal(t, -1.0, nuclei[0].X)

	o, err := deck.System.Orbitals[0].NewOrbital()
	require.NoError(t, err)
	assert.Equal(t, orbital.Paired, o.Spin())
	assert.Equal(t, 2.0, o.Occ(), "paired occupation defaults to 2")
	assert.Equal(t, -1, o.Rank(), "missing rank means replicated")
	assert.True(t, deck.System.Exchange, "exact exchange defaults on")
}

func TestSolverOptions(t *testing.T) {
	t.Parallel()
	cfg := AppConfig{
		MaxIter:           7,
		OrbitalThreshold:  1e-3,
		PropertyThreshold: -1,
		History:           4,
		Rotation:          "localized",
		RotationPeriod:    5,
		Mode:              "energy",
		StartPrec:         1e-3,
		FinalPrec:         1e-6,
	}
	opts := cfg.SolverOptions()
	assert.Equal(t, 7, opts.MaxIter)
	assert.Equal(t, scf.Localized, opts.Rotation)
	assert.Equal(t, scf.EnergyOptimizer, opts.Mode)
	assert.Equal(t, 5, opts.RotationPeriod)
	assert.Equal(t, -1.0, opts.PropertyThreshold)
}
