package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	apperrors "github.com/qmsolve/mrscf/internal/errors"
	"github.com/qmsolve/mrscf/internal/field"
	"github.com/qmsolve/mrscf/internal/operator"
	"github.com/qmsolve/mrscf/internal/orbital"
)

// Deck is the parsed YAML input deck. The system section describes the
// physical model; the scf section provides runtime defaults that CLI flags
// and environment variables override.
type Deck struct {
	System SystemSpec `mapstructure:"system"`
	SCF    SCFSpec    `mapstructure:"scf"`

	// present records which scf keys the deck actually sets, so the merge
	// into AppConfig does not clobber built-in defaults with zero values.
	present map[string]bool
}

// SystemSpec describes the model system.
type SystemSpec struct {
	Grid     GridSpec      `mapstructure:"grid"`
	Nuclei   []NucleusSpec `mapstructure:"nuclei"`
	Orbitals []OrbitalSpec `mapstructure:"orbitals"`
	// WellSoftening is a floor on the nuclear smoothing parameter, needed
	// when the grid depth cannot resolve the charge-scaled wells.
	WellSoftening float64 `mapstructure:"well_softening"`
	// PairSoftening softens the electron-electron kernel.
	PairSoftening float64 `mapstructure:"pair_softening"`
	// XC is the local-density exchange-correlation coefficient; 0 disables
	// the term.
	XC float64 `mapstructure:"xc"`
	// Exchange includes the exact exchange term (default true).
	Exchange bool `mapstructure:"exchange"`
}

// GridSpec describes the shared numerical grid.
type GridSpec struct {
	Basis  string  `mapstructure:"basis"`
	Order  int     `mapstructure:"order"`
	Depth  int     `mapstructure:"depth"`
	Corner float64 `mapstructure:"corner"`
	Extent float64 `mapstructure:"extent"`
}

// NucleusSpec is one attractive well.
type NucleusSpec struct {
	Z float64 `mapstructure:"z"`
	X float64 `mapstructure:"x"`
}

// OrbitalSpec is one orbital slot of the initial guess.
type OrbitalSpec struct {
	Spin string  `mapstructure:"spin"`
	Occ  float64 `mapstructure:"occ"`
	Rank int     `mapstructure:"rank"`
}

// SCFSpec mirrors the runtime knobs of AppConfig; every field is optional.
type SCFSpec struct {
	MaxIter           int     `mapstructure:"max_iter"`
	OrbitalThreshold  float64 `mapstructure:"orbital_threshold"`
	PropertyThreshold float64 `mapstructure:"property_threshold"`
	History           int     `mapstructure:"history"`
	Rotation          string  `mapstructure:"rotation"`
	RotationPeriod    int     `mapstructure:"rotation_period"`
	Mode              string  `mapstructure:"mode"`
	StartPrec         float64 `mapstructure:"start_prec"`
	FinalPrec         float64 `mapstructure:"final_prec"`
}

// scfKeys lists the deck keys the merge step considers.
var scfKeys = []string{
	"scf.max_iter",
	"scf.orbital_threshold",
	"scf.property_threshold",
	"scf.history",
	"scf.rotation",
	"scf.rotation_period",
	"scf.mode",
	"scf.start_prec",
	"scf.final_prec",
}

// LoadDeck reads and validates a YAML input deck.
//
// Parameters:
//   - path: The deck file path.
//
// Returns:
//   - *Deck: The parsed deck.
//   - error: A ConfigError if the file cannot be read or parsed, a
//     ValidationError naming the offending field if the system section is
//     inconsistent.
func LoadDeck(path string) (*Deck, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("system.exchange", true)

	if err := v.ReadInConfig(); err != nil {
		return nil, apperrors.NewConfigError("reading input deck %s: %v", path, err)
	}

	var deck Deck
	if err := v.Unmarshal(&deck); err != nil {
		return nil, apperrors.NewConfigError("parsing input deck %s: %v", path, err)
	}

	deck.present = make(map[string]bool, len(scfKeys))
	for _, key := range scfKeys {
		deck.present[key] = v.IsSet(key)
	}

	if err := deck.validateSystem(); err != nil {
		return nil, err
	}
	return &deck, nil
}

func (d *Deck) validateSystem() error {
	g := d.System.Grid
	if _, err := d.BasisKind(); err != nil {
		return err
	}
	if g.Order < 1 || g.Order > 40 {
		return apperrors.NewValidationError("system.grid.order", "must be in [1, 40]", g.Order)
	}
	if g.Depth < 0 || g.Depth > 20 {
		return apperrors.NewValidationError("system.grid.depth", "must be in [0, 20]", g.Depth)
	}
	if g.Extent <= 0 {
		return apperrors.NewValidationError("system.grid.extent", "must be strictly positive", g.Extent)
	}
	if len(d.System.Nuclei) == 0 {
		return apperrors.NewValidationError("system.nuclei", "at least one nucleus is required", nil)
	}
	for k, nuc := range d.System.Nuclei {
		if nuc.Z <= 0 {
			return apperrors.NewValidationError(fmt.Sprintf("system.nuclei[%d].z", k),
				"charge must be strictly positive", nuc.Z)
		}
	}
	if len(d.System.Orbitals) == 0 {
		return apperrors.NewValidationError("system.orbitals", "at least one orbital is required", nil)
	}
	for k, spec := range d.System.Orbitals {
		if _, err := spec.SpinKind(); err != nil {
			return apperrors.NewValidationError(fmt.Sprintf("system.orbitals[%d].spin", k),
				err.Error(), spec.Spin)
		}
	}
	if d.System.WellSoftening < 0 {
		return apperrors.NewValidationError("system.well_softening", "cannot be negative", d.System.WellSoftening)
	}
	if d.System.PairSoftening < 0 {
		return apperrors.NewValidationError("system.pair_softening", "cannot be negative", d.System.PairSoftening)
	}
	if d.System.XC < 0 {
		return apperrors.NewValidationError("system.xc", "cannot be negative", d.System.XC)
	}
	return nil
}

// BasisKind maps the deck's basis name onto the field representation.
func (d *Deck) BasisKind() (field.BasisKind, error) {
	switch strings.ToLower(d.System.Grid.Basis) {
	case "", "legendre":
		return field.Legendre, nil
	case "interpolating":
		return field.Interpolating, nil
	default:
		return 0, apperrors.NewConfigError("unrecognized basis kind: '%s'. Valid kinds are: legendre, interpolating", d.System.Grid.Basis)
	}
}

// BuildGrid constructs the shared numerical grid from the deck.
func (d *Deck) BuildGrid() (*field.Grid, error) {
	kind, err := d.BasisKind()
	if err != nil {
		return nil, err
	}
	g := d.System.Grid
	return field.NewGrid(kind, g.Order, g.Depth, g.Corner, g.Extent)
}

// Nuclei converts the deck's nuclear framework.
func (d *Deck) Nuclei() []operator.Nucleus {
	out := make([]operator.Nucleus, len(d.System.Nuclei))
	for i, nuc := range d.System.Nuclei {
		out[i] = operator.Nucleus{Z: nuc.Z, X: nuc.X}
	}
	return out
}

// SpinKind parses the orbital spin label.
func (s OrbitalSpec) SpinKind() (orbital.Spin, error) {
	switch strings.ToLower(s.Spin) {
	case "", "paired":
		return orbital.Paired, nil
	case "alpha":
		return orbital.Alpha, nil
	case "beta":
		return orbital.Beta, nil
	default:
		return 0, fmt.Errorf("unrecognized spin: '%s'. Valid spins are: paired, alpha, beta", s.Spin)
	}
}

// NewOrbital creates the field-empty orbital slot for this spec. A zero
// occupation defaults per spin; a missing rank means replicated.
func (s OrbitalSpec) NewOrbital() (*orbital.Orbital, error) {
	spin, err := s.SpinKind()
	if err != nil {
		return nil, err
	}
	occ := s.Occ
	if occ == 0 {
		occ = -1
	}
	rank := s.Rank
	if rank == 0 {
		rank = -1
	}
	return orbital.New(spin, occ, rank), nil
}

// mergeSCF copies deck scf values into config fields still at their
// built-in defaults. Flags and environment variables have already been
// applied, so anything that differs from the default was set explicitly
// and wins over the deck.
func (d *Deck) mergeSCF(config *AppConfig) {
	if d.present["scf.max_iter"] && config.MaxIter == DefaultMaxIter {
		config.MaxIter = d.SCF.MaxIter
	}
	if d.present["scf.orbital_threshold"] && config.OrbitalThreshold == DefaultOrbitalThreshold {
		config.OrbitalThreshold = d.SCF.OrbitalThreshold
	}
	if d.present["scf.property_threshold"] && config.PropertyThreshold == DefaultPropertyThreshold {
		config.PropertyThreshold = d.SCF.PropertyThreshold
	}
	if d.present["scf.history"] && config.History == DefaultHistory {
		config.History = d.SCF.History
	}
	if d.present["scf.rotation"] && config.Rotation == DefaultRotation {
		config.Rotation = strings.ToLower(d.SCF.Rotation)
	}
	if d.present["scf.rotation_period"] && config.RotationPeriod == 0 {
		config.RotationPeriod = d.SCF.RotationPeriod
	}
	if d.present["scf.mode"] && config.Mode == DefaultMode {
		config.Mode = strings.ToLower(d.SCF.Mode)
	}
	if d.present["scf.start_prec"] && config.StartPrec == DefaultStartPrec {
		config.StartPrec = d.SCF.StartPrec
	}
	if d.present["scf.final_prec"] && config.FinalPrec == DefaultFinalPrec {
		config.FinalPrec = d.SCF.FinalPrec
	}
}
