// Package config provides the configuration management for the mrscf
// application. Runtime settings come from three layers with the priority
// CLI flags > MRSCF_ environment variables > input deck > defaults; the
// physical system itself (grid, nuclei, orbitals) is described only by the
// YAML input deck.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	apperrors "github.com/qmsolve/mrscf/internal/errors"
	"github.com/qmsolve/mrscf/internal/scf"
)

const (
	// EnvPrefix is the prefix for all environment variables used by mrscf.
	// Environment variables provide an alternative to CLI flags for
	// configuration, following the 12-Factor App methodology.
	EnvPrefix = "MRSCF_"
)

// Default configuration values. These can be overridden by the input deck,
// environment variables, or command-line flags.
const (
	// DefaultMaxIter is the default iteration cap.
	DefaultMaxIter = 30
	// DefaultOrbitalThreshold is the default convergence threshold on the
	// maximum orbital error.
	DefaultOrbitalThreshold = 1e-4
	// DefaultPropertyThreshold is the default convergence threshold on the
	// energy change between iterations.
	DefaultPropertyThreshold = 1e-6
	// DefaultHistory is the default accelerator history length.
	DefaultHistory = 5
	// DefaultRotation is the default orbital rotation mode.
	DefaultRotation = "canonical"
	// DefaultMode is the default optimization strategy.
	DefaultMode = "orbital"
	// DefaultStartPrec inherits the final precision (negative means inherit).
	DefaultStartPrec = -1.0
	// DefaultFinalPrec inherits the built-in world precision.
	DefaultFinalPrec = -1.0
	// DefaultTimeout is the default wall-clock budget for one run.
	DefaultTimeout = 30 * time.Minute
)

// AppConfig aggregates the application's runtime parameters. The physical
// system lives in the Deck loaded from the input file; AppConfig carries
// everything that controls how the optimization is executed and reported.
type AppConfig struct {
	// Input is the path to the YAML input deck describing the system.
	Input string
	// MaxIter caps the number of SCF iterations.
	MaxIter int
	// OrbitalThreshold is the convergence threshold on the maximum orbital
	// error; negative disables the check.
	OrbitalThreshold float64
	// PropertyThreshold is the convergence threshold on the energy change;
	// negative disables the check.
	PropertyThreshold float64
	// History is the accelerator history length; values < 2 disable
	// acceleration.
	History int
	// Rotation selects the orbital basis: "canonical" or "localized".
	Rotation string
	// RotationPeriod re-rotates the basis every N iterations in addition to
	// the first two; 0 rotates only at the start and the final polish.
	RotationPeriod int
	// Mode selects the optimization strategy: "orbital" or "energy".
	Mode string
	// StartPrec is the initial working precision; negative inherits FinalPrec.
	StartPrec float64
	// FinalPrec is the tightest working precision; negative inherits the
	// built-in default.
	FinalPrec float64
	// Checkpoint, if non-empty, is the file prefix the converged orbitals
	// are saved under.
	Checkpoint string
	// Plot, if non-empty, is the path the convergence plot is written to
	// (extension selects the format: .svg, .png, .pdf).
	Plot string
	// MetricsAddr, if non-empty, is the listen address for the /metrics and
	// /healthz endpoint served during the run.
	MetricsAddr string
	// Timeout is the wall-clock budget for the whole optimization.
	Timeout time.Duration
	// Verbose enables debug-level logging.
	Verbose bool
	// Quiet suppresses the progress display and the summary table.
	Quiet bool
	// NoColor disables colored output. Also respects the NO_COLOR
	// environment variable.
	NoColor bool
}

// SolverOptions converts the runtime configuration into scf.Options for the
// driver.
func (c AppConfig) SolverOptions() scf.Options {
	opts := scf.Options{
		MaxIter:           c.MaxIter,
		OrbitalThreshold:  c.OrbitalThreshold,
		PropertyThreshold: c.PropertyThreshold,
		History:           c.History,
		RotationPeriod:    c.RotationPeriod,
		StartPrec:         c.StartPrec,
		FinalPrec:         c.FinalPrec,
	}
	if c.Rotation == "localized" {
		opts.Rotation = scf.Localized
	}
	if c.Mode == "energy" {
		opts.Mode = scf.EnergyOptimizer
	}
	return opts
}

// Validate checks the semantic consistency of the runtime parameters.
//
// Returns:
//   - error: An error of type ConfigError if the configuration is invalid,
//     nil otherwise.
func (c AppConfig) Validate() error {
	if c.Input == "" {
		return apperrors.NewConfigError("an input deck is required (-input <file>)")
	}
	if c.MaxIter < 0 {
		return apperrors.NewConfigError("iteration cap cannot be negative: %d", c.MaxIter)
	}
	if c.History < 0 {
		return apperrors.NewConfigError("accelerator history cannot be negative: %d", c.History)
	}
	if c.Rotation != "canonical" && c.Rotation != "localized" {
		return apperrors.NewConfigError("unrecognized rotation mode: '%s'. Valid modes are: canonical, localized", c.Rotation)
	}
	if c.Mode != "orbital" && c.Mode != "energy" {
		return apperrors.NewConfigError("unrecognized optimization mode: '%s'. Valid modes are: orbital, energy", c.Mode)
	}
	if c.FinalPrec == 0 || c.StartPrec == 0 {
		return apperrors.NewConfigError("precision cannot be zero (negative inherits the default)")
	}
	if c.Timeout <= 0 {
		return apperrors.NewConfigError("timeout value must be strictly positive")
	}
	return nil
}

// ParseConfig parses the command-line arguments and populates an AppConfig.
// It defines all flags, applies environment overrides for flags not set on
// the command line, merges the scf section of the input deck into fields
// still at their built-in defaults, and validates the result.
//
// Parameters:
//   - programName: The name of the program, used in the usage message.
//   - args: The command-line arguments (typically os.Args[1:]).
//   - errorWriter: Destination for parsing errors and usage information.
//
// Returns:
//   - AppConfig: The populated configuration struct.
//   - *Deck: The parsed input deck.
//   - error: An error if flag parsing, deck loading, or validation fails.
func ParseConfig(programName string, args []string, errorWriter io.Writer) (AppConfig, *Deck, error) {
	fs := flag.NewFlagSet(programName, flag.ContinueOnError)
	fs.SetOutput(errorWriter)

	config := AppConfig{}
	fs.StringVar(&config.Input, "input", "", "Path to the YAML input deck describing the system.")
	fs.StringVar(&config.Input, "i", "", "Path to the input deck (shorthand).")
	fs.IntVar(&config.MaxIter, "max-iter", DefaultMaxIter, "Maximum number of SCF iterations.")
	fs.Float64Var(&config.OrbitalThreshold, "orbital-threshold", DefaultOrbitalThreshold, "Convergence threshold on the maximum orbital error (negative disables).")
	fs.Float64Var(&config.PropertyThreshold, "property-threshold", DefaultPropertyThreshold, "Convergence threshold on the energy change (negative disables).")
	fs.IntVar(&config.History, "history", DefaultHistory, "Accelerator history length (< 2 disables acceleration).")
	fs.StringVar(&config.Rotation, "rotation", DefaultRotation, "Orbital rotation mode: 'canonical' or 'localized'.")
	fs.IntVar(&config.RotationPeriod, "rotation-period", 0, "Re-rotate the basis every N iterations (0 rotates only at the start).")
	fs.StringVar(&config.Mode, "mode", DefaultMode, "Optimization strategy: 'orbital' or 'energy'.")
	fs.Float64Var(&config.StartPrec, "start-prec", DefaultStartPrec, "Initial working precision (negative inherits -final-prec).")
	fs.Float64Var(&config.FinalPrec, "final-prec", DefaultFinalPrec, "Tightest working precision (negative inherits the default).")
	fs.StringVar(&config.Checkpoint, "checkpoint", "", "File prefix to save the converged orbitals under.")
	fs.StringVar(&config.Plot, "plot", "", "Path for the convergence plot (.svg, .png or .pdf).")
	fs.StringVar(&config.MetricsAddr, "metrics-addr", "", "Listen address for the /metrics and /healthz endpoint (empty disables).")
	fs.DurationVar(&config.Timeout, "timeout", DefaultTimeout, "Wall-clock budget for the optimization.")
	fs.BoolVar(&config.Verbose, "v", false, "Enable debug-level logging.")
	fs.BoolVar(&config.Quiet, "quiet", false, "Quiet mode - minimal output for scripts.")
	fs.BoolVar(&config.Quiet, "q", false, "Quiet mode (shorthand).")
	fs.BoolVar(&config.NoColor, "no-color", false, "Disable colored output (also respects NO_COLOR env var).")

	if err := fs.Parse(args); err != nil {
		return AppConfig{}, nil, err
	}

	// Apply environment variable overrides for flags not explicitly set.
	applyEnvOverrides(&config, fs)

	config.Rotation = strings.ToLower(config.Rotation)
	config.Mode = strings.ToLower(config.Mode)

	if config.Input == "" {
		fmt.Fprintln(errorWriter, "Configuration error:", "an input deck is required (-input <file>)")
		fs.Usage()
		return AppConfig{}, nil, errors.New("invalid configuration")
	}

	deck, err := LoadDeck(config.Input)
	if err != nil {
		fmt.Fprintln(errorWriter, "Configuration error:", err)
		return AppConfig{}, nil, err
	}
	deck.mergeSCF(&config)

	if err := config.Validate(); err != nil {
		fmt.Fprintln(errorWriter, "Configuration error:", err)
		fs.Usage()
		return AppConfig{}, nil, errors.New("invalid configuration")
	}
	return config, deck, nil
}
