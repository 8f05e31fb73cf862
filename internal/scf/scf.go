// Package scf implements the self-consistent-field driver: the fixed-point
// iteration that alternates effective-operator construction, the Helmholtz
// integral-equation orbital update, convergence acceleration and adaptive
// precision control until the orbitals are stationary.
//
// The driver is a single iteration loop parameterized by small policies
// (rotation mode, optimization mode) rather than a hierarchy of solver
// types. It owns the Fock matrix and the orbital generations exclusively
// between Setup and Clear.
package scf

import (
	"gonum.org/v1/gonum/mat"

	"github.com/qmsolve/mrscf/internal/comm"
	apperrors "github.com/qmsolve/mrscf/internal/errors"
	"github.com/qmsolve/mrscf/internal/helmholtz"
	"github.com/qmsolve/mrscf/internal/kain"
	"github.com/qmsolve/mrscf/internal/logging"
	"github.com/qmsolve/mrscf/internal/operator"
	"github.com/qmsolve/mrscf/internal/orbital"
	"github.com/qmsolve/mrscf/internal/precision"
)

// State is the driver lifecycle state.
type State int

const (
	// Uninitialized is the state before Setup.
	Uninitialized State = iota
	// Ready means working references are bound and Optimize may run.
	Ready
	// Iterating means Optimize is in progress.
	Iterating
	// Converged means the last run satisfied both thresholds.
	Converged
	// MaxIterReached means the last run hit the iteration cap.
	MaxIterReached
	// Cleared means the references were released; Setup may be called again.
	Cleared
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Iterating:
		return "iterating"
	case Converged:
		return "converged"
	case MaxIterReached:
		return "max-iter-reached"
	case Cleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Mode selects the optimization strategy.
type Mode int

const (
	// OrbitalOptimizer updates orbitals only; the Fock matrix is recomputed
	// from scratch every iteration.
	OrbitalOptimizer Mode = iota
	// EnergyOptimizer updates orbitals and the Fock matrix together; the
	// matrix update is assembled incrementally from overlap corrections.
	EnergyOptimizer
)

// RotationMode selects the basis the orbitals are rotated into.
type RotationMode int

const (
	// Canonical diagonalizes the Fock matrix; orbitals become eigenvectors
	// ordered by ascending eigenvalue.
	Canonical RotationMode = iota
	// Localized applies the unitary transform minimizing spatial extent; the
	// Fock matrix is congruence-transformed and stays non-diagonal.
	Localized
)

// Options is the configuration surface of the driver.
type Options struct {
	// MaxIter caps the number of iterations; negative means unbounded.
	MaxIter int
	// OrbitalThreshold is the convergence threshold on the maximum orbital
	// error; negative disables the check.
	OrbitalThreshold float64
	// PropertyThreshold is the convergence threshold on the energy change
	// between iterations; negative disables the check.
	PropertyThreshold float64
	// History is the accelerator history capacity; values < 2 disable
	// acceleration.
	History int
	// Rotation selects canonical or localized orbitals.
	Rotation RotationMode
	// RotationPeriod rotates the basis every RotationPeriod iterations in
	// addition to the first two; 0 rotates only at the start and at the
	// final polish.
	RotationPeriod int
	// Mode selects the optimization strategy.
	Mode Mode
	// StartPrec and FinalPrec bound the adaptive precision schedule;
	// negative values inherit (start from final, final from the default).
	StartPrec float64
	FinalPrec float64
}

// Result is the outcome of one optimization. Non-convergence is a normal
// outcome reported here, never an error.
type Result struct {
	Converged     bool
	Iterations    int
	Energies      []operator.Contributions
	OrbitalError  float64
	PropertyError float64
}

// Final returns the last energy record, or a zero record before the first
// iteration completed.
func (r Result) Final() operator.Contributions {
	if len(r.Energies) == 0 {
		return operator.Contributions{}
	}
	return r.Energies[len(r.Energies)-1]
}

// Solver drives the SCF iteration.
type Solver struct {
	opts Options
	com  comm.Comm
	log  logging.Logger
	obs  []Observer

	state State

	fock    *operator.Fock
	fmat    *mat.Dense
	phi     *orbital.Set
	fockNp1 *operator.Fock
	phiNp1  *orbital.Set

	helm *helmholtz.Set
	acc  *kain.Accelerator
	prec *precision.Controller

	energies []operator.Contributions
}

// New creates a solver with the given options.
//
// Parameters:
//   - opts: The configuration surface (see Options).
//   - com: The distributed reduction capability.
//   - log: The destination for progress and warnings (nil means silent).
//   - obs: Optional observers notified after every iteration.
//
// Returns:
//   - *Solver: An unbound solver; call Setup before Optimize.
func New(opts Options, com comm.Comm, log logging.Logger, obs ...Observer) *Solver {
	if log == nil {
		log = logging.Nop{}
	}
	return &Solver{opts: opts, com: com, log: log, obs: obs, state: Uninitialized}
}

// State returns the driver lifecycle state.
func (s *Solver) State() State { return s.state }

// Setup binds the working references for orbital-only optimization: the
// effective operator, its matrix in the current orbital basis, and the
// orbital set. Calling Setup twice without an intervening Clear is a fatal
// invariant violation.
func (s *Solver) Setup(fock *operator.Fock, F *mat.Dense, phi *orbital.Set) error {
	return s.bind(fock, F, phi, nil, nil)
}

// SetupEnergy binds the working references for combined orbital+energy
// optimization. The next-generation operator and orbital slots are required
// by the incremental Fock-matrix update; running EnergyOptimizer mode
// without them aborts at the first update.
func (s *Solver) SetupEnergy(fock *operator.Fock, F *mat.Dense, phi *orbital.Set,
	fockNp1 *operator.Fock, phiNp1 *orbital.Set) error {
	return s.bind(fock, F, phi, fockNp1, phiNp1)
}

func (s *Solver) bind(fock *operator.Fock, F *mat.Dense, phi *orbital.Set,
	fockNp1 *operator.Fock, phiNp1 *orbital.Set) error {
	if s.state == Ready || s.state == Iterating {
		return apperrors.NewSolverError("solver setup called twice without clear")
	}
	if fock == nil || F == nil || phi == nil {
		return apperrors.NewSolverError("solver setup requires operator, matrix and orbitals")
	}
	r, c := F.Dims()
	if r != phi.Size() || c != phi.Size() {
		return apperrors.NewSolverError(
			"operator matrix is %dx%d against %d orbitals", r, c, phi.Size())
	}

	s.fock = fock
	s.fmat = F
	s.phi = phi
	s.fockNp1 = fockNp1
	s.phiNp1 = phiNp1
	s.helm = helmholtz.NewSet(s.com, s.log)
	s.acc = kain.New(s.opts.History, s.log)
	s.prec = precision.New(s.opts.StartPrec, s.opts.FinalPrec)
	s.energies = nil
	s.state = Ready
	return nil
}

// Clear releases all bound references. It is idempotent and callable even
// if Setup was never called.
func (s *Solver) Clear() {
	if s.helm != nil {
		s.helm.Clear()
	}
	if s.acc != nil {
		s.acc.Clear()
	}
	s.fock = nil
	s.fmat = nil
	s.phi = nil
	s.fockNp1 = nil
	s.phiNp1 = nil
	s.helm = nil
	s.acc = nil
	s.prec = nil
	s.energies = nil
	s.state = Cleared
}

// converged evaluates the convergence policy: both thresholds must be
// satisfied, and a negative threshold disables its check.
func (s *Solver) converged(errO, propErr float64) bool {
	orbOK := s.opts.OrbitalThreshold < 0 || errO < s.opts.OrbitalThreshold
	propOK := s.opts.PropertyThreshold < 0 || propErr < s.opts.PropertyThreshold
	return orbOK && propOK
}

// needsRotation decides whether this iteration starts with a basis rotation.
// The first two iterations always rotate; afterwards only on the configured
// period. Rotations invalidate the accelerator history.
func (s *Solver) needsRotation(iter int) bool {
	if iter <= 2 {
		return true
	}
	if s.opts.RotationPeriod > 0 && iter%s.opts.RotationPeriod == 0 {
		return true
	}
	return false
}

// rotate applies the configured basis rotation to phi and F in place.
func (s *Solver) rotate(prec float64, phi *orbital.Set, F *mat.Dense) error {
	var err error
	switch s.opts.Rotation {
	case Canonical:
		_, err = orbital.Diagonalize(prec, phi, F)
	case Localized:
		_, err = orbital.Localize(prec, phi, F)
	default:
		err = apperrors.NewSolverError("unknown rotation mode %d", s.opts.Rotation)
	}
	return err
}
