package app

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/qmsolve/mrscf/internal/comm"
	"github.com/qmsolve/mrscf/internal/config"
	apperrors "github.com/qmsolve/mrscf/internal/errors"
	"github.com/qmsolve/mrscf/internal/field"
	"github.com/qmsolve/mrscf/internal/logging"
	"github.com/qmsolve/mrscf/internal/operator"
	"github.com/qmsolve/mrscf/internal/orbital"
	"github.com/qmsolve/mrscf/internal/precision"
)

// system is the assembled model: grid, initial-guess orbitals, the bound
// Fock operator, and the initial operator matrix.
type system struct {
	deck *config.Deck
	grid *field.Grid
	phi  *orbital.Set
	fock *operator.Fock
	fmat *mat.Dense
	log  logging.Logger
}

// buildSystem constructs the model from the input deck: the grid, a
// Löwdin-orthonormalized gaussian initial guess centered on the wells, the
// configured Fock terms, and the initial operator matrix at the starting
// precision.
func buildSystem(deck *config.Deck, cfg config.AppConfig, log logging.Logger) (*system, error) {
	grid, err := deck.BuildGrid()
	if err != nil {
		return nil, err
	}

	phi, err := initialGuess(deck, grid)
	if err != nil {
		return nil, err
	}

	fock := operator.NewFock(phi,
		operator.NewKinetic(),
		operator.NewNuclear(grid, comm.Serial{}, log, deck.Nuclei(), deck.System.WellSoftening),
		operator.NewCoulomb(phi, comm.Serial{}, deck.System.PairSoftening),
		exchangeTerm(deck, phi),
		xcTerm(deck, phi),
	)

	// The solver re-runs Setup every iteration; this first pass exists only
	// to take the initial operator matrix.
	prec := precision.New(cfg.StartPrec, cfg.FinalPrec)
	if err := fock.Setup(prec.Current()); err != nil {
		return nil, apperrors.WrapError(err, "initial operator setup")
	}
	fmat, err := fock.Matrix(phi, phi)
	if err != nil {
		return nil, apperrors.WrapError(err, "initial operator matrix")
	}

	return &system{deck: deck, grid: grid, phi: phi, fock: fock, fmat: fmat, log: log}, nil
}

func exchangeTerm(deck *config.Deck, phi *orbital.Set) *operator.Exchange {
	if !deck.System.Exchange {
		return nil
	}
	return operator.NewExchange(phi, deck.System.PairSoftening)
}

func xcTerm(deck *config.Deck, phi *orbital.Set) *operator.XC {
	if deck.System.XC == 0 {
		return nil
	}
	return operator.NewXC(phi, comm.Serial{}, deck.System.XC)
}

// initialGuess places a gaussian on the well of each orbital slot, cycling
// through the nuclei; repeated wells get node-carrying polynomials so the
// guess stays linearly independent. The set is Löwdin-orthonormalized.
func initialGuess(deck *config.Deck, grid *field.Grid) (*orbital.Set, error) {
	nuclei := deck.Nuclei()
	orbs := make([]*orbital.Orbital, len(deck.System.Orbitals))
	for i, spec := range deck.System.Orbitals {
		o, err := spec.NewOrbital()
		if err != nil {
			return nil, apperrors.NewConfigError("orbital %d: %v", i, err)
		}
		center := nuclei[i%len(nuclei)].X
		nodes := i / len(nuclei)
		o.SetReal(field.Project(grid, guessFunc(center, nodes), 0))
		orbs[i] = o
	}

	phi := orbital.NewSet(orbs...)
	if _, err := orbital.Orthonormalize(0, phi); err != nil {
		return nil, apperrors.WrapError(err, "orthonormalizing the initial guess")
	}
	return phi, nil
}

// guessFunc is a gaussian at center, multiplied by (x-center)^nodes for
// higher slots sharing the same well.
func guessFunc(center float64, nodes int) func(x float64) float64 {
	return func(x float64) float64 {
		d := x - center
		return math.Pow(d, float64(nodes)) * math.Exp(-d*d)
	}
}

// nextGeneration builds the operator binding the combined optimization
// updates against: the same potential terms bound to the next-generation
// orbital slots.
func (s *system) nextGeneration() (*operator.Fock, *orbital.Set) {
	phiNp1 := s.phi.ParamCopy()
	fockNp1 := operator.NewFock(phiNp1, nil, nil,
		operator.NewCoulomb(phiNp1, comm.Serial{}, s.deck.System.PairSoftening),
		exchangeTerm(s.deck, phiNp1),
		xcTerm(s.deck, phiNp1),
	)
	return fockNp1, phiNp1
}
