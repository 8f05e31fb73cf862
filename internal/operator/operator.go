// Package operator implements the one- and two-electron operators entering
// the effective single-particle equations, and their composition into the
// Fock operator: kinetic energy, smoothed nuclear attraction, Coulomb
// repulsion from the occupation-weighted density, orbital exchange and a
// local density-functional contribution.
//
// Operators follow a two-phase protocol: Setup(prec) builds the internal
// potentials at the given precision, Apply and matrix elements are only valid
// between Setup and Clear. Setting up an already set-up operator at the same
// precision is a no-op; Clear is idempotent.
package operator

import (
	"gonum.org/v1/gonum/mat"

	apperrors "github.com/qmsolve/mrscf/internal/errors"
	"github.com/qmsolve/mrscf/internal/field"
	"github.com/qmsolve/mrscf/internal/orbital"
)

// Operator is one term of the effective single-particle Hamiltonian.
type Operator interface {
	// Name returns a short lowercase tag for logs and tables.
	Name() string

	// Setup prepares the operator at the given precision. Calling Setup
	// again with the same precision is a no-op; a different precision
	// rebuilds the internals.
	Setup(prec float64) error

	// Apply maps an orbital through the operator, returning a new orbital
	// with the argument's metadata. The argument is not modified.
	Apply(phi *orbital.Orbital) (*orbital.Orbital, error)

	// Clear releases the operator's internal state. Idempotent.
	Clear()
}

// setupState tracks the Setup/Clear lifecycle shared by all operator terms.
type setupState struct {
	prec  float64
	ready bool
}

func (s *setupState) isSetup(prec float64) bool {
	return s.ready && s.prec == prec
}

func (s *setupState) markSetup(prec float64) {
	s.prec = prec
	s.ready = true
}

func (s *setupState) clearSetup() {
	s.ready = false
	s.prec = 0
}

func (s *setupState) requireSetup(name string) error {
	if !s.ready {
		return apperrors.NewSolverError("operator %s applied before setup", name)
	}
	return nil
}

// Matrix computes the operator matrix M_ij = <bra_i | op | ket_j>.
//
// Parameters:
//   - op: The operator (must be set up).
//   - bra: The bra-side orbital set.
//   - ket: The ket-side orbital set.
//
// Returns:
//   - *mat.Dense: The len(bra) x len(ket) matrix of elements.
//   - error: An error if the operator fails on any column.
func Matrix(op Operator, bra, ket *orbital.Set) (*mat.Dense, error) {
	n, m := bra.Size(), ket.Size()
	M := mat.NewDense(n, m, nil)
	for j := 0; j < m; j++ {
		col, err := op.Apply(ket.At(j))
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			M.Set(i, j, orbital.Dot(bra.At(i), col))
		}
		col.Free()
	}
	return M, nil
}

// Trace computes the occupation-weighted trace sum_i occ_i <phi_i|op|phi_i>.
func Trace(op Operator, phi *orbital.Set) (float64, error) {
	var s float64
	for _, o := range phi.All() {
		if !o.HasReal() && !o.HasImag() {
			continue
		}
		t, err := op.Apply(o)
		if err != nil {
			return 0, err
		}
		s += o.Occ() * orbital.Dot(o, t)
		t.Free()
	}
	return s, nil
}

// mulPotential multiplies each allocated component of phi by the potential
// field, returning a new orbital with phi's metadata.
func mulPotential(pot *field.Field, phi *orbital.Orbital) *orbital.Orbital {
	out := phi.ParamCopy()
	if phi.HasReal() {
		out.SetReal(pot.Mul(phi.Real()))
	}
	if phi.HasImag() {
		out.SetImag(pot.Mul(phi.Imag()))
	}
	return out
}
