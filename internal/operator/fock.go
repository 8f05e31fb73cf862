package operator

import (
	"gonum.org/v1/gonum/mat"

	apperrors "github.com/qmsolve/mrscf/internal/errors"
	"github.com/qmsolve/mrscf/internal/orbital"
)

// Fock composes the operator terms into the effective single-particle
// Hamiltonian F = T + V + J - K + V_xc. Every slot may be nil; a nil slot
// simply contributes nothing, which is how reduced operators (e.g. the
// two-electron part alone) are expressed.
//
// The composition is bound to an orbital set: the density-driven terms
// rebuild from whatever the set holds at Setup time. Rotating the set's
// generation in place and calling Setup again is the intended usage.
type Fock struct {
	phi *orbital.Set

	kin *Kinetic
	nuc *Nuclear
	cou *Coulomb
	exc *Exchange
	xc  *XC

	prec  float64
	ready bool
}

// Contributions is the energy decomposition of one generation.
type Contributions struct {
	Kinetic  float64
	Nuclear  float64
	Coulomb  float64
	Exchange float64
	XC       float64
	Total    float64
}

// NewFock composes the given terms into a Fock operator bound to phi.
// Any term may be nil.
func NewFock(phi *orbital.Set, kin *Kinetic, nuc *Nuclear, cou *Coulomb, exc *Exchange, xc *XC) *Fock {
	return &Fock{phi: phi, kin: kin, nuc: nuc, cou: cou, exc: exc, xc: xc}
}

// Bound returns the orbital set the operator is bound to.
func (f *Fock) Bound() *orbital.Set { return f.phi }

// Kinetic returns the kinetic term (may be nil).
func (f *Fock) Kinetic() *Kinetic { return f.kin }

// Nuclear returns the nuclear term (may be nil).
func (f *Fock) Nuclear() *Nuclear { return f.nuc }

// Coulomb returns the Coulomb term (may be nil).
func (f *Fock) Coulomb() *Coulomb { return f.cou }

// Exchange returns the exchange term (may be nil).
func (f *Fock) Exchange() *Exchange { return f.exc }

// XC returns the local functional term (may be nil).
func (f *Fock) XC() *XC { return f.xc }

// IsSetup reports whether the operator is currently set up.
func (f *Fock) IsSetup() bool { return f.ready }

// terms collects the non-nil slots for uniform lifecycle handling.
func (f *Fock) terms() []Operator {
	var out []Operator
	if f.kin != nil {
		out = append(out, f.kin)
	}
	if f.nuc != nil {
		out = append(out, f.nuc)
	}
	if f.cou != nil {
		out = append(out, f.cou)
	}
	if f.exc != nil {
		out = append(out, f.exc)
	}
	if f.xc != nil {
		out = append(out, f.xc)
	}
	return out
}

// Setup prepares every term at the given precision. Setting up at the same
// precision twice is a no-op; a different precision rebuilds the
// density-driven terms from the bound set's current generation.
func (f *Fock) Setup(prec float64) error {
	if f.phi == nil {
		return apperrors.NewSolverError("fock operator is not bound to an orbital set")
	}
	if f.ready && f.prec == prec {
		return nil
	}
	for _, t := range f.terms() {
		if err := t.Setup(prec); err != nil {
			return apperrors.WrapError(err, "setting up %s term", t.Name())
		}
	}
	f.prec = prec
	f.ready = true
	return nil
}

// Clear releases every term's internal state. Idempotent.
func (f *Fock) Clear() {
	for _, t := range f.terms() {
		t.Clear()
	}
	f.ready = false
	f.prec = 0
}

// ApplyPotential applies the potential part V + J - K + V_xc, excluding the
// kinetic term. This is the operator entering the integral-equation update,
// where the kinetic part is inverted rather than applied.
func (f *Fock) ApplyPotential(o *orbital.Orbital) (*orbital.Orbital, error) {
	if !f.ready {
		return nil, apperrors.NewSolverError("fock operator applied before setup")
	}
	out := o.ParamCopy()
	// The nil checks stay on the concrete pointers: a nil slot passed
	// through the Operator interface would compare non-nil.
	add := func(op Operator, sign float64) error {
		t, err := op.Apply(o)
		if err != nil {
			return err
		}
		next := orbital.AddOrbitals(1, out, sign, t)
		t.Free()
		out = next
		return nil
	}
	if f.nuc != nil {
		if err := add(f.nuc, 1); err != nil {
			return nil, err
		}
	}
	if f.cou != nil {
		if err := add(f.cou, 1); err != nil {
			return nil, err
		}
	}
	if f.exc != nil {
		if err := add(f.exc, -1); err != nil {
			return nil, err
		}
	}
	if f.xc != nil {
		if err := add(f.xc, 1); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Apply applies the full operator including the kinetic term.
func (f *Fock) Apply(o *orbital.Orbital) (*orbital.Orbital, error) {
	pot, err := f.ApplyPotential(o)
	if err != nil {
		return nil, err
	}
	if f.kin == nil {
		return pot, nil
	}
	t, err := f.kin.Apply(o)
	if err != nil {
		return nil, err
	}
	out := orbital.AddOrbitals(1, pot, 1, t)
	pot.Free()
	t.Free()
	return out, nil
}

// PotentialMatrix computes the matrix of the potential part,
// M_ij = <bra_i | V + J - K + V_xc | ket_j>.
func (f *Fock) PotentialMatrix(bra, ket *orbital.Set) (*mat.Dense, error) {
	if !f.ready {
		return nil, apperrors.NewSolverError("fock matrix requested before setup")
	}
	n, m := bra.Size(), ket.Size()
	M := mat.NewDense(n, m, nil)
	for j := 0; j < m; j++ {
		col, err := f.ApplyPotential(ket.At(j))
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

// Matrix computes the full operator matrix including the kinetic term.
func (f *Fock) Matrix(bra, ket *orbital.Set) (*mat.Dense, error) {
	M, err := f.PotentialMatrix(bra, ket)
	if err != nil {
		return nil, err
	}
	if f.kin != nil {
		T, err := f.kin.Matrix(bra, ket)
		if err != nil {
			return nil, err
		}
		M.Add(M, T)
	}
	return M, nil
}

// Trace computes the energy decomposition of the given orbital set under
// this operator. The two-electron contributions carry the double-counting
// factor 1/2; the local functional contributes its functional energy rather
// than a potential trace.
func (f *Fock) Trace(phi *orbital.Set) (Contributions, error) {
	if !f.ready {
		return Contributions{}, apperrors.NewSolverError("energy trace requested before setup")
	}
	var c Contributions
	var err error

	if f.kin != nil {
		if c.Kinetic, err = f.kin.Trace(phi); err != nil {
			return Contributions{}, err
		}
	}
	if f.nuc != nil {
		if c.Nuclear, err = f.nuc.Trace(phi); err != nil {
			return Contributions{}, err
		}
	}
	if f.cou != nil {
		t, err := Trace(f.cou, phi)
		if err != nil {
			return Contributions{}, err
		}
		c.Coulomb = 0.5 * t
	}
	if f.exc != nil {
		t, err := Trace(f.exc, phi)
		if err != nil {
			return Contributions{}, err
		}
		c.Exchange = -0.5 * t
	}
	if f.xc != nil {
		c.XC = f.xc.Energy()
	}
	c.Total = c.Kinetic + c.Nuclear + c.Coulomb + c.Exchange + c.XC
	return c, nil
}
