package operator

import (
	"math"

	"github.com/qmsolve/mrscf/internal/comm"
	"github.com/qmsolve/mrscf/internal/field"
	"github.com/qmsolve/mrscf/internal/orbital"
)

// XC is a local density functional contribution of Slater-exchange form:
// the potential v_xc = -c rho^{1/3} and the matching energy
// E_xc = -(3c/4) ∫ rho^{4/3}. A zero coefficient makes the operator inert,
// which is how Hartree-Fock runs carry an unbound functional slot.
type XC struct {
	setupState
	phi  *orbital.Set
	com  comm.Comm
	coef float64

	pot    *field.Field
	energy float64
}

// NewXC creates the local functional operator bound to the given orbital set.
//
// Parameters:
//   - phi: The orbital set generating the density.
//   - com: The reduction capability for assembling the density across owners.
//   - coef: The functional strength (0 disables the contribution).
//
// Returns:
//   - *XC: The operator, not yet set up.
func NewXC(phi *orbital.Set, com comm.Comm, coef float64) *XC {
	return &XC{phi: phi, com: com, coef: coef}
}

// Name returns "xc".
func (x *XC) Name() string { return "xc" }

// Setup assembles the density and evaluates the potential and the functional
// energy nodewise.
func (x *XC) Setup(prec float64) error {
	if x.isSetup(prec) {
		return nil
	}
	x.Clear()

	rho, err := assembleDensity(x.com, x.phi)
	if err != nil {
		return err
	}
	grid := rho.Grid()

	pot := field.New(grid)
	eDens := field.New(grid)
	pc, ec := pot.Coefs(), eDens.Coefs()
	for i, r := range rho.Coefs() {
		if r <= 0 {
			continue
		}
		r13 := math.Cbrt(r)
		pc[i] = -x.coef * r13
		ec[i] = -0.75 * x.coef * r * r13
	}
	pot.Crop(prec)

	x.pot = pot
	x.energy = eDens.Integral()
	x.markSetup(prec)
	return nil
}

// Clear releases the potential and resets the energy.
func (x *XC) Clear() {
	x.pot = nil
	x.energy = 0
	x.clearSetup()
}

// Potential returns the functional potential (nil before Setup).
func (x *XC) Potential() *field.Field { return x.pot }

// Energy returns the functional energy of the density the operator was set
// up with. Unlike the trace-based contributions this is NOT the potential
// expectation value; the functional energy and its potential differ by the
// usual factor built into the nodewise evaluation.
func (x *XC) Energy() float64 { return x.energy }

// Apply multiplies the orbital by the functional potential.
func (x *XC) Apply(phi *orbital.Orbital) (*orbital.Orbital, error) {
	if err := x.requireSetup(x.Name()); err != nil {
		return nil, err
	}
	return mulPotential(x.pot, phi), nil
}
