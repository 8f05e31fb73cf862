package operator

import (
	"math"

	"github.com/qmsolve/mrscf/internal/comm"
	"github.com/qmsolve/mrscf/internal/field"
	"github.com/qmsolve/mrscf/internal/orbital"
)

// softKernel returns the softened interaction kernel 1/sqrt(r^2 + s^2) used
// by the two-electron operators. The softening keeps the 1D integrals finite
// where the bare kernel would diverge on the diagonal.
func softKernel(soft float64) func(r float64) float64 {
	s2 := soft * soft
	return func(r float64) float64 {
		return 1 / math.Sqrt(r*r+s2)
	}
}

// Coulomb is the mean-field electron repulsion operator: the potential
// generated by the occupation-weighted density of the orbital set the
// operator is bound to,
//
//	V_J(x) = ∫ rho(y) / sqrt((x-y)^2 + s^2) dy.
//
// The operator stays bound to the set pointer across generations: after the
// driver rotates the generation in place, the next Setup rebuilds the
// potential from the new orbitals.
type Coulomb struct {
	setupState
	phi  *orbital.Set
	com  comm.Comm
	soft float64

	pot *field.Field
}

// NewCoulomb creates the Coulomb operator bound to the given orbital set.
//
// Parameters:
//   - phi: The orbital set generating the density.
//   - com: The reduction capability for assembling the density across owners.
//   - soft: The kernel softening parameter (> 0).
//
// Returns:
//   - *Coulomb: The operator, not yet set up.
func NewCoulomb(phi *orbital.Set, com comm.Comm, soft float64) *Coulomb {
	return &Coulomb{phi: phi, com: com, soft: soft}
}

// Name returns "coulomb".
func (j *Coulomb) Name() string { return "coulomb" }

// Setup assembles the density from the bound orbitals and builds the
// repulsion potential by kernel convolution at the given precision.
func (j *Coulomb) Setup(prec float64) error {
	if j.isSetup(prec) {
		return nil
	}
	j.Clear()

	rho, err := assembleDensity(j.com, j.phi)
	if err != nil {
		return err
	}
	j.pot = field.Convolve(softKernel(j.soft), rho, prec)
	j.pot.Crop(prec)
	j.markSetup(prec)
	return nil
}

// Clear releases the potential.
func (j *Coulomb) Clear() {
	j.pot = nil
	j.clearSetup()
}

// Potential returns the assembled repulsion potential (nil before Setup).
func (j *Coulomb) Potential() *field.Field { return j.pot }

// Apply multiplies the orbital by the repulsion potential.
func (j *Coulomb) Apply(phi *orbital.Orbital) (*orbital.Orbital, error) {
	if err := j.requireSetup(j.Name()); err != nil {
		return nil, err
	}
	return mulPotential(j.pot, phi), nil
}

// assembleDensity accumulates the occupation-weighted density over the
// orbitals owned by this rank and sums the partial densities across all
// ranks, so every rank ends up with the total density.
func assembleDensity(com comm.Comm, phi *orbital.Set) (*field.Field, error) {
	grid := phi.Grid()
	local := make([]*orbital.Orbital, 0, phi.Size())
	for i, o := range phi.All() {
		if comm.Owns(com, comm.OwnerOf(com, i)) {
			local = append(local, o)
		}
	}
	rho := orbital.Density(orbital.NewSet(local...), grid)
	if err := com.AllReduceSum(rho.Coefs()); err != nil {
		return nil, err
	}
	return rho, nil
}
