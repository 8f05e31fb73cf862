package operator

import (
	"github.com/qmsolve/mrscf/internal/field"
	"github.com/qmsolve/mrscf/internal/orbital"
)

// Exchange is the non-local orbital exchange operator,
//
//	(K phi)(x) = sum_j f_j phi_j(x) ∫ phi_j(y) phi(y) / sqrt((x-y)^2 + s^2) dy,
//
// with spin factor f_j = occ_j/2 for paired orbitals and occ_j otherwise.
// Orbitals of a different spin than the argument do not contribute. Unlike
// the density-driven Coulomb operator there is no potential to precompute;
// each Apply performs one convolution per contributing orbital at the
// precision the operator was set up with.
type Exchange struct {
	setupState
	phi  *orbital.Set
	soft float64
}

// NewExchange creates the exchange operator bound to the given orbital set.
func NewExchange(phi *orbital.Set, soft float64) *Exchange {
	return &Exchange{phi: phi, soft: soft}
}

// Name returns "exchange".
func (k *Exchange) Name() string { return "exchange" }

// Setup records the working precision; the pair convolutions happen per
// Apply.
func (k *Exchange) Setup(prec float64) error {
	if k.isSetup(prec) {
		return nil
	}
	k.markSetup(prec)
	return nil
}

// Clear resets the setup state.
func (k *Exchange) Clear() { k.clearSetup() }

// spinFactor returns the exchange weight of one contributing orbital.
func spinFactor(o *orbital.Orbital) float64 {
	if o.Spin() == orbital.Paired {
		return o.Occ() / 2
	}
	return o.Occ()
}

// contributes reports whether orbital j exchanges with the argument spin.
// Paired orbitals exchange with everything; pure spins only among equals.
func contributes(j orbital.Spin, arg orbital.Spin) bool {
	return j == arg || j == orbital.Paired || arg == orbital.Paired
}

// Apply computes K phi by pairwise convolution against the bound set.
func (k *Exchange) Apply(phi *orbital.Orbital) (*orbital.Orbital, error) {
	if err := k.requireSetup(k.Name()); err != nil {
		return nil, err
	}
	kernel := softKernel(k.soft)

	out := phi.ParamCopy()
	accumulate := func(dst **field.Field, pj *field.Field, arg *field.Field, w float64) {
		pair := field.Convolve(kernel, pj.Mul(arg), k.prec)
		term := pj.Mul(pair)
		if *dst == nil {
			*dst = field.New(arg.Grid())
		}
		(*dst).Axpy(w, term)
	}

	var re, im *field.Field
	for _, oj := range k.phi.All() {
		if !oj.HasReal() || !contributes(oj.Spin(), phi.Spin()) {
			continue
		}
		w := spinFactor(oj)
		if phi.HasReal() {
			accumulate(&re, oj.Real(), phi.Real(), w)
		}
		if phi.HasImag() {
			accumulate(&im, oj.Real(), phi.Imag(), w)
		}
	}
	if re != nil {
		re.Crop(k.prec)
		out.SetReal(re)
	}
	if im != nil {
		im.Crop(k.prec)
		out.SetImag(im)
	}
	return out, nil
}
