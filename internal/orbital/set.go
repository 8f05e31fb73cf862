package orbital

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/qmsolve/mrscf/internal/field"
)

// Set is an ordered, fixed-length sequence of orbitals for one generation of
// the SCF iteration. Size and per-slot spin/occupation are fixed once set
// up; only field data and error estimates change between iterations.
//
// The rotations below mix orbitals across slots and therefore require the
// participating orbitals to be present locally (replicated, or running on a
// single rank). Per-orbital work respects distributed ownership; the driver
// reduces across owners before any cross-slot operation.
type Set struct {
	orbs []*Orbital
}

// NewSet creates a set from the given orbitals. The slice is adopted, not
// copied.
func NewSet(orbs ...*Orbital) *Set {
	return &Set{orbs: orbs}
}

// Size returns the number of orbitals in the set.
func (s *Set) Size() int { return len(s.orbs) }

// At returns the i-th orbital.
func (s *Set) At(i int) *Orbital { return s.orbs[i] }

// All returns the underlying orbital slice. The slice is shared.
func (s *Set) All() []*Orbital { return s.orbs }

// Replace swaps the set's contents for those of other, in place. This is
// how a generation is rotated: holders of the Set pointer (e.g. operators
// bound to the next generation) observe the new orbitals.
func (s *Set) Replace(other *Set) { s.orbs = other.orbs }

// ParamCopy returns a set of field-empty orbitals with slot-identical
// metadata, used as the next-generation slots before they are computed.
func (s *Set) ParamCopy() *Set {
	out := make([]*Orbital, len(s.orbs))
	for i, o := range s.orbs {
		out[i] = o.ParamCopy()
	}
	return NewSet(out...)
}

// Free releases the field data of every orbital in the set.
func (s *Set) Free() {
	for _, o := range s.orbs {
		o.Free()
	}
}

// Grid returns the common grid of the set's allocated orbitals, or nil if
// the set is empty of field data.
func (s *Set) Grid() *field.Grid {
	for _, o := range s.orbs {
		if g := o.Grid(); g != nil {
			return g
		}
	}
	return nil
}

// Norms returns the per-orbital L2 norms. Unallocated orbitals report zero,
// which is also what a non-owner rank contributes before the cross-owner
// reduction.
func (s *Set) Norms() []float64 {
	out := make([]float64, len(s.orbs))
	for i, o := range s.orbs {
		out[i] = o.Norm()
	}
	return out
}

// Errors returns the per-orbital error estimates.
func (s *Set) Errors() []float64 {
	out := make([]float64, len(s.orbs))
	for i, o := range s.orbs {
		out[i] = o.Error()
	}
	return out
}

// SetErrors updates the per-orbital error estimates.
func (s *Set) SetErrors(errs []float64) {
	for i, o := range s.orbs {
		o.SetError(errs[i])
	}
}

// MaxError returns the componentwise maximum of the per-orbital error
// estimates.
func (s *Set) MaxError() float64 {
	var m float64
	for _, o := range s.orbs {
		if o.Error() > m {
			m = o.Error()
		}
	}
	return m
}

// Crop compresses every orbital in the set to the given precision.
func (s *Set) Crop(prec float64) {
	for _, o := range s.orbs {
		o.Crop(prec)
	}
}

// Add returns a*A + b*B slot by slot as a new set.
func Add(a float64, A *Set, b float64, B *Set) *Set {
	if A.Size() != B.Size() {
		panic(fmt.Sprintf("orbital: set size mismatch %d vs %d", A.Size(), B.Size()))
	}
	out := make([]*Orbital, A.Size())
	for i := range out {
		out[i] = AddOrbitals(a, A.orbs[i], b, B.orbs[i])
	}
	return NewSet(out...)
}

// Overlap computes the overlap matrix S_ij = <bra_i | ket_j>.
func Overlap(bra, ket *Set) *mat.Dense {
	n, m := bra.Size(), ket.Size()
	S := mat.NewDense(n, m, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			S.Set(i, j, Dot(bra.orbs[i], ket.orbs[j]))
		}
	}
	return S
}

// Rotate forms the rotated set phi'_i = sum_j U_ij phi_j as new orbitals
// carrying the slot metadata of phi. The result is cropped to prec.
func Rotate(U mat.Matrix, phi *Set, prec float64) *Set {
	r, c := U.Dims()
	if r != phi.Size() || c != phi.Size() {
		panic(fmt.Sprintf("orbital: rotation matrix is %dx%d against set of %d", r, c, phi.Size()))
	}
	grid := phi.Grid()

	out := make([]*Orbital, r)
	for i := 0; i < r; i++ {
		o := phi.orbs[i].ParamCopy()
		o.SetError(phi.orbs[i].Error())
		re := field.New(grid)
		var im *field.Field
		for j := 0; j < c; j++ {
			u := U.At(i, j)
			if u == 0 {
				continue
			}
			src := phi.orbs[j]
			if src.HasReal() {
				re.Axpy(u, src.Real())
			}
			if src.HasImag() {
				if im == nil {
					im = field.New(grid)
				}
				im.Axpy(u, src.Imag())
			}
		}
		o.SetReal(re)
		if im != nil {
			o.SetImag(im)
		}
		o.Crop(prec)
		out[i] = o
	}
	return NewSet(out...)
}

// LowdinMatrix computes S^{-1/2} for the set's overlap matrix via symmetric
// eigendecomposition. The overlap must be positive definite; a
// non-positive eigenvalue means the set is linearly dependent and is
// reported as an error.
func LowdinMatrix(phi *Set) (*mat.Dense, error) {
	n := phi.Size()
	S := Overlap(phi, phi)

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, 0.5*(S.At(i, j)+S.At(j, i)))
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return nil, fmt.Errorf("orbital: overlap eigendecomposition failed")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	inv := mat.NewDense(n, n, nil)
	for k, v := range vals {
		if v <= 0 {
			return nil, fmt.Errorf("orbital: overlap matrix is not positive definite (eigenvalue %g)", v)
		}
		s := 1 / math.Sqrt(v)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				inv.Set(i, j, inv.At(i, j)+s*vecs.At(i, k)*vecs.At(j, k))
			}
		}
	}
	return inv, nil
}

// Orthonormalize applies the symmetric (Löwdin) transform to the set in
// place, guaranteeing exact orthonormality regardless of accumulated
// integration error, and returns the transform used.
//
// Parameters:
//   - prec: The working precision for the rotated orbitals.
//   - phi: The set to orthonormalize (replaced in place).
//
// Returns:
//   - *mat.Dense: The S^{-1/2} transform that was applied.
//   - error: An error if the overlap is not positive definite.
func Orthonormalize(prec float64, phi *Set) (*mat.Dense, error) {
	U, err := LowdinMatrix(phi)
	if err != nil {
		return nil, err
	}
	rotated := Rotate(U, phi, prec)
	phi.Replace(rotated)
	return U, nil
}

// Diagonalize rotates the set into the eigenbasis of the effective operator
// matrix F (orbitals ordered by ascending eigenvalue) and applies the same
// congruence transform to F in place. It returns the rotation U with
// phi'_i = sum_j U_ij phi_j.
func Diagonalize(prec float64, phi *Set, F *mat.Dense) (*mat.Dense, error) {
	U, err := eigenRotation(F, phi.Size())
	if err != nil {
		return nil, fmt.Errorf("orbital: diagonalizing operator matrix: %w", err)
	}
	applyRotation(U, phi, F, prec)
	return U, nil
}

// Localize rotates the set into the basis that minimizes spatial extent.
// In one dimension this is the eigenbasis of the position operator: the
// orthogonal transform maximizing the squared diagonal of X. The operator
// matrix F is congruence-transformed accordingly (and is no longer
// diagonal).
func Localize(prec float64, phi *Set, F *mat.Dense) (*mat.Dense, error) {
	grid := phi.Grid()
	x := field.Project(grid, func(x float64) float64 { return x }, 0)

	n := phi.Size()
	X := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			bra, ket := phi.orbs[i], phi.orbs[j]
			var v float64
			if bra.HasReal() && ket.HasReal() {
				v += bra.Real().Dot(x.Mul(ket.Real()))
			}
			if bra.HasImag() && ket.HasImag() {
				v += bra.Imag().Dot(x.Mul(ket.Imag()))
			}
			X.Set(i, j, v)
		}
	}

	U, err := eigenRotation(X, n)
	if err != nil {
		return nil, fmt.Errorf("orbital: localization transform: %w", err)
	}
	applyRotation(U, phi, F, prec)
	return U, nil
}

// eigenRotation builds the rotation U = V^T from the symmetric part of M,
// with eigenvectors ordered by ascending eigenvalue.
func eigenRotation(M *mat.Dense, n int) (*mat.Dense, error) {
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, 0.5*(M.At(i, j)+M.At(j, i)))
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return nil, fmt.Errorf("eigendecomposition failed")
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	U := mat.NewDense(n, n, nil)
	U.CloneFrom(vecs.T())
	return U, nil
}

// applyRotation rotates phi in place and congruence-transforms F.
func applyRotation(U *mat.Dense, phi *Set, F *mat.Dense, prec float64) {
	rotated := Rotate(U, phi, prec)
	phi.Replace(rotated)

	var tmp, next mat.Dense
	tmp.Mul(U, F)
	next.Mul(&tmp, U.T())
	F.CloneFrom(&next)
}

// Density accumulates the occupation-weighted density sum_i occ_i |phi_i|^2
// over the set's allocated orbitals.
func Density(phi *Set, grid *field.Grid) *field.Field {
	rho := field.New(grid)
	for _, o := range phi.orbs {
		if o.HasReal() {
			sq := o.Real().Mul(o.Real())
			rho.Axpy(o.Occ(), sq)
		}
		if o.HasImag() {
			sq := o.Imag().Mul(o.Imag())
			rho.Axpy(o.Occ(), sq)
		}
	}
	return rho
}
