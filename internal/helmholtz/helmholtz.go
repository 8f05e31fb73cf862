// Package helmholtz implements the bound-state Green's function inversion
// that replaces matrix diagonalization in the orbital update: for each
// orbital the next generation is obtained by convolving the assembled
// right-hand side with the kernel
//
//	G_mu(r) = exp(-mu |r|) / (2 mu),  mu = sqrt(-2 lambda),
//
// which inverts (-1/2 d²/dx² - lambda). A non-negative lambda has no bound
// kernel; it is clamped to a small negative default and the clamp is logged,
// matching the behavior of an SCF that starts from a poor initial guess.
package helmholtz

import (
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/qmsolve/mrscf/internal/comm"
	apperrors "github.com/qmsolve/mrscf/internal/errors"
	"github.com/qmsolve/mrscf/internal/field"
	"github.com/qmsolve/mrscf/internal/logging"
	"github.com/qmsolve/mrscf/internal/orbital"
)

// lambdaFloor is the substitute eigenvalue for non-bound (lambda >= 0)
// states.
const lambdaFloor = -0.5

// Set holds one Green's kernel per orbital, rebuilt each iteration from the
// current diagonal of the effective operator matrix.
type Set struct {
	com comm.Comm
	log logging.Logger

	lambdas []float64
	mus     []float64
	prec    float64
	ready   bool
}

// NewSet creates an empty kernel set.
//
// Parameters:
//   - com: The ownership capability; only owned orbitals are transformed.
//   - log: The destination for clamp diagnostics (nil means silent).
//
// Returns:
//   - *Set: The kernel set, not yet set up.
func NewSet(com comm.Comm, log logging.Logger) *Set {
	if log == nil {
		log = logging.Nop{}
	}
	return &Set{com: com, log: log}
}

// Setup builds one kernel per eigenvalue at the given precision.
// Non-negative eigenvalues are clamped to the bound-state floor.
func (h *Set) Setup(prec float64, lambdas []float64) error {
	h.lambdas = make([]float64, len(lambdas))
	h.mus = make([]float64, len(lambdas))
	for i, l := range lambdas {
		if l >= 0 {
			h.log.Warn("non-bound eigenvalue clamped for kernel construction",
				logging.Int("orbital", i),
				logging.Float64("lambda", l),
				logging.Float64("clamped", lambdaFloor))
			l = lambdaFloor
		}
		h.lambdas[i] = l
		h.mus[i] = math.Sqrt(-2 * l)
	}
	h.prec = prec
	h.ready = true
	return nil
}

// Clear releases the kernels.
func (h *Set) Clear() {
	h.lambdas = nil
	h.mus = nil
	h.ready = false
}

// Lambdas returns the eigenvalues actually used, after clamping.
func (h *Set) Lambdas() []float64 { return h.lambdas }

// LambdaMatrix returns the diagonal matrix of used eigenvalues.
func (h *Set) LambdaMatrix() *mat.Dense {
	n := len(h.lambdas)
	L := mat.NewDense(n, n, nil)
	for i, l := range h.lambdas {
		L.Set(i, i, l)
	}
	return L
}

// Apply transforms one right-hand side through the i-th kernel,
// phi = -2 G_mu[arg].
//
// Parameters:
//   - i: The kernel index (matching the orbital slot).
//   - arg: The assembled right-hand side.
//
// Returns:
//   - *orbital.Orbital: The updated orbital with arg's metadata.
//   - error: An error if the set is not set up or i is out of range.
func (h *Set) Apply(i int, arg *orbital.Orbital) (*orbital.Orbital, error) {
	if !h.ready {
		return nil, apperrors.NewSolverError("helmholtz kernels applied before setup")
	}
	if i < 0 || i >= len(h.mus) {
		return nil, apperrors.NewSolverError("helmholtz kernel index %d out of range [0,%d)", i, len(h.mus))
	}
	mu := h.mus[i]
	kernel := func(r float64) float64 {
		return math.Exp(-mu*math.Abs(r)) / (2 * mu)
	}

	out := arg.ParamCopy()
	if arg.HasReal() {
		f := field.Convolve(kernel, arg.Real(), h.prec)
		f.Scale(-2)
		f.Crop(h.prec)
		out.SetReal(f)
	}
	if arg.HasImag() {
		f := field.Convolve(kernel, arg.Imag(), h.prec)
		f.Scale(-2)
		f.Crop(h.prec)
		out.SetImag(f)
	}
	return out, nil
}

// ApplyAll transforms every owned right-hand side concurrently, one
// goroutine per orbital. Slots not owned by this rank come back field-empty.
func (h *Set) ApplyAll(args *orbital.Set) (*orbital.Set, error) {
	if !h.ready {
		return nil, apperrors.NewSolverError("helmholtz kernels applied before setup")
	}
	if args.Size() != len(h.mus) {
		return nil, apperrors.NewSolverError(
			"helmholtz kernel count %d does not match orbital count %d", len(h.mus), args.Size())
	}

	out := args.ParamCopy()
	var eg errgroup.Group
	for i := 0; i < args.Size(); i++ {
		if !comm.Owns(h.com, comm.OwnerOf(h.com, i)) {
			continue
		}
		eg.Go(func() error {
			o, err := h.Apply(i, args.At(i))
			if err != nil {
				return err
			}
			res := out.At(i)
			if o.HasReal() {
				res.SetReal(o.Real())
			}
			if o.HasImag() {
				res.SetImag(o.Imag())
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
