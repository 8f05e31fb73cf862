// Package kain implements the Krylov-accelerated inexact Newton update for
// the fixed-point orbital iteration. The accelerator keeps a bounded FIFO
// history of (iterate, update) snapshots and replaces the plain update with
// a linear combination chosen by a small least-squares problem; with fewer
// than two history entries the update passes through unchanged.
package kain

import (
	"github.com/eapache/queue"
	"gonum.org/v1/gonum/mat"

	apperrors "github.com/qmsolve/mrscf/internal/errors"
	"github.com/qmsolve/mrscf/internal/logging"
	"github.com/qmsolve/mrscf/internal/orbital"
)

// snapshot is one history entry: deep copies of the iterate and its update,
// plus the matching operator matrices when the driver tracks them.
type snapshot struct {
	x   *orbital.Set
	dx  *orbital.Set
	fx  *mat.Dense
	dfx *mat.Dense
}

// Accelerator is the bounded-history update accelerator. It is not safe for
// concurrent use; the driver owns it for the duration of one optimization.
type Accelerator struct {
	history int
	entries *queue.Queue
	log     logging.Logger
}

// New creates an accelerator keeping at most history snapshots.
//
// Parameters:
//   - history: The history capacity (values < 2 disable acceleration).
//   - log: The destination for solve diagnostics (nil means silent).
//
// Returns:
//   - *Accelerator: The empty accelerator.
func New(history int, log logging.Logger) *Accelerator {
	if log == nil {
		log = logging.Nop{}
	}
	return &Accelerator{history: history, entries: queue.New(), log: log}
}

// History returns the number of snapshots currently held.
func (a *Accelerator) History() int { return a.entries.Length() }

// Clear drops the accumulated history. It is called whenever the iteration
// changes basis (rotation, orthonormalization), since snapshots from a
// different gauge would poison the least-squares system.
func (a *Accelerator) Clear() {
	a.entries = queue.New()
}

// Accelerate pushes the current (x, dx) pair into the history and, with two
// or more entries, replaces dx in place with the accelerated update. The
// optional matrices fx, dfx ride along: they enter the inner products and
// receive the same linear combination, keeping the matrix consistent with
// the orbitals. Pass nil for both to accelerate orbitals alone.
//
// Parameters:
//   - prec: The compression precision for the combined update.
//   - x: The current iterate (copied into the history, not modified).
//   - dx: The plain update, replaced in place by the accelerated one.
//   - fx: The operator matrix at x (may be nil).
//   - dfx: The matrix update, transformed in place alongside dx (may be nil).
//
// Returns:
//   - error: An error on inconsistent history shapes; a singular
//     least-squares system is survivable and falls back to the plain update.
func (a *Accelerator) Accelerate(prec float64, x, dx *orbital.Set, fx, dfx *mat.Dense) error {
	if x.Size() != dx.Size() {
		return apperrors.NewSolverError(
			"accelerator: iterate has %d orbitals, update has %d", x.Size(), dx.Size())
	}
	if (fx == nil) != (dfx == nil) {
		return apperrors.NewSolverError("accelerator: matrix and matrix update must come together")
	}

	a.entries.Add(&snapshot{x: deepCopy(x), dx: deepCopy(dx), fx: cloneMatrix(fx), dfx: cloneMatrix(dfx)})
	for a.entries.Length() > a.history {
		a.entries.Remove()
	}

	m := a.entries.Length() - 1 // newest index
	if m < 1 {
		return nil
	}

	hist := make([]*snapshot, m+1)
	for i := range hist {
		hist[i] = a.entries.Get(i).(*snapshot)
	}
	newest := hist[m]

	// A_ij = <x_i - x_m, dx_j - dx_m>, b_i = -<x_i - x_m, dx_m>.
	A := mat.NewDense(m, m, nil)
	b := mat.NewVecDense(m, nil)
	for i := 0; i < m; i++ {
		dxi := diff(hist[i], newest)
		for j := 0; j < m; j++ {
			dfj := diffUpdate(hist[j], newest)
			A.Set(i, j, inner(dxi, dfj))
		}
		b.SetVec(i, -inner(dxi, update(newest)))
	}

	var c mat.VecDense
	if err := c.SolveVec(A, b); err != nil {
		a.log.Warn("accelerator system is singular, falling back to plain update",
			logging.Int("history", m+1), logging.Err(err))
		a.Clear()
		return nil
	}

	// dx <- dx_m + sum_j c_j [(x_j - x_m) + (dx_j - dx_m)]
	combined := deepCopy(newest.dx)
	var combinedM *mat.Dense
	if newest.dfx != nil {
		combinedM = cloneMatrix(newest.dfx)
	}
	for j := 0; j < m; j++ {
		cj := c.AtVec(j)
		step := orbital.Add(1, hist[j].x, -1, newest.x)
		step = orbital.Add(1, step, 1, orbital.Add(1, hist[j].dx, -1, newest.dx))
		combined = orbital.Add(1, combined, cj, step)
		if combinedM != nil {
			var stepM mat.Dense
			stepM.Sub(hist[j].fx, newest.fx)
			var dstep mat.Dense
			dstep.Sub(hist[j].dfx, newest.dfx)
			stepM.Add(&stepM, &dstep)
			stepM.Scale(cj, &stepM)
			combinedM.Add(combinedM, &stepM)
		}
	}
	combined.Crop(prec)
	dx.Replace(combined)
	if dfx != nil && combinedM != nil {
		dfx.CloneFrom(combinedM)
	}
	return nil
}

// update returns the snapshot pair representing its own update.
func update(s *snapshot) *snapshot {
	return &snapshot{x: s.dx, fx: s.dfx}
}

// diff returns the iterate difference s - m as a snapshot pair.
func diff(s, m *snapshot) *snapshot {
	d := &snapshot{x: orbital.Add(1, s.x, -1, m.x)}
	if s.fx != nil {
		var fm mat.Dense
		fm.Sub(s.fx, m.fx)
		d.fx = &fm
	}
	return d
}

// diffUpdate returns the update difference s - m as a snapshot pair.
func diffUpdate(s, m *snapshot) *snapshot {
	d := &snapshot{x: orbital.Add(1, s.dx, -1, m.dx)}
	if s.dfx != nil {
		var fm mat.Dense
		fm.Sub(s.dfx, m.dfx)
		d.fx = &fm
	}
	return d
}

// inner is the combined inner product over the orbital sets and, when
// present, the Frobenius product of the matrices.
func inner(a, b *snapshot) float64 {
	var s float64
	for i := 0; i < a.x.Size(); i++ {
		s += orbital.Dot(a.x.At(i), b.x.At(i))
	}
	if a.fx != nil && b.fx != nil {
		r, c := a.fx.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				s += a.fx.At(i, j) * b.fx.At(i, j)
			}
		}
	}
	return s
}

// deepCopy copies a set including its field data, so history entries survive
// the driver mutating the live generation.
func deepCopy(s *orbital.Set) *orbital.Set {
	out := make([]*orbital.Orbital, s.Size())
	for i, o := range s.All() {
		cp := o.ParamCopy()
		if o.HasReal() {
			cp.SetReal(o.Real().Copy())
		}
		if o.HasImag() {
			cp.SetImag(o.Imag().Copy())
		}
		out[i] = cp
	}
	return orbital.NewSet(out...)
}

func cloneMatrix(m *mat.Dense) *mat.Dense {
	if m == nil {
		return nil
	}
	var out mat.Dense
	out.CloneFrom(m)
	return &out
}
