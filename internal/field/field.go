// Package field provides the adaptive-precision scalar field representation
// used to store orbitals and potentials: piecewise polynomial node values
// over 2^depth uniform cells of a 1D domain, with quadrature, per-cell
// spectral differentiation, kernel convolution and lossy compression to a
// precision target (crop).
//
// All fields participating in one SCF cycle must share a common Grid; the
// algebraic operations treat a grid mismatch as a fatal programming error
// and panic at the point of detection.
package field

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/mat"
)

// BasisKind identifies the polynomial basis used on each cell. Exactly two
// kinds are supported; persisted records carrying any other value are
// rejected at load time.
type BasisKind int32

const (
	// Interpolating uses equispaced closed nodes with composite
	// trapezoidal quadrature weights.
	Interpolating BasisKind = 1
	// Legendre uses Gauss-Legendre nodes and weights.
	Legendre BasisKind = 2
)

// String returns the basis kind name.
func (k BasisKind) String() string {
	switch k {
	case Interpolating:
		return "interpolating"
	case Legendre:
		return "legendre"
	default:
		return fmt.Sprintf("unknown(%d)", int32(k))
	}
}

// Grid is the shared numerical-grid definition: basis kind, polynomial
// order, refinement depth and bounding box. It replaces ambient global
// state: the composition root creates one Grid and threads it through the
// component constructors.
type Grid struct {
	kind   BasisKind
	order  int
	depth  int
	corner float64
	extent float64

	nodes   []float64  // node coordinates, cell-major
	weights []float64  // matching quadrature weights
	diff    *mat.Dense // reference-cell differentiation matrix, scaled per cell on use
}

// NewGrid creates a grid with 2^depth uniform cells over
// [corner, corner+extent], each carrying order+1 nodes.
//
// Parameters:
//   - kind: The polynomial basis kind (Interpolating or Legendre).
//   - order: The polynomial order per cell (>= 1).
//   - depth: The refinement depth (>= 0); the domain has 2^depth cells.
//   - corner: The lower bound of the domain.
//   - extent: The domain length (> 0).
//
// Returns:
//   - *Grid: The grid definition with precomputed nodes and weights.
//   - error: An error if any parameter is out of range.
func NewGrid(kind BasisKind, order, depth int, corner, extent float64) (*Grid, error) {
	if kind != Interpolating && kind != Legendre {
		return nil, fmt.Errorf("field: unsupported basis kind %d", int32(kind))
	}
	if order < 1 {
		return nil, fmt.Errorf("field: polynomial order must be >= 1, got %d", order)
	}
	if depth < 0 || depth > 20 {
		return nil, fmt.Errorf("field: refinement depth out of range: %d", depth)
	}
	if extent <= 0 || math.IsNaN(extent) || math.IsInf(extent, 0) {
		return nil, fmt.Errorf("field: domain extent must be positive, got %g", extent)
	}

	g := &Grid{kind: kind, order: order, depth: depth, corner: corner, extent: extent}

	npc := order + 1
	cells := g.Cells()
	h := extent / float64(cells)

	// Reference nodes and weights on [-1, 1].
	refX := make([]float64, npc)
	refW := make([]float64, npc)
	switch kind {
	case Legendre:
		quad.Legendre{}.FixedLocations(refX, refW, -1, 1)
	case Interpolating:
		for i := 0; i < npc; i++ {
			refX[i] = -1 + 2*float64(i)/float64(order)
			refW[i] = 2.0 / float64(order)
		}
		refW[0] /= 2
		refW[npc-1] /= 2
	}
	g.diff = diffMatrix(refX)

	g.nodes = make([]float64, cells*npc)
	g.weights = make([]float64, cells*npc)
	for c := 0; c < cells; c++ {
		lo := corner + float64(c)*h
		for i := 0; i < npc; i++ {
			g.nodes[c*npc+i] = lo + (refX[i]+1)*h/2
			g.weights[c*npc+i] = refW[i] * h / 2
		}
	}
	return g, nil
}

// diffMatrix builds the barycentric differentiation matrix for the given
// reference nodes (Berrut & Trefethen).
func diffMatrix(x []float64) *mat.Dense {
	n := len(x)
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
		for j := range x {
			if j != i {
				w[i] /= x[i] - x[j]
			}
		}
	}
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		var rowSum float64
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			v := (w[j] / w[i]) / (x[i] - x[j])
			d.Set(i, j, v)
			rowSum += v
		}
		d.Set(i, i, -rowSum)
	}
	return d
}

// Kind returns the basis kind.
func (g *Grid) Kind() BasisKind { return g.kind }

// Order returns the polynomial order per cell.
func (g *Grid) Order() int { return g.order }

// Depth returns the refinement depth.
func (g *Grid) Depth() int { return g.depth }

// Corner returns the lower bound of the domain.
func (g *Grid) Corner() float64 { return g.corner }

// Extent returns the domain length.
func (g *Grid) Extent() float64 { return g.extent }

// Cells returns the number of cells, 2^depth.
func (g *Grid) Cells() int { return 1 << g.depth }

// NodesPerCell returns the number of nodes per cell, order+1.
func (g *Grid) NodesPerCell() int { return g.order + 1 }

// Size returns the total number of nodes.
func (g *Grid) Size() int { return g.Cells() * g.NodesPerCell() }

// Nodes returns the node coordinates, cell-major. The slice is shared; do
// not modify.
func (g *Grid) Nodes() []float64 { return g.nodes }

// SameAs reports whether two grids define the same discretization.
func (g *Grid) SameAs(o *Grid) bool {
	if g == o {
		return true
	}
	if g == nil || o == nil {
		return false
	}
	return g.kind == o.kind && g.order == o.order && g.depth == o.depth &&
		g.corner == o.corner && g.extent == o.extent
}

// Field is one scalar function on a Grid, stored as node values.
type Field struct {
	grid *Grid
	coef []float64
}

// New creates a zero field on the given grid.
func New(g *Grid) *Field {
	return &Field{grid: g, coef: make([]float64, g.Size())}
}

// Project creates a field by sampling the analytic function f at the grid
// nodes. The precision argument controls post-projection compression.
//
// Parameters:
//   - g: The grid to project onto.
//   - f: The analytic function to sample.
//   - prec: The compression precision (<= 0 disables cropping).
//
// Returns:
//   - *Field: The projected field.
func Project(g *Grid, f func(x float64) float64, prec float64) *Field {
	out := New(g)
	for i, x := range g.nodes {
		out.coef[i] = f(x)
	}
	if prec > 0 {
		out.Crop(prec)
	}
	return out
}

// Grid returns the grid this field lives on.
func (f *Field) Grid() *Grid { return f.grid }

// Coefs returns the underlying node values. The slice is shared with the
// field; it is exposed so reduction capabilities can operate on the raw
// payload without copying.
func (f *Field) Coefs() []float64 { return f.coef }

// Copy returns a deep copy of the field.
func (f *Field) Copy() *Field {
	out := New(f.grid)
	copy(out.coef, f.coef)
	return out
}

func (f *Field) checkGrid(g *Field) {
	if !f.grid.SameAs(g.grid) {
		panic("field: grid mismatch between operands")
	}
}

// Add returns a*A + b*B as a new field. A and B must share a grid.
func Add(a float64, A *Field, b float64, B *Field) *Field {
	A.checkGrid(B)
	out := New(A.grid)
	for i := range out.coef {
		out.coef[i] = a*A.coef[i] + b*B.coef[i]
	}
	return out
}

// Axpy adds a*g to f in place.
func (f *Field) Axpy(a float64, g *Field) {
	f.checkGrid(g)
	for i := range f.coef {
		f.coef[i] += a * g.coef[i]
	}
}

// Scale multiplies the field by a in place.
func (f *Field) Scale(a float64) {
	for i := range f.coef {
		f.coef[i] *= a
	}
}

// Mul returns the pointwise product f*g as a new field.
func (f *Field) Mul(g *Field) *Field {
	f.checkGrid(g)
	out := New(f.grid)
	for i := range out.coef {
		out.coef[i] = f.coef[i] * g.coef[i]
	}
	return out
}

// Dot returns the L2 inner product <f, g> by quadrature.
func (f *Field) Dot(g *Field) float64 {
	f.checkGrid(g)
	var s float64
	for i, w := range f.grid.weights {
		s += w * f.coef[i] * g.coef[i]
	}
	return s
}

// Norm returns the L2 norm of the field.
func (f *Field) Norm() float64 {
	return math.Sqrt(f.Dot(f))
}

// Integral returns the integral of the field over the domain.
func (f *Field) Integral() float64 {
	var s float64
	for i, w := range f.grid.weights {
		s += w * f.coef[i]
	}
	return s
}

// Deriv returns the derivative of the field, computed per cell with the
// spectral differentiation matrix of the basis.
func (f *Field) Deriv() *Field {
	g := f.grid
	npc := g.NodesPerCell()
	cells := g.Cells()
	h := g.extent / float64(cells)
	scale := 2 / h

	out := New(g)
	for c := 0; c < cells; c++ {
		off := c * npc
		for i := 0; i < npc; i++ {
			var s float64
			for j := 0; j < npc; j++ {
				s += g.diff.At(i, j) * f.coef[off+j]
			}
			out.coef[off+i] = s * scale
		}
	}
	return out
}

// Crop compresses the field to the given precision by zeroing cells whose
// L2 contribution falls below prec scaled by the cell count. This is lossy
// by design: coarse iterations carry coarse fields.
//
// Parameters:
//   - prec: The precision target (must be positive to have any effect).
//
// Returns:
//   - int: The number of cells zeroed.
func (f *Field) Crop(prec float64) int {
	if prec <= 0 {
		return 0
	}
	g := f.grid
	npc := g.NodesPerCell()
	thrs := prec / math.Sqrt(float64(g.Cells()))

	cropped := 0
	for c := 0; c < g.Cells(); c++ {
		off := c * npc
		var cellSq float64
		for i := 0; i < npc; i++ {
			v := f.coef[off+i]
			cellSq += g.weights[off+i] * v * v
		}
		if math.Sqrt(cellSq) < thrs {
			allZero := true
			for i := 0; i < npc; i++ {
				if f.coef[off+i] != 0 {
					allZero = false
				}
				f.coef[off+i] = 0
			}
			if !allZero {
				cropped++
			}
		}
	}
	return cropped
}

// Eval evaluates the field at an arbitrary point by barycentric Lagrange
// interpolation within the containing cell. Points outside the domain
// evaluate to zero.
func (f *Field) Eval(x float64) float64 {
	g := f.grid
	if x < g.corner || x > g.corner+g.extent {
		return 0
	}
	cells := g.Cells()
	h := g.extent / float64(cells)
	c := int((x - g.corner) / h)
	if c >= cells {
		c = cells - 1
	}
	npc := g.NodesPerCell()
	off := c * npc

	// Barycentric second-form interpolation on the cell nodes.
	var num, den float64
	for i := 0; i < npc; i++ {
		xi := g.nodes[off+i]
		if x == xi {
			return f.coef[off+i]
		}
		// Equispaced/GL nodes are well separated; weights recomputed on the
		// fly since evaluation is not a hot path.
		w := 1.0
		for j := 0; j < npc; j++ {
			if j != i {
				w /= xi - g.nodes[off+j]
			}
		}
		t := w / (x - xi)
		num += t * f.coef[off+i]
		den += t
	}
	return num / den
}

// Convolve returns the integral transform out(x) = ∫ kernel(x-y) src(y) dy
// evaluated at every grid node by quadrature. Source values below the
// screening threshold derived from prec are skipped, so cropped (coarse)
// fields convolve cheaply.
//
// Parameters:
//   - kernel: The translation-invariant kernel, called with r = x - y.
//   - src: The source field.
//   - prec: The screening precision (<= 0 disables screening).
//
// Returns:
//   - *Field: The transformed field on the same grid.
func Convolve(kernel func(r float64) float64, src *Field, prec float64) *Field {
	g := src.grid
	out := New(g)

	screen := 0.0
	if prec > 0 {
		screen = prec * 1e-3 / float64(g.Size())
	}

	for j, y := range g.nodes {
		sj := src.coef[j] * g.weights[j]
		if math.Abs(sj) <= screen {
			continue
		}
		for i, x := range g.nodes {
			out.coef[i] += kernel(x-y) * sj
		}
	}
	return out
}
