package kain

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/qmsolve/mrscf/internal/field"
	"github.com/qmsolve/mrscf/internal/orbital"
)

func testGrid(t *testing.T) *field.Grid {
	t.Helper()
	g, err := field.NewGrid(field.Legendre, 6, 4, -6, 12)
	require.NoError(t, err)
	return g
}

func projected(g *field.Grid, f func(x float64) float64) *orbital.Set {
	o := orbital.New(orbital.Paired, -1, -1)
	o.SetReal(field.Project(g, f, 0))
	return orbital.NewSet(o)
}

func TestPassthroughBelowTwoEntries(t *testing.T) {
	t.Parallel()
	g := testGrid(t)
	x := projected(g, func(x float64) float64 { return math.Exp(-x * x) })
	dx := projected(g, func(x float64) float64 { return math.Sin(x) })
	before := dx.At(0).Real().Copy()

	a := New(5, nil)
	require.NoError(t, a.Accelerate(0, x, dx, nil, nil))

	diff := field.Add(1, before, -1, dx.At(0).Real())
	assert.Zero(t, diff.Norm(), "first call must pass the update through unchanged")
	assert.Equal(t, 1, a.History())
}

func TestShapeMismatch(t *testing.T) {
	t.Parallel()
	g := testGrid(t)
	x := projected(g, func(x float64) float64 { return math.Exp(-x * x) })
	two := orbital.NewSet(x.At(0), x.At(0).ShallowCopy())

	a := New(5, nil)
	assert.Error(t, a.Accelerate(0, two, x, nil, nil))
	assert.Error(t, a.Accelerate(0, x, x, mat.NewDense(1, 1, nil), nil),
		"matrix without matrix update must be rejected")
}

// TestLinearProblemConvergesInOneAcceleratedStep drives the damped linear
// iteration x <- x + 0.3 (b - x), whose plain convergence factor is 0.7. The
// history of two entries determines the linear problem completely, so the
// first accelerated step lands on the fixed point.
func TestLinearProblemConvergesInOneAcceleratedStep(t *testing.T) {
	t.Parallel()
	g := testGrid(t)
	target := projected(g, func(x float64) float64 { return math.Exp(-x * x) })

	x := projected(g, func(x float64) float64 { return 0.2 * math.Exp(-(x-1)*(x-1)) })
	step := func() *orbital.Set {
		return orbital.Add(0.3, target, -0.3, x)
	}

	a := New(5, nil)

	dx := step()
	require.NoError(t, a.Accelerate(0, x, dx, nil, nil))
	x = orbital.Add(1, x, 1, dx)

	dx = step()
	require.NoError(t, a.Accelerate(0, x, dx, nil, nil))
	x = orbital.Add(1, x, 1, dx)

	err := orbital.Add(1, x, -1, target)
	assert.Less(t, err.At(0).Norm(), 1e-10, "linear problem must be solved exactly")
}

func TestMatrixHistoryFollowsOrbitals(t *testing.T) {
	t.Parallel()
	g := testGrid(t)
	target := projected(g, func(x float64) float64 { return math.Exp(-x * x) })
	x := projected(g, func(x float64) float64 { return 0.5 * math.Exp(-x*x) })

	fTarget := mat.NewDense(1, 1, []float64{-0.8})
	F := mat.NewDense(1, 1, []float64{-0.2})

	a := New(5, nil)
	for iter := 0; iter < 2; iter++ {
		dx := orbital.Add(0.3, target, -0.3, x)
		var dF mat.Dense
		dF.Sub(fTarget, F)
		dF.Scale(0.3, &dF)

		require.NoError(t, a.Accelerate(0, x, dx, F, &dF))
		x = orbital.Add(1, x, 1, dx)
		F.Add(F, &dF)
	}

	assert.InDelta(t, -0.8, F.At(0, 0), 1e-10,
		"matrix must converge together with the orbitals")
}

func TestHistoryBound_Property(t *testing.T) {
	t.Parallel()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25

	properties := gopter.NewProperties(parameters)
	properties.Property("history never exceeds its capacity",
		prop.ForAll(
			func(capacity, rounds int) bool {
				g, err := field.NewGrid(field.Legendre, 4, 3, -4, 8)
				if err != nil {
					return false
				}
				a := New(capacity, nil)
				x := projected(g, func(x float64) float64 { return math.Exp(-x * x) })
				for r := 0; r < rounds; r++ {
					phase := float64(r+1) * 0.1
					dx := projected(g, func(x float64) float64 { return phase * math.Sin(x+phase) })
					if err := a.Accelerate(0, x, dx, nil, nil); err != nil {
						return false
					}
					if a.History() > capacity {
						return false
					}
					x = orbital.Add(1, x, 1, dx)
				}
				return true
			},
			gen.IntRange(0, 6),
			gen.IntRange(1, 12),
		))
	properties.TestingRun(t)
}

func TestClear(t *testing.T) {
	t.Parallel()
	g := testGrid(t)
	x := projected(g, func(x float64) float64 { return math.Exp(-x * x) })
	dx := projected(g, func(x float64) float64 { return math.Sin(x) })

	a := New(5, nil)
	require.NoError(t, a.Accelerate(0, x, dx, nil, nil))
	require.Equal(t, 1, a.History())
	a.Clear()
	assert.Equal(t, 0, a.History())
}
