package operator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/qmsolve/mrscf/internal/comm"
	"github.com/qmsolve/mrscf/internal/field"
	"github.com/qmsolve/mrscf/internal/orbital"
)

func testGrid(t *testing.T) *field.Grid {
	t.Helper()
	g, err := field.NewGrid(field.Legendre, 6, 5, -8, 16)
	require.NoError(t, err)
	return g
}

// normalizedGaussian builds a unit-norm paired orbital exp(-x²/2)/pi^{1/4}.
func normalizedGaussian(g *field.Grid) *orbital.Orbital {
	o := orbital.New(orbital.Paired, -1, -1)
	n := math.Pow(math.Pi, -0.25)
	o.SetReal(field.Project(g, func(x float64) float64 {
		return n * math.Exp(-x*x/2)
	}, 0))
	return o
}

func TestApplyBeforeSetup(t *testing.T) {
	t.Parallel()
	g := testGrid(t)
	o := normalizedGaussian(g)

	ops := []Operator{
		NewKinetic(),
		NewNuclear(g, comm.Serial{}, nil, []Nucleus{{Z: 1, X: 0}}, 0),
		NewCoulomb(orbital.NewSet(o), comm.Serial{}, 0.5),
		NewExchange(orbital.NewSet(o), 0.5),
		NewXC(orbital.NewSet(o), comm.Serial{}, 0.5),
	}
	for _, op := range ops {
		_, err := op.Apply(o)
		assert.Error(t, err, "%s must reject apply before setup", op.Name())
	}
}

func TestSetupIdempotent(t *testing.T) {
	t.Parallel()
	g := testGrid(t)
	phi := orbital.NewSet(normalizedGaussian(g))
	j := NewCoulomb(phi, comm.Serial{}, 0.5)

	require.NoError(t, j.Setup(1e-4))
	pot := j.Potential()
	require.NoError(t, j.Setup(1e-4))
	assert.Same(t, pot, j.Potential(), "same-precision setup must not rebuild")

	require.NoError(t, j.Setup(1e-5))
	assert.NotSame(t, pot, j.Potential(), "new precision must rebuild")

	j.Clear()
	assert.Nil(t, j.Potential())
	j.Clear() // idempotent
}

func TestKinetic(t *testing.T) {
	t.Parallel()
	g := testGrid(t)
	o := normalizedGaussian(g)
	phi := orbital.NewSet(o)

	kin := NewKinetic()
	require.NoError(t, kin.Setup(1e-6))

	// For the unit gaussian, <T> = 1/2 <phi'|phi'> = 1/4 per electron.
	tr, err := kin.Trace(phi)
	require.NoError(t, err)
	assert.InDelta(t, o.Occ()*0.25, tr, 1e-6)

	// The matrix element agrees with the applied form <phi|T phi>.
	M, err := kin.Matrix(phi, phi)
	require.NoError(t, err)
	// The applied form differentiates twice and is the less accurate of the
	// two; agreement is limited by the cell-boundary interpolation error.
	applied, err := kin.Apply(o)
	require.NoError(t, err)
	assert.InDelta(t, M.At(0, 0), orbital.Dot(o, applied), 1e-3)
}

func TestNuclear_Serial(t *testing.T) {
	t.Parallel()
	g := testGrid(t)
	nuclei := []Nucleus{{Z: 2, X: -1}, {Z: 1, X: 1.5}}
	v := NewNuclear(g, comm.Serial{}, nil, nuclei, 0)
	require.NoError(t, v.Setup(1e-5))

	pot := v.Potential()
	require.NotNil(t, pot)
	assert.Negative(t, pot.Eval(-1), "attractive everywhere")
	assert.Less(t, pot.Eval(-1), pot.Eval(4), "deepest at the heavier well")

	// Far from both wells the potential approaches -sumZ/|x|.
	assert.InDelta(t, -3.0/7.0, pot.Eval(-8+1e-9), 0.05)
}

func TestNuclear_DistributedAssemblyMatchesSerial(t *testing.T) {
	t.Parallel()
	g := testGrid(t)
	nuclei := []Nucleus{{Z: 1, X: -2}, {Z: 2, X: 0}, {Z: 1, X: 2}}
	prec := 1e-5

	serial := NewNuclear(g, comm.Serial{}, nil, nuclei, 0)
	require.NoError(t, serial.Setup(prec))
	want := serial.Potential().Coefs()

	group := comm.NewLocalGroup(3)
	pots := make([][]float64, 3)
	var eg errgroup.Group
	for r := 0; r < 3; r++ {
		eg.Go(func() error {
			v := NewNuclear(g, group[r], nil, nuclei, 0)
			if err := v.Setup(prec); err != nil {
				return err
			}
			pots[r] = v.Potential().Coefs()
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	for r, got := range pots {
		require.Len(t, got, len(want))
		for i := range want {
			assert.InDelta(t, want[i], got[i], 1e-12, "rank %d node %d", r, i)
		}
	}
}

func TestCoulomb(t *testing.T) {
	t.Parallel()
	g := testGrid(t)
	o := normalizedGaussian(g)
	phi := orbital.NewSet(o)

	j := NewCoulomb(phi, comm.Serial{}, 0.5)
	require.NoError(t, j.Setup(1e-6))

	// The potential at a point equals the quadrature of rho against the
	// kernel centered there.
	rho := orbital.Density(phi, g)
	kernelAt0 := field.Project(g, func(y float64) float64 {
		return 1 / math.Sqrt(y*y+0.25)
	}, 0)
	assert.InDelta(t, rho.Dot(kernelAt0), j.Potential().Eval(0), 1e-6)

	// Repulsion energy is positive.
	tr, err := Trace(j, phi)
	require.NoError(t, err)
	assert.Positive(t, tr)
}

func TestExchange_SingleOrbitalHalvesCoulomb(t *testing.T) {
	t.Parallel()
	g := testGrid(t)
	o := normalizedGaussian(g)
	phi := orbital.NewSet(o)

	j := NewCoulomb(phi, comm.Serial{}, 0.5)
	k := NewExchange(phi, 0.5)
	require.NoError(t, j.Setup(1e-8))
	require.NoError(t, k.Setup(1e-8))

	jo, err := j.Apply(o)
	require.NoError(t, err)
	ko, err := k.Apply(o)
	require.NoError(t, err)

	// With one paired orbital the exchange equals half the Coulomb term,
	// which is exactly the self-interaction cancellation pattern.
	diff := orbital.AddOrbitals(0.5, jo, -1, ko)
	assert.InDelta(t, 0, diff.Norm(), 1e-6)
}

func TestExchange_SpinScreening(t *testing.T) {
	t.Parallel()
	g := testGrid(t)

	up := orbital.New(orbital.Alpha, -1, -1)
	up.SetReal(field.Project(g, func(x float64) float64 { return math.Exp(-x * x / 2) }, 0))
	down := orbital.New(orbital.Beta, -1, -1)
	down.SetReal(field.Project(g, func(x float64) float64 { return math.Exp(-x * x / 2) }, 0))

	k := NewExchange(orbital.NewSet(up), 0.5)
	require.NoError(t, k.Setup(1e-8))

	kd, err := k.Apply(down)
	require.NoError(t, err)
	assert.Zero(t, kd.Norm(), "opposite spins must not exchange")
}

func TestXC(t *testing.T) {
	t.Parallel()
	g := testGrid(t)
	phi := orbital.NewSet(normalizedGaussian(g))

	x := NewXC(phi, comm.Serial{}, 0.7)
	require.NoError(t, x.Setup(1e-8))

	// Functional energy is 3/4 of the potential trace for the rho^{1/3} form.
	tr, err := Trace(x, phi)
	require.NoError(t, err)
	assert.InDelta(t, 0.75*tr, x.Energy(), 1e-8)
	assert.Negative(t, x.Energy())
}

func TestFock(t *testing.T) {
	t.Parallel()
	g := testGrid(t)

	o1 := normalizedGaussian(g)
	o2 := orbital.New(orbital.Paired, -1, -1)
	o2.SetReal(field.Project(g, func(x float64) float64 {
		return x * math.Exp(-x*x/2)
	}, 0))
	phi := orbital.NewSet(o1, o2)
	_, err := orbital.Orthonormalize(0, phi)
	require.NoError(t, err)

	kin := NewKinetic()
	nuc := NewNuclear(g, comm.Serial{}, nil, []Nucleus{{Z: 2, X: 0}}, 0.3)
	cou := NewCoulomb(phi, comm.Serial{}, 0.5)
	exc := NewExchange(phi, 0.5)
	fock := NewFock(phi, kin, nuc, cou, exc, nil)

	require.NoError(t, fock.Setup(1e-5))
	assert.True(t, fock.IsSetup())

	t.Run("matrix is symmetric", func(t *testing.T) {
		F, err := fock.Matrix(phi, phi)
		require.NoError(t, err)
		n, _ := F.Dims()
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				assert.InDelta(t, F.At(i, j), F.At(j, i), 1e-6,
					"F[%d,%d] vs F[%d,%d]", i, j, j, i)
			}
		}
	})

	t.Run("potential matrix excludes kinetic", func(t *testing.T) {
		F, err := fock.Matrix(phi, phi)
		require.NoError(t, err)
		P, err := fock.PotentialMatrix(phi, phi)
		require.NoError(t, err)
		T, err := kin.Matrix(phi, phi)
		require.NoError(t, err)
		assert.InDelta(t, P.At(0, 0)+T.At(0, 0), F.At(0, 0), 1e-10)
	})

	t.Run("energy decomposition sums to total", func(t *testing.T) {
		c, err := fock.Trace(phi)
		require.NoError(t, err)
		assert.InDelta(t, c.Kinetic+c.Nuclear+c.Coulomb+c.Exchange+c.XC, c.Total, 1e-12)
		assert.Positive(t, c.Kinetic)
		assert.Negative(t, c.Nuclear)
		assert.Positive(t, c.Coulomb)
		assert.Negative(t, c.Exchange)
	})

	t.Run("clear then apply fails", func(t *testing.T) {
		fock.Clear()
		_, err := fock.ApplyPotential(o1)
		assert.Error(t, err)
	})
}

func TestFock_NilSlotsContributeNothing(t *testing.T) {
	t.Parallel()
	g := testGrid(t)
	o := normalizedGaussian(g)
	phi := orbital.NewSet(o)

	nuc := NewNuclear(g, comm.Serial{}, nil, []Nucleus{{Z: 2, X: 0}}, 0.3)
	cou := NewCoulomb(phi, comm.Serial{}, 0.5)

	// Omitted terms enter as nil concrete pointers, the way the composition
	// root builds a plain Hartree system or a reduced two-electron operator.
	var exc *Exchange
	var xc *XC
	fock := NewFock(phi, NewKinetic(), nuc, cou, exc, xc)
	require.NoError(t, fock.Setup(1e-5))

	got, err := fock.ApplyPotential(o)
	require.NoError(t, err)

	no, err := nuc.Apply(o)
	require.NoError(t, err)
	jo, err := cou.Apply(o)
	require.NoError(t, err)
	want := orbital.AddOrbitals(1, no, 1, jo)

	diff := orbital.AddOrbitals(1, got, -1, want)
	assert.InDelta(t, 0, diff.Norm(), 1e-12)

	t.Run("two-electron-only reduced operator", func(t *testing.T) {
		reduced := NewFock(phi, nil, nil, NewCoulomb(phi, comm.Serial{}, 0.5), nil, nil)
		require.NoError(t, reduced.Setup(1e-5))
		ro, err := reduced.ApplyPotential(o)
		require.NoError(t, err)
		d := orbital.AddOrbitals(1, ro, -1, jo)
		assert.InDelta(t, 0, d.Norm(), 1e-12)
	})
}

func TestFock_Unbound(t *testing.T) {
	t.Parallel()
	fock := NewFock(nil, NewKinetic(), nil, nil, nil, nil)
	assert.Error(t, fock.Setup(1e-4))
}
