package orbital

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/qmsolve/mrscf/internal/errors"
	"github.com/qmsolve/mrscf/internal/field"
)

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()
	g := testGrid(t)

	o := New(Alpha, 1, 2)
	o.SetReal(gaussian(g, 0.5))
	o.SetImag(gaussian(g, -1))
	o.SetError(0.0123)

	prefix := filepath.Join(t.TempDir(), "phi_0")
	require.NoError(t, o.Save(prefix))

	loaded := New(Paired, -1, -1)
	require.NoError(t, loaded.Load(prefix))

	assert.Equal(t, Alpha, loaded.Spin())
	assert.Equal(t, 1.0, loaded.Occ())
	assert.Equal(t, 2, loaded.Rank())
	assert.Equal(t, 0.0123, loaded.Error())
	assert.True(t, loaded.Grid().SameAs(g))

	diff := field.Add(1, o.Real(), -1, loaded.Real())
	assert.Zero(t, diff.Norm(), "real component must survive bit-exact")
	diff = field.Add(1, o.Imag(), -1, loaded.Imag())
	assert.Zero(t, diff.Norm(), "imaginary component must survive bit-exact")
}

func TestSaveLoad_RealOnly(t *testing.T) {
	t.Parallel()
	g := testGrid(t)
	o := New(Paired, -1, -1)
	o.SetReal(gaussian(g, 0))

	prefix := filepath.Join(t.TempDir(), "phi")
	require.NoError(t, o.Save(prefix))

	_, err := os.Stat(prefix + "_im")
	assert.True(t, os.IsNotExist(err), "no imaginary unit for a real orbital")

	loaded := New(Paired, -1, -1)
	require.NoError(t, loaded.Load(prefix))
	assert.True(t, loaded.HasReal())
	assert.False(t, loaded.HasImag())
}

func TestSave_EmptyOrbital(t *testing.T) {
	t.Parallel()
	o := New(Paired, -1, -1)
	err := o.Save(filepath.Join(t.TempDir(), "phi"))
	require.Error(t, err)
	var pe apperrors.PersistenceError
	assert.ErrorAs(t, err, &pe)
}

func TestLoad_NonEmptyTarget(t *testing.T) {
	t.Parallel()
	g := testGrid(t)
	o := New(Paired, -1, -1)
	o.SetReal(gaussian(g, 0))

	prefix := filepath.Join(t.TempDir(), "phi")
	require.NoError(t, o.Save(prefix))

	err := o.Load(prefix)
	require.Error(t, err, "loading into a non-empty orbital must fail")
	assert.Contains(t, err.Error(), "not empty")
}

func TestLoad_UnsupportedBasisKind(t *testing.T) {
	t.Parallel()
	g := testGrid(t)
	o := New(Paired, -1, -1)
	o.SetReal(gaussian(g, 0))

	prefix := filepath.Join(t.TempDir(), "phi")
	require.NoError(t, o.Save(prefix))

	// Rewrite the metadata record with an unknown basis kind.
	fm := g.Meta()
	fm.Kind = 42
	fm.RealSize = int64(g.Size())
	mf, err := os.Create(prefix + ".meta")
	require.NoError(t, err)
	require.NoError(t, binary.Write(mf, binary.LittleEndian, fm))
	require.NoError(t, binary.Write(mf, binary.LittleEndian, orbMeta{Occ: 2}))
	require.NoError(t, mf.Close())

	fresh := New(Paired, -1, -1)
	err = fresh.Load(prefix)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discretization")
}

func TestLoad_MissingMeta(t *testing.T) {
	t.Parallel()
	o := New(Paired, -1, -1)
	assert.Error(t, o.Load(filepath.Join(t.TempDir(), "absent")))
}

func TestSaveLoadSet(t *testing.T) {
	t.Parallel()
	g := testGrid(t)
	orbs := make([]*Orbital, 3)
	for i := range orbs {
		o := New(Paired, -1, -1)
		o.SetReal(gaussian(g, float64(i)-1))
		orbs[i] = o
	}
	phi := NewSet(orbs...)

	prefix := filepath.Join(t.TempDir(), "scf")
	require.NoError(t, SaveSet(prefix, phi))

	loaded, err := LoadSet(prefix, 3)
	require.NoError(t, err)
	require.Equal(t, 3, loaded.Size())
	for i := 0; i < 3; i++ {
		assert.InDelta(t, phi.At(i).Norm(), loaded.At(i).Norm(), 0)
	}

	t.Run("missing member is an error", func(t *testing.T) {
		t.Parallel()
		_, err := LoadSet(prefix, 4)
		assert.Error(t, err)
	})
}
