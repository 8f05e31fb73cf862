package orbital

import (
	"encoding/binary"
	"fmt"
	"os"

	apperrors "github.com/qmsolve/mrscf/internal/errors"
	"github.com/qmsolve/mrscf/internal/field"
)

// orbMeta is the orbital-level part of the fixed-size binary metadata
// record, written immediately after the function-level record.
type orbMeta struct {
	Spin     int32
	Rank     int32
	Conj     int32
	Reserved int32
	Occ      float64
	Err      float64
}

// Save writes the orbital to disk under the given file-name prefix:
// "<prefix>.meta" holds the fixed-size metadata record (function-level
// followed by orbital-level), "<prefix>_re" and "<prefix>_im" hold the
// field units for whichever components are allocated.
//
// Parameters:
//   - prefix: The file-name prefix (e.g. "phi_0").
//
// Returns:
//   - error: An error if the orbital is empty or a file cannot be written.
func (o *Orbital) Save(prefix string) error {
	grid := o.Grid()
	if grid == nil {
		return apperrors.NewPersistenceError(
			fmt.Sprintf("cannot save empty orbital to %s", prefix), nil)
	}

	fm := grid.Meta()
	if o.HasReal() {
		fm.RealSize = int64(grid.Size())
	}
	if o.HasImag() {
		fm.ImagSize = int64(grid.Size())
	}
	om := orbMeta{
		Spin: int32(o.spin),
		Rank: int32(o.rank),
		Occ:  o.occ,
		Err:  o.err,
	}
	if o.conj {
		om.Conj = 1
	}

	metaFile, err := os.Create(prefix + ".meta")
	if err != nil {
		return apperrors.NewPersistenceError("creating metadata record", err)
	}
	defer metaFile.Close()
	if err := binary.Write(metaFile, binary.LittleEndian, fm); err != nil {
		return apperrors.NewPersistenceError("writing function metadata", err)
	}
	if err := binary.Write(metaFile, binary.LittleEndian, om); err != nil {
		return apperrors.NewPersistenceError("writing orbital metadata", err)
	}

	if o.HasReal() {
		if err := field.SaveUnit(prefix+"_re", o.re); err != nil {
			return apperrors.NewPersistenceError("writing real component", err)
		}
	}
	if o.HasImag() {
		if err := field.SaveUnit(prefix+"_im", o.im); err != nil {
			return apperrors.NewPersistenceError("writing imaginary component", err)
		}
	}
	return nil
}

// Load reads an orbital written by Save into this orbital, restoring both
// metadata and field data. Loading into a non-empty orbital is a hard
// error: there is no silent overwrite. A stored discretization that is not
// one of the two supported basis kinds is likewise a hard error.
//
// Parameters:
//   - prefix: The file-name prefix used at save time.
//
// Returns:
//   - error: An error on a non-empty target, malformed metadata, or a
//     missing/inconsistent field unit.
func (o *Orbital) Load(prefix string) error {
	if o.HasReal() || o.HasImag() {
		return apperrors.NewPersistenceError(
			fmt.Sprintf("orbital not empty: refusing to load %s", prefix), nil)
	}

	metaFile, err := os.Open(prefix + ".meta")
	if err != nil {
		return apperrors.NewPersistenceError("opening metadata record", err)
	}
	defer metaFile.Close()

	var fm field.FuncMeta
	if err := binary.Read(metaFile, binary.LittleEndian, &fm); err != nil {
		return apperrors.NewPersistenceError("reading function metadata", err)
	}
	var om orbMeta
	if err := binary.Read(metaFile, binary.LittleEndian, &om); err != nil {
		return apperrors.NewPersistenceError("reading orbital metadata", err)
	}

	grid, err := field.GridFromMeta(fm)
	if err != nil {
		return apperrors.NewPersistenceError("unsupported stored discretization", err)
	}

	o.spin = Spin(om.Spin)
	o.rank = int(om.Rank)
	o.conj = om.Conj != 0
	o.occ = om.Occ
	o.err = om.Err

	if fm.RealSize > 0 {
		re, err := field.LoadUnit(prefix+"_re", grid)
		if err != nil {
			return apperrors.NewPersistenceError("reading real component", err)
		}
		o.re = re
	}
	if fm.ImagSize > 0 {
		im, err := field.LoadUnit(prefix+"_im", grid)
		if err != nil {
			return apperrors.NewPersistenceError("reading imaginary component", err)
		}
		o.im = im
	}
	return nil
}

// SaveSet persists every orbital in the set under "<prefix>_<i>".
func SaveSet(prefix string, phi *Set) error {
	for i, o := range phi.All() {
		if err := o.Save(fmt.Sprintf("%s_%d", prefix, i)); err != nil {
			return err
		}
	}
	return nil
}

// LoadSet restores a set of n orbitals persisted by SaveSet.
func LoadSet(prefix string, n int) (*Set, error) {
	orbs := make([]*Orbital, n)
	for i := range orbs {
		o := New(Paired, -1, -1)
		if err := o.Load(fmt.Sprintf("%s_%d", prefix, i)); err != nil {
			return nil, err
		}
		orbs[i] = o
	}
	return NewSet(orbs...), nil
}
