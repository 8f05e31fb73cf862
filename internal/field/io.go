package field

import (
	"encoding/binary"
	"fmt"
	"os"
)

// FuncMeta is the function-level part of the fixed-size binary metadata
// record persisted alongside field data: discretization kind, polynomial
// order, refinement depth, bounding box, and stored-size counters for the
// real and imaginary parts. Higher layers append their own metadata after
// this record in the same file.
type FuncMeta struct {
	Kind     int32
	Order    int32
	Depth    int32
	Reserved int32
	Corner   float64
	Extent   float64
	RealSize int64
	ImagSize int64
}

// Meta returns the metadata record describing this grid, with zero size
// counters. Callers fill RealSize/ImagSize before writing.
func (g *Grid) Meta() FuncMeta {
	return FuncMeta{
		Kind:   int32(g.kind),
		Order:  int32(g.order),
		Depth:  int32(g.depth),
		Corner: g.corner,
		Extent: g.extent,
	}
}

// GridFromMeta reconstructs a grid from a persisted metadata record.
// The stored basis kind must be one of the two supported kinds; anything
// else is a hard error (the record is malformed or from an unsupported
// build).
//
// Parameters:
//   - m: The persisted metadata record.
//
// Returns:
//   - *Grid: The reconstructed grid.
//   - error: An error if the record describes an unsupported discretization.
func GridFromMeta(m FuncMeta) (*Grid, error) {
	kind := BasisKind(m.Kind)
	if kind != Interpolating && kind != Legendre {
		return nil, fmt.Errorf("field: invalid basis kind %d in metadata record", m.Kind)
	}
	return NewGrid(kind, int(m.Order), int(m.Depth), m.Corner, m.Extent)
}

// SaveUnit writes one field component as a named binary unit: a little-endian
// coefficient count followed by the raw coefficient payload.
//
// Parameters:
//   - path: The destination file path.
//   - f: The field to persist.
//
// Returns:
//   - error: An error if the file cannot be written.
func SaveUnit(path string, f *Field) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("field: creating unit %s: %w", path, err)
	}
	defer file.Close()

	if err := binary.Write(file, binary.LittleEndian, int64(len(f.coef))); err != nil {
		return fmt.Errorf("field: writing unit header %s: %w", path, err)
	}
	if err := binary.Write(file, binary.LittleEndian, f.coef); err != nil {
		return fmt.Errorf("field: writing unit payload %s: %w", path, err)
	}
	return nil
}

// LoadUnit reads one field component written by SaveUnit onto the given
// grid. The stored coefficient count must match the grid size.
//
// Parameters:
//   - path: The source file path.
//   - g: The grid the component belongs to.
//
// Returns:
//   - *Field: The loaded field.
//   - error: An error if the unit is missing, truncated or inconsistent.
func LoadUnit(path string, g *Grid) (*Field, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("field: opening unit %s: %w", path, err)
	}
	defer file.Close()

	var count int64
	if err := binary.Read(file, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("field: reading unit header %s: %w", path, err)
	}
	if count != int64(g.Size()) {
		return nil, fmt.Errorf("field: unit %s holds %d coefficients, grid expects %d", path, count, g.Size())
	}

	out := New(g)
	if err := binary.Read(file, binary.LittleEndian, out.coef); err != nil {
		return nil, fmt.Errorf("field: reading unit payload %s: %w", path, err)
	}
	return out, nil
}
