// Package orbital defines the single-particle wavefunction entity and the
// ordered, fixed-size orbital set, together with the dense linear algebra
// between sets (overlap, rotation, Löwdin orthonormalization, canonical
// diagonalization, localization).
//
// Copying an orbital is shallow by design: metadata is duplicated while the
// field data is shared by reference. Exactly one logical owner is
// responsible for the field data's lifetime; shallow-copy holders must never
// call Free.
package orbital

import (
	"fmt"
	"math"

	"github.com/qmsolve/mrscf/internal/field"
)

// Spin labels an orbital's spin state. It is fixed for the orbital's
// lifetime.
type Spin int32

const (
	// Paired is a doubly-occupied closed-shell orbital.
	Paired Spin = 0
	// Alpha is a spin-up orbital.
	Alpha Spin = 1
	// Beta is a spin-down orbital.
	Beta Spin = 2
)

// String returns the single-character spin tag used in printed tables.
func (s Spin) String() string {
	switch s {
	case Paired:
		return "p"
	case Alpha:
		return "a"
	case Beta:
		return "b"
	default:
		return "u"
	}
}

// defaultOcc returns the spin-defaulted occupation number.
func defaultOcc(s Spin) float64 {
	if s == Paired {
		return 2
	}
	return 1
}

// Orbital represents one single-particle wavefunction: spin and occupation
// metadata, an owning rank, a conjugation flag, an error estimate updated by
// the solver, and optional real/imaginary field components. It is created
// empty; field data is allocated lazily when first computed or loaded.
type Orbital struct {
	spin Spin
	occ  float64
	rank int
	conj bool
	err  float64

	re *field.Field
	im *field.Field
}

// New creates a field-empty orbital with the given metadata. A negative
// occupation selects the spin default (2 for Paired, 1 for Alpha/Beta).
// An unknown spin is a fatal programming error.
//
// Parameters:
//   - spin: The orbital spin (Paired/Alpha/Beta).
//   - occ: The occupation number, or negative for the spin default.
//   - rank: The owning process rank (-1 means replicated on all ranks).
//
// Returns:
//   - *Orbital: The new, field-empty orbital.
func New(spin Spin, occ float64, rank int) *Orbital {
	if spin != Paired && spin != Alpha && spin != Beta {
		panic(fmt.Sprintf("orbital: invalid spin %d", spin))
	}
	if occ < 0 {
		occ = defaultOcc(spin)
	}
	return &Orbital{spin: spin, occ: occ, rank: rank, err: 1}
}

// Spin returns the orbital spin.
func (o *Orbital) Spin() Spin { return o.spin }

// Occ returns the occupation number.
func (o *Orbital) Occ() float64 { return o.occ }

// Rank returns the owning process rank (-1 means replicated).
func (o *Orbital) Rank() int { return o.rank }

// Conjugate reports whether this handle interprets the imaginary part with
// opposite sign.
func (o *Orbital) Conjugate() bool { return o.conj }

// Error returns the orbital's current error estimate.
func (o *Orbital) Error() float64 { return o.err }

// SetError updates the orbital's error estimate.
func (o *Orbital) SetError(e float64) { o.err = e }

// HasReal reports whether the real component is allocated.
func (o *Orbital) HasReal() bool { return o.re != nil }

// HasImag reports whether the imaginary component is allocated.
func (o *Orbital) HasImag() bool { return o.im != nil }

// Real returns the real component (nil if unallocated).
func (o *Orbital) Real() *field.Field { return o.re }

// Imag returns the imaginary component (nil if unallocated).
func (o *Orbital) Imag() *field.Field { return o.im }

// SetReal installs the real component. The orbital takes ownership.
func (o *Orbital) SetReal(f *field.Field) { o.re = f }

// SetImag installs the imaginary component. The orbital takes ownership.
func (o *Orbital) SetImag(f *field.Field) { o.im = f }

// ParamCopy returns a new, field-empty orbital with identical
// spin/occupation/rank. It is used to create slots for next-generation
// orbitals before they are computed.
func (o *Orbital) ParamCopy() *Orbital {
	return New(o.spin, o.occ, o.rank)
}

// ShallowCopy returns a handle sharing the same field storage. No ownership
// is transferred: the copy must not be freed.
func (o *Orbital) ShallowCopy() *Orbital {
	cp := *o
	return &cp
}

// Dagger returns a shallow, conjugation-flipped view of the orbital. No new
// field data is created; both views remain valid until the owner frees the
// storage.
func (o *Orbital) Dagger() *Orbital {
	out := o.ShallowCopy()
	out.conj = !o.conj
	return out
}

// Free releases the field data. Only the logical owner may call this;
// shallow copies become dangling by design, exactly as the ownership
// contract prescribes.
func (o *Orbital) Free() {
	o.re = nil
	o.im = nil
}

// Grid returns the grid underlying the allocated components, or nil for an
// empty orbital.
func (o *Orbital) Grid() *field.Grid {
	if o.re != nil {
		return o.re.Grid()
	}
	if o.im != nil {
		return o.im.Grid()
	}
	return nil
}

// SquaredNorm returns <o|o>.
func (o *Orbital) SquaredNorm() float64 {
	var s float64
	if o.re != nil {
		s += o.re.Dot(o.re)
	}
	if o.im != nil {
		s += o.im.Dot(o.im)
	}
	return s
}

// Norm returns the L2 norm of the orbital.
func (o *Orbital) Norm() float64 { return math.Sqrt(o.SquaredNorm()) }

// Dot returns the real part of <bra|ket>, honoring the conjugation flags.
// Orbitals of different spin are orthogonal by construction and yield zero.
func Dot(bra, ket *Orbital) float64 {
	if bra.spin != ket.spin {
		return 0
	}
	var s float64
	if bra.re != nil && ket.re != nil {
		s += bra.re.Dot(ket.re)
	}
	if bra.im != nil && ket.im != nil {
		signB := 1.0
		if bra.conj {
			signB = -1
		}
		signK := 1.0
		if ket.conj {
			signK = -1
		}
		s += signB * signK * bra.im.Dot(ket.im)
	}
	return s
}

// AddOrbitals returns a*A + b*B as a freshly-allocated orbital carrying A's
// metadata. Components missing on both operands stay unallocated.
func AddOrbitals(a float64, A *Orbital, b float64, B *Orbital) *Orbital {
	out := A.ParamCopy()
	out.re = combine(a, A.re, b, B.re)
	out.im = combine(a, A.im, b, B.im)
	return out
}

// combine forms a*x + b*y where either field may be nil.
func combine(a float64, x *field.Field, b float64, y *field.Field) *field.Field {
	switch {
	case x == nil && y == nil:
		return nil
	case y == nil:
		out := x.Copy()
		out.Scale(a)
		return out
	case x == nil:
		out := y.Copy()
		out.Scale(b)
		return out
	default:
		return field.Add(a, x, b, y)
	}
}

// Crop compresses the orbital's components to the given precision.
func (o *Orbital) Crop(prec float64) {
	if o.re != nil {
		o.re.Crop(prec)
	}
	if o.im != nil {
		o.im.Crop(prec)
	}
}
