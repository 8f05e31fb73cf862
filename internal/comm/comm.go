// Package comm isolates all collective/reduction operations behind a narrow
// interface so the iteration logic is free of communication concerns and can
// be tested in a single-process configuration.
//
// The model is distributed ownership: each orbital is assigned an owning
// rank (or replicated, owner < 0), per-orbital work is embarrassingly
// parallel across owners, and any step aggregating information across owners
// is a blocking collective — all participating ranks must reach it before
// any proceeds.
package comm

// Comm is the distributed reduction capability consumed by the SCF engine.
//
// Implementations must guarantee that collectives are blocking and called in
// the same order by every rank; there is no tag matching.
type Comm interface {
	// Rank returns this process's rank in [0, Size).
	Rank() int

	// Size returns the number of cooperating ranks.
	Size() int

	// GrandMaster reports whether this rank is the designated writer for
	// replicated data (rank 0 by convention).
	GrandMaster() bool

	// AllReduceSum sums v elementwise across all ranks. Every rank receives
	// the result in place. All ranks must pass slices of equal length.
	AllReduceSum(v []float64) error

	// ReduceSum sums v elementwise into the grand master. The content of v
	// on non-master ranks is unspecified afterwards.
	ReduceSum(v []float64) error

	// Broadcast distributes the grand master's v to all ranks in place.
	// All ranks must pass slices of equal length.
	Broadcast(v []float64) error
}

// Owns reports whether rank c holds the data of an entity with the given
// owner rank. A negative owner means the entity is replicated on all ranks.
func Owns(c Comm, owner int) bool {
	return owner < 0 || owner == c.Rank()
}

// OwnerOf returns the owning rank for the i-th entity under the default
// round-robin distribution, or -1 when running on a single rank (replicated).
func OwnerOf(c Comm, i int) int {
	if c.Size() <= 1 {
		return -1
	}
	return i % c.Size()
}

// Serial is the single-process implementation: rank 0 of 1, every collective
// is the identity.
type Serial struct{}

func (Serial) Rank() int                    { return 0 }
func (Serial) Size() int                    { return 1 }
func (Serial) GrandMaster() bool            { return true }
func (Serial) AllReduceSum([]float64) error { return nil }
func (Serial) ReduceSum([]float64) error    { return nil }
func (Serial) Broadcast([]float64) error    { return nil }
