package comm

import (
	"fmt"
	"sync"
)

// LocalGroup multiplexes N simulated ranks over shared memory inside one
// process, one goroutine per rank. It exists so ownership distribution and
// the two-phase reduce-then-distribute protocol can be exercised by tests
// without a real multi-process launcher.
type LocalGroup struct {
	rank  int
	state *groupState
}

type groupState struct {
	n    int
	mu   sync.Mutex
	cond *sync.Cond

	gen     int
	arrived int
	accum   []float64
	result  []float64
	failure error
}

// NewLocalGroup creates n cooperating ranks. Each returned Comm must be
// driven by its own goroutine; collectives block until all n ranks arrive.
//
// Parameters:
//   - n: The number of simulated ranks (must be positive).
//
// Returns:
//   - []*LocalGroup: One communicator per rank, rank i at index i.
func NewLocalGroup(n int) []*LocalGroup {
	if n < 1 {
		panic("comm: group size must be positive")
	}
	state := &groupState{n: n}
	state.cond = sync.NewCond(&state.mu)
	group := make([]*LocalGroup, n)
	for i := range group {
		group[i] = &LocalGroup{rank: i, state: state}
	}
	return group
}

// Rank returns this communicator's rank.
func (g *LocalGroup) Rank() int { return g.rank }

// Size returns the group size.
func (g *LocalGroup) Size() int { return g.state.n }

// GrandMaster reports whether this rank is rank 0.
func (g *LocalGroup) GrandMaster() bool { return g.rank == 0 }

// collect runs one blocking collective. Each rank contributes via the
// deposit callback on arrival; the rank completing the group publishes the
// accumulated buffer and wakes the others; every rank then reads the
// published result via the collectFn callback before leaving.
func (g *LocalGroup) collect(size int, deposit func(accum []float64), collectFn func(result []float64)) error {
	s := g.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.arrived == 0 {
		s.accum = make([]float64, size)
		s.failure = nil
	} else if len(s.accum) != size {
		s.failure = fmt.Errorf("comm: collective length mismatch: rank %d passed %d, group started with %d",
			g.rank, size, len(s.accum))
	}
	if s.failure == nil && deposit != nil {
		deposit(s.accum)
	}

	s.arrived++
	gen := s.gen
	if s.arrived == s.n {
		s.result = s.accum
		s.arrived = 0
		s.gen++
		s.cond.Broadcast()
	} else {
		for gen == s.gen {
			s.cond.Wait()
		}
	}

	if s.failure != nil {
		return s.failure
	}
	if collectFn != nil {
		collectFn(s.result)
	}
	return nil
}

// AllReduceSum sums v across all ranks; every rank receives the result.
func (g *LocalGroup) AllReduceSum(v []float64) error {
	return g.collect(len(v),
		func(accum []float64) {
			for i := range v {
				accum[i] += v[i]
			}
		},
		func(result []float64) {
			copy(v, result)
		})
}

// ReduceSum sums v into the grand master; other ranks keep their input.
func (g *LocalGroup) ReduceSum(v []float64) error {
	collectFn := func([]float64) {}
	if g.GrandMaster() {
		collectFn = func(result []float64) { copy(v, result) }
	}
	return g.collect(len(v),
		func(accum []float64) {
			for i := range v {
				accum[i] += v[i]
			}
		},
		collectFn)
}

// Broadcast distributes the grand master's v to all ranks.
func (g *LocalGroup) Broadcast(v []float64) error {
	deposit := func([]float64) {}
	if g.GrandMaster() {
		deposit = func(accum []float64) { copy(accum, v) }
	}
	return g.collect(len(v), deposit,
		func(result []float64) {
			copy(v, result)
		})
}
