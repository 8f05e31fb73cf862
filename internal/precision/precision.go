// Package precision implements the adaptive precision schedule of the SCF
// iteration: early iterations run with loose thresholds and the precision
// tightens as the orbital error shrinks, never dropping below the final
// target. This is where most of the engine's runtime is saved; the final
// precision only has to be paid once the iterate is already close.
package precision

import "math"

// DefaultFinal is the overall relative precision used when the caller does
// not request one.
const DefaultFinal = 1e-5

// Controller carries the precision schedule for one optimization.
type Controller struct {
	start   float64
	final   float64
	current float64
}

// New creates a controller with the usual defaulting rules: a negative
// final precision selects the overall default, and a negative start means
// the iteration runs at final precision from the first step.
//
// Parameters:
//   - start: The initial precision, or negative to start at final.
//   - final: The target precision, or negative for DefaultFinal.
//
// Returns:
//   - *Controller: The controller positioned at the start precision.
func New(start, final float64) *Controller {
	if final < 0 {
		final = DefaultFinal
	}
	if start < 0 {
		start = final
	}
	return &Controller{start: start, final: final, current: start}
}

// Current returns the precision for the current iteration.
func (c *Controller) Current() float64 { return c.current }

// Final returns the target precision.
func (c *Controller) Final() float64 { return c.final }

// Adjust tightens the precision based on the latest orbital error:
//
//	current <- max(final, min(current * 3/4, error / 10))
//
// The geometric factor guarantees progress even when the error stalls; the
// error coupling keeps the precision an order of magnitude ahead of the
// iterate. The precision never drops below the final target.
//
// Parameters:
//   - err: The latest total orbital error.
//
// Returns:
//   - float64: The precision for the next iteration.
func (c *Controller) Adjust(err float64) float64 {
	c.current = math.Max(c.final, math.Min(c.current*0.75, err/10))
	return c.current
}

// Reset returns the schedule to the start precision for a fresh
// optimization.
func (c *Controller) Reset() {
	c.current = c.start
}
