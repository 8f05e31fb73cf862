package scf

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/qmsolve/mrscf/internal/logging"
	"github.com/qmsolve/mrscf/internal/operator"
)

// IterationUpdate is the per-iteration progress record handed to observers.
type IterationUpdate struct {
	Iter          int
	Energy        operator.Contributions
	OrbitalError  float64
	TotalError    float64
	PropertyError float64
	Precision     float64
	Converged     bool
	Elapsed       time.Duration
}

// Observer receives one update after every completed iteration. Observers
// are side effects only; they have no influence on control flow.
type Observer interface {
	IterationDone(u IterationUpdate)
}

// ChannelObserver forwards updates to a channel without blocking the
// iteration: when the receiver falls behind, updates are dropped.
type ChannelObserver struct {
	ch chan<- IterationUpdate
}

// NewChannelObserver creates an observer writing to ch.
func NewChannelObserver(ch chan<- IterationUpdate) *ChannelObserver {
	return &ChannelObserver{ch: ch}
}

// IterationDone sends the update if the channel has room.
func (c *ChannelObserver) IterationDone(u IterationUpdate) {
	select {
	case c.ch <- u:
	default:
	}
}

// LoggingObserver writes a structured record per iteration.
type LoggingObserver struct {
	log logging.Logger
}

// NewLoggingObserver creates an observer writing to log.
func NewLoggingObserver(log logging.Logger) *LoggingObserver {
	if log == nil {
		log = logging.Nop{}
	}
	return &LoggingObserver{log: log}
}

// IterationDone logs the energy decomposition and error signals.
func (l *LoggingObserver) IterationDone(u IterationUpdate) {
	l.log.Info("iteration complete",
		logging.Int("iter", u.Iter),
		logging.Float64("kinetic", u.Energy.Kinetic),
		logging.Float64("nuclear", u.Energy.Nuclear),
		logging.Float64("coulomb", u.Energy.Coulomb),
		logging.Float64("exchange", u.Energy.Exchange),
		logging.Float64("xc", u.Energy.XC),
		logging.Float64("total", u.Energy.Total),
		logging.Float64("err_o", u.OrbitalError),
		logging.Float64("err_t", u.TotalError),
		logging.Bool("converged", u.Converged),
		logging.String("elapsed", u.Elapsed.String()))
}

// PrometheusObserver exports the iteration signals as metrics.
type PrometheusObserver struct {
	iterations    prometheus.Counter
	totalEnergy   prometheus.Gauge
	orbitalError  prometheus.Gauge
	propertyError prometheus.Gauge
	precision     prometheus.Gauge
	duration      prometheus.Histogram
}

// NewPrometheusObserver registers the SCF metrics with reg and returns the
// observer feeding them. Registering twice with the same registry panics,
// per the usual client conventions; create one observer per process.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	factory := promauto.With(reg)
	return &PrometheusObserver{
		iterations: factory.NewCounter(prometheus.CounterOpts{
			Name: "mrscf_iterations_total",
			Help: "Number of completed SCF iterations.",
		}),
		totalEnergy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mrscf_total_energy",
			Help: "Total energy of the latest iteration (hartree).",
		}),
		orbitalError: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mrscf_orbital_error",
			Help: "Maximum orbital error of the latest iteration.",
		}),
		propertyError: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mrscf_property_error",
			Help: "Energy change between the last two iterations.",
		}),
		precision: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mrscf_working_precision",
			Help: "Adaptive precision of the latest iteration.",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mrscf_iteration_duration_seconds",
			Help:    "Wall time per SCF iteration.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
}

// IterationDone updates the exported metrics.
func (p *PrometheusObserver) IterationDone(u IterationUpdate) {
	p.iterations.Inc()
	p.totalEnergy.Set(u.Energy.Total)
	p.orbitalError.Set(u.OrbitalError)
	if u.PropertyError < 1e300 {
		p.propertyError.Set(u.PropertyError)
	}
	p.precision.Set(u.Precision)
	p.duration.Observe(u.Elapsed.Seconds())
}
