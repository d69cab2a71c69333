package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FocusingCollector exposes metrics for focusing-system sessions: motor
// commands, beam acquisitions and distribution computations.
type FocusingCollector struct {
	gatherer prometheus.Gatherer

	MotorCommands        *prometheus.CounterVec
	Acquisitions         *prometheus.CounterVec
	AcquisitionDuration  *prometheus.HistogramVec
	Distributions        *prometheus.CounterVec
	DistributionDuration prometheus.Histogram
	Perturbations        prometheus.Counter
}

// NewFocusingCollector registers focusing metrics against the provided
// registerer.
func NewFocusingCollector(reg prometheus.Registerer) (*FocusingCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "focusing_motor_commands_total",
		Help: "Motor and shape commands issued through the focusing system, labeled by element, action, movement, and outcome.",
	}, []string{"element", "action", "movement", "outcome"})
	commands, err := registerCounterVec(reg, commands, "focusing_motor_commands_total")
	if err != nil {
		return nil, err
	}

	acquisitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "focusing_acquisitions_total",
		Help: "Photon beam acquisitions, labeled by execution mode, implementor, and outcome.",
	}, []string{"mode", "implementor", "outcome"})
	acquisitions, err = registerCounterVec(reg, acquisitions, "focusing_acquisitions_total")
	if err != nil {
		return nil, err
	}

	acqDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "focusing_acquisition_duration_seconds",
		Help:    "Duration of photon beam acquisitions.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"mode"})
	acqDuration, err = registerHistogramVec(reg, acqDuration, "focusing_acquisition_duration_seconds")
	if err != nil {
		return nil, err
	}

	distributions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "focusing_distributions_total",
		Help: "Distribution computations, labeled by implementor, kind, and outcome.",
	}, []string{"implementor", "kind", "outcome"})
	distributions, err = registerCounterVec(reg, distributions, "focusing_distributions_total")
	if err != nil {
		return nil, err
	}

	distDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "focusing_distribution_duration_seconds",
		Help:    "Duration of distribution computations.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}), "focusing_distribution_duration_seconds")
	if err != nil {
		return nil, err
	}

	perturbations, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "focusing_input_perturbations_total",
		Help: "Input beam perturbations applied to simulated focusing systems.",
	}), "focusing_input_perturbations_total")
	if err != nil {
		return nil, err
	}

	return &FocusingCollector{
		gatherer:             gatherer,
		MotorCommands:        commands,
		Acquisitions:         acquisitions,
		AcquisitionDuration:  acqDuration,
		Distributions:        distributions,
		DistributionDuration: distDuration,
		Perturbations:        perturbations,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *FocusingCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *FocusingCollector) Handler() http.Handler {
	return handlerFor(c.Gatherer())
}

// ObserveMotorCommand records one motor or shape command.
func (c *FocusingCollector) ObserveMotorCommand(element, action, movement string, err error) {
	if c == nil || c.MotorCommands == nil {
		return
	}
	c.MotorCommands.WithLabelValues(element, action, movement, outcome(err)).Inc()
}

// ObserveAcquisition records a beam acquisition and its duration.
func (c *FocusingCollector) ObserveAcquisition(mode, implementor string, d time.Duration, err error) {
	if c == nil {
		return
	}
	if c.Acquisitions != nil {
		c.Acquisitions.WithLabelValues(mode, implementor, outcome(err)).Inc()
	}
	if c.AcquisitionDuration != nil {
		c.AcquisitionDuration.WithLabelValues(mode).Observe(d.Seconds())
	}
}

// ObserveDistribution records a distribution computation and its duration.
func (c *FocusingCollector) ObserveDistribution(implementor, kind string, d time.Duration, err error) {
	if c == nil {
		return
	}
	if c.Distributions != nil {
		c.Distributions.WithLabelValues(implementor, kind, outcome(err)).Inc()
	}
	if c.DistributionDuration != nil {
		c.DistributionDuration.Observe(d.Seconds())
	}
}

// IncPerturbations increments the perturbation counter.
func (c *FocusingCollector) IncPerturbations() {
	if c == nil || c.Perturbations == nil {
		return
	}
	c.Perturbations.Inc()
}
