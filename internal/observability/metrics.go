package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// DeviceCollector bundles Prometheus metrics for the motor/detector device
// service and provides helpers to wire them into gRPC servers and HTTP
// handlers.
type DeviceCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	AxisPositions *prometheus.GaugeVec
	AxisMoves     *prometheus.CounterVec
	Acquisitions  prometheus.Counter
}

// NewDeviceCollector registers device metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewDeviceCollector(reg prometheus.Registerer) (*DeviceCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "device_requests_total",
		Help: "Total number of handled device RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"})
	requests, err := registerCounterVec(reg, requests, "device_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "device_request_duration_seconds",
		Help:    "Device RPC latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"service", "method"})
	durations, err = registerHistogramVec(reg, durations, "device_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	positions := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "device_axis_position",
		Help: "Current set-point of each device axis in canonical units (metres, radians, or shape units).",
	}, []string{"axis"})
	positions, err = registerGaugeVec(reg, positions, "device_axis_position")
	if err != nil {
		return nil, err
	}

	moves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "device_axis_moves_total",
		Help: "Axis move commands, labeled by axis and outcome.",
	}, []string{"axis", "outcome"})
	moves, err = registerCounterVec(reg, moves, "device_axis_moves_total")
	if err != nil {
		return nil, err
	}

	acquisitions, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "device_acquisitions_total",
		Help: "Detector acquisitions served by the device.",
	}), "device_acquisitions_total")
	if err != nil {
		return nil, err
	}

	return &DeviceCollector{
		gatherer:      gatherer,
		RPCRequests:   requests,
		RPCDurations:  durations,
		AxisPositions: positions,
		AxisMoves:     moves,
		Acquisitions:  acquisitions,
	}, nil
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *DeviceCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *DeviceCollector) Handler() http.Handler {
	return handlerFor(c.gatherer)
}

// ObserveMove records a move command and, when it succeeded, the new axis
// position.
func (c *DeviceCollector) ObserveMove(axis string, position float64, err error) {
	if c == nil {
		return
	}
	if c.AxisMoves != nil {
		c.AxisMoves.WithLabelValues(axis, outcome(err)).Inc()
	}
	if err == nil && c.AxisPositions != nil {
		c.AxisPositions.WithLabelValues(axis).Set(position)
	}
}

// IncAcquisitions counts one detector acquisition.
func (c *DeviceCollector) IncAcquisitions() {
	if c == nil || c.Acquisitions == nil {
		return
	}
	c.Acquisitions.Inc()
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func handlerFor(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
