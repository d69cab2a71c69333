// Command motor-server serves a simulated beamline device, mirror and slit
// motors plus a virtual detector, over gRPC and optionally over the serial
// line protocol on a local serial port or a TCP port.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"google.golang.org/grpc"

	"github.com/signalsfoundry/autoalignment/beam"
	"github.com/signalsfoundry/autoalignment/engine"
	"github.com/signalsfoundry/autoalignment/hardware"
	"github.com/signalsfoundry/autoalignment/hardware/grpcdev"
	"github.com/signalsfoundry/autoalignment/hardware/serialdev"
	"github.com/signalsfoundry/autoalignment/internal/logging"
	"github.com/signalsfoundry/autoalignment/internal/observability"
	"github.com/signalsfoundry/autoalignment/internal/shadow"
	"github.com/signalsfoundry/autoalignment/internal/srw"
	"github.com/signalsfoundry/autoalignment/model"
)

// Config holds the server settings.
type Config struct {
	ListenAddress  string
	MetricsAddress string
	// SerialAddress, when set, serves the line protocol on a TCP port for
	// clients that expect a serial-over-TCP motion controller.
	SerialAddress string
	// SerialPort, when set, serves the line protocol on a local serial
	// device such as /dev/ttyUSB0 at SerialBaud.
	SerialPort  string
	SerialBaud  int
	Implementor string
	Exposure    time.Duration
	LogLevel    string
	LogFormat   string
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.ListenAddress, "grpc-addr", ":50061", "TCP address the device gRPC server listens on")
	flag.StringVar(&cfg.MetricsAddress, "metrics-addr", ":9091", "HTTP address for Prometheus /metrics")
	flag.StringVar(&cfg.SerialAddress, "serial-addr", "", "TCP address for the serial line protocol; empty disables it")
	flag.StringVar(&cfg.SerialPort, "serial-port", "", "Serial device for the line protocol; empty disables it")
	flag.IntVar(&cfg.SerialBaud, "serial-baud", serialdev.DefaultBaudRate, "Baud rate of -serial-port")
	listPorts := flag.Bool("list-serial-ports", false, "Print the serial ports visible to the host and exit")
	flag.StringVar(&cfg.Implementor, "implementor", "srw", "Engine behind the virtual detector: srw or shadow")
	flag.DurationVar(&cfg.Exposure, "exposure", 200*time.Millisecond, "Detector exposure time")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&cfg.LogFormat, "log-format", "text", "Log format: text or json")
	flag.Parse()

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if *listPorts {
		ports, err := serialdev.Ports()
		if err != nil {
			log.Error(context.Background(), "failed to list serial ports", logging.Err(err))
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv("motor-server"), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	lis, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.ListenAddress), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "motor server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves until ctx is cancelled, then stops gracefully.
func run(ctx context.Context, cfg Config, log logging.Logger, lis net.Listener) error {
	log = logging.OrNoop(log)

	collector, err := observability.NewDeviceCollector(nil)
	if err != nil {
		return fmt.Errorf("initialise metrics collector: %w", err)
	}

	dev, err := newDevice(cfg, collector, log)
	if err != nil {
		return err
	}

	var port io.ReadWriteCloser
	if cfg.SerialPort != "" {
		if port, err = serialdev.OpenPort(cfg.SerialPort, cfg.SerialBaud); err != nil {
			return err
		}
	}
	metricsSrv := serveMetrics(cfg.MetricsAddress, collector, log)

	unsubscribe := dev.Subscribe(func(ev hardware.Event) {
		if ev.Type == hardware.EventAxisMoved {
			log.Debug(ctx, "axis moved",
				logging.String("axis", string(ev.Axis)),
				logging.Float("position", ev.Position),
			)
		}
	})
	defer unsubscribe()

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			observability.TracingUnaryServerInterceptor(),
			grpcdev.RequestIDUnaryServerInterceptor(log),
			collector.UnaryServerInterceptor(),
		),
	)
	grpcdev.Register(server, dev, log)

	var wg sync.WaitGroup
	serveErr := make(chan error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info(ctx, "starting device gRPC server", logging.String("addr", lis.Addr().String()))
		if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serveErr <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	if port != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info(ctx, "serving serial line protocol", logging.String("port", cfg.SerialPort))
			servePort(ctx, port, dev, log)
		}()
	}

	var serialLis net.Listener
	if cfg.SerialAddress != "" {
		serialLis, err = net.Listen("tcp", cfg.SerialAddress)
		if err != nil {
			if port != nil {
				_ = port.Close()
			}
			server.Stop()
			wg.Wait()
			return fmt.Errorf("listen for serial protocol: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveSerial(ctx, serialLis, dev, log)
		}()
	}

	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	log.Info(context.Background(), "shutting down motor server")
	if serialLis != nil {
		_ = serialLis.Close()
	}
	if port != nil {
		_ = port.Close()
	}
	server.GracefulStop()
	wg.Wait()

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return err
}

func newDevice(cfg Config, collector *observability.DeviceCollector, log logging.Logger) (*hardware.SimulatedDevice, error) {
	impl, err := model.ParseImplementor(cfg.Implementor)
	if err != nil {
		return nil, err
	}

	var (
		backend engine.Backend
		input   beam.PhotonBeam
	)
	switch impl {
	case model.Shadow:
		backend = shadow.New(shadow.WithLogger(log))
		input, err = shadow.GenerateSource(shadow.DefaultSourceParams())
	default:
		backend = srw.New(srw.WithLogger(log))
		input, err = srw.GenerateWavefront(srw.DefaultWavefrontParams())
	}
	if err != nil {
		return nil, fmt.Errorf("generate detector source: %w", err)
	}

	return hardware.NewSimulatedDevice(
		hardware.WithBackend(backend),
		hardware.WithInputBeam(input),
		hardware.WithExposure(cfg.Exposure),
		hardware.WithDeviceLogger(log),
		hardware.WithDeviceCollector(collector),
	), nil
}

// serveSerial accepts line-protocol connections until lis is closed. Each
// connection drives the motors of dev.
func serveSerial(ctx context.Context, lis net.Listener, dev hardware.Controller, log logging.Logger) {
	log.Info(ctx, "serving serial line protocol", logging.String("addr", lis.Addr().String()))
	var conns sync.WaitGroup
	defer conns.Wait()
	for {
		conn, err := lis.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Warn(ctx, "serial listener exited", logging.Err(err))
			}
			return
		}
		conns.Add(1)
		go func() {
			defer conns.Done()
			servePort(ctx, conn, dev, log)
		}()
	}
}

// servePort runs the line protocol on rw until it is closed or ctx ends.
func servePort(ctx context.Context, rw io.ReadWriteCloser, dev hardware.Controller, log logging.Logger) {
	defer rw.Close()
	stop := context.AfterFunc(ctx, func() { _ = rw.Close() })
	defer stop()
	if err := serialdev.Serve(ctx, rw, dev, log); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
		log.Debug(ctx, "serial connection closed", logging.Err(err))
	}
}

func serveMetrics(addr string, collector *observability.DeviceCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
