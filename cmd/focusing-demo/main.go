// Command focusing-demo walks a focusing system through the standard
// auto-alignment sequence: it perturbs the input beam, then changes each
// mirror shape, pitch and translation in turn, plotting the beam at the
// detector after every step.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/grpc"

	"github.com/signalsfoundry/autoalignment/beam"
	"github.com/signalsfoundry/autoalignment/beamio"
	"github.com/signalsfoundry/autoalignment/distribution"
	"github.com/signalsfoundry/autoalignment/engine"
	"github.com/signalsfoundry/autoalignment/focusing"
	"github.com/signalsfoundry/autoalignment/hardware/grpcdev"
	"github.com/signalsfoundry/autoalignment/internal/logging"
	"github.com/signalsfoundry/autoalignment/internal/observability"
	"github.com/signalsfoundry/autoalignment/internal/render"
	"github.com/signalsfoundry/autoalignment/internal/shadow"
	"github.com/signalsfoundry/autoalignment/internal/srw"
	"github.com/signalsfoundry/autoalignment/model"
)

func main() {
	configPath := flag.String("config", "", "Path to a TOML run configuration")
	registerOverrides(flag.CommandLine)
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, log = logging.WithSessionLogger(ctx, log)

	cfg, ignored, err := loadConfig(*configPath)
	if err != nil {
		log.Error(ctx, "failed to load configuration", logging.Err(err))
		os.Exit(1)
	}
	if len(ignored) > 0 {
		log.Warn(ctx, "ignoring unknown configuration keys", logging.String("keys", strings.Join(ignored, ",")))
	}
	applyOverrides(&cfg, flag.CommandLine)

	s, err := cfg.parse()
	if err != nil {
		log.Error(ctx, "invalid configuration", logging.Err(err))
		os.Exit(1)
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv("focusing-demo"), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewFocusingCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(s.MetricsAddr, collector, log)

	err = run(ctx, s, collector, log)

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
	if err != nil {
		log.Error(ctx, "focusing run failed", logging.Err(err))
		os.Exit(1)
	}
}

// registerOverrides defines the flags that override configuration keys.
func registerOverrides(fs *flag.FlagSet) {
	fs.String("mode", "", "Execution mode: simulation or hardware")
	fs.String("implementor", "", "Backend: shadow or srw")
	fs.String("records", "", "Directory holding beam records")
	fs.String("plots", "", "Directory plots are written to")
	fs.String("device-addr", "", "gRPC address of the motor/detector server (hardware mode)")
	fs.String("metrics-addr", "", "HTTP address for Prometheus /metrics; empty disables it")
	fs.Int64("seed", 0, "Random seed for simulated acquisitions")
	fs.Bool("verbose", false, "Log motor set-points with every acquisition")
}

// applyOverrides copies the override flags given on the command line over
// cfg. Flags left unset keep the configured values.
func applyOverrides(cfg *demoConfig, fs *flag.FlagSet) {
	fs.Visit(func(f *flag.Flag) {
		value := f.Value.(flag.Getter).Get()
		switch f.Name {
		case "mode":
			cfg.Mode = value.(string)
		case "implementor":
			cfg.Implementor = value.(string)
		case "records":
			cfg.RecordsDir = value.(string)
		case "plots":
			cfg.PlotDir = value.(string)
		case "device-addr":
			cfg.DeviceAddr = value.(string)
		case "metrics-addr":
			cfg.MetricsAddr = value.(string)
		case "seed":
			cfg.RandomSeed = value.(int64)
		case "verbose":
			cfg.Verbose = value.(bool)
		}
	})
}

// step is one command of the demonstration sequence. The beam is acquired
// and plotted under title after apply succeeds.
type step struct {
	title string
	apply func(ctx context.Context, sys focusing.System) error
	// report logs a read-back after the plot, when set.
	report func(ctx context.Context, sys focusing.System, log logging.Logger) error
}

func demoSteps() []step {
	return []step{
		{
			title: "Initial Beam",
			apply: func(ctx context.Context, sys focusing.System) error {
				return sys.PerturbateInputPhotonBeam(ctx, 0, 0, model.Micron)
			},
		},
		{
			title: "Change H-KB Shape",
			apply: func(ctx context.Context, sys focusing.System) error {
				return sys.ChangeHBendableMirrorShape(ctx, 200, model.Relative)
			},
		},
		{
			title: "Change H-KB Pitch",
			apply: func(ctx context.Context, sys focusing.System) error {
				return sys.MoveHBendableMirrorMotorPitch(ctx, 0.1, model.Relative, model.Milliradians)
			},
			report: reportAngle("h_pitch_mrad", focusing.System.GetHBendableMirrorMotorPitch),
		},
		{
			title: "Change H-KB Translation",
			apply: func(ctx context.Context, sys focusing.System) error {
				return sys.MoveHBendableMirrorMotorTranslation(ctx, 10, model.Relative, model.Micron)
			},
			report: reportDistance("h_translation_um", focusing.System.GetHBendableMirrorMotorTranslation),
		},
		{
			title: "Change V-KB Shape",
			apply: func(ctx context.Context, sys focusing.System) error {
				return sys.ChangeVBimorphMirrorShape(ctx, 100, model.Relative)
			},
		},
		{
			title: "Change V-KB Pitch",
			apply: func(ctx context.Context, sys focusing.System) error {
				return sys.MoveVBimorphMirrorMotorPitch(ctx, 0.2, model.Absolute, model.Milliradians)
			},
			report: reportAngle("v_pitch_mrad", focusing.System.GetVBimorphMirrorMotorPitch),
		},
		{
			title: "Change V-KB Translation",
			apply: func(ctx context.Context, sys focusing.System) error {
				return sys.MoveVBimorphMirrorMotorTranslation(ctx, -10, model.Relative, model.Micron)
			},
			report: reportDistance("v_translation_um", focusing.System.GetVBimorphMirrorMotorTranslation),
		},
	}
}

func reportAngle(key string, get func(focusing.System, context.Context, model.AngularUnits) (float64, error)) func(context.Context, focusing.System, logging.Logger) error {
	return func(ctx context.Context, sys focusing.System, log logging.Logger) error {
		v, err := get(sys, ctx, model.Milliradians)
		if err != nil {
			return err
		}
		log.Info(ctx, "motor read-back", logging.Float(key, v))
		return nil
	}
}

func reportDistance(key string, get func(focusing.System, context.Context, model.DistanceUnits) (float64, error)) func(context.Context, focusing.System, logging.Logger) error {
	return func(ctx context.Context, sys focusing.System, log logging.Logger) error {
		v, err := get(sys, ctx, model.Micron)
		if err != nil {
			return err
		}
		log.Info(ctx, "motor read-back", logging.Float(key, v))
		return nil
	}
}

// run executes the demonstration sequence against the configured system.
func run(ctx context.Context, s settings, collector *observability.FocusingCollector, log logging.Logger) error {
	sys, closeSys, err := newSystem(s, collector, log)
	if err != nil {
		return err
	}
	defer closeSys()

	records := beamio.NewDispatcher(
		shadow.NewStore(s.RecordsDir),
		srw.NewStore(s.RecordsDir),
		beamio.WithLogger(log),
	)

	var input beam.PhotonBeam
	if s.mode == model.Simulation {
		if input, err = loadOrGenerateInput(ctx, records, s, log); err != nil {
			return err
		}
	}

	features, err := focusing.DefaultInputFeatures(s.layout)
	if err != nil {
		return err
	}
	if err := sys.Initialize(ctx, input, features, s.layout); err != nil {
		return fmt.Errorf("initialize focusing system: %w", err)
	}

	renderer := render.New(s.PlotDir, log)
	analysis := distribution.NewDispatcher(shadow.Analyzer{}, srw.Analyzer{},
		distribution.WithLogger(log),
		distribution.WithCollector(collector),
		distribution.WithRenderer(renderer),
	)
	base, err := baseRequest(s, log)
	if err != nil {
		return err
	}

	acq := focusing.AcquisitionOptions{Verbose: s.Verbose, RandomSeed: focusing.Seed(s.RandomSeed)}
	var last beam.PhotonBeam
	for i, st := range demoSteps() {
		if err := st.apply(ctx, sys); err != nil {
			return fmt.Errorf("%s: %w", st.title, err)
		}
		out, err := sys.GetPhotonBeam(ctx, acq)
		if err != nil {
			return fmt.Errorf("%s: acquire: %w", st.title, err)
		}
		req := base
		req.Title = st.title
		info, err := analysis.Compute(ctx, s.impl, out, req)
		if err != nil {
			return fmt.Errorf("%s: distribution: %w", st.title, err)
		}
		if err := renderer.Render(ctx, info, req.Resolve().Style); err != nil {
			return fmt.Errorf("%s: plot: %w", st.title, err)
		}
		log.Info(ctx, "beam at detector",
			logging.Int("step", i),
			logging.String("title", st.title),
			logging.Float("centroid_h_um", info.CentroidH*1e6),
			logging.Float("centroid_v_um", info.CentroidV*1e6),
			logging.Float("fwhm_h_um", info.FWHMH*1e6),
			logging.Float("fwhm_v_um", info.FWHMV*1e6),
			logging.Float("peak", info.PeakIntensity),
		)
		if st.report != nil {
			if err := st.report(ctx, sys, log); err != nil {
				return fmt.Errorf("%s: read-back: %w", st.title, err)
			}
		}
		last = out
	}

	if err := writeScans(ctx, sys, filepath.Join(s.PlotDir, "final_scans.html")); err != nil {
		return err
	}
	if s.mode == model.Simulation {
		if err := records.SaveBeam(ctx, last, "final_beam", s.impl); err != nil {
			return fmt.Errorf("save final beam: %w", err)
		}
	}

	log.Info(ctx, "focusing run complete", logging.Int("plots", len(renderer.Files())))
	return nil
}

func newSystem(s settings, collector *observability.FocusingCollector, log logging.Logger) (focusing.System, func(), error) {
	opts := []focusing.Option{
		focusing.WithLogger(log),
		focusing.WithCollector(collector),
		focusing.WithDefaultSeed(s.RandomSeed),
	}
	closeFn := func() {}
	if s.mode == model.Hardware {
		client, conn, err := grpcdev.Dial(s.DeviceAddr, grpc.WithUserAgent("focusing-demo"))
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, focusing.WithDevice(client))
		closeFn = func() { _ = conn.Close() }
	}
	sys, err := focusing.New(s.mode, s.impl, opts...)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return sys, closeFn, nil
}

// loadOrGenerateInput loads the input beam record, generating and saving a
// reference source when none exists yet.
func loadOrGenerateInput(ctx context.Context, d *beamio.Dispatcher, s settings, log logging.Logger) (beam.PhotonBeam, error) {
	b, err := d.LoadBeam(ctx, s.impl, s.InputBeam, beamio.WithWhichBeam(engine.SourceRecord))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load input beam: %w", err)
	}

	log.Info(ctx, "input beam not found, generating reference source",
		logging.String("name", s.InputBeam),
		logging.String("implementor", s.impl.String()),
	)
	switch s.impl {
	case model.Shadow:
		b, err = shadow.GenerateSource(shadow.DefaultSourceParams())
	default:
		b, err = srw.GenerateWavefront(srw.DefaultWavefrontParams())
	}
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.RecordsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create records directory: %w", err)
	}
	if err := d.SaveBeam(ctx, b, s.InputBeam, s.impl, beamio.WithWhichBeam(engine.SourceRecord)); err != nil {
		return nil, fmt.Errorf("save input beam: %w", err)
	}
	return b, nil
}

// baseRequest builds the plot request for the configured detector, or reads
// it from the request file when one is configured.
func baseRequest(s settings, log logging.Logger) (distribution.Request, error) {
	halfH := float64(s.NBinsH) * s.PixelSize / 2
	halfV := float64(s.NBinsV) * s.PixelSize / 2
	opts := []distribution.Option{
		distribution.WithBins(s.NBinsH, s.NBinsV),
		distribution.WithRanges(&engine.Range{Min: -halfH, Max: halfH}, &engine.Range{Min: -halfV, Max: halfV}),
		distribution.WithPlot(distribution.DefaultTitle, s.plot, s.aspect, s.cmap),
	}
	if s.DistributionRequest == "" {
		return distribution.NewRequest(opts...), nil
	}

	fileReq, ignored, err := distribution.LoadRequest(s.DistributionRequest)
	if err != nil {
		return distribution.Request{}, err
	}
	if len(ignored) > 0 {
		log.Warn(context.Background(), "ignoring unknown distribution keys",
			logging.String("path", s.DistributionRequest),
			logging.String("keys", strings.Join(ignored, ",")),
		)
	}
	return fileReq, nil
}

func writeScans(ctx context.Context, sys focusing.System, path string) error {
	h, err := sys.GetBeamScan(ctx, model.Horizontal)
	if err != nil {
		return fmt.Errorf("horizontal scan: %w", err)
	}
	v, err := sys.GetBeamScan(ctx, model.Vertical)
	if err != nil {
		return fmt.Errorf("vertical scan: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create plot directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create scan chart: %w", err)
	}
	defer f.Close()
	return render.ScanChart("Final Beam Scans", h, v).Render(f)
}

func serveMetrics(addr string, collector *observability.FocusingCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
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
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
