package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/signalsfoundry/phy-core/internal/config"
	"github.com/signalsfoundry/phy-core/internal/logging"
	"github.com/signalsfoundry/phy-core/internal/monitor"
	"github.com/signalsfoundry/phy-core/internal/observability"
	"github.com/signalsfoundry/phy-core/internal/phyloop"
	"github.com/signalsfoundry/phy-core/internal/synth"
	"github.com/signalsfoundry/phy-core/ntn"
	"github.com/signalsfoundry/phy-core/phymetrics"
	"github.com/signalsfoundry/phy-core/rftime"
	"github.com/signalsfoundry/phy-core/timectrl"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	carriers := flag.Uint("carriers", 0, "Number of active carriers (overrides config)")
	channels := flag.Uint("channels", 0, "Number of RF channels (overrides config)")
	accelerated := flag.Bool("accelerated", false, "Run TTIs back to back instead of one per tick")
	reportInterval := flag.Uint("report-interval", 0, "TTIs between reports (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for /metrics and /api/snapshot")
	grpcAddr := flag.String("grpc-addr", "", "TCP address of the gRPC health service")
	seed := flag.Int64("seed", 0, "Seed of the synthetic measurement source")
	ttis := flag.Uint64("ttis", 0, "Stop after this many TTIs; 0 runs until interrupted")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error(ctx, "failed to load config", logging.String("path", *configPath), logging.Err(err))
		os.Exit(1)
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Error(ctx, "invalid environment override", logging.Err(err))
		os.Exit(1)
	}

	// Only flags given on the command line override the file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "carriers":
			cfg.Carriers = uint32(*carriers)
		case "channels":
			cfg.Channels = uint32(*channels)
		case "accelerated":
			cfg.Accelerated = *accelerated
		case "report-interval":
			cfg.ReportInterval = uint32(*reportInterval)
		case "metrics-addr":
			cfg.Monitor.MetricsAddr = *metricsAddr
		case "grpc-addr":
			cfg.Monitor.GRPCAddr = *grpcAddr
		case "seed":
			cfg.Synth.Seed = *seed
		}
	})

	if err := cfg.Validate(); err != nil {
		log.Error(ctx, "invalid configuration", logging.Err(err))
		os.Exit(1)
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	httpLis, err := listen(cfg.Monitor.MetricsAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for HTTP", logging.String("addr", cfg.Monitor.MetricsAddr), logging.Err(err))
		os.Exit(1)
	}
	grpcLis, err := listen(cfg.Monitor.GRPCAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.Monitor.GRPCAddr), logging.Err(err))
		os.Exit(1)
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(stopCtx, cfg, log, httpLis, grpcLis, *ttis); err != nil {
		log.Error(ctx, "phy monitor exited", logging.Err(err))
		stop()
		os.Exit(1)
	}
}

func listen(addr string) (net.Listener, error) {
	if addr == "" {
		return nil, nil
	}
	return net.Listen("tcp", addr)
}

// run wires the PHY loop to the monitoring surface and blocks until ctx is
// cancelled or ttis TTIs have been processed.
func run(ctx context.Context, cfg *config.Config, log logging.Logger, httpLis, grpcLis net.Listener, ttis uint64) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	loopMetrics, err := observability.NewLoopCollector(reg)
	if err != nil {
		return fmt.Errorf("loop metrics: %w", err)
	}
	rpcMetrics, err := observability.NewRPCCollector(reg)
	if err != nil {
		return fmt.Errorf("rpc metrics: %w", err)
	}

	board := phymetrics.NewBoard(cfg.Carriers)
	if _, err := observability.NewPHYCollector(reg, board); err != nil {
		return err
	}

	var tracker *ntn.Tracker
	if cfg.NTN.Enabled {
		tracker = ntn.NewTrackerFromTLE(cfg.NTN.TLELine1, cfg.NTN.TLELine2, cfg.NTN.Observer)
		log.Info(ctx, "ntn geometry enabled",
			logging.Float64("lat_deg", cfg.NTN.Observer.LatDeg),
			logging.Float64("lon_deg", cfg.NTN.Observer.LonDeg),
		)
	}
	src := synth.New(synth.Config{
		Seed:           cfg.Synth.Seed,
		NonFiniteSINRP: cfg.Synth.NonFiniteSINRP,
		PCIBase:        cfg.Synth.PCIBase,
		DLEARFCN:       cfg.Synth.DLEARFCN,
		Tracker:        tracker,
	})

	tick, err := cfg.TickDuration()
	if err != nil {
		return err
	}
	mode := timectrl.RealTime
	if cfg.Accelerated {
		mode = timectrl.Accelerated
	}
	clock := timectrl.NewTimeController(cfg.StartTTI, tick, mode)

	// The monitor needs the runner for its status, so reports reach it
	// through a closure.
	var mon *monitor.Monitor
	start := rftime.FromTime(time.Now())
	runner := phyloop.NewRunner(board, src, start,
		phyloop.WithRecorder(loopMetrics),
		phyloop.WithLogger(log.With(logging.String("component", "phyloop"))),
		phyloop.WithReportInterval(cfg.ReportInterval),
		phyloop.WithChannels(cfg.Channels),
		phyloop.WithWindowedReports(cfg.WindowedReports),
		phyloop.WithBudget(tick),
		phyloop.WithReportHook(func(m phymetrics.PHYMetrics, st phyloop.Status) {
			mon.Publish(m, st)
		}),
	)

	mon, err = monitor.New(monitor.Config{
		Metrics:  board,
		Status:   runner,
		Gatherer: reg,
		RPC:      rpcMetrics,
		Logger:   log,
	})
	if err != nil {
		return err
	}
	mon.Serve(httpLis, grpcLis)
	mon.SetServing(true)

	log.Info(ctx, "starting phy monitor",
		logging.Uint32("carriers", cfg.Carriers),
		logging.Uint32("channels", runner.Channels()),
		logging.Float64("sample_rate_hz", cfg.SampleRateHz),
		logging.Uint64("start_sample", start.Samples(cfg.SampleRateHz)),
		logging.String("start_timestamp", start.String()),
	)

	runErr := runner.Run(ctx, clock, ttis)

	log.Info(context.Background(), "shutting down phy monitor", logging.Uint64("processed", clock.Processed()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mon.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "monitor shutdown failed", logging.Err(err))
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
