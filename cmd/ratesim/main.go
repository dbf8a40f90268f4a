// Command ratesim runs a rate adaptation scenario and prints a per-station
// report.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"

	"github.com/signalsfoundry/linkrate/internal/logging"
	"github.com/signalsfoundry/linkrate/internal/observability"
	"github.com/signalsfoundry/linkrate/internal/sim"
)

// options are the command-line settings. Flags win over RATESIM_* env vars.
type options struct {
	scenarioPath string
	algorithm    string
	frames       uint64
	seed         uint64
	clockMode    string
	format       string
	metricsAddr  string
	linger       time.Duration
	tracing      observability.TracingConfig
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "ratesim: %v\n", err)
		os.Exit(1)
	}
}

func parseOptions(args []string) (options, error) {
	opts := options{
		scenarioPath: os.Getenv("RATESIM_SCENARIO"),
		metricsAddr:  os.Getenv("RATESIM_METRICS_ADDR"),
		format:       "text",
	}
	if v := os.Getenv("RATESIM_FORMAT"); v != "" {
		opts.format = v
	}
	tracing, err := observability.TracingConfigFromEnv()
	if err != nil {
		return opts, fmt.Errorf("tracing: %w", err)
	}

	fs := flag.NewFlagSet("ratesim", flag.ContinueOnError)
	fs.StringVarP(&opts.scenarioPath, "scenario", "s", opts.scenarioPath, "Scenario YAML file (default: built-in single station)")
	fs.StringVarP(&opts.algorithm, "algorithm", "a", "", "Override the scenario algorithm (threshold|latency)")
	fs.Uint64VarP(&opts.frames, "frames", "n", 0, "Override the number of frames")
	fs.Uint64Var(&opts.seed, "seed", 0, "Override the scenario seed")
	fs.StringVar(&opts.clockMode, "clock-mode", "", "Override the clock mode (accelerated|realtime)")
	fs.StringVarP(&opts.format, "format", "o", opts.format, "Report format (text|json)")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", opts.metricsAddr, "Serve Prometheus metrics on this address")
	fs.DurationVar(&opts.linger, "linger", 0, "Keep the metrics endpoint up this long after the run")
	fs.BoolVar(&tracing.Enabled, "trace", tracing.Enabled, "Export a span per run and per station")
	fs.StringVar(&tracing.Exporter, "trace-exporter", tracing.Exporter, "Span exporter (console|otlp); console writes to stderr")
	fs.Float64Var(&tracing.SampleRatio, "trace-sample-ratio", tracing.SampleRatio, "Fraction of runs traced")
	fs.StringVar(&tracing.Endpoint, "otlp-endpoint", tracing.Endpoint, "OTLP gRPC collector address")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if opts.format != "text" && opts.format != "json" {
		return opts, fmt.Errorf("unknown report format %q", opts.format)
	}
	if v := os.Getenv("RATESIM_SEED"); v != "" && !fs.Changed("seed") {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return opts, fmt.Errorf("RATESIM_SEED: %w", err)
		}
		opts.seed = seed
	}

	if err := tracing.Validate(); err != nil {
		return opts, fmt.Errorf("tracing: %w", err)
	}
	opts.tracing = tracing
	return opts, nil
}

// loadScenario reads the scenario and applies overrides.
func loadScenario(opts options) (*sim.Scenario, error) {
	s := sim.DefaultScenario()
	if opts.scenarioPath != "" {
		loaded, err := sim.LoadScenario(opts.scenarioPath)
		if err != nil {
			return nil, err
		}
		s = loaded
	}
	if opts.algorithm != "" {
		s.Algorithm = opts.algorithm
	}
	if opts.frames > 0 {
		s.Frames = opts.frames
	}
	if opts.seed > 0 {
		s.Seed = opts.seed
	}
	if opts.clockMode != "" {
		s.ClockMode = opts.clockMode
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}
	log := logging.NewFromEnv()

	scenario, err := loadScenario(opts)
	if err != nil {
		return err
	}

	opts.tracing.Attributes = observability.ScenarioAttributes(
		scenario.Name, scenario.Algorithm, scenario.Seed, len(scenario.Stations))
	shutdownTracing, err := observability.InitTracing(ctx, opts.tracing, log)
	if err != nil {
		log.Warn(ctx, "tracing disabled", logging.Err(err))
	} else {
		defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)
	}

	reg := prometheus.NewRegistry()
	rateMetrics, err := observability.NewRateCollector(reg)
	if err != nil {
		return fmt.Errorf("rate metrics: %w", err)
	}
	simMetrics, err := observability.NewSimCollector(reg)
	if err != nil {
		return fmt.Errorf("sim metrics: %w", err)
	}
	metricsSrv := serveMetrics(opts.metricsAddr, simMetrics, log)

	driver, err := sim.NewDriver(scenario,
		sim.WithLogger(log),
		sim.WithSimCollector(simMetrics),
		sim.WithRateRecorder(rateMetrics),
	)
	if err != nil {
		return err
	}

	report, runErr := driver.Run(ctx)
	if report != nil {
		var werr error
		if opts.format == "json" {
			werr = report.WriteJSON(stdout)
		} else {
			werr = report.WriteText(stdout)
		}
		if werr != nil {
			return fmt.Errorf("write report: %w", werr)
		}
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	if metricsSrv != nil {
		if opts.linger > 0 && ctx.Err() == nil {
			log.Info(ctx, "holding metrics endpoint", logging.Any("linger", opts.linger))
			select {
			case <-ctx.Done():
			case <-time.After(opts.linger):
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn(ctx, "metrics shutdown error", logging.Err(err))
		}
	}
	return nil
}

func serveMetrics(addr string, collector *observability.SimCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
