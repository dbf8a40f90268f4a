package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/multierr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/linkrate/internal/logging"
)

// TracerName is the instrumentation scope of simulation spans.
const TracerName = "github.com/signalsfoundry/linkrate"

// Exporters accepted by TracingConfig.Exporter.
const (
	ExporterConsole = "console" // pretty-printed JSON on Output
	ExporterOTLP    = "otlp"    // OTLP over gRPC to Endpoint
)

// TracingConfig governs how simulation tracing is initialised.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string
	Endpoint    string // OTLP collector, host:port
	SampleRatio float64

	// Output receives console spans. Default: os.Stderr, which keeps
	// stdout free for the run report.
	Output io.Writer

	// Attributes are added to the trace resource, usually the scenario
	// identity from ScenarioAttributes.
	Attributes []attribute.KeyValue
}

// DefaultTracingConfig is tracing off, console exporter, every run sampled.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "ratesim",
		Exporter:    ExporterConsole,
		Endpoint:    "localhost:4317",
		SampleRatio: 1,
	}
}

// TracingConfigFromEnv overlays RATESIM_TRACING_ENABLED,
// RATESIM_TRACING_EXPORTER, RATESIM_TRACING_SERVICE_NAME,
// RATESIM_TRACING_SAMPLE_RATIO and RATESIM_OTLP_ENDPOINT on
// DefaultTracingConfig. Malformed values are reported, not ignored.
func TracingConfigFromEnv() (TracingConfig, error) {
	cfg := DefaultTracingConfig()
	var err error

	if v := os.Getenv("RATESIM_TRACING_ENABLED"); v != "" {
		enabled, perr := strconv.ParseBool(v)
		if perr != nil {
			err = multierr.Append(err, fmt.Errorf("RATESIM_TRACING_ENABLED: %w", perr))
		}
		cfg.Enabled = enabled
	}
	if v := os.Getenv("RATESIM_TRACING_EXPORTER"); v != "" {
		cfg.Exporter = strings.ToLower(v)
	}
	if v := os.Getenv("RATESIM_TRACING_SERVICE_NAME"); v != "" {
		cfg.ServiceName = v
	}
	if v := os.Getenv("RATESIM_TRACING_SAMPLE_RATIO"); v != "" {
		ratio, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			err = multierr.Append(err, fmt.Errorf("RATESIM_TRACING_SAMPLE_RATIO: %w", perr))
		} else {
			cfg.SampleRatio = ratio
		}
	}
	if v := os.Getenv("RATESIM_OTLP_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	return cfg, multierr.Append(err, cfg.Validate())
}

// Validate reports every unusable field.
func (c TracingConfig) Validate() error {
	var err error
	switch strings.ToLower(c.Exporter) {
	case ExporterConsole, "stdout", ExporterOTLP, "otlpgrpc":
	default:
		err = multierr.Append(err, fmt.Errorf("unsupported tracing exporter %q", c.Exporter))
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		err = multierr.Append(err, fmt.Errorf("trace sample ratio %g outside [0,1]", c.SampleRatio))
	}
	if c.ServiceName == "" {
		err = multierr.Append(err, fmt.Errorf("tracing service name is empty"))
	}
	return err
}

// ScenarioAttributes identifies one simulation run on its trace resource,
// so runs of different scenarios and seeds can be told apart in a backend.
func ScenarioAttributes(name, algorithm string, seed uint64, stations int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("ratesim.scenario", name),
		attribute.String("ratesim.algorithm", algorithm),
		attribute.Int64("ratesim.seed", int64(seed)),
		attribute.Int("ratesim.stations", stations),
	}
}

// InitTracing installs the global tracer provider described by cfg and
// returns the function that flushes it. Disabled tracing installs a noop
// provider.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	log = logging.OrNoop(log)

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Debug(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	exp, err := exporterFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	attrs := append([]attribute.KeyValue{
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.namespace", "linkrate"),
	}, cfg.Attributes...)
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(samplerFor(cfg.SampleRatio)),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.Float("sample_ratio", cfg.SampleRatio),
	)
	return tp.Shutdown, nil
}

// samplerFor samples whole runs: child spans follow the run span.
func samplerFor(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	case ratio <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

func exporterFromConfig(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case ExporterConsole, "stdout":
		out := cfg.Output
		if out == nil {
			out = os.Stderr
		}
		return stdouttrace.New(
			stdouttrace.WithWriter(out),
			stdouttrace.WithPrettyPrint(),
			stdouttrace.WithoutTimestamps(),
		)
	case ExporterOTLP, "otlpgrpc":
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
		return otlptrace.New(ctx, client)
	default:
		return nil, fmt.Errorf("unsupported tracing exporter %q", cfg.Exporter)
	}
}

// ShutdownWithTimeout flushes spans, giving up after five seconds.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logging.OrNoop(log).Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}

// Tracer returns the simulation tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
