// Package monitor serves the monitoring surface of the PHY loop: Prometheus
// metrics and a JSON snapshot over HTTP, and the standard gRPC health
// service.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/phy-core/internal/logging"
	"github.com/signalsfoundry/phy-core/internal/observability"
	"github.com/signalsfoundry/phy-core/internal/phyloop"
)

const tracerName = "github.com/signalsfoundry/phy-core/internal/monitor"

// ServiceName is the health service name reported for the PHY loop, next to
// the overall "" entry.
const ServiceName = "phy.Loop"

// StatusSource reports the last processed TTI. *phyloop.Runner implements it.
type StatusSource interface {
	Status() phyloop.Status
}

// Config wires a Monitor.
type Config struct {
	Metrics  observability.SnapshotSource
	Status   StatusSource
	Gatherer prometheus.Gatherer
	RPC      *observability.RPCCollector
	Logger   logging.Logger
}

// Monitor owns the HTTP and gRPC servers.
type Monitor struct {
	log     logging.Logger
	tracer  trace.Tracer
	metrics observability.SnapshotSource
	status  StatusSource

	hub     *hub
	health  *health.Server
	grpcSrv *grpc.Server
	httpSrv *http.Server
}

// New builds a monitor. Nothing listens until Serve.
func New(cfg Config) (*Monitor, error) {
	if cfg.Metrics == nil {
		return nil, fmt.Errorf("monitor: nil metrics source")
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Noop()
	}

	m := &Monitor{
		log:     log,
		tracer:  otel.Tracer(tracerName),
		metrics: cfg.Metrics,
		status:  cfg.Status,
		hub:     newHub(log),
		health:  health.NewServer(),
	}

	m.grpcSrv = grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			LoggerUnaryServerInterceptor(log),
			TracingUnaryServerInterceptor(),
			cfg.RPC.UnaryServerInterceptor(),
		),
	)
	healthpb.RegisterHealthServer(m.grpcSrv, m.health)
	m.SetServing(false)

	m.httpSrv = &http.Server{
		Handler:           m.newMux(cfg.Gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return m, nil
}

// Handler returns the HTTP handler serving /metrics, /api/snapshot and
// /api/stream.
func (m *Monitor) Handler() http.Handler {
	return m.httpSrv.Handler
}

// SetServing flips the health status of both the overall server and
// ServiceName.
func (m *Monitor) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	m.health.SetServingStatus("", status)
	m.health.SetServingStatus(ServiceName, status)
}

// Serve starts both servers on the given listeners in background goroutines.
// Either listener may be nil to skip that server.
func (m *Monitor) Serve(httpLis, grpcLis net.Listener) {
	ctx := context.Background()
	if httpLis != nil {
		m.log.Info(ctx, "serving monitor HTTP", logging.String("addr", httpLis.Addr().String()))
		go func() {
			if err := m.httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				m.log.Warn(ctx, "monitor HTTP server exited", logging.Err(err))
			}
		}()
	}
	if grpcLis != nil {
		m.log.Info(ctx, "serving monitor gRPC", logging.String("addr", grpcLis.Addr().String()))
		go func() {
			if err := m.grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				m.log.Warn(ctx, "monitor gRPC server exited", logging.Err(err))
			}
		}()
	}
}

// ListenAndServe opens TCP listeners on the given addresses and calls Serve.
// An empty address disables that server.
func (m *Monitor) ListenAndServe(httpAddr, grpcAddr string) error {
	var httpLis, grpcLis net.Listener
	var err error
	if httpAddr != "" {
		if httpLis, err = net.Listen("tcp", httpAddr); err != nil {
			return fmt.Errorf("listen http %s: %w", httpAddr, err)
		}
	}
	if grpcAddr != "" {
		if grpcLis, err = net.Listen("tcp", grpcAddr); err != nil {
			if httpLis != nil {
				_ = httpLis.Close()
			}
			return fmt.Errorf("listen grpc %s: %w", grpcAddr, err)
		}
	}
	m.Serve(httpLis, grpcLis)
	return nil
}

// Shutdown reports NOT_SERVING, closes stream clients, then stops both
// servers. The gRPC server is stopped forcibly if ctx expires before in-flight
// RPCs finish.
func (m *Monitor) Shutdown(ctx context.Context) error {
	m.health.Shutdown()
	m.hub.stop()

	stopped := make(chan struct{})
	go func() {
		m.grpcSrv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		m.grpcSrv.Stop()
	}

	if err := m.httpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown http: %w", err)
	}
	return nil
}

// LoggerUnaryServerInterceptor stores a logger tagged with the RPC method on
// the request context.
func LoggerUnaryServerInterceptor(log logging.Logger) grpc.UnaryServerInterceptor {
	if log == nil {
		log = logging.Noop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		l := log.With(logging.String("grpc_method", info.FullMethod))
		ctx = logging.ContextWithLogger(ctx, l)
		resp, err := handler(ctx, req)
		if err != nil {
			l.Debug(ctx, "rpc failed", logging.Err(err))
		}
		return resp, err
	}
}

// TracingUnaryServerInterceptor names the RPC span and tags it with standard
// attributes, starting a server span when no stats handler created one.
func TracingUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	tracer := otel.Tracer(tracerName)

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		service, method := observability.SplitMethod(info.FullMethod)
		name := fmt.Sprintf("Monitor/%s/%s", service, method)
		span := trace.SpanFromContext(ctx)
		created := false
		if !span.SpanContext().IsValid() {
			ctx, span = tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
			created = true
		} else {
			span.SetName(name)
		}

		span.SetAttributes(
			attribute.String("rpc.system", "grpc"),
			attribute.String("rpc.service", service),
			attribute.String("rpc.method", method),
			attribute.String("rpc.full_method", strings.TrimPrefix(info.FullMethod, "/")),
		)

		resp, err := handler(ctx, req)
		if err != nil {
			span.RecordError(err)
		}
		if created {
			span.End()
		}
		return resp, err
	}
}
