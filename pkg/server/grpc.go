package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"outreach-controlplane/pkg/config"
	"outreach-controlplane/pkg/errutil"
	"outreach-controlplane/pkg/health"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	healthgrpc "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

var ProvideGRPCServer = fx.Module("grpc.server",
	fx.Provide(
		NewListener,
		WithOption,
		NewGRPCServer,
	),
	fx.Invoke(
		StartGRPCServer,
	),
)

func NewListener(cfg *config.Config) (net.Listener, error) {
	return net.Listen("tcp", fmt.Sprintf(":%s", cfg.Grpc.Addr))
}

// interceptorLogger adapts zap to the go-grpc-middleware logging interface.
func interceptorLogger(l *zap.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		f := make([]zap.Field, 0, len(fields)/2)
		for i := 0; i+1 < len(fields); i += 2 {
			key, _ := fields[i].(string)
			f = append(f, zap.Any(key, fields[i+1]))
		}
		log := l.WithOptions(zap.AddCallerSkip(1)).With(f...)

		switch lvl {
		case logging.LevelDebug:
			log.Debug(msg)
		case logging.LevelInfo:
			log.Info(msg)
		case logging.LevelWarn:
			log.Warn(msg)
		default:
			log.Error(msg)
		}
	})
}

type OptionParams struct {
	fx.In
	Config *config.Config
	Tracer trace.TracerProvider
	Meter  metric.MeterProvider
}

func WithOption(p OptionParams) []grpc.ServerOption {
	recoverFn := recovery.WithRecoveryHandler(func(v any) error {
		zap.L().Error("grpc handler panicked", zap.Any("panic", v))
		return status.Errorf(codes.Internal, "internal error")
	})
	logOpts := []logging.Option{logging.WithLogOnEvents(logging.FinishCall)}

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			recovery.UnaryServerInterceptor(recoverFn),
			logging.UnaryServerInterceptor(interceptorLogger(zap.L()), logOpts...),
			errutil.UnaryServerInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			recovery.StreamServerInterceptor(recoverFn),
			logging.StreamServerInterceptor(interceptorLogger(zap.L()), logOpts...),
		),
		grpc.StatsHandler(
			otelgrpc.NewServerHandler(
				otelgrpc.WithTracerProvider(p.Tracer),
				otelgrpc.WithMeterProvider(p.Meter),
			),
		),
	}

	if p.Config.TLS.Enable {
		cert, err := LoadCertificate(p.Config.TLS.CertPath, p.Config.TLS.KeyPath)
		if err != nil {
			zap.L().Error("failed to load gRPC TLS certificate, serving plaintext", zap.Error(err))
		} else {
			opts = append(opts, WithTLS(cert))
		}
	}
	return opts
}

func LoadCertificate(certPath, keyPath string) (*tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func WithTLS(cert *tls.Certificate) grpc.ServerOption {
	return grpc.Creds(
		credentials.NewServerTLSFromCert(cert),
	)
}

type GRPCParams struct {
	fx.In
	Options []grpc.ServerOption
	Health  health.HealthService
}

// NewGRPCServer serves the standard health service, reporting the same
// readiness as /readyz.
func NewGRPCServer(p GRPCParams) *grpc.Server {
	srv := grpc.NewServer(p.Options...)

	hs := healthgrpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	p.Health.OnChange(func(ready bool) {
		st := healthpb.HealthCheckResponse_SERVING
		if !ready {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", st)
	})

	reflection.Register(srv)
	return srv
}

func StartGRPCServer(lc fx.Lifecycle, lis net.Listener, srv *grpc.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				zap.L().Info("Starting gRPC server", zap.String("addr", lis.Addr().String()))
				if err := srv.Serve(lis); err != nil {
					zap.L().Fatal("gRPC server exited", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			zap.L().Info("Stopping gRPC server")
			srv.GracefulStop()
			return nil
		},
	})
}
