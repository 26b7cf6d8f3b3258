package infrastructure

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/krobus00/signal-order-service/internal/config"
	"github.com/krobus00/signal-order-service/internal/constant"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// GRPCHealthServer exposes the standard gRPC health service and mirrors the readiness
// checks into its serving status.
type GRPCHealthServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
}

func NewGRPCHealthServer(addr string) (*GRPCHealthServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	server := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)

	if config.Env != nil && config.Env.Env == constant.DevelopmentEnvironment {
		reflection.Register(server)
	}

	return &GRPCHealthServer{server: server, health: healthServer, listener: lis}, nil
}

func (g *GRPCHealthServer) Addr() string {
	return g.listener.Addr().String()
}

func (g *GRPCHealthServer) Start() error {
	logrus.WithField("addr", g.listener.Addr().String()).Info("grpc health server starting")
	err := g.server.Serve(g.listener)
	if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Watch re-evaluates checks every interval until ctx is done.
func (g *GRPCHealthServer) Watch(ctx context.Context, interval time.Duration, checks map[string]ReadinessCheck) {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	g.evaluate(ctx, checks)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.evaluate(ctx, checks)
			}
		}
	}()
}

func (g *GRPCHealthServer) evaluate(ctx context.Context, checks map[string]ReadinessCheck) {
	status := healthpb.HealthCheckResponse_SERVING
	for name, check := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := check(checkCtx)
		cancel()
		if err != nil {
			logrus.WithError(err).WithField("check", name).Warn("readiness check failed")
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}

	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(config.ServiceName, status)
}

func (g *GRPCHealthServer) Shutdown(ctx context.Context) error {
	g.health.Shutdown()

	done := make(chan struct{})
	go func() {
		g.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		g.server.Stop()
		return ctx.Err()
	}
}
