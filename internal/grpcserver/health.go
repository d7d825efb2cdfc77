// Package grpcserver runs the gRPC health endpoint of the ledger daemon.
package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	// ServiceName is the health service key reported alongside the overall "" key.
	ServiceName = "pointsledger.v1.Ledger"

	defaultCheckInterval = 10 * time.Second
	defaultPingTimeout   = 2 * time.Second
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthMonitor keeps the standard health service in line with store reachability.
type HealthMonitor struct {
	health      *health.Server
	pinger      Pinger
	logger      *zap.Logger
	interval    time.Duration
	pingTimeout time.Duration
}

// NewHealthMonitor starts in NOT_SERVING until the first successful check.
func NewHealthMonitor(pinger Pinger, logger *zap.Logger, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	monitor := &HealthMonitor{
		health:      health.NewServer(),
		pinger:      pinger,
		logger:      logger,
		interval:    interval,
		pingTimeout: defaultPingTimeout,
	}
	monitor.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return monitor
}

// Check pings the store once and publishes the resulting status.
func (monitor *HealthMonitor) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	pingCtx, cancel := context.WithTimeout(ctx, monitor.pingTimeout)
	defer cancel()
	status := healthpb.HealthCheckResponse_SERVING
	if err := monitor.pinger.Ping(pingCtx); err != nil {
		monitor.logger.Warn("store ping failed", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	monitor.setStatus(status)
	return status
}

// Run re-checks on every interval until ctx ends, then reports NOT_SERVING for good.
func (monitor *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(monitor.interval)
	defer ticker.Stop()
	monitor.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			monitor.health.Shutdown()
			return
		case <-ticker.C:
			monitor.Check(ctx)
		}
	}
}

// Register attaches the health service to server.
func (monitor *HealthMonitor) Register(server *grpc.Server) {
	healthpb.RegisterHealthServer(server, monitor.health)
}

func (monitor *HealthMonitor) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	monitor.health.SetServingStatus("", status)
	monitor.health.SetServingStatus(ServiceName, status)
}

// Serve listens on listenAddr until ctx is cancelled, then stops gracefully.
func Serve(ctx context.Context, listenAddr string, server *grpc.Server, logger *zap.Logger) error {
	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return serveListener(ctx, lis, server, logger.With(zap.String("listen_addr", listenAddr)))
}

func serveListener(ctx context.Context, lis net.Listener, server *grpc.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC health server starting")
		errCh <- server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("gRPC shutdown requested")
		server.GracefulStop()
		if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return serveErr
		}
		return nil
	case serveErr := <-errCh:
		if errors.Is(serveErr, grpc.ErrServerStopped) {
			return nil
		}
		return serveErr
	}
}
