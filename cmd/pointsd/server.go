package main

import (
	"context"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/pointsledger/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/pointsledger/internal/httpapi"
	"github.com/MarkoPoloResearchLab/pointsledger/internal/metrics"
	"github.com/MarkoPoloResearchLab/pointsledger/internal/notify"
	"github.com/MarkoPoloResearchLab/pointsledger/internal/oplog"
	"github.com/MarkoPoloResearchLab/pointsledger/internal/settings"
	"github.com/MarkoPoloResearchLab/pointsledger/pkg/ledger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const (
	notifyDrainTimeout = 5 * time.Second
	redisPingTimeout   = 2 * time.Second
)

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := newLogger(cfg.LogDevelopment)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	if !cfg.LogDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}

	store, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("store open: %w", err)
	}
	defer cleanup()

	collectors := metrics.New()
	dispatcher, closeSinks, err := newDispatcher(ctx, cfg.Notify, logger, collectors)
	if err != nil {
		return fmt.Errorf("notify init: %w", err)
	}
	defer closeSinks()
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), notifyDrainTimeout)
		defer cancel()
		if drainErr := dispatcher.Close(drainCtx); drainErr != nil {
			logger.Warn("notification drain incomplete", zap.Error(drainErr))
		}
	}()

	fees, err := settings.NewCashoutFees(cfg.CashoutFeePercent)
	if err != nil {
		return err
	}

	clock := func() int64 { return time.Now().UTC().Unix() }
	service, err := ledger.NewService(store, clock,
		ledger.WithOperationLogger(oplog.New(logger)),
		ledger.WithOperationLogger(collectors),
		ledger.WithNotifier(dispatcher),
		ledger.WithFeeSchedule(fees),
		ledger.WithMaxAttempts(cfg.MaxAttempts),
	)
	if err != nil {
		return fmt.Errorf("ledger service init: %w", err)
	}

	router := httpapi.NewRouter(cfg.HTTP, logger, service, httpapi.WithMetrics(collectors))

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return httpapi.Run(groupCtx, cfg.HTTP, logger, router)
	})
	if cfg.GRPCListenAddr != "" {
		monitor := grpcserver.NewHealthMonitor(store, logger, cfg.HealthInterval)
		grpcServer := grpc.NewServer()
		monitor.Register(grpcServer)
		group.Go(func() error {
			monitor.Run(groupCtx)
			return nil
		})
		group.Go(func() error {
			return grpcserver.Serve(groupCtx, cfg.GRPCListenAddr, grpcServer, logger)
		})
	}
	return group.Wait()
}

func newDispatcher(ctx context.Context, cfg notify.Config, logger *zap.Logger, collectors *metrics.Collectors) (*notify.Dispatcher, func(), error) {
	sinks := []notify.Sink{notify.NewLogSink(logger)}
	closeSinks := func() {}
	if cfg.RedisEnabled() {
		client := notify.NewRedisClient(cfg)
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		if pingErr := client.Ping(pingCtx).Err(); pingErr != nil {
			logger.Warn("redis unreachable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(pingErr))
		}
		cancel()
		sinks = append(sinks, notify.NewRedisSink(client, cfg.Channel))
		closeSinks = func() { _ = client.Close() }
		logger.Info("redis notification sink enabled", zap.String("addr", cfg.RedisAddr), zap.String("channel", cfg.Channel))
	}
	dispatcher, err := notify.NewDispatcher(cfg, logger, sinks, notify.WithQueueDepthObserver(collectors.ObserveQueueDepth))
	if err != nil {
		closeSinks()
		return nil, nil, err
	}
	return dispatcher, closeSinks, nil
}
