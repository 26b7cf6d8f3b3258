package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/krobus00/signal-order-service/internal/config"
	"github.com/krobus00/signal-order-service/internal/constant"
	"github.com/krobus00/signal-order-service/internal/entity"
	httpHandler "github.com/krobus00/signal-order-service/internal/handler/signal/http"
	"github.com/krobus00/signal-order-service/internal/infrastructure"
	"github.com/krobus00/signal-order-service/internal/service/orderengine"
	"github.com/krobus00/signal-order-service/internal/service/orderfeed"
	"github.com/krobus00/signal-order-service/internal/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func StartSignalGateway(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := orderfeed.NewHub(0)

	deps, err := newEngineDeps(ctx, hub, false)
	util.ContinueOrFatal(err)

	if deps.js != nil {
		publishers := []entity.Publisher{deps.engine}
		for _, v := range publishers {
			err = v.JetstreamEventInit(ctx)
			util.ContinueOrFatal(err)
		}
	}

	var fillSync *orderengine.OrderFillSyncService
	if config.Env.FillSync.Embedded {
		fillSync = orderengine.NewOrderFillSyncService(deps.engine, deps.repo, config.Env.FillSync.Interval, config.Env.FillSync.BatchSize)
		go fillSync.Run(ctx)
	}

	readiness := map[string]httpHandler.ReadinessCheck{
		"database": deps.db.PingContext,
	}
	if deps.nc != nil {
		readiness["nats"] = func(context.Context) error {
			if !deps.nc.IsConnected() {
				return fmt.Errorf("nats status %s", deps.nc.Status())
			}
			return nil
		}
	}

	signalHTTPHandler := httpHandler.NewSignalHTTPHandler(deps.engine, hub, httpHandler.HandlerConfig{
		AuthKey:            config.Env.Auth.Key,
		APIKeys:            config.Env.APIKeys,
		WebhookKeyRequired: config.Env.Auth.WebhookKeyRequired,
		DefaultSimulation:  config.Env.Trading.DefaultSimulation,
		Readiness:          readiness,
	})
	httpMux := http.NewServeMux()
	signalHTTPHandler.Register(httpMux)

	httpConfig := infrastructure.DefaultHTTPServerConfig()
	httpConfig.ShutdownTimeout = config.Env.GracefulShutdownTimeout
	httpServer := infrastructure.NewHTTPServerWithConfig(httpConfig, httpMux)

	go func() {
		err := httpServer.Start()
		if err != nil {
			logrus.Error(err)
		}
	}()
	logrus.Info(fmt.Sprintf("http server started on %s", httpConfig.Addr))

	ops := map[string]operation{
		"http": func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
		"order engine": func(ctx context.Context) error {
			cancel()
			hub.Close()
			return deps.close(ctx)
		},
	}

	if grpcPort := config.Env.Port[constant.PortSignalGatewayGRPC]; grpcPort != "" {
		grpcServer, err := infrastructure.NewGRPCHealthServer(fmt.Sprintf(":%s", grpcPort))
		util.ContinueOrFatal(err)

		checks := make(map[string]infrastructure.ReadinessCheck, len(readiness))
		for name, check := range readiness {
			checks[name] = infrastructure.ReadinessCheck(check)
		}
		grpcServer.Watch(ctx, config.Env.Database[constant.DefaultOrderHistoryDatabase].PingInterval, checks)

		go func() {
			if err := grpcServer.Start(); err != nil {
				logrus.Error(err)
			}
		}()
		logrus.Info(fmt.Sprintf("grpc health server started on :%s", grpcPort))

		ops["grpc"] = grpcServer.Shutdown
	}

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, ops)

	<-wait
}
