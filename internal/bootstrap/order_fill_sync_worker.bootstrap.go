package bootstrap

import (
	"context"

	"github.com/krobus00/signal-order-service/internal/config"
	"github.com/krobus00/signal-order-service/internal/service/orderengine"
	"github.com/krobus00/signal-order-service/internal/util"
	"github.com/spf13/cobra"
)

func StartOrderFillSyncWorker(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := newEngineDeps(ctx, nil, false)
	util.ContinueOrFatal(err)

	fillSyncService := orderengine.NewOrderFillSyncService(deps.engine, deps.repo, config.Env.FillSync.Interval, config.Env.FillSync.BatchSize)

	go fillSyncService.Run(ctx)

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, map[string]operation{
		"order engine": func(ctx context.Context) error {
			cancel()
			return deps.close(ctx)
		},
	})

	<-wait
}
