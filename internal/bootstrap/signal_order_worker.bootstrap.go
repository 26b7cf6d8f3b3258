package bootstrap

import (
	"context"

	"github.com/krobus00/signal-order-service/internal/config"
	"github.com/krobus00/signal-order-service/internal/entity"
	"github.com/krobus00/signal-order-service/internal/util"
	"github.com/spf13/cobra"
)

// StartSignalOrderWorker consumes queued order intents from JetStream.
func StartSignalOrderWorker(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := newEngineDeps(ctx, nil, true)
	util.ContinueOrFatal(err)

	subscribers := []entity.Subscriber{deps.engine}
	for _, v := range subscribers {
		err = v.JetstreamEventSubscribe(ctx)
		util.ContinueOrFatal(err)
	}

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, map[string]operation{
		"order engine": func(ctx context.Context) error {
			cancel()
			return deps.close(ctx)
		},
	})

	<-wait
}
