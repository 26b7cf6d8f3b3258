package bootstrap

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/krobus00/signal-order-service/internal/config"
	"github.com/krobus00/signal-order-service/internal/entity"
	"github.com/krobus00/signal-order-service/internal/service/contract"
	"github.com/krobus00/signal-order-service/internal/service/session"
	"github.com/krobus00/signal-order-service/internal/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// StartListContracts logs in once and prints the tradable contracts of the
// configured families.
func StartListContracts(cmd *cobra.Command, args []string) {
	simulation, _ := cmd.Flags().GetBool("simulation")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	factory, err := newBrokerFactory(config.Env.Broker)
	util.ContinueOrFatal(err)

	sessions := session.NewManager(factory, config.Env.Broker)
	defer func() {
		if err := sessions.Close(context.WithoutCancel(ctx)); err != nil {
			logrus.WithError(err).Warn("failed to close broker session")
		}
	}()

	brokerSession, err := sessions.Acquire(ctx, entity.TradingModeFromSimulation(simulation))
	util.ContinueOrFatal(err)

	instruments, err := contract.NewDirectory(config.Env.Trading.Families, config.Env.Trading.ContractTimeout).List(ctx, brokerSession.Broker)
	util.ContinueOrFatal(err)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(writer, "SYMBOL\tCODE\tNAME\tDELIVERY\tREFERENCE\tLIMIT DOWN\tLIMIT UP")
	for _, instrument := range instruments {
		_, _ = fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			instrument.Symbol,
			instrument.Code,
			instrument.Name,
			instrument.DeliveryMonth,
			instrument.Reference.String(),
			instrument.LimitDown.String(),
			instrument.LimitUp.String(),
		)
	}
	_ = writer.Flush()
}
