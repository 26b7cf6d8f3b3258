/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/signal-order-service/internal/bootstrap"
	"github.com/spf13/cobra"
)

// signalOrderWorkerCmd represents the signal order worker command
var signalOrderWorkerCmd = &cobra.Command{
	Use:   "signal-order-worker",
	Short: "Execute queued order intents",
	Long:  `The signal order worker consumes order intents queued on NATS JetStream by the gateway and submits them to the broker.`,
	Run:   bootstrap.StartSignalOrderWorker,
}

func init() {
	rootCmd.AddCommand(signalOrderWorkerCmd)
}
