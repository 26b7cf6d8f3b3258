/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/signal-order-service/internal/bootstrap"
	"github.com/spf13/cobra"
)

// orderFillSyncWorkerCmd represents the order fill sync worker command
var orderFillSyncWorkerCmd = &cobra.Command{
	Use:   "order-fill-sync-worker",
	Short: "Reconcile open order fills with the broker",
	Long:  `The order fill sync worker periodically refreshes the fill status of submitted orders that can still change on the broker side.`,
	Run:   bootstrap.StartOrderFillSyncWorker,
}

func init() {
	rootCmd.AddCommand(orderFillSyncWorkerCmd)
}
