/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/signal-order-service/internal/bootstrap"
	"github.com/spf13/cobra"
)

// signalGatewayCmd represents the signal gateway command
var signalGatewayCmd = &cobra.Command{
	Use:   "signal-gateway",
	Short: "Serve the signal order HTTP API",
	Long:  `The signal gateway accepts trading signals over HTTP, sizes them against the current broker position and submits the resulting futures orders.`,
	Run:   bootstrap.StartSignalGateway,
}

func init() {
	rootCmd.AddCommand(signalGatewayCmd)
}
