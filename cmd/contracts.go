/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/signal-order-service/internal/bootstrap"
	"github.com/spf13/cobra"
)

// contractsCmd represents the contracts command
var contractsCmd = &cobra.Command{
	Use:   "contracts",
	Short: "List tradable futures contracts",
	Long:  `List the futures contracts of the configured families as reported by the broker.`,
	Run:   bootstrap.StartListContracts,
}

func init() {
	rootCmd.AddCommand(contractsCmd)
	contractsCmd.Flags().Bool("simulation", true, "use the simulation environment")
}
