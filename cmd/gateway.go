/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/order-trigger-service/internal/bootstrap"
	"github.com/spf13/cobra"
)

// gatewayCmd represents the gateway command
var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the Trading Gateway service",
	Long: `The Trading Gateway is the external-facing surface of the order trigger
system. It serves the order HTTP API (create, list, execute-on-demand,
cancel, check) and the websocket notification stream, and relays execution
events produced by the trigger worker to connected observers.`,
	Run: bootstrap.StartGateway,
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}
