/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/order-trigger-service/internal/bootstrap"
	"github.com/spf13/cobra"
)

// triggerWorkerCmd represents the triggerWorker command
var triggerWorkerCmd = &cobra.Command{
	Use:   "trigger-worker",
	Short: "Start the Trigger Worker service",
	Long: `The Trigger Worker drives the periodic evaluation of conditional orders.
It polls the configured price feed on a fixed interval, evaluates every
active order against the observed price, executes matching orders exactly
once through a conditional status transition, and publishes execution
events for the gateway's broadcaster.`,
	Run: bootstrap.StartTriggerWorker,
}

func init() {
	rootCmd.AddCommand(triggerWorkerCmd)
}
