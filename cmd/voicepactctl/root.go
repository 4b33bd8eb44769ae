package main

import (
	"github.com/spf13/cobra"
)

var (
	serverURL string
	outputFmt string
)

var rootCmd = &cobra.Command{
	Use:   "voicepactctl",
	Short: "CLI for the VoicePact server",
	Long: `voicepactctl drives a VoicePact server over its HTTP API.

It covers the contract lifecycle (create from transcript, confirm,
transition), escrow payments, and the audit trail.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "VoicePact server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")

	rootCmd.AddCommand(contractsCmd)
	rootCmd.AddCommand(paymentsCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(healthCmd)
}
