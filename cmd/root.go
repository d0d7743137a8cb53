/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatwire",
	Short: "Conversational channel gateway",
	Long: `Chatwire receives user messages from messaging channels (REST webhooks,
Telegram, a browser socket widget), hands them to a responder, and delivers the
replies back through the channel they arrived on.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
