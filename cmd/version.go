/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X chatwire/cmd.version=...".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the chatwire version",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args
		fmt.Fprintf(cmd.OutOrStdout(), "chatwire %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
