package cmd

import (
	"fmt"
	"log"
	"os"

	"SquizFM/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "squizfm_server",
	Short: "SquizFM is a multiplayer music quiz service.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting SquizFM server...")
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
