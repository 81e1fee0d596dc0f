package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "railyard",
	Short: "Railyard keeps pipeline graphs and their execution state in sync",
	Long: `Railyard mirrors pipeline section documents from a document store,
tracks node execution progress pushed over a websocket channel, and
writes graph edits back with debounced persistence.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "railyard.yaml", "Path to the railyard config file")
}
