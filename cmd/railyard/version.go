package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/railyard/railyard"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of railyard",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("railyard version %s\n", strings.TrimSpace(railyard.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
