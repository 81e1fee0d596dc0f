package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/railyard/railyard/internal/config"
)

var sectionsCmd = &cobra.Command{
	Use:   "sections",
	Short: "List the pipeline sections in the configured store",
	Run: func(cmd *cobra.Command, args []string) {
		cfgPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(cfgPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}

		store, err := storeFromConfig(cfg)
		if err != nil {
			fmt.Printf("Error building store: %v\n", err)
			os.Exit(1)
		}

		sections, err := store.LoadAll(cmd.Context())
		if err != nil {
			fmt.Printf("Error loading sections: %v\n", err)
			os.Exit(1)
		}
		if len(sections) == 0 {
			fmt.Println("No sections found")
			return
		}

		for _, section := range sections {
			fmt.Printf("%s\t%s\t%d nodes\n", section.ID, section.Name, len(section.Nodes))
		}
	},
}

func init() {
	rootCmd.AddCommand(sectionsCmd)
}
