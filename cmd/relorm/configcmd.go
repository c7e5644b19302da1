package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/relorm/relorm/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate and show the resolved configuration",
	Long:  "Load relorm.yml from the current directory, validate it, and print the resolved values.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		green := color.New(color.FgGreen)
		green.Fprintln(cmd.OutOrStdout(), "configuration is valid")

		fmt.Fprintf(cmd.OutOrStdout(), "database.url: %s\n", cfg.Database.URL)
		fmt.Fprintf(cmd.OutOrStdout(), "loader.max_depth: %d\n", cfg.Loader.MaxDepth)
		for alias, class := range cfg.Morphs {
			fmt.Fprintf(cmd.OutOrStdout(), "morphs.%s: %s\n", alias, class)
		}
		return nil
	},
}
