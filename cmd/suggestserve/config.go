package main

import (
	"github.com/spf13/cobra"

	"github.com/bastiangx/suggestserve/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or change the config file",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the active config file path",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Println(config.GetActiveConfigPath(activeCfgPath))
	},
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Rewrite the default config file with built-in defaults",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.RebuildConfigFile(); err != nil {
			return err
		}
		path, err := config.GetDefaultConfigPath()
		if err != nil {
			return err
		}
		cmd.Printf("wrote defaults to %s\n", path)
		return nil
	},
}

var (
	setDefaultLimit   int
	setMaxLimit       int
	setMinQuery       int
	setFoldDiacritics bool
)

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change engine limits and save them",
	Long: `Changes only the flags that are given, validates the result and writes it
back to the active config file. Running servers pick the change up on restart.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var defaultLimit, maxLimit, minQuery *int
		var fold *bool
		flags := cmd.Flags()
		if flags.Changed("default-limit") {
			defaultLimit = &setDefaultLimit
		}
		if flags.Changed("max-limit") {
			maxLimit = &setMaxLimit
		}
		if flags.Changed("min-query") {
			minQuery = &setMinQuery
		}
		if flags.Changed("fold-diacritics") {
			fold = &setFoldDiacritics
		}

		path := activeCfgPath
		if path == "" {
			p, err := config.GetDefaultConfigPath()
			if err != nil {
				return err
			}
			path = p
		}
		if err := cfg.Update(path, defaultLimit, maxLimit, minQuery, fold); err != nil {
			return err
		}
		cmd.Printf("updated %s\n", path)
		return nil
	},
}

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List supported seed file formats",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Print(formatList())
	},
}

func init() {
	configSetCmd.Flags().IntVar(&setDefaultLimit, "default-limit", 0, "default number of suggestions")
	configSetCmd.Flags().IntVar(&setMaxLimit, "max-limit", 0, "maximum number of suggestions")
	configSetCmd.Flags().IntVar(&setMinQuery, "min-query", 0, "minimum normalized query length")
	configSetCmd.Flags().BoolVar(&setFoldDiacritics, "fold-diacritics", false, "fold diacritics when normalizing")

	configCmd.AddCommand(configPathCmd, configResetCmd, configSetCmd)
	rootCmd.AddCommand(configCmd, formatsCmd)
}
