package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration for the File Integrity Monitor",
	Long:  `View or modify the configuration for the File Integrity Monitor.`,
}

var configViewCmd = &cobra.Command{
	Use:         "view",
	Short:       "View current configuration",
	Annotations: map[string]string{rawConfigAnnotation: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Fprintf(out, "Config file: %s\n", used)
		}
		fmt.Fprintln(out, "Current configuration:")

		keys := viper.AllKeys()
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(out, "  %s: %v\n", key, viper.Get(key))
		}
	},
}

var configSetCmd = &cobra.Command{
	Use:         "set [key] [value]",
	Short:       "Set a configuration value",
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{rawConfigAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		value := args[1]
		viper.Set(key, value)

		var err error
		if viper.ConfigFileUsed() != "" {
			err = viper.WriteConfig()
		} else {
			err = viper.WriteConfigAs("config.yaml")
		}
		if err != nil {
			log.Errorw("Error writing config", "error", err)
			return err
		}
		log.Infow("Configuration updated", "key", key, "value", value)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configSetCmd)
}
