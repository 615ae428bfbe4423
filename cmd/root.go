// Copyright © 2024 NAME HERE tejiriaustin123@gmail.com

package cmd

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tejiriaustin/fimtracker/config"
	"github.com/tejiriaustin/fimtracker/logger"
)

const rawConfigAnnotation = "raw-config"

var (
	cfgFile  string
	log      *logger.Logger
	validate = validator.New()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fimtracker",
	Short: "File Integrity Monitor",
	Long: `A CLI tool that records a baseline of monitored directories and keeps an
append-only history of every file creation, modification, rename and deletion.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[rawConfigAnnotation] == "true" {
			buildLogger("info", true)
			return config.Read(viper.GetViper(), cfgFile)
		}

		config.InitConfig(validate, bootstrapLogger, &cfgFile)()
		cfg := config.GetConfig()
		buildLogger(cfg.LogLevel, cfg.DevMode)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func bootstrapLogger() *logger.Logger {
	if log == nil {
		buildLogger("info", true)
	}
	return log
}

func buildLogger(level string, devMode bool) {
	logCfg := logger.Config{
		LogLevel:    level,
		DevMode:     devMode,
		ServiceName: "fimtracker",
	}
	l, err := logger.NewLogger(logCfg)
	if err != nil {
		panic(fmt.Errorf("failed to create logger: %v", err))
	}
	log = l
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
