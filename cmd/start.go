package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tejiriaustin/fimtracker/config"
	"github.com/tejiriaustin/fimtracker/daemon"
	"github.com/tejiriaustin/fimtracker/db"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the File Integrity Monitor daemon in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()
		log.Infow("Starting File Integrity Monitor daemon", "roots", cfg.Roots, "database", cfg.DatabasePath)

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		d, err := daemon.New(cfg, log, store)
		if err != nil {
			log.Errorw("Failed to create daemon", "error", err)
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := d.Run(ctx); err != nil {
			log.Errorw("Daemon stopped with error", "error", err)
			return err
		}
		log.Info("Daemon service stopped")
		return nil
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Record a one-off baseline of the configured roots",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		d, err := daemon.New(cfg, log, store)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		count, err := d.Scan(ctx)
		fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d files\n", count)
		return err
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(config.GetConfig())
		if err != nil {
			return err
		}
		defer store.Close()

		log.Info("Database is up to date")
		return nil
	},
}

func openStore(cfg *config.Config) (*db.Client, error) {
	store, err := db.NewClient(cfg.DatabasePath, db.WithLogger(log.Named("db")))
	if err != nil {
		log.Errorw("Failed to open database", "path", cfg.DatabasePath, "error", err)
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		log.Errorw("Failed to migrate database", "path", cfg.DatabasePath, "error", err)
		return nil, err
	}
	return store, nil
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(migrateCmd)
}
