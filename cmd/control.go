// Copyright © 2024 NAME HERE tejiriaustin123@gmail.com

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tejiriaustin/fimtracker/clients"
	"github.com/tejiriaustin/fimtracker/config"
	"github.com/tejiriaustin/fimtracker/models"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the File Integrity Monitor daemon",
	RunE:  stopDaemon,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the status of the File Integrity Monitor daemon",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.GetConfig()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		status := "Running"
		if _, err := clients.NewClient(cfg.Port).Health(ctx); err != nil {
			log.Debugw("Health check failed", "error", err)
			status = "Stopped"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Service Status:  %s\n", status)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [path]",
	Short: "Show the recorded history of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolve path: %w", err)
		}

		trail, err := clients.NewClient(config.GetConfig().Port).FileHistory(cmd.Context(), path)
		if err != nil {
			log.Errorw("Failed to fetch history", "path", path, "error", err)
			return err
		}
		printTrail(cmd, trail)
		return nil
	},
}

func printTrail(cmd *cobra.Command, trail []models.FileView) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEVENT\tTIME\tHASH\tUSER\tROLE")
	for _, v := range trail {
		event := models.Event{Type: v.EventType, RenamedFrom: v.RenamedFrom, RenamedTo: v.RenamedTo}
		at := "-"
		if v.EventTime != nil {
			at = v.EventTime.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", v.FileID, event.Description(), at, v.Hash, v.User, v.Role)
	}
	_ = w.Flush()
}

func stopDaemon(cmd *cobra.Command, args []string) error {
	cfg := config.GetConfig()

	pid, err := cfg.ReadPidFile()
	if errors.Is(err, config.ErrNotRunning) {
		log.Info("Daemon is not running")
		return nil
	}
	if err != nil {
		log.Errorw("Failed to read PID file", "error", err)
		return err
	}

	switch runtime.GOOS {
	case "windows":
		err = stopWindowsDaemon(pid)
	default:
		err = stopUnixDaemon(pid)
	}
	if err != nil {
		return err
	}

	if err := cfg.RemovePidFile(); err != nil {
		log.Warnw("Failed to remove PID file", "error", err)
	}
	return nil
}

func stopUnixDaemon(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		log.Errorw("Failed to find process", "pid", pid, "error", err)
		return err
	}

	// Interrupt first; kill only if signalling fails.
	if err := process.Signal(os.Interrupt); err != nil {
		log.Warnw("Failed to stop daemon using SIGINT", "pid", pid, "error", err)
		if err := process.Kill(); err != nil {
			log.Errorw("Failed to stop daemon using SIGKILL", "pid", pid, "error", err)
			return err
		}
		log.Infow("Daemon stopped using SIGKILL", "pid", pid)
		return nil
	}
	log.Infow("Daemon stopped using SIGINT", "pid", pid)
	return nil
}

func stopWindowsDaemon(pid int) error {
	cmd := exec.Command("taskkill", "/PID", strconv.Itoa(pid))
	output, err := cmd.CombinedOutput()
	if err != nil {
		log.Errorw("Failed to stop daemon", "pid", pid, "error", err, "output", string(output))
		return err
	}
	log.Infow("Daemon stopped successfully", "pid", pid, "output", string(output))
	return nil
}

func init() {
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
}
