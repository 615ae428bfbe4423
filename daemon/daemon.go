// Package daemon owns the monitoring lifecycle: the history index is warmed,
// the watcher is armed, the baseline is recorded, and changes are handled
// until shutdown, with the query API served alongside.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/tejiriaustin/fimtracker/config"
	"github.com/tejiriaustin/fimtracker/db"
	"github.com/tejiriaustin/fimtracker/filter"
	"github.com/tejiriaustin/fimtracker/history"
	"github.com/tejiriaustin/fimtracker/logger"
	"github.com/tejiriaustin/fimtracker/scanner"
	"github.com/tejiriaustin/fimtracker/server"
	"github.com/tejiriaustin/fimtracker/watcher"
)

type Daemon struct {
	cfg     *config.Config
	log     *logger.Logger
	store   db.Repository
	history *history.Writer
	scanner *scanner.Scanner
	watcher *watcher.Watcher
}

func New(cfg *config.Config, log *logger.Logger, store db.Repository) (*Daemon, error) {
	excludes, err := filter.Compile(cfg.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("compile exclude patterns: %w", err)
	}

	hist, err := history.New(store,
		history.WithLogger(log.Named("history")),
		history.WithCacheSize(cfg.IndexCacheSize),
	)
	if err != nil {
		return nil, fmt.Errorf("create history writer: %w", err)
	}

	scan, err := scanner.New(hist,
		scanner.WithLogger(log.Named("scanner")),
		scanner.WithExcludes(excludes),
	)
	if err != nil {
		return nil, fmt.Errorf("create scanner: %w", err)
	}

	watch, err := watcher.New(hist,
		watcher.WithLogger(log.Named("watcher")),
		watcher.WithExcludes(excludes),
		watcher.WithRenameGrace(cfg.RenameGrace),
		watcher.WithQueueSize(cfg.QueueSize),
		watcher.WithWorkers(cfg.Workers),
		watcher.WithRenamePolicy(watcher.RenamePolicy(cfg.RenameHashPolicy)),
		watcher.WithSuppressUnchanged(cfg.SuppressUnchangedModify),
	)
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	return &Daemon{
		cfg:     cfg,
		log:     log,
		store:   store,
		history: hist,
		scanner: scan,
		watcher: watch,
	}, nil
}

// Scan records a one-off baseline of the configured roots.
func (d *Daemon) Scan(ctx context.Context) (int, error) {
	if _, err := d.history.Warm(ctx); err != nil {
		return 0, err
	}
	return d.scanner.Scan(ctx, d.cfg.Roots)
}

// Run monitors the configured roots until ctx is cancelled or the query API
// fails. Changes already queued when it stops are still recorded.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.cfg.WritePidFile(os.Getpid()); err != nil {
		return err
	}
	defer func() {
		if err := d.cfg.RemovePidFile(); err != nil {
			d.log.Warnw("Failed to remove PID file", "error", err)
		}
	}()

	warmed, err := d.history.Warm(ctx)
	if err != nil {
		return fmt.Errorf("warm history index: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if err := d.watcher.Arm(gctx, d.cfg.Roots); err != nil {
		return fmt.Errorf("arm watcher: %w", err)
	}

	d.log.Infow("Starting baseline scan", "roots", d.cfg.Roots, "indexed", warmed)
	scanned, err := d.scanner.Scan(gctx, d.cfg.Roots)
	switch {
	case errors.Is(err, context.Canceled):
		d.log.Infow("Baseline scan interrupted", "recorded", scanned)
	case err != nil:
		d.log.Errorw("Baseline scan failed", "recorded", scanned, "error", err)
	default:
		d.log.Infow("Baseline scan complete", "recorded", scanned)
	}

	g.Go(func() error {
		return d.watcher.Run(gctx)
	})

	if d.cfg.Port != "" {
		gin.SetMode(gin.ReleaseMode)
		handler := server.NewHandler(d.log.Named("server")).SetupHandler(d.store)
		srv := server.New(d.cfg.Port, handler, d.log.Named("server"))
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	d.log.Info("Daemon stopped")
	return nil
}
