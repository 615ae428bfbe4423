// Package scanner records the baseline: one Scanned record for every regular
// file found under the monitored roots.
package scanner

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tejiriaustin/fimtracker/filter"
	"github.com/tejiriaustin/fimtracker/fingerprint"
	"github.com/tejiriaustin/fimtracker/identity"
	"github.com/tejiriaustin/fimtracker/logger"
	"github.com/tejiriaustin/fimtracker/models"
)

type (
	Recorder interface {
		Record(ctx context.Context, rec models.FileRecord, event models.Event) (models.FileRecord, error)
	}

	Scanner struct {
		recorder Recorder
		log      *logger.Logger
		excludes *filter.Excludes
		observe  identity.Observer
	}

	Option func(*Scanner) error
)

func WithLogger(log *logger.Logger) Option {
	return func(s *Scanner) error {
		s.log = log
		return nil
	}
}

func WithExcludes(excludes *filter.Excludes) Option {
	return func(s *Scanner) error {
		s.excludes = excludes
		return nil
	}
}

func WithObserver(observe identity.Observer) Option {
	return func(s *Scanner) error {
		s.observe = observe
		return nil
	}
}

func New(recorder Recorder, opts ...Option) (*Scanner, error) {
	s := &Scanner{
		recorder: recorder,
		log:      logger.NewNop(),
		observe:  identity.Process,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Scan walks roots in order and returns how many files were recorded. Files
// that cannot be fingerprinted or stored are skipped. Only cancellation of
// ctx stops the scan early.
func (s *Scanner) Scan(ctx context.Context, roots []string) (int, error) {
	recorded := 0
	for _, root := range roots {
		n, err := s.scanRoot(ctx, root)
		recorded += n
		if err != nil {
			return recorded, err
		}
	}
	return recorded, nil
}

func (s *Scanner) scanRoot(ctx context.Context, root string) (int, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		s.log.Warnw("skipping root", "root", root, "error", err)
		return 0, nil
	}

	recorded := 0
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			s.log.Warnw("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() && path != abs {
				return filepath.SkipDir
			}
			return nil
		}
		if s.excludes.Match(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		// WalkDir reports symlinks without following them; only regular
		// files are recorded.
		if !d.Type().IsRegular() {
			return nil
		}

		if s.scanFile(ctx, path) {
			recorded++
		}
		return nil
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return recorded, err
	}
	if err != nil {
		s.log.Warnw("root scan ended early", "root", abs, "error", err)
	}
	return recorded, nil
}

func (s *Scanner) scanFile(ctx context.Context, path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		s.log.Debugw("file vanished before scan", "path", path, "error", err)
		return false
	}

	hash, err := fingerprint.File(path)
	if err != nil {
		s.log.Debugw("skipping file", "path", path, "error", err)
		return false
	}

	created, modified := identity.Times(path, info)
	user, role := s.observe()

	rec := models.FileRecord{
		Filename:         filepath.Base(path),
		Path:             path,
		CreationTime:     created,
		ModificationTime: models.NullTime(modified),
		Hash:             hash,
		User:             user,
		Role:             role,
	}
	// Seeded at the file's creation moment, not at discovery.
	event := models.Event{Type: models.EventScanned, Time: created}

	if _, err := s.recorder.Record(ctx, rec, event); err != nil {
		s.log.Errorw("failed to record scanned file", "path", path, "error", err)
		return false
	}
	return true
}
