// Package watcher turns filesystem notifications into file history. Raw
// fsnotify events are normalized into Signals, queued, and handled by
// per-path shard workers that append records through the history writer.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/tejiriaustin/fimtracker/filter"
	"github.com/tejiriaustin/fimtracker/identity"
	"github.com/tejiriaustin/fimtracker/logger"
	"github.com/tejiriaustin/fimtracker/models"
)

const (
	DefaultRenameGrace = 250 * time.Millisecond
	DefaultQueueSize   = 4096
	DefaultWorkers     = 4
)

type RenamePolicy string

const (
	// CarryHash keeps the fingerprint of the record being renamed.
	CarryHash RenamePolicy = "carry"
	// RecomputeHash stores the fingerprint read at the new path.
	RecomputeHash RenamePolicy = "recompute"
)

var (
	ErrNotArmed     = errors.New("watcher is not armed")
	ErrAlreadyArmed = errors.New("watcher is already armed")
)

type (
	History interface {
		Record(ctx context.Context, rec models.FileRecord, event models.Event) (models.FileRecord, error)
		CurrentByPath(ctx context.Context, path string) (models.FileRecord, error)
		CurrentByFilename(ctx context.Context, name string) (models.FileRecord, error)
	}

	Watcher struct {
		history History
		guard   *Guard
		log     *logger.Logger
		session string

		excludes          *filter.Excludes
		observe           identity.Observer
		grace             time.Duration
		queueSize         int
		workers           int
		renamePolicy      RenamePolicy
		suppressUnchanged bool

		mu       sync.Mutex
		notifier *fsnotify.Watcher
		norm     *normalizer
		signals  chan Signal
		loopDone chan struct{}
	}

	Option func(*Watcher) error
)

func WithLogger(log *logger.Logger) Option {
	return func(w *Watcher) error {
		w.log = log
		return nil
	}
}

func WithExcludes(excludes *filter.Excludes) Option {
	return func(w *Watcher) error {
		w.excludes = excludes
		return nil
	}
}

func WithObserver(observe identity.Observer) Option {
	return func(w *Watcher) error {
		w.observe = observe
		return nil
	}
}

func WithRenameGrace(grace time.Duration) Option {
	return func(w *Watcher) error {
		if grace < 0 {
			return fmt.Errorf("rename grace must not be negative, got %s", grace)
		}
		w.grace = grace
		return nil
	}
}

func WithQueueSize(size int) Option {
	return func(w *Watcher) error {
		if size <= 0 {
			return fmt.Errorf("queue size must be positive, got %d", size)
		}
		w.queueSize = size
		return nil
	}
}

func WithWorkers(workers int) Option {
	return func(w *Watcher) error {
		if workers <= 0 {
			return fmt.Errorf("workers must be positive, got %d", workers)
		}
		w.workers = workers
		return nil
	}
}

func WithRenamePolicy(policy RenamePolicy) Option {
	return func(w *Watcher) error {
		switch policy {
		case CarryHash, RecomputeHash:
			w.renamePolicy = policy
			return nil
		default:
			return fmt.Errorf("unknown rename hash policy %q", policy)
		}
	}
}

func WithSuppressUnchanged(suppress bool) Option {
	return func(w *Watcher) error {
		w.suppressUnchanged = suppress
		return nil
	}
}

func New(history History, opts ...Option) (*Watcher, error) {
	w := &Watcher{
		history:      history,
		guard:        NewGuard(),
		log:          logger.NewNop(),
		session:      uuid.NewString(),
		observe:      identity.Process,
		grace:        DefaultRenameGrace,
		queueSize:    DefaultQueueSize,
		workers:      DefaultWorkers,
		renamePolicy: CarryHash,
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	w.log = w.log.With("session", w.session)
	return w, nil
}

// Session identifies this watcher instance in logs. The dedup guard lives
// exactly as long as the session.
func (w *Watcher) Session() string {
	return w.session
}

// Arm registers watches on every directory below roots and starts buffering
// signals. Nothing is handled until Run is called. Roots that cannot be
// watched are logged and skipped. Cancelling ctx closes the watches.
func (w *Watcher) Arm(ctx context.Context, roots []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.notifier != nil {
		return ErrAlreadyArmed
	}

	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating watcher: %w", err)
	}

	w.notifier = notifier
	w.norm = newNormalizer(notifier, w.excludes, w.grace, w.log)
	w.signals = make(chan Signal, w.queueSize)
	w.loopDone = make(chan struct{})

	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			w.log.Warnw("skipping root", "root", root, "error", err)
			continue
		}
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			w.log.Warnw("skipping root that is not a directory", "root", abs, "error", err)
			continue
		}
		w.norm.arm(abs)
	}

	w.log.Infow("watcher armed", "roots", roots, "directories", len(w.norm.dirs))
	go w.readLoop(ctx)
	return nil
}

func (w *Watcher) readLoop(ctx context.Context) {
	defer close(w.loopDone)
	defer close(w.signals)
	defer func() {
		if err := w.notifier.Close(); err != nil {
			w.log.Warnw("failed to close watches", "error", err)
		}
	}()

	for {
		var expiry <-chan time.Time
		if deadline, ok := w.norm.nextDeadline(); ok {
			expiry = time.After(time.Until(deadline))
		}

		select {
		case <-ctx.Done():
			w.emit(w.norm.flush())
			return

		case event, ok := <-w.notifier.Events:
			if !ok {
				w.emit(w.norm.flush())
				return
			}
			now := time.Now().UTC()
			w.emit(w.norm.expire(now))
			w.emit(w.norm.handle(event, now))

		case err, ok := <-w.notifier.Errors:
			if !ok {
				w.emit(w.norm.flush())
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.log.Warnw("notification queue overflowed, changes were missed", "error", err)
				continue
			}
			w.log.Errorw("watcher error", "error", err)

		case <-expiry:
			w.emit(w.norm.expire(time.Now().UTC()))
		}
	}
}

// emit blocks while the queue is full. Run always drains the queue.
func (w *Watcher) emit(signals []Signal) {
	for _, sig := range signals {
		w.signals <- sig
	}
}

// Run handles queued signals until the watches close, then drains the queue
// and waits for in-flight handlers. Handlers run detached from ctx
// cancellation so every queued change is finished.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	signals, loopDone := w.signals, w.loopDone
	w.mu.Unlock()
	if signals == nil {
		return ErrNotArmed
	}

	w.log.Infow("watcher dispatch started", "workers", w.workers, "queue_size", w.queueSize)
	d := newDispatcher(w.workers, w.queueSize/w.workers+1, w.handle)
	if err := d.run(context.WithoutCancel(ctx), signals); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	<-loopDone

	w.log.Infow("watcher stopped", "guarded_paths", w.guard.Len())
	return nil
}
