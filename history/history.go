// Package history is the single writer of file history. Every state
// transition is appended as a FileRecord and its Event in one transaction,
// and the latest record per path and per filename is indexed in memory so
// transitions can carry unchanged fields forward without scanning the store.
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tejiriaustin/fimtracker/db"
	"github.com/tejiriaustin/fimtracker/logger"
	"github.com/tejiriaustin/fimtracker/models"
)

const DefaultCacheSize = 65536

var ErrLookupMiss = errors.New("no current record")

// StorageError reports a store operation that was abandoned.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

type (
	Store interface {
		db.Writer
		db.Lookup
	}

	Writer struct {
		store     Store
		log       *logger.Logger
		cacheSize int

		mu     sync.Mutex
		byPath *lru.Cache[string, models.FileRecord]
		byName *lru.Cache[string, models.FileRecord]
	}

	Option func(*Writer) error
)

func WithLogger(log *logger.Logger) Option {
	return func(w *Writer) error {
		w.log = log
		return nil
	}
}

func WithCacheSize(size int) Option {
	return func(w *Writer) error {
		if size <= 0 {
			return fmt.Errorf("cache size must be positive, got %d", size)
		}
		w.cacheSize = size
		return nil
	}
}

func New(store Store, opts ...Option) (*Writer, error) {
	w := &Writer{
		store:     store,
		log:       logger.NewNop(),
		cacheSize: DefaultCacheSize,
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}

	var err error
	if w.byPath, err = lru.New[string, models.FileRecord](w.cacheSize); err != nil {
		return nil, fmt.Errorf("create path index: %w", err)
	}
	if w.byName, err = lru.New[string, models.FileRecord](w.cacheSize); err != nil {
		return nil, fmt.Errorf("create filename index: %w", err)
	}
	return w, nil
}

// Warm loads the current record of the most recently touched paths and
// filenames, up to the index capacity.
func (w *Writer) Warm(ctx context.Context) (int, error) {
	paths, err := w.store.LatestPerPath(ctx, w.cacheSize)
	if err != nil {
		return 0, &StorageError{Op: "warm", Path: "*", Err: err}
	}
	names, err := w.store.LatestPerFilename(ctx, w.cacheSize)
	if err != nil {
		return 0, &StorageError{Op: "warm", Path: "*", Err: err}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	// Oldest first so the newest entries end up most recently used.
	for i := len(paths) - 1; i >= 0; i-- {
		w.remember(w.byPath, paths[i].Path, paths[i])
	}
	for i := len(names) - 1; i >= 0; i-- {
		w.remember(w.byName, names[i].Filename, names[i])
	}

	w.log.Debugw("history index warmed", "paths", len(paths), "filenames", len(names))
	return len(paths), nil
}

// Record appends rec and its event. Both rows are committed or neither is.
func (w *Writer) Record(ctx context.Context, rec models.FileRecord, event models.Event) (models.FileRecord, error) {
	fileID, eventID, err := w.store.InsertRecord(ctx, rec, event)
	if err != nil {
		return models.FileRecord{}, &StorageError{Op: "record " + string(event.Type), Path: rec.Path, Err: err}
	}
	rec.ID = fileID

	w.mu.Lock()
	w.remember(w.byPath, rec.Path, rec)
	w.remember(w.byName, rec.Filename, rec)
	w.mu.Unlock()

	w.log.Debugw("history recorded",
		"event", event.Description(), "path", rec.Path, "file_id", fileID, "event_id", eventID, "hash", rec.Hash)
	return rec, nil
}

// CurrentByPath returns the most recently inserted record for path.
func (w *Writer) CurrentByPath(ctx context.Context, path string) (models.FileRecord, error) {
	return w.current(ctx, w.byPath, path, w.store.LatestByPath)
}

// CurrentByFilename returns the most recently inserted record whose
// basename is name, whatever directory it lives in.
func (w *Writer) CurrentByFilename(ctx context.Context, name string) (models.FileRecord, error) {
	return w.current(ctx, w.byName, name, w.store.LatestByFilename)
}

func (w *Writer) current(
	ctx context.Context,
	index *lru.Cache[string, models.FileRecord],
	key string,
	fallback func(context.Context, string) (models.FileRecord, error),
) (models.FileRecord, error) {
	if rec, ok := index.Get(key); ok {
		return rec, nil
	}

	rec, err := fallback(ctx, key)
	if errors.Is(err, db.ErrNotFound) {
		return models.FileRecord{}, ErrLookupMiss
	}
	if err != nil {
		return models.FileRecord{}, &StorageError{Op: "lookup", Path: key, Err: err}
	}

	w.mu.Lock()
	w.remember(index, key, rec)
	w.mu.Unlock()
	return rec, nil
}

// remember keeps the entry with the highest file id. Callers hold mu.
func (w *Writer) remember(index *lru.Cache[string, models.FileRecord], key string, rec models.FileRecord) {
	if existing, ok := index.Peek(key); ok && existing.ID > rec.ID {
		return
	}
	index.Add(key, rec)
}

// IndexLen reports how many paths are currently indexed.
func (w *Writer) IndexLen() int {
	return w.byPath.Len()
}
