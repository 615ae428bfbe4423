package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tejiriaustin/fimtracker/fingerprint"
	"github.com/tejiriaustin/fimtracker/history"
	"github.com/tejiriaustin/fimtracker/identity"
	"github.com/tejiriaustin/fimtracker/models"
)

type observation struct {
	hash     string
	created  time.Time
	modified time.Time
	user     string
	role     models.Role
}

func (w *Watcher) observeFile(path string) (observation, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return observation{}, &fingerprint.AccessError{Path: path, Err: err}
	}
	if !info.Mode().IsRegular() {
		return observation{}, &fingerprint.AccessError{Path: path, Err: fmt.Errorf("not a regular file: %s", info.Mode().Type())}
	}

	hash, err := fingerprint.File(path)
	if err != nil {
		return observation{}, err
	}
	created, modified := identity.Times(path, info)
	user, role := w.observe()
	return observation{hash: hash, created: created, modified: modified, user: user, role: role}, nil
}

func (w *Watcher) handle(ctx context.Context, sig Signal) {
	switch sig.Kind {
	case Created:
		w.onCreated(ctx, sig)
	case Modified:
		w.onModified(ctx, sig)
	case MovedTo:
		w.onMoved(ctx, sig)
	case Deleted:
		w.onDeleted(ctx, sig)
	default:
		w.log.Warnw("dropping unknown signal", "kind", sig.Kind, "path", sig.Path)
	}
}

func (w *Watcher) onCreated(ctx context.Context, sig Signal) {
	if w.guard.Seen(sig.Path) {
		w.log.Debugw("duplicate creation suppressed", "path", sig.Path)
		return
	}
	obs, err := w.observeFile(sig.Path)
	if err != nil {
		w.log.Debugw("skipping created file", "path", sig.Path, "error", err)
		return
	}
	w.recordCreation(ctx, sig.Path, obs)
}

func (w *Watcher) recordCreation(ctx context.Context, path string, obs observation) {
	rec := models.FileRecord{
		Filename:     filepath.Base(path),
		Path:         path,
		CreationTime: obs.created,
		Hash:         obs.hash,
		User:         obs.user,
		Role:         obs.role,
	}
	event := models.Event{Type: models.EventCreation, Time: obs.created}
	if w.write(ctx, rec, event) {
		w.guard.Mark(path)
	}
}

func (w *Watcher) onModified(ctx context.Context, sig Signal) {
	obs, err := w.observeFile(sig.Path)
	if err != nil {
		w.log.Debugw("skipping modified file", "path", sig.Path, "error", err)
		return
	}

	current, ok := w.lookup(ctx, sig.Path, w.history.CurrentByPath, sig.Path)
	if !ok || current.Deleted() {
		w.log.Debugw("modification of untracked file recorded as creation", "path", sig.Path)
		w.recordCreation(ctx, sig.Path, obs)
		return
	}
	if w.suppressUnchanged && current.Hash == obs.hash {
		w.log.Debugw("unchanged modification suppressed", "path", sig.Path, "hash", obs.hash)
		return
	}

	rec := models.FileRecord{
		Filename:         current.Filename,
		Path:             current.Path,
		CreationTime:     current.CreationTime,
		ModificationTime: models.NullTime(obs.modified),
		Hash:             obs.hash,
		User:             obs.user,
		Role:             obs.role,
	}
	w.write(ctx, rec, models.Event{Type: models.EventModified, Time: obs.modified})
}

func (w *Watcher) onMoved(ctx context.Context, sig Signal) {
	w.guard.Forget(sig.From)

	obs, err := w.observeFile(sig.Path)
	if err != nil {
		w.log.Debugw("skipping moved file", "from", sig.From, "to", sig.Path, "error", err)
		return
	}

	oldName := filepath.Base(sig.From)
	current, ok := w.lookup(ctx, oldName, w.history.CurrentByFilename, sig.From)
	if !ok {
		w.log.Debugw("move of untracked file recorded as creation", "from", sig.From, "to", sig.Path)
		w.recordCreation(ctx, sig.Path, obs)
		return
	}

	rec := models.FileRecord{
		Filename:         filepath.Base(sig.Path),
		Path:             sig.Path,
		CreationTime:     current.CreationTime,
		ModificationTime: models.NullTime(obs.modified),
		Hash:             current.Hash,
		User:             current.User,
		Role:             current.Role,
	}
	if w.renamePolicy == RecomputeHash {
		rec.Hash = obs.hash
	}

	event := models.Renamed(latest(sig.At, obs.modified), oldName, rec.Filename)
	if w.write(ctx, rec, event) {
		w.guard.Mark(sig.Path)
	}
}

func (w *Watcher) onDeleted(ctx context.Context, sig Signal) {
	defer w.guard.Forget(sig.Path)

	current, ok := w.lookup(ctx, sig.Path, w.history.CurrentByPath, sig.Path)
	if !ok || current.Deleted() {
		w.log.Debugw("deletion of untracked file ignored", "path", sig.Path)
		return
	}

	at := sig.At.UTC()
	rec := current
	rec.ID = 0
	rec.DeletionTime = models.NullTime(at)
	w.write(ctx, rec, models.Event{Type: models.EventDeletion, Time: at})
}

func (w *Watcher) lookup(
	ctx context.Context,
	key string,
	find func(context.Context, string) (models.FileRecord, error),
	path string,
) (models.FileRecord, bool) {
	rec, err := find(ctx, key)
	if err == nil {
		return rec, true
	}
	if !errors.Is(err, history.ErrLookupMiss) {
		w.log.Errorw("history lookup failed", "path", path, "error", err)
	}
	return models.FileRecord{}, false
}

func (w *Watcher) write(ctx context.Context, rec models.FileRecord, event models.Event) bool {
	if _, err := w.history.Record(ctx, rec, event); err != nil {
		w.log.Errorw("failed to record change", "event", event.Description(), "path", rec.Path, "error", err)
		return false
	}
	w.log.Infow("change recorded", "event", event.Description(), "path", rec.Path, "hash", rec.Hash)
	return true
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b.UTC()
	}
	return a.UTC()
}
