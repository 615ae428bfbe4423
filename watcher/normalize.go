package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tejiriaustin/fimtracker/filter"
	"github.com/tejiriaustin/fimtracker/logger"
)

type (
	watchList interface {
		Add(name string) error
		Remove(name string) error
	}

	pendingRename struct {
		path     string
		dir      bool
		at       time.Time
		deadline time.Time
	}

	// normalizer turns raw fsnotify events into Signals. fsnotify reports a
	// move as Rename on the old name immediately followed by Create on the
	// new one. A Rename is held until the next event: a matching Create
	// completes the move, anything else (or the grace period running out)
	// means the path left the tree and is reported deleted. Directory moves
	// are expanded into one signal per file below them.
	//
	// It is driven from a single goroutine and is not safe for concurrent use.
	normalizer struct {
		watches  watchList
		excludes *filter.Excludes
		grace    time.Duration
		log      *logger.Logger

		dirs    map[string]struct{}
		files   map[string]struct{}
		pending *pendingRename
		// echoes holds directories whose own move notification is still
		// expected after the move was already handled.
		echoes map[string]time.Time
	}
)

func newNormalizer(watches watchList, excludes *filter.Excludes, grace time.Duration, log *logger.Logger) *normalizer {
	return &normalizer{
		watches:  watches,
		excludes: excludes,
		grace:    grace,
		log:      log,
		dirs:     make(map[string]struct{}),
		files:    make(map[string]struct{}),
		echoes:   make(map[string]time.Time),
	}
}

// addTree watches root and every directory below it and calls visit for
// each regular file found.
func (n *normalizer) addTree(root string, visit func(path string)) {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			n.log.Debugw("skipping path while adding watches", "path", path, "error", err)
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if n.excludes.Match(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if err := n.watches.Add(path); err != nil {
				n.log.Warnw("failed to watch directory", "path", path, "error", err)
				return filepath.SkipDir
			}
			n.dirs[path] = struct{}{}
			return nil
		}
		if d.Type().IsRegular() {
			n.files[path] = struct{}{}
			if visit != nil {
				visit(path)
			}
		}
		return nil
	})
	if err != nil {
		n.log.Warnw("failed to add watches", "root", root, "error", err)
	}
}

// arm watches an existing root without reporting its files.
func (n *normalizer) arm(root string) {
	n.addTree(root, nil)
}

func (n *normalizer) isDir(path string) bool {
	_, ok := n.dirs[path]
	return ok
}

func under(path, root string) bool {
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

// dropDir forgets root and everything below it, returning the tracked files
// that were inside, sorted.
func (n *normalizer) dropDir(root string, unwatch bool) []string {
	for dir := range n.dirs {
		if under(dir, root) {
			if unwatch {
				_ = n.watches.Remove(dir)
			}
			delete(n.dirs, dir)
		}
	}
	var files []string
	for file := range n.files {
		if under(file, root) {
			files = append(files, file)
			delete(n.files, file)
		}
	}
	sort.Strings(files)
	return files
}

func (n *normalizer) handle(ev fsnotify.Event, now time.Time) []Signal {
	path := filepath.Clean(ev.Name)
	if n.excludes.Match(path) {
		return nil
	}
	if ev.Has(fsnotify.Rename) && n.isEcho(path, now) {
		return nil
	}

	var signals []Signal
	if n.pending != nil {
		if ev.Has(fsnotify.Create) {
			if paired, ok := n.pair(path, now); ok {
				return paired
			}
		}
		signals = n.resolve()
	}
	return append(signals, n.apply(ev, path, now)...)
}

func (n *normalizer) isEcho(path string, now time.Time) bool {
	if n.pending != nil && n.pending.dir && n.pending.path == path {
		return true
	}
	deadline, ok := n.echoes[path]
	if !ok {
		return false
	}
	delete(n.echoes, path)
	return now.Before(deadline)
}

func (n *normalizer) apply(ev fsnotify.Event, path string, now time.Time) []Signal {
	switch {
	case ev.Has(fsnotify.Create):
		return n.created(path, now)

	case ev.Has(fsnotify.Remove):
		if n.isDir(path) {
			n.dropDir(path, false)
			return nil
		}
		delete(n.files, path)
		return []Signal{{Kind: Deleted, Path: path, At: now}}

	case ev.Has(fsnotify.Rename):
		n.pending = &pendingRename{path: path, dir: n.isDir(path), at: now, deadline: now.Add(n.grace)}
		return nil

	case ev.Has(fsnotify.Write):
		if n.isDir(path) {
			return nil
		}
		return []Signal{{Kind: Modified, Path: path, At: now}}
	}

	// Chmod: metadata only, content is unchanged.
	return nil
}

func (n *normalizer) created(path string, now time.Time) []Signal {
	info, err := os.Lstat(path)
	if err != nil {
		n.log.Debugw("created path vanished", "path", path, "error", err)
		return nil
	}
	if info.IsDir() {
		var signals []Signal
		n.addTree(path, func(file string) {
			signals = append(signals, Signal{Kind: Created, Path: file, At: now})
		})
		return signals
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	n.files[path] = struct{}{}
	return []Signal{{Kind: Created, Path: path, At: now}}
}

// pair completes the pending rename with a Create at path. A move keeps
// either its directory or its name; a Create that changes both is an
// unrelated path.
func (n *normalizer) pair(path string, now time.Time) ([]Signal, bool) {
	p := n.pending
	if now.After(p.deadline) {
		return nil, false
	}
	if filepath.Dir(p.path) != filepath.Dir(path) && filepath.Base(p.path) != filepath.Base(path) {
		return nil, false
	}
	info, err := os.Lstat(path)
	if err != nil || info.IsDir() != p.dir || !p.dir && !info.Mode().IsRegular() {
		return nil, false
	}

	n.pending = nil
	if !p.dir {
		delete(n.files, p.path)
		n.files[path] = struct{}{}
		return []Signal{{Kind: MovedTo, Path: path, From: p.path, At: now}}, true
	}
	return n.movedDir(p.path, path, now), true
}

// movedDir rewatches a directory moved from one place in the tree to
// another and reports a move for every file that was known under it.
func (n *normalizer) movedDir(from, to string, now time.Time) []Signal {
	known := make(map[string]struct{})
	for _, file := range n.dropDir(from, true) {
		rel, err := filepath.Rel(from, file)
		if err == nil {
			known[rel] = struct{}{}
		}
	}
	n.echoes[from] = now.Add(n.grace)

	var signals []Signal
	n.addTree(to, func(file string) {
		rel, err := filepath.Rel(to, file)
		if _, ok := known[rel]; ok && err == nil {
			delete(known, rel)
			signals = append(signals, Signal{Kind: MovedTo, Path: file, From: filepath.Join(from, rel), At: now})
			return
		}
		signals = append(signals, Signal{Kind: Created, Path: file, At: now})
	})

	gone := make([]string, 0, len(known))
	for rel := range known {
		gone = append(gone, filepath.Join(from, rel))
	}
	sort.Strings(gone)
	for _, file := range gone {
		signals = append(signals, Signal{Kind: Deleted, Path: file, At: now})
	}
	return signals
}

// resolve reports the pending rename as having left the tree.
func (n *normalizer) resolve() []Signal {
	p := n.pending
	if p == nil {
		return nil
	}
	n.pending = nil

	if !p.dir {
		delete(n.files, p.path)
		return []Signal{{Kind: Deleted, Path: p.path, At: p.at}}
	}

	n.echoes[p.path] = p.deadline
	files := n.dropDir(p.path, true)
	signals := make([]Signal, 0, len(files))
	for _, file := range files {
		signals = append(signals, Signal{Kind: Deleted, Path: file, At: p.at})
	}
	return signals
}

// expire resolves a rename nobody claimed before now.
func (n *normalizer) expire(now time.Time) []Signal {
	for path, deadline := range n.echoes {
		if !deadline.After(now) {
			delete(n.echoes, path)
		}
	}
	if n.pending == nil || n.pending.deadline.After(now) {
		return nil
	}
	return n.resolve()
}

// flush resolves the pending rename on shutdown.
func (n *normalizer) flush() []Signal {
	return n.resolve()
}

func (n *normalizer) nextDeadline() (time.Time, bool) {
	if n.pending == nil {
		return time.Time{}, false
	}
	return n.pending.deadline, true
}
