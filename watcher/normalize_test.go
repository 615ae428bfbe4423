package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejiriaustin/fimtracker/filter"
	"github.com/tejiriaustin/fimtracker/logger"
)

type fakeWatchList struct {
	added   []string
	removed []string
}

func (f *fakeWatchList) Add(name string) error {
	f.added = append(f.added, name)
	return nil
}

func (f *fakeWatchList) Remove(name string) error {
	f.removed = append(f.removed, name)
	return nil
}

func newTestNormalizer(t *testing.T, patterns ...string) (*normalizer, *fakeWatchList) {
	t.Helper()
	excludes, err := filter.Compile(patterns)
	require.NoError(t, err)
	watches := &fakeWatchList{}
	return newNormalizer(watches, excludes, time.Second, logger.NewNop()), watches
}

func touch(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNormalizer_FileEvents(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "x.txt")
	touch(t, file, "abc")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		event fsnotify.Event
		want  []Signal
	}{
		{
			name:  "create",
			event: fsnotify.Event{Name: file, Op: fsnotify.Create},
			want:  []Signal{{Kind: Created, Path: file, At: now}},
		},
		{
			name:  "write",
			event: fsnotify.Event{Name: file, Op: fsnotify.Write},
			want:  []Signal{{Kind: Modified, Path: file, At: now}},
		},
		{
			name:  "create wins over write",
			event: fsnotify.Event{Name: file, Op: fsnotify.Create | fsnotify.Write},
			want:  []Signal{{Kind: Created, Path: file, At: now}},
		},
		{
			name:  "remove",
			event: fsnotify.Event{Name: file, Op: fsnotify.Remove},
			want:  []Signal{{Kind: Deleted, Path: file, At: now}},
		},
		{
			name:  "chmod",
			event: fsnotify.Event{Name: file, Op: fsnotify.Chmod},
			want:  nil,
		},
		{
			name:  "create of vanished path",
			event: fsnotify.Event{Name: filepath.Join(root, "gone.txt"), Op: fsnotify.Create},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, _ := newTestNormalizer(t)
			assert.Equal(t, tt.want, n.handle(tt.event, now))
		})
	}
}

func TestNormalizer_Excluded(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "notes.swp")
	touch(t, file, "x")

	n, _ := newTestNormalizer(t, "*.swp")
	assert.Nil(t, n.handle(fsnotify.Event{Name: file, Op: fsnotify.Create}, time.Now()))
	assert.Nil(t, n.handle(fsnotify.Event{Name: file, Op: fsnotify.Write}, time.Now()))
}

func TestNormalizer_RenamePairing(t *testing.T) {
	root := t.TempDir()
	oldPath := filepath.Join(root, "x.txt")
	newPath := filepath.Join(root, "y.txt")
	touch(t, newPath, "abc")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	n, _ := newTestNormalizer(t)
	assert.Nil(t, n.handle(fsnotify.Event{Name: oldPath, Op: fsnotify.Rename}, now))

	deadline, ok := n.nextDeadline()
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Second), deadline)

	got := n.handle(fsnotify.Event{Name: newPath, Op: fsnotify.Create}, now.Add(10*time.Millisecond))
	assert.Equal(t, []Signal{{Kind: MovedTo, Path: newPath, From: oldPath, At: now.Add(10 * time.Millisecond)}}, got)

	_, ok = n.nextDeadline()
	assert.False(t, ok)
	assert.Empty(t, n.expire(now.Add(time.Hour)))
}

func TestNormalizer_UnrelatedCreateDoesNotPair(t *testing.T) {
	root := t.TempDir()
	secret := filepath.Join(root, "secret.txt")
	unrelated := filepath.Join(root, "other", "unrelated.log")
	touch(t, secret, "s")
	touch(t, unrelated, "u")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	n, _ := newTestNormalizer(t)
	n.arm(root)
	require.NoError(t, os.Remove(secret))

	assert.Nil(t, n.handle(fsnotify.Event{Name: secret, Op: fsnotify.Rename}, now))
	got := n.handle(fsnotify.Event{Name: unrelated, Op: fsnotify.Create}, now.Add(10*time.Millisecond))
	assert.Equal(t, []Signal{
		{Kind: Deleted, Path: secret, At: now},
		{Kind: Created, Path: unrelated, At: now.Add(10 * time.Millisecond)},
	}, got)
}

func TestNormalizer_InterveningEventResolvesRename(t *testing.T) {
	root := t.TempDir()
	a, b, a2 := filepath.Join(root, "a.txt"), filepath.Join(root, "b.txt"), filepath.Join(root, "a2.txt")
	touch(t, b, "b")
	touch(t, a2, "a")
	now := time.Now().UTC()

	n, _ := newTestNormalizer(t)
	n.handle(fsnotify.Event{Name: a, Op: fsnotify.Rename}, now)

	got := n.handle(fsnotify.Event{Name: b, Op: fsnotify.Write}, now)
	assert.Equal(t, []Signal{
		{Kind: Deleted, Path: a, At: now},
		{Kind: Modified, Path: b, At: now},
	}, got)

	// The rename has already been resolved, so a later create stands alone.
	got = n.handle(fsnotify.Event{Name: a2, Op: fsnotify.Create}, now)
	assert.Equal(t, []Signal{{Kind: Created, Path: a2, At: now}}, got)
}

func TestNormalizer_SecondRenameResolvesFirst(t *testing.T) {
	root := t.TempDir()
	a, b, b2 := filepath.Join(root, "a.txt"), filepath.Join(root, "b.txt"), filepath.Join(root, "b2.txt")
	touch(t, b2, "b")
	now := time.Now().UTC()

	n, _ := newTestNormalizer(t)
	n.handle(fsnotify.Event{Name: a, Op: fsnotify.Rename}, now)

	assert.Equal(t, []Signal{{Kind: Deleted, Path: a, At: now}},
		n.handle(fsnotify.Event{Name: b, Op: fsnotify.Rename}, now))
	assert.Equal(t, []Signal{{Kind: MovedTo, Path: b2, From: b, At: now}},
		n.handle(fsnotify.Event{Name: b2, Op: fsnotify.Create}, now))
}

func TestNormalizer_MoveAcrossDirectoriesKeepsName(t *testing.T) {
	root := t.TempDir()
	oldPath := filepath.Join(root, "a", "x.txt")
	newPath := filepath.Join(root, "b", "x.txt")
	touch(t, newPath, "x")
	now := time.Now().UTC()

	n, _ := newTestNormalizer(t)
	n.handle(fsnotify.Event{Name: oldPath, Op: fsnotify.Rename}, now)
	assert.Equal(t, []Signal{{Kind: MovedTo, Path: newPath, From: oldPath, At: now}},
		n.handle(fsnotify.Event{Name: newPath, Op: fsnotify.Create}, now))
}

func TestNormalizer_UnpairedRenameExpires(t *testing.T) {
	oldPath := filepath.Join(t.TempDir(), "x.txt")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	n, _ := newTestNormalizer(t)
	n.handle(fsnotify.Event{Name: oldPath, Op: fsnotify.Rename}, now)

	assert.Empty(t, n.expire(now.Add(500*time.Millisecond)))
	assert.Equal(t, []Signal{{Kind: Deleted, Path: oldPath, At: now}}, n.expire(now.Add(time.Second)))
	_, ok := n.nextDeadline()
	assert.False(t, ok)
}

func TestNormalizer_FlushReportsPendingAsDeleted(t *testing.T) {
	root := t.TempDir()
	now := time.Now().UTC()

	n, _ := newTestNormalizer(t)
	n.handle(fsnotify.Event{Name: filepath.Join(root, "a"), Op: fsnotify.Rename}, now)

	assert.Equal(t, []Signal{{Kind: Deleted, Path: filepath.Join(root, "a"), At: now}}, n.flush())
	assert.Empty(t, n.flush())
}

func TestNormalizer_NewDirectory(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "new")
	touch(t, filepath.Join(dir, "a.txt"), "a")
	touch(t, filepath.Join(dir, "nested", "b.txt"), "b")
	now := time.Now().UTC()

	n, watches := newTestNormalizer(t)
	got := n.handle(fsnotify.Event{Name: dir, Op: fsnotify.Create}, now)

	assert.Equal(t, []string{dir, filepath.Join(dir, "nested")}, watches.added)
	assert.Equal(t, []Signal{
		{Kind: Created, Path: filepath.Join(dir, "a.txt"), At: now},
		{Kind: Created, Path: filepath.Join(dir, "nested", "b.txt"), At: now},
	}, got)

	// Events on the directory itself never reach the handlers.
	assert.Nil(t, n.handle(fsnotify.Event{Name: dir, Op: fsnotify.Write}, now))
}

func TestNormalizer_DirectoryMovedOutOfTree(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "d")
	touch(t, filepath.Join(dir, "a.txt"), "a")
	touch(t, filepath.Join(dir, "nested", "b.txt"), "b")
	touch(t, filepath.Join(root, "keep.txt"), "k")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		resolve func(n *normalizer) []Signal
	}{
		{name: "expired", resolve: func(n *normalizer) []Signal { return n.expire(now.Add(time.Second)) }},
		{name: "flushed", resolve: func(n *normalizer) []Signal { return n.flush() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, watches := newTestNormalizer(t)
			n.arm(root)

			assert.Nil(t, n.handle(fsnotify.Event{Name: dir, Op: fsnotify.Rename}, now))
			// The directory's own move notification arrives as a second rename.
			assert.Nil(t, n.handle(fsnotify.Event{Name: dir, Op: fsnotify.Rename}, now))

			assert.Equal(t, []Signal{
				{Kind: Deleted, Path: filepath.Join(dir, "a.txt"), At: now},
				{Kind: Deleted, Path: filepath.Join(dir, "nested", "b.txt"), At: now},
			}, tt.resolve(n))
			assert.ElementsMatch(t, []string{dir, filepath.Join(dir, "nested")}, watches.removed)
			assert.False(t, n.isDir(dir))
			assert.True(t, n.isDir(root))

			_, ok := n.files[filepath.Join(root, "keep.txt")]
			assert.True(t, ok)
		})
	}
}

func TestNormalizer_DirectoryMovedWithinTree(t *testing.T) {
	root := t.TempDir()
	oldDir := filepath.Join(root, "d")
	newDir := filepath.Join(root, "e")
	touch(t, filepath.Join(oldDir, "a.txt"), "a")
	touch(t, filepath.Join(oldDir, "nested", "b.txt"), "b")
	now := time.Now().UTC()

	n, watches := newTestNormalizer(t)
	n.arm(root)
	require.NoError(t, os.Rename(oldDir, newDir))
	touch(t, filepath.Join(newDir, "c.txt"), "c")

	assert.Nil(t, n.handle(fsnotify.Event{Name: oldDir, Op: fsnotify.Rename}, now))
	got := n.handle(fsnotify.Event{Name: newDir, Op: fsnotify.Create}, now)
	assert.Equal(t, []Signal{
		{Kind: MovedTo, Path: filepath.Join(newDir, "a.txt"), From: filepath.Join(oldDir, "a.txt"), At: now},
		{Kind: Created, Path: filepath.Join(newDir, "c.txt"), At: now},
		{Kind: MovedTo, Path: filepath.Join(newDir, "nested", "b.txt"), From: filepath.Join(oldDir, "nested", "b.txt"), At: now},
	}, got)

	assert.ElementsMatch(t, []string{oldDir, filepath.Join(oldDir, "nested")}, watches.removed)
	assert.True(t, n.isDir(filepath.Join(newDir, "nested")))
	assert.False(t, n.isDir(oldDir))

	// The old directory's own move notification is swallowed once.
	assert.Nil(t, n.handle(fsnotify.Event{Name: oldDir, Op: fsnotify.Rename}, now))
	_, ok := n.nextDeadline()
	assert.False(t, ok)
}

func TestNormalizer_RemovedDirectory(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "d")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	n, _ := newTestNormalizer(t)
	n.arm(root)
	require.True(t, n.isDir(dir))

	assert.Nil(t, n.handle(fsnotify.Event{Name: dir, Op: fsnotify.Remove}, time.Now()))
	assert.False(t, n.isDir(dir))
	assert.True(t, n.isDir(root))
}
