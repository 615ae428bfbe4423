package watcher

import "sync"

// Guard remembers which paths already produced a creation record in this
// session. Some backends report a creation twice (create, then first write
// surfacing as create); only the first is recorded.
type Guard struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

func NewGuard() *Guard {
	return &Guard{paths: make(map[string]struct{})}
}

func (g *Guard) Seen(path string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.paths[path]
	return ok
}

func (g *Guard) Mark(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paths[path] = struct{}{}
}

// Forget lets a path that left the tree be recorded again when it reappears.
func (g *Guard) Forget(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.paths, path)
}

func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.paths)
}
