package watcher

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuard(t *testing.T) {
	g := NewGuard()
	assert.False(t, g.Seen("/data/x.txt"))

	g.Mark("/data/x.txt")
	assert.True(t, g.Seen("/data/x.txt"))
	assert.False(t, g.Seen("/data/y.txt"))
	assert.Equal(t, 1, g.Len())

	g.Forget("/data/x.txt")
	assert.False(t, g.Seen("/data/x.txt"))
	assert.Zero(t, g.Len())

	g.Forget("/never/marked")
}

func TestGuard_Concurrent(t *testing.T) {
	g := NewGuard()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			path := fmt.Sprintf("/data/%d", i%8)
			g.Mark(path)
			_ = g.Seen(path)
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, g.Len())
}
