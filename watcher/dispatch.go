package watcher

import (
	"context"
	"hash/fnv"

	"golang.org/x/sync/errgroup"
)

type (
	handlerFunc func(ctx context.Context, sig Signal)

	// meeting pairs two shards for a single move. The source shard parks
	// on it until the destination shard has handled the move.
	meeting struct {
		arrived chan struct{}
		done    chan struct{}
	}

	task struct {
		sig  Signal
		meet *meeting
		hold bool
	}

	// dispatcher fans signals out to a fixed set of shard workers. Every
	// signal for a given path lands on the same shard, so one path is never
	// handled by two workers at once while different paths proceed in
	// parallel. A move touches two paths and holds both of their shards.
	dispatcher struct {
		shards []chan task
		handle handlerFunc
	}
)

func newDispatcher(workers, depth int, handle handlerFunc) *dispatcher {
	if workers < 1 {
		workers = 1
	}
	d := &dispatcher{
		shards: make([]chan task, workers),
		handle: handle,
	}
	for i := range d.shards {
		d.shards[i] = make(chan task, depth)
	}
	return d
}

func (d *dispatcher) shardFor(path string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(path))
	return int(h.Sum32() % uint32(len(d.shards)))
}

// route enqueues sig. For a move across shards the source shard is always
// enqueued before the destination, and only one goroutine enqueues, so two
// workers can never wait on each other in a cycle.
func (d *dispatcher) route(sig Signal) {
	dst := d.shardFor(sig.Path)
	if sig.Kind != MovedTo || sig.From == "" {
		d.shards[dst] <- task{sig: sig}
		return
	}
	src := d.shardFor(sig.From)
	if src == dst {
		d.shards[dst] <- task{sig: sig}
		return
	}

	meet := &meeting{arrived: make(chan struct{}), done: make(chan struct{})}
	d.shards[src] <- task{meet: meet, hold: true}
	d.shards[dst] <- task{sig: sig, meet: meet}
}

func (d *dispatcher) work(ctx context.Context, shard <-chan task) {
	for t := range shard {
		switch {
		case t.hold:
			close(t.meet.arrived)
			<-t.meet.done
		case t.meet != nil:
			<-t.meet.arrived
			d.handle(ctx, t.sig)
			close(t.meet.done)
		default:
			d.handle(ctx, t.sig)
		}
	}
}

// run consumes in until it is closed, then waits for every shard to finish
// what it was given. The handler context is never cancelled by run.
func (d *dispatcher) run(ctx context.Context, in <-chan Signal) error {
	var g errgroup.Group
	for _, shard := range d.shards {
		g.Go(func() error {
			d.work(ctx, shard)
			return nil
		})
	}

	for sig := range in {
		d.route(sig)
	}
	for _, shard := range d.shards {
		close(shard)
	}
	return g.Wait()
}
