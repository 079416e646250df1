package store

import (
	"sync"

	"github.com/roach88/bullion/internal/ir"
)

// changeFeed fans out "rows changed" signals to per-scope watchers.
//
// Each watcher owns a channel with a buffer of 1: repeated writes before the
// watcher wakes coalesce into one signal, so a slow reader never blocks a
// writer.
type changeFeed struct {
	mu       sync.Mutex
	nextID   int
	watchers map[int]feedWatcher
}

type feedWatcher struct {
	scope  ir.Scope
	signal chan struct{}
}

func newChangeFeed() *changeFeed {
	return &changeFeed{watchers: make(map[int]feedWatcher)}
}

// Watch returns a channel that receives a signal after every committed write
// in scope, and a function that stops the watch. The stop function is
// idempotent and closes the channel.
func (s *Store) Watch(scope ir.Scope) (<-chan struct{}, func()) {
	f := s.feed
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	w := feedWatcher{scope: scope, signal: make(chan struct{}, 1)}
	f.watchers[id] = w
	f.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.watchers, id)
			f.mu.Unlock()
			close(w.signal)
		})
	}
	return w.signal, stop
}

// notify signals every watcher of scope without blocking.
func (f *changeFeed) notify(scope ir.Scope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.watchers {
		if w.scope != scope {
			continue
		}
		select {
		case w.signal <- struct{}{}:
		default:
		}
	}
}
