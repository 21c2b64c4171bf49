package database

import (
	"context"
	"log"
	"sync"
	"time"
)

const defaultPollInterval = 5 * time.Second

// watcher drives an adapter's sync function from a ticker and from explicit wake ups.
// A negative interval disables the background loop; callers then sync by hand.
type watcher struct {
	name     string
	interval time.Duration
	wake     chan struct{}

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func newWatcher(name string, interval time.Duration) *watcher {
	if interval == 0 {
		interval = defaultPollInterval
	}
	return &watcher{name: name, interval: interval, wake: make(chan struct{}, 1)}
}

func (w *watcher) start(parent context.Context, sync func(context.Context) error) {
	if w.interval < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	w.cancel = cancel
	w.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			if err := sync(ctx); err != nil && ctx.Err() == nil {
				log.Printf("%s sync failed: %v", w.name, err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-w.wake:
			}
		}
	}(w.done)
}

// poke asks the loop for an early sync without blocking.
func (w *watcher) poke() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// close stops the loop and waits for it. It must not be called from a listener callback.
func (w *watcher) close() {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		cancel, done := w.cancel, w.done
		w.mu.Unlock()
		if cancel == nil {
			return
		}
		cancel()
		<-done
	})
}
