package database

import "sync"

// dispatcher runs listener notification batches one at a time in the order they were
// queued. A batch queued while another is running, for example by a listener that writes
// back through the adapter, runs after it on the goroutine already draining.
type dispatcher struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

// push queues batch and reports whether the caller must drain the queue.
func (d *dispatcher) push(batch func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, batch)
	if d.running {
		return false
	}
	d.running = true
	return true
}

// drain runs queued batches until the queue is empty. Only the caller that push
// elected may call it.
func (d *dispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.running = false
			d.mu.Unlock()
			return
		}
		next := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()
		next()
	}
}
