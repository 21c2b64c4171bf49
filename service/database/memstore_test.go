package database

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
)

// memStore is an in-memory stand-in for the realtime database used by the tests.
type memStore struct {
	mu     sync.Mutex
	root   map[string]any
	getErr error
	setErr error
}

func newMemStore() *memStore {
	return &memStore{root: map[string]any{}}
}

func (s *memStore) Ref(path string) Node {
	return &memNode{store: s, path: strings.Trim(path, "/")}
}

type memNode struct {
	store *memStore
	path  string
}

func (n *memNode) Child(path string) Node {
	path = strings.Trim(path, "/")
	if n.path == "" {
		return &memNode{store: n.store, path: path}
	}
	return &memNode{store: n.store, path: n.path + "/" + path}
}

func (n *memNode) Path() string { return "/" + n.path }

func (n *memNode) segments() []string {
	if n.path == "" {
		return nil
	}
	return strings.Split(n.path, "/")
}

func (n *memNode) snapshot() ([]byte, error) {
	var cur any = n.store.root
	for _, seg := range n.segments() {
		m, ok := cur.(map[string]any)
		if !ok {
			cur = nil
			break
		}
		cur = m[seg]
	}
	return json.Marshal(cur)
}

func (n *memNode) Get(ctx context.Context, v any) error {
	n.store.mu.Lock()
	if err := n.store.getErr; err != nil {
		n.store.mu.Unlock()
		return err
	}
	data, err := n.snapshot()
	n.store.mu.Unlock()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (n *memNode) GetIfChanged(ctx context.Context, etag string, v any) (bool, string, error) {
	n.store.mu.Lock()
	if err := n.store.getErr; err != nil {
		n.store.mu.Unlock()
		return false, etag, err
	}
	data, err := n.snapshot()
	n.store.mu.Unlock()
	if err != nil {
		return false, etag, err
	}
	sum := sha1.Sum(data)
	tag := hex.EncodeToString(sum[:])
	if tag == etag {
		return false, etag, nil
	}
	return true, tag, json.Unmarshal(data, v)
}

func (n *memNode) Set(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	n.store.mu.Lock()
	defer n.store.mu.Unlock()
	if n.store.setErr != nil {
		return n.store.setErr
	}
	n.setLocked(generic)
	return nil
}

func (n *memNode) Update(ctx context.Context, v map[string]any) error {
	for key, value := range v {
		if err := n.Child(key).Set(ctx, value); err != nil {
			return err
		}
	}
	return nil
}

func (n *memNode) Delete(ctx context.Context) error {
	n.store.mu.Lock()
	defer n.store.mu.Unlock()
	n.setLocked(nil)
	return nil
}

func (n *memNode) setLocked(value any) {
	segs := n.segments()
	if len(segs) == 0 {
		if m, ok := value.(map[string]any); ok {
			n.store.root = m
		} else {
			n.store.root = map[string]any{}
		}
		return
	}
	cur := n.store.root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			if value == nil {
				return
			}
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}
	last := segs[len(segs)-1]
	if value == nil {
		delete(cur, last)
		return
	}
	cur[last] = value
}
