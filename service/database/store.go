package database

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/db"
)

// Node is a location in the remote database.
type Node interface {
	Child(path string) Node
	Path() string
	Get(ctx context.Context, v any) error
	// GetIfChanged decodes into v only when the node's ETag differs from etag.
	GetIfChanged(ctx context.Context, etag string, v any) (bool, string, error)
	Set(ctx context.Context, v any) error
	Update(ctx context.Context, v map[string]any) error
	Delete(ctx context.Context) error
}

// Store hands out nodes by absolute path.
type Store interface {
	Ref(path string) Node
}

// NewStore wraps a Firebase Realtime Database client.
func NewStore(client *db.Client) (Store, error) {
	if client == nil {
		return nil, fmt.Errorf("realtime db client is required")
	}
	return &rtdbStore{client: client}, nil
}

type rtdbStore struct {
	client *db.Client
}

func (s *rtdbStore) Ref(path string) Node {
	return &rtdbNode{ref: s.client.NewRef(path)}
}

type rtdbNode struct {
	ref *db.Ref
}

func (n *rtdbNode) Child(path string) Node {
	return &rtdbNode{ref: n.ref.Child(path)}
}

func (n *rtdbNode) Path() string {
	return n.ref.Path
}

func (n *rtdbNode) Get(ctx context.Context, v any) error {
	if err := n.ref.Get(ctx, v); err != nil {
		return fmt.Errorf("get %s: %w", n.ref.Path, err)
	}
	return nil
}

func (n *rtdbNode) GetIfChanged(ctx context.Context, etag string, v any) (bool, string, error) {
	if etag == "" {
		newETag, err := n.ref.GetWithETag(ctx, v)
		if err != nil {
			return false, etag, fmt.Errorf("get %s: %w", n.ref.Path, err)
		}
		return true, newETag, nil
	}
	changed, newETag, err := n.ref.GetIfChanged(ctx, etag, v)
	if err != nil {
		return false, etag, fmt.Errorf("get %s: %w", n.ref.Path, err)
	}
	return changed, newETag, nil
}

func (n *rtdbNode) Set(ctx context.Context, v any) error {
	if err := n.ref.Set(ctx, v); err != nil {
		return fmt.Errorf("set %s: %w", n.ref.Path, err)
	}
	return nil
}

func (n *rtdbNode) Update(ctx context.Context, v map[string]any) error {
	if err := n.ref.Update(ctx, v); err != nil {
		return fmt.Errorf("update %s: %w", n.ref.Path, err)
	}
	return nil
}

func (n *rtdbNode) Delete(ctx context.Context) error {
	if err := n.ref.Delete(ctx); err != nil {
		return fmt.Errorf("delete %s: %w", n.ref.Path, err)
	}
	return nil
}
