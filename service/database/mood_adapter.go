package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"peggymeter/service/model"
)

var (
	// ErrInvalidMood is returned when a record's level is off the scale.
	ErrInvalidMood = errors.New("invalid mood record")
	// ErrInvalidKey is returned for ids the realtime database cannot store as keys.
	ErrInvalidKey = errors.New("invalid record id")
)

const maxCommentLength = 500

// MoodAdapter keeps the user's mood history in sync with users/<uid>/moods and fans it out to listeners.
type MoodAdapter struct {
	node  Node
	watch *watcher
	now   func() time.Time
	newID func() string

	syncMu  sync.Mutex
	deliver dispatcher

	mu        sync.Mutex
	listeners []model.MoodListener
	delivered int
	records   []model.MoodRecord
	etag      string
	loaded    bool
}

func newMoodAdapter(node Node, pollInterval time.Duration) *MoodAdapter {
	return &MoodAdapter{
		node:  node,
		watch: newWatcher("mood adapter", pollInterval),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func (a *MoodAdapter) start(ctx context.Context) {
	a.watch.start(ctx, a.Sync)
}

// AddListener attaches l. It receives the current history once loaded and every change after that.
func (a *MoodAdapter) AddListener(l model.MoodListener) {
	if a == nil || l == nil {
		return
	}
	a.mu.Lock()
	a.listeners = append(a.listeners, l)
	a.mu.Unlock()
	a.watch.poke()
}

// Listeners returns the attached listeners in registration order.
func (a *MoodAdapter) Listeners() []model.MoodListener {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.MoodListener, len(a.listeners))
	copy(out, a.listeners)
	return out
}

// Records returns the last synced history ordered by timestamp.
func (a *MoodAdapter) Records() []model.MoodRecord {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneRecords(a.records)
}

// Save validates and writes rec, filling in the id and timestamp when missing.
func (a *MoodAdapter) Save(ctx context.Context, rec model.MoodRecord) (model.MoodRecord, error) {
	if a == nil || a.node == nil {
		return model.MoodRecord{}, fmt.Errorf("mood adapter not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !rec.Level.Valid() {
		return model.MoodRecord{}, fmt.Errorf("%w: level %d is outside 1-3", ErrInvalidMood, int(rec.Level))
	}
	rec.ID = strings.TrimSpace(rec.ID)
	if rec.ID == "" {
		rec.ID = a.newID()
	}
	if !validKey(rec.ID) {
		return model.MoodRecord{}, fmt.Errorf("%w: %q", ErrInvalidKey, rec.ID)
	}
	rec.Comment = strings.TrimSpace(rec.Comment)
	if runes := []rune(rec.Comment); len(runes) > maxCommentLength {
		rec.Comment = string(runes[:maxCommentLength])
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = a.now()
	}
	rec.Timestamp = rec.Timestamp.UTC()

	if err := a.node.Child(rec.ID).Set(ctx, rec); err != nil {
		return model.MoodRecord{}, fmt.Errorf("save mood record: %w", err)
	}
	if err := a.Sync(ctx); err != nil {
		log.Printf("refresh moods after save failed: %v", err)
	}
	return rec, nil
}

// Delete removes the record with the given id.
func (a *MoodAdapter) Delete(ctx context.Context, id string) error {
	if a == nil || a.node == nil {
		return fmt.Errorf("mood adapter not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" || !validKey(id) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, id)
	}
	if err := a.node.Child(id).Delete(ctx); err != nil {
		return fmt.Errorf("delete mood record: %w", err)
	}
	if err := a.Sync(ctx); err != nil {
		log.Printf("refresh moods after delete failed: %v", err)
	}
	return nil
}

// Sync fetches the history if it changed and notifies listeners. Listeners that joined
// since the last change get the current snapshot even when nothing changed remotely.
func (a *MoodAdapter) Sync(ctx context.Context) error {
	if a == nil || a.node == nil {
		return fmt.Errorf("mood adapter not initialized")
	}
	a.syncMu.Lock()

	a.mu.Lock()
	etag := a.etag
	a.mu.Unlock()

	var raw map[string]model.MoodRecord
	changed, newETag, err := a.node.GetIfChanged(ctx, etag, &raw)
	if err != nil {
		a.syncMu.Unlock()
		return fmt.Errorf("fetch moods: %w", err)
	}

	a.mu.Lock()
	if changed || !a.loaded {
		a.records = sortRecords(raw)
		a.etag = newETag
		a.loaded = true
		a.delivered = 0
	}
	targets := make([]model.MoodListener, len(a.listeners)-a.delivered)
	copy(targets, a.listeners[a.delivered:])
	a.delivered = len(a.listeners)
	snapshot := cloneRecords(a.records)
	a.mu.Unlock()

	// Listeners run outside syncMu so they may save or delete through the adapter.
	runner := a.deliver.push(func() {
		for _, l := range targets {
			l.OnMoodsChanged(cloneRecords(snapshot))
		}
	})
	a.syncMu.Unlock()
	if runner {
		a.deliver.drain()
	}
	return nil
}

// Close stops background polling.
func (a *MoodAdapter) Close() {
	if a == nil {
		return
	}
	a.watch.close()
}

func sortRecords(raw map[string]model.MoodRecord) []model.MoodRecord {
	records := make([]model.MoodRecord, 0, len(raw))
	for key, rec := range raw {
		if rec.ID == "" {
			rec.ID = key
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].ID < records[j].ID
		}
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records
}

func cloneRecords(in []model.MoodRecord) []model.MoodRecord {
	if in == nil {
		return nil
	}
	out := make([]model.MoodRecord, len(in))
	copy(out, in)
	return out
}

// validKey rejects characters the realtime database forbids in keys.
func validKey(key string) bool {
	if key == "" {
		return false
	}
	return !strings.ContainsAny(key, ".$#[]/")
}
