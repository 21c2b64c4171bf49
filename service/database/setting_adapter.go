package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"peggymeter/service/model"
)

// ErrInvalidSettings is returned when settings fail validation.
var ErrInvalidSettings = errors.New("invalid settings")

const reminderTimeLayout = "15:04"

// SettingAdapter keeps users/<uid>/settings in sync and fans changes out to listeners.
type SettingAdapter struct {
	node  Node
	watch *watcher
	now   func() time.Time

	syncMu  sync.Mutex
	deliver dispatcher

	mu        sync.Mutex
	listeners []model.SettingListener
	delivered int
	settings  model.Settings
	etag      string
	loaded    bool
}

func newSettingAdapter(node Node, pollInterval time.Duration) *SettingAdapter {
	return &SettingAdapter{
		node:     node,
		watch:    newWatcher("setting adapter", pollInterval),
		now:      time.Now,
		settings: model.DefaultSettings(),
	}
}

func (a *SettingAdapter) start(ctx context.Context) {
	a.watch.start(ctx, a.Sync)
}

// AddListener attaches l. It receives the current settings once loaded and every change after that.
func (a *SettingAdapter) AddListener(l model.SettingListener) {
	if a == nil || l == nil {
		return
	}
	a.mu.Lock()
	a.listeners = append(a.listeners, l)
	a.mu.Unlock()
	a.watch.poke()
}

// Listeners returns the attached listeners in registration order.
func (a *SettingAdapter) Listeners() []model.SettingListener {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.SettingListener, len(a.listeners))
	copy(out, a.listeners)
	return out
}

// Settings returns the last synced settings, or the defaults before the first sync.
func (a *SettingAdapter) Settings() model.Settings {
	if a == nil {
		return model.DefaultSettings()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// Update validates and stores s.
func (a *SettingAdapter) Update(ctx context.Context, s model.Settings) (model.Settings, error) {
	if a == nil || a.node == nil {
		return model.Settings{}, fmt.Errorf("setting adapter not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := normalizeSettings(s)
	if err != nil {
		return model.Settings{}, err
	}
	s.UpdatedAt = a.now().UTC()
	if err := a.node.Set(ctx, s); err != nil {
		return model.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	if err := a.Sync(ctx); err != nil {
		log.Printf("refresh settings after update failed: %v", err)
	}
	return s, nil
}

// Sync fetches the settings if they changed and notifies listeners.
func (a *SettingAdapter) Sync(ctx context.Context) error {
	if a == nil || a.node == nil {
		return fmt.Errorf("setting adapter not initialized")
	}
	a.syncMu.Lock()

	a.mu.Lock()
	etag := a.etag
	a.mu.Unlock()

	var raw *model.Settings
	changed, newETag, err := a.node.GetIfChanged(ctx, etag, &raw)
	if err != nil {
		a.syncMu.Unlock()
		return fmt.Errorf("fetch settings: %w", err)
	}

	a.mu.Lock()
	if changed || !a.loaded {
		if raw != nil {
			a.settings = *raw
		} else {
			a.settings = model.DefaultSettings()
		}
		a.etag = newETag
		a.loaded = true
		a.delivered = 0
	}
	targets := make([]model.SettingListener, len(a.listeners)-a.delivered)
	copy(targets, a.listeners[a.delivered:])
	a.delivered = len(a.listeners)
	current := a.settings
	a.mu.Unlock()

	runner := a.deliver.push(func() {
		for _, l := range targets {
			l.OnSettingsChanged(current)
		}
	})
	a.syncMu.Unlock()
	if runner {
		a.deliver.drain()
	}
	return nil
}

// Close stops background polling.
func (a *SettingAdapter) Close() {
	if a == nil {
		return
	}
	a.watch.close()
}

func normalizeSettings(s model.Settings) (model.Settings, error) {
	s.ReminderTime = strings.TrimSpace(s.ReminderTime)
	if s.ReminderTime == "" {
		if !s.RemindersEnabled {
			return s, nil
		}
		s.ReminderTime = model.DefaultSettings().ReminderTime
	}
	parsed, err := time.Parse(reminderTimeLayout, s.ReminderTime)
	if err != nil {
		return model.Settings{}, fmt.Errorf("%w: reminder time %q must be HH:MM", ErrInvalidSettings, s.ReminderTime)
	}
	s.ReminderTime = parsed.Format(reminderTimeLayout)
	return s, nil
}
