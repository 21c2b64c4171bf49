// Package database owns the user's session-scoped view of the realtime database:
// the mood and setting adapters and the controller that creates them once a user id exists.
package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"peggymeter/service/identity"
	"peggymeter/service/model"
)

const (
	usersPath    = "users"
	moodsPath    = "moods"
	settingsPath = "settings"
)

// ErrNotReady is returned by operations that need the adapters before sign in has completed.
var ErrNotReady = errors.New("data controller not ready")

// Options configures a Controller.
type Options struct {
	Identity identity.Provider
	Store    Store
	// PollInterval controls how often adapters refresh. Zero means the default, negative disables polling.
	PollInterval time.Duration
	// OnAuthError is called when anonymous sign in fails. Pending listeners stay buffered.
	OnAuthError func(error)
}

// Controller lets callers register mood and setting listeners at any time, before or after
// the user is authenticated. Listeners registered early are buffered and attached, in order,
// when the adapters are built.
type Controller struct {
	identity     identity.Provider
	store        Store
	pollInterval time.Duration
	onAuthError  func(error)

	runCtx    context.Context
	runCancel context.CancelFunc

	mu               sync.Mutex
	uid              string
	root             Node
	moodAdapter      *MoodAdapter
	settingAdapter   *SettingAdapter
	moodListeners    []model.MoodListener
	settingListeners []model.SettingListener
	authErr          error
	closed           bool
	ready            chan struct{}
}

// New creates the controller. If the identity provider already has a user the adapters are
// built before New returns; otherwise an anonymous sign in is started and the adapters are
// built when it completes.
func New(ctx context.Context, opts Options) (*Controller, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Identity == nil {
		return nil, fmt.Errorf("identity provider is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	c := &Controller{
		identity:     opts.Identity,
		store:        opts.Store,
		pollInterval: opts.PollInterval,
		onAuthError:  opts.OnAuthError,
		runCtx:       runCtx,
		runCancel:    runCancel,
		ready:        make(chan struct{}),
	}

	if user := c.identity.CurrentUser(); user != nil {
		c.initDB(user)
		log.Printf("logged in as user %s", user.UID)
		return c, nil
	}

	log.Printf("signing in anonymously")
	c.identity.SignInAnonymously(ctx, func(user *identity.User, err error) {
		if err != nil {
			c.failAuth(err)
			return
		}
		if current := c.identity.CurrentUser(); current != nil {
			user = current
		}
		c.initDB(user)
	})
	return c, nil
}

// initDB builds both adapters for the now known user and replays buffered listeners.
func (c *Controller) initDB(user *identity.User) {
	if user == nil || strings.TrimSpace(user.UID) == "" {
		c.failAuth(fmt.Errorf("sign in completed without a user id"))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.moodAdapter != nil {
		return
	}

	c.uid = user.UID
	c.root = c.store.Ref(usersPath).Child(c.uid)

	c.moodAdapter = newMoodAdapter(c.root.Child(moodsPath), c.pollInterval)
	for _, l := range c.moodListeners {
		c.moodAdapter.AddListener(l)
	}
	c.moodListeners = nil

	c.settingAdapter = newSettingAdapter(c.root.Child(settingsPath), c.pollInterval)
	for _, l := range c.settingListeners {
		c.settingAdapter.AddListener(l)
	}
	c.settingListeners = nil

	c.moodAdapter.start(c.runCtx)
	c.settingAdapter.start(c.runCtx)

	c.authErr = nil
	close(c.ready)
}

func (c *Controller) failAuth(err error) {
	log.Printf("anonymous sign in failed: %v", err)
	c.mu.Lock()
	c.authErr = err
	cb := c.onAuthError
	c.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// AddMoodListener attaches l to the mood adapter, or buffers it until the adapter exists.
func (c *Controller) AddMoodListener(l model.MoodListener) {
	if c == nil || l == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.moodAdapter != nil {
		c.moodAdapter.AddListener(l)
		return
	}
	if c.closed {
		return
	}
	c.moodListeners = append(c.moodListeners, l)
}

// AddSettingListener attaches l to the setting adapter, or buffers it until the adapter exists.
func (c *Controller) AddSettingListener(l model.SettingListener) {
	if c == nil || l == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.settingAdapter != nil {
		c.settingAdapter.AddListener(l)
		return
	}
	if c.closed {
		return
	}
	c.settingListeners = append(c.settingListeners, l)
}

// MoodAdapter returns nil until sign in has completed.
func (c *Controller) MoodAdapter() *MoodAdapter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moodAdapter
}

// SettingAdapter returns nil until sign in has completed.
func (c *Controller) SettingAdapter() *SettingAdapter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settingAdapter
}

// Reference returns the users/<uid> node, or nil before the user id is known.
func (c *Controller) Reference() Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.root
}

// UID returns the session user id, or "" before sign in has completed.
func (c *Controller) UID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uid
}

// Ready is closed once the adapters exist.
func (c *Controller) Ready() <-chan struct{} {
	return c.ready
}

// Err returns the most recent sign in failure, if the controller is not ready.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authErr
}

// Wait blocks until the adapters exist or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for sign in: %w", errors.Join(ctx.Err(), c.Err()))
	}
}

// SaveMood stores a mood record for the session user.
func (c *Controller) SaveMood(ctx context.Context, rec model.MoodRecord) (model.MoodRecord, error) {
	adapter := c.MoodAdapter()
	if adapter == nil {
		return model.MoodRecord{}, ErrNotReady
	}
	return adapter.Save(ctx, rec)
}

// DeleteMood removes a mood record for the session user.
func (c *Controller) DeleteMood(ctx context.Context, id string) error {
	adapter := c.MoodAdapter()
	if adapter == nil {
		return ErrNotReady
	}
	return adapter.Delete(ctx, id)
}

// Moods returns the synced mood history.
func (c *Controller) Moods() ([]model.MoodRecord, error) {
	adapter := c.MoodAdapter()
	if adapter == nil {
		return nil, ErrNotReady
	}
	return adapter.Records(), nil
}

// Settings returns the synced settings.
func (c *Controller) Settings() (model.Settings, error) {
	adapter := c.SettingAdapter()
	if adapter == nil {
		return model.Settings{}, ErrNotReady
	}
	return adapter.Settings(), nil
}

// UpdateSettings stores new settings for the session user.
func (c *Controller) UpdateSettings(ctx context.Context, s model.Settings) (model.Settings, error) {
	adapter := c.SettingAdapter()
	if adapter == nil {
		return model.Settings{}, ErrNotReady
	}
	return adapter.Update(ctx, s)
}

// Close stops the adapters' polling. Listeners registered afterwards are dropped.
func (c *Controller) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	mood, setting := c.moodAdapter, c.settingAdapter
	c.moodListeners = nil
	c.settingListeners = nil
	c.mu.Unlock()

	c.runCancel()
	mood.Close()
	setting.Close()
}
