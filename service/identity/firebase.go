package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"firebase.google.com/go/v4/auth"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

const signUpTimeout = 30 * time.Second

// Config controls how the Firebase identity provider is built.
type Config struct {
	// APIKey is the Firebase web API key used for anonymous sign up.
	APIKey string
	// Sessions persists the signed in user. Optional; without it every run signs up a new user.
	Sessions *SessionStore
	// Auth is an admin auth client used to drop stored sessions whose user was deleted. Optional.
	Auth *auth.Client
	// ClientOptions are passed to the Identity Toolkit client after the API key.
	ClientOptions []option.ClientOption
}

type signUpFunc func(ctx context.Context) (*User, error)

// userExistsFunc reports whether uid still exists in the auth backend.
type userExistsFunc func(ctx context.Context, uid string) (bool, error)

// FirebaseProvider signs users in anonymously against Firebase Authentication.
type FirebaseProvider struct {
	signUp   signUpFunc
	sessions *SessionStore
	now      func() time.Time

	mu      sync.Mutex
	current *User
}

// NewFirebaseProvider builds the provider and restores any stored session.
func NewFirebaseProvider(ctx context.Context, cfg Config) (*FirebaseProvider, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("firebase api key is required")
	}

	opts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, cfg.ClientOptions...)
	svc, err := identitytoolkit.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init identity toolkit: %w", err)
	}

	var exists userExistsFunc
	if cfg.Auth != nil {
		exists = adminUserExists(cfg.Auth)
	}
	p := newProvider(toolkitSignUp(svc), cfg.Sessions)
	if err := p.restore(ctx, exists); err != nil {
		return nil, err
	}
	return p, nil
}

func newProvider(signUp signUpFunc, sessions *SessionStore) *FirebaseProvider {
	return &FirebaseProvider{signUp: signUp, sessions: sessions, now: time.Now}
}

func toolkitSignUp(svc *identitytoolkit.Service) signUpFunc {
	return func(ctx context.Context) (*User, error) {
		req := &identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{}
		resp, err := svc.Relyingparty.SignupNewUser(req).Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(resp.LocalId) == "" {
			return nil, fmt.Errorf("sign up response missing user id")
		}
		return &User{
			UID:          resp.LocalId,
			IDToken:      resp.IdToken,
			RefreshToken: resp.RefreshToken,
			Anonymous:    true,
		}, nil
	}
}

func adminUserExists(client *auth.Client) userExistsFunc {
	return func(ctx context.Context, uid string) (bool, error) {
		if _, err := client.GetUser(ctx, uid); err != nil {
			if auth.IsUserNotFound(err) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	}
}

// restore loads the stored session, discarding it if the user no longer exists.
func (p *FirebaseProvider) restore(ctx context.Context, exists userExistsFunc) error {
	if p.sessions == nil {
		return nil
	}
	user, err := p.sessions.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return nil
		}
		return err
	}
	if exists != nil {
		ok, err := exists(ctx, user.UID)
		switch {
		case err != nil:
			log.Printf("could not verify stored user %s, keeping it: %v", user.UID, err)
		case !ok:
			log.Printf("stored user %s no longer exists, signing in again", user.UID)
			return p.sessions.Clear(ctx)
		}
	}
	p.mu.Lock()
	p.current = user
	p.mu.Unlock()
	return nil
}

// CurrentUser returns the signed in user or nil.
func (p *FirebaseProvider) CurrentUser() *User {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	u := *p.current
	return &u
}

// SignInAnonymously creates a new anonymous user in the background and calls done with it.
func (p *FirebaseProvider) SignInAnonymously(ctx context.Context, done func(*User, error)) {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		user, err := p.signInAnonymously(ctx)
		if done != nil {
			done(user, err)
		}
	}()
}

func (p *FirebaseProvider) signInAnonymously(ctx context.Context) (*User, error) {
	if p == nil || p.signUp == nil {
		return nil, fmt.Errorf("identity provider not initialized")
	}
	signUpCtx, cancel := context.WithTimeout(ctx, signUpTimeout)
	defer cancel()

	user, err := p.signUp(signUpCtx)
	if err != nil {
		return nil, fmt.Errorf("anonymous sign up: %w", err)
	}
	user.SignedInAt = p.now().UTC()
	if p.sessions != nil {
		if err := p.sessions.Save(ctx, user); err != nil {
			log.Printf("persist session for %s failed: %v", user.UID, err)
		}
	}

	p.mu.Lock()
	p.current = user
	p.mu.Unlock()
	log.Printf("signed in anonymously as %s", user.UID)

	u := *user
	return &u, nil
}

// SignOut forgets the current user locally.
func (p *FirebaseProvider) SignOut(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
	if p.sessions == nil {
		return nil
	}
	return p.sessions.Clear(ctx)
}
