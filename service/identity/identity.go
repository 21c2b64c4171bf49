package identity

import (
	"context"
	"errors"
	"time"
)

// ErrNoSession is returned by the session store when nobody has signed in on this machine yet.
var ErrNoSession = errors.New("no stored session")

// User is the authenticated identity the database is scoped by.
type User struct {
	UID          string    `json:"uid"`
	IDToken      string    `json:"-"`
	RefreshToken string    `json:"-"`
	Anonymous    bool      `json:"anonymous"`
	SignedInAt   time.Time `json:"signed_in_at"`
}

// Provider is the identity backend the data controller depends on.
type Provider interface {
	// CurrentUser returns the signed in user or nil.
	CurrentUser() *User
	// SignInAnonymously starts an anonymous sign in and returns immediately.
	// done is invoked exactly once, possibly from another goroutine.
	SignInAnonymously(ctx context.Context, done func(*User, error))
}
