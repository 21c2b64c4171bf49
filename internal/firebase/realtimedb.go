package firebase

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/db"
	"google.golang.org/api/option"
)

// Clients bundles the Firebase services the mood tracker talks to.
type Clients struct {
	App      *firebase.App
	Database *db.Client
	// Auth is nil when admin credentials are not available.
	Auth *auth.Client
}

// NewApp creates a Firebase app bound to databaseURL. Additional firebase App options can be supplied via opts.
func NewApp(ctx context.Context, databaseURL string, opts ...option.ClientOption) (*firebase.App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return nil, fmt.Errorf("databaseURL is required")
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{DatabaseURL: databaseURL}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	return app, nil
}

// NewRealtimeDBClient creates a Firebase Realtime Database client configured with the
// provided databaseURL.
func NewRealtimeDBClient(ctx context.Context, databaseURL string, opts ...option.ClientOption) (*db.Client, error) {
	app, err := NewApp(ctx, databaseURL, opts...)
	if err != nil {
		return nil, err
	}
	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("init realtime db client: %w", err)
	}
	return client, nil
}

// NewClients creates the database client and, when possible, the admin auth client from one app.
// A failing auth client is not fatal: the database works without it.
func NewClients(ctx context.Context, databaseURL string, opts ...option.ClientOption) (*Clients, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := NewApp(ctx, databaseURL, opts...)
	if err != nil {
		return nil, err
	}
	database, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("init realtime db client: %w", err)
	}
	clients := &Clients{App: app, Database: database}
	if authClient, err := app.Auth(ctx); err == nil {
		clients.Auth = authClient
	}
	return clients, nil
}
