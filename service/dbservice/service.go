// Package dbservice owns the MongoDB connection used to mirror mood history.
package dbservice

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	connectTimeout    = 10 * time.Second
	defaultDatabaseID = "peggymeter"
	appName           = "peggymeter"
)

// ErrNoEndpoint is returned when neither a full URI nor a host is configured.
var ErrNoEndpoint = errors.New("MONGO_DB_URI or MONGO_DB_HOST is required")

// Config configures how the MongoDB client is created. URI wins over the
// Host/Username/Password triple when both are set.
type Config struct {
	URI      string
	Host     string
	Username string
	Password string
	Database string
}

// Service provides access to the MongoDB client connection.
type Service struct {
	client   *mongo.Client
	database string
}

// New connects to MongoDB and pings it before returning.
func New(ctx context.Context, cfg Config) (*Service, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	uri, err := connectionURI(cfg)
	if err != nil {
		return nil, err
	}
	database := strings.TrimSpace(cfg.Database)
	if database == "" {
		database = defaultDatabaseID
	}

	clientOpts := options.Client().
		ApplyURI(uri).
		SetAppName(appName).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1))

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Service{client: client, database: database}, nil
}

// connectionURI returns cfg.URI as is, or builds an SRV URI for an Atlas style host.
func connectionURI(cfg Config) (string, error) {
	if uri := strings.TrimSpace(cfg.URI); uri != "" {
		return uri, nil
	}
	host := strings.Trim(strings.TrimSpace(cfg.Host), "/")
	if host == "" {
		return "", ErrNoEndpoint
	}
	username := strings.TrimSpace(cfg.Username)
	password := strings.TrimSpace(cfg.Password)
	if username == "" || password == "" {
		return "", fmt.Errorf("username and password are required for host %s", host)
	}
	u := url.URL{
		Scheme: "mongodb+srv",
		User:   url.UserPassword(username, password),
		Host:   host,
		Path:   "/",
	}
	return u.String(), nil
}

// Client returns the underlying mongo.Client instance.
func (s *Service) Client() *mongo.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// Database returns the configured database handle.
func (s *Service) Database() *mongo.Database {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Database(s.database)
}

// Close closes the MongoDB client connection.
func (s *Service) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return s.client.Disconnect(ctx)
}
