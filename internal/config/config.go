// Package config loads peggymeter settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything main needs to wire the services together.
type Config struct {
	// FirebaseAPIKey is the web API key used for anonymous sign in.
	FirebaseAPIKey string `env:"FIREBASE_API_KEY"`
	// FirebaseDatabaseURL is the realtime database root, e.g. https://<project>.firebaseio.com.
	FirebaseDatabaseURL string `env:"FIREBASE_DATABASE_URL"`

	// SessionPath is the SQLite file holding the signed in user. Defaults to ~/.peggymeter/session.db.
	SessionPath  string        `env:"PEGGY_SESSION_DB"`
	PollInterval time.Duration `env:"PEGGY_POLL_INTERVAL" envDefault:"5s"`

	HTTPAddr       string        `env:"PEGGY_HTTP_ADDR" envDefault:":8080"`
	ServerURL      string        `env:"PEGGY_SERVER_URL"`
	RequestTimeout time.Duration `env:"PEGGY_REQUEST_TIMEOUT" envDefault:"30s"`

	Mongo  MongoConfig
	Export ExportConfig

	GoogleAPIKey    string `env:"GOOGLE_API_KEY"`
	GoogleChatModel string `env:"GOOGLE_CHAT_MODEL"`
}

// MongoConfig enables mirroring mood records into MongoDB. Either URI or Host with
// credentials must be set.
type MongoConfig struct {
	URI      string `env:"MONGO_DB_URI"`
	Host     string `env:"MONGO_DB_HOST"`
	Username string `env:"MONGO_DB_USERNAME"`
	Password string `env:"MONGO_DB_PASSWORD"`
	Database string `env:"MONGO_DB_NAME" envDefault:"peggymeter"`
}

// Enabled reports whether enough is configured to connect.
func (m MongoConfig) Enabled() bool {
	if strings.TrimSpace(m.URI) != "" {
		return true
	}
	return strings.TrimSpace(m.Host) != "" && strings.TrimSpace(m.Username) != "" && strings.TrimSpace(m.Password) != ""
}

// ExportConfig points mood history exports at an S3 bucket.
type ExportConfig struct {
	Bucket string `env:"EXPORT_BUCKET" envDefault:"peggymeter-exports"`
	Prefix string `env:"EXPORT_PREFIX" envDefault:"mood-history/"`
	Region string `env:"AWS_REGION"`
}

// Load parses the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if strings.TrimSpace(cfg.SessionPath) == "" {
		cfg.SessionPath = defaultSessionPath()
	}
	return &cfg, nil
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".peggymeter", "session.db")
	}
	return filepath.Join(home, ".peggymeter", "session.db")
}
