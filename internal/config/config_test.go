package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"FIREBASE_API_KEY", "FIREBASE_DATABASE_URL", "PEGGY_SESSION_DB", "PEGGY_POLL_INTERVAL",
		"PEGGY_HTTP_ADDR", "MONGO_DB_USERNAME", "MONGO_DB_PASSWORD", "MONGO_DB_URI", "MONGO_DB_HOST", "MONGO_DB_NAME",
		"EXPORT_BUCKET", "EXPORT_PREFIX",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Fatalf("poll interval = %v", cfg.PollInterval)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("http addr = %q", cfg.HTTPAddr)
	}
	if !strings.HasSuffix(cfg.SessionPath, "session.db") {
		t.Fatalf("session path = %q", cfg.SessionPath)
	}
	if cfg.Mongo.Enabled() {
		t.Fatalf("mongo should be disabled without credentials")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FIREBASE_API_KEY", "key-123")
	t.Setenv("FIREBASE_DATABASE_URL", "https://peggy.firebaseio.com")
	t.Setenv("PEGGY_SESSION_DB", "/tmp/peggy.db")
	t.Setenv("PEGGY_POLL_INTERVAL", "250ms")
	t.Setenv("MONGO_DB_URI", "mongodb://localhost:27017")
	t.Setenv("EXPORT_BUCKET", "my-bucket")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FirebaseAPIKey != "key-123" || cfg.FirebaseDatabaseURL != "https://peggy.firebaseio.com" {
		t.Fatalf("firebase config = %+v", cfg)
	}
	if cfg.SessionPath != "/tmp/peggy.db" || cfg.PollInterval != 250*time.Millisecond {
		t.Fatalf("session config = %q %v", cfg.SessionPath, cfg.PollInterval)
	}
	if !cfg.Mongo.Enabled() || cfg.Export.Bucket != "my-bucket" {
		t.Fatalf("mongo/export config = %+v %+v", cfg.Mongo, cfg.Export)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("PEGGY_POLL_INTERVAL", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestMongoEnabledNeedsHostWithCredentials(t *testing.T) {
	cases := []struct {
		cfg  MongoConfig
		want bool
	}{
		{MongoConfig{URI: "mongodb://localhost:27017"}, true},
		{MongoConfig{Username: "peggy", Password: "secret"}, false},
		{MongoConfig{Host: "cluster.example.net", Username: "peggy"}, false},
		{MongoConfig{Host: "cluster.example.net", Username: "peggy", Password: "secret"}, true},
	}
	for _, tc := range cases {
		if got := tc.cfg.Enabled(); got != tc.want {
			t.Fatalf("Enabled(%+v) = %v, want %v", tc.cfg, got, tc.want)
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\n\nexport PEGGY_DOTENV_A=\"quoted # kept\"\nPEGGY_DOTENV_B=plain # trailing\nPEGGY_DOTENV_C=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("PEGGY_DOTENV_A", "")
	os.Unsetenv("PEGGY_DOTENV_A")
	t.Setenv("PEGGY_DOTENV_B", "")
	os.Unsetenv("PEGGY_DOTENV_B")
	t.Setenv("PEGGY_DOTENV_C", "from-env")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("PEGGY_DOTENV_A"); got != "quoted # kept" {
		t.Fatalf("A = %q", got)
	}
	if got := os.Getenv("PEGGY_DOTENV_B"); got != "plain" {
		t.Fatalf("B = %q", got)
	}
	if got := os.Getenv("PEGGY_DOTENV_C"); got != "from-env" {
		t.Fatalf("C = %q, environment should win", got)
	}
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing")); err != nil {
		t.Fatalf("missing file: %v", err)
	}
}

func TestLoadDotEnvRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("NOT A PAIR\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := LoadDotEnv(path)
	if err == nil || !strings.Contains(err.Error(), ":1:") {
		t.Fatalf("err = %v", err)
	}
}

func TestUseCredentialsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "google-services.json")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv(credentialsEnv, "")
	if UseCredentialsFile(dir) {
		t.Fatalf("a directory should not be used as credentials")
	}
	if !UseCredentialsFile(path) || os.Getenv(credentialsEnv) != path {
		t.Fatalf("credentials = %q", os.Getenv(credentialsEnv))
	}
	if UseCredentialsFile(filepath.Join(dir, "other.json")) {
		t.Fatalf("an existing setting should be kept")
	}
}
