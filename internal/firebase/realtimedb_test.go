package firebase

import (
	"context"
	"testing"

	"google.golang.org/api/option"
)

func TestNewAppRequiresDatabaseURL(t *testing.T) {
	if _, err := NewApp(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty database url")
	}
	if _, err := NewRealtimeDBClient(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty database url")
	}
}

func TestNewRealtimeDBClientWithoutCredentials(t *testing.T) {
	client, err := NewRealtimeDBClient(context.Background(), "https://peggy-test.firebaseio.com",
		option.WithoutAuthentication())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client == nil {
		t.Fatalf("expected client")
	}
	ref := client.NewRef("users").Child("u1")
	if ref.Path != "/users/u1" {
		t.Fatalf("ref path = %q", ref.Path)
	}
}
