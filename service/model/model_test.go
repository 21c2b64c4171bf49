package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseMoodLevel(t *testing.T) {
	cases := map[string]MoodLevel{"1": MoodSad, " OK ": MoodOK, "happy": MoodHappy}
	for in, want := range cases {
		got, err := ParseMoodLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseMoodLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseMoodLevel("4"); err == nil {
		t.Fatalf("expected error for level 4")
	}
}

func TestSettingsAlwaysCarryUpdatedAt(t *testing.T) {
	data, err := json.Marshal(DefaultSettings())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"updated_at":"0001-01-01T00:00:00Z"`) {
		t.Fatalf("settings json = %s", data)
	}

	var s Settings
	stamp := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	if err := json.Unmarshal([]byte(`{"reminder_time":"07:00","updated_at":"2024-05-01T09:30:00Z"}`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !s.UpdatedAt.Equal(stamp) || s.ReminderTime != "07:00" {
		t.Fatalf("settings = %+v", s)
	}
}
