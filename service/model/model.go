package model

import (
	"fmt"
	"strings"
	"time"
)

// MoodLevel is the position on the three step smiley scale.
type MoodLevel int

const (
	MoodSad   MoodLevel = 1
	MoodOK    MoodLevel = 2
	MoodHappy MoodLevel = 3
)

var moodEmoji = map[MoodLevel]string{
	MoodSad:   "☹️",
	MoodOK:    "🙂",
	MoodHappy: "😀",
}

var moodNames = map[MoodLevel]string{
	MoodSad:   "sad",
	MoodOK:    "ok",
	MoodHappy: "happy",
}

// Valid reports whether the level is on the scale.
func (l MoodLevel) Valid() bool {
	return l >= MoodSad && l <= MoodHappy
}

// Emoji returns the smiley shown for the level.
func (l MoodLevel) Emoji() string {
	if e, ok := moodEmoji[l]; ok {
		return e
	}
	return "?"
}

func (l MoodLevel) String() string {
	if n, ok := moodNames[l]; ok {
		return n
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseMoodLevel accepts a number (1-3) or a level name.
func ParseMoodLevel(text string) (MoodLevel, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	for level, name := range moodNames {
		if text == name || text == fmt.Sprint(int(level)) {
			return level, nil
		}
	}
	return 0, fmt.Errorf("unknown mood level %q", text)
}

// MoodRecord is a single mood entry stored under users/<uid>/moods/<id>.
type MoodRecord struct {
	ID        string    `json:"id"`
	Level     MoodLevel `json:"level"`
	Comment   string    `json:"comment,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Settings are the per-user preferences stored under users/<uid>/settings.
type Settings struct {
	RemindersEnabled      bool      `json:"reminders_enabled"`
	ReminderTime          string    `json:"reminder_time,omitempty"`
	DataCollectionConsent bool      `json:"data_collection_consent"`
	UpdatedAt             time.Time `json:"updated_at"`
}

const defaultReminderTime = "20:00"

// DefaultSettings is what a user sees before saving any preferences.
func DefaultSettings() Settings {
	return Settings{ReminderTime: defaultReminderTime}
}

// MoodListener is notified with the full, timestamp ordered history whenever it changes.
// Implementations must be safe to call from a goroutine other than the one that registered them.
type MoodListener interface {
	OnMoodsChanged(records []MoodRecord)
}

// SettingListener is notified whenever the user's settings change.
type SettingListener interface {
	OnSettingsChanged(settings Settings)
}

// MoodListenerFunc adapts a function to MoodListener.
type MoodListenerFunc func(records []MoodRecord)

func (f MoodListenerFunc) OnMoodsChanged(records []MoodRecord) { f(records) }

// SettingListenerFunc adapts a function to SettingListener.
type SettingListenerFunc func(settings Settings)

func (f SettingListenerFunc) OnSettingsChanged(settings Settings) { f(settings) }
