package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"peggymeter/service/model"
)

func newTestMoodAdapter(store *memStore) *MoodAdapter {
	a := newMoodAdapter(store.Ref("users/u1/moods"), -1)
	a.now = func() time.Time { return time.Date(2024, 3, 4, 9, 30, 0, 0, time.FixedZone("x", 3600)) }
	ids := 0
	a.newID = func() string {
		ids++
		return []string{"id-a", "id-b", "id-c", "id-d"}[ids-1]
	}
	return a
}

func TestMoodSaveFillsDefaults(t *testing.T) {
	store := newMemStore()
	a := newTestMoodAdapter(store)

	saved, err := a.Save(context.Background(), model.MoodRecord{Level: model.MoodSad, Comment: "  rough day  "})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ID != "id-a" {
		t.Fatalf("id = %q", saved.ID)
	}
	if saved.Comment != "rough day" {
		t.Fatalf("comment = %q", saved.Comment)
	}
	if saved.Timestamp.Location() != time.UTC || saved.Timestamp.Hour() != 8 {
		t.Fatalf("timestamp = %v, want 08:30 UTC", saved.Timestamp)
	}

	var stored model.MoodRecord
	if err := store.Ref("users/u1/moods/id-a").Get(context.Background(), &stored); err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Level != model.MoodSad || stored.Comment != "rough day" {
		t.Fatalf("stored = %+v", stored)
	}
	if got := a.Records(); len(got) != 1 || got[0].ID != "id-a" {
		t.Fatalf("records after save = %v", got)
	}
}

func TestMoodSaveRejectsInvalidInput(t *testing.T) {
	a := newTestMoodAdapter(newMemStore())
	if _, err := a.Save(context.Background(), model.MoodRecord{Level: 4}); !errors.Is(err, ErrInvalidMood) {
		t.Fatalf("level 4 err = %v", err)
	}
	if _, err := a.Save(context.Background(), model.MoodRecord{Level: 0}); !errors.Is(err, ErrInvalidMood) {
		t.Fatalf("level 0 err = %v", err)
	}
	if _, err := a.Save(context.Background(), model.MoodRecord{ID: "a/b", Level: model.MoodOK}); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("bad key err = %v", err)
	}
	if err := a.Delete(context.Background(), "x.y"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("bad delete key err = %v", err)
	}
}

func TestMoodSaveSurfacesStoreErrors(t *testing.T) {
	store := newMemStore()
	store.setErr = errors.New("permission denied")
	a := newTestMoodAdapter(store)
	if _, err := a.Save(context.Background(), model.MoodRecord{Level: model.MoodOK}); err == nil {
		t.Fatalf("expected save error")
	}
}

func TestMoodRecordsSortedByTimestamp(t *testing.T) {
	store := newMemStore()
	a := newTestMoodAdapter(store)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, level := range []model.MoodLevel{model.MoodHappy, model.MoodSad, model.MoodOK} {
		rec := model.MoodRecord{Level: level, Timestamp: base.Add(time.Duration(3-i) * time.Hour)}
		if _, err := a.Save(ctx, rec); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	got := a.Records()
	if len(got) != 3 {
		t.Fatalf("records = %d, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Fatalf("records not sorted: %v", got)
		}
	}
	if got[0].Level != model.MoodOK || got[2].Level != model.MoodHappy {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestMoodDeleteNotifiesListeners(t *testing.T) {
	store := newMemStore()
	a := newTestMoodAdapter(store)
	ctx := context.Background()
	rec := newMoodRecorder()
	a.AddListener(rec)

	saved, err := a.Save(ctx, model.MoodRecord{Level: model.MoodOK})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := a.Delete(ctx, saved.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rec.callCount() != 2 {
		t.Fatalf("calls = %d, want 2", rec.callCount())
	}
	if len(rec.last()) != 0 {
		t.Fatalf("history after delete = %v", rec.last())
	}
}

func TestMoodSyncDeliversOncePerChange(t *testing.T) {
	store := newMemStore()
	a := newTestMoodAdapter(store)
	ctx := context.Background()

	early := newMoodRecorder()
	a.AddListener(early)
	if err := a.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := a.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if early.callCount() != 1 {
		t.Fatalf("unchanged data should not re-notify, calls = %d", early.callCount())
	}

	late := newMoodRecorder()
	a.AddListener(late)
	if err := a.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if late.callCount() != 1 || early.callCount() != 1 {
		t.Fatalf("late listener should get the snapshot alone: early=%d late=%d", early.callCount(), late.callCount())
	}

	if err := store.Ref("users/u1/moods/remote").Set(ctx, model.MoodRecord{Level: model.MoodHappy, Timestamp: time.Now().UTC()}); err != nil {
		t.Fatalf("remote write: %v", err)
	}
	if err := a.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if early.callCount() != 2 || late.callCount() != 2 {
		t.Fatalf("remote change should reach everyone: early=%d late=%d", early.callCount(), late.callCount())
	}
	if got := late.last(); len(got) != 1 || got[0].ID != "remote" {
		t.Fatalf("record id should default to its key: %v", got)
	}
}

func TestMoodSyncError(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("offline")
	a := newTestMoodAdapter(store)
	if err := a.Sync(context.Background()); err == nil {
		t.Fatalf("expected sync error")
	}
}

func TestSettingsDefaultsAndUpdate(t *testing.T) {
	store := newMemStore()
	a := newSettingAdapter(store.Ref("users/u1/settings"), -1)
	a.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	rec := &settingRecorder{}
	a.AddListener(rec)
	if err := a.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if got := a.Settings(); got != model.DefaultSettings() {
		t.Fatalf("defaults = %+v", got)
	}
	if rec.callCount() != 1 {
		t.Fatalf("listener calls = %d, want 1", rec.callCount())
	}

	updated, err := a.Update(ctx, model.Settings{RemindersEnabled: true, ReminderTime: "7:05", DataCollectionConsent: true})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ReminderTime != "07:05" || updated.UpdatedAt.IsZero() {
		t.Fatalf("updated = %+v", updated)
	}
	if got := a.Settings(); got.ReminderTime != "07:05" || !got.DataCollectionConsent {
		t.Fatalf("synced settings = %+v", got)
	}
	if rec.callCount() != 2 {
		t.Fatalf("listener calls = %d, want 2", rec.callCount())
	}
}

func TestSettingsValidation(t *testing.T) {
	a := newSettingAdapter(newMemStore().Ref("users/u1/settings"), -1)
	if _, err := a.Update(context.Background(), model.Settings{RemindersEnabled: true, ReminderTime: "25:99"}); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("err = %v, want ErrInvalidSettings", err)
	}
	got, err := a.Update(context.Background(), model.Settings{RemindersEnabled: true})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.ReminderTime != model.DefaultSettings().ReminderTime {
		t.Fatalf("reminder time = %q", got.ReminderTime)
	}
}

func TestNilAdaptersAreSafe(t *testing.T) {
	var moods *MoodAdapter
	var settings *SettingAdapter
	moods.AddListener(newMoodRecorder())
	settings.AddListener(&settingRecorder{})
	moods.Close()
	settings.Close()
	if moods.Records() != nil {
		t.Fatalf("nil adapter records should be nil")
	}
	if err := moods.Sync(context.Background()); err == nil {
		t.Fatalf("expected error syncing nil adapter")
	}
}
