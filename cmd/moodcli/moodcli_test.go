package moodcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"peggymeter/service/model"
	"peggymeter/service/storage"
)

type fakeBackend struct {
	records  []model.MoodRecord
	settings model.Settings
	deleted  []string
	reflect  string
}

func (f *fakeBackend) UID(ctx context.Context) (string, error) { return "u1", nil }

func (f *fakeBackend) Moods(ctx context.Context) ([]model.MoodRecord, error) {
	return append([]model.MoodRecord(nil), f.records...), nil
}

func (f *fakeBackend) SaveMood(ctx context.Context, rec model.MoodRecord) (model.MoodRecord, error) {
	if !rec.Level.Valid() {
		return model.MoodRecord{}, errors.New("invalid level")
	}
	rec.ID = fmt.Sprintf("rec-%04d-abcdef", len(f.records)+1)
	rec.Timestamp = time.Date(2024, 1, 1, 8, len(f.records), 0, 0, time.UTC)
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeBackend) DeleteMood(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBackend) Settings(ctx context.Context) (model.Settings, error) { return f.settings, nil }

func (f *fakeBackend) UpdateSettings(ctx context.Context, s model.Settings) (model.Settings, error) {
	f.settings = s
	return s, nil
}

func (f *fakeBackend) Reflect(ctx context.Context) (string, error) {
	if f.reflect == "" {
		return "", errors.New("not configured")
	}
	return f.reflect, nil
}

type fakeExporter struct {
	name string
	data []byte
}

func (e *fakeExporter) ListExports(ctx context.Context, uid string) ([]storage.ExportObject, error) {
	if e.name == "" {
		return nil, nil
	}
	return []storage.ExportObject{{Key: e.name, URL: "s3://bucket/" + e.name, Size: int64(len(e.data))}}, nil
}

func (e *fakeExporter) UploadExport(ctx context.Context, objectName, contentType string, data []byte) (string, error) {
	e.name = objectName
	e.data = data
	return "s3://bucket/" + objectName, nil
}

func runSession(t *testing.T, b backend, exp Exporter, input string) string {
	t.Helper()
	var out bytes.Buffer
	s := &session{
		backend:  b,
		exporter: exp,
		timeout:  time.Second,
		out:      &out,
		now:      func() time.Time { return time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC) },
	}
	if err := s.loop(context.Background(), strings.NewReader(input)); err != nil {
		t.Fatalf("loop: %v", err)
	}
	return out.String()
}

func TestLogListAndChart(t *testing.T) {
	b := &fakeBackend{settings: model.DefaultSettings()}
	out := runSession(t, b, nil, "log happy great day\nlog 1\nlog meh\nlist\nchart\nexit\n")

	if len(b.records) != 2 {
		t.Fatalf("records = %+v", b.records)
	}
	if b.records[0].Comment != "great day" || b.records[1].Level != model.MoodSad {
		t.Fatalf("records = %+v", b.records)
	}
	for _, want := range []string{"Saved", "unknown mood level", "great day", "█▁", "Goodbye!"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDeleteResolvesPrefix(t *testing.T) {
	b := &fakeBackend{records: []model.MoodRecord{
		{ID: "abc123", Level: model.MoodOK},
		{ID: "abd456", Level: model.MoodOK},
	}}
	out := runSession(t, b, nil, "delete ab\ndelete abd\ndelete zz\n")
	if len(b.deleted) != 1 || b.deleted[0] != "abd456" {
		t.Fatalf("deleted = %v", b.deleted)
	}
	if !strings.Contains(out, "ambiguous") || !strings.Contains(out, "no mood record") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestDeletePrefersExactID(t *testing.T) {
	b := &fakeBackend{records: []model.MoodRecord{
		{ID: "abc123", Level: model.MoodOK},
		{ID: "abd456", Level: model.MoodOK},
		{ID: "ab", Level: model.MoodSad},
	}}
	out := runSession(t, b, nil, "delete ab\n")
	if len(b.deleted) != 1 || b.deleted[0] != "ab" {
		t.Fatalf("deleted = %v\n%s", b.deleted, out)
	}
	if strings.Contains(out, "ambiguous") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestRemindAndConsent(t *testing.T) {
	b := &fakeBackend{settings: model.DefaultSettings()}
	out := runSession(t, b, nil, "remind on 07:30\nconsent yes\nsettings\nremind maybe\n")
	if !b.settings.RemindersEnabled || b.settings.ReminderTime != "07:30" || !b.settings.DataCollectionConsent {
		t.Fatalf("settings = %+v", b.settings)
	}
	if !strings.Contains(out, "daily at 07:30") || !strings.Contains(out, "usage: remind") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestReflectAndExport(t *testing.T) {
	b := &fakeBackend{reflect: "a calm week", settings: model.DefaultSettings()}
	b.records = []model.MoodRecord{{ID: "r1", Level: model.MoodHappy, Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}}

	out := runSession(t, b, nil, "reflect\nexport\n")
	if !strings.Contains(out, "a calm week") || !strings.Contains(out, "export is not configured") {
		t.Fatalf("output:\n%s", out)
	}

	exp := &fakeExporter{}
	b.settings.DataCollectionConsent = true
	out = runSession(t, b, exp, "exports\nexport\nexports\n")
	if exp.name != "u1/20240102T000000Z" || !bytes.Contains(exp.data, []byte(`"r1"`)) {
		t.Fatalf("export name = %q data = %s", exp.name, exp.data)
	}
	if !strings.Contains(out, "No exports yet") || !strings.Contains(out, "Exported 1 records") || strings.Count(out, "s3://bucket/u1/20240102T000000Z") != 2 {
		t.Fatalf("output:\n%s", out)
	}
}

func TestExportRefusedWithoutConsent(t *testing.T) {
	b := &fakeBackend{settings: model.DefaultSettings()}
	b.settings.DataCollectionConsent = true
	b.records = []model.MoodRecord{{ID: "r1", Level: model.MoodOK}}

	exp := &fakeExporter{}
	out := runSession(t, b, exp, "consent off\nexport\n")
	if exp.name != "" || exp.data != nil {
		t.Fatalf("uploaded %q without consent", exp.name)
	}
	if !strings.Contains(out, "consent is off") || strings.Contains(out, "Exported") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestUnknownCommand(t *testing.T) {
	out := runSession(t, &fakeBackend{}, nil, "dance\n")
	if !strings.Contains(out, `unknown command "dance"`) {
		t.Fatalf("output:\n%s", out)
	}
}

func TestSparklineKeepsLatest(t *testing.T) {
	var records []model.MoodRecord
	for i := 0; i < 5; i++ {
		records = append(records, model.MoodRecord{Level: model.MoodLevel(i%3 + 1)})
	}
	if got := sparkline(records, 3); got != "█▁▄" {
		t.Fatalf("sparkline = %q", got)
	}
	if got := sparkline(nil, 3); got != "" {
		t.Fatalf("sparkline = %q", got)
	}
}

func TestRunRequiresOneBackend(t *testing.T) {
	if err := Run(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without a backend")
	}
}
