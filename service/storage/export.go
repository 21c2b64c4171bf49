package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"peggymeter/service/model"
)

// MoodExport is the document uploaded by the export command.
type MoodExport struct {
	UID        string             `json:"uid"`
	ExportedAt time.Time          `json:"exported_at"`
	Settings   model.Settings     `json:"settings"`
	Records    []model.MoodRecord `json:"records"`
	Summary    ExportSummary      `json:"summary"`
}

// ExportSummary counts records per mood level.
type ExportSummary struct {
	Total   int     `json:"total"`
	Sad     int     `json:"sad"`
	OK      int     `json:"ok"`
	Happy   int     `json:"happy"`
	Average float64 `json:"average"`
}

// ErrConsentRequired is returned when the user has not agreed to data collection.
var ErrConsentRequired = errors.New("data collection consent is off; run 'consent on' first")

// EncodeExport renders the export document as indented JSON. It refuses to encode
// anything unless settings carry data collection consent.
func EncodeExport(uid string, settings model.Settings, records []model.MoodRecord, now time.Time) ([]byte, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, fmt.Errorf("uid is required")
	}
	if !settings.DataCollectionConsent {
		return nil, ErrConsentRequired
	}
	if records == nil {
		records = []model.MoodRecord{}
	}
	doc := MoodExport{
		UID:        uid,
		ExportedAt: now.UTC(),
		Settings:   settings,
		Records:    records,
		Summary:    summarize(records),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return data, nil
}

// ExportObjectName names an export by user and time so repeated exports never overwrite each other.
func ExportObjectName(uid string, now time.Time) string {
	return fmt.Sprintf("%s/%s", strings.TrimSpace(uid), now.UTC().Format("20060102T150405Z"))
}

func summarize(records []model.MoodRecord) ExportSummary {
	var s ExportSummary
	sum := 0
	for _, rec := range records {
		switch rec.Level {
		case model.MoodSad:
			s.Sad++
		case model.MoodOK:
			s.OK++
		case model.MoodHappy:
			s.Happy++
		default:
			continue
		}
		s.Total++
		sum += int(rec.Level)
	}
	if s.Total > 0 {
		s.Average = float64(sum) / float64(s.Total)
	}
	return s
}
