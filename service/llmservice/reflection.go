package llmservice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"peggymeter/service/model"
)

const maxReflectionRecords = 30

// Reflect asks the model for a short, kind reflection on the most recent mood records.
func (c *Client) Reflect(ctx context.Context, records []model.MoodRecord, now time.Time) (string, error) {
	if c == nil {
		return "", fmt.Errorf("client is nil")
	}
	if len(records) == 0 {
		return "", fmt.Errorf("no mood records to reflect on")
	}
	if c.generate == nil {
		return "", fmt.Errorf("client is not initialized")
	}
	key := historyKey(records, now)
	if reply, ok := c.cached(key); ok {
		return reply, nil
	}
	reply, err := c.generate(ctx, BuildReflectionPrompt(records, now))
	if err != nil {
		return "", fmt.Errorf("reflection prompt error: %w", err)
	}
	reply = strings.TrimSpace(reply)
	c.remember(key, reply)
	return reply, nil
}

// historyKey identifies the reflected window of records on the UTC day of now. The prompt
// carries record ages, so a reply is only reused within the same day.
func historyKey(records []model.MoodRecord, now time.Time) string {
	if len(records) > maxReflectionRecords {
		records = records[len(records)-maxReflectionRecords:]
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s\n", now.UTC().Format(time.DateOnly))
	for _, rec := range records {
		fmt.Fprintf(h, "%q %d %q %d\n", rec.ID, rec.Level, rec.Comment, rec.Timestamp.UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// BuildReflectionPrompt renders the latest records, oldest first, into the reflection prompt.
func BuildReflectionPrompt(records []model.MoodRecord, now time.Time) string {
	if len(records) > maxReflectionRecords {
		records = records[len(records)-maxReflectionRecords:]
	}
	var b strings.Builder
	for _, rec := range records {
		age := now.Sub(rec.Timestamp).Round(time.Hour)
		fmt.Fprintf(&b, "- %s (%s, %s ago)", rec.Level, rec.Timestamp.UTC().Format(time.RFC3339), age)
		if rec.Comment != "" {
			fmt.Fprintf(&b, ": %q", rec.Comment)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(fmt.Sprintf(
		`
			Moods are recorded on a three step scale: sad, ok, happy.
			Here are the user's most recent entries, oldest first:
%s
			In 2-3 short sentences, reflect on any pattern you notice and offer one gentle, practical suggestion.
			Do not diagnose.
		`,
		b.String(),
	))
}
