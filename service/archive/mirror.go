// Package archive mirrors a user's mood history into MongoDB for reporting.
package archive

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"peggymeter/service/dbservice"
	"peggymeter/service/model"
)

const (
	moodCollection   = "mood_records"
	usersCollection  = "users"
	dbRequestTimeout = 5 * time.Second
)

// Mirror is a model.MoodListener that copies every history snapshot into MongoDB.
// The uid is resolved on each call so the mirror can be registered before sign in completes.
type Mirror struct {
	db  *dbservice.Service
	uid func() string
	now func() time.Time
}

// NewMirror builds a mirror writing for the user returned by uid.
func NewMirror(db *dbservice.Service, uid func() string) (*Mirror, error) {
	if db == nil {
		return nil, fmt.Errorf("mongo service is required")
	}
	if uid == nil {
		return nil, fmt.Errorf("uid source is required")
	}
	return &Mirror{db: db, uid: uid, now: time.Now}, nil
}

// OnMoodsChanged implements model.MoodListener.
func (m *Mirror) OnMoodsChanged(records []model.MoodRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), dbRequestTimeout)
	defer cancel()
	if err := m.Sync(ctx, records); err != nil {
		log.Printf("mirror mood history failed: %v", err)
	}
}

// Sync upserts every record and removes mirrored records that no longer exist.
func (m *Mirror) Sync(ctx context.Context, records []model.MoodRecord) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("mirror not initialized")
	}
	uid := strings.TrimSpace(m.uid())
	if uid == "" {
		return fmt.Errorf("no session user yet")
	}
	collection := m.db.Database().Collection(moodCollection)
	now := m.now().UTC()

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		filter, update := recordUpsert(uid, rec, now)
		opts := options.Update().SetUpsert(true)
		if _, err := collection.UpdateOne(ctx, filter, update, opts); err != nil {
			return fmt.Errorf("upsert mood record %s: %w", rec.ID, err)
		}
		ids = append(ids, rec.ID)
	}
	if _, err := collection.DeleteMany(ctx, staleFilter(uid, ids)); err != nil {
		return fmt.Errorf("prune mood records: %w", err)
	}
	return nil
}

// TouchUser upserts the session user's document, recording when it was last seen.
func (m *Mirror) TouchUser(ctx context.Context) (bool, error) {
	if m == nil || m.db == nil {
		return false, fmt.Errorf("mirror not initialized")
	}
	uid := strings.TrimSpace(m.uid())
	if uid == "" {
		return false, fmt.Errorf("no session user yet")
	}
	dbCtx, cancel := context.WithTimeout(ctx, dbRequestTimeout)
	defer cancel()

	now := m.now().UTC()
	update := bson.M{
		"$set":         bson.M{"last_seen_at": now, "anonymous": true},
		"$setOnInsert": bson.M{"uid": uid, "created_at": now},
	}
	opts := options.Update().SetUpsert(true)
	result, err := m.db.Database().Collection(usersCollection).UpdateOne(dbCtx, bson.M{"uid": uid}, update, opts)
	if err != nil {
		return false, fmt.Errorf("upsert user: %w", err)
	}
	return result.UpsertedCount > 0, nil
}

// Count returns how many mirrored records the session user has.
func (m *Mirror) Count(ctx context.Context) (int64, error) {
	if m == nil || m.db == nil {
		return 0, fmt.Errorf("mirror not initialized")
	}
	n, err := m.db.Database().Collection(moodCollection).CountDocuments(ctx, bson.M{"uid": m.uid()})
	if err != nil {
		return 0, fmt.Errorf("count mood records: %w", err)
	}
	return n, nil
}

func recordUpsert(uid string, rec model.MoodRecord, now time.Time) (bson.M, bson.M) {
	filter := bson.M{"uid": uid, "record_id": rec.ID}
	update := bson.M{
		"$set": bson.M{
			"level":       int(rec.Level),
			"comment":     rec.Comment,
			"recorded_at": rec.Timestamp.UTC(),
			"updated_at":  now,
		},
		"$setOnInsert": bson.M{
			"uid":        uid,
			"record_id":  rec.ID,
			"created_at": now,
		},
	}
	return filter, update
}

func staleFilter(uid string, keep []string) bson.M {
	return bson.M{"uid": uid, "record_id": bson.M{"$nin": keep}}
}
