package group

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var joinTime = time.Date(2025, 9, 1, 18, 30, 0, 0, time.UTC)

func TestRecordJoinsFirstJoinCreatesGroup(t *testing.T) {
	coll := &fakeGroups{docs: map[int64]bson.M{}}
	ledger, hook := newTestLedger(coll)

	firstJoin, err := ledger.RecordJoins(context.Background(), -100200, " Oposiciones Melilla ", 2)
	if err != nil {
		t.Fatalf("RecordJoins returned error: %v", err)
	}
	if !firstJoin {
		t.Fatalf("expected the first join to create the group")
	}

	doc := coll.docs[-100200]
	if doc["title"] != "Oposiciones Melilla" || doc["members_joined"] != 2 || doc["join_updates"] != 1 {
		t.Fatalf("unexpected group document %v", doc)
	}
	if doc["first_join_at"] != joinTime || doc["last_join_at"] != joinTime {
		t.Fatalf("expected join timestamps at %v, got %v", joinTime, doc)
	}
	if entry := hook.LastEntry(); entry == nil || entry.Data["event"] != "group_first_join" || entry.Data["new_humans"] != 2 {
		t.Fatalf("unexpected log entry %+v", entry)
	}
}

func TestRecordJoinsAccumulates(t *testing.T) {
	firstJoin := joinTime.Add(-72 * time.Hour)
	coll := &fakeGroups{docs: map[int64]bson.M{
		-200300: {
			"chat_id": int64(-200300), "title": "Antiguo", "first_join_at": firstJoin,
			"last_join_at": firstJoin, "members_joined": 4, "join_updates": 2,
		},
	}}
	ledger, _ := newTestLedger(coll)

	created, err := ledger.RecordJoins(context.Background(), -200300, "", 3)
	if err != nil || created {
		t.Fatalf("expected update of existing group, got created=%v err=%v", created, err)
	}

	doc := coll.docs[-200300]
	if doc["members_joined"] != 7 || doc["join_updates"] != 3 {
		t.Fatalf("expected counters to grow, got %v", doc)
	}
	if doc["title"] != "Antiguo" || doc["first_join_at"] != firstJoin || doc["last_join_at"] != joinTime {
		t.Fatalf("unexpected group document %v", doc)
	}
}

func TestRecordJoinsSkipsEmptyBatches(t *testing.T) {
	coll := &fakeGroups{docs: map[int64]bson.M{}}
	ledger, _ := newTestLedger(coll)

	created, err := ledger.RecordJoins(context.Background(), -1, "solo bots", 0)
	if err != nil || created {
		t.Fatalf("expected no-op, got created=%v err=%v", created, err)
	}
	if coll.calls != 0 {
		t.Fatalf("expected no write for zero joins, got %d", coll.calls)
	}
}

func TestRecordJoinsErrors(t *testing.T) {
	writeErr := errors.New("mongo down")
	ledger, _ := newTestLedger(&fakeGroups{docs: map[int64]bson.M{}, err: writeErr})

	if _, err := ledger.RecordJoins(context.Background(), -1, "x", 1); !errors.Is(err, writeErr) {
		t.Fatalf("expected write error, got %v", err)
	}
	if _, err := ledger.RecordJoins(context.Background(), 0, "x", 1); err == nil {
		t.Fatalf("expected error for missing chat id")
	}
	if _, err := ledger.RecordJoins(context.Background(), -1, "x", -1); err == nil {
		t.Fatalf("expected error for negative joins")
	}
	if _, err := ledger.RecordJoins(nil, -1, "x", 1); err == nil {
		t.Fatalf("expected error for nil context")
	}

	var nilLedger *JoinLedger
	if _, err := nilLedger.RecordJoins(context.Background(), -1, "x", 1); err == nil {
		t.Fatalf("expected error for nil ledger")
	}
}

func newTestLedger(coll *fakeGroups) (*JoinLedger, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	ledger := NewJoinLedger(coll, logrus.NewEntry(logger))
	ledger.now = func() time.Time { return joinTime }
	return ledger, hook
}

type fakeGroups struct {
	docs  map[int64]bson.M
	err   error
	calls int
}

func (f *fakeGroups) UpdateOne(_ context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	chatID := filter.(bson.M)["chat_id"].(int64)
	updateDoc := update.(bson.M)
	upsert := len(opts) > 0 && opts[0] != nil && opts[0].Upsert != nil && *opts[0].Upsert

	doc, found := f.docs[chatID]
	if !found {
		if !upsert {
			return &mongo.UpdateResult{}, nil
		}
		doc = bson.M{}
		for k, v := range updateDoc["$setOnInsert"].(bson.M) {
			doc[k] = v
		}
	}
	for k, v := range updateDoc["$set"].(bson.M) {
		doc[k] = v
	}
	for k, v := range updateDoc["$inc"].(bson.M) {
		current, _ := doc[k].(int)
		doc[k] = current + v.(int)
	}
	f.docs[chatID] = doc

	if !found {
		return &mongo.UpdateResult{UpsertedCount: 1, UpsertedID: chatID}, nil
	}
	return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}
