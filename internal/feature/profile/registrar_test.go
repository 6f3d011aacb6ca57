package profile

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

	"opomelilla_bot/internal/domain"
)

func TestEnsureMemberGrantsWelcomeBonusOnce(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	coll := newFakeProfileCollection(t)
	registrar := NewRegistrar(coll, logrus.NewEntry(hookLogger))

	identity := domain.Identity{UserID: 123, FirstName: "Ana", Username: "ana_opos"}

	created, err := registrar.EnsureMember(context.Background(), identity)
	if err != nil {
		t.Fatalf("EnsureMember returned error: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true for a new member")
	}

	doc := coll.docFor(t, 123)
	assertFieldEquals(t, doc, "total_points", domain.WelcomeBonusPoints)
	assertFieldEquals(t, doc, "username", "ana_opos")
	assertFieldEquals(t, doc, "level", 1)

	if entry := hook.LastEntry(); entry == nil || entry.Data["event"] != "profile_registered" {
		t.Fatalf("expected profile_registered log, got %+v", entry)
	}

	doc["total_points"] = 60

	created, err = registrar.EnsureMember(context.Background(), identity)
	if err != nil {
		t.Fatalf("second EnsureMember returned error: %v", err)
	}
	if created {
		t.Fatalf("expected created=false on repeated join")
	}

	doc = coll.docFor(t, 123)
	assertFieldEquals(t, doc, "total_points", 60)
}

func TestEnsureMemberRefreshesIdentityOnly(t *testing.T) {
	hookLogger, _ := logtest.NewNullLogger()
	coll := newFakeProfileCollection(t)

	createdAt := time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC)
	coll.seed(t, bson.M{
		"user_id":          int64(777),
		"first_name":       "Old",
		"total_points":     410,
		"created_at":       createdAt,
		"last_activity_at": createdAt,
	})

	registrar := NewRegistrar(coll, logrus.NewEntry(hookLogger))
	fixed := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	registrar.now = func() time.Time { return fixed }

	created, err := registrar.EnsureMember(context.Background(), domain.Identity{UserID: 777, FirstName: " Nuevo ", LastName: "García"})
	if err != nil {
		t.Fatalf("EnsureMember returned error: %v", err)
	}
	if created {
		t.Fatalf("expected created=false for existing profile")
	}

	doc := coll.docFor(t, 777)
	assertFieldEquals(t, doc, "first_name", "Nuevo")
	assertFieldEquals(t, doc, "last_name", "García")
	assertFieldEquals(t, doc, "total_points", 410)
	assertFieldEquals(t, doc, "created_at", createdAt)
	assertFieldEquals(t, doc, "last_activity_at", fixed)
	if _, ok := doc["username"]; ok {
		t.Fatalf("expected empty username not to be written")
	}
}

func TestUpsertFromStartHasNoBonus(t *testing.T) {
	hookLogger, _ := logtest.NewNullLogger()
	coll := newFakeProfileCollection(t)
	registrar := NewRegistrar(coll, logrus.NewEntry(hookLogger))

	created, err := registrar.UpsertFromStart(context.Background(), domain.Identity{UserID: 5, FirstName: "Luis"})
	if err != nil {
		t.Fatalf("UpsertFromStart returned error: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true")
	}

	assertFieldEquals(t, coll.docFor(t, 5), "total_points", 0)
}

func TestEnsureMemberValidatesInput(t *testing.T) {
	hookLogger, _ := logtest.NewNullLogger()
	registrar := NewRegistrar(newFakeProfileCollection(t), logrus.NewEntry(hookLogger))

	if _, err := registrar.EnsureMember(context.Background(), domain.Identity{}); err == nil {
		t.Fatalf("expected error for missing user id")
	}
	if _, err := registrar.EnsureMember(nil, domain.Identity{UserID: 1}); err == nil {
		t.Fatalf("expected error for nil context")
	}

	var nilRegistrar *Registrar
	if _, err := nilRegistrar.EnsureMember(context.Background(), domain.Identity{UserID: 1}); err == nil {
		t.Fatalf("expected error for nil registrar")
	}
}

func TestEnsureMemberWrapsStoreErrors(t *testing.T) {
	hookLogger, _ := logtest.NewNullLogger()
	coll := newFakeProfileCollection(t)
	coll.err = errors.New("write conflict")
	registrar := NewRegistrar(coll, logrus.NewEntry(hookLogger))

	if _, err := registrar.EnsureMember(context.Background(), domain.Identity{UserID: 9}); !errors.Is(err, coll.err) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

type fakeProfileCollection struct {
	t    *testing.T
	docs map[int64]bson.M
	err  error
}

func newFakeProfileCollection(t *testing.T) *fakeProfileCollection {
	t.Helper()
	return &fakeProfileCollection{
		t:    t,
		docs: make(map[int64]bson.M),
	}
}

func (f *fakeProfileCollection) UpdateOne(_ context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	if f.err != nil {
		return nil, f.err
	}

	filterDoc, ok := filter.(bson.M)
	if !ok {
		f.t.Fatalf("unexpected filter type %T", filter)
	}
	userID := readInt64(f.t, filterDoc["user_id"])

	updateDoc, ok := update.(bson.M)
	if !ok {
		f.t.Fatalf("unexpected update type %T", update)
	}
	setDoc, _ := updateDoc["$set"].(bson.M)
	setOnInsertDoc, _ := updateDoc["$setOnInsert"].(bson.M)

	upsert := len(opts) > 0 && opts[0] != nil && opts[0].Upsert != nil && *opts[0].Upsert

	doc, found := f.docs[userID]
	if !found && !upsert {
		return &mongo.UpdateResult{}, nil
	}
	if !found {
		doc = bson.M{}
		merge(doc, setOnInsertDoc)
	}

	merge(doc, setDoc)
	f.docs[userID] = doc

	if !found {
		return &mongo.UpdateResult{UpsertedCount: 1, UpsertedID: userID}, nil
	}
	return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}

func (f *fakeProfileCollection) docFor(t *testing.T, userID int64) bson.M {
	t.Helper()

	doc, ok := f.docs[userID]
	if !ok {
		t.Fatalf("no document stored for user_id=%d", userID)
	}

	return doc
}

func (f *fakeProfileCollection) seed(t *testing.T, doc bson.M) {
	t.Helper()
	f.docs[readInt64(t, doc["user_id"])] = doc
}

func merge(dst bson.M, updates bson.M) {
	for k, v := range updates {
		dst[k] = v
	}
}

func readInt64(t *testing.T, value interface{}) int64 {
	t.Helper()

	switch v := value.(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	default:
		t.Fatalf("expected int64-compatible value, got %T", value)
		return 0
	}
}

func assertFieldEquals(t *testing.T, doc bson.M, field string, expected interface{}) {
	t.Helper()

	val, ok := doc[field]
	if !ok {
		t.Fatalf("expected field %s to be set", field)
	}

	if val != expected {
		t.Fatalf("expected %s=%v, got %v", field, expected, val)
	}
}
