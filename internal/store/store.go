// Package store encapsulates MongoDB client management and collection helpers.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"opomelilla_bot/internal/config"
)

// Collection names used across the bot.
const (
	CollectionProfiles          = "profiles"
	CollectionGroups            = "groups"
	CollectionQuestions         = "questions"
	CollectionSubscriptions     = "subscriptions"
	CollectionStudySessions     = "study_sessions"
	CollectionTournamentPolls   = "tournament_polls"
	CollectionTournamentAnswers = "tournament_answers"
)

// mongoClient captures the subset of mongo.Client behavior we rely on to allow
// lightweight stubbing in tests without a live Mongo deployment.
type mongoClient interface {
	Ping(context.Context, *readpref.ReadPref) error
	Database(string, ...*options.DatabaseOptions) *mongo.Database
	Disconnect(context.Context) error
}

// connectMongo is overridable for tests.
var connectMongo = func(ctx context.Context, opts *options.ClientOptions) (mongoClient, error) {
	return mongo.Connect(ctx, opts)
}

// createIndexes is overridable for tests.
var createIndexes = func(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) ([]string, error) {
	return coll.Indexes().CreateMany(ctx, models)
}

// Manager owns a MongoDB client and the configured database handle.
type Manager struct {
	client mongoClient
	db     *mongo.Database
}

// NewManager initializes the Mongo client using the supplied configuration and
// verifies connectivity with a ping.
func NewManager(ctx context.Context, cfg config.Config) (*Manager, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	client, err := connectMongo(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Manager{
		client: client,
		db:     client.Database(cfg.MongoDB),
	}, nil
}

// Database returns the configured database handle.
func (m *Manager) Database() *mongo.Database {
	return m.db
}

// Collection returns a collection handle for the given name.
func (m *Manager) Collection(name string) *mongo.Collection {
	return m.db.Collection(name)
}

// Profiles returns the profiles collection handle.
func (m *Manager) Profiles() *mongo.Collection {
	return m.Collection(CollectionProfiles)
}

// Groups returns the groups collection handle.
func (m *Manager) Groups() *mongo.Collection {
	return m.Collection(CollectionGroups)
}

// Questions returns the questions collection handle.
func (m *Manager) Questions() *mongo.Collection {
	return m.Collection(CollectionQuestions)
}

// Subscriptions returns the subscriptions collection handle.
func (m *Manager) Subscriptions() *mongo.Collection {
	return m.Collection(CollectionSubscriptions)
}

// StudySessions returns the study_sessions collection handle.
func (m *Manager) StudySessions() *mongo.Collection {
	return m.Collection(CollectionStudySessions)
}

// TournamentPolls returns the tournament_polls collection handle.
func (m *Manager) TournamentPolls() *mongo.Collection {
	return m.Collection(CollectionTournamentPolls)
}

// TournamentAnswers returns the tournament_answers collection handle.
func (m *Manager) TournamentAnswers() *mongo.Collection {
	return m.Collection(CollectionTournamentAnswers)
}

// Ping checks connectivity against the primary.
func (m *Manager) Ping(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.client == nil {
		return errors.New("store manager is not initialized")
	}

	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}

	return nil
}

type indexPlan struct {
	collection string
	models     []mongo.IndexModel
}

func baseIndexPlan() []indexPlan {
	return []indexPlan{
		{
			collection: CollectionProfiles,
			models: []mongo.IndexModel{
				uniqueIndex("user_id_unique", bson.D{{Key: "user_id", Value: 1}}),
				{
					Keys:    bson.D{{Key: "total_points", Value: -1}},
					Options: options.Index().SetName("total_points_desc"),
				},
			},
		},
		{
			collection: CollectionGroups,
			models:     []mongo.IndexModel{uniqueIndex("chat_id_unique", bson.D{{Key: "chat_id", Value: 1}})},
		},
		{
			collection: CollectionQuestions,
			models: []mongo.IndexModel{
				uniqueIndex("poll_id_unique", bson.D{{Key: "poll_id", Value: 1}}),
				{
					Keys:    bson.D{{Key: "question_id", Value: 1}, {Key: "created_at", Value: -1}},
					Options: options.Index().SetName("question_id_created_at"),
				},
			},
		},
		{
			collection: CollectionSubscriptions,
			models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "active", Value: 1}, {Key: "expires_at", Value: -1}},
					Options: options.Index().SetName("user_active_expires"),
				},
			},
		},
		{
			collection: CollectionStudySessions,
			models:     []mongo.IndexModel{uniqueIndex("user_id_unique", bson.D{{Key: "user_id", Value: 1}})},
		},
		{
			collection: CollectionTournamentPolls,
			models:     []mongo.IndexModel{uniqueIndex("poll_id_unique", bson.D{{Key: "poll_id", Value: 1}})},
		},
		{
			collection: CollectionTournamentAnswers,
			models: []mongo.IndexModel{
				uniqueIndex("poll_user_unique", bson.D{{Key: "poll_id", Value: 1}, {Key: "user_id", Value: 1}}),
			},
		},
	}
}

func uniqueIndex(name string, keys bson.D) mongo.IndexModel {
	return mongo.IndexModel{
		Keys: keys,
		Options: options.Index().
			SetName(name).
			SetUnique(true),
	}
}

// EnsureBaseIndexes creates the indexes every collection relies on for
// idempotent writes and lookups. Collections are created implicitly if they do
// not already exist. The first failure aborts the remaining collections.
func (m *Manager) EnsureBaseIndexes(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}

	for _, plan := range baseIndexPlan() {
		if _, err := createIndexes(ctx, m.Collection(plan.collection), plan.models); err != nil {
			return fmt.Errorf("create %s indexes: %w", plan.collection, err)
		}
	}

	return nil
}

// Close disconnects the Mongo client.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return m.client.Disconnect(ctx)
}
