package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"opomelilla_bot/internal/domain"
)

type countCollection interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

type rankingCollection interface {
	countCollection
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// StatsProvider answers ranking and size questions about the profiles and
// groups collections without leaking MongoDB internals to callers.
type StatsProvider struct {
	profiles rankingCollection
	groups   countCollection
}

// NewStatsProvider constructs a StatsProvider backed by the provided profile and
// group collections.
func NewStatsProvider(profiles rankingCollection, groups countCollection) *StatsProvider {
	return &StatsProvider{
		profiles: profiles,
		groups:   groups,
	}
}

// CountProfiles returns the number of registered profiles.
func (p *StatsProvider) CountProfiles(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.profiles == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.profiles.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count profiles: %w", err)
	}

	return count, nil
}

// CountGroups returns the number of documents in the groups collection.
func (p *StatsProvider) CountGroups(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.groups == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.groups.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count groups: %w", err)
	}

	return count, nil
}

// Rank returns the 1-based position of a profile holding totalPoints: one plus
// the number of profiles with strictly more points.
func (p *StatsProvider) Rank(ctx context.Context, totalPoints int) (int, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.profiles == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	ahead, err := p.profiles.CountDocuments(ctx, bson.M{"total_points": bson.M{"$gt": totalPoints}})
	if err != nil {
		return 0, fmt.Errorf("count profiles ahead: %w", err)
	}

	return int(ahead) + 1, nil
}

// Top returns up to limit profiles ordered by total points, highest first.
func (p *StatsProvider) Top(ctx context.Context, limit int) ([]domain.Profile, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if p == nil || p.profiles == nil {
		return nil, errors.New("stats provider is not initialized")
	}
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "total_points", Value: -1}, {Key: "user_id", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := p.profiles.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find top profiles: %w", err)
	}

	var profiles []domain.Profile
	if err := cursor.All(ctx, &profiles); err != nil {
		return nil, fmt.Errorf("decode top profiles: %w", err)
	}

	return profiles, nil
}
