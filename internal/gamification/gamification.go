// Package gamification owns the authoritative score of every profile: points,
// level, streak, accuracy and rank.
package gamification

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"opomelilla_bot/internal/domain"
	"opomelilla_bot/internal/logging"
)

const (
	// CorrectPoints is awarded for every correct answer.
	CorrectPoints  = 10
	defaultPenalty = -2
	maxLevel       = 10
)

// levelThresholds[i] is the minimum total for level i+2.
var levelThresholds = []int{100, 300, 600, 1000, 1500, 2100, 2800, 3600, 4500}

// LevelFor maps a point total to a level between 1 and 10.
func LevelFor(points int) int {
	level := 1
	for _, threshold := range levelThresholds {
		if points < threshold {
			break
		}
		level++
	}
	return level
}

// PointsFor returns the score delta of an answer. Misses cost as many points
// as the current level.
func PointsFor(correct bool, level int) int {
	if correct {
		return CorrectPoints
	}
	if level < 1 || level > maxLevel {
		return defaultPenalty
	}
	return -level
}

// Accuracy is the rounded percentage of correct answers.
func Accuracy(correct, answered int) int {
	if answered <= 0 {
		return 0
	}
	return int(math.Round(float64(correct) * 100 / float64(answered)))
}

type profileCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Ranker resolves the 1-based position of a point total.
type Ranker interface {
	Rank(ctx context.Context, totalPoints int) (int, error)
}

// Service scores responses against the profiles collection.
type Service struct {
	profiles profileCollection
	ranker   Ranker
	logger   *logrus.Entry
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(profiles profileCollection, ranker Ranker, logger *logrus.Entry) *Service {
	return &Service{
		profiles: profiles,
		ranker:   ranker,
		logger:   logging.OrDefault(logger),
		now:      time.Now,
	}
}

// ProcessResponse applies one answer to the user's profile, creating the
// profile when missing, and returns the updated snapshot.
func (s *Service) ProcessResponse(ctx context.Context, identity domain.Identity, event domain.ResponseEvent) (domain.UserStats, error) {
	if s == nil || s.profiles == nil {
		return domain.UserStats{}, errors.New("gamification service is not initialized")
	}
	if ctx == nil {
		return domain.UserStats{}, errors.New("context is required")
	}
	if event.UserID == 0 {
		return domain.UserStats{}, errors.New("user id is required")
	}

	profile, err := s.load(ctx, event.UserID)
	if err != nil {
		return domain.UserStats{}, err
	}

	delta := PointsFor(event.Correct, profile.Level)
	total := profile.TotalPoints + delta
	if total < 0 {
		total = 0
	}

	streak := 0
	correct := profile.Correct
	if event.Correct {
		streak = profile.Streak + 1
		correct++
	}
	best := profile.BestStreak
	if streak > best {
		best = streak
	}

	profile.TotalPoints = total
	profile.Level = LevelFor(total)
	profile.Streak = streak
	profile.BestStreak = best
	profile.Answered++
	profile.Correct = correct

	now := s.now().UTC().Truncate(time.Millisecond)
	set := bson.M{
		"total_points":     profile.TotalPoints,
		"level":            profile.Level,
		"streak":           profile.Streak,
		"best_streak":      profile.BestStreak,
		"answered":         profile.Answered,
		"correct":          profile.Correct,
		"last_activity_at": now,
	}
	if identity.FirstName != "" {
		set["first_name"] = identity.FirstName
	}
	if identity.Username != "" {
		set["username"] = identity.Username
	}

	_, err = s.profiles.UpdateOne(ctx,
		bson.M{"user_id": event.UserID},
		bson.M{
			"$set":         set,
			"$setOnInsert": bson.M{"user_id": event.UserID, "created_at": now},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("update profile score: %w", err)
	}

	// The score is committed; rank failures are logged, not returned.
	stats, err := s.snapshot(ctx, profile)
	if err != nil {
		s.logger.WithError(err).WithFields(logging.Fields{
			"event":   "response_rank_failed",
			"user_id": event.UserID,
		}).Warn("score stored without rank")
		stats = unranked(profile)
	}
	stats.LastDelta = delta

	s.logger.WithFields(logging.Fields{
		"event":        "response_scored",
		"user_id":      event.UserID,
		"question_id":  event.QuestionID,
		"correct":      event.Correct,
		"delta":        delta,
		"total_points": stats.TotalPoints,
		"level":        stats.Level,
	}).Info("response scored")

	return stats, nil
}

// Stats returns the current snapshot for a user. Unknown users get the
// starting snapshot.
func (s *Service) Stats(ctx context.Context, userID int64) (domain.UserStats, error) {
	if s == nil || s.profiles == nil {
		return domain.UserStats{}, errors.New("gamification service is not initialized")
	}
	if ctx == nil {
		return domain.UserStats{}, errors.New("context is required")
	}

	profile, err := s.load(ctx, userID)
	if err != nil {
		return domain.UserStats{}, err
	}

	return s.snapshot(ctx, profile)
}

func (s *Service) load(ctx context.Context, userID int64) (domain.Profile, error) {
	profile, err := domain.NewProfileRepository(s.profiles).GetByID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Profile{UserID: userID, Level: 1}, nil
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	if profile.Level < 1 {
		profile.Level = LevelFor(profile.TotalPoints)
	}

	return profile, nil
}

func (s *Service) snapshot(ctx context.Context, profile domain.Profile) (domain.UserStats, error) {
	stats := unranked(profile)
	stats.Rank = 1

	if s.ranker != nil {
		rank, err := s.ranker.Rank(ctx, profile.TotalPoints)
		if err != nil {
			return domain.UserStats{}, fmt.Errorf("rank profile: %w", err)
		}
		stats.Rank = rank
	}

	return stats, nil
}

// unranked builds the stats for profile with Rank left at zero.
func unranked(profile domain.Profile) domain.UserStats {
	return domain.UserStats{
		UserID:      profile.UserID,
		TotalPoints: profile.TotalPoints,
		Level:       profile.Level,
		Streak:      profile.Streak,
		BestStreak:  profile.BestStreak,
		Answered:    profile.Answered,
		Correct:     profile.Correct,
		Accuracy:    Accuracy(profile.Correct, profile.Answered),
	}
}
