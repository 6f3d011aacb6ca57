// Package profile registers Telegram users as quiz profiles.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"opomelilla_bot/internal/domain"
	"opomelilla_bot/internal/logging"
)

type profileCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Registrar ensures profiles exist and keeps their identity fields and
// last-activity timestamp current.
type Registrar struct {
	profiles profileCollection
	logger   *logrus.Entry
	now      func() time.Time
}

// NewRegistrar constructs a Registrar for the provided profiles collection.
func NewRegistrar(profiles profileCollection, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		profiles: profiles,
		logger:   logger,
		now:      time.Now,
	}
}

// EnsureMember registers a user who joined a group. The welcome bonus is only
// part of the insert, so repeated joins never grant it twice. created reports
// whether this call created the profile.
func (r *Registrar) EnsureMember(ctx context.Context, identity domain.Identity) (bool, error) {
	return r.ensure(ctx, identity, domain.WelcomeBonusPoints, "member")
}

// UpsertFromStart registers or refreshes the profile of a user issuing /start.
func (r *Registrar) UpsertFromStart(ctx context.Context, identity domain.Identity) (bool, error) {
	return r.ensure(ctx, identity, 0, "start")
}

func (r *Registrar) ensure(ctx context.Context, identity domain.Identity, initialPoints int, source string) (bool, error) {
	if r == nil || r.profiles == nil {
		return false, errors.New("profile registrar is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}
	if identity.UserID == 0 {
		return false, errors.New("user id is required")
	}

	now := r.now().UTC().Truncate(time.Millisecond)

	setFields := bson.M{
		"first_name":       strings.TrimSpace(identity.FirstName),
		"last_activity_at": now,
	}
	if username := strings.TrimSpace(identity.Username); username != "" {
		setFields["username"] = username
	}
	if lastName := strings.TrimSpace(identity.LastName); lastName != "" {
		setFields["last_name"] = lastName
	}

	update := bson.M{
		"$set": setFields,
		"$setOnInsert": bson.M{
			"user_id":      identity.UserID,
			"total_points": initialPoints,
			"level":        1,
			"streak":       0,
			"best_streak":  0,
			"answered":     0,
			"correct":      0,
			"created_at":   now,
		},
	}

	result, err := r.profiles.UpdateOne(ctx,
		bson.M{"user_id": identity.UserID},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("ensure profile: %w", err)
	}

	created := result != nil && result.UpsertedCount > 0
	if created {
		r.logger.WithFields(logging.Fields{
			"event":          "profile_registered",
			"user_id":        identity.UserID,
			"source":         source,
			"initial_points": initialPoints,
		}).Info("registered new profile")
		return true, nil
	}

	r.logger.WithFields(logging.Fields{
		"event":   "profile_seen",
		"user_id": identity.UserID,
		"source":  source,
	}).Debug("updated profile activity")

	return false, nil
}
