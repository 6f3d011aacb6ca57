// Package subscription manages paid plans: the catalogue, activation after a
// successful payment and the active-plan lookup behind /mi_plan.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"opomelilla_bot/internal/domain"
	"opomelilla_bot/internal/logging"
)

type subscriptionCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	UpdateMany(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Activation describes a settled payment to turn into a subscription.
type Activation struct {
	UserID                  int64
	Plan                    string
	AmountCents             int
	Currency                string
	TelegramPaymentChargeID string
	ProviderPaymentChargeID string
}

// Service reads and writes the subscriptions collection.
type Service struct {
	subscriptions subscriptionCollection
	logger        *logrus.Entry
	now           func() time.Time
	newID         func() string
}

// NewService constructs a Service.
func NewService(subscriptions subscriptionCollection, logger *logrus.Entry) *Service {
	return &Service{
		subscriptions: subscriptions,
		logger:        logging.OrDefault(logger),
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// Active returns the most recent unexpired subscription of a user. found is
// false when the user has none.
func (s *Service) Active(ctx context.Context, userID int64) (domain.Subscription, bool, error) {
	if s == nil || s.subscriptions == nil {
		return domain.Subscription{}, false, errors.New("subscription service is not initialized")
	}
	if ctx == nil {
		return domain.Subscription{}, false, errors.New("context is required")
	}

	filter := bson.M{
		"user_id":    userID,
		"active":     true,
		"expires_at": bson.M{"$gt": s.now().UTC()},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var sub domain.Subscription
	err := s.subscriptions.FindOne(ctx, filter, opts).Decode(&sub)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Subscription{}, false, nil
	}
	if err != nil {
		return domain.Subscription{}, false, fmt.Errorf("find active subscription: %w", err)
	}

	return sub, true, nil
}

// Activate deactivates any previous subscription of the user and stores a new
// active one lasting Period.
func (s *Service) Activate(ctx context.Context, in Activation) (domain.Subscription, error) {
	if s == nil || s.subscriptions == nil {
		return domain.Subscription{}, errors.New("subscription service is not initialized")
	}
	if ctx == nil {
		return domain.Subscription{}, errors.New("context is required")
	}
	if in.UserID == 0 {
		return domain.Subscription{}, errors.New("user id is required")
	}
	if _, ok := PlanByName(in.Plan); !ok {
		return domain.Subscription{}, fmt.Errorf("unknown plan %q", in.Plan)
	}

	now := s.now().UTC().Truncate(time.Millisecond)

	if _, err := s.subscriptions.UpdateMany(ctx,
		bson.M{"user_id": in.UserID, "active": true},
		bson.M{"$set": bson.M{"active": false}},
	); err != nil {
		return domain.Subscription{}, fmt.Errorf("deactivate previous subscriptions: %w", err)
	}

	sub := domain.Subscription{
		ID:                      s.newID(),
		UserID:                  in.UserID,
		Plan:                    in.Plan,
		AmountCents:             in.AmountCents,
		Currency:                in.Currency,
		TelegramPaymentChargeID: in.TelegramPaymentChargeID,
		ProviderPaymentChargeID: in.ProviderPaymentChargeID,
		Active:                  true,
		CreatedAt:               now,
		ExpiresAt:               now.Add(Period),
	}

	if _, err := s.subscriptions.InsertOne(ctx, sub); err != nil {
		return domain.Subscription{}, fmt.Errorf("insert subscription: %w", err)
	}

	s.logger.WithFields(logging.Fields{
		"event":           "subscription_activated",
		"user_id":         in.UserID,
		"plan":            in.Plan,
		"subscription_id": sub.ID,
		"expires_at":      sub.ExpiresAt,
	}).Info("subscription activated")

	return sub, nil
}
