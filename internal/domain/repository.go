// Package domain defines the shared entities of the webhook service and the
// MongoDB repositories that load them.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when a lookup matches no document.
var ErrNotFound = errors.New("not found")

type findCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
}

type insertFindCollection interface {
	findCollection
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// ProfileRepository retrieves user profiles from MongoDB.
type ProfileRepository struct {
	collection findCollection
}

// NewProfileRepository constructs a ProfileRepository.
func NewProfileRepository(collection findCollection) *ProfileRepository {
	return &ProfileRepository{collection: collection}
}

// GetByID fetches a profile by Telegram user_id.
func (r *ProfileRepository) GetByID(ctx context.Context, userID int64) (Profile, error) {
	if r == nil || r.collection == nil {
		return Profile{}, errors.New("profile repository is not initialized")
	}
	if ctx == nil {
		return Profile{}, errors.New("context is required")
	}
	if userID == 0 {
		return Profile{}, errors.New("user_id is required")
	}

	var profile Profile
	if err := findOne(ctx, r.collection, bson.M{"user_id": userID}, &profile); err != nil {
		return Profile{}, fmt.Errorf("find profile: %w", err)
	}

	return profile, nil
}

// QuestionRepository persists and resolves poll questions.
type QuestionRepository struct {
	collection insertFindCollection
}

// NewQuestionRepository constructs a QuestionRepository.
func NewQuestionRepository(collection insertFindCollection) *QuestionRepository {
	return &QuestionRepository{collection: collection}
}

// Create records a question sent as a poll, stamping created_at when unset.
func (r *QuestionRepository) Create(ctx context.Context, question Question) (Question, error) {
	if r == nil || r.collection == nil {
		return Question{}, errors.New("question repository is not initialized")
	}
	if ctx == nil {
		return Question{}, errors.New("context is required")
	}
	if strings.TrimSpace(question.PollID) == "" {
		return Question{}, errors.New("poll_id is required")
	}
	if strings.TrimSpace(question.QuestionID) == "" {
		return Question{}, errors.New("question_id is required")
	}
	if question.CreatedAt.IsZero() {
		question.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}

	if _, err := r.collection.InsertOne(ctx, question); err != nil {
		return Question{}, fmt.Errorf("insert question: %w", err)
	}

	return question, nil
}

// GetByPollID resolves the question behind a poll. ErrNotFound is wrapped in
// the returned error when the poll is unknown.
func (r *QuestionRepository) GetByPollID(ctx context.Context, pollID string) (Question, error) {
	if r == nil || r.collection == nil {
		return Question{}, errors.New("question repository is not initialized")
	}
	if ctx == nil {
		return Question{}, errors.New("context is required")
	}
	if strings.TrimSpace(pollID) == "" {
		return Question{}, errors.New("poll_id is required")
	}

	var question Question
	if err := findOne(ctx, r.collection, bson.M{"poll_id": pollID}, &question); err != nil {
		return Question{}, fmt.Errorf("find question: %w", err)
	}

	return question, nil
}

// GetByQuestionID resolves the most recently sent poll for a question id.
// ErrNotFound is wrapped in the returned error when the id is unknown.
func (r *QuestionRepository) GetByQuestionID(ctx context.Context, questionID string) (Question, error) {
	if r == nil || r.collection == nil {
		return Question{}, errors.New("question repository is not initialized")
	}
	if ctx == nil {
		return Question{}, errors.New("context is required")
	}
	if strings.TrimSpace(questionID) == "" {
		return Question{}, errors.New("question_id is required")
	}

	var question Question
	latest := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if err := findOne(ctx, r.collection, bson.M{"question_id": questionID}, &question, latest); err != nil {
		return Question{}, fmt.Errorf("find question: %w", err)
	}

	return question, nil
}

func findOne(ctx context.Context, coll findCollection, filter bson.M, out interface{}, opts ...*options.FindOneOptions) error {
	result := coll.FindOne(ctx, filter, opts...)
	if result == nil {
		return errors.New("find returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return err
	}

	if err := result.Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	return nil
}
