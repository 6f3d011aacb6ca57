// Package tournament claims poll answers that belong to tournament polls, so
// they are scored by the tournament instead of the regular quiz pipeline.
package tournament

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"opomelilla_bot/internal/logging"
	"opomelilla_bot/internal/update"
)

// Poll is a poll sent as part of a tournament round.
type Poll struct {
	PollID       string    `bson:"poll_id"`
	TournamentID string    `bson:"tournament_id"`
	QuestionID   string    `bson:"question_id"`
	CorrectIndex int       `bson:"correct_index"`
	SentAt       time.Time `bson:"sent_at"`
}

// Answer is one participant's answer to a tournament poll.
type Answer struct {
	PollID       string    `bson:"poll_id"`
	TournamentID string    `bson:"tournament_id"`
	UserID       int64     `bson:"user_id"`
	OptionIDs    []int     `bson:"option_ids"`
	Correct      bool      `bson:"correct"`
	AnsweredAt   time.Time `bson:"answered_at"`
}

type pollCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

type answerCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// ErrBootstrapInProgress is returned to callers that arrive while another
// caller is running the bootstrap.
var ErrBootstrapInProgress = errors.New("tournament bootstrap in progress")

// Service owns tournament poll answers. The bootstrap runs at most once
// successfully per process; a failed bootstrap is retried on the next call.
type Service struct {
	polls   pollCollection
	answers answerCollection
	logger  *logrus.Entry
	now     func() time.Time

	mu          sync.Mutex
	initialized atomic.Bool
}

// NewService constructs a Service.
func NewService(polls pollCollection, answers answerCollection, logger *logrus.Entry) *Service {
	return &Service{
		polls:   polls,
		answers: answers,
		logger:  logging.OrDefault(logger),
		now:     time.Now,
	}
}

// EnsureInitialized runs the tournament bootstrap if it has not yet succeeded.
// Callers never wait on an in-flight attempt: they get ErrBootstrapInProgress.
func (s *Service) EnsureInitialized(ctx context.Context) error {
	if s == nil || s.polls == nil {
		return errors.New("tournament service is not initialized")
	}
	if s.initialized.Load() {
		return nil
	}

	if !s.mu.TryLock() {
		return ErrBootstrapInProgress
	}
	defer s.mu.Unlock()

	if s.initialized.Load() {
		return nil
	}

	tracked, err := s.polls.CountDocuments(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("bootstrap tournaments: %w", err)
	}

	s.initialized.Store(true)
	s.logger.WithFields(logging.Fields{
		"event":         "tournament_ready",
		"tracked_polls": tracked,
	}).Info("tournament subsystem initialized")

	return nil
}

// Initialized reports whether the bootstrap has succeeded.
func (s *Service) Initialized() bool {
	return s.initialized.Load()
}

// HandlePollAnswer records the answer when the poll belongs to a tournament.
// claimed is false for polls the tournament does not know about. A repeated
// answer from the same user is still claimed but not stored twice.
func (s *Service) HandlePollAnswer(ctx context.Context, answer update.PollAnswer) (bool, error) {
	if s == nil || s.polls == nil || s.answers == nil {
		return false, errors.New("tournament service is not initialized")
	}
	if answer.User == nil || answer.PollID == "" {
		return false, nil
	}

	var poll Poll
	err := s.polls.FindOne(ctx, bson.M{"poll_id": answer.PollID}).Decode(&poll)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find tournament poll: %w", err)
	}

	record := Answer{
		PollID:       poll.PollID,
		TournamentID: poll.TournamentID,
		UserID:       answer.User.ID,
		OptionIDs:    answer.OptionIDs,
		Correct:      containsOption(answer.OptionIDs, poll.CorrectIndex),
		AnsweredAt:   s.now().UTC().Truncate(time.Millisecond),
	}

	if _, err := s.answers.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			s.logger.WithFields(logging.Fields{
				"event":   "tournament_answer_duplicate",
				"poll_id": poll.PollID,
				"user_id": record.UserID,
			}).Debug("duplicate tournament answer ignored")
			return true, nil
		}
		return false, fmt.Errorf("record tournament answer: %w", err)
	}

	s.logger.WithFields(logging.Fields{
		"event":         "tournament_answer_recorded",
		"poll_id":       poll.PollID,
		"tournament_id": poll.TournamentID,
		"user_id":       record.UserID,
		"correct":       record.Correct,
	}).Info("tournament answer recorded")

	return true, nil
}

func containsOption(options []int, want int) bool {
	for _, option := range options {
		if option == want {
			return true
		}
	}
	return false
}
