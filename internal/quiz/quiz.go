// Package quiz scores answers to quiz questions, either native poll answers
// or legacy text replies, and sends the immediate feedback message.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"opomelilla_bot/internal/domain"
	"opomelilla_bot/internal/events"
	"opomelilla_bot/internal/feedback"
	"opomelilla_bot/internal/logging"
	"opomelilla_bot/internal/update"
)

// Answer sources recorded on published events.
const (
	SourcePoll        = "poll"
	SourceLegacyReply = "legacy_reply"
)

// QuestionLookup resolves stored questions by poll or by question id.
type QuestionLookup interface {
	GetByPollID(ctx context.Context, pollID string) (domain.Question, error)
	GetByQuestionID(ctx context.Context, questionID string) (domain.Question, error)
}

// Scorer applies a response to the user's aggregate stats.
type Scorer interface {
	ProcessResponse(ctx context.Context, identity domain.Identity, event domain.ResponseEvent) (domain.UserStats, error)
}

// Notifier delivers the feedback message.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) bool
}

// Outcome summarizes a processed answer.
type Outcome struct {
	Processed bool
	Correct   bool
	Notified  bool
	Stats     domain.UserStats
}

// Pipeline scores answers. Each processed answer reaches the scorer exactly
// once and produces at most one notification. Scoring failures are logged and
// reported as an unprocessed outcome, never as an error.
type Pipeline struct {
	questions QuestionLookup
	scorer    Scorer
	notifier  Notifier
	publisher events.Publisher
	logger    *logrus.Entry
	now       func() time.Time
}

// NewPipeline constructs a Pipeline. A nil publisher disables events.
func NewPipeline(questions QuestionLookup, scorer Scorer, notifier Notifier, publisher events.Publisher, logger *logrus.Entry) *Pipeline {
	if publisher == nil {
		publisher = events.Nop{}
	}

	return &Pipeline{
		questions: questions,
		scorer:    scorer,
		notifier:  notifier,
		publisher: publisher,
		logger:    logging.OrDefault(logger),
		now:       time.Now,
	}
}

// AnswerPoll scores a poll answer. Answers to polls without a stored question
// are ignored.
func (p *Pipeline) AnswerPoll(ctx context.Context, answer update.PollAnswer) (Outcome, error) {
	if p == nil || p.questions == nil || p.scorer == nil {
		return Outcome{}, errors.New("quiz pipeline is not initialized")
	}
	if answer.User == nil {
		return Outcome{}, errors.New("poll answer has no user")
	}

	logger := p.logger.WithFields(logging.Fields{
		"poll_id": answer.PollID,
		"user_id": answer.User.ID,
	})

	question, err := p.questions.GetByPollID(ctx, answer.PollID)
	if errors.Is(err, domain.ErrNotFound) {
		logger.WithField("event", "quiz_question_unknown").Info("no question stored for poll")
		return Outcome{}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("lookup question: %w", err)
	}

	correct := false
	for _, option := range answer.OptionIDs {
		if option == question.CorrectIndex {
			correct = true
			break
		}
	}

	return p.score(ctx, scoring{
		user:     *answer.User,
		chatID:   question.ChatID,
		source:   SourcePoll,
		ref:      answer.PollID,
		question: question.QuestionID,
		correct:  correct,
		seconds:  feedback.ResponseSeconds(question.CreatedAt.Unix(), p.now().Unix()),
	})
}

// AnswerReply scores a text reply to a question message identified by
// questionID. Replies naming an unknown question are ignored. Feedback goes to
// the chat the reply was sent in.
func (p *Pipeline) AnswerReply(ctx context.Context, msg update.Message, questionID string) (Outcome, error) {
	if p == nil || p.questions == nil || p.scorer == nil {
		return Outcome{}, errors.New("quiz pipeline is not initialized")
	}
	if msg.From == nil {
		return Outcome{}, errors.New("reply has no sender")
	}

	question, err := p.questions.GetByQuestionID(ctx, questionID)
	if errors.Is(err, domain.ErrNotFound) {
		p.logger.WithFields(logging.Fields{
			"event":       "quiz_question_unknown",
			"question_id": questionID,
			"user_id":     msg.From.ID,
		}).Info("reply names no stored question")
		return Outcome{}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("lookup question: %w", err)
	}

	askedAt := msg.Date
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.Date != 0 {
		askedAt = msg.ReplyToMessage.Date
	}

	return p.score(ctx, scoring{
		user:     *msg.From,
		chatID:   msg.Chat.ID,
		source:   SourceLegacyReply,
		ref:      fmt.Sprintf("%d", msg.MessageID),
		question: question.QuestionID,
		correct:  unverifiedReplyCorrectness(),
		seconds:  feedback.ResponseSeconds(askedAt, msg.Date),
	})
}

// unverifiedReplyCorrectness is the verdict for legacy replies. The reply text
// is never compared with the stored answer, so every reply counts as correct.
func unverifiedReplyCorrectness() bool {
	return true
}

type scoring struct {
	user     update.User
	chatID   int64
	source   string
	ref      string
	question string
	correct  bool
	seconds  int
}

func (p *Pipeline) score(ctx context.Context, in scoring) (Outcome, error) {
	stats, err := p.scorer.ProcessResponse(ctx,
		domain.Identity{
			UserID:    in.user.ID,
			FirstName: in.user.FirstName,
			LastName:  in.user.LastName,
			Username:  in.user.Username,
		},
		domain.ResponseEvent{
			UserID:          in.user.ID,
			QuestionID:      in.question,
			MessageRef:      in.ref,
			Correct:         in.correct,
			ResponseSeconds: in.seconds,
			ChatID:          in.chatID,
		},
	)

	logger := p.logger.WithFields(logging.Fields{
		"user_id":     in.user.ID,
		"chat_id":     in.chatID,
		"question_id": in.question,
		"source":      in.source,
	})

	if err != nil {
		logger.WithError(err).WithField("event", "quiz_scoring_failed").Error("failed to score response")
		return Outcome{}, nil
	}

	out := Outcome{Processed: true, Correct: in.correct, Stats: stats}

	if in.chatID != 0 && p.notifier != nil {
		text := feedback.Render(stats, in.correct, feedback.EstimatePoints(in.correct, in.seconds), in.seconds, p.now())
		out.Notified = p.notifier.Send(ctx, in.chatID, text)
	}
	if !out.Notified {
		logger.WithField("event", "quiz_feedback_undelivered").Warn("feedback message was not delivered")
	}

	err = p.publisher.PublishResponse(ctx, events.ResponseRecorded{
		UserID:          in.user.ID,
		QuestionID:      in.question,
		Source:          in.source,
		Correct:         in.correct,
		ResponseSeconds: in.seconds,
		TotalPoints:     stats.TotalPoints,
		Level:           stats.Level,
		OccurredAt:      p.now().UTC(),
	})
	if err != nil {
		logger.WithError(err).WithField("event", "quiz_event_publish_failed").Warn("failed to publish response event")
	}

	logger.WithFields(logging.Fields{
		"event":    "quiz_answer_processed",
		"correct":  in.correct,
		"seconds":  in.seconds,
		"notified": out.Notified,
	}).Info("quiz answer processed")

	return out, nil
}
