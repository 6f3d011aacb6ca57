// Package study runs private study sessions started with parametrized
// commands such as /constitucion10 or /falladas5.
package study

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"opomelilla_bot/internal/logging"
)

// Session statuses.
const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
)

// Session is the persisted state of a user's study session. A user has at
// most one session document.
type Session struct {
	ID        string     `bson:"session_id"`
	UserID    int64      `bson:"user_id"`
	Subject   string     `bson:"subject"`
	Type      string     `bson:"type"`
	Quantity  int        `bson:"quantity"`
	Answered  int        `bson:"answered"`
	Correct   int        `bson:"correct"`
	Status    string     `bson:"status"`
	StartedAt time.Time  `bson:"started_at"`
	EndedAt   *time.Time `bson:"ended_at,omitempty"`
}

type sessionCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Service manages study sessions.
type Service struct {
	sessions sessionCollection
	logger   *logrus.Entry
	now      func() time.Time
	newID    func() string
}

// NewService constructs a Service.
func NewService(sessions sessionCollection, logger *logrus.Entry) *Service {
	return &Service{
		sessions: sessions,
		logger:   logging.OrDefault(logger),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Start opens a session for the command in text. Users with an active session
// are told to stop it first.
func (s *Service) Start(ctx context.Context, userID int64, text string) (string, error) {
	if err := s.validate(ctx, userID); err != nil {
		return "", err
	}

	cmd, ok := Parse(text)
	if !ok {
		return "", fmt.Errorf("not a study command: %q", text)
	}

	current, found, err := s.active(ctx, userID)
	if err != nil {
		return "", err
	}
	if found {
		return fmt.Sprintf("⚠️ Ya tienes una sesión activa de <b>%s</b> (%d/%d).\n\n"+
			"💡 Usa /progreso para ver tu avance o /stop para cancelarla.",
			Command{Subject: current.Subject}.SubjectName(), current.Answered, current.Quantity), nil
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	session := Session{
		ID:        s.newID(),
		UserID:    userID,
		Subject:   cmd.Subject,
		Type:      cmd.Type,
		Quantity:  cmd.Quantity,
		Status:    StatusActive,
		StartedAt: now,
	}

	_, err = s.sessions.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$set": bson.M{
				"session_id": session.ID,
				"subject":    session.Subject,
				"type":       session.Type,
				"quantity":   session.Quantity,
				"answered":   0,
				"correct":    0,
				"status":     StatusActive,
				"started_at": now,
			},
			"$unset":       bson.M{"ended_at": ""},
			"$setOnInsert": bson.M{"user_id": userID},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return "", fmt.Errorf("start study session: %w", err)
	}

	s.logger.WithFields(logging.Fields{
		"event":      "study_session_started",
		"user_id":    userID,
		"subject":    cmd.Subject,
		"type":       cmd.Type,
		"quantity":   cmd.Quantity,
		"session_id": session.ID,
	}).Info("study session started")

	kind := "preguntas"
	if cmd.Type == TypeFailed {
		kind = "preguntas falladas"
	}

	return fmt.Sprintf("📚 <b>Sesión de estudio iniciada</b>\n\n"+
		"🎯 Materia: <b>%s</b>\n"+
		"📝 %d %s\n\n"+
		"💡 Usa /progreso para ver tu avance o /stop para cancelar.",
		cmd.SubjectName(), cmd.Quantity, kind), nil
}

// Stop cancels the active session, if any.
func (s *Service) Stop(ctx context.Context, userID int64) (string, error) {
	if err := s.validate(ctx, userID); err != nil {
		return "", err
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	result, err := s.sessions.UpdateOne(ctx,
		bson.M{"user_id": userID, "status": StatusActive},
		bson.M{"$set": bson.M{"status": StatusCancelled, "ended_at": now}},
	)
	if err != nil {
		return "", fmt.Errorf("stop study session: %w", err)
	}

	if result == nil || result.MatchedCount == 0 {
		return "ℹ️ No tienes ninguna sesión de estudio activa.", nil
	}

	s.logger.WithFields(logging.Fields{
		"event":   "study_session_stopped",
		"user_id": userID,
	}).Info("study session stopped")

	return "🛑 <b>Sesión de estudio cancelada.</b>\n\n💡 Inicia otra cuando quieras, por ejemplo /constitucion10.", nil
}

// Progress describes the active session.
func (s *Service) Progress(ctx context.Context, userID int64) (string, error) {
	if err := s.validate(ctx, userID); err != nil {
		return "", err
	}

	session, found, err := s.active(ctx, userID)
	if err != nil {
		return "", err
	}
	if !found {
		return "ℹ️ No tienes ninguna sesión de estudio activa.\n\n💡 Empieza una con /constitucion10 o /falladas5.", nil
	}

	accuracy := 0
	if session.Answered > 0 {
		accuracy = session.Correct * 100 / session.Answered
	}

	var b strings.Builder
	b.WriteString("📊 <b>PROGRESO DE LA SESIÓN</b>\n\n")
	fmt.Fprintf(&b, "🎯 Materia: <b>%s</b>\n", Command{Subject: session.Subject}.SubjectName())
	fmt.Fprintf(&b, "📝 Respondidas: <b>%d/%d</b>\n", session.Answered, session.Quantity)
	fmt.Fprintf(&b, "✅ Correctas: <b>%d</b>\n", session.Correct)
	fmt.Fprintf(&b, "📈 Precisión: <b>%d%%</b>", accuracy)

	return b.String(), nil
}

func (s *Service) active(ctx context.Context, userID int64) (Session, bool, error) {
	var session Session
	err := s.sessions.FindOne(ctx, bson.M{"user_id": userID, "status": StatusActive}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("find study session: %w", err)
	}
	return session, true, nil
}

func (s *Service) validate(ctx context.Context, userID int64) error {
	if s == nil || s.sessions == nil {
		return errors.New("study service is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if userID == 0 {
		return errors.New("user id is required")
	}
	return nil
}
