package domain

import "time"

// Question links a poll sent to a chat with the stored question it asks.
type Question struct {
	PollID       string    `bson:"poll_id" json:"poll_id"`
	QuestionID   string    `bson:"question_id" json:"question_id"`
	Source       string    `bson:"source,omitempty" json:"source,omitempty"`
	CorrectIndex int       `bson:"correct_index" json:"correct_index"`
	ChatID       int64     `bson:"chat_id" json:"chat_id"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}

// ResponseEvent is one answer to a question. It is built per poll answer or
// legacy reply, consumed once by the quiz pipeline and never stored here.
type ResponseEvent struct {
	UserID          int64
	QuestionID      string
	MessageRef      string
	Correct         bool
	ResponseSeconds int
	ChatID          int64
}

// UserStats is the aggregate snapshot returned by the gamification service.
type UserStats struct {
	UserID      int64 `json:"user_id"`
	TotalPoints int   `json:"total_points"`
	Level       int   `json:"level"`
	Rank        int   `json:"rank"`
	Streak      int   `json:"streak"`
	BestStreak  int   `json:"best_streak"`
	Answered    int   `json:"answered"`
	Correct     int   `json:"correct"`
	Accuracy    int   `json:"accuracy"`
	LastDelta   int   `json:"last_delta"`
}
