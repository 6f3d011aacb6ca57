package domain

import "time"

// WelcomeBonusPoints is granted once, when a profile is first created for a
// member joining a group.
const WelcomeBonusPoints = 25

// Identity is the externally-assigned Telegram identity of a user.
type Identity struct {
	UserID    int64
	FirstName string
	LastName  string
	Username  string
}

// Profile is the persisted view of a Telegram user, including the aggregate
// quiz counters maintained by the gamification service.
type Profile struct {
	UserID         int64     `bson:"user_id" json:"user_id"`
	Username       string    `bson:"username,omitempty" json:"username,omitempty"`
	FirstName      string    `bson:"first_name" json:"first_name"`
	LastName       string    `bson:"last_name,omitempty" json:"last_name,omitempty"`
	TotalPoints    int       `bson:"total_points" json:"total_points"`
	Level          int       `bson:"level" json:"level"`
	Streak         int       `bson:"streak" json:"streak"`
	BestStreak     int       `bson:"best_streak" json:"best_streak"`
	Answered       int       `bson:"answered" json:"answered"`
	Correct        int       `bson:"correct" json:"correct"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	LastActivityAt time.Time `bson:"last_activity_at" json:"last_activity_at"`
}
