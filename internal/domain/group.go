package domain

import "time"

// Group is the membership record of a Telegram chat where people joined.
type Group struct {
	ChatID        int64     `bson:"chat_id" json:"chat_id"`
	Title         string    `bson:"title" json:"title"`
	MembersJoined int       `bson:"members_joined" json:"members_joined"`
	JoinUpdates   int       `bson:"join_updates" json:"join_updates"`
	FirstJoinAt   time.Time `bson:"first_join_at" json:"first_join_at"`
	LastJoinAt    time.Time `bson:"last_join_at" json:"last_join_at"`
}
