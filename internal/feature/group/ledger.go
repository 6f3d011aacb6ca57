// Package group keeps per-chat membership counters fed by new-member updates.
package group

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

	"opomelilla_bot/internal/logging"
)

type groupCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// JoinLedger counts the people who join each group chat.
type JoinLedger struct {
	groups groupCollection
	logger *logrus.Entry
	now    func() time.Time
}

// NewJoinLedger constructs a JoinLedger over the groups collection.
func NewJoinLedger(groups groupCollection, logger *logrus.Entry) *JoinLedger {
	return &JoinLedger{
		groups: groups,
		logger: logging.OrDefault(logger),
		now:    time.Now,
	}
}

// RecordJoins adds joined human members to the chat's counter and stamps
// last_join_at. The first recorded join creates the group document and
// reports firstJoin. A zero count writes nothing.
func (l *JoinLedger) RecordJoins(ctx context.Context, chatID int64, title string, joined int) (firstJoin bool, err error) {
	if l == nil || l.groups == nil {
		return false, errors.New("join ledger is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}
	if chatID == 0 {
		return false, errors.New("chat id is required")
	}
	if joined < 0 {
		return false, errors.New("joined must not be negative")
	}
	if joined == 0 {
		return false, nil
	}

	at := l.now().UTC().Truncate(time.Millisecond)

	set := bson.M{"last_join_at": at}
	if name := strings.TrimSpace(title); name != "" {
		set["title"] = name
	}

	result, err := l.groups.UpdateOne(ctx,
		bson.M{"chat_id": chatID},
		bson.M{
			"$set":         set,
			"$setOnInsert": bson.M{"chat_id": chatID, "first_join_at": at},
			"$inc":         bson.M{"members_joined": joined, "join_updates": 1},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("record group joins: %w", err)
	}

	firstJoin = result != nil && result.UpsertedCount > 0

	entry := l.logger.WithFields(logging.Fields{
		"chat_id":    chatID,
		"new_humans": joined,
	})
	if firstJoin {
		entry.WithField("event", "group_first_join").Info("first members joined group")
	} else {
		entry.WithField("event", "group_members_joined").Debug("members joined group")
	}

	return firstJoin, nil
}
