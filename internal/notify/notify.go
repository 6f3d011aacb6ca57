// Package notify delivers chat messages, retrying once in plain text when
// Telegram rejects the rich HTML rendering.
package notify

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"opomelilla_bot/internal/logging"
)

// Transport sends a single message to Telegram.
type Transport interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

var markupPattern = regexp.MustCompile(`<[^>]*>`)

// StripMarkup removes every HTML tag from text.
func StripMarkup(text string) string {
	return markupPattern.ReplaceAllString(text, "")
}

// Sender delivers notifications. It never returns errors: the caller only
// learns whether some rendering reached the chat.
type Sender struct {
	transport Transport
	logger    *logrus.Entry
}

// NewSender constructs a Sender over the given transport.
func NewSender(transport Transport, logger *logrus.Entry) *Sender {
	return &Sender{
		transport: transport,
		logger:    logging.OrDefault(logger),
	}
}

// Send delivers text as HTML. When Telegram explicitly rejects it, exactly one
// retry is made with the markup stripped and no parse mode. Transport failures
// are logged and reported as false.
func (s *Sender) Send(ctx context.Context, chatID int64, text string) bool {
	if s == nil || s.transport == nil {
		return false
	}

	fields := logging.Fields{"chat_id": chatID}

	_, err := s.transport.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err == nil {
		return true
	}

	if !IsRejection(err) {
		s.logger.WithFields(fields).WithField("event", "notify_transport_failed").WithError(err).Error("message delivery failed")
		return false
	}

	s.logger.WithFields(fields).WithField("event", "notify_html_rejected").WithError(err).Warn("html message rejected, retrying as plain text")

	_, err = s.transport.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   StripMarkup(text),
	})
	if err != nil {
		s.logger.WithFields(fields).WithField("event", "notify_plain_failed").WithError(err).Error("plain text retry failed")
		return false
	}

	return true
}

// IsRejection reports whether Telegram answered the request with ok=false,
// as opposed to the request failing in transit.
func IsRejection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, bot.ErrorBadRequest) ||
		errors.Is(err, bot.ErrorForbidden) ||
		errors.Is(err, bot.ErrorUnauthorized) ||
		errors.Is(err, bot.ErrorNotFound) ||
		errors.Is(err, bot.ErrorConflict) {
		return true
	}

	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		return true
	}
	var migrate *bot.MigrateError
	if errors.As(err, &migrate) {
		return true
	}

	// Remaining error codes are reported by the client without a sentinel.
	return strings.Contains(err.Error(), apiErrorMarker)
}

const apiErrorMarker = "error response from telegram"
