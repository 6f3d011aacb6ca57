// Package telegram hosts the outbound Telegram Bot API client. Updates arrive
// through the webhook, so the client never polls.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"opomelilla_bot/internal/config"
	"opomelilla_bot/internal/logging"
)

type botAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendInvoice(ctx context.Context, params *bot.SendInvoiceParams) (*models.Message, error)
	AnswerPreCheckoutQuery(ctx context.Context, params *bot.AnswerPreCheckoutQueryParams) (bool, error)
	SetWebhook(ctx context.Context, params *bot.SetWebhookParams) (bool, error)
}

// AllowedUpdates lists the update kinds the webhook is registered for.
var AllowedUpdates = []string{
	"message",
	"poll_answer",
	"pre_checkout_query",
}

var createBot = func(token string, options ...bot.Option) (botAPI, error) {
	return bot.New(token, options...)
}

// Client wraps the Telegram bot instance and logging dependencies.
type Client struct {
	api    botAPI
	logger *logrus.Entry
}

// NewClient initializes the Telegram bot without calling getMe, so process
// start does not depend on Telegram being reachable.
func NewClient(cfg config.Config, logger *logrus.Entry) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	api, err := createBot(cfg.TelegramToken,
		bot.WithSkipGetMe(),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	return &Client{
		api:    api,
		logger: logger,
	}, nil
}

// SendMessage delivers a chat message.
func (c *Client) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	if params == nil {
		return nil, errors.New("send message params are required")
	}

	msg, err := c.api.SendMessage(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	return msg, nil
}

// SendInvoice delivers a payment invoice.
func (c *Client) SendInvoice(ctx context.Context, params *bot.SendInvoiceParams) error {
	if params == nil {
		return errors.New("send invoice params are required")
	}

	if _, err := c.api.SendInvoice(ctx, params); err != nil {
		return fmt.Errorf("send invoice: %w", err)
	}

	c.logger.WithFields(logging.Fields{
		"event":    "invoice_sent",
		"chat_id":  params.ChatID,
		"currency": params.Currency,
	}).Info("invoice sent")

	return nil
}

// AnswerPreCheckoutQuery approves or rejects a pending checkout. errorMessage
// is only sent when ok is false.
func (c *Client) AnswerPreCheckoutQuery(ctx context.Context, queryID string, ok bool, errorMessage string) error {
	params := &bot.AnswerPreCheckoutQueryParams{
		PreCheckoutQueryID: queryID,
		OK:                 ok,
	}
	if !ok {
		params.ErrorMessage = errorMessage
	}

	if _, err := c.api.AnswerPreCheckoutQuery(ctx, params); err != nil {
		return fmt.Errorf("answer pre-checkout query: %w", err)
	}

	return nil
}

// RegisterWebhook points Telegram at the public webhook URL.
func (c *Client) RegisterWebhook(ctx context.Context, url, secret string) error {
	if strings.TrimSpace(url) == "" {
		return errors.New("webhook url is required")
	}

	ok, err := c.api.SetWebhook(ctx, &bot.SetWebhookParams{
		URL:            url,
		SecretToken:    secret,
		AllowedUpdates: AllowedUpdates,
	})
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	if !ok {
		return errors.New("set webhook: telegram returned false")
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_webhook_registered",
		"allowed_updates": AllowedUpdates,
		"secret_set":      secret != "",
	}).Info("telegram webhook registered")

	return nil
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram client error")
	}
}
