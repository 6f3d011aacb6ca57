package telegram

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"opomelilla_bot/internal/config"
)

type fakeAPI struct {
	messages    []*bot.SendMessageParams
	invoices    []*bot.SendInvoiceParams
	preCheckout []*bot.AnswerPreCheckoutQueryParams
	webhooks    []*bot.SetWebhookParams

	err       error
	webhookOK bool
}

func (f *fakeAPI) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.messages = append(f.messages, params)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Message{ID: len(f.messages)}, nil
}

func (f *fakeAPI) SendInvoice(_ context.Context, params *bot.SendInvoiceParams) (*models.Message, error) {
	f.invoices = append(f.invoices, params)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Message{}, nil
}

func (f *fakeAPI) AnswerPreCheckoutQuery(_ context.Context, params *bot.AnswerPreCheckoutQueryParams) (bool, error) {
	f.preCheckout = append(f.preCheckout, params)
	return f.err == nil, f.err
}

func (f *fakeAPI) SetWebhook(_ context.Context, params *bot.SetWebhookParams) (bool, error) {
	f.webhooks = append(f.webhooks, params)
	return f.webhookOK, f.err
}

func newTestClient(api *fakeAPI) (*Client, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	return &Client{api: api, logger: logrus.NewEntry(logger)}, hook
}

func TestNewClientCreatesBot(t *testing.T) {
	origCreateBot := createBot
	defer func() { createBot = origCreateBot }()

	var gotToken string
	var gotOptions []bot.Option
	api := &fakeAPI{}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		gotToken = token
		gotOptions = options
		return api, nil
	}

	cfg := config.Config{TelegramToken: "token-123"}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	client, err := NewClient(cfg, logrus.NewEntry(logger))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if client == nil || client.api == nil {
		t.Fatalf("expected client and api to be initialized")
	}
	if gotToken != cfg.TelegramToken {
		t.Fatalf("expected token %q, got %q", cfg.TelegramToken, gotToken)
	}
	if len(gotOptions) != 2 {
		t.Fatalf("expected 2 bot options (skip getMe, error handler), got %d", len(gotOptions))
	}
}

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := NewClient(config.Config{TelegramToken: "  "}, nil); err == nil {
		t.Fatalf("expected error for blank token")
	}
}

func TestNewClientPropagatesBotError(t *testing.T) {
	origCreateBot := createBot
	defer func() { createBot = origCreateBot }()

	expected := errors.New("boom")
	createBot = func(string, ...bot.Option) (botAPI, error) {
		return nil, expected
	}

	_, err := NewClient(config.Config{TelegramToken: "token"}, nil)
	if !errors.Is(err, expected) {
		t.Fatalf("expected error %v, got %v", expected, err)
	}
}

func TestSendMessageWrapsTransportError(t *testing.T) {
	api := &fakeAPI{err: bot.ErrorForbidden}
	client, _ := newTestClient(api)

	_, err := client.SendMessage(context.Background(), &bot.SendMessageParams{ChatID: int64(1), Text: "hola"})
	if !errors.Is(err, bot.ErrorForbidden) {
		t.Fatalf("expected wrapped forbidden error, got %v", err)
	}
	if len(api.messages) != 1 {
		t.Fatalf("expected one call, got %d", len(api.messages))
	}
}

func TestAnswerPreCheckoutQueryOnlySendsErrorMessageOnReject(t *testing.T) {
	api := &fakeAPI{}
	client, _ := newTestClient(api)

	if err := client.AnswerPreCheckoutQuery(context.Background(), "q-1", true, "ignored"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.AnswerPreCheckoutQuery(context.Background(), "q-2", false, "Pago inválido"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := api.preCheckout[0]; got.PreCheckoutQueryID != "q-1" || !got.OK || got.ErrorMessage != "" {
		t.Fatalf("unexpected approval params: %+v", got)
	}
	if got := api.preCheckout[1]; got.PreCheckoutQueryID != "q-2" || got.OK || got.ErrorMessage != "Pago inválido" {
		t.Fatalf("unexpected rejection params: %+v", got)
	}
}

func TestRegisterWebhookLogsAndPassesSecret(t *testing.T) {
	api := &fakeAPI{webhookOK: true}
	client, hook := newTestClient(api)

	if err := client.RegisterWebhook(context.Background(), "https://bot.example.com/webhook", "s3cret"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := api.webhooks[0]
	if got.URL != "https://bot.example.com/webhook" || got.SecretToken != "s3cret" {
		t.Fatalf("unexpected webhook params: %+v", got)
	}
	if len(got.AllowedUpdates) != len(AllowedUpdates) {
		t.Fatalf("expected allowed updates %v, got %v", AllowedUpdates, got.AllowedUpdates)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "telegram_webhook_registered" {
		t.Fatalf("expected registration log entry, got %+v", entry)
	}
}

func TestRegisterWebhookFailsWhenTelegramRefuses(t *testing.T) {
	client, _ := newTestClient(&fakeAPI{webhookOK: false})

	if err := client.RegisterWebhook(context.Background(), "https://bot.example.com/webhook", ""); err == nil {
		t.Fatalf("expected error when telegram returns false")
	}
	if err := client.RegisterWebhook(context.Background(), "", ""); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

func TestErrorHandlerLogs(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	handler := errorHandler(logrus.NewEntry(logger))

	handler(nil)
	if len(hook.AllEntries()) != 0 {
		t.Fatalf("expected nil error to be ignored")
	}

	handler(errors.New("network down"))
	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "telegram_error" {
		t.Fatalf("expected telegram_error entry, got %+v", entry)
	}
}
