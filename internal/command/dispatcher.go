// Package command dispatches bot commands to their handlers and returns a
// tagged result telling the router whether a reply still has to be sent.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/sirupsen/logrus"

	"opomelilla_bot/internal/domain"
	"opomelilla_bot/internal/feedback"
	"opomelilla_bot/internal/logging"
	"opomelilla_bot/internal/payment"
	"opomelilla_bot/internal/study"
	"opomelilla_bot/internal/subscription"
	"opomelilla_bot/internal/update"
)

// Kind tags a dispatch Result.
type Kind int

const (
	// KindReply carries text the router must send to the chat.
	KindReply Kind = iota
	// KindAlreadyHandled means the handler already talked to the user.
	KindAlreadyHandled
	// KindFailed carries the fixed error text after a handler failure.
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindReply:
		return "reply"
	case KindAlreadyHandled:
		return "already_handled"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Request is one command invocation.
type Request struct {
	// Command is the normalized first token, e.g. "/ranking".
	Command string
	// Args holds the remaining tokens in their original case.
	Args []string
	// Text is the original message text.
	Text   string
	UserID int64
	ChatID int64
	From   update.User
}

// Result is the outcome of Dispatch.
type Result struct {
	Kind Kind
	Text string
}

// NewRequest builds a Request from a command message.
func NewRequest(msg update.Message) Request {
	req := Request{
		Text:   msg.Text,
		ChatID: msg.Chat.ID,
	}
	if msg.From != nil {
		req.UserID = msg.From.ID
		req.From = *msg.From
	}

	fields := strings.Fields(msg.Text)
	if len(fields) > 0 {
		req.Command = Normalize(fields[0])
		req.Args = fields[1:]
	}

	return req
}

// Normalize lower-cases a command token and strips the "@botname" suffix.
func Normalize(token string) string {
	token = strings.ToLower(strings.TrimSpace(token))
	if at := strings.Index(token, "@"); at > 0 {
		token = token[:at]
	}
	return token
}

// ProfileRegistrar creates or refreshes a user profile.
type ProfileRegistrar interface {
	UpsertFromStart(ctx context.Context, identity domain.Identity) (bool, error)
}

// SubscriptionLookup finds the active subscription of a user.
type SubscriptionLookup interface {
	Active(ctx context.Context, userID int64) (domain.Subscription, bool, error)
}

// StudySessions drives private study sessions.
type StudySessions interface {
	Start(ctx context.Context, userID int64, text string) (string, error)
	Stop(ctx context.Context, userID int64) (string, error)
	Progress(ctx context.Context, userID int64) (string, error)
}

// StatsSource returns the gamification snapshot of a user.
type StatsSource interface {
	Stats(ctx context.Context, userID int64) (domain.UserStats, error)
}

// Leaderboard lists the top profiles by points.
type Leaderboard interface {
	Top(ctx context.Context, limit int) ([]domain.Profile, error)
}

// MessageSender delivers HTML text to a chat.
type MessageSender interface {
	Send(ctx context.Context, chatID int64, text string) bool
}

// InvoiceSender delivers payment invoices.
type InvoiceSender interface {
	SendInvoice(ctx context.Context, params *bot.SendInvoiceParams) error
}

// Options wires the Dispatcher collaborators.
type Options struct {
	Profiles       ProfileRegistrar
	Subscriptions  SubscriptionLookup
	Study          StudySessions
	Stats          StatsSource
	Leaderboard    Leaderboard
	Sender         MessageSender
	Invoices       InvoiceSender
	ProviderToken  string
	SupportContact string
	Logger         *logrus.Entry
}

type handlerFunc func(ctx context.Context, req Request) (Result, error)

// Dispatcher maps commands to handlers. Dispatch is total: every request
// yields a Result.
type Dispatcher struct {
	opts     Options
	logger   *logrus.Entry
	now      func() time.Time
	handlers map[string]handlerFunc
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(opts Options) *Dispatcher {
	d := &Dispatcher{
		opts:   opts,
		logger: logging.OrDefault(opts.Logger),
		now:    time.Now,
	}

	d.handlers = map[string]handlerFunc{
		"/start":    d.start,
		"/help":     reply(helpText),
		"/planes":   d.plans,
		"/premium":  d.invoice(domain.PlanPremium),
		"/basico":   d.invoice(domain.PlanBasic),
		"/mi_plan":  d.myPlan,
		"/stop":     d.stopStudy,
		"/progreso": d.progress,
		"/stats":    d.stats,
		"/ranking":  d.ranking,
	}

	return d
}

// Dispatch runs the handler for req. Handler errors and panics produce the
// fixed ErrorText with KindFailed.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (result Result) {
	logger := d.logger.WithFields(logging.Fields{
		"command": req.Command,
		"user_id": req.UserID,
		"chat_id": req.ChatID,
	})

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.WithFields(logging.Fields{
				"event": "command_panic",
				"panic": fmt.Sprint(recovered),
			}).Error("command handler panicked")
			result = Result{Kind: KindFailed, Text: ErrorText}
		}
	}()

	if req.UserID == 0 {
		return Result{Kind: KindReply, Text: missingUserText}
	}

	handler, ok := d.handlers[req.Command]
	if !ok {
		if study.IsStudyCommand(req.Text) {
			handler = d.startStudy
		} else {
			logger.WithField("event", "command_unknown").Debug("unknown command")
			return Result{Kind: KindReply, Text: UnknownText(req.Text)}
		}
	}

	result, err := handler(ctx, req)
	if err != nil {
		logger.WithError(err).WithField("event", "command_failed").Error("command handler failed")
		return Result{Kind: KindFailed, Text: ErrorText}
	}

	logger.WithFields(logging.Fields{
		"event":  "command_handled",
		"result": result.Kind.String(),
	}).Info("command handled")

	return result
}

func reply(text string) handlerFunc {
	return func(context.Context, Request) (Result, error) {
		return Result{Kind: KindReply, Text: text}, nil
	}
}

func (d *Dispatcher) start(ctx context.Context, req Request) (Result, error) {
	if d.opts.Profiles == nil {
		return Result{}, errors.New("profile registrar is not configured")
	}

	identity := domain.Identity{
		UserID:    req.UserID,
		FirstName: req.From.FirstName,
		LastName:  req.From.LastName,
		Username:  req.From.Username,
	}
	if _, err := d.opts.Profiles.UpsertFromStart(ctx, identity); err != nil {
		return Result{}, fmt.Errorf("register profile: %w", err)
	}

	return Result{Kind: KindReply, Text: welcomeText}, nil
}

func (d *Dispatcher) plans(ctx context.Context, req Request) (Result, error) {
	if d.opts.Sender == nil {
		return Result{}, errors.New("message sender is not configured")
	}
	if !d.opts.Sender.Send(ctx, req.ChatID, subscription.CatalogueText(d.opts.SupportContact)) {
		return Result{}, errors.New("send plan catalogue")
	}
	return Result{Kind: KindAlreadyHandled}, nil
}

func (d *Dispatcher) invoice(plan string) handlerFunc {
	return func(ctx context.Context, req Request) (Result, error) {
		if d.opts.Invoices == nil {
			return Result{}, errors.New("invoice sender is not configured")
		}

		params, err := payment.Invoice(plan, req.ChatID, req.UserID, d.opts.ProviderToken, d.now())
		if err != nil {
			return Result{}, fmt.Errorf("build %s invoice: %w", plan, err)
		}
		if err := d.opts.Invoices.SendInvoice(ctx, params); err != nil {
			return Result{}, fmt.Errorf("send %s invoice: %w", plan, err)
		}

		return Result{Kind: KindAlreadyHandled}, nil
	}
}

func (d *Dispatcher) myPlan(ctx context.Context, req Request) (Result, error) {
	if d.opts.Subscriptions == nil {
		return Result{}, errors.New("subscription lookup is not configured")
	}

	sub, found, err := d.opts.Subscriptions.Active(ctx, req.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("lookup subscription: %w", err)
	}
	if !found {
		return Result{Kind: KindReply, Text: noSubscriptionText}, nil
	}

	return Result{Kind: KindReply, Text: subscription.StatusText(sub, d.now())}, nil
}

func (d *Dispatcher) startStudy(ctx context.Context, req Request) (Result, error) {
	if d.opts.Study == nil {
		return Result{}, errors.New("study sessions are not configured")
	}
	text, err := d.opts.Study.Start(ctx, req.UserID, req.Text)
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindReply, Text: text}, nil
}

func (d *Dispatcher) stopStudy(ctx context.Context, req Request) (Result, error) {
	if d.opts.Study == nil {
		return Result{}, errors.New("study sessions are not configured")
	}
	text, err := d.opts.Study.Stop(ctx, req.UserID)
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindReply, Text: text}, nil
}

func (d *Dispatcher) progress(ctx context.Context, req Request) (Result, error) {
	if d.opts.Study == nil {
		return Result{}, errors.New("study sessions are not configured")
	}
	text, err := d.opts.Study.Progress(ctx, req.UserID)
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindReply, Text: text}, nil
}

func (d *Dispatcher) stats(ctx context.Context, req Request) (Result, error) {
	if d.opts.Stats == nil {
		return Result{}, errors.New("stats source is not configured")
	}

	stats, err := d.opts.Stats.Stats(ctx, req.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("load stats: %w", err)
	}
	if stats.Answered == 0 {
		return Result{Kind: KindReply, Text: noStatsText}, nil
	}

	return Result{Kind: KindReply, Text: feedback.FormatStats(stats)}, nil
}

// ranking accepts an optional period keyword ("semanal", "mensual"); every
// period currently shows the general ranking.
func (d *Dispatcher) ranking(ctx context.Context, req Request) (Result, error) {
	if d.opts.Leaderboard == nil {
		return Result{}, errors.New("leaderboard is not configured")
	}

	top, err := d.opts.Leaderboard.Top(ctx, RankingSize)
	if err != nil {
		return Result{}, fmt.Errorf("load ranking: %w", err)
	}

	if len(req.Args) > 0 {
		d.logger.WithFields(logging.Fields{
			"event":  "ranking_period_requested",
			"period": strings.ToLower(req.Args[0]),
		}).Debug("ranking period falls back to general ranking")
	}

	return Result{Kind: KindReply, Text: RankingText(top)}, nil
}
