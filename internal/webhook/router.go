// Package webhook receives Telegram updates over HTTP and routes each one to
// exactly one handling branch.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"opomelilla_bot/internal/command"
	"opomelilla_bot/internal/config"
	"opomelilla_bot/internal/domain"
	"opomelilla_bot/internal/logging"
	"opomelilla_bot/internal/payment"
	"opomelilla_bot/internal/quiz"
	"opomelilla_bot/internal/tournament"
	"opomelilla_bot/internal/update"
)

// HandledByTournament marks poll answers claimed by the tournament subsystem.
const HandledByTournament = "tournament"

const tournamentInitTimeout = 2 * time.Second

const preCheckoutRejectedText = "Error validando el pago. Inténtalo de nuevo."

// Response is the JSON envelope returned to Telegram for every update.
type Response struct {
	OK                 bool   `json:"ok"`
	Type               string `json:"type,omitempty"`
	HandledBy          string `json:"handledBy,omitempty"`
	PreCheckoutHandled *bool  `json:"preCheckoutHandled,omitempty"`
	PaymentProcessed   *bool  `json:"paymentProcessed,omitempty"`
	Processed          bool   `json:"processed,omitempty"`
	ResponseSent       *bool  `json:"responseSent,omitempty"`
	Message            string `json:"message,omitempty"`
}

// Tournament claims poll answers and must be bootstrapped once per process.
type Tournament interface {
	EnsureInitialized(ctx context.Context) error
	HandlePollAnswer(ctx context.Context, answer update.PollAnswer) (bool, error)
}

// Quiz scores poll answers and legacy replies.
type Quiz interface {
	AnswerPoll(ctx context.Context, answer update.PollAnswer) (quiz.Outcome, error)
	AnswerReply(ctx context.Context, msg update.Message, questionID string) (quiz.Outcome, error)
}

// MemberRegistrar creates profiles for users joining a group.
type MemberRegistrar interface {
	EnsureMember(ctx context.Context, identity domain.Identity) (bool, error)
}

// JoinRecorder counts human members joining a group chat.
type JoinRecorder interface {
	RecordJoins(ctx context.Context, chatID int64, title string, joined int) (bool, error)
}

// PaymentProcessor activates subscriptions for settled payments.
type PaymentProcessor interface {
	ProcessSuccessfulPayment(ctx context.Context, userID int64, p update.SuccessfulPayment) (domain.Subscription, error)
}

// PreCheckoutAnswerer answers pre-checkout queries.
type PreCheckoutAnswerer interface {
	AnswerPreCheckoutQuery(ctx context.Context, queryID string, ok bool, errorMessage string) error
}

// CommandDispatcher runs bot commands.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, req command.Request) command.Result
}

// Sender delivers chat messages.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) bool
}

// Dependencies wires the Router collaborators.
type Dependencies struct {
	Tournament  Tournament
	Quiz        Quiz
	Members     MemberRegistrar
	Groups      JoinRecorder
	Payments    PaymentProcessor
	PreCheckout PreCheckoutAnswerer
	Commands    CommandDispatcher
	Sender      Sender
}

// Router maps a classified update to its branch.
type Router struct {
	deps               Dependencies
	supportContact     string
	preCheckoutTimeout time.Duration
	logger             *logrus.Entry
}

// NewRouter constructs a Router.
func NewRouter(cfg config.Config, deps Dependencies, logger *logrus.Entry) *Router {
	timeout := cfg.PreCheckoutTimeout
	if timeout <= 0 {
		timeout = config.DefaultPreCheckoutTimeout
	}
	support := cfg.SupportContact
	if support == "" {
		support = config.DefaultSupportContact
	}

	return &Router{
		deps:               deps,
		supportContact:     support,
		preCheckoutTimeout: timeout,
		logger:             logging.OrDefault(logger),
	}
}

// Route handles one inbound update. Only unexpected failures are returned;
// benign no-ops and handled downstream errors still produce an OK response.
func (r *Router) Route(ctx context.Context, in update.Inbound) (Response, error) {
	kind := update.Classify(in)
	if kind == update.KindHealthCheck {
		return Response{OK: true, Type: kind.String()}, nil
	}

	meta := update.Describe(in)
	logger := r.logger.WithFields(logging.Fields{
		"update_id":   meta.UpdateID,
		"update_type": meta.UpdateType,
	})
	if meta.UserID != 0 {
		logger = logger.WithField("user_id", meta.UserID)
	}
	if meta.ChatID != 0 {
		logger = logger.WithField("chat_id", meta.ChatID)
	}
	if requestID := logging.RequestID(ctx); requestID != "" {
		logger = logger.WithField("request_id", requestID)
	}

	if kind == update.KindPreCheckout {
		return r.preCheckout(ctx, logger, *in.PreCheckoutQuery), nil
	}

	r.ensureTournament(ctx, logger)

	switch kind {
	case update.KindPollAnswer:
		return r.pollAnswer(ctx, logger, *in.PollAnswer)
	case update.KindNewMembers:
		return r.newMembers(ctx, logger, *in.Message), nil
	case update.KindPayment:
		return r.payment(ctx, logger, *in.Message), nil
	case update.KindBotAuthor:
		logger.WithField("event", "bot_message_ignored").Debug("ignoring message from bot")
		return Response{OK: true, Type: kind.String()}, nil
	case update.KindCommand:
		return r.command(ctx, logger, *in.Message), nil
	case update.KindLegacyReply:
		return r.legacyReply(ctx, logger, *in.Message)
	default:
		logger.WithField("event", "update_ignored").Debug("update ignored")
		return Response{OK: true}, nil
	}
}

func (r *Router) ensureTournament(ctx context.Context, logger *logrus.Entry) {
	if r.deps.Tournament == nil {
		return
	}

	initCtx, cancel := context.WithTimeout(ctx, tournamentInitTimeout)
	defer cancel()

	err := r.deps.Tournament.EnsureInitialized(initCtx)
	switch {
	case err == nil:
	case errors.Is(err, tournament.ErrBootstrapInProgress):
		logger.WithField("event", "tournament_init_pending").Debug("tournament bootstrap already running")
	default:
		logger.WithError(err).WithField("event", "tournament_init_failed").Warn("tournament bootstrap failed, will retry")
	}
}

func (r *Router) preCheckout(ctx context.Context, logger *logrus.Entry, q update.PreCheckoutQuery) Response {
	ok, reason := payment.ValidatePreCheckout(q)

	errorMessage := ""
	if !ok {
		errorMessage = reason
		if errorMessage == "" {
			errorMessage = preCheckoutRejectedText
		}
	}

	fields := logging.Fields{
		"event":           "pre_checkout_answered",
		"pre_checkout_id": q.ID,
		"approved":        ok,
	}
	if reason != "" {
		fields["reason"] = reason
	}

	if r.deps.PreCheckout == nil {
		logger.WithField("event", "pre_checkout_unanswered").Error("no pre-checkout answerer configured")
	} else {
		answerCtx, cancel := context.WithTimeout(ctx, r.preCheckoutTimeout)
		err := r.deps.PreCheckout.AnswerPreCheckoutQuery(answerCtx, q.ID, ok, errorMessage)
		cancel()
		if err != nil {
			logger.WithFields(fields).WithError(err).Error("failed to answer pre-checkout query")
		} else {
			logger.WithFields(fields).Info("pre-checkout query answered")
		}
	}

	return Response{OK: true, Type: update.KindPreCheckout.String(), PreCheckoutHandled: &ok}
}

func (r *Router) pollAnswer(ctx context.Context, logger *logrus.Entry, answer update.PollAnswer) (Response, error) {
	if r.deps.Tournament != nil {
		claimed, err := r.deps.Tournament.HandlePollAnswer(ctx, answer)
		if err != nil {
			logger.WithError(err).WithField("event", "tournament_poll_failed").Warn("tournament could not handle poll answer")
		}
		if claimed {
			return Response{OK: true, Type: update.KindPollAnswer.String(), HandledBy: HandledByTournament}, nil
		}
	}

	if r.deps.Quiz == nil {
		return Response{}, errors.New("quiz pipeline is not configured")
	}

	out, err := r.deps.Quiz.AnswerPoll(ctx, answer)
	if err != nil {
		return Response{}, fmt.Errorf("process poll answer: %w", err)
	}

	return Response{OK: true, Type: update.KindPollAnswer.String(), Processed: out.Processed}, nil
}

func (r *Router) newMembers(ctx context.Context, logger *logrus.Entry, msg update.Message) Response {
	joined := 0
	for _, member := range msg.NewChatMembers {
		memberLogger := logger.WithField("member_id", member.ID)
		if member.IsBot {
			memberLogger.WithField("event", "member_bot_skipped").Debug("skipping bot member")
			continue
		}

		joined++
		r.welcome(ctx, memberLogger, msg.Chat.ID, member)
	}

	if r.deps.Groups != nil {
		if _, err := r.deps.Groups.RecordJoins(ctx, msg.Chat.ID, msg.Chat.Title, joined); err != nil {
			logger.WithError(err).WithField("event", "group_record_failed").Warn("failed to record group joins")
		}
	}

	return Response{OK: true, Type: update.KindNewMembers.String(), Processed: true}
}

// welcome registers one member and greets them. Failures are contained to
// this member.
func (r *Router) welcome(ctx context.Context, logger *logrus.Entry, chatID int64, member update.User) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.WithFields(logging.Fields{
				"event": "member_panic",
				"panic": fmt.Sprint(recovered),
			}).Error("welcome handling panicked")
		}
	}()

	if r.deps.Members != nil {
		created, err := r.deps.Members.EnsureMember(ctx, domain.Identity{
			UserID:    member.ID,
			FirstName: member.FirstName,
			LastName:  member.LastName,
			Username:  member.Username,
		})
		if err != nil {
			logger.WithError(err).WithField("event", "member_register_failed").Warn("failed to register member")
		} else {
			logger.WithFields(logging.Fields{
				"event":   "member_registered",
				"created": created,
			}).Info("member registered")
		}
	}

	if r.deps.Sender == nil || !r.deps.Sender.Send(ctx, chatID, WelcomeText(member)) {
		logger.WithField("event", "member_welcome_failed").Warn("welcome message was not delivered")
	}
}

// WelcomeText greets a member who joined the group.
func WelcomeText(member update.User) string {
	name := member.Username
	if name == "" {
		name = member.FirstName
	}

	return fmt.Sprintf("🎉 ¡Bienvenido/a @%s!\n\n"+
		"🎯 Te has unido al grupo de OPOMELILLA\n"+
		"🎁 Has recibido %d puntos de bienvenida\n"+
		"📚 ¡Ya puedes empezar a responder preguntas!\n\n"+
		"💡 Usa /start en privado para configurar tu cuenta", name, domain.WelcomeBonusPoints)
}

func (r *Router) payment(ctx context.Context, logger *logrus.Entry, msg update.Message) Response {
	p := *msg.SuccessfulPayment
	processed := false

	if r.deps.Payments == nil {
		logger.WithField("event", "payment_unprocessed").Error("no payment processor configured")
	} else if _, err := r.deps.Payments.ProcessSuccessfulPayment(ctx, msg.From.ID, p); err != nil {
		logger.WithError(err).WithField("event", "payment_failed").Error("failed to process successful payment")
	} else {
		processed = true
	}

	text := payment.FailureText(r.supportContact)
	if processed {
		text = payment.Confirmation(payment.PlanFromPayload(p.InvoicePayload), p.TotalAmount, r.supportContact)
	}
	r.send(ctx, logger, msg.Chat.ID, text)

	return Response{OK: true, Type: update.KindPayment.String(), PaymentProcessed: &processed}
}

func (r *Router) command(ctx context.Context, logger *logrus.Entry, msg update.Message) Response {
	if r.deps.Commands == nil {
		logger.WithField("event", "command_unhandled").Error("no command dispatcher configured")
		return Response{OK: true, Type: update.KindCommand.String()}
	}

	result := r.deps.Commands.Dispatch(ctx, command.NewRequest(msg))
	if result.Kind == command.KindAlreadyHandled {
		sent := true
		return Response{OK: true, Type: update.KindCommand.String(), ResponseSent: &sent}
	}

	sent := r.send(ctx, logger, msg.Chat.ID, result.Text)
	return Response{OK: true, Type: update.KindCommand.String(), ResponseSent: &sent}
}

func (r *Router) legacyReply(ctx context.Context, logger *logrus.Entry, msg update.Message) (Response, error) {
	questionID, ok := update.ExtractQuestionID(msg.ReplyToMessage.Text)
	if !ok {
		logger.WithField("event", "legacy_reply_no_id").Info("reply does not reference a question")
		return Response{OK: true, Type: update.KindLegacyReply.String()}, nil
	}

	if r.deps.Quiz == nil {
		return Response{}, errors.New("quiz pipeline is not configured")
	}

	out, err := r.deps.Quiz.AnswerReply(ctx, msg, questionID)
	if err != nil {
		return Response{}, fmt.Errorf("process legacy reply: %w", err)
	}

	return Response{OK: true, Type: update.KindLegacyReply.String(), Processed: out.Processed}, nil
}

func (r *Router) send(ctx context.Context, logger *logrus.Entry, chatID int64, text string) bool {
	if r.deps.Sender == nil {
		logger.WithField("event", "sender_missing").Error("no message sender configured")
		return false
	}
	return r.deps.Sender.Send(ctx, chatID, text)
}
