// Package payment validates Telegram checkouts, issues invoices and turns
// successful payments into active subscriptions.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"opomelilla_bot/internal/domain"
	"opomelilla_bot/internal/events"
	"opomelilla_bot/internal/logging"
	"opomelilla_bot/internal/subscription"
	"opomelilla_bot/internal/update"
)

// Rejection texts shown by Telegram when a checkout is refused.
const (
	RejectInvalidPayload = "Pago no válido. Vuelve a solicitar la factura con /planes."
	RejectUnknownPlan    = "El plan seleccionado no existe."
	RejectAmount         = "El importe no coincide con el precio del plan."
	RejectCurrency       = "Solo se aceptan pagos en euros."
)

// ErrUserMismatch is returned when a payment payload belongs to another user.
var ErrUserMismatch = errors.New("payment payload belongs to a different user")

// Activator turns a settled payment into a subscription.
type Activator interface {
	Activate(ctx context.Context, in subscription.Activation) (domain.Subscription, error)
}

// ValidatePreCheckout decides whether a checkout may proceed. reason is the
// user-facing rejection text when ok is false.
func ValidatePreCheckout(q update.PreCheckoutQuery) (ok bool, reason string) {
	payload, err := ParsePayload(q.InvoicePayload)
	if err != nil {
		return false, RejectInvalidPayload
	}

	plan, found := subscription.PlanByName(payload.Plan)
	if !found {
		return false, RejectUnknownPlan
	}
	if q.TotalAmount != plan.PriceCents {
		return false, RejectAmount
	}
	if q.Currency != plan.Currency {
		return false, RejectCurrency
	}

	return true, ""
}

// Invoice builds the invoice for a plan purchase by userID.
func Invoice(planName string, chatID, userID int64, providerToken string, now time.Time) (*bot.SendInvoiceParams, error) {
	if strings.TrimSpace(providerToken) == "" {
		return nil, errors.New("payment provider token is not configured")
	}

	plan, ok := subscription.PlanByName(planName)
	if !ok {
		return nil, fmt.Errorf("unknown plan %q", planName)
	}

	return &bot.SendInvoiceParams{
		ChatID:        chatID,
		Title:         fmt.Sprintf("Plan %s - OpoMelilla", plan.DisplayName),
		Description:   fmt.Sprintf("Suscripción mensual a %s. %s. IVA (21%%) incluido.", plan.DisplayName, plan.Description),
		Payload:       NewPayload(plan.Name, userID, now),
		ProviderToken: providerToken,
		Currency:      plan.Currency,
		Prices: []models.LabeledPrice{
			{Label: fmt.Sprintf("Plan %s (1 mes)", plan.DisplayName), Amount: plan.PriceCents},
		},
		NeedName:            true,
		NeedEmail:           true,
		SendEmailToProvider: true,
	}, nil
}

// Confirmation renders the message sent after a successful payment.
func Confirmation(planName string, amountCents int, supportContact string) string {
	plan, ok := subscription.PlanByName(planName)
	if !ok {
		plan, _ = subscription.PlanByName(domain.PlanPremium)
	}

	var b strings.Builder
	b.WriteString("🎉 <b>¡PAGO CONFIRMADO!</b>\n\n")
	fmt.Fprintf(&b, "✅ <b>Tu suscripción al plan %s está ahora activa</b>\n\n", plan.DisplayName)
	b.WriteString("📋 <b>Detalles del pago:</b>\n")
	fmt.Fprintf(&b, "💰 Cantidad: %s\n", subscription.FormatPrice(amountCents))
	fmt.Fprintf(&b, "🆔 Suscripción: Plan %s\n\n", plan.DisplayName)
	b.WriteString("💡 Usa /mi_plan para ver tu estado de suscripción.\n\n")
	fmt.Fprintf(&b, "📞 <b>Soporte:</b> %s", supportContact)

	return b.String()
}

// FailureText is sent when a successful payment could not be recorded.
func FailureText(supportContact string) string {
	return "❌ Hubo un problema procesando tu pago. Contacta con soporte: " + supportContact
}

// Service records successful payments.
type Service struct {
	activator Activator
	publisher events.Publisher
	logger    *logrus.Entry
}

// NewService constructs a Service. A nil publisher disables event publishing.
func NewService(activator Activator, publisher events.Publisher, logger *logrus.Entry) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}

	return &Service{
		activator: activator,
		publisher: publisher,
		logger:    logging.OrDefault(logger),
	}
}

// ProcessSuccessfulPayment activates the purchased plan for userID.
func (s *Service) ProcessSuccessfulPayment(ctx context.Context, userID int64, p update.SuccessfulPayment) (domain.Subscription, error) {
	if s == nil || s.activator == nil {
		return domain.Subscription{}, errors.New("payment service is not initialized")
	}

	payload, err := ParsePayload(p.InvoicePayload)
	if err != nil {
		return domain.Subscription{}, err
	}
	if !userMatches(payload.UserID, userID) {
		return domain.Subscription{}, fmt.Errorf("%w: payload user %s, payer %d", ErrUserMismatch, payload.UserID, userID)
	}

	sub, err := s.activator.Activate(ctx, subscription.Activation{
		UserID:                  userID,
		Plan:                    payload.Plan,
		AmountCents:             p.TotalAmount,
		Currency:                p.Currency,
		TelegramPaymentChargeID: p.TelegramPaymentChargeID,
		ProviderPaymentChargeID: p.ProviderPaymentChargeID,
	})
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("activate subscription: %w", err)
	}

	s.logger.WithFields(logging.Fields{
		"event":        "payment_processed",
		"user_id":      userID,
		"plan":         sub.Plan,
		"amount_cents": p.TotalAmount,
	}).Info("payment processed")

	if err := s.publisher.PublishPayment(ctx, events.PaymentCompleted{
		UserID:                  userID,
		Plan:                    sub.Plan,
		AmountCents:             p.TotalAmount,
		Currency:                p.Currency,
		TelegramPaymentChargeID: p.TelegramPaymentChargeID,
		SubscriptionID:          sub.ID,
	}); err != nil {
		s.logger.WithField("event", "payment_event_failed").WithError(err).Warn("failed to publish payment event")
	}

	return sub, nil
}
