package domain

import "time"

// Plan names accepted in invoice payloads.
const (
	PlanBasic   = "basic"
	PlanPremium = "premium"
)

// Plan describes a purchasable subscription tier.
type Plan struct {
	Name                string
	DisplayName         string
	PriceCents          int
	Currency            string
	Description         string
	DailyQuestionsLimit int // 0 means unlimited
	AdvancedStats       bool
	Simulations         bool
	AIAnalysis          bool
}

// Subscription is an activated plan for a user.
type Subscription struct {
	ID                      string    `bson:"_id" json:"id"`
	UserID                  int64     `bson:"user_id" json:"user_id"`
	Plan                    string    `bson:"plan" json:"plan"`
	AmountCents             int       `bson:"amount_cents" json:"amount_cents"`
	Currency                string    `bson:"currency" json:"currency"`
	TelegramPaymentChargeID string    `bson:"telegram_payment_charge_id" json:"telegram_payment_charge_id"`
	ProviderPaymentChargeID string    `bson:"provider_payment_charge_id" json:"provider_payment_charge_id"`
	Active                  bool      `bson:"active" json:"active"`
	CreatedAt               time.Time `bson:"created_at" json:"created_at"`
	ExpiresAt               time.Time `bson:"expires_at" json:"expires_at"`
}
