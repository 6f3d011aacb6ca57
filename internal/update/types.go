// Package update models the inbound Telegram payloads consumed by the webhook
// and classifies each one into exactly one handling branch.
package update

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// User is the sender identity assigned by Telegram.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Mention returns "@username" when available and the first name otherwise.
func (u User) Mention() string {
	if strings.TrimSpace(u.Username) != "" {
		return "@" + strings.TrimSpace(u.Username)
	}
	return u.FirstName
}

// Chat identifies the conversation an update belongs to.
type Chat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

// OrderInfo is the optional buyer information attached to payments.
type OrderInfo struct {
	Name            string          `json:"name,omitempty"`
	PhoneNumber     string          `json:"phone_number,omitempty"`
	Email           string          `json:"email,omitempty"`
	ShippingAddress json.RawMessage `json:"shipping_address,omitempty"`
}

// SuccessfulPayment is the service message Telegram sends once a charge settles.
type SuccessfulPayment struct {
	Currency                string     `json:"currency"`
	TotalAmount             int        `json:"total_amount"`
	InvoicePayload          string     `json:"invoice_payload"`
	ShippingOptionID        string     `json:"shipping_option_id,omitempty"`
	OrderInfo               *OrderInfo `json:"order_info,omitempty"`
	TelegramPaymentChargeID string     `json:"telegram_payment_charge_id"`
	ProviderPaymentChargeID string     `json:"provider_payment_charge_id"`
}

// Message carries text, membership changes, payments or replies.
type Message struct {
	MessageID         int64              `json:"message_id"`
	From              *User              `json:"from,omitempty"`
	Chat              Chat               `json:"chat"`
	Date              int64              `json:"date"`
	Text              string             `json:"text,omitempty"`
	ReplyToMessage    *Message           `json:"reply_to_message,omitempty"`
	NewChatMembers    []User             `json:"new_chat_members,omitempty"`
	SuccessfulPayment *SuccessfulPayment `json:"successful_payment,omitempty"`
}

// PollAnswer is a user's selection in a native poll.
type PollAnswer struct {
	PollID    string `json:"poll_id"`
	User      *User  `json:"user,omitempty"`
	OptionIDs []int  `json:"option_ids"`
}

// PreCheckoutQuery asks the bot to approve a checkout before it is charged.
type PreCheckoutQuery struct {
	ID               string     `json:"id"`
	From             *User      `json:"from,omitempty"`
	Currency         string     `json:"currency"`
	TotalAmount      int        `json:"total_amount"`
	InvoicePayload   string     `json:"invoice_payload"`
	ShippingOptionID string     `json:"shipping_option_id,omitempty"`
	OrderInfo        *OrderInfo `json:"order_info,omitempty"`
}

// Update is one event delivered by Telegram. At most one of Message,
// PollAnswer and PreCheckoutQuery is populated.
type Update struct {
	UpdateID         int64             `json:"update_id"`
	Message          *Message          `json:"message,omitempty"`
	PollAnswer       *PollAnswer       `json:"poll_answer,omitempty"`
	PreCheckoutQuery *PreCheckoutQuery `json:"pre_checkout_query,omitempty"`
}

// Inbound is the raw webhook body: a Telegram update, optionally carrying the
// synthetic test marker sent by uptime probes.
type Inbound struct {
	Test string `json:"test,omitempty"`
	Update
}

// ErrEmptyBody is returned by Decode when the request carried no payload.
var ErrEmptyBody = errors.New("empty update body")

// Decode parses a webhook body.
func Decode(body []byte) (Inbound, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return Inbound{}, ErrEmptyBody
	}

	var in Inbound
	if err := json.Unmarshal(body, &in); err != nil {
		return Inbound{}, fmt.Errorf("decode update: %w", err)
	}

	return in, nil
}
