package update

import "strings"

const (
	// HealthCheckMarker is the value of the synthetic "test" field sent by probes.
	HealthCheckMarker = "health_check"
	// CommandPrefix starts every bot command.
	CommandPrefix = "/"
)

// Kind names the branch an update is routed to.
type Kind int

// Kinds in routing precedence order.
const (
	KindIgnored Kind = iota
	KindHealthCheck
	KindPreCheckout
	KindPollAnswer
	KindNewMembers
	KindPayment
	KindBotAuthor
	KindCommand
	KindLegacyReply
)

var kindNames = map[Kind]string{
	KindIgnored:     "ignored",
	KindHealthCheck: "health_check",
	KindPreCheckout: "pre_checkout_query",
	KindPollAnswer:  "poll_answer",
	KindNewMembers:  "new_chat_members",
	KindPayment:     "successful_payment",
	KindBotAuthor:   "bot_message",
	KindCommand:     "command",
	KindLegacyReply: "legacy_reply",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Classify picks the single branch for in. A payload may structurally match
// several shapes (a command sent as a reply still has reply_to_message), so
// the checks run in strict precedence and the first match wins. Variants that
// lack their required sub-fields are ignored.
func Classify(in Inbound) Kind {
	if in.Test == HealthCheckMarker {
		return KindHealthCheck
	}

	if q := in.PreCheckoutQuery; q != nil {
		if strings.TrimSpace(q.ID) == "" {
			return KindIgnored
		}
		return KindPreCheckout
	}

	if a := in.PollAnswer; a != nil {
		if a.User == nil || strings.TrimSpace(a.PollID) == "" {
			return KindIgnored
		}
		return KindPollAnswer
	}

	msg := in.Message
	if msg == nil {
		return KindIgnored
	}

	if len(msg.NewChatMembers) > 0 {
		return KindNewMembers
	}

	if msg.From == nil {
		return KindIgnored
	}

	if msg.SuccessfulPayment != nil {
		return KindPayment
	}

	if msg.From.IsBot {
		return KindBotAuthor
	}

	if IsCommand(msg.Text) {
		return KindCommand
	}

	if msg.ReplyToMessage != nil && strings.TrimSpace(msg.ReplyToMessage.Text) != "" {
		return KindLegacyReply
	}

	return KindIgnored
}

// IsCommand reports whether text is a bot command.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), CommandPrefix)
}

// Meta is the subset of an update that is safe and useful to log.
type Meta struct {
	UpdateID   int64
	UserID     int64
	ChatID     int64
	UpdateType string
}

// Describe extracts logging metadata for in.
func Describe(in Inbound) Meta {
	meta := Meta{UpdateID: in.UpdateID, UpdateType: Classify(in).String()}

	switch {
	case in.PreCheckoutQuery != nil:
		meta.UserID = userID(in.PreCheckoutQuery.From)
	case in.PollAnswer != nil:
		meta.UserID = userID(in.PollAnswer.User)
	case in.Message != nil:
		meta.UserID = userID(in.Message.From)
		meta.ChatID = in.Message.Chat.ID
	}

	return meta
}

func userID(user *User) int64 {
	if user == nil {
		return 0
	}
	return user.ID
}
