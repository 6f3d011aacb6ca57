package payment

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"opomelilla_bot/internal/domain"
)

const payloadPrefix = "subscription"

// Payload is the parsed invoice payload "subscription_<plan>_<user>_<unixms>".
type Payload struct {
	Plan     string
	UserID   string
	IssuedAt string
}

// ErrInvalidPayload is returned for payloads that do not follow the invoice format.
var ErrInvalidPayload = errors.New("invalid invoice payload")

// NewPayload builds the payload attached to an invoice.
func NewPayload(plan string, userID int64, issuedAt time.Time) string {
	return fmt.Sprintf("%s_%s_%d_%d", payloadPrefix, plan, userID, issuedAt.UnixMilli())
}

// ParsePayload splits an invoice payload into its parts. It needs at least
// four "_" separated tokens starting with "subscription".
func ParsePayload(raw string) (Payload, error) {
	parts := strings.Split(raw, "_")
	if len(parts) < 4 || parts[0] != payloadPrefix {
		return Payload{}, fmt.Errorf("%w: %q", ErrInvalidPayload, raw)
	}

	return Payload{
		Plan:     parts[1],
		UserID:   parts[2],
		IssuedAt: parts[3],
	}, nil
}

// PlanFromPayload returns the second "_" token of the payload, defaulting to
// the premium plan when absent.
func PlanFromPayload(raw string) string {
	parts := strings.Split(raw, "_")
	if len(parts) < 2 || parts[1] == "" {
		return domain.PlanPremium
	}
	return parts[1]
}

func userMatches(payloadUser string, userID int64) bool {
	parsed, err := strconv.ParseInt(payloadUser, 10, 64)
	return err == nil && parsed == userID
}
