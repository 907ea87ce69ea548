package model

import (
	"fmt"
	"strings"
)

// ValidateEvent checks an event for structural constraint violations before
// it may be appended to a stream.
func ValidateEvent(e *Event) error {
	var ve ValidationError

	if strings.TrimSpace(e.AggregateID) == "" {
		ve.Add("aggregate_id", "is required")
	}
	if strings.TrimSpace(e.EventID) == "" {
		ve.Add("event_id", "is required")
	}
	if !e.Type.IsValid() {
		ve.Add("type", fmt.Sprintf("unrecognized event type %q", e.Type))
	}
	if len(e.Payload) == 0 {
		ve.Add("payload", "is required")
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidatePaymentMethod checks a single payment instrument.
func ValidatePaymentMethod(m PaymentMethod) error {
	var ve ValidationError

	if strings.TrimSpace(m.Token) == "" {
		ve.Add("token", "is required")
	}
	switch m.Kind {
	case "card", "bank_account", "wallet":
	default:
		ve.Add("kind", fmt.Sprintf("invalid value %q", m.Kind))
	}
	if m.Kind == "card" {
		if m.ExpMonth < 1 || m.ExpMonth > 12 {
			ve.Add("exp_month", fmt.Sprintf("must be between 1 and 12, got %d", m.ExpMonth))
		}
		if m.ExpYear < 2000 {
			ve.Add("exp_year", fmt.Sprintf("invalid value %d", m.ExpYear))
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
