package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType tags a domain event. The set is closed: reconstruction is a
// switch over these tags, never a name-to-type lookup.
type EventType string

const (
	EventAccountOpened         EventType = "payment_account.opened"
	EventAccountActivated      EventType = "payment_account.activated"
	EventAccountSuspended      EventType = "payment_account.suspended"
	EventPaymentMethodsUpdated EventType = "payment_account.payment_methods_updated"
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	return string(t)
}

// IsValid checks whether the event type is a known value.
func (t EventType) IsValid() bool {
	switch t {
	case EventAccountOpened, EventAccountActivated, EventAccountSuspended, EventPaymentMethodsUpdated:
		return true
	}
	return false
}

// Metadata carries tracing and idempotency identifiers stamped on every event.
type Metadata struct {
	CausationID   string `json:"causation_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
}

// Event is an immutable, persisted domain event. Version is assigned by the
// event store at append time: 1-based, gapless, strictly increasing within
// an aggregate's stream.
type Event struct {
	EventID     string          `json:"event_id"`
	AggregateID string          `json:"aggregate_id"`
	Type        EventType       `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Version     int64           `json:"version"`
	Timestamp   time.Time       `json:"timestamp"`
	Metadata    Metadata        `json:"metadata"`
}

// Typed event payloads.

type AccountOpenedPayload struct {
	UserID string `json:"user_id"`
}

type AccountActivatedPayload struct {
	Reason  string `json:"reason"`
	AdminID int64  `json:"admin_id,omitempty"`
}

type AccountSuspendedPayload struct {
	Reason  string `json:"reason"`
	AdminID int64  `json:"admin_id,omitempty"`
}

type PaymentMethodsUpdatedPayload struct {
	Methods       []PaymentMethod `json:"methods"`
	DefaultMethod string          `json:"default_method,omitempty"`
}

// NewEvent builds an event with a marshaled typed payload. Version is left
// zero; the store assigns it at append time.
func NewEvent(eventID, aggregateID string, typ EventType, payload any, meta Metadata) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return &Event{
		EventID:     eventID,
		AggregateID: aggregateID,
		Type:        typ,
		Payload:     data,
		Timestamp:   time.Now().UTC(),
		Metadata:    meta,
	}, nil
}

// DecodePayload unmarshals the event payload into its typed form based on
// the event's tag.
func (e *Event) DecodePayload() (any, error) {
	switch e.Type {
	case EventAccountOpened:
		var p AccountOpenedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", e.Type, err)
		}
		return p, nil
	case EventAccountActivated:
		var p AccountActivatedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", e.Type, err)
		}
		return p, nil
	case EventAccountSuspended:
		var p AccountSuspendedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", e.Type, err)
		}
		return p, nil
	case EventPaymentMethodsUpdated:
		var p PaymentMethodsUpdatedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", e.Type, err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown event type %q", e.Type)
}

// Replay folds an ordered event stream into the aggregate's current state.
// The fold is pure: applying the same events to a fresh aggregate always
// produces the same state. An empty stream yields a pending account at
// version 0.
func Replay(aggregateID string, events []*Event) (*Account, error) {
	acct := &Account{ID: aggregateID, Status: StatusPending}
	for _, e := range events {
		if err := acct.Apply(e); err != nil {
			return nil, err
		}
	}
	return acct, nil
}

// Apply advances the aggregate by one event. The event's version must be
// the aggregate's version + 1; gaps or reordering indicate a corrupt stream.
func (a *Account) Apply(e *Event) error {
	if e.Version != a.Version+1 {
		return fmt.Errorf("event %s: version %d applied to aggregate at version %d", e.EventID, e.Version, a.Version)
	}

	payload, err := e.DecodePayload()
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case AccountOpenedPayload:
		a.UserID = p.UserID
		a.Status = StatusPending
		a.CreatedAt = e.Timestamp
	case AccountActivatedPayload:
		a.Status = StatusActive
		a.SuspensionReason = ""
	case AccountSuspendedPayload:
		a.Status = StatusSuspended
		a.SuspensionReason = p.Reason
	case PaymentMethodsUpdatedPayload:
		a.PaymentMethods = p.Methods
		a.DefaultMethod = p.DefaultMethod
	}

	a.Version = e.Version
	a.UpdatedAt = e.Timestamp
	return nil
}
