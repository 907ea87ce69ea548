package model

import (
	"time"
)

// Status represents the lifecycle state of a payment account.
type Status string

const (
	StatusPending    Status = "pending"
	StatusActive     Status = "active"
	StatusSuspended  Status = "suspended"
	StatusTerminated Status = "terminated"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended, StatusTerminated:
		return true
	}
	return false
}

// CanActivate reports whether an account in this status may be activated.
// Only pending and suspended accounts can transition to active.
func (s Status) CanActivate() bool {
	return s == StatusPending || s == StatusSuspended
}

// CanSuspend reports whether an account in this status may be suspended.
// Terminated accounts are final; suspending an already-suspended account
// is rejected rather than treated as a no-op.
func (s Status) CanSuspend() bool {
	return s == StatusPending || s == StatusActive
}

// CanUpdatePaymentMethods reports whether payment methods may be changed.
// Suspended and terminated accounts are frozen.
func (s Status) CanUpdatePaymentMethods() bool {
	return s == StatusPending || s == StatusActive
}

// PaymentMethod is one stored payment instrument on an account.
type PaymentMethod struct {
	Token    string `json:"token"`
	Kind     string `json:"kind"` // "card", "bank_account", "wallet"
	Last4    string `json:"last4,omitempty"`
	ExpMonth int    `json:"exp_month,omitempty"`
	ExpYear  int    `json:"exp_year,omitempty"`
}

// Account is the payment-account aggregate. Its state is derived solely by
// replaying the account's event stream; Version is the version of the last
// applied event.
type Account struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	Status           Status          `json:"status"`
	PaymentMethods   []PaymentMethod `json:"payment_methods,omitempty"`
	DefaultMethod    string          `json:"default_method,omitempty"`
	SuspensionReason string          `json:"suspension_reason,omitempty"`
	Version          int64           `json:"version"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// AccountRecord is the denormalized read-model row for an account. It is
// mutated only as a side effect of a committed event, inside the same
// transaction as the event append, so readers never observe a projection
// ahead of or behind the log.
type AccountRecord struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	Status           Status          `json:"status"`
	PaymentMethods   []PaymentMethod `json:"payment_methods,omitempty"`
	DefaultMethod    string          `json:"default_method,omitempty"`
	SuspensionReason string          `json:"suspension_reason,omitempty"`
	Version          int64           `json:"version"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Record converts the aggregate to its projection row.
func (a *Account) Record() *AccountRecord {
	return &AccountRecord{
		ID:               a.ID,
		UserID:           a.UserID,
		Status:           a.Status,
		PaymentMethods:   a.PaymentMethods,
		DefaultMethod:    a.DefaultMethod,
		SuspensionReason: a.SuspensionReason,
		Version:          a.Version,
		UpdatedAt:        a.UpdatedAt,
	}
}
