// Package command implements the pipeline that turns validated intents into
// committed events: structural validation, state-machine guards, circuit-
// protected pre-commit checks, atomic append plus projection update,
// publication, and fire-and-forget follow-on jobs.
package command

import (
	"errors"
	"strings"

	"github.com/groblegark/payd/internal/model"
)

// Command type names, used for logging, idempotency records, and the
// per-command circuit-open policy table.
const (
	TypeOpen                 = "open_account"
	TypeActivate             = "activate_account"
	TypeSuspend              = "suspend_account"
	TypeUpdatePaymentMethods = "update_payment_methods"
)

// OpenCommand creates a new payment account in pending status.
type OpenCommand struct {
	AccountID string `json:"account_id"`
	UserID    string `json:"user_id"`
	RequestID string `json:"request_id"`
}

// ActivateCommand activates a pending or suspended account.
type ActivateCommand struct {
	AccountID       string `json:"account_id"`
	Reason          string `json:"reason"`
	AdminID         int64  `json:"admin_id,omitempty"`
	RequestID       string `json:"request_id"`
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
}

// SuspendCommand suspends a pending or active account.
type SuspendCommand struct {
	AccountID       string `json:"account_id"`
	Reason          string `json:"reason"`
	AdminID         int64  `json:"admin_id,omitempty"`
	RequestID       string `json:"request_id"`
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
}

// UpdatePaymentMethodsCommand replaces the account's stored instruments.
type UpdatePaymentMethodsCommand struct {
	AccountID       string                `json:"account_id"`
	Methods         []model.PaymentMethod `json:"methods"`
	DefaultMethod   string                `json:"default_method,omitempty"`
	RequestID       string                `json:"request_id"`
	ExpectedVersion *int64                `json:"expected_version,omitempty"`
}

func (c OpenCommand) Validate() error {
	var ve model.ValidationError
	if strings.TrimSpace(c.AccountID) == "" {
		ve.Add("account_id", "is required")
	}
	if strings.TrimSpace(c.UserID) == "" {
		ve.Add("user_id", "is required")
	}
	if strings.TrimSpace(c.RequestID) == "" {
		ve.Add("request_id", "is required")
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

func (c ActivateCommand) Validate() error {
	var ve model.ValidationError
	if strings.TrimSpace(c.AccountID) == "" {
		ve.Add("account_id", "is required")
	}
	if strings.TrimSpace(c.Reason) == "" {
		ve.Add("reason", "is required")
	}
	if strings.TrimSpace(c.RequestID) == "" {
		ve.Add("request_id", "is required")
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

func (c SuspendCommand) Validate() error {
	var ve model.ValidationError
	if strings.TrimSpace(c.AccountID) == "" {
		ve.Add("account_id", "is required")
	}
	if strings.TrimSpace(c.Reason) == "" {
		ve.Add("reason", "is required")
	}
	if strings.TrimSpace(c.RequestID) == "" {
		ve.Add("request_id", "is required")
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

func (c UpdatePaymentMethodsCommand) Validate() error {
	var ve model.ValidationError
	if strings.TrimSpace(c.AccountID) == "" {
		ve.Add("account_id", "is required")
	}
	if strings.TrimSpace(c.RequestID) == "" {
		ve.Add("request_id", "is required")
	}
	if len(c.Methods) == 0 {
		ve.Add("methods", "at least one payment method is required")
	}
	for _, m := range c.Methods {
		if err := model.ValidatePaymentMethod(m); err != nil {
			var inner *model.ValidationError
			if errors.As(err, &inner) {
				ve.Errors = append(ve.Errors, inner.Errors...)
			}
		}
	}
	if c.DefaultMethod != "" {
		found := false
		for _, m := range c.Methods {
			if m.Token == c.DefaultMethod {
				found = true
				break
			}
		}
		if !found {
			ve.Add("default_method", "does not match any supplied method token")
		}
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}
