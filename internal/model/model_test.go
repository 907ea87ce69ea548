package model

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func mustEvent(t *testing.T, id, agg string, typ EventType, payload any, version int64) *Event {
	t.Helper()
	e, err := NewEvent(id, agg, typ, payload, Metadata{RequestID: "req-" + id})
	if err != nil {
		t.Fatalf("NewEvent(%s): %v", typ, err)
	}
	e.Version = version
	e.Timestamp = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Add(time.Duration(version) * time.Minute)
	return e
}

func TestStatusTransitions(t *testing.T) {
	for _, tc := range []struct {
		status      Status
		canActivate bool
		canSuspend  bool
		canUpdate   bool
	}{
		{StatusPending, true, true, true},
		{StatusActive, false, true, true},
		{StatusSuspended, true, false, false},
		{StatusTerminated, false, false, false},
	} {
		if got := tc.status.CanActivate(); got != tc.canActivate {
			t.Errorf("%s.CanActivate() = %v, want %v", tc.status, got, tc.canActivate)
		}
		if got := tc.status.CanSuspend(); got != tc.canSuspend {
			t.Errorf("%s.CanSuspend() = %v, want %v", tc.status, got, tc.canSuspend)
		}
		if got := tc.status.CanUpdatePaymentMethods(); got != tc.canUpdate {
			t.Errorf("%s.CanUpdatePaymentMethods() = %v, want %v", tc.status, got, tc.canUpdate)
		}
	}
}

func TestEventTypeIsValid(t *testing.T) {
	for _, typ := range []EventType{EventAccountOpened, EventAccountActivated, EventAccountSuspended, EventPaymentMethodsUpdated} {
		if !typ.IsValid() {
			t.Errorf("%s should be valid", typ)
		}
	}
	if EventType("payment_account.exploded").IsValid() {
		t.Error("unknown event type should be invalid")
	}
}

func TestReplay_FullLifecycle(t *testing.T) {
	events := []*Event{
		mustEvent(t, "evt-1", "acct-1", EventAccountOpened, AccountOpenedPayload{UserID: "user-9"}, 1),
		mustEvent(t, "evt-2", "acct-1", EventAccountActivated, AccountActivatedPayload{Reason: "kyc_passed", AdminID: 42}, 2),
		mustEvent(t, "evt-3", "acct-1", EventPaymentMethodsUpdated, PaymentMethodsUpdatedPayload{
			Methods:       []PaymentMethod{{Token: "tok-1", Kind: "card", Last4: "4242", ExpMonth: 12, ExpYear: 2030}},
			DefaultMethod: "tok-1",
		}, 3),
		mustEvent(t, "evt-4", "acct-1", EventAccountSuspended, AccountSuspendedPayload{Reason: "fraud_review"}, 4),
	}

	acct, err := Replay("acct-1", events)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if acct.Status != StatusSuspended {
		t.Errorf("status = %s, want %s", acct.Status, StatusSuspended)
	}
	if acct.UserID != "user-9" {
		t.Errorf("user id = %q, want %q", acct.UserID, "user-9")
	}
	if acct.Version != 4 {
		t.Errorf("version = %d, want 4", acct.Version)
	}
	if acct.SuspensionReason != "fraud_review" {
		t.Errorf("suspension reason = %q", acct.SuspensionReason)
	}
	if len(acct.PaymentMethods) != 1 || acct.PaymentMethods[0].Token != "tok-1" {
		t.Errorf("payment methods = %+v", acct.PaymentMethods)
	}

	// Determinism: a second replay over the same events yields identical state.
	again, err := Replay("acct-1", events)
	if err != nil {
		t.Fatalf("second Replay: %v", err)
	}
	if !reflect.DeepEqual(acct, again) {
		t.Errorf("replay is not deterministic: %+v vs %+v", acct, again)
	}
}

func TestReplay_EmptyStreamIsPending(t *testing.T) {
	acct, err := Replay("acct-2", nil)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if acct.Status != StatusPending || acct.Version != 0 {
		t.Errorf("empty replay = %s v%d, want pending v0", acct.Status, acct.Version)
	}
}

func TestReplay_ActivationClearsSuspensionReason(t *testing.T) {
	events := []*Event{
		mustEvent(t, "evt-1", "acct-3", EventAccountSuspended, AccountSuspendedPayload{Reason: "chargeback_spike"}, 1),
		mustEvent(t, "evt-2", "acct-3", EventAccountActivated, AccountActivatedPayload{Reason: "appeal_approved"}, 2),
	}
	acct, err := Replay("acct-3", events)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if acct.Status != StatusActive || acct.SuspensionReason != "" {
		t.Errorf("got %s reason=%q, want active with empty reason", acct.Status, acct.SuspensionReason)
	}
}

func TestApply_VersionGapRejected(t *testing.T) {
	acct := &Account{ID: "acct-4", Status: StatusPending}
	e := mustEvent(t, "evt-1", "acct-4", EventAccountActivated, AccountActivatedPayload{Reason: "kyc_passed"}, 3)
	if err := acct.Apply(e); err == nil {
		t.Fatal("applying version 3 to a version-0 aggregate should fail")
	}
}

func TestApply_UnknownTagRejected(t *testing.T) {
	acct := &Account{ID: "acct-5", Status: StatusPending}
	e := &Event{
		EventID:     "evt-1",
		AggregateID: "acct-5",
		Type:        EventType("payment_account.unknown"),
		Payload:     json.RawMessage(`{}`),
		Version:     1,
	}
	if err := acct.Apply(e); err == nil {
		t.Fatal("applying an unknown event tag should fail")
	}
}

func TestValidateEvent(t *testing.T) {
	good := mustEvent(t, "evt-1", "acct-6", EventAccountActivated, AccountActivatedPayload{Reason: "kyc_passed"}, 0)
	if err := ValidateEvent(good); err != nil {
		t.Errorf("valid event rejected: %v", err)
	}

	for name, mutate := range map[string]func(*Event){
		"missing aggregate id": func(e *Event) { e.AggregateID = " " },
		"missing event id":     func(e *Event) { e.EventID = "" },
		"unknown type":         func(e *Event) { e.Type = "bogus" },
		"empty payload":        func(e *Event) { e.Payload = nil },
	} {
		e := mustEvent(t, "evt-1", "acct-6", EventAccountActivated, AccountActivatedPayload{Reason: "x"}, 0)
		mutate(e)
		err := ValidateEvent(e)
		if err == nil {
			t.Errorf("%s: expected validation error", name)
			continue
		}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%s: error type = %T, want *ValidationError", name, err)
		}
	}
}

func TestValidatePaymentMethod(t *testing.T) {
	good := PaymentMethod{Token: "tok-1", Kind: "card", ExpMonth: 6, ExpYear: 2030}
	if err := ValidatePaymentMethod(good); err != nil {
		t.Errorf("valid method rejected: %v", err)
	}
	bad := PaymentMethod{Kind: "crypto"}
	if err := ValidatePaymentMethod(bad); err == nil {
		t.Error("invalid method accepted")
	}
	expired := PaymentMethod{Token: "tok-2", Kind: "card", ExpMonth: 13, ExpYear: 1999}
	if err := ValidatePaymentMethod(expired); err == nil {
		t.Error("out-of-range card fields accepted")
	}
}

func TestIsDomainError(t *testing.T) {
	for _, err := range []error{
		&ValidationError{Errors: []FieldError{{Field: "x", Message: "bad"}}},
		&NotFoundError{AggregateID: "acct-1"},
		&InvalidStateError{AggregateID: "acct-1", Status: StatusActive, Message: "already active"},
		&ConcurrencyError{AggregateID: "acct-1", ExpectedVersion: 1, CurrentVersion: 2},
	} {
		if !IsDomainError(err) {
			t.Errorf("IsDomainError(%T) = false, want true", err)
		}
	}
	if IsDomainError(errors.New("connection refused")) {
		t.Error("infrastructure error classified as domain error")
	}
	if IsDomainError(&PersistenceError{Op: "append", Err: errors.New("disk full")}) {
		t.Error("persistence error classified as domain error")
	}
}
