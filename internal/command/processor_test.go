package command

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/groblegark/payd/internal/assess"
	"github.com/groblegark/payd/internal/breaker"
	"github.com/groblegark/payd/internal/events"
	"github.com/groblegark/payd/internal/jobs"
	"github.com/groblegark/payd/internal/model"
)

type capturePublisher struct {
	topics []string
}

func (c *capturePublisher) Publish(_ context.Context, topic string, _ any) error {
	c.topics = append(c.topics, topic)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

type captureEnqueuer struct {
	jobTypes []string
}

func (c *captureEnqueuer) Enqueue(_ context.Context, jobType string, _ any) error {
	c.jobTypes = append(c.jobTypes, jobType)
	return nil
}

func (c *captureEnqueuer) Close() error { return nil }

// countingAssessor approves and counts invocations.
type countingAssessor struct {
	calls atomic.Int64
}

func (c *countingAssessor) Assess(_ context.Context, _ *model.Account, _ assess.Input) (assess.Assessment, error) {
	c.calls.Add(1)
	return assess.Assessment{Approved: true}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry() *breaker.Registry {
	return breaker.NewRegistry(breaker.Config{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
		SuccessThreshold: 1,
		Timeout:          time.Second,
	}, nil)
}

func approveAll() map[string]assess.Assessor {
	return map[string]assess.Assessor{
		assess.KindFraud:      assess.Approve(),
		assess.KindCompliance: assess.Approve(),
		assess.KindRisk:       assess.Approve(),
	}
}

type fixture struct {
	store     *mockStore
	registry  *breaker.Registry
	publisher *capturePublisher
	enqueuer  *captureEnqueuer
	proc      *Processor
}

func newFixture(assessors map[string]assess.Assessor) *fixture {
	f := &fixture{
		store:     newMockStore(),
		registry:  testRegistry(),
		publisher: &capturePublisher{},
		enqueuer:  &captureEnqueuer{},
	}
	f.proc = NewProcessor(f.store, f.registry, assessors, f.publisher, f.enqueuer, testLogger())
	return f
}

// trip drives the named circuit open.
func (f *fixture) trip(t *testing.T, name string) {
	t.Helper()
	b := f.registry.Get(name)
	boom := errors.New("downstream unavailable")
	for i := 0; i < 2; i++ {
		if err := b.Execute(context.Background(), func(context.Context) error { return boom }); err == nil {
			t.Fatal("expected failure while tripping circuit")
		}
	}
	if b.State() != breaker.StateOpen {
		t.Fatalf("circuit %s state = %v, want open", name, b.State())
	}
}

func (f *fixture) open(t *testing.T, accountID string) Result {
	t.Helper()
	res := f.proc.Open(context.Background(), OpenCommand{
		AccountID: accountID,
		UserID:    "user-1",
		RequestID: "req-open-" + accountID,
	})
	if !res.Success {
		t.Fatalf("open failed: %s %s", res.Error, res.Message)
	}
	return res
}

func TestOpenCreatesPendingAccount(t *testing.T) {
	f := newFixture(approveAll())

	res := f.open(t, "acct-1")
	if res.Data.Version != 1 {
		t.Errorf("version = %d, want 1", res.Data.Version)
	}
	if res.Data.Status != model.StatusPending {
		t.Errorf("status = %s, want pending", res.Data.Status)
	}

	stream := f.store.events["acct-1"]
	if len(stream) != 1 || stream[0].Type != model.EventAccountOpened {
		t.Fatalf("unexpected stream %+v", stream)
	}
	rec := f.store.accounts["acct-1"]
	if rec == nil || rec.Status != model.StatusPending || rec.UserID != "user-1" {
		t.Fatalf("unexpected projection %+v", rec)
	}
	if len(f.publisher.topics) != 1 || f.publisher.topics[0] != events.TopicPaymentAccount {
		t.Errorf("topics = %v", f.publisher.topics)
	}
	if len(f.enqueuer.jobTypes) != 1 || f.enqueuer.jobTypes[0] != jobs.TypeNotificationDispatch {
		t.Errorf("jobs = %v", f.enqueuer.jobTypes)
	}
}

func TestOpenExistingAccountRejected(t *testing.T) {
	f := newFixture(approveAll())
	f.open(t, "acct-1")

	res := f.proc.Open(context.Background(), OpenCommand{
		AccountID: "acct-1", UserID: "user-2", RequestID: "req-open-again",
	})
	if res.Success || res.Error != CodeInvalidState {
		t.Fatalf("result = %+v, want invalid_state", res)
	}
}

func TestActivateLifecycle(t *testing.T) {
	f := newFixture(approveAll())
	f.open(t, "acct-1")

	res := f.proc.Activate(context.Background(), ActivateCommand{
		AccountID: "acct-1", Reason: "kyc complete", AdminID: 7, RequestID: "req-act-1",
	})
	if !res.Success {
		t.Fatalf("activate failed: %s %s", res.Error, res.Message)
	}
	if res.Data.Version != 2 || res.Data.Status != model.StatusActive {
		t.Fatalf("data = %+v", res.Data)
	}

	again := f.proc.Activate(context.Background(), ActivateCommand{
		AccountID: "acct-1", Reason: "again", AdminID: 7, RequestID: "req-act-2",
	})
	if again.Success || again.Error != CodeInvalidState {
		t.Fatalf("result = %+v, want invalid_state", again)
	}
	if again.Message != "Account is already active" {
		t.Errorf("message = %q", again.Message)
	}
	if len(f.store.events["acct-1"]) != 2 {
		t.Errorf("stream length = %d, want 2", len(f.store.events["acct-1"]))
	}
}

func TestSuspendGuards(t *testing.T) {
	f := newFixture(approveAll())
	f.open(t, "acct-1")

	res := f.proc.Suspend(context.Background(), SuspendCommand{
		AccountID: "acct-1", Reason: "fraud signals", AdminID: 7, RequestID: "req-sus-1",
	})
	if !res.Success || res.Data.Status != model.StatusSuspended {
		t.Fatalf("suspend failed: %+v", res)
	}

	again := f.proc.Suspend(context.Background(), SuspendCommand{
		AccountID: "acct-1", Reason: "again", AdminID: 7, RequestID: "req-sus-2",
	})
	if again.Success || again.Error != CodeInvalidState || again.Message != "Account is already suspended" {
		t.Fatalf("result = %+v", again)
	}

	if got := f.enqueuer.jobTypes; len(got) != 3 {
		// open: notification; suspend: notification + compliance remediation
		t.Errorf("jobs = %v", got)
	}
}

func TestDuplicateRequestReturnsOriginalResult(t *testing.T) {
	f := newFixture(approveAll())
	f.open(t, "acct-1")

	cmd := ActivateCommand{AccountID: "acct-1", Reason: "kyc complete", RequestID: "req-dup"}
	first := f.proc.Activate(context.Background(), cmd)
	if !first.Success {
		t.Fatalf("activate failed: %+v", first)
	}
	second := f.proc.Activate(context.Background(), cmd)
	if !second.Success || second.Data.EventID != first.Data.EventID || second.Data.Version != first.Data.Version {
		t.Fatalf("second = %+v, first = %+v", second, first)
	}
	if len(f.store.events["acct-1"]) != 2 {
		t.Fatalf("stream length = %d, want 2 (no duplicate append)", len(f.store.events["acct-1"]))
	}
}

func TestDuplicateRequestSurvivesRestart(t *testing.T) {
	f := newFixture(approveAll())
	f.open(t, "acct-1")

	cmd := ActivateCommand{AccountID: "acct-1", Reason: "kyc complete", RequestID: "req-dup"}
	first := f.proc.Activate(context.Background(), cmd)
	if !first.Success {
		t.Fatalf("activate failed: %+v", first)
	}

	// A new processor over the same store has a cold in-process cache and
	// must answer from the durable request log.
	restarted := NewProcessor(f.store, testRegistry(), approveAll(), &capturePublisher{}, &captureEnqueuer{}, testLogger())
	second := restarted.Activate(context.Background(), cmd)
	if !second.Success || second.Data.EventID != first.Data.EventID {
		t.Fatalf("second = %+v, first = %+v", second, first)
	}
	if len(f.store.events["acct-1"]) != 2 {
		t.Fatalf("stream length = %d, want 2", len(f.store.events["acct-1"]))
	}
}

func TestExpectedVersionConflict(t *testing.T) {
	f := newFixture(approveAll())
	f.open(t, "acct-1")

	stale := int64(0)
	res := f.proc.Activate(context.Background(), ActivateCommand{
		AccountID: "acct-1", Reason: "kyc complete", RequestID: "req-stale", ExpectedVersion: &stale,
	})
	if res.Success || res.Error != CodeConcurrency {
		t.Fatalf("result = %+v, want concurrency_conflict", res)
	}
	if res.CurrentVersion == nil || *res.CurrentVersion != 1 {
		t.Errorf("current_version = %v, want 1", res.CurrentVersion)
	}
	if len(f.store.events["acct-1"]) != 1 {
		t.Errorf("stream length = %d, want 1", len(f.store.events["acct-1"]))
	}
}

func TestValidationFailure(t *testing.T) {
	f := newFixture(approveAll())

	res := f.proc.Activate(context.Background(), ActivateCommand{AccountID: "acct-1"})
	if res.Success || res.Error != CodeValidation {
		t.Fatalf("result = %+v, want validation_error", res)
	}
}

func TestActivateUnknownAccount(t *testing.T) {
	f := newFixture(approveAll())

	res := f.proc.Activate(context.Background(), ActivateCommand{
		AccountID: "acct-missing", Reason: "kyc complete", RequestID: "req-1",
	})
	if res.Success || res.Error != CodeNotFound {
		t.Fatalf("result = %+v, want not_found", res)
	}
}

func TestAssessmentRejected(t *testing.T) {
	assessors := approveAll()
	assessors[assess.KindFraud] = &assess.Static{
		Result: assess.Assessment{Approved: false, Score: 92, Reasons: []string{"velocity anomaly"}},
	}
	f := newFixture(assessors)
	f.open(t, "acct-1")

	res := f.proc.Suspend(context.Background(), SuspendCommand{
		AccountID: "acct-1", Reason: "routine", AdminID: 7, RequestID: "req-sus",
	})
	if res.Success || res.Error != CodeRejected {
		t.Fatalf("result = %+v, want assessment_rejected", res)
	}
	if len(f.store.events["acct-1"]) != 1 {
		t.Errorf("stream length = %d, want 1 (no suspend event)", len(f.store.events["acct-1"]))
	}
}

func TestOpenCircuitRejectsWithoutInvokingAssessor(t *testing.T) {
	counting := &countingAssessor{}
	assessors := approveAll()
	assessors[assess.KindFraud] = counting
	f := newFixture(assessors)
	f.open(t, "acct-1")
	f.trip(t, assess.KindFraud)

	res := f.proc.Suspend(context.Background(), SuspendCommand{
		AccountID: "acct-1", Reason: "fraud signals", AdminID: 7, RequestID: "req-sus",
	})
	if res.Success || res.Error != CodeCircuitOpen {
		t.Fatalf("result = %+v, want circuit_open", res)
	}
	if res.RetryAfterSeconds == nil || *res.RetryAfterSeconds <= 0 {
		t.Errorf("retry_after_seconds = %v", res.RetryAfterSeconds)
	}
	if counting.calls.Load() != 0 {
		t.Errorf("assessor invoked %d times behind an open circuit", counting.calls.Load())
	}
	if len(f.store.events["acct-1"]) != 1 {
		t.Errorf("stream length = %d, want 1 (version unchanged)", len(f.store.events["acct-1"]))
	}
}

func TestUpdatePaymentMethodsFallsBackToCachedAssessment(t *testing.T) {
	f := newFixture(approveAll())
	f.open(t, "acct-1")

	// A prior successful command caches approved assessments for the account.
	act := f.proc.Activate(context.Background(), ActivateCommand{
		AccountID: "acct-1", Reason: "kyc complete", RequestID: "req-act",
	})
	if !act.Success {
		t.Fatalf("activate failed: %+v", act)
	}

	f.trip(t, assess.KindFraud)

	res := f.proc.UpdatePaymentMethods(context.Background(), UpdatePaymentMethodsCommand{
		AccountID: "acct-1",
		RequestID: "req-upd",
		Methods: []model.PaymentMethod{
			{Token: "tok_visa", Kind: "card", Last4: "4242", ExpMonth: 12, ExpYear: 2030},
		},
		DefaultMethod: "tok_visa",
	})
	if !res.Success {
		t.Fatalf("expected fallback to cached assessment, got %+v", res)
	}
	if res.Data.Version != 3 {
		t.Errorf("version = %d, want 3", res.Data.Version)
	}
}

func TestUpdatePaymentMethodsWithoutCachedAssessmentFailsOpen(t *testing.T) {
	f := newFixture(approveAll())
	f.open(t, "acct-1")
	f.proc.assessments = newAssessmentCache(assessmentCacheSize)
	f.trip(t, assess.KindFraud)

	res := f.proc.UpdatePaymentMethods(context.Background(), UpdatePaymentMethodsCommand{
		AccountID: "acct-1",
		RequestID: "req-upd",
		Methods: []model.PaymentMethod{
			{Token: "tok_visa", Kind: "card", Last4: "4242", ExpMonth: 12, ExpYear: 2030},
		},
	})
	if res.Success || res.Error != CodeCircuitOpen {
		t.Fatalf("result = %+v, want circuit_open", res)
	}
}

func TestProjectionSeededAccount(t *testing.T) {
	f := newFixture(approveAll())
	f.store.accounts["acct-pre"] = &model.AccountRecord{
		ID:     "acct-pre",
		UserID: "user-7",
		Status: model.StatusPending,
	}

	res := f.proc.Activate(context.Background(), ActivateCommand{
		AccountID: "acct-pre", Reason: "kyc complete", RequestID: "req-pre",
	})
	if !res.Success || res.Data.Version != 1 || res.Data.Status != model.StatusActive {
		t.Fatalf("result = %+v", res)
	}
	rec := f.store.accounts["acct-pre"]
	if rec.UserID != "user-7" {
		t.Errorf("projection lost owner: %+v", rec)
	}

	// The next command replays the stream and must keep the owner too.
	sus := f.proc.Suspend(context.Background(), SuspendCommand{
		AccountID: "acct-pre", Reason: "review", AdminID: 7, RequestID: "req-pre-2",
	})
	if !sus.Success {
		t.Fatalf("suspend failed: %+v", sus)
	}
	if f.store.accounts["acct-pre"].UserID != "user-7" {
		t.Errorf("projection lost owner after replayed command: %+v", f.store.accounts["acct-pre"])
	}
}

func TestSuspendedEventRoutedToSecurityTopic(t *testing.T) {
	f := newFixture(approveAll())
	f.open(t, "acct-1")
	f.publisher.topics = nil

	res := f.proc.Suspend(context.Background(), SuspendCommand{
		AccountID: "acct-1", Reason: "fraud signals", AdminID: 7, RequestID: "req-sus",
	})
	if !res.Success {
		t.Fatalf("suspend failed: %+v", res)
	}
	want := []string{events.TopicPaymentAccount, events.TopicSecurity}
	if len(f.publisher.topics) != len(want) {
		t.Fatalf("topics = %v, want %v", f.publisher.topics, want)
	}
	for i, topic := range want {
		if f.publisher.topics[i] != topic {
			t.Errorf("topics[%d] = %s, want %s", i, f.publisher.topics[i], topic)
		}
	}
}
