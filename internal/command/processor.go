package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/groblegark/payd/internal/assess"
	"github.com/groblegark/payd/internal/breaker"
	"github.com/groblegark/payd/internal/events"
	"github.com/groblegark/payd/internal/idgen"
	"github.com/groblegark/payd/internal/jobs"
	"github.com/groblegark/payd/internal/model"
	"github.com/groblegark/payd/internal/store"
)

// Processor orchestrates command execution. All collaborators are injected;
// one Processor is assembled at process start and shared by every caller.
type Processor struct {
	store     store.Store
	breakers  *breaker.Registry
	assessors map[string]assess.Assessor
	publisher events.Publisher
	jobs      jobs.Enqueuer
	logger    *slog.Logger

	results     *resultCache
	assessments *assessmentCache
}

// NewProcessor wires a processor from its collaborators.
func NewProcessor(st store.Store, reg *breaker.Registry, assessors map[string]assess.Assessor, pub events.Publisher, enq jobs.Enqueuer, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:       st,
		breakers:    reg,
		assessors:   assessors,
		publisher:   pub,
		jobs:        enq,
		logger:      logger,
		results:     newResultCache(resultCacheSize),
		assessments: newAssessmentCache(assessmentCacheSize),
	}
}

// jobPayload is what follow-on jobs receive.
type jobPayload struct {
	AggregateID string `json:"aggregate_id"`
	EventID     string `json:"event_id"`
	EventType   string `json:"event_type"`
	Reason      string `json:"reason,omitempty"`
}

// Open creates a new payment account in pending status.
func (p *Processor) Open(ctx context.Context, cmd OpenCommand) Result {
	if err := cmd.Validate(); err != nil {
		return p.fail(TypeOpen, cmd.AccountID, cmd.RequestID, err)
	}
	if res, ok := p.cached(ctx, cmd.RequestID); ok {
		return res
	}

	version, err := p.store.CurrentVersion(ctx, cmd.AccountID)
	if err != nil {
		return p.fail(TypeOpen, cmd.AccountID, cmd.RequestID, err)
	}
	if version > 0 {
		return p.fail(TypeOpen, cmd.AccountID, cmd.RequestID, &model.InvalidStateError{
			AggregateID: cmd.AccountID,
			Message:     "Account already exists",
		})
	}

	acct := &model.Account{ID: cmd.AccountID, UserID: cmd.UserID, Status: model.StatusPending}
	if err := p.runChecks(ctx, TypeOpen, acct, assess.Input{CommandType: TypeOpen}); err != nil {
		return p.fail(TypeOpen, cmd.AccountID, cmd.RequestID, err)
	}

	e, err := p.newEvent(acct.ID, model.EventAccountOpened, model.AccountOpenedPayload{UserID: cmd.UserID}, cmd.RequestID)
	if err != nil {
		return p.fail(TypeOpen, cmd.AccountID, cmd.RequestID, err)
	}
	res, err := p.commit(ctx, acct, e, cmd.RequestID)
	if err != nil {
		return p.fail(TypeOpen, cmd.AccountID, cmd.RequestID, err)
	}

	p.afterCommit(ctx, e, []string{jobs.TypeNotificationDispatch}, jobPayload{
		AggregateID: acct.ID, EventID: e.EventID, EventType: e.Type.String(),
	})
	return res
}

// Activate transitions a pending or suspended account to active.
func (p *Processor) Activate(ctx context.Context, cmd ActivateCommand) Result {
	if err := cmd.Validate(); err != nil {
		return p.fail(TypeActivate, cmd.AccountID, cmd.RequestID, err)
	}
	if res, ok := p.cached(ctx, cmd.RequestID); ok {
		return res
	}

	acct, err := p.loadAccount(ctx, cmd.AccountID, cmd.ExpectedVersion)
	if err != nil {
		return p.fail(TypeActivate, cmd.AccountID, cmd.RequestID, err)
	}
	if !acct.Status.CanActivate() {
		return p.fail(TypeActivate, cmd.AccountID, cmd.RequestID, activateGuardError(acct))
	}

	in := assess.Input{CommandType: TypeActivate, Reason: cmd.Reason, AdminID: cmd.AdminID}
	if err := p.runChecks(ctx, TypeActivate, acct, in); err != nil {
		return p.fail(TypeActivate, cmd.AccountID, cmd.RequestID, err)
	}

	e, err := p.newEvent(acct.ID, model.EventAccountActivated,
		model.AccountActivatedPayload{Reason: cmd.Reason, AdminID: cmd.AdminID}, cmd.RequestID)
	if err != nil {
		return p.fail(TypeActivate, cmd.AccountID, cmd.RequestID, err)
	}
	res, err := p.commit(ctx, acct, e, cmd.RequestID)
	if err != nil {
		return p.fail(TypeActivate, cmd.AccountID, cmd.RequestID, err)
	}

	p.afterCommit(ctx, e, []string{jobs.TypeNotificationDispatch}, jobPayload{
		AggregateID: acct.ID, EventID: e.EventID, EventType: e.Type.String(), Reason: cmd.Reason,
	})
	return res
}

// Suspend transitions a pending or active account to suspended.
func (p *Processor) Suspend(ctx context.Context, cmd SuspendCommand) Result {
	if err := cmd.Validate(); err != nil {
		return p.fail(TypeSuspend, cmd.AccountID, cmd.RequestID, err)
	}
	if res, ok := p.cached(ctx, cmd.RequestID); ok {
		return res
	}

	acct, err := p.loadAccount(ctx, cmd.AccountID, cmd.ExpectedVersion)
	if err != nil {
		return p.fail(TypeSuspend, cmd.AccountID, cmd.RequestID, err)
	}
	if !acct.Status.CanSuspend() {
		return p.fail(TypeSuspend, cmd.AccountID, cmd.RequestID, suspendGuardError(acct))
	}

	in := assess.Input{CommandType: TypeSuspend, Reason: cmd.Reason, AdminID: cmd.AdminID}
	if err := p.runChecks(ctx, TypeSuspend, acct, in); err != nil {
		return p.fail(TypeSuspend, cmd.AccountID, cmd.RequestID, err)
	}

	e, err := p.newEvent(acct.ID, model.EventAccountSuspended,
		model.AccountSuspendedPayload{Reason: cmd.Reason, AdminID: cmd.AdminID}, cmd.RequestID)
	if err != nil {
		return p.fail(TypeSuspend, cmd.AccountID, cmd.RequestID, err)
	}
	res, err := p.commit(ctx, acct, e, cmd.RequestID)
	if err != nil {
		return p.fail(TypeSuspend, cmd.AccountID, cmd.RequestID, err)
	}

	p.afterCommit(ctx, e, []string{jobs.TypeNotificationDispatch, jobs.TypeComplianceRemediation}, jobPayload{
		AggregateID: acct.ID, EventID: e.EventID, EventType: e.Type.String(), Reason: cmd.Reason,
	})
	return res
}

// UpdatePaymentMethods replaces the account's stored payment instruments.
func (p *Processor) UpdatePaymentMethods(ctx context.Context, cmd UpdatePaymentMethodsCommand) Result {
	if err := cmd.Validate(); err != nil {
		return p.fail(TypeUpdatePaymentMethods, cmd.AccountID, cmd.RequestID, err)
	}
	if res, ok := p.cached(ctx, cmd.RequestID); ok {
		return res
	}

	acct, err := p.loadAccount(ctx, cmd.AccountID, cmd.ExpectedVersion)
	if err != nil {
		return p.fail(TypeUpdatePaymentMethods, cmd.AccountID, cmd.RequestID, err)
	}
	if !acct.Status.CanUpdatePaymentMethods() {
		return p.fail(TypeUpdatePaymentMethods, cmd.AccountID, cmd.RequestID, updateGuardError(acct))
	}

	in := assess.Input{CommandType: TypeUpdatePaymentMethods}
	if err := p.runChecks(ctx, TypeUpdatePaymentMethods, acct, in); err != nil {
		return p.fail(TypeUpdatePaymentMethods, cmd.AccountID, cmd.RequestID, err)
	}

	e, err := p.newEvent(acct.ID, model.EventPaymentMethodsUpdated,
		model.PaymentMethodsUpdatedPayload{Methods: cmd.Methods, DefaultMethod: cmd.DefaultMethod}, cmd.RequestID)
	if err != nil {
		return p.fail(TypeUpdatePaymentMethods, cmd.AccountID, cmd.RequestID, err)
	}
	res, err := p.commit(ctx, acct, e, cmd.RequestID)
	if err != nil {
		return p.fail(TypeUpdatePaymentMethods, cmd.AccountID, cmd.RequestID, err)
	}

	p.afterCommit(ctx, e, []string{jobs.TypeRiskReview}, jobPayload{
		AggregateID: acct.ID, EventID: e.EventID, EventType: e.Type.String(),
	})
	return res
}

// loadAccount observes the stream's current version and reconstructs the
// aggregate. A caller-supplied expected version is checked here, before any
// side effect. Version 0 streams fall back to the projection row so
// accounts registered out-of-band can take their first event.
func (p *Processor) loadAccount(ctx context.Context, id string, expected *int64) (*model.Account, error) {
	version, err := p.store.CurrentVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	if expected != nil && *expected != version {
		return nil, &model.ConcurrencyError{AggregateID: id, ExpectedVersion: *expected, CurrentVersion: version}
	}

	if version == 0 {
		rec, err := p.store.GetAccount(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, &model.NotFoundError{AggregateID: id}
		}
		if err != nil {
			return nil, err
		}
		return &model.Account{
			ID:               rec.ID,
			UserID:           rec.UserID,
			Status:           rec.Status,
			PaymentMethods:   rec.PaymentMethods,
			DefaultMethod:    rec.DefaultMethod,
			SuspensionReason: rec.SuspensionReason,
			UpdatedAt:        rec.UpdatedAt,
		}, nil
	}

	stream, err := p.store.LoadEventStream(ctx, id, 1, 0)
	if err != nil {
		return nil, err
	}
	acct, err := model.Replay(id, stream)
	if err != nil {
		return nil, err
	}
	if acct.UserID == "" {
		// Streams seeded from a pre-registered projection row have no
		// opening event; the owner lives only in the projection.
		if rec, err := p.store.GetAccount(ctx, id); err == nil {
			acct.UserID = rec.UserID
		}
	}
	return acct, nil
}

// runChecks fans the command's declared evaluators out inside their
// circuits and enforces the per-command circuit-open policy.
func (p *Processor) runChecks(ctx context.Context, commandType string, acct *model.Account, in assess.Input) error {
	policy := commandPolicy[commandType]

	var checks []assess.Check
	for _, name := range policy.checks {
		a, ok := p.assessors[name]
		if !ok {
			continue
		}
		checks = append(checks, assess.Check{Name: name, Breaker: p.breakers.Get(name), Assessor: a})
	}
	if len(checks) == 0 {
		return nil
	}

	results, err := assess.Run(ctx, acct, in, checks)
	if err != nil {
		var open *breaker.CircuitOpenError
		if errors.As(err, &open) && policy.onOpen == fallbackToCached {
			if cached, ok := p.assessments.get(acct.ID); ok && allApproved(cached) {
				p.logger.Warn("circuit open, proceeding on cached assessment",
					"circuit", open.Name, "aggregate", acct.ID, "command", commandType)
				return nil
			}
		}
		return err
	}
	p.assessments.put(acct.ID, results)

	for _, name := range policy.checks {
		if r, ok := results[name]; ok && !r.Approved {
			return &RejectedError{Check: name, Reasons: r.Reasons}
		}
	}
	return nil
}

func allApproved(results map[string]assess.Assessment) bool {
	for _, r := range results {
		if !r.Approved {
			return false
		}
	}
	return len(results) > 0
}

// newEvent mints the event id and stamps tracing metadata.
func (p *Processor) newEvent(aggregateID string, typ model.EventType, payload any, requestID string) (*model.Event, error) {
	eventID, err := idgen.NewEventID()
	if err != nil {
		return nil, err
	}
	return model.NewEvent(eventID, aggregateID, typ, payload, model.Metadata{
		CausationID:   requestID,
		CorrelationID: requestID,
		RequestID:     requestID,
	})
}

// commit appends the event with the version observed at load, applies it to
// the aggregate, updates the projection, and records the idempotency result
// as one atomic unit.
func (p *Processor) commit(ctx context.Context, acct *model.Account, e *model.Event, requestID string) (Result, error) {
	observed := acct.Version
	var res Result

	err := p.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.AppendEvents(ctx, acct.ID, []*model.Event{e}, observed); err != nil {
			return err
		}
		if err := acct.Apply(e); err != nil {
			return fmt.Errorf("apply committed event: %w", err)
		}
		if err := tx.ApplyAccount(ctx, acct.Record()); err != nil {
			return err
		}

		res = Result{Success: true, Data: &CommandData{
			AggregateID: acct.ID,
			EventID:     e.EventID,
			Version:     e.Version,
			Status:      acct.Status,
		}}
		raw, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("marshal command result: %w", err)
		}
		return tx.PutCommandResult(ctx, requestID, raw)
	})
	if err != nil {
		return Result{}, err
	}

	p.results.put(requestID, res)
	return res, nil
}

// afterCommit publishes the committed event and enqueues follow-on jobs.
// Both are best effort: the state change is already durable and is never
// rolled back here.
func (p *Processor) afterCommit(ctx context.Context, e *model.Event, jobTypes []string, payload jobPayload) {
	for _, topic := range events.Topics(e.Type) {
		if err := p.publisher.Publish(ctx, topic, e); err != nil {
			p.logger.Warn("publish failed for committed event",
				"topic", topic, "event", e.EventID, "aggregate", e.AggregateID, "err", err)
		}
	}
	for _, jt := range jobTypes {
		if err := p.jobs.Enqueue(ctx, jt, payload); err != nil {
			p.logger.Warn("job enqueue failed",
				"job", jt, "event", e.EventID, "aggregate", e.AggregateID, "err", err)
		}
	}
}

// cached answers duplicate submissions with the original result.
func (p *Processor) cached(ctx context.Context, requestID string) (Result, bool) {
	if res, ok := p.results.get(requestID); ok {
		return res, true
	}

	raw, err := p.store.GetCommandResult(ctx, requestID)
	if errors.Is(err, store.ErrNotFound) {
		return Result{}, false
	}
	if err != nil {
		p.logger.Warn("idempotency lookup failed", "request_id", requestID, "err", err)
		return Result{}, false
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		p.logger.Warn("stored command result unreadable", "request_id", requestID, "err", err)
		return Result{}, false
	}
	p.results.put(requestID, res)
	return res, true
}

// fail converts an error to a failure result, logging unexpected errors
// with full context instead of leaking internals to the caller.
func (p *Processor) fail(commandType, aggregateID, requestID string, err error) Result {
	res := resultFromError(err)
	if res.Error == CodeInternal {
		p.logger.Error("command failed",
			"command", commandType, "aggregate", aggregateID, "request_id", requestID, "err", err)
	}
	return res
}

func activateGuardError(acct *model.Account) error {
	msg := fmt.Sprintf("Account cannot be activated from status %q", acct.Status)
	if acct.Status == model.StatusActive {
		msg = "Account is already active"
	} else if acct.Status == model.StatusTerminated {
		msg = "Account is terminated"
	}
	return &model.InvalidStateError{AggregateID: acct.ID, Status: acct.Status, Message: msg}
}

func suspendGuardError(acct *model.Account) error {
	msg := fmt.Sprintf("Account cannot be suspended from status %q", acct.Status)
	if acct.Status == model.StatusSuspended {
		msg = "Account is already suspended"
	} else if acct.Status == model.StatusTerminated {
		msg = "Account is terminated"
	}
	return &model.InvalidStateError{AggregateID: acct.ID, Status: acct.Status, Message: msg}
}

func updateGuardError(acct *model.Account) error {
	msg := fmt.Sprintf("Payment methods cannot be changed in status %q", acct.Status)
	if acct.Status == model.StatusTerminated {
		msg = "Account is terminated"
	}
	return &model.InvalidStateError{AggregateID: acct.ID, Status: acct.Status, Message: msg}
}
