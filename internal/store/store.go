package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/groblegark/payd/internal/model"
)

// AnyVersion disables the optimistic-concurrency check on append.
const AnyVersion int64 = -1

var (
	// ErrStreamNotFound is returned when loading a stream with zero events.
	ErrStreamNotFound = errors.New("event stream not found")

	// ErrNotFound is returned when an addressed projection row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoEvents is returned when appending an empty batch.
	ErrNoEvents = errors.New("no events to append")
)

// Store defines the persistence interface for the command pipeline: the
// append-only event log, the account projection, and the request-id
// idempotency cache. All three live in one database so a transaction can
// cover an append together with its projection update.
type Store interface {
	// Event log
	//
	// AppendEvents commits all events as one atomic unit or none, assigning
	// sequential versions starting at the stream's current version + 1.
	// When expectedVersion is not AnyVersion and does not equal the
	// stream's current version, it fails with *model.ConcurrencyError and
	// causes no mutation. Two concurrent appends with the same expected
	// version yield exactly one success; the loser's unique-constraint
	// violation surfaces as *model.ConcurrencyError.
	AppendEvents(ctx context.Context, aggregateID string, events []*model.Event, expectedVersion int64) error
	// LoadEventStream returns the stream's events ordered by version,
	// restricted to [fromVersion, toVersion]; toVersion 0 means the end of
	// the stream. An empty stream fails with ErrStreamNotFound.
	LoadEventStream(ctx context.Context, aggregateID string, fromVersion, toVersion int64) ([]*model.Event, error)
	// CurrentVersion returns the stream's highest version, or 0 when the
	// stream does not exist (not an error).
	CurrentVersion(ctx context.Context, aggregateID string) (int64, error)
	AggregateExists(ctx context.Context, aggregateID string) (bool, error)

	// Audit/reporting read paths; not part of the write-path contract.
	EventsByType(ctx context.Context, typ model.EventType, limit int) ([]*model.Event, error)
	EventsByUser(ctx context.Context, userID string, limit int) ([]*model.Event, error)

	// ArchiveBefore removes events recorded before cutoff and returns
	// them ordered by aggregate and version for export. Out-of-band
	// maintenance only; never part of the transactional write path.
	ArchiveBefore(ctx context.Context, cutoff time.Time) ([]*model.Event, error)

	// Projection
	GetAccount(ctx context.Context, id string) (*model.AccountRecord, error)
	ApplyAccount(ctx context.Context, rec *model.AccountRecord) error

	// Idempotency cache
	//
	// GetCommandResult returns the stored result for a request id, or
	// ErrNotFound when the request has not been seen.
	GetCommandResult(ctx context.Context, requestID string) (json.RawMessage, error)
	PutCommandResult(ctx context.Context, requestID string, result json.RawMessage) error

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
