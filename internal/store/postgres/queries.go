package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/groblegark/payd/internal/model"
	"github.com/groblegark/payd/internal/store"
)

// eventColumns is the column list used for SELECT statements on the events table.
const eventColumns = `event_id, aggregate_id, version, type, payload,
	causation_id, correlation_id, request_id, created_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func queryAppendEvents(ctx context.Context, db executor, aggregateID string, events []*model.Event, expectedVersion int64) error {
	if len(events) == 0 {
		return store.ErrNoEvents
	}

	// Structural validation before touching the database.
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if err := model.ValidateEvent(e); err != nil {
			return err
		}
		if e.AggregateID != aggregateID {
			var ve model.ValidationError
			ve.Add("aggregate_id", fmt.Sprintf("event %s belongs to %s, not %s", e.EventID, e.AggregateID, aggregateID))
			return &ve
		}
		if _, dup := seen[e.EventID]; dup {
			var ve model.ValidationError
			ve.Add("event_id", fmt.Sprintf("duplicate event id %s in batch", e.EventID))
			return &ve
		}
		seen[e.EventID] = struct{}{}
	}

	current, err := queryCurrentVersion(ctx, db, aggregateID)
	if err != nil {
		return err
	}
	if expectedVersion != store.AnyVersion && current != expectedVersion {
		return &model.ConcurrencyError{
			AggregateID:     aggregateID,
			ExpectedVersion: expectedVersion,
			CurrentVersion:  current,
		}
	}

	for i, e := range events {
		e.Version = current + int64(i) + 1
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now().UTC()
		}
		_, err := db.ExecContext(ctx, `
			INSERT INTO events (
				event_id, aggregate_id, version, type, payload,
				causation_id, correlation_id, request_id, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			e.EventID,
			e.AggregateID,
			e.Version,
			string(e.Type),
			[]byte(e.Payload),
			e.Metadata.CausationID,
			e.Metadata.CorrelationID,
			e.Metadata.RequestID,
			e.Timestamp,
		)
		if err != nil {
			// A concurrent append won the (aggregate_id, version) slot
			// between our version read and this insert: that is the
			// optimistic-concurrency CAS losing, not a storage fault.
			if isUniqueViolation(err) {
				return &model.ConcurrencyError{
					AggregateID:     aggregateID,
					ExpectedVersion: expectedVersion,
					CurrentVersion:  current,
				}
			}
			return &model.PersistenceError{Op: "append_events", Err: err}
		}
	}

	return nil
}

func queryCurrentVersion(ctx context.Context, db executor, aggregateID string) (int64, error) {
	var version int64
	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = $1`,
		aggregateID,
	).Scan(&version)
	if err != nil {
		return 0, &model.PersistenceError{Op: "current_version", Err: err}
	}
	return version, nil
}

func queryLoadEventStream(ctx context.Context, db executor, aggregateID string, fromVersion, toVersion int64) ([]*model.Event, error) {
	if fromVersion < 1 {
		fromVersion = 1
	}

	query := `SELECT ` + eventColumns + ` FROM events WHERE aggregate_id = $1 AND version >= $2`
	args := []any{aggregateID, fromVersion}
	if toVersion > 0 {
		query += ` AND version <= $3`
		args = append(args, toVersion)
	}
	query += ` ORDER BY version ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &model.PersistenceError{Op: "load_event_stream", Err: err}
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	if len(events) == 0 {
		current, err := queryCurrentVersion(ctx, db, aggregateID)
		if err != nil {
			return nil, err
		}
		if current == 0 {
			return nil, store.ErrStreamNotFound
		}
		// The stream exists but the requested range is empty.
	}
	return events, nil
}

func queryEventsByType(ctx context.Context, db executor, typ model.EventType, limit int) ([]*model.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE type = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		string(typ), limit,
	)
	if err != nil {
		return nil, &model.PersistenceError{Op: "events_by_type", Err: err}
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryEventsByUser(ctx context.Context, db executor, userID string, limit int) ([]*model.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT e.event_id, e.aggregate_id, e.version, e.type, e.payload,
			e.causation_id, e.correlation_id, e.request_id, e.created_at
		FROM events e
		JOIN payment_accounts a ON a.id = e.aggregate_id
		WHERE a.user_id = $1
		ORDER BY e.created_at DESC
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, &model.PersistenceError{Op: "events_by_user", Err: err}
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryArchiveBefore(ctx context.Context, db executor, cutoff time.Time) ([]*model.Event, error) {
	// Versions grow with time inside a stream, so deleting everything
	// older than the cutoff always removes a prefix of each stream and
	// preserves the ordering of what remains.
	rows, err := db.QueryContext(ctx, `
		DELETE FROM events
		WHERE created_at < $1
		RETURNING `+eventColumns,
		cutoff,
	)
	if err != nil {
		return nil, &model.PersistenceError{Op: "archive_before", Err: err}
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	sortEventsByStream(events)
	return events, nil
}

func queryGetAccount(ctx context.Context, db executor, id string) (*model.AccountRecord, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, user_id, status, payment_methods, default_method,
			suspension_reason, version, updated_at
		FROM payment_accounts WHERE id = $1`, id)
	rec, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, &model.PersistenceError{Op: "get_account", Err: err}
	}
	return rec, nil
}

func queryApplyAccount(ctx context.Context, db executor, rec *model.AccountRecord) error {
	methods, err := json.Marshal(rec.PaymentMethods)
	if err != nil {
		return fmt.Errorf("marshal payment methods: %w", err)
	}

	// The version guard keeps a stale writer from clobbering a newer row.
	_, err = db.ExecContext(ctx, `
		INSERT INTO payment_accounts (
			id, user_id, status, payment_methods, default_method,
			suspension_reason, version, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			status = EXCLUDED.status,
			payment_methods = EXCLUDED.payment_methods,
			default_method = EXCLUDED.default_method,
			suspension_reason = EXCLUDED.suspension_reason,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
		WHERE payment_accounts.version <= EXCLUDED.version`,
		rec.ID,
		rec.UserID,
		string(rec.Status),
		methods,
		rec.DefaultMethod,
		rec.SuspensionReason,
		rec.Version,
		rec.UpdatedAt,
	)
	if err != nil {
		return &model.PersistenceError{Op: "apply_account", Err: err}
	}
	return nil
}

func queryGetCommandResult(ctx context.Context, db executor, requestID string) (json.RawMessage, error) {
	var result []byte
	err := db.QueryRowContext(ctx,
		`SELECT result FROM request_cache WHERE request_id = $1`, requestID,
	).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, &model.PersistenceError{Op: "get_command_result", Err: err}
	}
	return json.RawMessage(result), nil
}

func queryPutCommandResult(ctx context.Context, db executor, requestID string, result json.RawMessage) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO request_cache (request_id, result)
		VALUES ($1, $2)
		ON CONFLICT (request_id) DO NOTHING`,
		requestID, []byte(result),
	)
	if err != nil {
		return &model.PersistenceError{Op: "put_command_result", Err: err}
	}
	return nil
}
