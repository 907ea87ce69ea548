package postgres

import (
	"database/sql"
	"encoding/json"
	"sort"

	"github.com/groblegark/payd/internal/model"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var (
		e       model.Event
		typ     string
		payload []byte
	)
	err := row.Scan(
		&e.EventID,
		&e.AggregateID,
		&e.Version,
		&typ,
		&payload,
		&e.Metadata.CausationID,
		&e.Metadata.CorrelationID,
		&e.Metadata.RequestID,
		&e.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	e.Type = model.EventType(typ)
	e.Payload = json.RawMessage(payload)
	return &e, nil
}

func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, &model.PersistenceError{Op: "scan_event", Err: err}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.PersistenceError{Op: "scan_events", Err: err}
	}
	return events, nil
}

func scanAccount(row rowScanner) (*model.AccountRecord, error) {
	var (
		rec     model.AccountRecord
		status  string
		methods []byte
	)
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&status,
		&methods,
		&rec.DefaultMethod,
		&rec.SuspensionReason,
		&rec.Version,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = model.Status(status)
	if len(methods) > 0 {
		if err := json.Unmarshal(methods, &rec.PaymentMethods); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

// sortEventsByStream orders events by aggregate id, then version. Used for
// archival export so each stream's prefix is written contiguously.
func sortEventsByStream(events []*model.Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].AggregateID != events[j].AggregateID {
			return events[i].AggregateID < events[j].AggregateID
		}
		return events[i].Version < events[j].Version
	})
}
