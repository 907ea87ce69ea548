package command

import (
	"context"
	"encoding/json"
	"time"

	"github.com/groblegark/payd/internal/model"
	"github.com/groblegark/payd/internal/store"
)

// mockStore is a minimal in-memory store for processor tests. It enforces
// the same append semantics as the real store: gapless versions and the
// optimistic concurrency check.
type mockStore struct {
	events   map[string][]*model.Event
	accounts map[string]*model.AccountRecord
	results  map[string]json.RawMessage
}

func newMockStore() *mockStore {
	return &mockStore{
		events:   make(map[string][]*model.Event),
		accounts: make(map[string]*model.AccountRecord),
		results:  make(map[string]json.RawMessage),
	}
}

func (m *mockStore) AppendEvents(_ context.Context, aggregateID string, events []*model.Event, expectedVersion int64) error {
	if len(events) == 0 {
		return store.ErrNoEvents
	}
	current := int64(len(m.events[aggregateID]))
	if expectedVersion != store.AnyVersion && expectedVersion != current {
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
		m.events[aggregateID] = append(m.events[aggregateID], e)
	}
	return nil
}

func (m *mockStore) LoadEventStream(_ context.Context, aggregateID string, fromVersion, toVersion int64) ([]*model.Event, error) {
	stream := m.events[aggregateID]
	if len(stream) == 0 {
		return nil, store.ErrStreamNotFound
	}
	var out []*model.Event
	for _, e := range stream {
		if e.Version < fromVersion {
			continue
		}
		if toVersion > 0 && e.Version > toVersion {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *mockStore) CurrentVersion(_ context.Context, aggregateID string) (int64, error) {
	return int64(len(m.events[aggregateID])), nil
}

func (m *mockStore) AggregateExists(_ context.Context, aggregateID string) (bool, error) {
	return len(m.events[aggregateID]) > 0, nil
}

func (m *mockStore) EventsByType(_ context.Context, typ model.EventType, limit int) ([]*model.Event, error) {
	var out []*model.Event
	for _, stream := range m.events {
		for _, e := range stream {
			if e.Type == typ {
				out = append(out, e)
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStore) EventsByUser(_ context.Context, userID string, limit int) ([]*model.Event, error) {
	var out []*model.Event
	for id, rec := range m.accounts {
		if rec.UserID == userID {
			out = append(out, m.events[id]...)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStore) ArchiveBefore(_ context.Context, cutoff time.Time) ([]*model.Event, error) {
	var archived []*model.Event
	for id, stream := range m.events {
		var kept []*model.Event
		for _, e := range stream {
			if e.Timestamp.Before(cutoff) {
				archived = append(archived, e)
			} else {
				kept = append(kept, e)
			}
		}
		m.events[id] = kept
	}
	return archived, nil
}

func (m *mockStore) GetAccount(_ context.Context, id string) (*model.AccountRecord, error) {
	rec, ok := m.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (m *mockStore) ApplyAccount(_ context.Context, rec *model.AccountRecord) error {
	m.accounts[rec.ID] = rec
	return nil
}

func (m *mockStore) GetCommandResult(_ context.Context, requestID string) (json.RawMessage, error) {
	raw, ok := m.results[requestID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return raw, nil
}

func (m *mockStore) PutCommandResult(_ context.Context, requestID string, result json.RawMessage) error {
	if _, ok := m.results[requestID]; ok {
		return nil
	}
	m.results[requestID] = result
	return nil
}

func (m *mockStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(m)
}

func (m *mockStore) Close() error { return nil }
