// Package archive exports aged events to cold storage and prunes them
// from the hot store. It never runs on the command write path.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/groblegark/payd/internal/model"
	"github.com/groblegark/payd/internal/store"
)

// Destination receives an archived batch as a named JSONL object.
type Destination interface {
	Write(ctx context.Context, key string, data []byte) error
}

// header is the first JSONL record in an archive object.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Cutoff     time.Time `json:"cutoff"`
	EventCount int       `json:"event_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Archiver moves events recorded before a cutoff out of the store.
type Archiver struct {
	store  store.Store
	dest   Destination
	prefix string
	logger *slog.Logger
}

func New(s store.Store, dest Destination, prefix string, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{store: s, dest: dest, prefix: prefix, logger: logger}
}

// Run archives all events recorded before cutoff and returns how many were
// moved. Prune and export commit together: a failed upload rolls the
// deletion back, so no event is lost between the store and the archive.
func (a *Archiver) Run(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	err := a.store.RunInTransaction(ctx, func(tx store.Store) error {
		events, err := tx.ArchiveBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		count = len(events)
		if count == 0 {
			return nil
		}

		data, err := encodeJSONL(events, cutoff)
		if err != nil {
			return err
		}
		key := objectKey(a.prefix, cutoff)
		if err := a.dest.Write(ctx, key, data); err != nil {
			return fmt.Errorf("archive upload: %w", err)
		}

		a.logger.Info("events archived", "key", key, "events", count, "bytes", len(data))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func objectKey(prefix string, cutoff time.Time) string {
	return fmt.Sprintf("%s/events-%s.jsonl", prefix, cutoff.UTC().Format("20060102T150405Z"))
}

// encodeJSONL writes a header line followed by one line per event, in the
// order the store returned them (grouped per stream, ascending version).
func encodeJSONL(events []*model.Event, cutoff time.Time) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	h := header{
		Version:    "1",
		Type:       "header",
		Timestamp:  time.Now().UTC(),
		Cutoff:     cutoff.UTC(),
		EventCount: len(events),
	}
	if err := enc.Encode(record{Type: "header", Data: h}); err != nil {
		return nil, fmt.Errorf("encode archive header: %w", err)
	}
	for _, e := range events {
		if err := enc.Encode(record{Type: "event", Data: e}); err != nil {
			return nil, fmt.Errorf("encode event %s: %w", e.EventID, err)
		}
	}
	return buf.Bytes(), nil
}
