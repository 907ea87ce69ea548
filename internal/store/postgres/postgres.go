// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/groblegark/payd/internal/model"
	"github.com/groblegark/payd/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) AppendEvents(ctx context.Context, aggregateID string, events []*model.Event, expectedVersion int64) error {
	// A single append outside an explicit transaction still commits
	// atomically: wrap it in one.
	return s.RunInTransaction(ctx, func(tx store.Store) error {
		return tx.AppendEvents(ctx, aggregateID, events, expectedVersion)
	})
}

func (s *PostgresStore) LoadEventStream(ctx context.Context, aggregateID string, fromVersion, toVersion int64) ([]*model.Event, error) {
	return queryLoadEventStream(ctx, s.db, aggregateID, fromVersion, toVersion)
}

func (s *PostgresStore) CurrentVersion(ctx context.Context, aggregateID string) (int64, error) {
	return queryCurrentVersion(ctx, s.db, aggregateID)
}

func (s *PostgresStore) AggregateExists(ctx context.Context, aggregateID string) (bool, error) {
	v, err := queryCurrentVersion(ctx, s.db, aggregateID)
	if err != nil {
		return false, err
	}
	return v > 0, nil
}

func (s *PostgresStore) EventsByType(ctx context.Context, typ model.EventType, limit int) ([]*model.Event, error) {
	return queryEventsByType(ctx, s.db, typ, limit)
}

func (s *PostgresStore) EventsByUser(ctx context.Context, userID string, limit int) ([]*model.Event, error) {
	return queryEventsByUser(ctx, s.db, userID, limit)
}

func (s *PostgresStore) ArchiveBefore(ctx context.Context, cutoff time.Time) ([]*model.Event, error) {
	return queryArchiveBefore(ctx, s.db, cutoff)
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*model.AccountRecord, error) {
	return queryGetAccount(ctx, s.db, id)
}

func (s *PostgresStore) ApplyAccount(ctx context.Context, rec *model.AccountRecord) error {
	return queryApplyAccount(ctx, s.db, rec)
}

func (s *PostgresStore) GetCommandResult(ctx context.Context, requestID string) (json.RawMessage, error) {
	return queryGetCommandResult(ctx, s.db, requestID)
}

func (s *PostgresStore) PutCommandResult(ctx context.Context, requestID string, result json.RawMessage) error {
	return queryPutCommandResult(ctx, s.db, requestID, result)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) AppendEvents(ctx context.Context, aggregateID string, events []*model.Event, expectedVersion int64) error {
	return queryAppendEvents(ctx, s.tx, aggregateID, events, expectedVersion)
}

func (s *txStore) LoadEventStream(ctx context.Context, aggregateID string, fromVersion, toVersion int64) ([]*model.Event, error) {
	return queryLoadEventStream(ctx, s.tx, aggregateID, fromVersion, toVersion)
}

func (s *txStore) CurrentVersion(ctx context.Context, aggregateID string) (int64, error) {
	return queryCurrentVersion(ctx, s.tx, aggregateID)
}

func (s *txStore) AggregateExists(ctx context.Context, aggregateID string) (bool, error) {
	v, err := queryCurrentVersion(ctx, s.tx, aggregateID)
	if err != nil {
		return false, err
	}
	return v > 0, nil
}

func (s *txStore) EventsByType(ctx context.Context, typ model.EventType, limit int) ([]*model.Event, error) {
	return queryEventsByType(ctx, s.tx, typ, limit)
}

func (s *txStore) EventsByUser(ctx context.Context, userID string, limit int) ([]*model.Event, error) {
	return queryEventsByUser(ctx, s.tx, userID, limit)
}

func (s *txStore) ArchiveBefore(ctx context.Context, cutoff time.Time) ([]*model.Event, error) {
	return queryArchiveBefore(ctx, s.tx, cutoff)
}

func (s *txStore) GetAccount(ctx context.Context, id string) (*model.AccountRecord, error) {
	return queryGetAccount(ctx, s.tx, id)
}

func (s *txStore) ApplyAccount(ctx context.Context, rec *model.AccountRecord) error {
	return queryApplyAccount(ctx, s.tx, rec)
}

func (s *txStore) GetCommandResult(ctx context.Context, requestID string) (json.RawMessage, error) {
	return queryGetCommandResult(ctx, s.tx, requestID)
}

func (s *txStore) PutCommandResult(ctx context.Context, requestID string, result json.RawMessage) error {
	return queryPutCommandResult(ctx, s.tx, requestID, result)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
