// Package postgres stores entries in a single kv_entries table. Update runs
// at SERIALIZABLE isolation and retries serialization failures. Changes are
// fanned out in-process only.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/mobileshop/internal/store"
	"github.com/utafrali/mobileshop/internal/store/postgres/migrations"
	"github.com/utafrali/mobileshop/pkg/database"
)

const (
	backendName = "postgres"
	dbSystem    = "postgresql"
)

const (
	sqlRead   = `SELECT value, version FROM kv_entries WHERE path = $1`
	sqlList   = `SELECT path, value, version FROM kv_entries WHERE path LIKE $1 ESCAPE '\' ORDER BY path`
	sqlWrite  = `INSERT INTO kv_entries (path, value, version, updated_at) VALUES ($1, $2, 1, NOW()) ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value, version = kv_entries.version + 1, updated_at = NOW() RETURNING version`
	sqlPatch  = `UPDATE kv_entries SET value = value || $2::jsonb, version = version + 1, updated_at = NOW() WHERE path = $1 RETURNING value, version`
	sqlDelete = `DELETE FROM kv_entries WHERE path = $1`
)

// querier is implemented by both the pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a Postgres-backed store.Store.
type Store struct {
	db         database.DBTX
	hub        *store.Hub
	maxRetries int
}

var _ store.Store = (*Store)(nil)

// New creates a store over db.
func New(db database.DBTX, maxRetries int) *Store {
	if maxRetries <= 0 {
		maxRetries = store.DefaultMaxRetries
	}
	return &Store{db: db, hub: store.NewHub(), maxRetries: maxRetries}
}

// Migrate applies the embedded schema.
func Migrate(ctx context.Context, db database.DBTX, logger *slog.Logger) error {
	return database.RunMigrations(ctx, db, migrations.FS, logger)
}

func (s *Store) direct() *ops {
	return &ops{q: s.db, emit: func(c store.Change) { s.hub.Publish(c) }}
}

// Read returns the entry at path.
func (s *Store) Read(ctx context.Context, path string) (*store.Entry, error) {
	return s.direct().Read(ctx, path)
}

// List returns the entries below prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]store.Entry, error) {
	return s.direct().List(ctx, prefix)
}

// Write upserts the document at path.
func (s *Store) Write(ctx context.Context, path string, value any) error {
	return s.direct().Write(ctx, path, value)
}

// Patch merges fields into the document at path with the jsonb || operator.
func (s *Store) Patch(ctx context.Context, path string, fields map[string]any) error {
	return s.direct().Patch(ctx, path, fields)
}

// Delete removes the entry at path.
func (s *Store) Delete(ctx context.Context, path string) error {
	return s.direct().Delete(ctx, path)
}

// Update runs fn in a serializable transaction, retrying serialization
// failures and deadlocks.
func (s *Store) Update(ctx context.Context, fn store.TxFunc) error {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		changes, err := s.runTx(ctx, fn)
		if isRetryable(err) {
			store.ObserveRetry(backendName)
			continue
		}
		if err != nil {
			return err
		}
		s.hub.Publish(changes...)
		return nil
	}
	return store.ErrRetriesExhausted(s.maxRetries)
}

func (s *Store) runTx(ctx context.Context, fn store.TxFunc) (changes []store.Change, err error) {
	ctx, end := database.TraceQuery(ctx, dbSystem, "kv.update", "BEGIN ISOLATION LEVEL SERIALIZABLE")
	defer func() { end(err) }()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, fmt.Errorf("begin kv tx: %w", err)
	}
	o := &ops{q: tx, emit: func(c store.Change) { changes = append(changes, c) }}
	if err = fn(ctx, o); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit kv tx: %w", err)
	}
	return changes, nil
}

// Subscribe registers onChange for changes committed through this process.
func (s *Store) Subscribe(ctx context.Context, path string, onChange func(store.Change)) (func(), error) {
	if err := store.ValidatePath(path); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(ctx, path, onChange), nil
}

// Ping checks the database.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the pool when db owns one.
func (s *Store) Close() error {
	if c, ok := s.db.(interface{ Close() }); ok {
		c.Close()
	}
	return nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ops runs store operations on a querier and reports each mutation to emit.
type ops struct {
	q    querier
	emit func(store.Change)
}

func (o *ops) Read(ctx context.Context, path string) (_ *store.Entry, err error) {
	if err := store.ValidatePath(path); err != nil {
		return nil, err
	}
	ctx, end := database.TraceQuery(ctx, dbSystem, "kv.read", sqlRead)
	defer func() { end(err) }()

	var value []byte
	var version int64
	if err := o.q.QueryRow(ctx, sqlRead, path).Scan(&value, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.NotFound(path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &store.Entry{Path: path, Value: value, Version: version}, nil
}

func (o *ops) List(ctx context.Context, prefix string) (_ []store.Entry, err error) {
	if err := store.ValidatePath(prefix); err != nil {
		return nil, err
	}
	ctx, end := database.TraceQuery(ctx, dbSystem, "kv.list", sqlList)
	defer func() { end(err) }()

	rows, err := o.q.Query(ctx, sqlList, escapeLike(prefix)+"/%")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	defer rows.Close()

	var out []store.Entry
	for rows.Next() {
		var e store.Entry
		var value []byte
		if err := rows.Scan(&e.Path, &value, &e.Version); err != nil {
			return nil, fmt.Errorf("scan %s: %w", prefix, err)
		}
		e.Value = value
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return out, nil
}

func (o *ops) Write(ctx context.Context, path string, value any) (err error) {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	data, err := store.Encode(value)
	if err != nil {
		return err
	}
	ctx, end := database.TraceQuery(ctx, dbSystem, "kv.write", sqlWrite)
	defer func() { end(err) }()

	var version int64
	if err := o.q.QueryRow(ctx, sqlWrite, path, []byte(data)).Scan(&version); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	o.emit(store.Change{Path: path, Op: store.OpSet, Value: data, Version: version})
	return nil
}

func (o *ops) Patch(ctx context.Context, path string, fields map[string]any) (err error) {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	ctx, end := database.TraceQuery(ctx, dbSystem, "kv.patch", sqlPatch)
	defer func() { end(err) }()

	var value []byte
	var version int64
	if err := o.q.QueryRow(ctx, sqlPatch, path, patch).Scan(&value, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.NotFound(path)
		}
		return fmt.Errorf("patch %s: %w", path, err)
	}
	o.emit(store.Change{Path: path, Op: store.OpPatch, Value: value, Version: version})
	return nil
}

func (o *ops) Delete(ctx context.Context, path string) (err error) {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	ctx, end := database.TraceQuery(ctx, dbSystem, "kv.delete", sqlDelete)
	defer func() { end(err) }()

	tag, err := o.q.Exec(ctx, sqlDelete, path)
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	if tag.RowsAffected() > 0 {
		o.emit(store.Change{Path: path, Op: store.OpDelete})
	}
	return nil
}
