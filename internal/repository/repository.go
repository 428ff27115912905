package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Querier runs SQL against the database or an open transaction.
// Placeholders are always written as ?; adapters rebind them.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Adapter is the contract a storage backend fulfils. The engine never
// branches on which adapter is in use.
type Adapter interface {
	Querier

	// WithTx runs fn in a transaction, committing if it returns nil
	WithTx(ctx context.Context, fn func(q Querier) error) error

	// EncodeCursor and DecodeCursor map internal row ids to opaque cursors
	EncodeCursor(id int64) string
	DecodeCursor(cursor string) (int64, error)

	// IsUniqueViolation reports whether err violates the named unique constraint
	IsUniqueViolation(err error, constraint string) bool

	RandomUUID() string
	Close() error
}

// Unique constraint names shared by every adapter's DDL
const (
	ConstraintSchemaVersion    = "schema_versions_version_key"
	ConstraintPrincipal        = "principals_provider_identifier_key"
	ConstraintEntityUUID       = "entities_uuid_key"
	ConstraintEntityName       = "entities_name_key"
	ConstraintEntityVersion    = "entity_versions_entities_id_version_key"
	ConstraintUniqueIndexValue = "unique_index_values_index_name_value_published_key"
	ConstraintAdvisoryLockName = "advisory_locks_name_key"
)

// Base implements Querier and WithTx over database/sql for adapters to embed
type Base struct {
	DB     *sql.DB
	Rebind func(query string) string // nil keeps ? placeholders
}

func (b *Base) rebind(query string) string {
	if b.Rebind == nil {
		return query
	}
	return b.Rebind(query)
}

// QueryContext runs a query outside any transaction
func (b *Base) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return b.DB.QueryContext(ctx, b.rebind(query), args...)
}

// QueryRowContext runs a single row query outside any transaction
func (b *Base) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return b.DB.QueryRowContext(ctx, b.rebind(query), args...)
}

// ExecContext executes a statement outside any transaction
func (b *Base) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return b.DB.ExecContext(ctx, b.rebind(query), args...)
}

// WithTx runs fn in a transaction. A panic in fn rolls back and re-panics.
func (b *Base) WithTx(ctx context.Context, fn func(q Querier) error) (err error) {
	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&txQuerier{tx: tx, rebind: b.rebind}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database
func (b *Base) Close() error {
	return b.DB.Close()
}

type txQuerier struct {
	tx     *sql.Tx
	rebind func(string) string
}

func (t *txQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.rebind(query), args...)
}

func (t *txQuerier) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.rebind(query), args...)
}

func (t *txQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.rebind(query), args...)
}

// RebindDollar rewrites ? placeholders to $1, $2, ... The engine's SQL never
// contains a literal question mark.
func RebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Store holds the engine's portable SQL. Inside WithTx it is bound to the
// open transaction.
type Store struct {
	adapter Adapter
	q       Querier
}

// NewStore creates a store on top of an adapter
func NewStore(adapter Adapter) *Store {
	return &Store{adapter: adapter, q: adapter}
}

// Adapter returns the underlying adapter
func (s *Store) Adapter() Adapter {
	return s.adapter
}

// WithTx runs fn with a store bound to a new transaction
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.adapter.WithTx(ctx, func(q Querier) error {
		return fn(&Store{adapter: s.adapter, q: q})
	})
}

// Savepoint runs fn inside a savepoint of the current transaction. When fn
// fails the work done since the savepoint is undone and the transaction
// stays usable.
func (s *Store) Savepoint(ctx context.Context, name string, fn func() error) error {
	if _, err := s.q.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := s.q.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("failed to roll back savepoint: %w (after %v)", rbErr, err)
		}
		if _, relErr := s.q.ExecContext(ctx, "RELEASE SAVEPOINT "+name); relErr != nil {
			return fmt.Errorf("failed to release savepoint: %w", relErr)
		}
		return err
	}
	if _, err := s.q.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

// EncodeCursor encodes an internal id with the adapter's cursor format
func (s *Store) EncodeCursor(id int64) string {
	return s.adapter.EncodeCursor(id)
}

// DecodeCursor decodes a cursor with the adapter's cursor format
func (s *Store) DecodeCursor(cursor string) (int64, error) {
	return s.adapter.DecodeCursor(cursor)
}

// RandomUUID returns a new random UUID from the adapter
func (s *Store) RandomUUID() string {
	return s.adapter.RandomUUID()
}

// inClause returns "(?, ?, ...)" for n placeholders
func inClause(n int) string {
	if n == 0 {
		return "(NULL)"
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
