package postgres

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"strata/internal/repository"
)

// uniqueViolation is the SQLSTATE of unique_violation
const uniqueViolation = "23505"

// Options tune the connection pool
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Adapter implements repository.Adapter on PostgreSQL through pgx
type Adapter struct {
	repository.Base
}

// Open connects to PostgreSQL and creates missing tables
func Open(ctx context.Context, dsn string, opts Options) (*Adapter, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}

	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	db.SetMaxOpenConns(maxOpen)
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL database: %w", err)
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Adapter{Base: repository.Base{DB: db, Rebind: repository.RebindDollar}}, nil
}

// EncodeCursor encodes the id as URL safe base64 of its big endian bytes
func (a *Adapter) EncodeCursor(id int64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	return base64.RawURLEncoding.EncodeToString(buf[:])
}

// DecodeCursor reverses EncodeCursor
func (a *Adapter) DecodeCursor(cursor string) (int64, error) {
	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor: %w", err)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid cursor length %d", len(data))
	}
	return int64(binary.BigEndian.Uint64(data)), nil
}

// IsUniqueViolation checks the SQLSTATE and constraint name of a pg error
func (a *Adapter) IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
	}
	return false
}

// RandomUUID returns a random v4 UUID
func (a *Adapter) RandomUUID() string {
	return uuid.NewString()
}

var _ repository.Adapter = (*Adapter)(nil)
