package sqlite

import (
	"database/sql"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	_ "modernc.org/sqlite"

	"strata/internal/repository"
)

// Driver names registered by the two SQLite variants
const (
	DriverModernc = "sqlite"
	DriverNcruces = "sqlite3"
)

// Adapter implements repository.Adapter on SQLite
type Adapter struct {
	repository.Base
}

// Open opens a SQLite database through modernc.org/sqlite
func Open(path string) (*Adapter, error) {
	return open(DriverModernc, path)
}

// OpenNcruces opens a SQLite database through github.com/ncruces/go-sqlite3
func OpenNcruces(path string) (*Adapter, error) {
	return open(DriverNcruces, path)
}

func open(driver, path string) (*Adapter, error) {
	db, err := sql.Open(driver, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serialises writers and keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Adapter{Base: repository.Base{DB: db}}, nil
}

func dsn(path string) string {
	pragmas := "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if path == ":memory:" {
		return "file::memory:?" + pragmas
	}
	return "file:" + path + "?" + pragmas + "&_pragma=journal_mode(WAL)"
}

// EncodeCursor encodes the decimal id as base64
func (a *Adapter) EncodeCursor(id int64) string {
	return base64.StdEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10)))
}

// DecodeCursor reverses EncodeCursor
func (a *Adapter) DecodeCursor(cursor string) (int64, error) {
	data, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor: %w", err)
	}
	id, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor: %w", err)
	}
	return id, nil
}

// IsUniqueViolation matches the error message SQLite reports for the
// constraint's column list
func (a *Adapter) IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	columns, ok := uniqueColumns[constraint]
	if !ok {
		return false
	}
	msg := err.Error()
	idx := strings.Index(msg, "UNIQUE constraint failed: ")
	if idx < 0 {
		return false
	}
	rest := msg[idx+len("UNIQUE constraint failed: "):]
	if !strings.HasPrefix(rest, columns) {
		return false
	}
	// Drivers append the extended result code after the column list
	tail := rest[len(columns):]
	return tail == "" || tail[0] == ' ' || tail[0] == '('
}

// RandomUUID returns a random v4 UUID
func (a *Adapter) RandomUUID() string {
	return uuid.NewString()
}

var _ repository.Adapter = (*Adapter)(nil)
