package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/zugdienste/internal/ir"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - empty database
// 1 - services and scan_runs
const currentSchemaVersion = ir.SchemaVersion

// Store provides durable storage for service records.
type Store struct {
	db       *sql.DB
	path     string
	readOnly bool
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The parent directory must exist. Any failure is returned as a
// *StoreOpenError.
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &StoreOpenError{Path: path, Err: err}
	}
	if !info.IsDir() {
		return nil, &StoreOpenError{Path: path, Err: fmt.Errorf("%s is not a directory", dir)}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &StoreOpenError{Path: path, Err: err}
	}

	// Verify connection works; this creates the file.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &StoreOpenError{Path: path, Err: fmt.Errorf("connect: %w", err)}
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, &StoreOpenError{Path: path, Err: err}
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, &StoreOpenError{Path: path, Err: err}
	}

	return &Store{db: db, path: path}, nil
}

// OpenReadOnly opens an existing zugdienste database without writing to it.
// No pragmas or migrations are applied. A file whose schema version is not
// the current one is rejected with *StoreOpenError, so a foreign SQLite
// file is never touched.
func OpenReadOnly(path string) (*Store, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &StoreOpenError{Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &StoreOpenError{Path: path, Err: errors.New("is a directory")}
	}

	db, err := sql.Open("sqlite3", readOnlyDSN(path))
	if err != nil {
		return nil, &StoreOpenError{Path: path, Err: err}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		db.Close()
		return nil, &StoreOpenError{Path: path, Err: fmt.Errorf("get user_version: %w", err)}
	}
	if version != currentSchemaVersion {
		db.Close()
		return nil, &StoreOpenError{
			Path: path,
			Err:  fmt.Errorf("schema version %d, expected %d: not a zugdienste database", version, currentSchemaVersion),
		}
	}

	return &Store{db: db, path: path, readOnly: true}, nil
}

var uriEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

// readOnlyDSN builds a SQLite URI filename that opens path in read-only mode.
func readOnlyDSN(path string) string {
	return "file:" + uriEscaper.Replace(path) + "?mode=ro"
}

// Path returns the database file the store was opened on.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL into the main file and closes the connection,
// leaving no -wal or -shm files behind. A read-only store is closed as is.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if s.readOnly {
		err := s.db.Close()
		s.db = nil
		return wrapClose("close", err)
	}
	_, ckErr := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	_, jmErr := s.db.Exec("PRAGMA journal_mode = DELETE")
	err := s.db.Close()
	s.db = nil
	return errors.Join(wrapClose("checkpoint", ckErr), wrapClose("journal mode", jmErr), wrapClose("close", err))
}

func wrapClose(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
