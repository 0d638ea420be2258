package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/yvasilyev92/AddressBook/internal/schema"
)

// Connection settings, passed to the driver as DSN parameters so they apply
// to every connection it opens.
const (
	journalMode = "WAL"
	syncMode    = "NORMAL"
	busyTimeout = 5 * time.Second
)

// Store is the SQLite storage engine.
// Safe for concurrent use; statements are serialized on one connection.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens the database at path, creating it and the contacts table if
// needed. ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return s, nil
}

func dsn(path string) string {
	params := url.Values{}
	params.Set("_journal_mode", journalMode)
	params.Set("_synchronous", syncMode)
	params.Set("_busy_timeout", strconv.FormatInt(busyTimeout.Milliseconds(), 10))

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + params.Encode()
}

// Path returns the path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// migrate creates the contacts table and records schema.Version in
// user_version. A database stamped with a newer version is refused.
func (s *Store) migrate() error {
	version, err := s.pragma("user_version")
	if err != nil {
		return err
	}
	v, err := strconv.Atoi(version)
	if err != nil {
		return fmt.Errorf("user_version %q: %w", version, err)
	}
	if v > schema.Version {
		return fmt.Errorf("schema version %d is newer than supported version %d", v, schema.Version)
	}

	if _, err := s.db.Exec(schema.CreateSQL); err != nil {
		return fmt.Errorf("create %s table: %w", schema.TableName, err)
	}
	if v < schema.Version {
		if _, err := s.db.Exec("PRAGMA user_version = " + strconv.Itoa(schema.Version)); err != nil {
			return fmt.Errorf("stamp user_version: %w", err)
		}
	}
	return nil
}

// pragma reads back a PRAGMA value as text.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}
