package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"
)

type SQLStore struct {
	db         *sql.DB
	driverName string
}

// New opens the database, verifies the connection and brings the schema up to
// date. It must complete before the server starts accepting requests.
func New(driverName, dataSourceName string) (*SQLStore, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}
	if driverName == "sqlite3" {
		// A single connection serializes writers and keeps :memory: databases
		// visible across the pool.
		db.SetMaxOpenConns(1)
	}

	s := &SQLStore{db: db, driverName: driverName}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("schema init: %w", err)
	}
	return s, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

const baseSchema = `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		nickname TEXT NOT NULL UNIQUE,
		email TEXT UNIQUE,
		password TEXT NOT NULL,
		profile_photo BLOB,
		is_verified BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_active DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_name TEXT,
		chat_type TEXT NOT NULL,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS dialogs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL REFERENCES chats(id),
		user1_id INTEGER NOT NULL REFERENCES users(id),
		user2_id INTEGER NOT NULL REFERENCES users(id),
		UNIQUE (user1_id, user2_id)
	);

	CREATE TABLE IF NOT EXISTS group_chats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL REFERENCES chats(id),
		creator_id INTEGER NOT NULL REFERENCES users(id),
		description TEXT NOT NULL DEFAULT '',
		photo BLOB
	);

	CREATE TABLE IF NOT EXISTS group_members (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		group_chat_id INTEGER NOT NULL REFERENCES group_chats(id),
		user_id INTEGER NOT NULL REFERENCES users(id),
		status TEXT NOT NULL DEFAULT 'active',
		invited_by INTEGER REFERENCES users(id),
		joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (group_chat_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS group_admins (
		group_chat_id INTEGER NOT NULL REFERENCES group_chats(id),
		user_id INTEGER NOT NULL REFERENCES users(id),
		level INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (group_chat_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL REFERENCES chats(id),
		sender_id INTEGER NOT NULL REFERENCES users(id),
		content TEXT NOT NULL DEFAULT '',
		media BLOB,
		media_type TEXT,
		media_name TEXT,
		reply_to_id INTEGER REFERENCES messages(id),
		forwarded_from_id INTEGER REFERENCES messages(id),
		is_system BOOLEAN NOT NULL DEFAULT FALSE,
		is_edited BOOLEAN NOT NULL DEFAULT FALSE,
		edited_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS message_reads (
		message_id INTEGER NOT NULL REFERENCES messages(id),
		user_id INTEGER NOT NULL REFERENCES users(id),
		read_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (message_id, user_id)
	);
`

// Columns added after the first release. Databases created by older builds
// get them via ALTER TABLE; nothing is ever dropped or rewritten.
var evolvedColumns = []struct {
	table, column, decl string
}{
	{"users", "email", "TEXT"},
	{"users", "is_verified", "BOOLEAN NOT NULL DEFAULT FALSE"},
	{"users", "last_active", "DATETIME"},
	{"chats", "is_deleted", "BOOLEAN NOT NULL DEFAULT FALSE"},
	{"group_chats", "photo", "BLOB"},
	{"group_members", "status", "TEXT NOT NULL DEFAULT 'active'"},
	{"group_members", "invited_by", "INTEGER"},
	{"messages", "media", "BLOB"},
	{"messages", "media_type", "TEXT"},
	{"messages", "media_name", "TEXT"},
	{"messages", "reply_to_id", "INTEGER"},
	{"messages", "forwarded_from_id", "INTEGER"},
	{"messages", "is_system", "BOOLEAN NOT NULL DEFAULT FALSE"},
	{"messages", "is_edited", "BOOLEAN NOT NULL DEFAULT FALSE"},
	{"messages", "edited_at", "DATETIME"},
}

func (s *SQLStore) initSchema() error {
	query := baseSchema
	if s.driverName == "postgres" {
		query = strings.ReplaceAll(query, "INTEGER PRIMARY KEY AUTOINCREMENT", "SERIAL PRIMARY KEY")
		query = strings.ReplaceAll(query, "DATETIME", "TIMESTAMP")
		query = strings.ReplaceAll(query, "BLOB", "BYTEA")
	}
	if _, err := s.db.Exec(query); err != nil {
		return err
	}
	return s.ensureColumns()
}

func (s *SQLStore) ensureColumns() error {
	for _, c := range evolvedColumns {
		exists, err := s.columnExists(c.table, c.column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		decl := c.decl
		if s.driverName == "postgres" {
			decl = strings.ReplaceAll(decl, "DATETIME", "TIMESTAMP")
			decl = strings.ReplaceAll(decl, "BLOB", "BYTEA")
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.table, c.column, decl)
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("add column %s.%s: %w", c.table, c.column, err)
		}
	}
	return nil
}

func (s *SQLStore) columnExists(table, column string) (bool, error) {
	var count int
	var err error
	if s.driverName == "postgres" {
		err = s.db.QueryRow(
			"SELECT COUNT(*) FROM information_schema.columns WHERE table_name = $1 AND column_name = $2",
			table, column).Scan(&count)
	} else {
		err = s.db.QueryRow(
			"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?",
			table, column).Scan(&count)
	}
	return count > 0, err
}

// rebind converts ? placeholders to $N for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driverName == "postgres" {
		n := strings.Count(query, "?")
		for i := 1; i <= n; i++ {
			query = strings.Replace(query, "?", fmt.Sprintf("$%d", i), 1)
		}
	}
	return query
}

// ignoreConflict turns a plain INSERT into an insert-or-ignore for the driver.
func (s *SQLStore) ignoreConflict(query string) string {
	if s.driverName == "postgres" {
		return query + " ON CONFLICT DO NOTHING"
	}
	return strings.Replace(query, "INSERT INTO", "INSERT OR IGNORE INTO", 1)
}

func (s *SQLStore) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}

// nullIfEmpty maps zero values to SQL NULL for optional columns.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZero(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func nullIfNoBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
