package kvstore

import (
	"database/sql"
	"errors"

	rerrors "github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/internal/sqlite"
)

const preferencesSchema = `CREATE TABLE IF NOT EXISTS preferences (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// SQLiteStore keeps preferences in a SQLite table. Change notifications cover
// the contexts of this process only.
type SQLiteStore struct {
	db       *sql.DB
	notifier notifier
}

// OpenSQLiteStore opens (creating if needed) the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, rerrors.NewValidation("path", path, "sqlite store requires a path")
	}
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, rerrors.NewStorage(BackendSQLite, "", err)
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(preferencesSchema); err != nil {
		db.Close()
		return nil, rerrors.NewStorage(BackendSQLite, "", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, rerrors.NewStorage(BackendSQLite, key, err)
	}
	return v, true, nil
}

// Set reads the old value and writes the new one in one transaction, so
// concurrent writers of the same value announce it once.
func (s *SQLiteStore) Set(origin, key, value string) error {
	changed, err := s.upsert(key, value)
	if err != nil {
		return rerrors.NewStorage(BackendSQLite, key, err)
	}
	if changed {
		s.notifier.notify(Change{Key: key, Value: value, Origin: origin})
	}
	return nil
}

func (s *SQLiteStore) upsert(key, value string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var old string
	err = tx.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&old)
	existed := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	if existed && old == value {
		return false, nil
	}
	if _, err := tx.Exec(`INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *SQLiteStore) All() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM preferences ORDER BY key`)
	if err != nil {
		return nil, rerrors.NewStorage(BackendSQLite, "", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, rerrors.NewStorage(BackendSQLite, "", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, rerrors.NewStorage(BackendSQLite, "", err)
	}
	return out, nil
}

func (s *SQLiteStore) Subscribe(origin string, fn func(Change)) func() {
	return s.notifier.subscribe(origin, fn)
}

func (s *SQLiteStore) Backend() string { return BackendSQLite }

func (s *SQLiteStore) Close() error {
	s.notifier.closeAll()
	return s.db.Close()
}
