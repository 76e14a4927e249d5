package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const (
	sqlCreateRecordsTable = `CREATE TABLE IF NOT EXISTS records(
                        namespace varchar(200) NOT NULL,
                        key varchar(500) NOT NULL,
                        data text NOT NULL,
                        updated_at timestamp NOT NULL,
                        PRIMARY KEY (namespace, key)
                        )`
	sqlUpsertRecord = `INSERT INTO records(namespace, key, data, updated_at) VALUES (?, ?, ?, ?)
                        ON CONFLICT(namespace, key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`
	sqlSelectRecord = `SELECT data FROM records WHERE namespace = ? AND key = ?`
	sqlDeleteRecord = `DELETE FROM records WHERE namespace = ? AND key = ?`
	sqlListKeys     = `SELECT key FROM records WHERE namespace = ? ORDER BY updated_at DESC`
)

// SqlStore keeps all records in one sqlite database, for operators who
// prefer a single file over the record-per-file layout.
type SqlStore struct {
	db *sql.DB
}

func NewSqlStore(path string) (*SqlStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// One writer at a time keeps modernc sqlite happy.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqlCreateRecordsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run store migration: %w", err)
	}

	return &SqlStore{db: db}, nil
}

func (s *SqlStore) wrapTransaction(fn func(tx *sql.Tx) error) error {
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

func (s *SqlStore) Get(namespace, key string, v interface{}) error {
	row := s.db.QueryRow(sqlSelectRecord, namespace, key)
	var data string
	err := row.Scan(&data)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read record %s/%s: %w", namespace, key, err)
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return ErrNotFound
	}
	return nil
}

func (s *SqlStore) Put(namespace, key string, v interface{}) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s/%s: %w", namespace, key, err)
	}
	return s.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertRecord, namespace, key, string(buf), time.Now())
		return err
	})
}

func (s *SqlStore) Delete(namespace, key string) error {
	return s.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteRecord, namespace, key)
		return err
	})
}

func (s *SqlStore) List(namespace string) ([]string, error) {
	rows, err := s.db.Query(sqlListKeys, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list namespace %s: %w", namespace, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *SqlStore) Close() error {
	return s.db.Close()
}
