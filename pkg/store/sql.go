/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"database/sql"
	"fmt"
	"regexp"

	"github.com/pkg/errors"

	// database/sql drivers for the sql backend
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// SQL drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// sqlBackend stores entries as rows of a single table
type sqlBackend struct {
	db    *sql.DB
	table string
}

// OpenSQLBackend opens a database with driver and dataSource and creates the
// entry table if needed
func OpenSQLBackend(driver, dataSource, table string, maxOpenConns int) (Backend, error) {
	switch driver {
	case DriverSQLite:
		// sqlite allows a single writer
		maxOpenConns = 1
	case DriverPostgres, "postgres":
		driver = DriverPostgres
	default:
		return nil, errors.Errorf("unsupported sql driver [%s]", driver)
	}

	db, err := sql.Open(driver, dataSource)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", driver)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "failed to connect to %s database", driver)
	}

	b, err := NewSQLBackend(db, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

// NewSQLBackend creates a backend over an open database
func NewSQLBackend(db *sql.DB, table string) (Backend, error) {
	if !tableName.MatchString(table) {
		return nil, errors.Errorf("invalid table name [%s]", table)
	}
	b := &sqlBackend{db: db, table: table}
	if err := b.CreateSchema(); err != nil {
		return nil, err
	}
	return b, nil
}

// CreateSchema creates the entry table if it does not exist
func (b *sqlBackend) CreateSchema() error {
	if _, err := b.db.Exec(b.GetSchema()); err != nil {
		return errors.Wrapf(err, "failed to create table %s", b.table)
	}
	return nil
}

// GetSchema returns the table definition
func (b *sqlBackend) GetSchema() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT NOT NULL PRIMARY KEY,
			entry TEXT NOT NULL
		)`, b.table)
}

// Create inserts the row unless the key is taken. The conflict clause makes
// the check and the insert a single statement.
func (b *sqlBackend) Create(key string, content []byte) error {
	query := fmt.Sprintf("INSERT INTO %s (id, entry) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING", b.table)
	logger.Debug(query, key)

	res, err := b.db.Exec(query, key, string(content))
	if err != nil {
		return errors.Wrapf(err, "failed to insert [%s]", key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return ErrEntryExists
	}
	return nil
}

func (b *sqlBackend) Replace(key string, content []byte) error {
	query := fmt.Sprintf("INSERT INTO %s (id, entry) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET entry = excluded.entry", b.table)
	logger.Debug(query, key)

	_, err := b.db.Exec(query, key, string(content))
	return errors.Wrapf(err, "failed to upsert [%s]", key)
}

func (b *sqlBackend) Get(key string) ([]byte, error) {
	query := fmt.Sprintf("SELECT entry FROM %s WHERE id = $1", b.table)
	logger.Debug(query, key)

	var content string
	err := b.db.QueryRow(query, key).Scan(&content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, errors.Wrapf(err, "failed to select [%s]", key)
	}
	return []byte(content), nil
}

func (b *sqlBackend) Exists(key string) (bool, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id = $1", b.table)
	logger.Debug(query, key)

	var count int
	if err := b.db.QueryRow(query, key).Scan(&count); err != nil {
		return false, errors.Wrapf(err, "failed to count [%s]", key)
	}
	return count > 0, nil
}

func (b *sqlBackend) Remove(key string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", b.table)
	logger.Debug(query, key)

	res, err := b.db.Exec(query, key)
	if err != nil {
		return errors.Wrapf(err, "failed to delete [%s]", key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (b *sqlBackend) List() ([]string, error) {
	query := fmt.Sprintf("SELECT id FROM %s ORDER BY id", b.table)
	logger.Debug(query)

	rows, err := b.db.Query(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list entries")
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, errors.Wrap(err, "failed to scan entry id")
		}
		keys = append(keys, key)
	}
	return keys, errors.Wrap(rows.Err(), "failed to iterate entries")
}

func (b *sqlBackend) Close() error {
	return b.db.Close()
}
