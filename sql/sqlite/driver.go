// Copyright 2023-present The Strata Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package sqlite implements the migration driver for SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/strata-db/strata/sql/migrate"
	"github.com/strata-db/strata/sql/sqlclient"

	_ "github.com/mattn/go-sqlite3"
)

// DriverName holds the name used for registration.
const DriverName = "sqlite3"

func init() {
	sqlclient.Register(
		DriverName,
		sqlclient.DriverOpener(Open, dsn),
		sqlclient.RegisterFlavours("sqlite"),
	)
}

// dsn strips the scheme; "sqlite://file.db" and "sqlite://:memory:" map to
// the driver's native source names.
func dsn(u *url.URL) string {
	s := strings.TrimPrefix(u.String(), u.Scheme+"://")
	if mode := u.Query().Get("mode"); mode == "memory" {
		// The "file:" prefix is mandatory for memory modes.
		s = "file:" + s
	}
	return s
}

// Driver represents a SQLite migration driver.
type Driver struct {
	db *sql.DB
}

var _ migrate.Driver = (*Driver)(nil)

// Open opens a new SQLite driver and turns on foreign key enforcement, as
// down migrations commonly rely on it.
func Open(db *sql.DB) (migrate.Driver, error) {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("sqlite: set foreign_keys pragma: %w", err)
	}
	return &Driver{db: db}, nil
}

const (
	initUpSQL = `CREATE TABLE strata_migrations (
    name TEXT PRIMARY KEY,
    hash TEXT NULL,
    down_sql TEXT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`
	initDownSQL = `DROP TABLE strata_migrations`
)

// InitUpSQL implements migrate.Driver.InitUpSQL.
func (d *Driver) InitUpSQL() string { return initUpSQL }

// InitDownSQL implements migrate.Driver.InitDownSQL.
func (d *Driver) InitDownSQL() string { return initDownSQL }

// Migrations implements migrate.Driver.Migrations.
func (d *Driver) Migrations(ctx context.Context) ([]*migrate.Migration, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT name, hash, down_sql FROM strata_migrations ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("sqlite: query migrations: %w", err)
	}
	defer rows.Close()
	ms := []*migrate.Migration{}
	for rows.Next() {
		var (
			name       string
			hash, down sql.NullString
		)
		if err := rows.Scan(&name, &hash, &down); err != nil {
			return nil, fmt.Errorf("sqlite: scan migration row: %w", err)
		}
		m := &migrate.Migration{Name: name}
		if hash.Valid {
			m.Hash = &hash.String
		}
		if down.Valid {
			m.Down = &down.String
		}
		ms = append(ms, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: scan migrations: %w", err)
	}
	return ms, nil
}

// ApplyUp implements migrate.Driver.ApplyUp.
func (d *Driver) ApplyUp(ctx context.Context, m *migrate.Migration) error {
	return d.tx(ctx, func(tx *sql.Tx) error {
		if m.Up != nil {
			if _, err := tx.ExecContext(ctx, *m.Up); err != nil {
				return fmt.Errorf("sqlite: apply %q: %w", m.Name, err)
			}
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO strata_migrations (name, hash, down_sql) VALUES (?, ?, ?)",
			m.Name, nullable(m.Hash), nullable(m.Down),
		)
		if err != nil {
			return fmt.Errorf("sqlite: record %q: %w", m.Name, err)
		}
		return nil
	})
}

// ApplyDown implements migrate.Driver.ApplyDown.
func (d *Driver) ApplyDown(ctx context.Context, m *migrate.Migration) error {
	return d.tx(ctx, func(tx *sql.Tx) error {
		if m.Down != nil {
			if _, err := tx.ExecContext(ctx, *m.Down); err != nil {
				return fmt.Errorf("sqlite: revert %q: %w", m.Name, err)
			}
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM strata_migrations WHERE name = ?", m.Name); err != nil {
			return fmt.Errorf("sqlite: unrecord %q: %w", m.Name, err)
		}
		return nil
	})
}

func (d *Driver) tx(ctx context.Context, f func(*sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin transaction: %w", err)
	}
	if err := f(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = fmt.Errorf("%w: %v", err, rerr)
		}
		return err
	}
	return tx.Commit()
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
