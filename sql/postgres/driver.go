// Copyright 2023-present The Strata Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package postgres implements the migration driver for PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	"github.com/strata-db/strata/sql/migrate"
	"github.com/strata-db/strata/sql/sqlclient"

	_ "github.com/lib/pq"
)

// DriverName holds the name used for registration.
const DriverName = "postgres"

func init() {
	sqlclient.Register(
		DriverName,
		sqlclient.DriverOpener(Open, func(u *url.URL) string { return u.String() }),
		sqlclient.RegisterFlavours("postgresql"),
	)
}

// Driver represents a PostgreSQL migration driver.
type Driver struct {
	db *sql.DB
}

var _ migrate.Driver = (*Driver)(nil)

// Open opens a new PostgreSQL driver.
func Open(db *sql.DB) (migrate.Driver, error) {
	return &Driver{db: db}, nil
}

const (
	initUpSQL = `CREATE TABLE strata_migrations (
    name TEXT PRIMARY KEY,
    hash TEXT NULL,
    down_sql TEXT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
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
		return nil, fmt.Errorf("postgres: query migrations: %w", err)
	}
	defer rows.Close()
	ms := []*migrate.Migration{}
	for rows.Next() {
		var (
			name       string
			hash, down sql.NullString
		)
		if err := rows.Scan(&name, &hash, &down); err != nil {
			return nil, fmt.Errorf("postgres: scan migration row: %w", err)
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
		return nil, fmt.Errorf("postgres: scan migrations: %w", err)
	}
	return ms, nil
}

// ApplyUp implements migrate.Driver.ApplyUp. The migration SQL and the
// tracking row insert commit in a single transaction.
func (d *Driver) ApplyUp(ctx context.Context, m *migrate.Migration) error {
	return d.tx(ctx, func(tx *sql.Tx) error {
		if m.Up != nil {
			if _, err := tx.ExecContext(ctx, *m.Up); err != nil {
				return fmt.Errorf("postgres: apply %q: %w", m.Name, err)
			}
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO strata_migrations (name, hash, down_sql) VALUES ($1, $2, $3)",
			m.Name, nullable(m.Hash), nullable(m.Down),
		)
		if err != nil {
			return fmt.Errorf("postgres: record %q: %w", m.Name, err)
		}
		return nil
	})
}

// ApplyDown implements migrate.Driver.ApplyDown. The migration's down SQL and
// the tracking row delete commit in a single transaction.
func (d *Driver) ApplyDown(ctx context.Context, m *migrate.Migration) error {
	return d.tx(ctx, func(tx *sql.Tx) error {
		if m.Down != nil {
			if _, err := tx.ExecContext(ctx, *m.Down); err != nil {
				return fmt.Errorf("postgres: revert %q: %w", m.Name, err)
			}
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM strata_migrations WHERE name = $1", m.Name); err != nil {
			return fmt.Errorf("postgres: unrecord %q: %w", m.Name, err)
		}
		return nil
	})
}

func (d *Driver) tx(ctx context.Context, f func(*sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin transaction: %w", err)
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
