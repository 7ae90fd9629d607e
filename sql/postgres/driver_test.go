// Copyright 2023-present The Strata Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/strata-db/strata/sql/migrate"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestDriver_Migrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv, err := Open(db)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT name, hash, down_sql FROM strata_migrations ORDER BY name ASC").
		WillReturnRows(sqlmock.NewRows([]string{"name", "hash", "down_sql"}).
			AddRow("2023-01-01-000000_a", "aabb", "DROP TABLE a").
			AddRow("2023-02-01-000000_b", nil, nil))

	ms, err := drv.Migrations(context.Background())
	require.NoError(t, err)
	require.Len(t, ms, 2)
	require.Equal(t, "2023-01-01-000000_a", ms[0].Name)
	require.Equal(t, "aabb", *ms[0].Hash)
	require.Equal(t, "DROP TABLE a", *ms[0].Down)
	require.Nil(t, ms[0].Up)
	require.Nil(t, ms[1].Hash)
	require.Nil(t, ms[1].Down)
	require.False(t, ms[1].Reversible())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriver_ApplyUp(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv, err := Open(db)
	require.NoError(t, err)

	m, err := migrate.NewBuilder("2023-01-01-000000_a").
		UpSQL("CREATE TABLE a (c int)").
		DownSQL("DROP TABLE a").
		Build()
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO strata_migrations").
		WithArgs(m.Name, *m.Hash, *m.Down).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, drv.ApplyUp(context.Background(), m))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriver_ApplyUpRollback(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv, err := Open(db)
	require.NoError(t, err)

	m, err := migrate.NewBuilder("2023-01-01-000000_a").UpSQL("CREATE TABLE a (c int)").Build()
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE a").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err = drv.ApplyUp(context.Background(), m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriver_ApplyDown(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv, err := Open(db)
	require.NoError(t, err)

	down := "DROP TABLE a"
	m := &migrate.Migration{Name: "2023-01-01-000000_a", Down: &down}

	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM strata_migrations WHERE name = ").
		WithArgs(m.Name).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, drv.ApplyDown(context.Background(), m))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInitSQL(t *testing.T) {
	drv := &Driver{}
	require.Contains(t, drv.InitUpSQL(), "CREATE TABLE strata_migrations")
	require.Contains(t, drv.InitUpSQL(), "name TEXT PRIMARY KEY")
	require.Contains(t, drv.InitDownSQL(), "DROP TABLE strata_migrations")
}
