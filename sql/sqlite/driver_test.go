// Copyright 2023-present The Strata Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package sqlite

import (
	"context"
	"net/url"
	"testing"

	"github.com/strata-db/strata/sql/migrate"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	for _, tt := range []struct {
		url  string
		want string
	}{
		{"sqlite://strata.db", "strata.db"},
		{"sqlite://path/to/strata.db", "path/to/strata.db"},
		{"sqlite://strata?mode=memory&cache=shared", "file:strata?mode=memory&cache=shared"},
	} {
		u, err := url.Parse(tt.url)
		require.NoError(t, err)
		require.Equal(t, tt.want, dsn(u))
	}
}

func open(t *testing.T) (migrate.Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mock.ExpectExec("PRAGMA foreign_keys = ON").WillReturnResult(sqlmock.NewResult(0, 0))
	drv, err := Open(db)
	require.NoError(t, err)
	return drv, mock
}

func TestDriver_Migrations(t *testing.T) {
	drv, mock := open(t)
	mock.ExpectQuery("SELECT name, hash, down_sql FROM strata_migrations ORDER BY name ASC").
		WillReturnRows(sqlmock.NewRows([]string{"name", "hash", "down_sql"}).
			AddRow("2023-01-01-000000_a", "aabb", "DROP TABLE a"))
	ms, err := drv.Migrations(context.Background())
	require.NoError(t, err)
	require.Len(t, ms, 1)
	require.Equal(t, "2023-01-01-000000_a", ms[0].Name)
	require.Equal(t, "aabb", *ms[0].Hash)
	require.True(t, ms[0].Reversible())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriver_ApplyUp(t *testing.T) {
	drv, mock := open(t)
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

func TestDriver_ApplyDown(t *testing.T) {
	drv, mock := open(t)
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
