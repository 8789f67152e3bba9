package storage_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/phinze/fpdeck/internal/print"
	"github.com/phinze/fpdeck/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*storage.PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return storage.NewPostgresStore(db), mock
}

func TestPostgresSave(t *testing.T) {
	s, mock := newMockStore(t)
	p := enrolled("ada", print.LeftIndex)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO prints")).
		WithArgs(p.ID, "virtual_image", "0", "ada", "left-index", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Save(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO prints")).
		WillReturnError(errors.New("connection reset"))

	err := s.Save(context.Background(), enrolled("ada", print.LeftIndex))
	assert.ErrorContains(t, err, "saving print")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoad(t *testing.T) {
	s, mock := newMockStore(t)
	p := enrolled("ada", print.LeftIndex)
	data, err := p.Serialize()
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM prints")).
		WithArgs("virtual_image", "0", "ada", "left-index").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(data))

	got, err := s.Load(context.Background(), storage.KeyOf(p))
	require.NoError(t, err)
	assert.True(t, p.Equal(got))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoadNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM prints")).
		WillReturnError(sql.ErrNoRows)

	_, err := s.Load(context.Background(), storage.Key{Driver: "virtual_image", DeviceID: "0", Username: "ada", Finger: print.LeftIndex})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresList(t *testing.T) {
	s, mock := newMockStore(t)
	a, err := enrolled("ada", print.LeftIndex).Serialize()
	require.NoError(t, err)
	b, err := enrolled("bob", print.RightThumb).Serialize()
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM prints")).
		WithArgs("virtual_image", "0").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(a).AddRow(b))

	prints, err := s.List(context.Background(), "virtual_image", "0")
	require.NoError(t, err)
	require.Len(t, prints, 2)
	assert.Equal(t, "ada", prints[0].Username)
	assert.Equal(t, "bob", prints[1].Username)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListCorruptRow(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT data FROM prints")).
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte("version: 7")))

	_, err := s.List(context.Background(), "virtual_image", "0")
	assert.ErrorIs(t, err, print.ErrInvalid)
}

func TestPostgresDelete(t *testing.T) {
	s, mock := newMockStore(t)
	key := storage.Key{Driver: "virtual_image", DeviceID: "0", Username: "ada", Finger: print.LeftIndex}

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM prints")).
		WithArgs("virtual_image", "0", "ada", "left-index").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Delete(context.Background(), key))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM prints")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.Delete(context.Background(), key), storage.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenPostgresErrorPaths(t *testing.T) {
	for _, dsn := range []string{"some=random", ""} {
		_, err := storage.OpenPostgres(dsn)
		require.Error(t, err, "dsn %q", dsn)
		assert.True(t, strings.Contains(err.Error(), "postgres"), err.Error())
	}
}
