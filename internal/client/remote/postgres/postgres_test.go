package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/poleshift/internal/client/models"
	"github.com/dmitrijs2005/poleshift/internal/client/remote"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestUpsertStatement(t *testing.T) {
	q, err := UpsertStatement("raw_data", []string{"id", "sample_id"})
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "raw_data" ("id", "sample_id") SELECT "id", "sample_id" FROM jsonb_populate_recordset(NULL::"raw_data", $1::jsonb) ON CONFLICT (id) DO UPDATE SET "sample_id" = EXCLUDED."sample_id"`,
		q)

	q, err = UpsertStatement("raw_data", []string{"id"})
	require.NoError(t, err)
	assert.Contains(t, q, "ON CONFLICT (id) DO NOTHING")

	_, err = UpsertStatement("raw data", []string{"id"})
	assert.Error(t, err)
}

func TestUpsert(t *testing.T) {
	db, mock := newSQLMockDB(t)
	c := New(db)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "raw_data" ("id", "org_id", "sample_id")`)).
		WithArgs(`[{"id":"a","sample_id":"s1"},{"id":"b","org_id":"o1"}]`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := c.Upsert(context.Background(), "raw_data", []models.Row{
		{"id": "a", "sample_id": "s1"},
		{"id": "b", "org_id": "o1"},
	})
	require.NoError(t, err)
	require.NoError(t, c.Upsert(context.Background(), "raw_data", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_KeepsPgError(t *testing.T) {
	db, mock := newSQLMockDB(t)
	c := New(db)

	mock.ExpectExec("INSERT INTO").WillReturnError(&pgconn.PgError{Code: "23502", Message: "null value"})

	err := c.Upsert(context.Background(), "raw_data", []models.Row{{"id": "a"}})
	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr))
	assert.True(t, remote.IsFatal(err))
}

func TestUpdate_SortedColumns(t *testing.T) {
	db, mock := newSQLMockDB(t)
	c := New(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "processed_data" SET "progress_percentage" = r."progress_percentage", "status_message" = r."status_message" FROM jsonb_populate_record(NULL::"processed_data", $1::jsonb) AS r WHERE "processed_data".id::text = $2`)).
		WithArgs(sqlmock.AnyArg(), "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := c.Update(context.Background(), "processed_data", "p1", models.Row{
		"status_message": "Saving", "progress_percentage": 80, "id": "p1",
	})
	require.NoError(t, err)

	require.NoError(t, c.Update(context.Background(), "processed_data", "p1", models.Row{"id": "p1"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateBatch_OneTransaction(t *testing.T) {
	db, mock := newSQLMockDB(t)
	c := New(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "processed_data"`).WithArgs(sqlmock.AnyArg(), "p1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "processed_data"`).WithArgs(sqlmock.AnyArg(), "p2").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := c.UpdateBatch(context.Background(), "processed_data", []remote.Patch{
		{ID: "p1", Data: models.Row{"status_message": "a"}},
		{ID: "p2", Data: models.Row{"status_message": "b"}},
	})
	assert.ErrorContains(t, err, "boom")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	db, mock := newSQLMockDB(t)
	c := New(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "raw_data" WHERE id::text IN (SELECT jsonb_array_elements_text($1::jsonb))`)).
		WithArgs(`["a","b"]`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, c.Delete(context.Background(), "raw_data", []string{"a", "b"}))
	require.NoError(t, c.Delete(context.Background(), "raw_data", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
