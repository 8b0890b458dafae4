package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	require.NoError(t, err)
	return n == 1
}

func TestInitDatabase_AppliesMigrations(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "agent.db")

	repos, err := InitDatabase(ctx, FileDSN(path), nil)
	require.NoError(t, err)
	defer repos.Close()

	for _, table := range []string{
		"goose_db_version", "metadata", "upload_queue", "processed_data", "raw_data",
		"raw_ctd_data", "processed_ctd_data", "raw_sequences",
		"processed_kraken_uniq_report", "processed_kraken_uniq_stdout",
		"processed_nutrient_ammonia_data", "crud_log", "crud_tx_state",
	} {
		assert.True(t, tableExists(t, repos.DB, table), table)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "agent.db")

	repos, err := InitDatabase(ctx, FileDSN(path), nil)
	require.NoError(t, err)
	require.NoError(t, repos.Close())

	repos, err = InitDatabase(ctx, FileDSN(path), nil)
	require.NoError(t, err)
	defer repos.Close()

	require.NoError(t, RunMigrations(ctx, repos.DB))

	var current int
	require.NoError(t, repos.DB.QueryRow(`SELECT current FROM crud_tx_state WHERE id = 1`).Scan(&current))
	assert.Equal(t, 0, current)
}

func TestTriggers_RecordPutPatchDelete(t *testing.T) {
	ctx := context.Background()
	repos, err := InitDatabase(ctx, "file:triggers?mode=memory&cache=shared", nil)
	require.NoError(t, err)
	defer repos.Close()

	db := repos.DB
	_, err = db.Exec(`INSERT INTO raw_data (id, data_type, user_id, org_id, sample_id, created_at) VALUES ('r1', 'CTD', 'u', 'o', 's', 'now')`)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE raw_data SET sample_id = 's2' WHERE id = 'r1'`)
	require.NoError(t, err)
	_, err = db.Exec(`DELETE FROM raw_data WHERE id = 'r1'`)
	require.NoError(t, err)

	rows, err := db.Query(`SELECT op, row_id FROM crud_log ORDER BY op_id`)
	require.NoError(t, err)
	defer rows.Close()

	var ops []string
	for rows.Next() {
		var op, id string
		require.NoError(t, rows.Scan(&op, &id))
		assert.Equal(t, "r1", id)
		ops = append(ops, op)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"PUT", "PATCH", "DELETE"}, ops)
}

func TestUploadQueue_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dsn := FileDSN(filepath.Join(t.TempDir(), "agent.db"))

	repos, err := InitDatabase(ctx, dsn, nil)
	require.NoError(t, err)
	_, _, err = repos.Uploads.Enqueue(ctx, "/a.rsk", "raw-data", "o/s/a.rsk")
	require.NoError(t, err)
	require.NoError(t, repos.Close())

	repos, err = InitDatabase(ctx, dsn, nil)
	require.NoError(t, err)
	defer repos.Close()

	all, err := repos.Uploads.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "/a.rsk", all[0].Path)
}
