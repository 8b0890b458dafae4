package uploads

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/poleshift/internal/client/models"
	"github.com/dmitrijs2005/poleshift/internal/dbx"
	"github.com/google/uuid"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, path, bucket, key string) (*models.UploadTask, bool, error) {
	var task models.UploadTask
	var created bool

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO upload_queue (id, path, destination_bucket, object_key, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(path) DO NOTHING
		`, uuid.NewString(), path, bucket, key, time.Now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = n == 1

		row := tx.QueryRowContext(ctx, `
			SELECT id, path, destination_bucket, object_key, created_at
			FROM upload_queue WHERE path = ?
		`, path)
		return scanTask(row, &task)
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to enqueue %s: %w", path, err)
	}
	return &task, created, nil
}

func (r *SQLiteRepository) ListAll(ctx context.Context) ([]models.UploadTask, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, path, destination_bucket, object_key, created_at
		FROM upload_queue
		ORDER BY created_at, rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list upload tasks: %w", err)
	}
	defer rows.Close()

	var out []models.UploadTask
	for rows.Next() {
		var t models.UploadTask
		if err := scanTask(rows, &t); err != nil {
			return nil, fmt.Errorf("failed to scan upload task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate upload tasks: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM upload_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove upload task %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM upload_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count upload tasks: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner, t *models.UploadTask) error {
	var createdAt string
	if err := s.Scan(&t.ID, &t.Path, &t.DestinationBucket, &t.ObjectKey, &createdAt); err != nil {
		return err
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return nil
}
