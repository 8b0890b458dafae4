package processed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/poleshift/internal/client/models"
	"github.com/dmitrijs2005/poleshift/internal/client/repositories/crud"
	"github.com/dmitrijs2005/poleshift/internal/common"
	"github.com/dmitrijs2005/poleshift/internal/dbx"
	"github.com/dmitrijs2005/poleshift/internal/events"
)

const table = "processed_data"

type SQLiteRepository struct {
	db  *sql.DB
	bus *events.Bus
	now func() time.Time
}

func NewSQLiteRepository(db *sql.DB, bus *events.Bus) *SQLiteRepository {
	return &SQLiteRepository{db: db, bus: bus, now: func() time.Time { return time.Now().UTC() }}
}

func (r *SQLiteRepository) Create(ctx context.Context, rec *models.ProcessingRecord) error {
	now := r.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	err := r.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO processed_data (
				id, sample_id, data_type, processing_state, status_message,
				progress_percentage, error_message, raw_data_id, user_id, org_id,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.ID, rec.SampleID, string(rec.DataType), string(rec.ProcessingState), rec.StatusMessage,
			rec.ProgressPercentage, nullString(rec.ErrorMessage), nullString(rec.RawDataID), rec.UserID, rec.OrgID,
			formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create processing record %s: %w", rec.ID, err)
	}
	r.notify(rec.ID)
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.ProcessingRecord, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get processing record %s: %w", id, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) Latest(ctx context.Context, sampleID string, dataType models.DataType) (*models.ProcessingRecord, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+`
		WHERE sample_id = ? AND data_type = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`, sampleID, string(dataType))
	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest record for %s/%s: %w", sampleID, dataType, err)
	}
	return rec, nil
}

// ApplyProgress never lowers the stored percentage while both the stored and
// the incoming state are processing.
func (r *SQLiteRepository) ApplyProgress(ctx context.Context, id string, ev models.ProgressEvent) error {
	pct := models.ClampPercentage(ev.ProgressPercentage)
	state := ev.ProcessingState
	if state == "" {
		state = models.StateProcessing
	}

	err := r.update(ctx, id, `
		UPDATE processed_data SET
			progress_percentage = CASE
				WHEN processing_state = 'processing' AND ? = 'processing' AND progress_percentage > ?
				THEN progress_percentage
				ELSE ?
			END,
			status_message = ?,
			processing_state = ?,
			updated_at = ?
		WHERE id = ?
	`, string(state), pct, pct, ev.StatusMessage, string(state), formatTime(r.now()), id)
	if err != nil {
		return fmt.Errorf("failed to apply progress to %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) SetState(ctx context.Context, id string, state models.ProcessingState, message string, pct int) error {
	err := r.update(ctx, id, `
		UPDATE processed_data SET
			processing_state = ?,
			status_message = ?,
			progress_percentage = ?,
			updated_at = ?
		WHERE id = ?
	`, string(state), message, models.ClampPercentage(pct), formatTime(r.now()), id)
	if err != nil {
		return fmt.Errorf("failed to set %s on %s: %w", state, id, err)
	}
	return nil
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	err := r.update(ctx, id, `
		UPDATE processed_data SET
			processing_state = 'failed',
			status_message = 'Processing failed',
			error_message = ?,
			updated_at = ?
		WHERE id = ?
	`, errMsg, formatTime(r.now()), id)
	if err != nil {
		return fmt.Errorf("failed to mark %s failed: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) update(ctx context.Context, id, query string, args ...any) error {
	err := r.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return common.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.notify(id)
	return nil
}

func (r *SQLiteRepository) write(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := crud.BeginChangeSet(ctx, tx); err != nil {
			return err
		}
		return fn(ctx, tx)
	})
}

func (r *SQLiteRepository) notify(id string) {
	if r.bus != nil {
		r.bus.Publish(events.TableTopic(table), id)
	}
}

const selectColumns = `
	SELECT id, sample_id, data_type, processing_state, status_message,
		progress_percentage, error_message, raw_data_id, user_id, org_id,
		created_at, updated_at
	FROM processed_data`

func scanRecord(row *sql.Row) (*models.ProcessingRecord, error) {
	var rec models.ProcessingRecord
	var dataType, state, createdAt, updatedAt string
	var errMsg, rawID sql.NullString

	err := row.Scan(&rec.ID, &rec.SampleID, &dataType, &state, &rec.StatusMessage,
		&rec.ProgressPercentage, &errMsg, &rawID, &rec.UserID, &rec.OrgID,
		&createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rec.DataType = models.DataType(dataType)
	rec.ProcessingState = models.ProcessingState(state)
	rec.ErrorMessage = errMsg.String
	rec.RawDataID = rawID.String
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
