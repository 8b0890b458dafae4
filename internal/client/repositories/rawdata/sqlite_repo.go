package rawdata

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

type SQLiteRepository struct {
	db  *sql.DB
	bus *events.Bus
}

func NewSQLiteRepository(db *sql.DB, bus *events.Bus) *SQLiteRepository {
	return &SQLiteRepository{db: db, bus: bus}
}

// Create writes e once; a second write for the same id fails.
func (r *SQLiteRepository) Create(ctx context.Context, e *models.RawDataEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := crud.BeginChangeSet(ctx, tx); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO raw_data (id, data_type, user_id, org_id, sample_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, e.ID, string(e.DataType), e.UserID, e.OrgID, e.SampleID, e.CreatedAt.UTC().Format(time.RFC3339Nano))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create raw data entry %s: %w", e.ID, err)
	}
	if r.bus != nil {
		r.bus.Publish(events.TableTopic("raw_data"), e.ID)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.RawDataEntry, error) {
	var e models.RawDataEntry
	var dataType, createdAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, data_type, user_id, org_id, sample_id, created_at
		FROM raw_data WHERE id = ?
	`, id).Scan(&e.ID, &dataType, &e.UserID, &e.OrgID, &e.SampleID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get raw data entry %s: %w", id, err)
	}
	e.DataType = models.DataType(dataType)
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &e, nil
}
