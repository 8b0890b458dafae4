// Package processed persists ProcessingRecords (the processed_data table).
package processed

import (
	"context"

	"github.com/dmitrijs2005/poleshift/internal/client/models"
)

type Repository interface {
	Create(ctx context.Context, rec *models.ProcessingRecord) error
	Get(ctx context.Context, id string) (*models.ProcessingRecord, error)
	// Latest returns the most recent record for a sample and data type.
	Latest(ctx context.Context, sampleID string, dataType models.DataType) (*models.ProcessingRecord, error)
	// ApplyProgress writes the three progress fields of one event.
	ApplyProgress(ctx context.Context, id string, ev models.ProgressEvent) error
	// SetState moves the record to state with a message and percentage.
	SetState(ctx context.Context, id string, state models.ProcessingState, message string, pct int) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
}
