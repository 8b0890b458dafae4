// Package rawdata persists RawDataEntry rows.
package rawdata

import (
	"context"

	"github.com/dmitrijs2005/poleshift/internal/client/models"
)

type Repository interface {
	Create(ctx context.Context, e *models.RawDataEntry) error
	Get(ctx context.Context, id string) (*models.RawDataEntry, error)
}
