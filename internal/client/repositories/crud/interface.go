// Package crud reads and trims the local change log that feeds the sync
// uploader. Rows land in crud_log through triggers; every local write path
// opens a change set first so its rows share one transaction id.
package crud

import (
	"context"

	"github.com/dmitrijs2005/poleshift/internal/client/models"
)

type Repository interface {
	// NextTransaction returns the oldest pending transaction, or nil when the
	// log is empty.
	NextTransaction(ctx context.Context) (*models.CrudTransaction, error)
	// Complete drops the entries read into tx.
	Complete(ctx context.Context, tx *models.CrudTransaction) error
	// Pending counts entries still waiting for upload.
	Pending(ctx context.Context) (int, error)
}
