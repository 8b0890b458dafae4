// Package uploads is the durable ledger of files that still have to reach
// blob storage. It survives restarts and never uploads anything itself.
package uploads

import (
	"context"

	"github.com/dmitrijs2005/poleshift/internal/client/models"
)

type Repository interface {
	// Enqueue adds a task unless one already exists for the same path. It
	// returns the stored task and whether it was newly created.
	Enqueue(ctx context.Context, path, bucket, key string) (*models.UploadTask, bool, error)
	ListAll(ctx context.Context) ([]models.UploadTask, error)
	Remove(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}
