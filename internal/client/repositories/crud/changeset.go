package crud

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/poleshift/internal/dbx"
)

// BeginChangeSet advances the transaction counter. Call it first inside the
// database transaction of a logical write; the triggers stamp every row the
// write produces with the new id.
func BeginChangeSet(ctx context.Context, tx dbx.DBTX) error {
	if _, err := tx.ExecContext(ctx, `UPDATE crud_tx_state SET current = current + 1 WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to begin change set: %w", err)
	}
	return nil
}
