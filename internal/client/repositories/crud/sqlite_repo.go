package crud

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/poleshift/internal/client/models"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) NextTransaction(ctx context.Context) (*models.CrudTransaction, error) {
	var txID sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MIN(tx_id) FROM crud_log`).Scan(&txID); err != nil {
		return nil, fmt.Errorf("failed to find next transaction: %w", err)
	}
	if !txID.Valid {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT op_id, tx_id, table_name, op, row_id, data
		FROM crud_log
		WHERE tx_id = ?
		ORDER BY op_id
	`, txID.Int64)
	if err != nil {
		return nil, fmt.Errorf("failed to read transaction %d: %w", txID.Int64, err)
	}
	defer rows.Close()

	tx := &models.CrudTransaction{TxID: txID.Int64}
	for rows.Next() {
		var e models.CrudEntry
		var op string
		var data sql.NullString
		if err := rows.Scan(&e.OpID, &e.TxID, &e.Table, &op, &e.ID, &data); err != nil {
			return nil, fmt.Errorf("failed to scan crud entry: %w", err)
		}
		e.Op = models.CrudOp(op)
		if data.Valid {
			e.OpData, err = decodeData(data.String)
			if err != nil {
				return nil, fmt.Errorf("failed to decode crud entry %d: %w", e.OpID, err)
			}
		}
		tx.Entries = append(tx.Entries, e)
		tx.LastOpID = e.OpID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate crud entries: %w", err)
	}
	return tx, nil
}

func (r *SQLiteRepository) Complete(ctx context.Context, tx *models.CrudTransaction) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM crud_log WHERE tx_id = ? AND op_id <= ?`, tx.TxID, tx.LastOpID)
	if err != nil {
		return fmt.Errorf("failed to complete transaction %d: %w", tx.TxID, err)
	}
	return nil
}

func (r *SQLiteRepository) Pending(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM crud_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending entries: %w", err)
	}
	return n, nil
}

// decodeData keeps numbers as json.Number so large integer ids survive the
// round trip to the remote unchanged.
func decodeData(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}
