// Package bulk writes worker output into local tables with one statement
// per table: the rows travel as a single JSON array and SQLite expands it
// with json_each, projecting the requested columns in order.
package bulk

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/poleshift/internal/client/models"
	"github.com/dmitrijs2005/poleshift/internal/client/repositories/crud"
	"github.com/dmitrijs2005/poleshift/internal/dbx"
	"github.com/dmitrijs2005/poleshift/internal/events"
	"github.com/dmitrijs2005/poleshift/internal/logging"
)

type Inserter struct {
	db  *sql.DB
	log logging.Logger
	bus *events.Bus
}

func NewInserter(db *sql.DB, log logging.Logger, bus *events.Bus) *Inserter {
	return &Inserter{db: db, log: log.With("module", "bulk"), bus: bus}
}

// Insert writes rows into table. Only columns are read from each row, in
// the given order; keys absent from a row become NULL. An empty rows slice
// is a no-op. It returns the number of inserted rows.
func (b *Inserter) Insert(ctx context.Context, table string, columns []string, rows []models.Row) (int64, error) {
	if len(rows) == 0 {
		b.log.Info(ctx, "no rows to insert", "table", table)
		return 0, nil
	}

	n, err := b.insert(ctx, table, columns, rows)
	if err != nil {
		b.log.Error(ctx, "bulk insert failed", "table", table, "rows", len(rows), "error", err)
		return 0, fmt.Errorf("failed to bulk insert into %s: %w", table, err)
	}

	b.log.Info(ctx, "bulk insert complete", "table", table, "rows", n)
	if b.bus != nil {
		b.bus.Publish(events.TableTopic(table), n)
	}
	return n, nil
}

func (b *Inserter) insert(ctx context.Context, table string, columns []string, rows []models.Row) (int64, error) {
	query, err := Statement(table, columns)
	if err != nil {
		return 0, err
	}

	payload, err := json.Marshal(rows)
	if err != nil {
		return 0, fmt.Errorf("failed to encode rows: %w", err)
	}

	var n int64
	err = dbx.WithTx(ctx, b.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := crud.BeginChangeSet(ctx, tx); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, query, string(payload))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// Statement builds the INSERT ... SELECT ... FROM json_each(?) statement for
// table and columns.
func Statement(table string, columns []string) (string, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("no columns for %s", table)
	}

	qt, err := dbx.QuoteIdent(table)
	if err != nil {
		return "", err
	}
	qc, err := dbx.QuoteIdents(columns)
	if err != nil {
		return "", err
	}

	extracts := make([]string, len(columns))
	for i, c := range columns {
		extracts[i] = fmt.Sprintf(`json_extract(value, '$.%s')`, c)
	}

	return fmt.Sprintf(`INSERT INTO %s (%s) SELECT %s FROM json_each(?)`,
		qt, strings.Join(qc, ", "), strings.Join(extracts, ", ")), nil
}
