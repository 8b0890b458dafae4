// Package postgres applies change-log batches directly against the backend
// database. Rows travel as one jsonb parameter and are expanded with
// jsonb_populate_recordset, so column types come from the remote table.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrijs2005/poleshift/internal/client/models"
	"github.com/dmitrijs2005/poleshift/internal/client/remote"
	"github.com/dmitrijs2005/poleshift/internal/dbx"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type Connector struct {
	db *sql.DB
}

var (
	_ remote.Connector    = (*Connector)(nil)
	_ remote.PatchBatcher = (*Connector)(nil)
)

// Open connects with the pgx driver.
func Open(ctx context.Context, dsn string) (*Connector, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return New(db), nil
}

func New(db *sql.DB) *Connector {
	return &Connector{db: db}
}

func (c *Connector) Close() error {
	return c.db.Close()
}

func (c *Connector) Upsert(ctx context.Context, table string, rows []models.Row) error {
	if len(rows) == 0 {
		return nil
	}
	query, err := UpsertStatement(table, columnsOf(rows...))
	if err != nil {
		return err
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to encode rows: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, query, string(payload)); err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

func (c *Connector) Update(ctx context.Context, table, id string, data models.Row) error {
	return update(ctx, c.db, table, id, data)
}

// UpdateBatch applies all patches in one database transaction.
func (c *Connector) UpdateBatch(ctx context.Context, table string, patches []remote.Patch) error {
	return dbx.WithTx(ctx, c.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, p := range patches {
			if err := update(ctx, tx, table, p.ID, p.Data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Connector) Delete(ctx context.Context, table string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	qt, err := dbx.QuoteIdent(table)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id::text IN (SELECT jsonb_array_elements_text($1::jsonb))`, qt)
	if _, err := c.db.ExecContext(ctx, query, string(payload)); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

func update(ctx context.Context, db dbx.DBTX, table, id string, data models.Row) error {
	cols := columnsOf(data)
	set := cols[:0:0]
	for _, col := range cols {
		if col != "id" {
			set = append(set, col)
		}
	}
	if len(set) == 0 {
		return nil
	}

	query, err := UpdateStatement(table, set)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode row %s: %w", id, err)
	}
	if _, err := db.ExecContext(ctx, query, string(payload), id); err != nil {
		return fmt.Errorf("update %s %s: %w", table, id, err)
	}
	return nil
}

// UpsertStatement builds the insert-or-update for the given columns. The
// id column is the conflict target.
func UpsertStatement(table string, columns []string) (string, error) {
	qt, err := dbx.QuoteIdent(table)
	if err != nil {
		return "", err
	}
	qc, err := dbx.QuoteIdents(columns)
	if err != nil {
		return "", err
	}

	var updates []string
	for i, c := range columns {
		if c != "id" {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", qc[i], qc[i]))
		}
	}
	conflict := "DO NOTHING"
	if len(updates) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(updates, ", ")
	}

	list := strings.Join(qc, ", ")
	return fmt.Sprintf(`INSERT INTO %s (%s) SELECT %s FROM jsonb_populate_recordset(NULL::%s, $1::jsonb) ON CONFLICT (id) %s`,
		qt, list, list, qt, conflict), nil
}

// UpdateStatement builds a single-row update taking the row JSON as $1 and
// the id as $2.
func UpdateStatement(table string, columns []string) (string, error) {
	qt, err := dbx.QuoteIdent(table)
	if err != nil {
		return "", err
	}
	qc, err := dbx.QuoteIdents(columns)
	if err != nil {
		return "", err
	}

	set := make([]string, len(qc))
	for i, c := range qc {
		set[i] = fmt.Sprintf("%s = r.%s", c, c)
	}
	return fmt.Sprintf(`UPDATE %s SET %s FROM jsonb_populate_record(NULL::%s, $1::jsonb) AS r WHERE %s.id::text = $2`,
		qt, strings.Join(set, ", "), qt, qt), nil
}

// columnsOf returns the sorted union of keys across rows.
func columnsOf(rows ...models.Row) []string {
	seen := make(map[string]struct{})
	for _, r := range rows {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
