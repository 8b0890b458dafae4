// Package dbx provides the small database helpers shared by the local store
// and the Postgres connector: the DBTX handle, a transaction runner and
// identifier validation for statements whose table or column names are
// built at runtime.
package dbx

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

// DBTX is the subset of database/sql used by our repos.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    _, err := tx.ExecContext(ctx, "UPDATE processed_data SET ...")
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(ctx, tx)
	return err
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdent reports whether s is a plain SQL identifier.
func ValidIdent(s string) bool {
	return identRe.MatchString(s)
}

// QuoteIdent validates s and returns it double-quoted.
func QuoteIdent(s string) (string, error) {
	if !ValidIdent(s) {
		return "", fmt.Errorf("invalid identifier %q", s)
	}
	return `"` + s + `"`, nil
}

// QuoteIdents applies QuoteIdent to every name, preserving order.
func QuoteIdents(names []string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		q, err := QuoteIdent(n)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}

// JoinIdents is QuoteIdents followed by a comma join.
func JoinIdents(names []string) (string, error) {
	q, err := QuoteIdents(names)
	if err != nil {
		return "", err
	}
	return strings.Join(q, ", "), nil
}
