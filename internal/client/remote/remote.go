// Package remote defines the hosted-backend boundary the sync uploader
// drains the local change log into, and how its errors are classified.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/poleshift/internal/client/models"
	"github.com/jackc/pgx/v5/pgconn"
)

// Connector applies change-log batches to the remote tables.
type Connector interface {
	// Upsert inserts rows, replacing existing rows with the same id.
	Upsert(ctx context.Context, table string, rows []models.Row) error
	// Update patches a single row.
	Update(ctx context.Context, table, id string, data models.Row) error
	// Delete removes every row whose id is listed.
	Delete(ctx context.Context, table string, ids []string) error
}

// Patch is one row update of a batch.
type Patch struct {
	ID   string
	Data models.Row
}

// PatchBatcher is implemented by connectors that can apply several row
// updates in a single call.
type PatchBatcher interface {
	UpdateBatch(ctx context.Context, table string, patches []Patch) error
}

// APIError is a non-2xx answer of the REST gateway. Code carries the
// SQLSTATE reported by the database behind it, when there is one.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("remote error %d: %s", e.Status, e.Message)
}

// IsFatal reports whether retrying err cannot succeed: data exceptions
// (class 22), integrity violations (class 23) and insufficient privilege.
func IsFatal(err error) bool {
	if code := sqlState(err); code != "" {
		return fatalCode(code)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusBadRequest ||
			apiErr.Status == http.StatusConflict ||
			apiErr.Status == http.StatusUnprocessableEntity
	}
	return false
}

func fatalCode(code string) bool {
	return strings.HasPrefix(code, "22") || strings.HasPrefix(code, "23") || code == "42501"
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && len(apiErr.Code) == 5 {
		return apiErr.Code
	}
	return ""
}
