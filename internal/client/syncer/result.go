package syncer

import (
	"fmt"

	"github.com/dmitrijs2005/poleshift/internal/client/models"
)

// Outcome is the terminal state of one Upload call.
type Outcome int

const (
	// Idle means there was nothing to upload.
	Idle Outcome = iota
	// Completed means every entry was applied and the transaction dropped.
	Completed
	// Pending means the context ended before the transaction went through.
	Pending
	// ExhaustedRetries means every attempt failed; the transaction stays.
	ExhaustedRetries
	// Rejected means the remote refused the data permanently.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Idle:
		return "idle"
	case Completed:
		return "completed"
	case Pending:
		return "pending"
	case ExhaustedRetries:
		return "exhausted-retries"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Operation describes one remote call; the last one attempted is kept for
// diagnostics.
type Operation struct {
	Table string
	Op    models.CrudOp
	Size  int
}

func (o Operation) String() string {
	return fmt.Sprintf("%s %s x%d", o.Op, o.Table, o.Size)
}

type Result struct {
	Outcome  Outcome
	TxID     int64
	Entries  int
	Attempts int
	LastOp   *Operation
	// Err is the last remote error for Pending, ExhaustedRetries and
	// Rejected.
	Err error
	// Discarded is set when a rejected transaction was dropped.
	Discarded bool
}
