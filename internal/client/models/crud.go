package models

// CrudOp is the kind of local mutation recorded in the change log.
type CrudOp string

const (
	OpPut    CrudOp = "PUT"
	OpPatch  CrudOp = "PATCH"
	OpDelete CrudOp = "DELETE"
)

// CrudEntry is one locally mutated row awaiting upload.
type CrudEntry struct {
	OpID   int64
	TxID   int64
	Table  string
	Op     CrudOp
	ID     string
	OpData map[string]any
}

// CrudTransaction groups the entries written by one local change set.
type CrudTransaction struct {
	TxID int64
	// LastOpID is the highest op id read; completing the transaction removes
	// entries up to it.
	LastOpID int64
	Entries  []CrudEntry
}
