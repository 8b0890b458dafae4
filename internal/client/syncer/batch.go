package syncer

import (
	"github.com/dmitrijs2005/poleshift/internal/client/models"
)

type groupKey struct {
	table string
	op    models.CrudOp
}

type group struct {
	groupKey
	entries []models.CrudEntry
}

// groupEntries buckets entries by table and operation, keeping the order in
// which each bucket first appears.
func groupEntries(entries []models.CrudEntry) []group {
	var out []group
	index := make(map[groupKey]int)
	for _, e := range entries {
		k := groupKey{table: e.Table, op: e.Op}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, group{groupKey: k})
		}
		out[i].entries = append(out[i].entries, e)
	}
	return out
}

// chunk splits entries into slices of at most size.
func chunk(entries []models.CrudEntry, size int) [][]models.CrudEntry {
	if size <= 0 {
		size = len(entries)
	}
	var out [][]models.CrudEntry
	for len(entries) > size {
		out = append(out, entries[:size])
		entries = entries[size:]
	}
	if len(entries) > 0 {
		out = append(out, entries)
	}
	return out
}

// rowOf returns the entry's data with its id guaranteed.
func rowOf(e models.CrudEntry) models.Row {
	row := make(models.Row, len(e.OpData)+1)
	for k, v := range e.OpData {
		row[k] = v
	}
	row["id"] = e.ID
	return row
}
