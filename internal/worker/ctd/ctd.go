// Package ctd turns an RBR instrument file (SQLite with channels and data
// tables) into raw and processed CTD rows.
package ctd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/poleshift/internal/client/models"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// MinDepth drops near-surface readings taken before the cast started.
const MinDepth = 0.2

var ErrNoDepthChannel = errors.New("instrument file has no depth channel")

// Measurement columns, shared by raw_ctd_data and processed_ctd_data.
var Columns = []string{
	"depth", "pressure", "sea_pressure", "temperature", "conductivity",
	"salinity", "speed_of_sound", "specific_conductivity", "chlorophyll_a",
}

var longNames = map[string]string{
	"depth":                 "depth",
	"pressure":              "pressure",
	"sea pressure":          "sea_pressure",
	"temperature":           "temperature",
	"conductivity":          "conductivity",
	"salinity":              "salinity",
	"speed of sound":        "speed_of_sound",
	"specific conductivity": "specific_conductivity",
	"chlorophyll a":         "chlorophyll_a",
}

func normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

// Reading is one row of the data table.
type Reading struct {
	Timestamp time.Time
	Values    map[string]*float64
}

func (r Reading) depth() float64 {
	if v := r.Values["depth"]; v != nil {
		return *v
	}
	return 0
}

// fileDSN builds a sqlite URI for path with the path escaped, so names
// containing '?', '#' or '%' survive.
func fileDSN(path, query string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: query}
	return u.String(), nil
}

// Read loads every reading from the instrument file at path. Rows without a
// timestamp are skipped.
func Read(ctx context.Context, path string) ([]Reading, error) {
	dsn, err := fileDSN(path, "mode=ro")
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	channels, err := readChannels(ctx, db)
	if err != nil {
		return nil, err
	}
	if _, ok := channels["depth"]; !ok {
		return nil, ErrNoDepthChannel
	}

	names := make([]string, 0, len(channels))
	for name := range channels {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]string, len(names))
	for i, n := range names {
		cols[i] = channels[n]
	}

	query := "SELECT tstamp, " + strings.Join(cols, ", ") + " FROM data ORDER BY tstamp"
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		var ts sql.NullFloat64
		vals := make([]sql.NullFloat64, len(names))
		dest := make([]any, 0, len(names)+1)
		dest = append(dest, &ts)
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		if !ts.Valid {
			continue
		}
		r := Reading{Timestamp: time.UnixMilli(int64(ts.Float64)).UTC(), Values: make(map[string]*float64, len(names))}
		for i, n := range names {
			if vals[i].Valid {
				v := vals[i].Float64
				r.Values[n] = &v
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// readChannels maps measurement column names to data table columns
// (channelNN), resolved by the channel long name.
func readChannels(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT channelID, longName FROM channels ORDER BY channelID`)
	if err != nil {
		return nil, fmt.Errorf("failed to read channels: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id int
		var longName string
		if err := rows.Scan(&id, &longName); err != nil {
			return nil, err
		}
		col, ok := longNames[normalize(longName)]
		if !ok {
			continue
		}
		if _, seen := out[col]; !seen {
			out[col] = fmt.Sprintf("channel%02d", id)
		}
	}
	return out, rows.Err()
}

// Filter keeps readings deeper than MinDepth, sorted by time, and only
// those whose depth does not decrease (the downcast).
func Filter(readings []Reading) []Reading {
	kept := make([]Reading, 0, len(readings))
	for _, r := range readings {
		if r.depth() > MinDepth {
			kept = append(kept, r)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Timestamp.Before(kept[j].Timestamp) })

	out := kept[:0]
	prev := -1.0
	for _, r := range kept {
		if d := r.depth(); d >= prev {
			out = append(out, r)
			prev = d
		}
	}
	return out
}

// Rows converts readings to table rows. parentKey is raw_data_id or
// processed_data_id.
func Rows(readings []Reading, req models.InvocationRequest, parentKey, parentID string) []models.Row {
	out := make([]models.Row, 0, len(readings))
	for _, r := range readings {
		row := models.Row{
			"id":        uuid.NewString(),
			parentKey:   parentID,
			"sample_id": req.SampleID,
			"user_id":   req.UserID,
			"org_id":    req.OrgID,
			"timestamp": r.Timestamp.Format(time.RFC3339Nano),
		}
		for _, c := range Columns {
			if v := r.Values[c]; v != nil {
				row[c] = *v
			} else {
				row[c] = nil
			}
		}
		out = append(out, row)
	}
	return out
}

// Process runs the whole CTD pipeline on the first input file.
func Process(ctx context.Context, req models.InvocationRequest, emit func(pct int, msg string)) (models.Report, error) {
	if len(req.Files) == 0 {
		return models.Report{}, errors.New("no files uploaded")
	}

	emit(0, "Opening instrument file...")
	emit(20, "Reading channel data...")
	readings, err := Read(ctx, req.Files[0])
	if err != nil {
		return models.Report{}, err
	}

	emit(40, "Reading measurements...")
	emit(60, "Filtering data...")
	cast := Filter(readings)

	emit(70, "Processing depth data...")
	emit(80, "Validating measurements...")
	if len(cast) == 0 {
		return models.Report{}, fmt.Errorf("no readings below %.1f m", MinDepth)
	}

	emit(90, "Generating report...")
	report := models.Report{
		RawData:       Rows(readings, req, "raw_data_id", req.RawDataID),
		ProcessedData: Rows(cast, req, "processed_data_id", req.ProcessedDataID),
	}

	emit(100, "Processing complete")
	return report, nil
}
