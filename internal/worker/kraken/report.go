// Package kraken runs KrakenUniq and parses its report and per-read output.
package kraken

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// MissingCoverage replaces an "NA" coverage column.
const MissingCoverage = "-999"

// ReportRow is one taxon line of a KrakenUniq report. Counts stay as the
// text the classifier printed.
type ReportRow struct {
	ID          string
	Percentage  float64
	Reads       string
	TaxReads    string
	Kmers       string
	Duplication string
	Coverage    string
	TaxID       int64
	Rank        string
	TaxName     string
	ParentID    string
	ChildrenIDs string
	EScore      float64

	depth int
}

// EScore is kmers/taxReads * e^(e^coverage); 0 when taxReads is 0 or
// coverage is negative (which includes the NA sentinel).
func EScore(taxReads, kmers, coverage float64) float64 {
	if taxReads == 0 || coverage < 0 {
		return 0
	}
	return (kmers / taxReads) * math.Exp(math.Exp(coverage))
}

// ParseReport reads a KrakenUniq report. Comment lines, the column header
// and lines with fewer than 9 tab-separated columns are skipped. The tree
// is rebuilt from the name indentation, two spaces per level.
func ParseReport(r io.Reader) ([]*ReportRow, error) {
	var rows []*ReportRow

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\n ")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 9 {
			continue
		}
		rank := strings.ToLower(strings.TrimSpace(cols[7]))
		if rank == "rank" {
			continue
		}

		nameCol := cols[8]
		name := strings.TrimLeft(nameCol, " ")
		depth := (len(nameCol) - len(name)) / 2
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if strings.Contains(strings.ToLower(name), "unclassified") {
			rank = "unclassified"
		}

		coverage := strings.TrimSpace(cols[5])
		if strings.EqualFold(coverage, "NA") {
			coverage = MissingCoverage
		}

		pct, _ := strconv.ParseFloat(strings.TrimSpace(cols[0]), 64)
		taxID, _ := strconv.ParseInt(strings.TrimSpace(cols[6]), 10, 64)
		taxReads, _ := strconv.ParseFloat(strings.TrimSpace(cols[2]), 64)
		kmers, _ := strconv.ParseFloat(strings.TrimSpace(cols[3]), 64)
		cov, err := strconv.ParseFloat(coverage, 64)
		if err != nil {
			cov = -999
		}

		rows = append(rows, &ReportRow{
			ID:          uuid.NewString(),
			Percentage:  pct,
			Reads:       strings.TrimSpace(cols[1]),
			TaxReads:    strings.TrimSpace(cols[2]),
			Kmers:       strings.TrimSpace(cols[3]),
			Duplication: strings.TrimSpace(cols[4]),
			Coverage:    coverage,
			TaxID:       taxID,
			Rank:        rank,
			TaxName:     name,
			EScore:      EScore(taxReads, kmers, cov),
			depth:       depth,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	linkTree(rows)
	return rows, nil
}

// linkTree sets ParentID and ChildrenIDs ("{a,b}") from row depths.
func linkTree(rows []*ReportRow) {
	var stack []*ReportRow
	children := make(map[*ReportRow][]string)

	for _, row := range rows {
		if row.depth < len(stack) {
			stack = stack[:row.depth]
		}
		if row.depth > 0 && len(stack) >= row.depth {
			parent := stack[row.depth-1]
			if parent != nil {
				row.ParentID = parent.ID
				children[parent] = append(children[parent], row.ID)
			}
		}
		for len(stack) < row.depth {
			stack = append(stack, nil)
		}
		stack = append(stack, row)
	}

	for parent, ids := range children {
		parent.ChildrenIDs = "{" + strings.Join(ids, ",") + "}"
	}
}
