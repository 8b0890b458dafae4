package kraken

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ReadClassification is one line of per-read classifier output.
type ReadClassification struct {
	ID         string
	Classified bool
	FeatureID  string
	TaxID      int64
	ReadLength int64
	HitData    string
}

// ParseStdout parses "C|U <read id> <tax id> <length> <hits...>" lines.
// Unlike the report, malformed lines are errors.
func ParseStdout(r io.Reader) ([]*ReadClassification, error) {
	var out []*ReadClassification

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 5 {
			return nil, fmt.Errorf("line %d: expected at least 5 columns, found %d", n, len(parts))
		}

		var classified bool
		switch parts[0] {
		case "C":
			classified = true
		case "U":
		default:
			return nil, fmt.Errorf("line %d: invalid classification indicator %q", n, parts[0])
		}

		taxID, err := strconv.ParseInt(parts[2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: tax id: %w", n, err)
		}
		length, err := strconv.ParseInt(parts[3], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: read length: %w", n, err)
		}

		out = append(out, &ReadClassification{
			ID:         uuid.NewString(),
			Classified: classified,
			FeatureID:  parts[1],
			TaxID:      taxID,
			ReadLength: length,
			HitData:    strings.Join(parts[4:], " "),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read classifier output: %w", err)
	}
	return out, nil
}
