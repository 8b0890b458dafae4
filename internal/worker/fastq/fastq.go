// Package fastq reads FASTQ files, plain or gzip-compressed, and decodes the
// key=value fields nanopore basecallers put in read headers.
package fastq

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

var (
	ErrMissingHeader   = errors.New("missing FASTQ header")
	ErrMissingSequence = errors.New("missing FASTQ sequence")
	ErrMissingQuality  = errors.New("missing FASTQ quality scores")
	ErrQualityMismatch = errors.New("quality length does not match sequence length")
	ErrInvalidQuality  = errors.New("invalid quality score")
)

// Record is one 4-line FASTQ entry. Header keeps its leading '@'.
type Record struct {
	Header   string
	Sequence string
	Quality  []byte
}

// Validate checks structure and Phred+33 range (33..126).
func (r *Record) Validate() error {
	switch {
	case r.Header == "":
		return ErrMissingHeader
	case r.Sequence == "":
		return ErrMissingSequence
	case len(r.Quality) == 0:
		return ErrMissingQuality
	case len(r.Quality) != len(r.Sequence):
		return ErrQualityMismatch
	}
	for _, q := range r.Quality {
		if q < 33 || q > 126 {
			return ErrInvalidQuality
		}
	}
	return nil
}

// MedianQuality is the median of the raw quality bytes.
func (r *Record) MedianQuality() float64 {
	if len(r.Quality) == 0 {
		return 0
	}
	sorted := append([]byte(nil), r.Quality...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	n := len(sorted)
	if n%2 == 1 {
		return float64(sorted[n/2])
	}
	return (float64(sorted[n/2-1]) + float64(sorted[n/2])) / 2
}

type Reader struct {
	sc   *bufio.Scanner
	line int
}

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Reader{sc: sc}
}

func (r *Reader) next() (string, bool, error) {
	if !r.sc.Scan() {
		return "", false, r.sc.Err()
	}
	r.line++
	return strings.TrimSpace(r.sc.Text()), true, nil
}

// Read returns the next record, or io.EOF after the last one.
func (r *Reader) Read() (*Record, error) {
	header, ok, err := r.next()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, io.EOF
	}
	if !strings.HasPrefix(header, "@") {
		return nil, fmt.Errorf("line %d: %w", r.line, ErrMissingHeader)
	}

	seq, ok, err := r.next()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("line %d: %w", r.line, ErrMissingSequence)
	}

	plus, ok, err := r.next()
	if err != nil {
		return nil, err
	}
	if !ok || !strings.HasPrefix(plus, "+") {
		return nil, fmt.Errorf("line %d: %w", r.line, ErrMissingQuality)
	}

	qual, ok, err := r.next()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("line %d: %w", r.line, ErrMissingQuality)
	}

	return &Record{Header: header, Sequence: seq, Quality: []byte(qual)}, nil
}

// ReadAll reads and validates every record.
func (r *Reader) ReadAll() ([]*Record, error) {
	var out []*Record
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
}

// ReadFile reads path, decompressing when it ends in .gz.
func ReadFile(path string) ([]*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var src io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		defer zr.Close()
		src = zr
	}

	recs, err := NewReader(src).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

// Header holds the nanopore fields of a read header.
type Header struct {
	ParentReadID           string
	RunID                  string
	Read                   int
	Channel                int
	StartTime              string
	SampleID               string
	Barcode                string
	BarcodeAlias           string
	FlowCellID             string
	ProtocolGroupID        string
	BasecallModelVersionID string
}

// ParseHeader splits "@<read id> key=value ..." into its fields. Unknown
// keys are ignored and unparsable numbers become 0.
func ParseHeader(h string) Header {
	var out Header
	for _, part := range strings.Fields(h) {
		if strings.HasPrefix(part, "@") {
			out.ParentReadID = strings.TrimLeft(part, "@")
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch key {
		case "runid":
			out.RunID = value
		case "read":
			out.Read, _ = strconv.Atoi(value)
		case "ch":
			out.Channel, _ = strconv.Atoi(value)
		case "start_time":
			out.StartTime = value
		case "sample_id":
			out.SampleID = value
		case "barcode":
			out.Barcode = value
		case "barcode_alias":
			out.BarcodeAlias = value
		case "flow_cell_id":
			out.FlowCellID = value
		case "protocol_group_id":
			out.ProtocolGroupID = value
		case "basecall_model_version_id":
			out.BasecallModelVersionID = value
		}
	}
	return out
}
