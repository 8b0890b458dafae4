// Package sequence processes FASTQ reads: it parses the raw reads and
// classifies them with KrakenUniq.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dmitrijs2005/poleshift/internal/client/models"
	"github.com/dmitrijs2005/poleshift/internal/worker/fastq"
	"github.com/dmitrijs2005/poleshift/internal/worker/kraken"
	"github.com/google/uuid"
)

type Processor struct {
	classifier kraken.Classifier
	tempDir    string
}

func NewProcessor(c kraken.Classifier, tempDir string) *Processor {
	return &Processor{classifier: c, tempDir: tempDir}
}

// mateRe matches the mate marker at the end of a read file stem, as in
// sample_R1, sample_S1_L001_R2_001 or reads_1.
var mateRe = regexp.MustCompile(`(?i)^(.*[._-])R?([12])(_\d{3})?$`)

func stem(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if strings.EqualFold(filepath.Ext(path), ".gz") {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return name
}

// PairMates reports whether files are the two mates of one paired-end run
// and, if so, returns them first mate first. Anything else is single-end.
func PairMates(files []string) ([]string, bool) {
	if len(files) != 2 {
		return files, false
	}
	a := mateRe.FindStringSubmatch(stem(files[0]))
	b := mateRe.FindStringSubmatch(stem(files[1]))
	if a == nil || b == nil || !strings.EqualFold(a[1], b[1]) || !strings.EqualFold(a[3], b[3]) || a[2] == b[2] {
		return files, false
	}
	if a[2] == "2" {
		return []string{files[1], files[0]}, true
	}
	return files, true
}

// Process classifies the request's files. Two mate files are classified as
// one paired-end run.
func (p *Processor) Process(ctx context.Context, req models.InvocationRequest, emit func(pct int, msg string)) (models.Report, error) {
	if len(req.Files) == 0 {
		return models.Report{}, errors.New("no input files provided")
	}

	emit(10, "Reading sequence files...")
	var raw []models.Row
	for _, path := range req.Files {
		recs, err := fastq.ReadFile(path)
		if err != nil {
			return models.Report{}, err
		}
		raw = append(raw, RawRows(recs, req)...)
	}

	emit(30, "Starting classification...")
	work, err := os.MkdirTemp(p.tempDir, "kraken-")
	if err != nil {
		return models.Report{}, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(work)

	reportPath := filepath.Join(work, "report.txt")
	outputPath := filepath.Join(work, "output.txt")
	files, paired := PairMates(req.Files)
	if err := p.classifier.Classify(ctx, kraken.Input{Files: files, Paired: paired}, reportPath, outputPath); err != nil {
		return models.Report{}, err
	}

	emit(50, "Classification complete. Parsing report...")
	reportRows, err := parseFile(reportPath, kraken.ParseReport)
	if err != nil {
		return models.Report{}, err
	}

	emit(70, "Parsing read classifications...")
	readRows, err := parseFile(outputPath, kraken.ParseStdout)
	if err != nil {
		return models.Report{}, err
	}

	emit(90, "Preparing final data...")
	report := models.Report{
		RawData:       raw,
		ProcessedData: ReportRows(reportRows, req),
		ReportContent: ClassificationRows(readRows, req),
	}

	emit(100, "Processing complete")
	return report, nil
}

func parseFile[T any](path string, parse func(r io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, fmt.Errorf("classifier did not produce %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	return parse(f)
}

func RawRows(recs []*fastq.Record, req models.InvocationRequest) []models.Row {
	out := make([]models.Row, 0, len(recs))
	for _, rec := range recs {
		h := fastq.ParseHeader(rec.Header)
		out = append(out, models.Row{
			"id":                        uuid.NewString(),
			"raw_data_id":               req.RawDataID,
			"sample_id":                 req.SampleID,
			"user_id":                   req.UserID,
			"org_id":                    req.OrgID,
			"feature_id":                h.ParentReadID,
			"sequence":                  rec.Sequence,
			"quality":                   string(rec.Quality),
			"quality_median":            rec.MedianQuality(),
			"run_id":                    h.RunID,
			"read":                      h.Read,
			"ch":                        h.Channel,
			"start_time":                h.StartTime,
			"sample_id_fastq":           h.SampleID,
			"barcode":                   h.Barcode,
			"barcode_alias":             h.BarcodeAlias,
			"parent_read_id":            h.ParentReadID,
			"basecall_model_version_id": h.BasecallModelVersionID,
			"flow_cell_id":              h.FlowCellID,
			"protocol_group_id":         h.ProtocolGroupID,
		})
	}
	return out
}

func ReportRows(rows []*kraken.ReportRow, req models.InvocationRequest) []models.Row {
	out := make([]models.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Row{
			"id":                r.ID,
			"processed_data_id": req.ProcessedDataID,
			"sample_id":         req.SampleID,
			"user_id":           req.UserID,
			"org_id":            req.OrgID,
			"percentage":        r.Percentage,
			"reads":             r.Reads,
			"tax_reads":         r.TaxReads,
			"kmers":             r.Kmers,
			"duplication":       r.Duplication,
			"coverage":          r.Coverage,
			"tax_id":            r.TaxID,
			"rank":              r.Rank,
			"tax_name":          r.TaxName,
			"parent_id":         optional(r.ParentID),
			"children_ids":      optional(r.ChildrenIDs),
			"e_score":           r.EScore,
		})
	}
	return out
}

func ClassificationRows(rows []*kraken.ReadClassification, req models.InvocationRequest) []models.Row {
	out := make([]models.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Row{
			"id":                r.ID,
			"processed_data_id": req.ProcessedDataID,
			"sample_id":         req.SampleID,
			"user_id":           req.UserID,
			"org_id":            req.OrgID,
			"classified":        r.Classified,
			"feature_id":        r.FeatureID,
			"tax_id":            r.TaxID,
			"read_length":       r.ReadLength,
			"hit_data":          r.HitData,
		})
	}
	return out
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}
