package sequence

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/poleshift/internal/client/models"
	"github.com/dmitrijs2005/poleshift/internal/worker/kraken"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClassifier struct {
	report string
	output string
	err    error
	inputs []string
	paired bool
}

func (f *fakeClassifier) Classify(_ context.Context, in kraken.Input, reportPath, outputPath string) error {
	f.inputs, f.paired = in.Files, in.Paired
	if f.err != nil {
		return f.err
	}
	if err := os.WriteFile(reportPath, []byte(f.report), 0o600); err != nil {
		return err
	}
	return os.WriteFile(outputPath, []byte(f.output), 0o600)
}

const reads = "@read-a runid=run1 read=5 ch=9 barcode=barcode02\nACGT\n+\nIIII\n"

func request(t *testing.T) models.InvocationRequest {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reads.fastq")
	require.NoError(t, os.WriteFile(path, []byte(reads), 0o600))
	return models.InvocationRequest{
		DataType: models.DataTypeSequence, SampleID: "s", UserID: "u", OrgID: "o",
		RawDataID: "raw", ProcessedDataID: "proc", Files: []string{path},
	}
}

func TestProcess(t *testing.T) {
	fc := &fakeClassifier{
		report: "%\treads\ttaxReads\tkmers\tdup\tcov\ttaxID\trank\ttaxName\n" +
			"100\t1\t1\t10\t1\t0.5\t1\tno rank\troot\n" +
			"100\t1\t1\t10\t1\t0.5\t2\tspecies\t  E. coli\n",
		output: "C\tread-a\t2\t4\t2:1\n",
	}
	req := request(t)

	var pcts []int
	rep, err := NewProcessor(fc, t.TempDir()).Process(context.Background(), req, func(p int, _ string) { pcts = append(pcts, p) })
	require.NoError(t, err)

	assert.Equal(t, []int{10, 30, 50, 70, 90, 100}, pcts)
	assert.Equal(t, req.Files, fc.inputs)

	require.Len(t, rep.RawData, 1)
	raw := rep.RawData[0]
	assert.Equal(t, "read-a", raw["feature_id"])
	assert.Equal(t, "read-a", raw["parent_read_id"])
	assert.Equal(t, "run1", raw["run_id"])
	assert.Equal(t, 5, raw["read"])
	assert.Equal(t, "barcode02", raw["barcode"])
	assert.Equal(t, float64('I'), raw["quality_median"])
	assert.Equal(t, "raw", raw["raw_data_id"])

	require.Len(t, rep.ProcessedData, 2)
	assert.Nil(t, rep.ProcessedData[0]["parent_id"])
	assert.Equal(t, rep.ProcessedData[0]["id"], rep.ProcessedData[1]["parent_id"])
	assert.Equal(t, "proc", rep.ProcessedData[1]["processed_data_id"])

	require.Len(t, rep.ReportContent, 1)
	assert.Equal(t, true, rep.ReportContent[0]["classified"])
	assert.Equal(t, int64(2), rep.ReportContent[0]["tax_id"])
}

func TestProcess_ClassifierFailure(t *testing.T) {
	fc := &fakeClassifier{err: errors.New("boom")}
	_, err := NewProcessor(fc, t.TempDir()).Process(context.Background(), request(t), func(int, string) {})
	assert.ErrorContains(t, err, "boom")
}

func TestProcess_BadFastq(t *testing.T) {
	req := request(t)
	require.NoError(t, os.WriteFile(req.Files[0], []byte("not fastq\n"), 0o600))

	fc := &fakeClassifier{}
	_, err := NewProcessor(fc, t.TempDir()).Process(context.Background(), req, func(int, string) {})
	assert.Error(t, err)
	assert.Nil(t, fc.inputs, "classifier must not run on invalid input")
}

func TestPairMates(t *testing.T) {
	tests := []struct {
		name   string
		files  []string
		want   []string
		paired bool
	}{
		{"illumina", []string{"s_S1_L001_R1_001.fastq.gz", "s_S1_L001_R2_001.fastq.gz"}, []string{"s_S1_L001_R1_001.fastq.gz", "s_S1_L001_R2_001.fastq.gz"}, true},
		{"reordered", []string{"/d/reads_2.fq", "/d/reads_1.fq"}, []string{"/d/reads_1.fq", "/d/reads_2.fq"}, true},
		{"lower case", []string{"x.r1.fastq", "x.r2.fastq"}, []string{"x.r1.fastq", "x.r2.fastq"}, true},
		{"different samples", []string{"a_R1.fq", "b_R2.fq"}, []string{"a_R1.fq", "b_R2.fq"}, false},
		{"same mate", []string{"a_R1.fq", "a_R1.fastq"}, []string{"a_R1.fq", "a_R1.fastq"}, false},
		{"single", []string{"a_R1.fq"}, []string{"a_R1.fq"}, false},
		{"unmarked", []string{"run1.fastq", "run2.fastq"}, []string{"run1.fastq", "run2.fastq"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, paired := PairMates(tt.files)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.paired, paired)
		})
	}
}

func TestProcess_PairedEnd(t *testing.T) {
	dir := t.TempDir()
	r1 := filepath.Join(dir, "s_R1.fastq")
	r2 := filepath.Join(dir, "s_R2.fastq")
	require.NoError(t, os.WriteFile(r1, []byte(reads), 0o600))
	require.NoError(t, os.WriteFile(r2, []byte("@read-b\nTTGA\n+\nIIII\n"), 0o600))
	req := request(t)
	req.Files = []string{r2, r1}

	fc := &fakeClassifier{report: "100\t2\t2\t10\t1\t0.5\t1\tno rank\troot\n"}
	rep, err := NewProcessor(fc, t.TempDir()).Process(context.Background(), req, func(int, string) {})
	require.NoError(t, err)

	assert.True(t, fc.paired)
	assert.Equal(t, []string{r1, r2}, fc.inputs)
	assert.Len(t, rep.RawData, 2)
}
