package services

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/poleshift/internal/client/bulk"
	"github.com/dmitrijs2005/poleshift/internal/client/models"
	"github.com/dmitrijs2005/poleshift/internal/client/progress"
	"github.com/dmitrijs2005/poleshift/internal/client/repositories/processed"
	"github.com/dmitrijs2005/poleshift/internal/client/repositories/rawdata"
	"github.com/dmitrijs2005/poleshift/internal/client/session"
	"github.com/dmitrijs2005/poleshift/internal/client/store/storetest"
	"github.com/dmitrijs2005/poleshift/internal/common"
	"github.com/dmitrijs2005/poleshift/internal/events"
	"github.com/dmitrijs2005/poleshift/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testIdentity = session.Identity{UserID: "u1", OrgID: "o1"}

type fakeInvoker struct {
	mu        sync.Mutex
	calls     int
	events    []models.ProgressEvent
	result    *models.InvocationResult
	err       error
	started   chan struct{}
	release   chan struct{}
	afterEmit func()
}

func (f *fakeInvoker) Invoke(ctx context.Context, req models.InvocationRequest, emit func(models.ProgressEvent)) (*models.InvocationResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	for _, ev := range f.events {
		emit(ev)
	}
	if f.afterEmit != nil {
		f.afterEmit()
	}
	return f.result, f.err
}

type fakeUploads struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeUploads) Upload(_ context.Context, path, bucket, key string) (UploadStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, bucket+"/"+key)
	return StatusQueued, nil
}

func (f *fakeUploads) Reconcile(context.Context) (UploadReport, error)   { return UploadReport{}, nil }
func (f *fakeUploads) RetryQueued(context.Context) (UploadReport, error) { return UploadReport{}, nil }
func (f *fakeUploads) Queue(context.Context) ([]models.UploadTask, error) {
	return nil, nil
}

type failingInserter struct{}

func (failingInserter) Insert(context.Context, string, []string, []models.Row) (int64, error) {
	return 0, errors.New("disk full")
}

// unreadableRecords fails Get and passes everything else through.
type unreadableRecords struct {
	processed.Repository
	err error
}

func (r unreadableRecords) Get(context.Context, string) (*models.ProcessingRecord, error) {
	return nil, r.err
}

type harness struct {
	db      *sql.DB
	bus     *events.Bus
	records *processed.SQLiteRepository
	uploads *fakeUploads
	svc     ProcessingService
}

func newHarness(t *testing.T, inv Invoker, opts ProcessingOptions, inserter Inserter) *harness {
	t.Helper()
	db := storetest.NewDB(t)
	bus := events.NewBus()
	log := logging.Nop()
	records := processed.NewSQLiteRepository(db, bus)
	if inserter == nil {
		inserter = bulk.NewInserter(db, log, bus)
	}
	up := &fakeUploads{}
	svc := NewProcessingService(inv, records, rawdata.NewSQLiteRepository(db, bus), inserter,
		progress.NewRelay(bus, records, log), up, log, opts)
	return &harness{db: db, bus: bus, records: records, uploads: up, svc: svc}
}

func writeFile(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("data"), 0o600))
	return p
}

func ctdTopic(sample string) string {
	return events.ProgressTopic(sample, string(models.DataTypeCTD))
}

func TestProcess_Ammonia(t *testing.T) {
	inv := &fakeInvoker{}
	h := newHarness(t, inv, ProcessingOptions{RawBucket: common.RawDataBucket}, nil)
	ctx := context.Background()

	v := 10.0
	out, err := h.svc.Process(ctx, Request{DataType: models.DataTypeNutrientAmmonia, SampleID: "s1", Identity: testIdentity, Value: &v})
	require.NoError(t, err)
	assert.Equal(t, 0, inv.calls)
	assert.Equal(t, int64(1), out.Rows["processed_nutrient_ammonia_data"])
	assert.Empty(t, out.Uploads)

	var ammonium float64
	var processedID, userID string
	require.NoError(t, h.db.QueryRow(`SELECT ammonium, processed_data_id, user_id FROM processed_nutrient_ammonia_data`).
		Scan(&ammonium, &processedID, &userID))
	assert.InDelta(t, 554.3, ammonium, 1e-9)
	assert.Equal(t, out.RecordID, processedID)
	assert.Equal(t, "u1", userID)

	rec, err := h.svc.Status(ctx, "s1", models.DataTypeNutrientAmmonia)
	require.NoError(t, err)
	assert.Equal(t, models.StateComplete, rec.ProcessingState)
	assert.Equal(t, 100, rec.ProgressPercentage)
	assert.Equal(t, 1, storetest.CountRows(t, h.db, "raw_data"))
}

func TestAmmonium(t *testing.T) {
	assert.InDelta(t, 554.3, Ammonium(10), 1e-9)
	assert.Equal(t, 0.0, Ammonium(0))
}

func TestProcess_CTDSuccess(t *testing.T) {
	file := writeFile(t, "cast.rsk")
	inv := &fakeInvoker{
		events: []models.ProgressEvent{
			{ProgressPercentage: 20, StatusMessage: "Reading", ProcessingState: models.StateProcessing},
			{ProgressPercentage: 60, StatusMessage: "Filtering", ProcessingState: models.StateProcessing},
		},
		result: &models.InvocationResult{Status: models.StatusSuccess, Report: models.Report{
			RawData: []models.Row{
				{"id": "r1", "timestamp": "2024-01-01T00:00:00Z", "depth": 0.1, "unexpected": "x"},
				{"id": "r2", "timestamp": "2024-01-01T00:00:01Z", "depth": 1.5, "temperature": 4.2},
			},
			ProcessedData: []models.Row{
				{"timestamp": "2024-01-01T00:00:01Z", "depth": 1.5, "temperature": 4.2},
			},
		}},
	}
	h := newHarness(t, inv, ProcessingOptions{RawBucket: common.RawDataBucket}, nil)
	ctx := context.Background()

	inv.afterEmit = func() {
		assert.Equal(t, 1, h.bus.Listeners(ctdTopic("s1")))
		rec, err := h.svc.Status(ctx, "s1", models.DataTypeCTD)
		require.NoError(t, err)
		assert.Equal(t, models.StateProcessing, rec.ProcessingState)
		assert.Equal(t, 60, rec.ProgressPercentage)
		assert.Equal(t, []string{"s1|CTD"}, h.svc.InFlight())
	}

	out, err := h.svc.Process(ctx, Request{DataType: models.DataTypeCTD, SampleID: "s1", Identity: testIdentity, Files: []string{file}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.Rows["raw_ctd_data"])
	assert.Equal(t, int64(1), out.Rows["processed_ctd_data"])
	assert.Equal(t, 0, h.bus.Listeners(ctdTopic("s1")))
	assert.Empty(t, h.svc.InFlight())

	rec, err := h.records.Get(ctx, out.RecordID)
	require.NoError(t, err)
	assert.Equal(t, models.StateComplete, rec.ProcessingState)
	assert.Equal(t, 100, rec.ProgressPercentage)

	var rawID, orgID string
	var temp sql.NullFloat64
	require.NoError(t, h.db.QueryRow(`SELECT raw_data_id, org_id, temperature FROM raw_ctd_data WHERE id = 'r1'`).
		Scan(&rawID, &orgID, &temp))
	assert.Equal(t, out.RawDataID, rawID)
	assert.Equal(t, "o1", orgID)
	assert.False(t, temp.Valid)

	var processedCount int
	require.NoError(t, h.db.QueryRow(`SELECT COUNT(*) FROM processed_ctd_data WHERE processed_data_id = ? AND id <> ''`, out.RecordID).
		Scan(&processedCount))
	assert.Equal(t, 1, processedCount)

	require.Len(t, out.Uploads, 1)
	assert.Equal(t, "o1/s1/cast.rsk", out.Uploads[0].Key)
	assert.Equal(t, StatusQueued, out.Uploads[0].Status)
	assert.Equal(t, []string{"raw-data/o1/s1/cast.rsk"}, h.uploads.calls)
}

func TestProcess_WorkerFailure(t *testing.T) {
	file := writeFile(t, "reads.fastq")
	progressed := []models.ProgressEvent{{ProgressPercentage: 30, StatusMessage: "Classifying", ProcessingState: models.StateProcessing}}

	tests := []struct {
		name    string
		inv     *fakeInvoker
		policy  FailurePolicy
		wantErr error
		want    models.ProcessingState
	}{
		{
			name:    "transport error marked failed",
			inv:     &fakeInvoker{events: progressed, err: common.ErrUnavailable},
			policy:  MarkFailed,
			wantErr: common.ErrProcessingFailed,
			want:    models.StateFailed,
		},
		{
			name:    "error status left as is",
			inv:     &fakeInvoker{events: progressed, result: &models.InvocationResult{Status: "Error", Error: "krakenuniq not available"}},
			policy:  LeaveAsIs,
			wantErr: common.ErrProcessingFailed,
			want:    models.StateProcessing,
		},
		{
			name:    "empty report",
			inv:     &fakeInvoker{result: &models.InvocationResult{Status: models.StatusSuccess}},
			policy:  MarkFailed,
			wantErr: common.ErrEmptyReport,
			want:    models.StateFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.inv, ProcessingOptions{Policy: tt.policy, RawBucket: common.RawDataBucket}, nil)
			ctx := context.Background()

			_, err := h.svc.Process(ctx, Request{DataType: models.DataTypeSequence, SampleID: "s1", Identity: testIdentity, Files: []string{file}})
			require.ErrorIs(t, err, tt.wantErr)

			assert.Equal(t, 0, h.bus.Listeners(events.ProgressTopic("s1", string(models.DataTypeSequence))))
			assert.Empty(t, h.svc.InFlight())
			assert.Empty(t, h.uploads.calls)
			assert.Equal(t, 0, storetest.CountRows(t, h.db, "raw_data"))

			rec, err := h.svc.Status(ctx, "s1", models.DataTypeSequence)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.ProcessingState)
			if tt.want == models.StateFailed {
				assert.NotEmpty(t, rec.ErrorMessage)
			}
		})
	}
}

func TestProcess_PersistenceFailureLeavesSaving(t *testing.T) {
	file := writeFile(t, "cast.rsk")
	inv := &fakeInvoker{result: &models.InvocationResult{Status: models.StatusSuccess, Report: models.Report{
		RawData: []models.Row{{"depth": 1.0}},
	}}}
	h := newHarness(t, inv, ProcessingOptions{Policy: LeaveAsIs}, failingInserter{})

	_, err := h.svc.Process(context.Background(), Request{DataType: models.DataTypeCTD, SampleID: "s1", Identity: testIdentity, Files: []string{file}})
	require.ErrorContains(t, err, "disk full")

	rec, err := h.svc.Status(context.Background(), "s1", models.DataTypeCTD)
	require.NoError(t, err)
	assert.Equal(t, models.StateSaving, rec.ProcessingState)
}

func TestProcess_RecordReadFailureStopsSave(t *testing.T) {
	db := storetest.NewDB(t)
	bus := events.NewBus()
	log := logging.Nop()
	records := processed.NewSQLiteRepository(db, bus)
	readErr := errors.New("database is locked")
	svc := NewProcessingService(&fakeInvoker{}, unreadableRecords{Repository: records, err: readErr},
		rawdata.NewSQLiteRepository(db, bus), bulk.NewInserter(db, log, bus),
		progress.NewRelay(bus, records, log), nil, log, ProcessingOptions{Policy: MarkFailed})

	v := 1.0
	_, err := svc.Process(context.Background(), Request{DataType: models.DataTypeNutrientAmmonia, SampleID: "s1", Identity: testIdentity, Value: &v})
	require.ErrorIs(t, err, readErr)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM processed_nutrient_ammonia_data`).Scan(&n))
	assert.Zero(t, n)

	rec, err := records.Latest(context.Background(), "s1", models.DataTypeNutrientAmmonia)
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, rec.ProcessingState)
	assert.Contains(t, rec.ErrorMessage, "database is locked")
}

func TestProcess_ValidationHasNoSideEffects(t *testing.T) {
	file := writeFile(t, "cast.rsk")
	neg := -1.0

	reqs := map[string]Request{
		"no identity":    {DataType: models.DataTypeCTD, SampleID: "s1", Files: []string{file}},
		"no org":         {DataType: models.DataTypeCTD, SampleID: "s1", Identity: session.Identity{UserID: "u1"}, Files: []string{file}},
		"no sample":      {DataType: models.DataTypeCTD, Identity: testIdentity, Files: []string{file}},
		"no files":       {DataType: models.DataTypeCTD, SampleID: "s1", Identity: testIdentity},
		"missing file":   {DataType: models.DataTypeCTD, SampleID: "s1", Identity: testIdentity, Files: []string{file + ".gone"}},
		"directory":      {DataType: models.DataTypeSequence, SampleID: "s1", Identity: testIdentity, Files: []string{filepath.Dir(file)}},
		"bad type":       {DataType: "Salinity", SampleID: "s1", Identity: testIdentity, Files: []string{file}},
		"no value":       {DataType: models.DataTypeNutrientAmmonia, SampleID: "s1", Identity: testIdentity},
		"negative value": {DataType: models.DataTypeNutrientAmmonia, SampleID: "s1", Identity: testIdentity, Value: &neg},
	}
	for name, req := range reqs {
		t.Run(name, func(t *testing.T) {
			inv := &fakeInvoker{}
			h := newHarness(t, inv, ProcessingOptions{}, nil)

			_, err := h.svc.Process(context.Background(), req)
			require.ErrorIs(t, err, common.ErrInvalidInput)
			assert.Equal(t, 0, inv.calls)
			assert.Equal(t, 0, storetest.CountRows(t, h.db, "processed_data"))
		})
	}
}

func TestProcess_RejectsConcurrentDuplicate(t *testing.T) {
	file := writeFile(t, "cast.rsk")
	inv := &fakeInvoker{
		started: make(chan struct{}),
		release: make(chan struct{}),
		result: &models.InvocationResult{Status: models.StatusSuccess, Report: models.Report{
			ProcessedData: []models.Row{{"depth": 1.0}},
		}},
	}
	h := newHarness(t, inv, ProcessingOptions{}, nil)
	req := Request{DataType: models.DataTypeCTD, SampleID: "s1", Identity: testIdentity, Files: []string{file}}

	errc := make(chan error, 1)
	go func() {
		_, err := h.svc.Process(context.Background(), req)
		errc <- err
	}()

	select {
	case <-inv.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first operation did not start")
	}

	_, err := h.svc.Process(context.Background(), req)
	assert.ErrorIs(t, err, common.ErrAlreadyProcessing)

	close(inv.release)
	require.NoError(t, <-errc)
	assert.Empty(t, h.svc.InFlight())
	assert.Equal(t, 1, inv.calls)
}
