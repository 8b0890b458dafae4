// Package services holds the agent's application services: the processing
// orchestrator that drives one operation from placeholder record to stored
// rows, and the upload service that gets raw files to blob storage.
package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dmitrijs2005/poleshift/internal/client/models"
	"github.com/dmitrijs2005/poleshift/internal/client/progress"
	"github.com/dmitrijs2005/poleshift/internal/client/repositories/processed"
	"github.com/dmitrijs2005/poleshift/internal/client/repositories/rawdata"
	"github.com/dmitrijs2005/poleshift/internal/client/session"
	"github.com/dmitrijs2005/poleshift/internal/common"
	"github.com/dmitrijs2005/poleshift/internal/logging"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AmmoniumFactor converts an ammonia reading to ammonium.
const AmmoniumFactor = 55.43

// FailurePolicy decides what happens to the record when an operation fails
// after it was created.
type FailurePolicy int

const (
	// MarkFailed moves the record to the failed state with the error.
	MarkFailed FailurePolicy = iota
	// LeaveAsIs keeps the last state the record reached.
	LeaveAsIs
)

// Invoker runs an operation out of process. emit receives every progress
// notification before Invoke returns.
type Invoker interface {
	Invoke(ctx context.Context, req models.InvocationRequest, emit func(models.ProgressEvent)) (*models.InvocationResult, error)
}

// Inserter is the bulk result writer.
type Inserter interface {
	Insert(ctx context.Context, table string, columns []string, rows []models.Row) (int64, error)
}

// Request starts one processing operation. Files is used by worker data
// types, Value by NutrientAmmonia.
type Request struct {
	DataType models.DataType
	SampleID string
	Identity session.Identity
	Files    []string
	Value    *float64
}

type FileUpload struct {
	Path   string
	Key    string
	Status UploadStatus
	Err    error
}

// Outcome describes a finished operation.
type Outcome struct {
	RecordID  string
	RawDataID string
	// Rows counts the stored rows per table.
	Rows    map[string]int64
	Uploads []FileUpload
}

// ProcessingService runs processing operations. At most one operation per
// sample and data type is in flight at any time.
type ProcessingService interface {
	Process(ctx context.Context, req Request) (*Outcome, error)
	Status(ctx context.Context, sampleID string, dataType models.DataType) (*models.ProcessingRecord, error)
	InFlight() []string
}

type ProcessingOptions struct {
	Policy FailurePolicy
	// RawBucket receives the input files; empty disables the upload.
	RawBucket string
}

type processingService struct {
	invoker  Invoker
	records  processed.Repository
	rawData  rawdata.Repository
	inserter Inserter
	relay    *progress.Relay
	uploads  UploadService
	log      logging.Logger
	opts     ProcessingOptions
	inflight mapset.Set[string]
	newID    func() string

	operations metric.Int64Counter
}

// NewProcessingService wires the orchestrator. uploads may be nil.
func NewProcessingService(invoker Invoker, records processed.Repository, rawData rawdata.Repository,
	inserter Inserter, relay *progress.Relay, uploads UploadService, log logging.Logger, opts ProcessingOptions) ProcessingService {

	operations, _ := otel.Meter("github.com/dmitrijs2005/poleshift/internal/client/services").
		Int64Counter("poleshift.processing.operations", metric.WithDescription("processing operations by result"))

	return &processingService{
		invoker:    invoker,
		records:    records,
		rawData:    rawData,
		inserter:   inserter,
		relay:      relay,
		uploads:    uploads,
		log:        log.With("module", "processing"),
		opts:       opts,
		inflight:   mapset.NewSet[string](),
		newID:      uuid.NewString,
		operations: operations,
	}
}

func inflightKey(sampleID string, dataType models.DataType) string {
	return sampleID + "|" + string(dataType)
}

func (s *processingService) InFlight() []string {
	keys := s.inflight.ToSlice()
	sort.Strings(keys)
	return keys
}

func (s *processingService) Status(ctx context.Context, sampleID string, dataType models.DataType) (*models.ProcessingRecord, error) {
	return s.records.Latest(ctx, sampleID, dataType)
}

func validate(req Request) error {
	switch {
	case !req.Identity.Valid():
		return fmt.Errorf("%w: missing user or organisation", common.ErrInvalidInput)
	case strings.TrimSpace(req.SampleID) == "":
		return fmt.Errorf("%w: missing sample id", common.ErrInvalidInput)
	case !req.DataType.Valid():
		return fmt.Errorf("%w: unknown data type %q", common.ErrInvalidInput, req.DataType)
	}

	if req.DataType == models.DataTypeNutrientAmmonia {
		if req.Value == nil || math.IsNaN(*req.Value) || math.IsInf(*req.Value, 0) || *req.Value < 0 {
			return fmt.Errorf("%w: ammonia needs a non-negative value", common.ErrInvalidInput)
		}
		return nil
	}

	if len(req.Files) == 0 {
		return fmt.Errorf("%w: no files selected", common.ErrInvalidInput)
	}
	for _, f := range req.Files {
		st, err := os.Stat(f)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", common.ErrInvalidInput, f, err)
		}
		if st.IsDir() {
			return fmt.Errorf("%w: %s is a directory", common.ErrInvalidInput, f)
		}
	}
	return nil
}

func (s *processingService) Process(ctx context.Context, req Request) (out *Outcome, err error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	key := inflightKey(req.SampleID, req.DataType)
	if !s.inflight.Add(key) {
		return nil, fmt.Errorf("%w: %s", common.ErrAlreadyProcessing, key)
	}
	defer s.inflight.Remove(key)

	log := s.log.With("sample_id", req.SampleID, "data_type", string(req.DataType))

	ir := models.InvocationRequest{
		DataType:        req.DataType,
		SampleID:        req.SampleID,
		OrgID:           req.Identity.OrgID,
		UserID:          req.Identity.UserID,
		RawDataID:       s.newID(),
		ProcessedDataID: s.newID(),
		Files:           req.Files,
	}

	rec := &models.ProcessingRecord{
		ID:              ir.ProcessedDataID,
		SampleID:        req.SampleID,
		DataType:        req.DataType,
		ProcessingState: models.StateInitiated,
		StatusMessage:   fmt.Sprintf("Starting %s processing", req.DataType),
		RawDataID:       ir.RawDataID,
		UserID:          ir.UserID,
		OrgID:           ir.OrgID,
	}
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, err
	}
	log.Info(ctx, "processing started", "record_id", rec.ID)

	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			s.fail(ctx, log, rec.ID, err)
		}
		if s.operations != nil {
			s.operations.Add(ctx, 1, metric.WithAttributes(
				attribute.String("data_type", string(req.DataType)),
				attribute.String("result", result)))
		}
	}()

	var report models.Report
	if req.DataType == models.DataTypeNutrientAmmonia {
		report = ammoniaReport(ir, *req.Value, s.newID())
	} else {
		report, err = s.invoke(ctx, ir)
		if err != nil {
			return nil, err
		}
	}

	out = &Outcome{RecordID: rec.ID, RawDataID: ir.RawDataID, Rows: make(map[string]int64)}
	if err := s.save(ctx, ir, report, out); err != nil {
		return nil, err
	}
	log.Info(ctx, "processing complete", "record_id", rec.ID, "rows", out.Rows)

	if req.DataType.NeedsWorker() {
		out.Uploads = s.uploadInputs(ctx, ir)
	}
	return out, nil
}

// invoke runs the worker with the progress relay attached for the whole
// call; the subscription is released exactly once on every path.
func (s *processingService) invoke(ctx context.Context, ir models.InvocationRequest) (models.Report, error) {
	sub := s.relay.Attach(ctx, ir.SampleID, ir.DataType, ir.ProcessedDataID)
	defer sub.Unsubscribe()

	res, err := s.invoker.Invoke(ctx, ir, func(ev models.ProgressEvent) {
		s.relay.Publish(ir.SampleID, ir.DataType, ev)
	})
	if err != nil {
		return models.Report{}, fmt.Errorf("%w: %w", common.ErrProcessingFailed, err)
	}
	if !res.Succeeded() {
		msg := res.Error
		if msg == "" {
			msg = "status " + res.Status
		}
		return models.Report{}, fmt.Errorf("%w: %s", common.ErrProcessingFailed, msg)
	}
	if res.Report.Empty() {
		return models.Report{}, common.ErrEmptyReport
	}
	return res.Report, nil
}

func (s *processingService) save(ctx context.Context, ir models.InvocationRequest, report models.Report, out *Outcome) error {
	cur, err := s.records.Get(ctx, ir.ProcessedDataID)
	if err != nil {
		return fmt.Errorf("failed to read processing record: %w", err)
	}
	if err := s.records.SetState(ctx, ir.ProcessedDataID, models.StateSaving, "Saving results", cur.ProgressPercentage); err != nil {
		return err
	}

	for _, p := range plans[ir.DataType] {
		rows := stamp(p.rows(report), ir, p.parentKey, s.newID)
		n, err := s.inserter.Insert(ctx, p.table, p.columns, rows)
		if err != nil {
			return err
		}
		out.Rows[p.table] = n
	}

	if err := s.rawData.Create(ctx, &models.RawDataEntry{
		ID:       ir.RawDataID,
		DataType: ir.DataType,
		UserID:   ir.UserID,
		OrgID:    ir.OrgID,
		SampleID: ir.SampleID,
	}); err != nil {
		return err
	}

	return s.records.SetState(ctx, ir.ProcessedDataID, models.StateComplete, "Processing complete", 100)
}

// stamp sets the caller's identity and the parent link on every row, and
// gives rows without an id a fresh one.
func stamp(rows []models.Row, ir models.InvocationRequest, parentKey string, newID func() string) []models.Row {
	parentID := ir.ProcessedDataID
	if parentKey == "raw_data_id" {
		parentID = ir.RawDataID
	}
	for _, r := range rows {
		if id, _ := r["id"].(string); id == "" {
			r["id"] = newID()
		}
		r["sample_id"] = ir.SampleID
		r["user_id"] = ir.UserID
		r["org_id"] = ir.OrgID
		r[parentKey] = parentID
	}
	return rows
}

func ammoniaReport(ir models.InvocationRequest, ammonia float64, rowID string) models.Report {
	return models.Report{ProcessedData: []models.Row{{
		"id":       rowID,
		"ammonia":  ammonia,
		"ammonium": Ammonium(ammonia),
	}}}
}

// Ammonium converts an ammonia reading.
func Ammonium(ammonia float64) float64 {
	return ammonia * AmmoniumFactor
}

func (s *processingService) uploadInputs(ctx context.Context, ir models.InvocationRequest) []FileUpload {
	if s.uploads == nil || s.opts.RawBucket == "" {
		return nil
	}
	out := make([]FileUpload, 0, len(ir.Files))
	for _, f := range ir.Files {
		u := FileUpload{Path: f, Key: ObjectKey(ir.OrgID, ir.SampleID, f)}
		u.Status, u.Err = s.uploads.Upload(ctx, f, s.opts.RawBucket, u.Key)
		if u.Err != nil {
			s.log.Warn(ctx, "raw file not uploaded or queued", "path", f, "error", u.Err)
		}
		out = append(out, u)
	}
	return out
}

func (s *processingService) fail(ctx context.Context, log logging.Logger, id string, cause error) {
	log.Error(ctx, "processing failed", "record_id", id, "error", cause)
	if s.opts.Policy != MarkFailed {
		return
	}
	// The record must reflect the failure even when ctx is what failed.
	if err := s.records.MarkFailed(context.WithoutCancel(ctx), id, cause.Error()); err != nil && !errors.Is(err, common.ErrNotFound) {
		log.Warn(ctx, "failed to record failure", "record_id", id, "error", err)
	}
}
