package rpc

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/poleshift/internal/client/models"
	"google.golang.org/protobuf/types/known/structpb"
)

var ErrBadFrame = errors.New("malformed worker frame")

const (
	frameProgress = "progress"
	frameResult   = "result"
)

func EncodeRequest(req models.InvocationRequest) (*structpb.Struct, error) {
	files := make([]any, len(req.Files))
	for i, f := range req.Files {
		files[i] = f
	}
	return structpb.NewStruct(map[string]any{
		"data_type":         string(req.DataType),
		"sample_id":         req.SampleID,
		"org_id":            req.OrgID,
		"user_id":           req.UserID,
		"raw_data_id":       req.RawDataID,
		"processed_data_id": req.ProcessedDataID,
		"files":             files,
	})
}

func DecodeRequest(s *structpb.Struct) (models.InvocationRequest, error) {
	m := s.AsMap()
	req := models.InvocationRequest{
		DataType:        models.DataType(str(m, "data_type")),
		SampleID:        str(m, "sample_id"),
		OrgID:           str(m, "org_id"),
		UserID:          str(m, "user_id"),
		RawDataID:       str(m, "raw_data_id"),
		ProcessedDataID: str(m, "processed_data_id"),
	}
	if list, ok := m["files"].([]any); ok {
		for _, v := range list {
			if f, ok := v.(string); ok && f != "" {
				req.Files = append(req.Files, f)
			}
		}
	}
	if !req.DataType.NeedsWorker() {
		return req, fmt.Errorf("%w: data type %q", ErrBadFrame, req.DataType)
	}
	if req.SampleID == "" || len(req.Files) == 0 {
		return req, fmt.Errorf("%w: sample id and files are required", ErrBadFrame)
	}
	return req, nil
}

func ProgressFrame(ev models.ProgressEvent) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		frameProgress: map[string]any{
			"progress_percentage": ev.ProgressPercentage,
			"status_message":      ev.StatusMessage,
			"processing_state":    string(ev.ProcessingState),
		},
	})
}

func ResultFrame(res models.InvocationResult) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		frameResult: map[string]any{
			"status": res.Status,
			"error":  res.Error,
			"report": map[string]any{
				"raw_data":       rowsToList(res.Report.RawData),
				"processed_data": rowsToList(res.Report.ProcessedData),
				"report_content": rowsToList(res.Report.ReportContent),
			},
		},
	})
}

// DecodeFrame returns exactly one of progress or result.
func DecodeFrame(s *structpb.Struct) (*models.ProgressEvent, *models.InvocationResult, error) {
	m := s.AsMap()

	if p, ok := m[frameProgress].(map[string]any); ok {
		pct, _ := p["progress_percentage"].(float64)
		return &models.ProgressEvent{
			ProgressPercentage: int(pct),
			StatusMessage:      str(p, "status_message"),
			ProcessingState:    models.ProcessingState(str(p, "processing_state")),
		}, nil, nil
	}

	if r, ok := m[frameResult].(map[string]any); ok {
		res := &models.InvocationResult{Status: str(r, "status"), Error: str(r, "error")}
		if rep, ok := r["report"].(map[string]any); ok {
			res.Report = models.Report{
				RawData:       listToRows(rep["raw_data"]),
				ProcessedData: listToRows(rep["processed_data"]),
				ReportContent: listToRows(rep["report_content"]),
			}
		}
		return nil, res, nil
	}

	return nil, nil, ErrBadFrame
}

func rowsToList(rows []models.Row) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = map[string]any(r)
	}
	return out
}

func listToRows(v any) []models.Row {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	rows := make([]models.Row, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			rows = append(rows, m)
		}
	}
	return rows
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
