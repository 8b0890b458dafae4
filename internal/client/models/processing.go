package models

import "time"

// ProcessingState is the lifecycle stage of one processing operation.
type ProcessingState string

const (
	StateInitiated  ProcessingState = "initiated"
	StateProcessing ProcessingState = "processing"
	StateSaving     ProcessingState = "saving"
	StateComplete   ProcessingState = "complete"
	// StateFailed is only written when the failure policy asks for it.
	StateFailed ProcessingState = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s ProcessingState) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// Busy reports whether a trigger for the same sample should stay disabled.
func (s ProcessingState) Busy() bool {
	return s == StateInitiated || s == StateProcessing || s == StateSaving
}

// ProcessingRecord is a row of processed_data.
type ProcessingRecord struct {
	ID                 string
	SampleID           string
	DataType           DataType
	ProcessingState    ProcessingState
	StatusMessage      string
	ProgressPercentage int
	ErrorMessage       string
	RawDataID          string
	UserID             string
	OrgID              string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ProgressEvent is one notification on a progress topic.
type ProgressEvent struct {
	ProgressPercentage int             `json:"progress_percentage"`
	StatusMessage      string          `json:"status_message"`
	ProcessingState    ProcessingState `json:"processing_state"`
}

// ClampPercentage bounds p to 0..100.
func ClampPercentage(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
