package models

// InvocationRequest asks the worker to process the files of one sample.
// Paths are local to the machine running both agent and worker.
type InvocationRequest struct {
	DataType        DataType
	SampleID        string
	OrgID           string
	UserID          string
	RawDataID       string
	ProcessedDataID string
	Files           []string
}
