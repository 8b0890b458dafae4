package models

// Row is a generic result row keyed by column name.
type Row = map[string]any

// StatusSuccess marks a successful worker result.
const StatusSuccess = "Success"

// Report is the payload of a worker result.
type Report struct {
	RawData       []Row
	ProcessedData []Row
	// ReportContent carries secondary processed rows (classifier output).
	ReportContent []Row
}

// Empty reports whether the worker returned no rows at all.
func (r Report) Empty() bool {
	return len(r.RawData) == 0 && len(r.ProcessedData) == 0 && len(r.ReportContent) == 0
}

// InvocationResult is the terminal answer of a processing invocation.
type InvocationResult struct {
	Status string
	// Error is the worker's message when Status is not StatusSuccess.
	Error  string
	Report Report
}

// Succeeded reports a Success status.
func (r *InvocationResult) Succeeded() bool {
	return r != nil && r.Status == StatusSuccess
}
