package events

// NetworkTopic carries netstatus.Change payloads.
const NetworkTopic = "network"

// ProgressTopic names the progress stream of one processing operation.
func ProgressTopic(sampleID, dataType string) string {
	return "progress:" + sampleID + ":" + dataType
}

// TableTopic carries change notifications for a local table.
func TableTopic(table string) string {
	return "table:" + table
}
