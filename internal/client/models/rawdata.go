package models

import "time"

// RawDataEntry links one operation's raw instrument output to a sample.
type RawDataEntry struct {
	ID        string
	DataType  DataType
	UserID    string
	OrgID     string
	SampleID  string
	CreatedAt time.Time
}
