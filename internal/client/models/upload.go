package models

import "time"

// UploadTask is a file that still has to reach blob storage.
type UploadTask struct {
	ID                string
	Path              string
	DestinationBucket string
	// ObjectKey is the key inside DestinationBucket.
	ObjectKey string
	CreatedAt time.Time
}
