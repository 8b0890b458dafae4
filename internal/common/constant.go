// Package common contains constants and sentinel errors shared by the agent
// and the worker.
package common

// AccessTokenHeaderName is the gRPC metadata key carrying the worker token.
const AccessTokenHeaderName = "access_token"

// RawDataBucket is the default blob storage bucket for raw instrument files.
const RawDataBucket = "raw-data"

// MaxWorkerMessageSize is the default gRPC message limit on both sides of the
// worker connection. Sequence results routinely exceed gRPC's 4 MB default.
const MaxWorkerMessageSize = 256 << 20
