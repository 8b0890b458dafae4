// Package models defines the agent's domain types: processing records,
// raw data entries, upload tasks and the local change log entries handed to
// the sync uploader.
package models
