package common

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrUnavailable  = errors.New("unavailable")

	// Processing errors.
	ErrInvalidInput      = errors.New("invalid input")
	ErrAlreadyProcessing = errors.New("processing already in flight")
	ErrProcessingFailed  = errors.New("processing failed")
	ErrEmptyReport       = errors.New("empty report")
)
