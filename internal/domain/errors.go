package domain

import "errors"

// ErrNotFound is returned by repo and service functions when the requested
// resource does not exist in the database.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned when input fails validation before it reaches the
// pipeline (e.g. month out of range, malformed request body).
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrSourceUnavailable is returned when a batch location cannot be reached or read.
var ErrSourceUnavailable = errors.New("source unavailable")

// ErrSchemaMismatch is returned when input rows lack a required field
// (pickup or dropoff timestamp).
var ErrSchemaMismatch = errors.New("schema mismatch")

// ErrUnknownCategory is returned by a strict vectorizer when it meets a
// category it was not fitted on. It is never retried: the remedy is a new
// vectorizer, not another attempt.
var ErrUnknownCategory = errors.New("unknown category")

// ErrModelInvocation is returned when the prediction call fails.
var ErrModelInvocation = errors.New("model invocation failed")

// ErrSinkWrite is returned when results cannot be durably written.
// A sink returning this error has left nothing visible at the destination.
var ErrSinkWrite = errors.New("sink write failed")
