// Package upload drives a single artifact through validation, payload
// construction and a retried transport call, and tallies batch outcomes.
package upload

import (
	"fmt"

	"github.com/kloudfuse/go-uploadutils/multipart"
)

// Job is one artifact to upload.
type Job interface {
	// Name identifies the job in reports and is the object name for storage sinks.
	Name() string
	// MultipartPayload builds the payload sent for this job.
	MultipartPayload() (*multipart.Payload, error)
}

// Status is the outcome of a job. Every job produces exactly one.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// State is a step of the job lifecycle.
type State int

const (
	StatePending State = iota
	StateValidating
	StateSkipped
	StateBuildingPayload
	StateUploading
	StateSuccess
	StateFailure
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateValidating:
		return "validating"
	case StateSkipped:
		return "skipped"
	case StateBuildingPayload:
		return "building payload"
	case StateUploading:
		return "uploading"
	case StateSuccess:
		return "success"
	case StateFailure:
		return "failure"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// InvalidPayloadError rejects a job before anything is sent.
type InvalidPayloadError struct {
	Reason string
}

// NewInvalidPayloadError ...
func NewInvalidPayloadError(format string, args ...interface{}) *InvalidPayloadError {
	return &InvalidPayloadError{Reason: fmt.Sprintf(format, args...)}
}

func (e *InvalidPayloadError) Error() string {
	return e.Reason
}

// Validator inspects a job before its payload is built. Returning an
// *InvalidPayloadError skips the job; any other error is reported as unexpected.
type Validator interface {
	Validate(job Job) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(job Job) error

// Validate ...
func (f ValidatorFunc) Validate(job Job) error {
	return f(job)
}
