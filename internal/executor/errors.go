package executor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/harrison/packrat/internal/archive"
	"github.com/harrison/packrat/internal/conflict"
	"github.com/harrison/packrat/internal/format"
	"github.com/harrison/packrat/internal/pipeline"
	"github.com/harrison/packrat/internal/walker"
)

// Error taxonomy. A *JobError matches exactly one of these through errors.Is.
var (
	// ErrUnrecognizedFormat means a suffix chain could not be resolved.
	ErrUnrecognizedFormat = errors.New("unrecognized format")
	// ErrAmbiguousOutput means the destination intent could not be inferred.
	ErrAmbiguousOutput = errors.New("ambiguous output")
	// ErrConflictAborted means Abort was chosen for an existing destination.
	ErrConflictAborted = errors.New("conflict aborted")
	// ErrIO is a filesystem read or write failure.
	ErrIO = errors.New("i/o error")
	// ErrCodec means a pipeline stage rejected malformed or truncated data.
	ErrCodec = errors.New("codec error")
	// ErrCanceled marks jobs stopped or never started because of cancellation.
	ErrCanceled = errors.New("canceled")
)

// ErrorKind classifies a job failure.
type ErrorKind int

const (
	KindIO ErrorKind = iota
	KindUnrecognizedFormat
	KindAmbiguousOutput
	KindConflictAborted
	KindCodec
	KindCanceled
)

var kindSentinels = map[ErrorKind]error{
	KindIO:                 ErrIO,
	KindUnrecognizedFormat: ErrUnrecognizedFormat,
	KindAmbiguousOutput:    ErrAmbiguousOutput,
	KindConflictAborted:    ErrConflictAborted,
	KindCodec:              ErrCodec,
	KindCanceled:           ErrCanceled,
}

// String returns the string representation of ErrorKind.
func (k ErrorKind) String() string {
	return kindSentinels[k].Error()
}

// Classify maps an error from any stage of a job onto the taxonomy.
// Cancellation wins over everything, then errors raised by packrat's own
// packages, then filesystem errors. Anything else is an I/O failure.
func Classify(err error) ErrorKind {
	var stage *pipeline.StageError
	var pathErr *fs.PathError
	var linkErr *os.LinkError

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, conflict.ErrConflictAborted), errors.Is(err, ErrConflictAborted):
		return KindConflictAborted
	case errors.Is(err, format.ErrUnrecognizedFormat), errors.Is(err, ErrUnrecognizedFormat),
		errors.Is(err, format.ErrInvalidChain),
		errors.Is(err, format.ErrDecodeOnly),
		errors.Is(err, pipeline.ErrEmptyChain):
		return KindUnrecognizedFormat
	case errors.Is(err, pipeline.ErrNeedsContainer),
		errors.Is(err, walker.ErrDuplicateName),
		errors.Is(err, ErrAmbiguousOutput):
		return KindAmbiguousOutput
	case errors.Is(err, archive.ErrUnsafePath):
		return KindCodec
	case errors.As(err, &pathErr), errors.As(err, &linkErr):
		return KindIO
	case errors.As(err, &stage):
		return KindCodec
	default:
		return KindIO
	}
}

// JobError represents a failure of one job.
// It includes the job, the offending path and the failure class.
type JobError struct {
	JobID   int       // Position of the job in the operation
	JobName string    // Short label of the job
	Path    string    // Offending path, when known
	Kind    ErrorKind // Failure class
	Err     error     // Underlying error
}

// NewJobError classifies err and wraps it with job context.
func NewJobError(id int, name, path string, err error) *JobError {
	return &JobError{
		JobID:   id,
		JobName: name,
		Path:    path,
		Kind:    Classify(err),
		Err:     err,
	}
}

// Error implements the error interface for JobError.
func (e *JobError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("job %d (%s): %s", e.JobID, e.JobName, e.Kind))
	if e.Path != "" {
		sb.WriteString(fmt.Sprintf(" at %s", e.Path))
	}
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Err))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error wrapping support.
func (e *JobError) Unwrap() error {
	return e.Err
}

// Is matches the taxonomy sentinel of the error's kind.
func (e *JobError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// OperationError aggregates the job errors of one operation.
type OperationError struct {
	JobErrors  []*JobError // Individual job errors in job order
	TotalJobs  int         // Number of jobs attempted
	FailedJobs int         // Number of jobs that failed
}

// NewOperationError creates an empty OperationError for totalJobs jobs.
func NewOperationError(totalJobs int) *OperationError {
	return &OperationError{TotalJobs: totalJobs}
}

// AddJob adds a job error and increments the failed job count.
func (e *OperationError) AddJob(jobErr *JobError) {
	e.JobErrors = append(e.JobErrors, jobErr)
	e.FailedJobs++
}

// Error implements the error interface for OperationError.
func (e *OperationError) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%d/%d jobs failed", e.FailedJobs, e.TotalJobs))

	if len(e.JobErrors) > 0 {
		sb.WriteString(":")
		for _, jobErr := range e.JobErrors {
			sb.WriteString(fmt.Sprintf("\n  - %s", jobErr.Error()))
		}
	}

	return sb.String()
}

// Unwrap returns the job errors so errors.Is and errors.As traverse them.
func (e *OperationError) Unwrap() []error {
	if len(e.JobErrors) == 0 {
		return nil
	}

	errs := make([]error, len(e.JobErrors))
	for i, jobErr := range e.JobErrors {
		errs[i] = jobErr
	}
	return errs
}

// IsJobError checks if the error is or wraps a JobError.
func IsJobError(err error) bool {
	if err == nil {
		return false
	}
	var je *JobError
	return errors.As(err, &je)
}
