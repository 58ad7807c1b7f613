package models

import "time"

// Job outcome constants
const (
	StatusSucceeded = "SUCCEEDED" // Every write completed
	StatusSkipped   = "SKIPPED"   // Nothing written, all writes declined by conflict policy
	StatusFailed    = "FAILED"    // Job stopped on an error
)

// JobResult represents the outcome of running a single job
type JobResult struct {
	Job      Job           // The job that ran
	Status   string        // SUCCEEDED, SKIPPED or FAILED
	Err      error         // Cause when Status is FAILED
	Path     string        // Offending path when known
	Written  []string      // Destinations completed before the job ended
	Skipped  []string      // Destinations declined by the conflict policy
	Bytes    int64         // Source bytes read (decode) or archive bytes written (encode)
	Duration time.Duration // Time taken
}

// Failed reports whether the job failed.
func (r JobResult) Failed() bool {
	return r.Status == StatusFailed
}

// Partial reports whether a failed job left completed writes behind.
func (r JobResult) Partial() bool {
	return r.Failed() && len(r.Written) > 0
}

// OperationSummary represents the aggregate result of one invocation
type OperationSummary struct {
	ID        string        // Operation identifier (uuid)
	Direction Direction     // Decode or Encode
	TotalJobs int           // Number of jobs planned
	Succeeded int           // Jobs that completed
	Failed    int           // Jobs that failed
	Skipped   int           // Jobs skipped by conflict policy
	Workers   int           // Parallelism the jobs ran with; 0 when unknown
	Bytes     int64         // Sum of JobResult.Bytes
	Duration  time.Duration // Wall time of the operation
	Failures  []JobResult   // Failed jobs in job order
	Results   []JobResult   // Every result in job order
}

// OK reports whether every job succeeded or was skipped.
func (s OperationSummary) OK() bool {
	return s.Failed == 0
}
