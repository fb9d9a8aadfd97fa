package model

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// JobStatus represents the lifecycle state of a transcode job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobComplete   JobStatus = "complete"
	JobFailed     JobStatus = "failed"
)

// Valid status transitions:
// pending -> processing -> complete
//                      \-> failed
// failed -> pending (retry, driven by a new client request)
var validTransitions = map[JobStatus][]JobStatus{
	JobPending:    {JobProcessing},
	JobProcessing: {JobComplete, JobFailed},
	JobComplete:   {},
	JobFailed:     {JobPending},
}

func (s JobStatus) IsValid() bool {
	switch s {
	case JobPending, JobProcessing, JobComplete, JobFailed:
		return true
	default:
		return false
	}
}

func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}
	for _, status := range allowed {
		if status == next {
			return true
		}
	}
	return false
}

func (s JobStatus) String() string {
	return string(s)
}

var (
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrEmptyInputPath    = errors.New("input path cannot be empty")
)

// TranscodeJob tracks a single source file through transcoding.
type TranscodeJob struct {
	ID           string
	InputPath    string
	OutputPath   string
	Status       JobStatus
	Progress     int
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// JobID derives the deterministic job identifier for a source path.
// First 32 hex characters of SHA-256(input path), mirroring the cache
// entry's own hash-derived naming so both identifiers come from one scheme.
func JobID(inputPath string) string {
	sum := sha256.Sum256([]byte(inputPath))
	return hex.EncodeToString(sum[:])[:32]
}

// NewTranscodeJob creates a pending job for the given source/destination pair.
func NewTranscodeJob(inputPath, outputPath string) (*TranscodeJob, error) {
	if inputPath == "" {
		return nil, ErrEmptyInputPath
	}
	return &TranscodeJob{
		ID:         JobID(inputPath),
		InputPath:  inputPath,
		OutputPath: outputPath,
		Status:     JobPending,
		CreatedAt:  time.Now(),
	}, nil
}

// TransitionTo attempts to change the job status, stamping the matching
// timestamp field. Returns an error if the transition is not allowed.
func (j *TranscodeJob) TransitionTo(next JobStatus) error {
	if !next.IsValid() || !j.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	now := time.Now()
	switch next {
	case JobProcessing:
		j.StartedAt = &now
		j.Progress = 0
	case JobComplete:
		j.CompletedAt = &now
		j.Progress = 100
	case JobFailed:
		j.CompletedAt = &now
	case JobPending:
		j.StartedAt = nil
		j.CompletedAt = nil
		j.Progress = 0
		j.ErrorMessage = ""
	}
	j.Status = next
	return nil
}

// IsTerminal reports whether the job has finished (successfully or not).
func (j *TranscodeJob) IsTerminal() bool {
	return j.Status == JobComplete || j.Status == JobFailed
}

// NeedsEnqueue reports whether the job still requires a worker pass,
// matching create_or_get's decision in the job registry.
func (j *TranscodeJob) NeedsEnqueue() bool {
	return j.Status == JobPending
}
