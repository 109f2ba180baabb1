package model

import (
	"time"

	"github.com/google/uuid"
)

// JobState is the lifecycle of a scheduled scan.
//
//	Pending -> Running -> Succeeded | FailedRetryable | FailedFatal
//
// FailedRetryable is transient: the scheduler moves the job back to
// Running on the next attempt. Every job ends in exactly one terminal
// state, Succeeded or FailedFatal.
type JobState string

const (
	JobPending         JobState = "pending"
	JobRunning         JobState = "running"
	JobSucceeded       JobState = "succeeded"
	JobFailedRetryable JobState = "failed_retryable"
	JobFailedFatal     JobState = "failed_fatal"
)

// ScanJob tracks one target through the scheduler. Owned exclusively by
// the scheduler goroutine running it; handed out by value.
type ScanJob struct {
	ID         uuid.UUID
	Target     Target
	State      JobState
	Attempts   int
	OutputPath string
	Started    time.Time
	Stopped    time.Time
	Err        error
}

func NewScanJob(target Target) ScanJob {
	return ScanJob{
		ID:     uuid.New(),
		Target: target,
		State:  JobPending,
	}
}
