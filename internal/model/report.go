package model

import (
	"time"

	"github.com/google/uuid"
)

// Stage names the pipeline step a target failed in.
type Stage string

const (
	StageScan      Stage = "scan"
	StageSynthesis Stage = "synthesis"
)

// SummaryResult is the generated Markdown summary for one target.
type SummaryResult struct {
	Target   Target
	Markdown string
	Attempts int // summarization calls made; 0 for the canned no-findings text
}

// Failure records why a target produced no summary.
type Failure struct {
	Stage Stage
	Kind  string
	Err   error
}

// Entry is the per-target outcome in a run report. Exactly one of
// Summary and Failure is set.
type Entry struct {
	Target   Target
	Findings []FindingRecord
	Summary  *SummaryResult
	Failure  *Failure
}

// RunReport is the aggregate outcome of one invocation. Entries are in
// original target input order and there is one entry per input target.
type RunReport struct {
	ID       uuid.UUID
	Started  time.Time
	Finished time.Time
	Entries  []Entry
}

func NewRunReport() RunReport {
	return RunReport{
		ID:      uuid.New(),
		Started: time.Now().UTC(),
	}
}

// Failed returns the entries without a summary, in report order.
func (r RunReport) Failed() []Entry {
	var failed []Entry
	for _, e := range r.Entries {
		if e.Failure != nil {
			failed = append(failed, e)
		}
	}
	return failed
}

// Succeeded counts entries with a summary.
func (r RunReport) Succeeded() int {
	n := 0
	for _, e := range r.Entries {
		if e.Summary != nil {
			n++
		}
	}
	return n
}

// Complete reports whether every target produced a summary.
func (r RunReport) Complete() bool {
	return len(r.Failed()) == 0
}
