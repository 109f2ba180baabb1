// Package schedule runs scans for many targets concurrently with bounded
// parallelism, tracking one job per target. Transient scan failures are
// retried with exponential backoff; a target exhausting its retries fails
// alone and never aborts the rest of the run.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/hardenlabs/scanweave/internal/log"
	"github.com/hardenlabs/scanweave/internal/model"
)

// Runner is the per-target scan executed by the worker pool.
type Runner interface {
	Scan(ctx context.Context, target model.Target, outPath string) ([]model.FindingRecord, error)
}

// Result is the terminal job for one target plus its findings. Findings
// are only present for a succeeded job.
type Result struct {
	Job      model.ScanJob
	Findings []model.FindingRecord
}

type Scheduler struct {
	runner     Runner
	limit      int
	outputDir  string
	maxRetries uint64
	initial    time.Duration
}

// New builds a scheduler with the given worker pool size. Raw scanner
// output lands in per-target files under outputDir.
func New(runner Runner, limit int, outputDir string) *Scheduler {
	if limit < 1 {
		limit = 1
	}
	return &Scheduler{
		runner:     runner,
		limit:      limit,
		outputDir:  outputDir,
		maxRetries: 2,
		initial:    1 * time.Second,
	}
}

// WithRetry overrides the retry policy. Used by tests to shrink the
// backoff intervals.
func (s *Scheduler) WithRetry(maxRetries uint64, initial time.Duration) *Scheduler {
	s.maxRetries = maxRetries
	s.initial = initial
	return s
}

// Run scans all targets and returns one result per target, indexed by
// input position regardless of completion order. Cancelling ctx stops
// dispatching and kills in-flight scans; every target still gets a
// terminal job state.
func (s *Scheduler) Run(ctx context.Context, targets []model.Target) []Result {
	results := make([]Result, len(targets))

	var g errgroup.Group
	g.SetLimit(s.limit)
	for i, target := range targets {
		g.Go(func() error {
			results[i] = s.runOne(ctx, i, target)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Scheduler) runOne(ctx context.Context, index int, target model.Target) Result {
	job := model.NewScanJob(target)
	job.OutputPath = filepath.Join(s.outputDir, fileName(index, target))
	job.Started = time.Now().UTC()

	ctx = log.ContextAttrs(ctx,
		slog.String("job", job.ID.String()),
		slog.String("target", target.String()),
	)

	operation := func() ([]model.FindingRecord, error) {
		if err := ctx.Err(); err != nil {
			return nil, backoff.Permanent(err)
		}
		job.State = model.JobRunning
		job.Attempts++

		findings, err := s.runner.Scan(ctx, target, job.OutputPath)
		if err == nil {
			return findings, nil
		}

		var scanErr *model.ScanError
		if errors.As(err, &scanErr) && scanErr.Retryable() {
			job.State = model.JobFailedRetryable
			slog.WarnContext(ctx, "scan attempt failed",
				"attempt", job.Attempts,
				"kind", model.ErrorKind(err),
				"error", err,
			)
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	findings, err := backoff.RetryWithData(operation, s.newBackOff(ctx))
	job.Stopped = time.Now().UTC()
	if err != nil {
		job.State = model.JobFailedFatal
		job.Err = err
		slog.ErrorContext(ctx, "scan failed",
			"attempts", job.Attempts,
			"kind", model.ErrorKind(err),
			"error", err,
		)
		return Result{Job: job}
	}

	job.State = model.JobSucceeded
	slog.InfoContext(ctx, "scan succeeded", "attempts", job.Attempts, "findings", len(findings))
	return Result{Job: job, Findings: findings}
}

func (s *Scheduler) newBackOff(ctx context.Context) backoff.BackOffContext {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.initial
	bo.Multiplier = 2
	bo.RandomizationFactor = 0 // deterministic retry spacing
	bo.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(bo, s.maxRetries), ctx)
}

// fileName derives a per-target output file name safe for any filesystem.
// The input index keeps names unique: sanitizing can map distinct targets
// to the same stem, and two workers must never share an output file.
func fileName(index int, target model.Target) string {
	s := strings.TrimPrefix(target.String(), "http://")
	s = strings.TrimPrefix(s, "https://")
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
	return fmt.Sprintf("%03d_%s.jsonl", index+1, s)
}
