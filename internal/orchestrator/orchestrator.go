// Package orchestrator wires the scan scheduler, the report synthesizer
// and the report assembler into one run. It owns the run report and the
// process exit status; per-target failures are folded into the report,
// only setup and assembly failures abort a run.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hardenlabs/scanweave/internal/log"
	"github.com/hardenlabs/scanweave/internal/model"
	"github.com/hardenlabs/scanweave/internal/report"
	"github.com/hardenlabs/scanweave/internal/scanner"
	"github.com/hardenlabs/scanweave/internal/schedule"
	"github.com/hardenlabs/scanweave/internal/synthesis"
)

// Process exit codes. Partial means at least one target failed but the
// report was still produced.
const (
	ExitOK      = 0
	ExitFatal   = 1
	ExitPartial = 3
)

type Orchestrator struct {
	cfg     model.Config
	scanner scanner.Runner
	synth   *synthesis.Synthesizer
	asm     report.Assembler

	scanRetries  uint64
	scanInterval time.Duration
}

func New(cfg model.Config) (*Orchestrator, error) {
	client, err := synthesis.NewClient(cfg.Synthesis.Endpoint, cfg.Synthesis.Model, cfg.Synthesis.APIKey)
	if err != nil {
		return nil, &model.SetupError{Reason: "summarization client", Err: err}
	}

	return &Orchestrator{
		cfg:          cfg,
		scanner:      scanner.New(cfg.Scanner),
		synth:        synthesis.New(client, cfg.Synthesis),
		asm:          report.NewAssembler(cfg.Report),
		scanRetries:  2,
		scanInterval: 1 * time.Second,
	}, nil
}

// WithScanRetry overrides the scan retry policy. Used by tests to
// shrink the backoff intervals.
func (o *Orchestrator) WithScanRetry(maxRetries uint64, initial time.Duration) *Orchestrator {
	o.scanRetries = maxRetries
	o.scanInterval = initial
	return o
}

// WithSynthesisRetry overrides the summarization retry policy. Used by
// tests to shrink the backoff intervals.
func (o *Orchestrator) WithSynthesisRetry(maxRetries uint64, initial time.Duration) *Orchestrator {
	o.synth = o.synth.WithRetry(maxRetries, initial)
	return o
}

// RunResult is the outcome of one invocation. RenderErr carries a
// renderer failure, which leaves the Markdown artifact intact and is
// deliberately not fatal.
type RunResult struct {
	Report    model.RunReport
	Artifacts report.Artifacts
	RenderErr error
}

// ExitCode maps the run outcome to the process exit status.
func (r RunResult) ExitCode() int {
	if r.Report.Complete() && r.RenderErr == nil {
		return ExitOK
	}
	return ExitPartial
}

// Run scans all targets and produces the final report. The returned
// error is fatal: setup failed before any job was scheduled, or the
// report could not be assembled. Cancelling ctx stops dispatch and the
// partial report is still assembled from the work completed so far.
func (o *Orchestrator) Run(ctx context.Context, targets []model.Target) (RunResult, error) {
	var result RunResult
	rep := model.NewRunReport()

	ctx = log.ContextAttrs(ctx, slog.String("run", rep.ID.String()))
	slog.InfoContext(ctx, "run started", "targets", len(targets))

	if err := o.scanner.CheckSetup(ctx); err != nil {
		return result, err
	}

	scanDir := filepath.Join(o.cfg.Scanner.OutputDir, "scan_"+rep.Started.Format("20060102_150405"))
	if err := os.MkdirAll(scanDir, 0755); err != nil {
		return result, &model.SetupError{Reason: "creating scan output directory", Err: err}
	}

	sched := schedule.New(o.scanner, o.cfg.Scanner.Concurrency, scanDir).
		WithRetry(o.scanRetries, o.scanInterval)
	scans := sched.Run(ctx, targets)

	// summarize only succeeded scans, keeping the target index so the
	// outcomes can be folded back in input order
	var (
		inputs  []synthesis.Input
		indexes []int
	)
	for i, scan := range scans {
		if scan.Job.State == model.JobSucceeded {
			inputs = append(inputs, synthesis.Input{Target: scan.Job.Target, Findings: scan.Findings})
			indexes = append(indexes, i)
		}
	}
	outcomes := o.synth.SummarizeAll(ctx, inputs)

	summaries := make(map[int]synthesis.Outcome, len(outcomes))
	for k, outcome := range outcomes {
		summaries[indexes[k]] = outcome
	}

	rep.Entries = make([]model.Entry, len(targets))
	for i, scan := range scans {
		entry := model.Entry{Target: scan.Job.Target, Findings: scan.Findings}

		switch {
		case scan.Job.State != model.JobSucceeded:
			entry.Failure = &model.Failure{
				Stage: model.StageScan,
				Kind:  model.ErrorKind(scan.Job.Err),
				Err:   scan.Job.Err,
			}
		case summaries[i].Err != nil:
			entry.Failure = &model.Failure{
				Stage: model.StageSynthesis,
				Kind:  model.ErrorKind(summaries[i].Err),
				Err:   summaries[i].Err,
			}
		default:
			summary := summaries[i].Summary
			entry.Summary = &summary
		}
		rep.Entries[i] = entry
	}
	rep.Finished = time.Now().UTC()

	artifacts, err := o.asm.Assemble(rep)
	result.Report = rep
	result.Artifacts = artifacts
	if err != nil {
		var renderErr *model.RenderError
		if errors.As(err, &renderErr) {
			slog.ErrorContext(ctx, "rendering failed, markdown artifact retained",
				"markdown", renderErr.MarkdownPath, "error", err)
			result.RenderErr = err
		} else {
			return result, err
		}
	}

	slog.InfoContext(ctx, "run finished",
		"succeeded", rep.Succeeded(),
		"failed", len(rep.Failed()),
		"markdown", artifacts.MarkdownPath,
		"document", artifacts.DocumentPath,
	)
	return result, nil
}
