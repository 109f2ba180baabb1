// Package synthesis turns per-target findings into Markdown summaries by
// calling a remote text generation service. Calls run concurrently
// across targets up to their own rate limit, which is independent of the
// scan pool since the remote API has its own quota.
package synthesis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/hardenlabs/scanweave/internal/log"
	"github.com/hardenlabs/scanweave/internal/model"
)

// Generator is the remote summarization collaborator.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Input is one target's findings awaiting summarization.
type Input struct {
	Target   model.Target
	Findings []model.FindingRecord
}

// Outcome is the per-input result, index-aligned with the inputs.
type Outcome struct {
	Summary model.SummaryResult
	Err     error
}

type Synthesizer struct {
	gen            Generator
	limit          int
	maxPromptBytes int
	maxRetries     uint64
	initial        time.Duration
}

func New(gen Generator, cfg model.SynthesisConfig) *Synthesizer {
	limit := cfg.Concurrency
	if limit < 1 {
		limit = 1
	}
	maxPromptBytes := cfg.MaxPromptBytes
	if maxPromptBytes < 1024 {
		maxPromptBytes = 1024
	}
	return &Synthesizer{
		gen:            gen,
		limit:          limit,
		maxPromptBytes: maxPromptBytes,
		maxRetries:     3,
		initial:        2 * time.Second,
	}
}

// WithRetry overrides the retry policy. Used by tests to shrink the
// backoff intervals.
func (s *Synthesizer) WithRetry(maxRetries uint64, initial time.Duration) *Synthesizer {
	s.maxRetries = maxRetries
	s.initial = initial
	return s
}

// Summarize produces the Markdown summary for one target. An empty
// finding set yields the canned no-findings text without any remote
// call. Transient upstream errors are retried with exponential backoff;
// auth and invalid-request errors fail immediately.
func (s *Synthesizer) Summarize(ctx context.Context, target model.Target, findings []model.FindingRecord) (model.SummaryResult, error) {
	if len(findings) == 0 {
		return NoFindings(target), nil
	}

	ctx = log.ContextAttrs(ctx, slog.String("target", target.String()))

	prompt, omitted := BuildPrompt(target, findings, s.maxPromptBytes)
	if omitted > 0 {
		slog.WarnContext(ctx, "prompt truncated", "omitted", omitted, "findings", len(findings))
	}

	attempts := 0
	operation := func() (string, error) {
		attempts++
		text, err := s.gen.Generate(ctx, prompt)
		if err == nil {
			return text, nil
		}

		var synthErr *model.SynthesisError
		if errors.As(err, &synthErr) {
			synthErr.Target = target
			if synthErr.Retryable() {
				slog.WarnContext(ctx, "synthesis attempt failed",
					"attempt", attempts,
					"kind", model.ErrorKind(err),
					"error", err,
				)
				return "", err
			}
		}
		return "", backoff.Permanent(err)
	}

	text, err := backoff.RetryWithData(operation, s.newBackOff(ctx))
	if err != nil {
		return model.SummaryResult{}, err
	}

	slog.InfoContext(ctx, "summary generated", "attempts", attempts, "findings", len(findings))
	return model.SummaryResult{
		Target:   target,
		Markdown: text,
		Attempts: attempts,
	}, nil
}

// SummarizeAll summarizes all inputs on a bounded pool and returns one
// outcome per input, indexed by input position regardless of completion
// order.
func (s *Synthesizer) SummarizeAll(ctx context.Context, inputs []Input) []Outcome {
	outcomes := make([]Outcome, len(inputs))

	var g errgroup.Group
	g.SetLimit(s.limit)
	for i, in := range inputs {
		g.Go(func() error {
			summary, err := s.Summarize(ctx, in.Target, in.Findings)
			outcomes[i] = Outcome{Summary: summary, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (s *Synthesizer) newBackOff(ctx context.Context) backoff.BackOffContext {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.initial
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(bo, s.maxRetries), ctx)
}
