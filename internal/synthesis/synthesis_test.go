package synthesis_test

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/hardenlabs/scanweave/internal/model"
	"github.com/hardenlabs/scanweave/internal/synthesis"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	calls atomic.Int32
	fn    func(call int32, prompt string) (string, error)
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	return f.fn(f.calls.Add(1), prompt)
}

func cfg() model.SynthesisConfig {
	return model.SynthesisConfig{Concurrency: 1, MaxPromptBytes: 65536}
}

func findings(target model.Target) []model.FindingRecord {
	return []model.FindingRecord{
		{TemplateID: "ssl-expired", Severity: model.SeverityCritical, Target: target, Detail: "expired"},
	}
}

func TestSummarizeEmptyFindingsIsCanned(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fn: func(int32, string) (string, error) {
		t.Error("generator must not be called for an empty finding set")
		return "", nil
	}}

	s := synthesis.New(gen, cfg())
	summary, err := s.Summarize(t.Context(), "https://clean.test", nil)
	require.NoError(t, err)
	require.Zero(t, summary.Attempts)
	require.Contains(t, summary.Markdown, "No findings")
	require.EqualValues(t, 0, gen.calls.Load())
}

func TestSummarizeRetriesTransient(t *testing.T) {
	t.Parallel()
	synctest.Test(t, func(t *testing.T) {
		gen := &fakeGenerator{fn: func(call int32, _ string) (string, error) {
			if call <= 2 {
				return "", &model.SynthesisError{Kind: model.SynthesisTransientUpstream, StatusCode: 503}
			}
			return "## Report\nall good", nil
		}}

		start := time.Now()
		s := synthesis.New(gen, cfg()).WithRetry(3, 1*time.Second)
		summary, err := s.Summarize(t.Context(), "https://a.test", findings("https://a.test"))
		require.NoError(t, err)
		require.Equal(t, 3, summary.Attempts)
		require.Equal(t, "## Report\nall good", summary.Markdown)
		// backoff 1s after the first failure, 2s after the second
		require.Equal(t, 3*time.Second, time.Since(start))
	})
}

func TestSummarizeAuthFailureIsImmediate(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fn: func(int32, string) (string, error) {
		return "", &model.SynthesisError{Kind: model.SynthesisAuthFailure, StatusCode: 401}
	}}

	s := synthesis.New(gen, cfg()).WithRetry(3, time.Millisecond)
	_, err := s.Summarize(t.Context(), "https://a.test", findings("https://a.test"))

	var synthErr *model.SynthesisError
	require.ErrorAs(t, err, &synthErr)
	require.Equal(t, model.SynthesisAuthFailure, synthErr.Kind)
	require.Equal(t, model.Target("https://a.test"), synthErr.Target)
	require.EqualValues(t, 1, gen.calls.Load())
}

func TestSummarizeRetryExhaustion(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fn: func(int32, string) (string, error) {
		return "", &model.SynthesisError{Kind: model.SynthesisTransientUpstream, StatusCode: 500}
	}}

	s := synthesis.New(gen, cfg()).WithRetry(3, time.Millisecond)
	_, err := s.Summarize(t.Context(), "https://a.test", findings("https://a.test"))
	require.Error(t, err)
	require.EqualValues(t, 4, gen.calls.Load(), "initial attempt plus three retries")
}

func TestSummarizeAllKeepsInputOrder(t *testing.T) {
	t.Parallel()
	synctest.Test(t, func(t *testing.T) {
		delays := map[string]time.Duration{
			"https://a.test": 3 * time.Second,
			"https://b.test": 1 * time.Second,
		}
		gen := &fakeGenerator{}
		gen.fn = func(_ int32, prompt string) (string, error) {
			for target, d := range delays {
				if strings.Contains(prompt, target) {
					time.Sleep(d)
					return "summary for " + target, nil
				}
			}
			return "summary", nil
		}

		s := synthesis.New(gen, model.SynthesisConfig{Concurrency: 2, MaxPromptBytes: 65536})
		outcomes := s.SummarizeAll(t.Context(), []synthesis.Input{
			{Target: "https://a.test", Findings: findings("https://a.test")},
			{Target: "https://b.test", Findings: findings("https://b.test")},
			{Target: "https://clean.test"},
		})

		require.Len(t, outcomes, 3)
		require.NoError(t, outcomes[0].Err)
		require.Equal(t, "summary for https://a.test", outcomes[0].Summary.Markdown)
		require.Equal(t, "summary for https://b.test", outcomes[1].Summary.Markdown)
		require.Zero(t, outcomes[2].Summary.Attempts)
	})
}
