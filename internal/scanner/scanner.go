// Package scanner invokes the external vulnerability scanner for one
// target at a time and parses its line-delimited JSON output into
// finding records.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/hardenlabs/scanweave/internal/log"
	"github.com/hardenlabs/scanweave/internal/model"
)

// Runner shells out to the scanner binary. The zero value is not usable,
// construct with New.
type Runner struct {
	binary    string
	templates string
	timeout   time.Duration
}

func New(cfg model.ScannerConfig) Runner {
	return Runner{
		binary:    cfg.Binary,
		templates: cfg.Templates,
		timeout:   cfg.TimeoutDuration(),
	}
}

// WithTimeout returns a copy with a different per-scan timeout.
func (r Runner) WithTimeout(d time.Duration) Runner {
	r.timeout = d
	return r
}

// CheckSetup verifies the scanner binary and the template set exist.
// Called once at startup; a failure here aborts the run before any job
// is scheduled.
func (r Runner) CheckSetup(ctx context.Context) error {
	path, err := exec.LookPath(r.binary)
	if err != nil {
		return &model.SetupError{
			Reason: fmt.Sprintf("scanner binary %q not found", r.binary),
			Err:    errors.Join(model.ErrBinaryNotFound, err),
		}
	}

	verCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := exec.CommandContext(verCtx, path, "-version").Run(); err != nil {
		return &model.SetupError{
			Reason: fmt.Sprintf("scanner binary %q is not runnable", r.binary),
			Err:    errors.Join(model.ErrBinaryNotFound, err),
		}
	}

	if r.templates != "" {
		info, err := os.Stat(r.templates)
		if err != nil || !info.IsDir() {
			return &model.SetupError{
				Reason: fmt.Sprintf("template directory %q not found", r.templates),
				Err:    model.ErrTemplatesMissing,
			}
		}
	}

	slog.DebugContext(ctx, "scanner setup verified", "binary", path, "templates", r.templates)
	return nil
}

// Scan runs the scanner against one target, writing raw findings to
// outPath. The subprocess is killed when the wall-clock timeout or the
// caller's context expires. Returned findings keep the scanner emission
// order.
func (r Runner) Scan(ctx context.Context, target model.Target, outPath string) ([]model.FindingRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ctx = log.ContextAttrs(ctx,
		slog.String("scanner", r.binary),
		slog.String("target", target.String()),
	)

	args := []string{"-u", target.String(), "-silent", "-jsonl", "-o", outPath}
	if r.templates != "" {
		args = append(args, "-t", r.templates)
	}

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.WaitDelay = 5 * time.Second

	started := time.Now()
	slog.DebugContext(ctx, "scan started")
	err := cmd.Run()
	slog.DebugContext(ctx, "scan finished", "elapsed", time.Since(started).String(), "error", err)

	if err != nil {
		return nil, r.classify(ctx, target, err)
	}

	findings, malformed, err := ParseFile(outPath, target)
	if err != nil {
		return nil, &model.ScanError{
			Kind:      model.ScanParseFailure,
			Target:    target,
			Malformed: malformed,
			Err:       err,
		}
	}
	if malformed > 0 {
		slog.WarnContext(ctx, "skipped malformed scanner output lines", "count", malformed)
	}
	return findings, nil
}

func (r Runner) classify(ctx context.Context, target model.Target, err error) error {
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &model.ScanError{Kind: model.ScanTimeout, Target: target, Err: err}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &model.ScanError{
			Kind:     model.ScanNonZeroExit,
			Target:   target,
			ExitCode: exitErr.ExitCode(),
			Err:      err,
		}
	}

	if errors.Is(err, exec.ErrNotFound) {
		return &model.ScanError{Kind: model.ScanBinaryNotFound, Target: target, Err: err}
	}

	return &model.ScanError{Kind: model.ScanNonZeroExit, Target: target, ExitCode: -1, Err: err}
}
