package report

import (
	"context"
	"log/slog"
	"os/exec"
	"time"

	"github.com/hardenlabs/scanweave/internal/model"
)

// render converts the Markdown source into the distributable document.
// The source file is never touched, a failed renderer leaves every
// artifact in place.
func (a Assembler) render(mdPath, docPath string) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.renderTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, a.renderer, mdPath, "-o", docPath)
	cmd.WaitDelay = 5 * time.Second

	started := time.Now()
	err := cmd.Run()
	slog.Debug("renderer finished",
		"renderer", a.renderer,
		"elapsed", time.Since(started).String(),
		"error", err,
	)
	if err != nil {
		return &model.RenderError{MarkdownPath: mdPath, Err: err}
	}
	return nil
}
