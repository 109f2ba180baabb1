// Package report merges per-target summaries into one ordered Markdown
// document, exports a machine readable findings document, and invokes
// the external renderer. Section order follows the original target input
// order, never worker completion order.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hardenlabs/scanweave/internal/model"
)

// Artifacts are the files produced for one run. MarkdownPath is always
// set once Assemble returns without an AssemblyError; DocumentPath only
// when the renderer succeeded.
type Artifacts struct {
	MarkdownPath string
	BOMPath      string
	DocumentPath string
}

type Assembler struct {
	basePath      string
	renderer      string
	renderTimeout time.Duration
}

func NewAssembler(cfg model.ReportConfig) Assembler {
	return Assembler{
		basePath:      cfg.Path,
		renderer:      cfg.Renderer,
		renderTimeout: 2 * time.Minute,
	}
}

// Assemble writes the Markdown report and the CycloneDX findings
// document, then renders the final document. A renderer failure is
// returned as *model.RenderError with all prior artifacts retained, it
// never removes the Markdown source.
func (a Assembler) Assemble(rep model.RunReport) (Artifacts, error) {
	var artifacts Artifacts

	if dir := filepath.Dir(a.basePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return artifacts, &model.AssemblyError{Err: err}
		}
	}

	mdPath := a.basePath + ".md"
	f, err := os.Create(mdPath)
	if err != nil {
		return artifacts, &model.AssemblyError{Err: err}
	}
	err = WriteMarkdown(f, rep)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return artifacts, &model.AssemblyError{Err: err}
	}
	artifacts.MarkdownPath = mdPath

	bomPath := a.basePath + ".cdx.json"
	if err := writeBOM(bomPath, rep); err != nil {
		return artifacts, &model.AssemblyError{Err: err}
	}
	artifacts.BOMPath = bomPath

	if a.renderer == "" {
		return artifacts, nil
	}

	docPath := a.basePath + ".pdf"
	if err := a.render(mdPath, docPath); err != nil {
		return artifacts, err
	}
	artifacts.DocumentPath = docPath
	return artifacts, nil
}

// WriteMarkdown renders the run report. The header lists every failed
// target with the stage and error kind, so a missing section is always
// explained inside the document itself.
func WriteMarkdown(w io.Writer, rep model.RunReport) error {
	var err error
	printf := func(format string, a ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, a...)
		}
	}

	failed := rep.Failed()

	printf("# Vulnerability Scan Report\n\n")
	printf("- Run: `%s`\n", rep.ID)
	printf("- Started: %s\n", rep.Started.Format(time.RFC3339))
	printf("- Finished: %s\n", rep.Finished.Format(time.RFC3339))
	printf("- Targets: %d total, %d succeeded, %d failed\n\n",
		len(rep.Entries), rep.Succeeded(), len(failed))

	if len(failed) > 0 {
		printf("## Failed targets\n\n")
		for _, e := range failed {
			printf("- `%s` — stage %s, kind %s: %v\n",
				e.Target, e.Failure.Stage, e.Failure.Kind, e.Failure.Err)
		}
		printf("\n")
	}

	for _, e := range rep.Entries {
		printf("## %s\n\n", e.Target)
		if e.Failure != nil {
			printf("Scan did not complete: stage %s, kind %s.\n\n",
				e.Failure.Stage, e.Failure.Kind)
			continue
		}
		printf("%s\n\n", e.Summary.Markdown)
	}
	return err
}
