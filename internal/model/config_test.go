package model_test

import (
	"strings"
	"testing"
	"time"

	"github.com/hardenlabs/scanweave/internal/model"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		cfg, err := model.LoadConfig(strings.NewReader("version: 0\n"))
		require.NoError(t, err)
		require.Equal(t, "nuclei", cfg.Scanner.Binary)
		require.Equal(t, 5, cfg.Scanner.Concurrency)
		require.Equal(t, 10*time.Minute, cfg.Scanner.TimeoutDuration())
		require.Equal(t, 1, cfg.Synthesis.Concurrency)
		require.Equal(t, 65536, cfg.Synthesis.MaxPromptBytes)
		require.Equal(t, "pandoc", cfg.Report.Renderer)
		require.False(t, cfg.Verbose)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Parallel()
		const yml = `
version: 0
scanner:
    binary: /usr/local/bin/nuclei
    templates: /opt/nuclei-templates
    timeout: 2m
    concurrency: 10
synthesis:
    concurrency: 2
report:
    renderer: ""
`
		cfg, err := model.LoadConfig(strings.NewReader(yml))
		require.NoError(t, err)
		require.Equal(t, "/usr/local/bin/nuclei", cfg.Scanner.Binary)
		require.Equal(t, "/opt/nuclei-templates", cfg.Scanner.Templates)
		require.Equal(t, 2*time.Minute, cfg.Scanner.TimeoutDuration())
		require.Equal(t, 10, cfg.Scanner.Concurrency)
		require.Equal(t, 2, cfg.Synthesis.Concurrency)
		require.Empty(t, cfg.Report.Renderer)
	})

	t.Run("rejects zero concurrency", func(t *testing.T) {
		t.Parallel()
		_, err := model.LoadConfig(strings.NewReader("version: 0\nscanner:\n    concurrency: 0\n"))
		require.Error(t, err)
		require.NotEmpty(t, model.CueErrDetails(err))
	})

	t.Run("rejects unknown field", func(t *testing.T) {
		t.Parallel()
		_, err := model.LoadConfig(strings.NewReader("version: 0\nscannner: {}\n"))
		require.Error(t, err)
	})

	t.Run("rejects bad timeout", func(t *testing.T) {
		t.Parallel()
		_, err := model.LoadConfig(strings.NewReader("version: 0\nscanner:\n    timeout: soon\n"))
		require.ErrorContains(t, err, "scanner.timeout")
	})

	t.Run("rejects wrong version", func(t *testing.T) {
		t.Parallel()
		_, err := model.LoadConfig(strings.NewReader("version: 1\n"))
		require.Error(t, err)
	})
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := model.DefaultConfig()
	require.Equal(t, 0, cfg.Version)
	require.Equal(t, "gemini-1.5-pro-latest", cfg.Synthesis.Model)
	require.Equal(t, "scans", cfg.Scanner.OutputDir)
}
