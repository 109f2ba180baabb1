package scanner_test

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/hardenlabs/scanweave/internal/model"
	"github.com/hardenlabs/scanweave/internal/scanner"
	"github.com/stretchr/testify/require"
)

// stubScanner writes an executable shell script standing in for the
// scanner binary.
func stubScanner(t *testing.T, script string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("skipped, sh not available: %v", err)
	}
	path := filepath.Join(t.TempDir(), "nuclei")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

// outputTo extracts the -o argument and redirects heredoc input to it.
const outputTo = `
[ "$1" = "-version" ] && exit 0
out=""
while [ $# -gt 0 ]; do
	if [ "$1" = "-o" ]; then out="$2"; fi
	shift
done
`

func runner(t *testing.T, binary string) scanner.Runner {
	t.Helper()
	return scanner.New(model.ScannerConfig{
		Binary:  binary,
		Timeout: "30s",
	})
}

func TestScan(t *testing.T) {
	t.Parallel()

	t.Run("findings parsed", func(t *testing.T) {
		t.Parallel()
		bin := stubScanner(t, outputTo+`
cat > "$out" <<'EOF'
{"template-id":"ssl-expired","info":{"name":"Expired certificate","severity":"critical"}}
{"template-id":"http-title","info":{"name":"Title","severity":"info"}}
EOF
`)
		out := filepath.Join(t.TempDir(), "a.jsonl")
		findings, err := runner(t, bin).Scan(t.Context(), target, out)
		require.NoError(t, err)
		require.Len(t, findings, 2)
		require.Equal(t, model.SeverityCritical, findings[0].Severity)
		require.FileExists(t, out)
	})

	t.Run("no findings no output file", func(t *testing.T) {
		t.Parallel()
		bin := stubScanner(t, `exit 0`)
		out := filepath.Join(t.TempDir(), "b.jsonl")
		findings, err := runner(t, bin).Scan(t.Context(), target, out)
		require.NoError(t, err)
		require.Empty(t, findings)
	})

	t.Run("non zero exit", func(t *testing.T) {
		t.Parallel()
		bin := stubScanner(t, `exit 3`)
		_, err := runner(t, bin).Scan(t.Context(), target, filepath.Join(t.TempDir(), "c.jsonl"))
		var scanErr *model.ScanError
		require.ErrorAs(t, err, &scanErr)
		require.Equal(t, model.ScanNonZeroExit, scanErr.Kind)
		require.Equal(t, 3, scanErr.ExitCode)
		require.True(t, scanErr.Retryable())
	})

	t.Run("timeout kills process", func(t *testing.T) {
		t.Parallel()
		bin := stubScanner(t, `sleep 30`)
		r := runner(t, bin).WithTimeout(100 * time.Millisecond)

		start := time.Now()
		_, err := r.Scan(t.Context(), target, filepath.Join(t.TempDir(), "d.jsonl"))
		var scanErr *model.ScanError
		require.ErrorAs(t, err, &scanErr)
		require.Equal(t, model.ScanTimeout, scanErr.Kind)
		require.Less(t, time.Since(start), 10*time.Second)
	})

	t.Run("unparsable output", func(t *testing.T) {
		t.Parallel()
		bin := stubScanner(t, outputTo+`echo "total garbage" > "$out"`)
		_, err := runner(t, bin).Scan(t.Context(), target, filepath.Join(t.TempDir(), "e.jsonl"))
		var scanErr *model.ScanError
		require.ErrorAs(t, err, &scanErr)
		require.Equal(t, model.ScanParseFailure, scanErr.Kind)
		require.Equal(t, 1, scanErr.Malformed)
	})
}

func TestCheckSetup(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		t.Parallel()
		bin := stubScanner(t, `[ "$1" = "-version" ] && exit 0`)
		r := scanner.New(model.ScannerConfig{Binary: bin, Templates: t.TempDir(), Timeout: "1m"})
		require.NoError(t, r.CheckSetup(t.Context()))
	})

	t.Run("binary missing", func(t *testing.T) {
		t.Parallel()
		r := scanner.New(model.ScannerConfig{Binary: filepath.Join(t.TempDir(), "nope"), Timeout: "1m"})
		err := r.CheckSetup(t.Context())
		var setupErr *model.SetupError
		require.ErrorAs(t, err, &setupErr)
		require.True(t, errors.Is(err, model.ErrBinaryNotFound))
	})

	t.Run("templates missing", func(t *testing.T) {
		t.Parallel()
		bin := stubScanner(t, `exit 0`)
		r := scanner.New(model.ScannerConfig{
			Binary:    bin,
			Templates: filepath.Join(t.TempDir(), "no-templates"),
			Timeout:   "1m",
		})
		err := r.CheckSetup(t.Context())
		require.True(t, errors.Is(err, model.ErrTemplatesMissing))
	})
}
