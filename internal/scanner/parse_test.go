package scanner_test

import (
	"strings"
	"testing"

	"github.com/hardenlabs/scanweave/internal/model"
	"github.com/hardenlabs/scanweave/internal/scanner"
	"github.com/stretchr/testify/require"
)

const target = model.Target("https://a.test")

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("ordered findings", func(t *testing.T) {
		t.Parallel()
		const out = `{"template-id":"ssl-expired","host":"https://a.test","matched-at":"a.test:443","info":{"name":"Expired certificate","severity":"high","description":"cert expired 2024-01-01"}}
{"template-id":"http-missing-hsts","host":"https://a.test","matched-at":"https://a.test","info":{"name":"Missing HSTS","severity":"low","description":"no Strict-Transport-Security header"}}
`
		findings, malformed, err := scanner.Parse(strings.NewReader(out), target)
		require.NoError(t, err)
		require.Zero(t, malformed)
		require.Len(t, findings, 2)
		require.Equal(t, "ssl-expired", findings[0].TemplateID)
		require.Equal(t, model.SeverityHigh, findings[0].Severity)
		require.Equal(t, target, findings[0].Target)
		require.Equal(t, "http-missing-hsts", findings[1].TemplateID)
		require.Equal(t, model.SeverityLow, findings[1].Severity)
	})

	t.Run("malformed lines skipped and counted", func(t *testing.T) {
		t.Parallel()
		const out = `not json at all
{"template-id":"tech-detect","info":{"severity":"info"}}
{"broken":
{"host":"no template id"}
`
		findings, malformed, err := scanner.Parse(strings.NewReader(out), target)
		require.NoError(t, err)
		require.Equal(t, 3, malformed)
		require.Len(t, findings, 1)
		require.Equal(t, "tech-detect", findings[0].TemplateID)
	})

	t.Run("empty output means no findings", func(t *testing.T) {
		t.Parallel()
		findings, malformed, err := scanner.Parse(strings.NewReader("\n\n"), target)
		require.NoError(t, err)
		require.Zero(t, malformed)
		require.Empty(t, findings)
	})

	t.Run("all lines malformed fails", func(t *testing.T) {
		t.Parallel()
		_, malformed, err := scanner.Parse(strings.NewReader("garbage\nmore garbage\n"), target)
		require.Error(t, err)
		require.Equal(t, 2, malformed)
	})

	t.Run("unknown severity normalized", func(t *testing.T) {
		t.Parallel()
		const out = `{"template-id":"x","info":{"severity":"catastrophic"}}`
		findings, _, err := scanner.Parse(strings.NewReader(out), target)
		require.NoError(t, err)
		require.Equal(t, model.SeverityUnknown, findings[0].Severity)
	})
}

func TestParseFileMissing(t *testing.T) {
	t.Parallel()
	findings, malformed, err := scanner.ParseFile(t.TempDir()+"/does-not-exist.jsonl", target)
	require.NoError(t, err)
	require.Zero(t, malformed)
	require.Empty(t, findings)
}
