package scanner

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hardenlabs/scanweave/internal/model"
)

// event mirrors the subset of the scanner's JSONL output we consume.
type event struct {
	TemplateID string `json:"template-id"`
	Host       string `json:"host"`
	MatchedAt  string `json:"matched-at"`
	Info       struct {
		Name        string `json:"name"`
		Severity    string `json:"severity"`
		Description string `json:"description"`
	} `json:"info"`
}

// Parse reads line-delimited JSON findings. Malformed lines are skipped
// and counted; the parse only fails when the output is non-empty and not
// a single line could be decoded.
func Parse(r io.Reader, target model.Target) ([]model.FindingRecord, int, error) {
	var (
		findings  []model.FindingRecord
		malformed int
		lines     int
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines++

		var ev event
		if err := json.Unmarshal([]byte(line), &ev); err != nil || ev.TemplateID == "" {
			malformed++
			continue
		}

		findings = append(findings, model.FindingRecord{
			TemplateID: ev.TemplateID,
			Name:       ev.Info.Name,
			Severity:   model.ParseSeverity(ev.Info.Severity),
			Target:     target,
			MatchedAt:  ev.MatchedAt,
			Detail:     ev.Info.Description,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, malformed, fmt.Errorf("reading scanner output: %w", err)
	}

	if lines > 0 && len(findings) == 0 {
		return nil, malformed, fmt.Errorf("no line out of %d could be decoded", lines)
	}
	return findings, malformed, nil
}

// ParseFile parses the scanner output file. A missing file means the
// scanner found nothing; it only creates the output on a match.
func ParseFile(path string, target model.Target) ([]model.FindingRecord, int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("opening scanner output: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return Parse(f, target)
}
