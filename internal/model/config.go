package model

import (
	"fmt"
	"io"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}
	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

// Config is the one explicit configuration object for a run. There is no
// process-wide mutable state; the orchestrator receives this struct at
// construction.
type Config struct {
	Version   int             `json:"version" yaml:"version"` // fixed 0 for now
	Scanner   ScannerConfig   `json:"scanner" yaml:"scanner"`
	Synthesis SynthesisConfig `json:"synthesis" yaml:"synthesis"`
	Report    ReportConfig    `json:"report" yaml:"report"`
	Verbose   bool            `json:"verbose" yaml:"verbose"`
}

// ScannerConfig describes the external scanner collaborator.
type ScannerConfig struct {
	Binary      string `json:"binary" yaml:"binary"`
	Templates   string `json:"templates" yaml:"templates"`
	Timeout     string `json:"timeout" yaml:"timeout"` // per-target wall clock, Go duration syntax
	Concurrency int    `json:"concurrency" yaml:"concurrency"`
	OutputDir   string `json:"output_dir" yaml:"output_dir"`
}

// TimeoutDuration returns the parsed per-target scan timeout.
func (s ScannerConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// SynthesisConfig describes the remote summarization collaborator. The
// concurrency limit is independent of the scan pool as the remote API has
// its own quota.
type SynthesisConfig struct {
	Endpoint       string `json:"endpoint" yaml:"endpoint"`
	Model          string `json:"model" yaml:"model"`
	APIKey         string `json:"api_key" yaml:"api_key"`
	Concurrency    int    `json:"concurrency" yaml:"concurrency"`
	MaxPromptBytes int    `json:"max_prompt_bytes" yaml:"max_prompt_bytes"`
}

// ReportConfig describes the final report artifacts. Renderer is a
// binary converting Markdown to a distributable document; empty disables
// rendering and the Markdown is the deliverable.
type ReportConfig struct {
	Path     string `json:"path" yaml:"path"`
	Renderer string `json:"renderer" yaml:"renderer"`
}

// LoadConfig validates YAML from r against the embedded CUE schema and
// decodes it.
func LoadConfig(r io.Reader) (Config, error) {
	var zero Config
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return zero, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return zero, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return zero, err
	}

	if _, err := time.ParseDuration(out.Scanner.Timeout); err != nil {
		return zero, fmt.Errorf("scanner.timeout: %w", err)
	}
	return out, nil
}

// DefaultConfig is the schema with all defaults applied.
func DefaultConfig() Config {
	cfg, err := LoadConfig(strings.NewReader("version: 0\n"))
	if err != nil {
		panic(err) // schema and defaults are embedded, this cannot fail
	}
	return cfg
}
