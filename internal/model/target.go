package model

import (
	"fmt"
	"net/url"
)

// Target is a network endpoint submitted for scanning. It is validated
// once on input and never mutated afterwards.
type Target string

func (t Target) String() string {
	return string(t)
}

// ParseTarget validates a raw target URI. Only absolute http and https
// URLs with a host are accepted.
func ParseTarget(raw string) (Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing target %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("target %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("target %q: missing host", raw)
	}
	return Target(raw), nil
}

// ParseTargets validates all raw targets and rejects duplicates, keeping
// the input order.
func ParseTargets(raw []string) ([]Target, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("no targets given")
	}
	seen := make(map[Target]struct{}, len(raw))
	targets := make([]Target, 0, len(raw))
	for _, r := range raw {
		t, err := ParseTarget(r)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[t]; ok {
			return nil, fmt.Errorf("duplicate target %q", r)
		}
		seen[t] = struct{}{}
		targets = append(targets, t)
	}
	return targets, nil
}
