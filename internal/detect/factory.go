package detect

import (
	"fmt"
	"time"

	"piiguard/internal/core"
)

// Options carries everything needed to construct any backend.
type Options struct {
	// PatternOverridesPath points to an optional YAML rules file.
	PatternOverridesPath string

	// ZeroShotURL is the base URL of the zero-shot NER service.
	ZeroShotURL string
	// ZeroShotThreshold is forwarded to the service (0 uses its default).
	ZeroShotThreshold float64

	// Provider and SafetyModel configure the safety-classifier backend.
	Provider    core.Provider
	SafetyModel string

	// Adapter settings shared by all backends.
	Timeout             time.Duration
	ConfidenceThreshold float64
	CacheSize           int
}

// Backends lists the selectable backend names.
func Backends() []string {
	return []string{"pattern", "zeroshot", "safety"}
}

// NewBackend constructs a raw backend by name.
func NewBackend(name string, opts Options) (core.Detector, error) {
	switch name {
	case "pattern":
		return NewPatternDetector(opts.PatternOverridesPath)
	case "zeroshot":
		if opts.ZeroShotURL == "" {
			return nil, fmt.Errorf("zeroshot detector requires a service URL")
		}
		return NewZeroShotDetector(opts.ZeroShotURL, opts.ZeroShotThreshold), nil
	case "safety":
		if opts.Provider == nil {
			return nil, fmt.Errorf("safety detector requires a model provider")
		}
		if opts.SafetyModel == "" {
			return nil, fmt.Errorf("safety detector requires a model name")
		}
		return NewSafetyDetector(opts.Provider, opts.SafetyModel), nil
	default:
		return nil, fmt.Errorf("unknown detector backend: %s", name)
	}
}

// New constructs a backend by name and wraps it in the fail-closed adapter.
func New(name string, opts Options) (*Adapter, error) {
	backend, err := NewBackend(name, opts)
	if err != nil {
		return nil, err
	}
	return NewAdapter(backend, AdapterConfig{
		Timeout:             opts.Timeout,
		ConfidenceThreshold: opts.ConfidenceThreshold,
		CacheSize:           opts.CacheSize,
	}, nil), nil
}
