// Package detect implements PII detector backends and the fail-closed
// adapter that the pipeline and benchmark runner call.
package detect

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"piiguard/internal/core"
)

// Pattern is one regex rule of the pattern detector.
type Pattern struct {
	Type       core.EntityType
	Regex      *regexp.Regexp
	Confidence float64
}

// PatternDetector finds PII with regex rules plus a capitalized-name
// heuristic. It runs in-process and needs no external service.
type PatternDetector struct {
	patterns    []Pattern
	detectNames bool
}

// defaultPatterns returns the built-in detection rules.
func defaultPatterns() []Pattern {
	return []Pattern{
		{
			Type:       core.EntityEmail,
			Regex:      regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
			Confidence: 0.99,
		},
		// US phone formats: (123) 456-7890, 123-456-7890, +1 123 456 7890
		{
			Type:       core.EntityPhone,
			Regex:      regexp.MustCompile(`(?:\+1[\s.\-]?)?\(?\d{3}\)?[\s.\-]\d{3}[\s.\-]?\d{4}\b`),
			Confidence: 0.95,
		},
		// SSN requires separators so it does not swallow card fragments
		{
			Type:       core.EntityUSSSN,
			Regex:      regexp.MustCompile(`\b\d{3}[\s\-]\d{2}[\s\-]\d{4}\b`),
			Confidence: 0.85,
		},
		{
			Type:       core.EntityCreditCard,
			Regex:      regexp.MustCompile(`\b\d{4}[\s\-]?\d{4}[\s\-]?\d{4}[\s\-]?\d{4}\b`),
			Confidence: 0.9,
		},
		{
			Type:       core.EntityIBAN,
			Regex:      regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`),
			Confidence: 0.9,
		},
		// Salary with an annual qualifier is near certain
		{
			Type:       core.EntitySalary,
			Regex:      regexp.MustCompile(`\$[\d,]+(?:\.\d{2})?\s?(?:per year|annually|/year|per annum)`),
			Confidence: 0.95,
		},
		// Shorthand like 185k or $185K; listed before the bare dollar rule
		// so the longer match wins at equal start offsets
		{
			Type:       core.EntitySalary,
			Regex:      regexp.MustCompile(`\$?\b\d{2,4}[kK]\b`),
			Confidence: 0.6,
		},
		{
			Type:       core.EntitySalary,
			Regex:      regexp.MustCompile(`\$[\d,]+(?:\.\d{2})?`),
			Confidence: 0.85,
		},
		// Masked account tails: ****1234
		{
			Type:       core.EntityBankNumber,
			Regex:      regexp.MustCompile(`\*{3,4}\d{4}`),
			Confidence: 0.75,
		},
		{
			Type:       core.EntityBankNumber,
			Regex:      regexp.MustCompile(`\baccount (?:ending |ending in |#)?\d{4,17}\b`),
			Confidence: 0.75,
		},
		{
			Type:       core.EntityDateTime,
			Regex:      regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
			Confidence: 0.85,
		},
		{
			Type:       core.EntityDateTime,
			Regex:      regexp.MustCompile(`\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4}\b`),
			Confidence: 0.85,
		},
		// Street addresses
		{
			Type:       core.EntityLocation,
			Regex:      regexp.MustCompile(`\b\d+\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?\s+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Drive|Dr|Lane|Ln)\b\.?`),
			Confidence: 0.7,
		},
	}
}

// patternOverrideFile is the YAML shape accepted for pattern overrides.
// Rules listed for a type replace all built-in rules of that type;
// disabled types are removed entirely.
type patternOverrideFile struct {
	Disable  []string `yaml:"disable"`
	Patterns []struct {
		Type       string  `yaml:"type"`
		Regex      string  `yaml:"regex"`
		Confidence float64 `yaml:"confidence"`
	} `yaml:"patterns"`
}

// NewPatternDetector creates a pattern detector, optionally applying
// overrides from a YAML file.
func NewPatternDetector(overridesPath string) (*PatternDetector, error) {
	patterns := defaultPatterns()
	detectNames := true

	if overridesPath != "" {
		data, err := os.ReadFile(overridesPath)
		if err != nil {
			return nil, fmt.Errorf("read pattern overrides: %w", err)
		}
		var file patternOverrideFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse pattern overrides: %w", err)
		}

		overridden := make(map[core.EntityType]bool)
		var custom []Pattern
		for _, p := range file.Patterns {
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("compile override pattern for %s: %w", p.Type, err)
			}
			conf := p.Confidence
			if conf == 0 {
				conf = 0.8
			}
			custom = append(custom, Pattern{Type: core.EntityType(p.Type), Regex: re, Confidence: conf})
			overridden[core.EntityType(p.Type)] = true
		}

		disabled := make(map[core.EntityType]bool)
		for _, d := range file.Disable {
			disabled[core.EntityType(d)] = true
			if core.EntityType(d) == core.EntityPerson {
				detectNames = false
			}
		}

		kept := custom
		for _, p := range patterns {
			if overridden[p.Type] || disabled[p.Type] {
				continue
			}
			kept = append(kept, p)
		}
		patterns = kept
	}

	return &PatternDetector{patterns: patterns, detectNames: detectNames}, nil
}

// Name implements core.Detector.
func (d *PatternDetector) Name() string { return "pattern" }

// Detect implements core.Detector.
func (d *PatternDetector) Detect(ctx context.Context, text string) ([]core.EntitySpan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var spans []core.EntitySpan
	for _, p := range d.patterns {
		for _, idx := range p.Regex.FindAllStringIndex(text, -1) {
			spans = append(spans, core.EntitySpan{
				Type:       p.Type,
				Start:      idx[0],
				End:        idx[1],
				Text:       text[idx[0]:idx[1]],
				Confidence: p.Confidence,
			})
		}
	}
	if d.detectNames {
		spans = append(spans, findPersonNames(text)...)
	}

	spans = dropDuplicates(spans)
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans, nil
}

var nameRegexp = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,2}\b`)

// Capitalized words that start sentences but are rarely names.
var nameStopwords = map[string]struct{}{
	"The": {}, "This": {}, "That": {}, "These": {}, "Those": {},
	"What": {}, "When": {}, "Where": {}, "Which": {}, "Who": {}, "How": {}, "Why": {},
	"Please": {}, "Thanks": {}, "Thank": {}, "Hello": {}, "Dear": {},
	"Employee": {}, "Records": {}, "Salary": {}, "Department": {}, "Engineering": {},
	"New": {}, "United": {}, "North": {}, "South": {}, "East": {}, "West": {},
}

// findPersonNames applies a conservative heuristic: runs of two or three
// capitalized words whose first word is not a common sentence opener.
func findPersonNames(text string) []core.EntitySpan {
	var spans []core.EntitySpan
	for _, idx := range nameRegexp.FindAllStringIndex(text, -1) {
		candidate := text[idx[0]:idx[1]]
		first := strings.Fields(candidate)[0]
		if _, stop := nameStopwords[first]; stop {
			continue
		}
		spans = append(spans, core.EntitySpan{
			Type:       core.EntityPerson,
			Start:      idx[0],
			End:        idx[1],
			Text:       candidate,
			Confidence: 0.65,
		})
	}
	return spans
}

// dropDuplicates removes spans that repeat an identical (type, start, end).
func dropDuplicates(spans []core.EntitySpan) []core.EntitySpan {
	type key struct {
		t          core.EntityType
		start, end int
	}
	seen := make(map[key]struct{}, len(spans))
	out := spans[:0]
	for _, s := range spans {
		k := key{s.Type, s.Start, s.End}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}
