package anonymizer

import (
	"sort"
	"strings"

	"piiguard/internal/core"
)

// Result is the outcome of one Anonymize call.
type Result struct {
	// Text is the rewritten text with placeholders substituted.
	Text string
	// Mapping is a new mapping extended with this call's assignments.
	// The input mapping is never mutated.
	Mapping *PlaceholderMapping
	// Counts is the number of substitutions per entity type in this call.
	Counts map[core.EntityType]int
	// Replaced is the total number of substitutions in this call.
	Replaced int
}

// Anonymize replaces detected entity spans in text with placeholders.
//
// Spans are processed left to right in a single pass. Overlapping spans are
// resolved first-come: after a stable sort by Start, a span is accepted only
// if it begins at or after the end of the previously accepted span.
// Structurally invalid spans are dropped. The same (type, exact text) pair
// reuses its placeholder, including assignments from earlier turns carried
// in mapping.
func Anonymize(text string, spans []core.EntitySpan, mapping *PlaceholderMapping) Result {
	if mapping == nil {
		mapping = NewMapping()
	}
	out := Result{
		Mapping: mapping.Clone(),
		Counts:  make(map[core.EntityType]int),
	}

	if len(spans) == 0 || text == "" {
		out.Text = text
		return out
	}

	valid := make([]core.EntitySpan, 0, len(spans))
	for _, s := range spans {
		if s.ValidIn(len(text)) {
			valid = append(valid, s)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Start < valid[j].Start
	})

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, s := range valid {
		if s.Start < last {
			continue // overlaps an already accepted span
		}
		original := text[s.Start:s.End]
		placeholder := out.Mapping.Assign(s.Type, original)
		b.WriteString(text[last:s.Start])
		b.WriteString(placeholder)
		last = s.End
		out.Counts[s.Type]++
		out.Replaced++
	}
	b.WriteString(text[last:])

	out.Text = b.String()
	return out
}
