// Package anonymizer implements reversible placeholder substitution for
// detected PII entities. Placeholders follow the grammar <TYPE_N> where TYPE
// is an uppercase entity type and N is a per-type counter starting at 1.
package anonymizer

import (
	"fmt"
	"strings"

	"piiguard/internal/core"
)

// Pair is one placeholder assignment. Pairs are recorded in assignment order.
type Pair struct {
	Placeholder string          `json:"placeholder"`
	Original    string          `json:"original"`
	Type        core.EntityType `json:"entity_type"`
}

// PlaceholderMapping holds the placeholder assignments of one session.
// The same (type, original text) pair always maps to the same placeholder,
// across turns. The zero value is not usable; call NewMapping.
type PlaceholderMapping struct {
	Pairs    []Pair                  `json:"pairs"`
	Counters map[core.EntityType]int `json:"counters"`

	// Lookup indexes, rebuilt lazily after JSON decoding.
	byPlaceholder map[string]string
	byValue       map[string]string
}

// NewMapping creates an empty mapping.
func NewMapping() *PlaceholderMapping {
	return &PlaceholderMapping{
		Counters:      make(map[core.EntityType]int),
		byPlaceholder: make(map[string]string),
		byValue:       make(map[string]string),
	}
}

// Clone returns a deep copy. The orchestrator extends a clone and commits it
// to the session only after the whole anonymize step succeeds.
func (m *PlaceholderMapping) Clone() *PlaceholderMapping {
	c := NewMapping()
	c.Pairs = make([]Pair, len(m.Pairs))
	copy(c.Pairs, m.Pairs)
	for t, n := range m.Counters {
		c.Counters[t] = n
	}
	c.rebuildIndexes()
	return c
}

// Len returns the number of placeholder assignments.
func (m *PlaceholderMapping) Len() int {
	return len(m.Pairs)
}

// Lookup returns the original value for a placeholder.
func (m *PlaceholderMapping) Lookup(placeholder string) (string, bool) {
	m.ensureIndexes()
	orig, ok := m.byPlaceholder[placeholder]
	return orig, ok
}

// PlaceholderFor returns the existing placeholder for (type, original), if any.
func (m *PlaceholderMapping) PlaceholderFor(t core.EntityType, original string) (string, bool) {
	m.ensureIndexes()
	p, ok := m.byValue[valueKey(t, original)]
	return p, ok
}

// Assign returns the placeholder for (type, original), creating a new one
// with the next per-type counter if the value has not been seen before.
func (m *PlaceholderMapping) Assign(t core.EntityType, original string) string {
	if p, ok := m.PlaceholderFor(t, original); ok {
		return p
	}
	if m.Counters == nil {
		m.Counters = make(map[core.EntityType]int)
	}
	m.Counters[t]++
	p := fmt.Sprintf("<%s_%d>", t, m.Counters[t])
	m.Pairs = append(m.Pairs, Pair{Placeholder: p, Original: original, Type: t})
	m.byPlaceholder[p] = original
	m.byValue[valueKey(t, original)] = p
	return p
}

// Placeholders returns a placeholder -> original copy of the mapping.
func (m *PlaceholderMapping) Placeholders() map[string]string {
	m.ensureIndexes()
	out := make(map[string]string, len(m.byPlaceholder))
	for p, orig := range m.byPlaceholder {
		out[p] = orig
	}
	return out
}

// MaxPlaceholderLen returns the byte length of the longest placeholder,
// or 0 for an empty mapping.
func (m *PlaceholderMapping) MaxPlaceholderLen() int {
	max := 0
	for _, pair := range m.Pairs {
		if len(pair.Placeholder) > max {
			max = len(pair.Placeholder)
		}
	}
	return max
}

// Validate checks internal consistency: every placeholder unique, every
// counter at least as large as the highest assigned index of its type.
func (m *PlaceholderMapping) Validate() error {
	seen := make(map[string]struct{}, len(m.Pairs))
	for _, pair := range m.Pairs {
		if _, dup := seen[pair.Placeholder]; dup {
			return core.NewMappingCorruptionError(
				fmt.Sprintf("duplicate placeholder %q", pair.Placeholder), nil)
		}
		seen[pair.Placeholder] = struct{}{}
		prefix := fmt.Sprintf("<%s_", pair.Type)
		if !strings.HasPrefix(pair.Placeholder, prefix) || !strings.HasSuffix(pair.Placeholder, ">") {
			return core.NewMappingCorruptionError(
				fmt.Sprintf("placeholder %q does not match its type %s", pair.Placeholder, pair.Type), nil)
		}
	}
	return nil
}

func (m *PlaceholderMapping) ensureIndexes() {
	if m.byPlaceholder == nil || len(m.byPlaceholder) != len(m.Pairs) {
		m.rebuildIndexes()
	}
}

func (m *PlaceholderMapping) rebuildIndexes() {
	m.byPlaceholder = make(map[string]string, len(m.Pairs))
	m.byValue = make(map[string]string, len(m.Pairs))
	for _, pair := range m.Pairs {
		m.byPlaceholder[pair.Placeholder] = pair.Original
		m.byValue[valueKey(pair.Type, pair.Original)] = pair.Placeholder
	}
}

func valueKey(t core.EntityType, original string) string {
	return string(t) + "|" + original
}
