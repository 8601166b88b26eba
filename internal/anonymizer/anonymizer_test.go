package anonymizer

import (
	"testing"

	"piiguard/internal/core"
)

func span(t core.EntityType, start, end int) core.EntitySpan {
	return core.EntitySpan{Type: t, Start: start, End: end, Confidence: 0.9}
}

func TestAnonymize(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		spans    []core.EntitySpan
		wantText string
	}{
		{
			name:     "single entity",
			text:     "Contact John Smith today",
			spans:    []core.EntitySpan{span(core.EntityPerson, 8, 18)},
			wantText: "Contact <PERSON_1> today",
		},
		{
			name: "per-type counters are independent",
			text: "John emailed jane@x.com and Bob",
			spans: []core.EntitySpan{
				span(core.EntityPerson, 0, 4),
				span(core.EntityEmail, 13, 23),
				span(core.EntityPerson, 28, 31),
			},
			wantText: "<PERSON_1> emailed <EMAIL_ADDRESS_1> and <PERSON_2>",
		},
		{
			name: "repeated value reuses its placeholder",
			text: "John met John",
			spans: []core.EntitySpan{
				span(core.EntityPerson, 0, 4),
				span(core.EntityPerson, 9, 13),
			},
			wantText: "<PERSON_1> met <PERSON_1>",
		},
		{
			name: "same text different type gets its own placeholder",
			text: "Paris visited Paris",
			spans: []core.EntitySpan{
				span(core.EntityPerson, 0, 5),
				span(core.EntityLocation, 14, 19),
			},
			wantText: "<PERSON_1> visited <LOCATION_1>",
		},
		{
			name: "overlapping spans keep the earlier one",
			text: "Dr. John Smith called",
			spans: []core.EntitySpan{
				span(core.EntityPerson, 0, 14),
				span(core.EntityPerson, 4, 14),
			},
			wantText: "<PERSON_1> called",
		},
		{
			name: "adjacent spans both substituted",
			text: "JohnSmith",
			spans: []core.EntitySpan{
				span(core.EntityPerson, 0, 4),
				span(core.EntityLocation, 4, 9),
			},
			wantText: "<PERSON_1><LOCATION_1>",
		},
		{
			name:     "zero spans returns input unchanged",
			text:     "nothing sensitive here",
			spans:    nil,
			wantText: "nothing sensitive here",
		},
		{
			name: "invalid spans are dropped",
			text: "short",
			spans: []core.EntitySpan{
				span(core.EntityPerson, 3, 99),
				span(core.EntityPerson, -1, 2),
				span(core.EntityPerson, 2, 2),
			},
			wantText: "short",
		},
		{
			name:     "multibyte text with byte offsets",
			text:     "héllo José Pérez",
			spans:    []core.EntitySpan{span(core.EntityPerson, 7, 19)},
			wantText: "héllo <PERSON_1>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Anonymize(tt.text, tt.spans, NewMapping())
			if got.Text != tt.wantText {
				t.Errorf("Anonymize() text = %q, want %q", got.Text, tt.wantText)
			}
		})
	}
}

func TestAnonymizeDoesNotMutateInputMapping(t *testing.T) {
	m := NewMapping()
	m.Assign(core.EntityPerson, "Alice")

	res := Anonymize("Bob called", []core.EntitySpan{span(core.EntityPerson, 0, 3)}, m)

	if m.Len() != 1 {
		t.Errorf("input mapping length = %d, want 1", m.Len())
	}
	if res.Mapping.Len() != 2 {
		t.Errorf("result mapping length = %d, want 2", res.Mapping.Len())
	}
}

func TestAnonymizeContinuesCountersAcrossTurns(t *testing.T) {
	first := Anonymize("Alice", []core.EntitySpan{span(core.EntityPerson, 0, 5)}, NewMapping())
	second := Anonymize("Bob", []core.EntitySpan{span(core.EntityPerson, 0, 3)}, first.Mapping)

	if second.Text != "<PERSON_2>" {
		t.Errorf("second turn text = %q, want %q", second.Text, "<PERSON_2>")
	}

	// A value from turn one keeps its placeholder in turn two.
	third := Anonymize("Alice again", []core.EntitySpan{span(core.EntityPerson, 0, 5)}, second.Mapping)
	if third.Text != "<PERSON_1> again" {
		t.Errorf("third turn text = %q, want %q", third.Text, "<PERSON_1> again")
	}
	if third.Replaced != 1 {
		t.Errorf("Replaced = %d, want 1", third.Replaced)
	}
}

func TestAnonymizeIsIdempotentOnItsOutput(t *testing.T) {
	text := "Call Jane at 555-0100"
	spans := []core.EntitySpan{
		span(core.EntityPerson, 5, 9),
		span(core.EntityPhone, 13, 21),
	}
	first := Anonymize(text, spans, NewMapping())

	// No detector reports spans over placeholder text, so a second pass with
	// zero spans must leave the text untouched.
	second := Anonymize(first.Text, nil, first.Mapping)
	if second.Text != first.Text {
		t.Errorf("second pass changed text: %q -> %q", first.Text, second.Text)
	}
	if second.Replaced != 0 {
		t.Errorf("second pass Replaced = %d, want 0", second.Replaced)
	}
}

func TestAnonymizeCounts(t *testing.T) {
	text := "John, Jane, 555-0100"
	spans := []core.EntitySpan{
		span(core.EntityPerson, 0, 4),
		span(core.EntityPerson, 6, 10),
		span(core.EntityPhone, 12, 20),
	}
	res := Anonymize(text, spans, NewMapping())

	if res.Counts[core.EntityPerson] != 2 {
		t.Errorf("PERSON count = %d, want 2", res.Counts[core.EntityPerson])
	}
	if res.Counts[core.EntityPhone] != 1 {
		t.Errorf("PHONE count = %d, want 1", res.Counts[core.EntityPhone])
	}
	if res.Replaced != 3 {
		t.Errorf("Replaced = %d, want 3", res.Replaced)
	}
}

func TestDeanonymize(t *testing.T) {
	m := NewMapping()
	m.Assign(core.EntityPerson, "John Smith")
	m.Assign(core.EntityEmail, "john@example.com")

	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "restores all placeholders",
			text: "<PERSON_1> can be reached at <EMAIL_ADDRESS_1>",
			want: "John Smith can be reached at john@example.com",
		},
		{
			name: "repeated placeholder",
			text: "<PERSON_1> and <PERSON_1>",
			want: "John Smith and John Smith",
		},
		{
			name: "unknown placeholder passes through",
			text: "<PERSON_9> is unknown",
			want: "<PERSON_9> is unknown",
		},
		{
			name: "malformed token passes through",
			text: "<PERSON_0> and <person_1> and < PERSON_1>",
			want: "<PERSON_0> and <person_1> and < PERSON_1>",
		},
		{
			name: "no placeholders",
			text: "plain text",
			want: "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Deanonymize(tt.text, m); got != tt.want {
				t.Errorf("Deanonymize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeanonymizeLongestTokenFirst(t *testing.T) {
	m := NewMapping()
	for i := 0; i < 12; i++ {
		m.Assign(core.EntityPerson, "person-"+string(rune('a'+i)))
	}

	// <PERSON_12> must not be clipped into the <PERSON_1> replacement plus "2>".
	got := Deanonymize("<PERSON_12> and <PERSON_1>", m)
	want := "person-l and person-a"
	if got != want {
		t.Errorf("Deanonymize() = %q, want %q", got, want)
	}
}

func TestDeanonymizeRoundTrip(t *testing.T) {
	text := "Jane Doe (jane@corp.io) lives in Boston since 2019-04-01"
	spans := []core.EntitySpan{
		span(core.EntityPerson, 0, 8),
		span(core.EntityEmail, 10, 22),
		span(core.EntityLocation, 33, 39),
		span(core.EntityDateTime, 46, 56),
	}
	res := Anonymize(text, spans, NewMapping())
	if res.Text == text {
		t.Fatal("expected text to change")
	}
	if got := Deanonymize(res.Text, res.Mapping); got != text {
		t.Errorf("round trip = %q, want %q", got, text)
	}
}

func TestPlaceholderMappingValidate(t *testing.T) {
	m := NewMapping()
	m.Assign(core.EntityPerson, "Alice")
	if err := m.Validate(); err != nil {
		t.Errorf("Validate() on healthy mapping = %v", err)
	}

	m.Pairs = append(m.Pairs, Pair{Placeholder: "<PERSON_1>", Original: "Bob", Type: core.EntityPerson})
	if err := m.Validate(); err == nil {
		t.Error("expected duplicate placeholder to fail validation")
	}
}
