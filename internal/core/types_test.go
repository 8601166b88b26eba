package core

import "testing"

func TestEntitySpanValidIn(t *testing.T) {
	tests := []struct {
		name    string
		span    EntitySpan
		textLen int
		want    bool
	}{
		{"valid interior span", EntitySpan{Start: 2, End: 5}, 10, true},
		{"valid full span", EntitySpan{Start: 0, End: 10}, 10, true},
		{"empty span rejected", EntitySpan{Start: 3, End: 3}, 10, false},
		{"inverted span rejected", EntitySpan{Start: 5, End: 2}, 10, false},
		{"negative start rejected", EntitySpan{Start: -1, End: 2}, 10, false},
		{"end past text rejected", EntitySpan{Start: 8, End: 11}, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.span.ValidIn(tt.textLen); got != tt.want {
				t.Errorf("ValidIn(%d) = %v, want %v", tt.textLen, got, tt.want)
			}
		})
	}
}

func TestEntitySpanOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b EntitySpan
		want bool
	}{
		{"identical", EntitySpan{Start: 0, End: 5}, EntitySpan{Start: 0, End: 5}, true},
		{"partial overlap", EntitySpan{Start: 0, End: 5}, EntitySpan{Start: 4, End: 8}, true},
		{"containment", EntitySpan{Start: 0, End: 10}, EntitySpan{Start: 3, End: 4}, true},
		{"adjacent spans do not overlap", EntitySpan{Start: 0, End: 5}, EntitySpan{Start: 5, End: 8}, false},
		{"disjoint", EntitySpan{Start: 0, End: 2}, EntitySpan{Start: 6, End: 8}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Errorf("Overlaps = %v, want %v", got, tt.want)
			}
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Errorf("Overlaps (reversed) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChatRequestWithStreaming(t *testing.T) {
	req := &ChatRequest{Model: "test-model", Messages: []Message{{Role: "user", Content: "hi"}}}
	streaming := req.WithStreaming()

	if !streaming.Stream {
		t.Error("expected Stream to be true on the copy")
	}
	if req.Stream {
		t.Error("original request must not be mutated")
	}
	if streaming.Model != req.Model {
		t.Errorf("Model = %q, want %q", streaming.Model, req.Model)
	}
}
