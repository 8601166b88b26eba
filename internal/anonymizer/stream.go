package anonymizer

import "strings"

// StreamDeanonymizer restores placeholders across chunk boundaries.
// It holds back any trailing text that could be the prefix of an
// incomplete placeholder and emits it once the token closes or turns
// out not to be one. Feeding a text in any chunking yields the same
// concatenated output as a single Deanonymize call.
type StreamDeanonymizer struct {
	mapping *PlaceholderMapping
	pending string
	maxLen  int
}

// NewStreamDeanonymizer creates a streaming deanonymizer for one turn.
// The mapping is fixed for the lifetime of the stream.
func NewStreamDeanonymizer(mapping *PlaceholderMapping) *StreamDeanonymizer {
	d := &StreamDeanonymizer{mapping: mapping}
	if mapping != nil {
		d.maxLen = mapping.MaxPlaceholderLen()
	}
	return d
}

// Feed consumes the next chunk and returns the text that is safe to emit.
func (d *StreamDeanonymizer) Feed(chunk string) string {
	if d.maxLen == 0 {
		// Empty mapping: nothing to restore, pass through.
		return chunk
	}

	data := d.pending + chunk
	d.pending = ""

	safe := len(data)
	if i := holdbackIndex(data, d.maxLen); i >= 0 {
		safe = i
	}

	d.pending = data[safe:]
	return Deanonymize(data[:safe], d.mapping)
}

// Flush returns whatever is still held back. Call once at stream end.
func (d *StreamDeanonymizer) Flush() string {
	out := Deanonymize(d.pending, d.mapping)
	d.pending = ""
	return out
}

// holdbackIndex returns the byte index from which data must be held back,
// or -1 when all of data is safe to emit. Text is held back only when it
// ends in an unclosed token that could still become a placeholder shorter
// than or equal to maxLen.
func holdbackIndex(data string, maxLen int) int {
	open := strings.LastIndexByte(data, '<')
	if open < 0 {
		return -1
	}
	tail := data[open:]
	if strings.IndexByte(tail, '>') >= 0 {
		return -1 // token already closed
	}
	if len(tail) >= maxLen {
		return -1 // too long to be any known placeholder
	}
	for i := 1; i < len(tail); i++ {
		c := tail[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') && c != '_' {
			return -1 // cannot be a placeholder prefix
		}
	}
	return open
}
