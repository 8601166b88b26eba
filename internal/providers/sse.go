package providers

import (
	"bufio"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

// maxSSELineSize bounds a single SSE line. Completion deltas are small,
// but some backends batch large payloads into one event.
const maxSSELineSize = 1024 * 1024

// ScanStream reads an OpenAI-style SSE stream and calls fn for every
// non-empty content delta, in order. It returns when the stream ends,
// the [DONE] sentinel arrives, or fn returns an error. Malformed events
// are skipped rather than failing the stream.
func ScanStream(r io.Reader, fn func(text string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			return nil
		}
		if !gjson.Valid(payload) {
			continue
		}
		content := gjson.Get(payload, "choices.0.delta.content").String()
		if content == "" {
			continue
		}
		if err := fn(content); err != nil {
			return err
		}
	}
	return scanner.Err()
}
