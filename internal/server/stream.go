package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"piiguard/internal/pipeline"
)

// streamWriter speaks the data-stream protocol the chat UI consumes:
// text chunks as `0:<json string>\n` and data events as `2:[{json}]\n`.
type streamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newStreamWriter(w http.ResponseWriter) *streamWriter {
	flusher, _ := w.(http.Flusher)
	return &streamWriter{w: w, flusher: flusher}
}

func (s *streamWriter) text(text string) {
	encoded, err := json.Marshal(text)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "0:%s\n", encoded)
	s.flush()
}

func (s *streamWriter) data(payload map[string]any) {
	encoded, err := json.Marshal([]map[string]any{payload})
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "2:%s\n", encoded)
	s.flush()
}

func (s *streamWriter) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// emit routes pipeline events onto the wire.
func (s *streamWriter) emit(e pipeline.Event) {
	switch e.Type {
	case pipeline.EventText:
		s.text(e.Text)
	default:
		s.data(e.Data)
	}
}
