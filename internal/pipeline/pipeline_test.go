package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"piiguard/internal/core"
	"piiguard/internal/session"
	"piiguard/internal/turnlog"
)

// stubDetector finds every occurrence of each configured literal.
type stubDetector struct {
	name     string
	entities map[string]core.EntityType
	err      string
}

func (d *stubDetector) Name() string {
	if d.name == "" {
		return "stub"
	}
	return d.name
}

func (d *stubDetector) Detect(_ context.Context, text string) core.DetectionResult {
	if d.err != "" {
		return core.DetectionResult{Spans: []core.EntitySpan{}, Err: d.err}
	}
	var spans []core.EntitySpan
	for literal, typ := range d.entities {
		from := 0
		for {
			idx := strings.Index(text[from:], literal)
			if idx < 0 {
				break
			}
			start := from + idx
			spans = append(spans, core.EntitySpan{
				Type: typ, Start: start, End: start + len(literal),
				Text: literal, Confidence: 0.95,
			})
			from = start + len(literal)
		}
	}
	return core.DetectionResult{Spans: spans}
}

// stubProvider replies with a fixed anonymized text, streamed as SSE.
type stubProvider struct {
	reply string
	err   error

	mu       sync.Mutex
	requests []*core.ChatRequest
}

func (p *stubProvider) Name() string { return "stubmodel" }

func (p *stubProvider) record(req *core.ChatRequest) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
}

func (p *stubProvider) lastRequest() *core.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return nil
	}
	return p.requests[len(p.requests)-1]
}

func (p *stubProvider) ChatCompletion(_ context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	p.record(req)
	if p.err != nil {
		return nil, p.err
	}
	return &core.ChatResponse{
		Choices: []core.Choice{{Message: core.Message{Role: "assistant", Content: p.reply}}},
	}, nil
}

func (p *stubProvider) StreamChatCompletion(_ context.Context, req *core.ChatRequest) (io.ReadCloser, error) {
	p.record(req)
	if p.err != nil {
		return nil, p.err
	}
	// Two-byte chunks force placeholder tokens to split across events.
	var b strings.Builder
	for i := 0; i < len(p.reply); i += 2 {
		end := i + 2
		if end > len(p.reply) {
			end = len(p.reply)
		}
		b.WriteString("data: {\"choices\":[{\"delta\":{\"content\":")
		b.WriteString(jsonString(p.reply[i:end]))
		b.WriteString("}}]}\n\n")
	}
	b.WriteString("data: [DONE]\n\n")
	return io.NopCloser(strings.NewReader(b.String())), nil
}

func jsonString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString("\\\"")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// stubRetriever returns a fixed context or a fixed error.
type stubRetriever struct {
	result *core.RetrievalResult
	err    error
}

func (r *stubRetriever) Retrieve(_ context.Context, _ string) (*core.RetrievalResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.result, nil
}

// captureTurns records audit writes.
type captureTurns struct {
	mu      sync.Mutex
	records []*turnlog.Record
}

func (c *captureTurns) Write(r *turnlog.Record) {
	c.mu.Lock()
	c.records = append(c.records, r)
	c.mu.Unlock()
}

func (c *captureTurns) Close() error { return nil }

func (c *captureTurns) last() *turnlog.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.records) == 0 {
		return nil
	}
	return c.records[len(c.records)-1]
}

func newTestPipeline(t *testing.T, detector Detector, provider core.Provider, opts ...Option) (*Pipeline, *session.Manager) {
	t.Helper()
	mgr := session.NewManager(session.NewMemoryStore(time.Hour))
	t.Cleanup(func() { _ = mgr.Close() })
	return New(detector, provider, mgr, Config{Model: "test-model"}, opts...), mgr
}

func collectText(events []Event) string {
	var b strings.Builder
	for _, e := range events {
		if e.Type == EventText {
			b.WriteString(e.Text)
		}
	}
	return b.String()
}

func eventOfType(events []Event, typ EventType) (Event, bool) {
	for _, e := range events {
		if e.Type == typ {
			return e, true
		}
	}
	return Event{}, false
}

func TestExecuteStreamingTurn(t *testing.T) {
	detector := &stubDetector{entities: map[string]core.EntityType{
		"alice.chen@acmecorp.com": core.EntityEmail,
		"Alice Chen":              core.EntityPerson,
	}}
	provider := &stubProvider{reply: "I have emailed <PERSON_1> at <EMAIL_ADDRESS_1>."}
	retriever := &stubRetriever{result: &core.RetrievalResult{
		Context:       "Employee Records from Acme Corp:\n- Alice Chen: Staff Software Engineer, Engineering\n  Email: alice.chen@acmecorp.com",
		EmployeeCount: 1,
		RetrievalType: "named",
	}}
	turns := &captureTurns{}

	p, mgr := newTestPipeline(t, detector, provider, WithRetriever(retriever), WithTurnLogger(turns))

	var events []Event
	res, err := p.Execute(context.Background(), TurnRequest{
		SessionID: "sess-1",
		Messages:  []core.Message{{Role: "user", Content: "Email Alice Chen about the offsite"}},
		Stream:    true,
	}, func(e Event) { events = append(events, e) })
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if res.State != StateDelivered {
		t.Errorf("state = %s, want %s", res.State, StateDelivered)
	}

	// Only anonymized text may reach the provider.
	sent := provider.lastRequest()
	if sent == nil {
		t.Fatal("provider never called")
	}
	for _, msg := range sent.Messages {
		if strings.Contains(msg.Content, "Alice Chen") || strings.Contains(msg.Content, "alice.chen@acmecorp.com") {
			t.Errorf("raw PII reached provider: %q", msg.Content)
		}
	}
	prompt := sent.Messages[len(sent.Messages)-1].Content
	if !strings.Contains(prompt, "<PERSON_1>") || !strings.Contains(prompt, "<EMAIL_ADDRESS_1>") {
		t.Errorf("anonymized prompt missing placeholders: %q", prompt)
	}
	if !strings.Contains(prompt, "User Query:") {
		t.Errorf("retrieved context not combined with user query: %q", prompt)
	}

	// Streamed chunks restore the original values even across split tokens.
	want := "I have emailed Alice Chen at alice.chen@acmecorp.com."
	if got := collectText(events); got != want {
		t.Errorf("streamed text = %q, want %q", got, want)
	}
	if res.Response != want {
		t.Errorf("final response = %q, want %q", res.Response, want)
	}

	analysis, ok := eventOfType(events, EventPIIAnalysis)
	if !ok {
		t.Fatal("no pii_analysis event emitted")
	}
	if analysis.Data["retrieval_type"] != "named" {
		t.Errorf("retrieval_type = %v", analysis.Data["retrieval_type"])
	}
	// "Alice Chen" occurs in both the retrieved context and the query.
	stats, _ := analysis.Data["entity_stats"].(map[string]int)
	if stats["PERSON"] != 2 || stats["EMAIL_ADDRESS"] != 1 {
		t.Errorf("entity_stats = %v", stats)
	}
	if _, ok := eventOfType(events, EventCompletion); !ok {
		t.Error("no completion event emitted")
	}

	// Mapping committed on the session.
	sess, err := mgr.Get(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if v, ok := sess.Mapping.Lookup("<PERSON_1>"); !ok || v != "Alice Chen" {
		t.Errorf("mapping <PERSON_1> = %q, %v", v, ok)
	}

	rec := turns.last()
	if rec == nil || rec.Status != "delivered" {
		t.Fatalf("turn record = %+v", rec)
	}
	if rec.Detector != "stub" || !rec.Streamed {
		t.Errorf("turn record = %+v", rec)
	}
}

func TestExecutePlaceholdersStableAcrossTurns(t *testing.T) {
	detector := &stubDetector{entities: map[string]core.EntityType{
		"Raj Patel": core.EntityPerson,
	}}
	provider := &stubProvider{reply: "Noted <PERSON_1>."}
	p, _ := newTestPipeline(t, detector, provider)

	run := func(text string) *TurnResult {
		res, err := p.Execute(context.Background(), TurnRequest{
			SessionID: "sess-stable",
			Messages:  []core.Message{{Role: "user", Content: text}},
		}, nil)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		return res
	}

	first := run("Tell me about Raj Patel")
	second := run("What is Raj Patel's title?")

	if !strings.Contains(first.AnonymizedPrompt, "<PERSON_1>") {
		t.Errorf("first prompt = %q", first.AnonymizedPrompt)
	}
	if !strings.Contains(second.AnonymizedPrompt, "<PERSON_1>") {
		t.Errorf("repeated mention got a new placeholder: %q", second.AnonymizedPrompt)
	}
	if len(second.Mapping) != 1 {
		t.Errorf("mapping grew on repeated mention: %v", second.Mapping)
	}
}

func TestExecuteHistoryAnonymizedWithSameMapping(t *testing.T) {
	detector := &stubDetector{entities: map[string]core.EntityType{
		"Maria Garcia": core.EntityPerson,
	}}
	provider := &stubProvider{reply: "Done."}
	p, _ := newTestPipeline(t, detector, provider)

	_, err := p.Execute(context.Background(), TurnRequest{
		SessionID: "sess-hist",
		Messages: []core.Message{
			{Role: "user", Content: "Who is Maria Garcia?"},
			{Role: "assistant", Content: "Maria Garcia is an engineering manager."},
			{Role: "user", Content: "What does Maria Garcia earn?"},
		},
	}, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	sent := provider.lastRequest()
	if sent == nil {
		t.Fatal("provider never called")
	}
	if len(sent.Messages) != 4 {
		t.Fatalf("llm messages = %d, want system + 2 history + user", len(sent.Messages))
	}
	for _, msg := range sent.Messages[1:] {
		if strings.Contains(msg.Content, "Maria Garcia") {
			t.Errorf("history message not anonymized: %q", msg.Content)
		}
		if msg.Role != "system" && !strings.Contains(msg.Content, "<PERSON_1>") {
			t.Errorf("history message uses a different placeholder: %q", msg.Content)
		}
	}
}

func TestExecuteRetrievalFailureIsBestEffort(t *testing.T) {
	detector := &stubDetector{}
	provider := &stubProvider{reply: "Hello."}
	retriever := &stubRetriever{err: core.NewRetrievalFailureError("directory unavailable", nil)}
	p, _ := newTestPipeline(t, detector, provider, WithRetriever(retriever))

	var events []Event
	res, err := p.Execute(context.Background(), TurnRequest{
		SessionID: "sess-r",
		Messages:  []core.Message{{Role: "user", Content: "hello"}},
	}, func(e Event) { events = append(events, e) })
	if err != nil {
		t.Fatalf("turn failed on best-effort retrieval: %v", err)
	}
	if res.State != StateDelivered {
		t.Errorf("state = %s", res.State)
	}
	if _, ok := eventOfType(events, EventWarning); !ok {
		t.Error("no warning event for retrieval failure")
	}
	if res.AnonymizedPrompt != "hello" {
		t.Errorf("prompt = %q, want bare user text", res.AnonymizedPrompt)
	}
}

func TestExecuteDetectorFailureFlagged(t *testing.T) {
	detector := &stubDetector{err: "ner service timeout"}
	provider := &stubProvider{reply: "Hi."}
	p, _ := newTestPipeline(t, detector, provider)

	var events []Event
	res, err := p.Execute(context.Background(), TurnRequest{
		SessionID: "sess-d",
		Messages:  []core.Message{{Role: "user", Content: "Email Bob"}},
	}, func(e Event) { events = append(events, e) })
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// Fails closed: turn continues with zero substitutions, but the
	// failure is visible downstream.
	if res.DetectorErr != "ner service timeout" {
		t.Errorf("DetectorErr = %q", res.DetectorErr)
	}
	analysis, ok := eventOfType(events, EventPIIAnalysis)
	if !ok {
		t.Fatal("no pii_analysis event")
	}
	if analysis.Data["detector_error"] != "ner service timeout" {
		t.Errorf("detector_error = %v", analysis.Data["detector_error"])
	}
}

func TestExecuteModelFailureFailsTurn(t *testing.T) {
	detector := &stubDetector{}
	provider := &stubProvider{err: core.NewModelCallError("stubmodel", 502, "upstream down", nil)}
	turns := &captureTurns{}
	p, _ := newTestPipeline(t, detector, provider, WithTurnLogger(turns))

	var events []Event
	res, err := p.Execute(context.Background(), TurnRequest{
		SessionID: "sess-m",
		Messages:  []core.Message{{Role: "user", Content: "hello"}},
	}, func(e Event) { events = append(events, e) })
	if err == nil {
		t.Fatal("expected error")
	}
	if res.State != StateFailed {
		t.Errorf("state = %s", res.State)
	}
	if _, ok := eventOfType(events, EventError); !ok {
		t.Error("no error event emitted")
	}
	rec := turns.last()
	if rec == nil || rec.Status != "failed" || rec.FailureReason != string(core.ErrorTypeModelCall) {
		t.Errorf("turn record = %+v", rec)
	}
}

func TestExecuteCancellationBeforeCommitLeavesMappingUntouched(t *testing.T) {
	detector := &stubDetector{entities: map[string]core.EntityType{
		"Ahmed Hassan": core.EntityPerson,
	}}
	provider := &stubProvider{reply: "never reached"}
	p, mgr := newTestPipeline(t, detector, provider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.Execute(ctx, TurnRequest{
		SessionID: "sess-c",
		Messages:  []core.Message{{Role: "user", Content: "Call Ahmed Hassan"}},
	}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if res.State != StateFailed {
		t.Errorf("state = %s", res.State)
	}
	if provider.lastRequest() != nil {
		t.Error("provider called after cancellation")
	}

	if _, err := mgr.Get(context.Background(), "sess-c"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("session committed despite cancellation: %v", err)
	}
}

func TestExecuteInvalidRequest(t *testing.T) {
	p, _ := newTestPipeline(t, &stubDetector{}, &stubProvider{reply: "x"})

	tests := []struct {
		name     string
		messages []core.Message
	}{
		{"no messages", nil},
		{"last not user", []core.Message{{Role: "assistant", Content: "hi"}}},
		{"empty content", []core.Message{{Role: "user", Content: ""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Execute(context.Background(), TurnRequest{SessionID: "s", Messages: tt.messages}, nil)
			var gerr *core.GuardrailError
			if !errors.As(err, &gerr) || gerr.Type != core.ErrorTypeInvalidRequest {
				t.Errorf("err = %v", err)
			}
		})
	}
}

func TestExecuteGeneratesSessionID(t *testing.T) {
	p, _ := newTestPipeline(t, &stubDetector{}, &stubProvider{reply: "hi"})
	res, err := p.Execute(context.Background(), TurnRequest{
		Messages: []core.Message{{Role: "user", Content: "hello"}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.SessionID == "" {
		t.Error("no session id generated")
	}
}
