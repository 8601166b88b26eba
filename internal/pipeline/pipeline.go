// Package pipeline orchestrates one conversational turn: retrieve context,
// anonymize everything that leaves the process, call the model, restore
// placeholders in the reply. The anonymized prompt is the only text that
// ever reaches the provider.
package pipeline

import (
	"context"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"piiguard/internal/anonymizer"
	"piiguard/internal/core"
	"piiguard/internal/providers"
	"piiguard/internal/session"
	"piiguard/internal/turnlog"
)

// State is the turn state machine position.
type State string

const (
	StateReceived     State = "RECEIVED"
	StateRetrieved    State = "RETRIEVED"
	StateAnonymized   State = "ANONYMIZED"
	StateModelCalled  State = "MODEL_CALLED"
	StateDeanonymized State = "DEANONYMIZED"
	StateDelivered    State = "DELIVERED"
	StateFailed       State = "FAILED"
)

// defaultSystemPrompt frames the model as the HR assistant the retrieval
// directory serves.
const defaultSystemPrompt = `You are an HR assistant for Acme Corporation.
You help with employee inquiries, compensation questions, and HR-related tasks.
Be professional, helpful, and concise.
When employee data is provided in the context, use it to answer questions accurately.`

// Detector is the fail-closed detector contract the pipeline consumes.
// Satisfied by *detect.Adapter.
type Detector interface {
	Name() string
	Detect(ctx context.Context, text string) core.DetectionResult
}

// Observer receives per-turn observations. Satisfied by
// *observability.Metrics; nil disables observation.
type Observer interface {
	ObserveTurn(status, detector string, detectionMS, totalMS float64, entityCounts map[core.EntityType]int)
}

// Config holds pipeline construction options.
type Config struct {
	// Model is the model identifier sent to the provider.
	Model string
	// SystemPrompt overrides the default HR assistant prompt when set.
	SystemPrompt string
}

// Pipeline executes turns. All collaborators except the detector,
// provider, and session manager are optional.
type Pipeline struct {
	detector  Detector
	provider  core.Provider
	retriever core.Retriever
	sessions  *session.Manager
	turns     turnlog.LoggerInterface
	observer  Observer
	logger    *slog.Logger

	model        string
	systemPrompt string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRetriever attaches the retrieval collaborator.
func WithRetriever(r core.Retriever) Option {
	return func(p *Pipeline) { p.retriever = r }
}

// WithTurnLogger attaches the audit record logger.
func WithTurnLogger(l turnlog.LoggerInterface) Option {
	return func(p *Pipeline) { p.turns = l }
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a pipeline.
func New(detector Detector, provider core.Provider, sessions *session.Manager, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		detector:     detector,
		provider:     provider,
		sessions:     sessions,
		turns:        &turnlog.NoopLogger{},
		logger:       slog.Default(),
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
	}
	if p.systemPrompt == "" {
		p.systemPrompt = defaultSystemPrompt
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// TurnRequest is one incoming user turn. Messages carries the full
// conversation; the last message must be the current user message.
type TurnRequest struct {
	SessionID string
	RequestID string
	Messages  []core.Message
	Stream    bool
}

// TurnResult is the terminal outcome of a turn.
type TurnResult struct {
	State     State
	SessionID string

	// Response is the deanonymized model reply (final full-text pass).
	Response string

	OriginalPrompt   string
	AnonymizedPrompt string
	Mapping          map[string]string
	EntityCounts     map[core.EntityType]int
	DetectorErr      string

	RetrievalType string
	EmployeeCount int

	RetrievalMS float64
	DetectionMS float64
	ModelMS     float64
	TotalMS     float64
}

// Execute runs one turn. Events are emitted in order on emit (which may
// be nil): a pii_analysis event after anonymization, text chunks as the
// restored reply streams, and a completion event with timings. The
// session mapping commit is atomic: cancellation before commit leaves
// the stored mapping untouched.
func (p *Pipeline) Execute(ctx context.Context, req TurnRequest, emit EmitFunc) (*TurnResult, error) {
	start := time.Now()
	if emit == nil {
		emit = func(Event) {}
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	res := &TurnResult{State: StateReceived, SessionID: req.SessionID}

	userMessage, history, err := splitMessages(req.Messages)
	if err != nil {
		return p.fail(res, req, start, emit, err)
	}
	res.OriginalPrompt = userMessage

	// Retrieval is best-effort: a failed retriever degrades to an empty
	// context instead of failing the turn.
	retrievalStart := time.Now()
	retrieval := p.retrieve(ctx, userMessage, emit)
	res.RetrievalMS = elapsedMS(retrievalStart)
	res.RetrievalType = retrieval.RetrievalType
	res.EmployeeCount = retrieval.EmployeeCount
	res.State = StateRetrieved

	combined := userMessage
	if retrieval.Context != "" {
		combined = retrieval.Context + "\n\nUser Query: " + userMessage
	}

	// Detection runs outside the session lock; it never touches mapping
	// state. The retrieved context is anonymized together with the user
	// text, it is the main channel for un-redacted records.
	detectStart := time.Now()
	detection := p.detector.Detect(ctx, combined)
	historySpans := make([]core.DetectionResult, len(history))
	for i, msg := range history {
		historySpans[i] = p.detector.Detect(ctx, msg.Content)
	}
	res.DetectionMS = elapsedMS(detectStart)
	res.DetectorErr = detection.Err

	anonymized, anonHistory, err := p.anonymizeAndCommit(ctx, req.SessionID, combined, detection.Spans, history, historySpans, res)
	if err != nil {
		return p.fail(res, req, start, emit, err)
	}
	res.State = StateAnonymized
	res.AnonymizedPrompt = anonymized.Text

	emit(piiAnalysisEvent(req, p.detector.Name(), detection, anonymized, retrieval, userMessage, res))

	llmMessages := make([]core.Message, 0, len(anonHistory)+2)
	llmMessages = append(llmMessages, core.Message{Role: "system", Content: p.systemPrompt})
	llmMessages = append(llmMessages, anonHistory...)
	llmMessages = append(llmMessages, core.Message{Role: "user", Content: anonymized.Text})

	modelStart := time.Now()
	raw, err := p.callModel(ctx, llmMessages, req.Stream, anonymized.Mapping, emit)
	res.ModelMS = elapsedMS(modelStart)
	if err != nil {
		return p.fail(res, req, start, emit, err)
	}
	res.State = StateModelCalled

	// Final full-text pass over the accumulated reply. For streams this
	// equals the concatenated chunk output by the chunk-split law.
	res.Response = anonymizer.Deanonymize(raw, anonymized.Mapping)
	res.State = StateDeanonymized

	if !req.Stream {
		emit(Event{Type: EventText, Text: res.Response})
	}

	res.State = StateDelivered
	res.TotalMS = elapsedMS(start)
	emit(completionEvent(res))

	p.recordHistory(ctx, req, res.Response)
	p.record(res, req, "delivered", "")
	return res, nil
}

// retrieve calls the retriever, absorbing failures into an empty result.
func (p *Pipeline) retrieve(ctx context.Context, query string, emit EmitFunc) core.RetrievalResult {
	if p.retriever == nil {
		return core.RetrievalResult{RetrievalType: "none"}
	}
	result, err := p.retriever.Retrieve(ctx, query)
	if err != nil || result == nil {
		p.logger.Warn("retrieval failed, continuing with empty context", "error", err)
		emit(Event{Type: EventWarning, Data: map[string]any{
			"type":    "retrieval_failure",
			"message": "context retrieval failed, continuing without employee records",
		}})
		return core.RetrievalResult{RetrievalType: "none"}
	}
	return *result
}

// anonymizeAndCommit performs the atomic mapping extension: the session
// lock is held for the whole read-clone-extend-commit window, and a
// cancelled context before commit leaves the stored mapping untouched.
func (p *Pipeline) anonymizeAndCommit(
	ctx context.Context,
	sessionID, combined string,
	spans []core.EntitySpan,
	history []core.Message,
	historySpans []core.DetectionResult,
	res *TurnResult,
) (anonymizer.Result, []core.Message, error) {
	unlock := p.sessions.Lock(sessionID)
	defer unlock()

	sess, err := p.sessions.GetOrCreate(ctx, sessionID)
	if err != nil {
		return anonymizer.Result{}, nil, core.NewMappingCorruptionError("failed to load session", err)
	}

	result := anonymizer.Anonymize(combined, spans, sess.Mapping)

	anonHistory := make([]core.Message, len(history))
	working := result.Mapping
	for i, msg := range history {
		hr := anonymizer.Anonymize(msg.Content, historySpans[i].Spans, working)
		working = hr.Mapping
		anonHistory[i] = core.Message{Role: msg.Role, Content: hr.Text}
	}
	result.Mapping = working

	if err := ctx.Err(); err != nil {
		return anonymizer.Result{}, nil, core.NewInvalidRequestError("request cancelled before mapping commit", err)
	}

	sess.Mapping = result.Mapping
	if err := p.sessions.Commit(ctx, sess); err != nil {
		return anonymizer.Result{}, nil, core.NewMappingCorruptionError("failed to commit session mapping", err)
	}

	res.Mapping = result.Mapping.Placeholders()
	res.EntityCounts = result.Counts
	return result, anonHistory, nil
}

// callModel runs the provider and returns the raw (still anonymized)
// reply text. For streams each restored chunk is emitted as it arrives.
func (p *Pipeline) callModel(ctx context.Context, messages []core.Message, stream bool, mapping *anonymizer.PlaceholderMapping, emit EmitFunc) (string, error) {
	req := &core.ChatRequest{Model: p.model, Messages: messages}

	if !stream {
		resp, err := p.provider.ChatCompletion(ctx, req)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", core.NewModelCallError(p.provider.Name(), 502, "provider returned no choices", nil)
		}
		return resp.Choices[0].Message.Content, nil
	}

	body, err := p.provider.StreamChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	defer body.Close()

	var raw []byte
	deanon := anonymizer.NewStreamDeanonymizer(mapping)
	err = providers.ScanStream(body, func(text string) error {
		raw = append(raw, text...)
		if out := deanon.Feed(text); out != "" {
			emit(Event{Type: EventText, Text: out})
		}
		return ctx.Err()
	})
	if err != nil {
		return "", core.NewModelCallError(p.provider.Name(), 502, "stream aborted: "+err.Error(), err)
	}
	if out := deanon.Flush(); out != "" {
		emit(Event{Type: EventText, Text: out})
	}
	return string(raw), nil
}

// recordHistory persists the turn's messages on the session, best-effort.
func (p *Pipeline) recordHistory(ctx context.Context, req TurnRequest, response string) {
	unlock := p.sessions.Lock(req.SessionID)
	defer unlock()

	sess, err := p.sessions.GetOrCreate(ctx, req.SessionID)
	if err != nil {
		p.logger.Warn("failed to load session for history update", "session_id", req.SessionID, "error", err)
		return
	}
	sess.History = append([]core.Message(nil), req.Messages...)
	sess.History = append(sess.History, core.Message{Role: "assistant", Content: response})
	if err := p.sessions.Commit(ctx, sess); err != nil {
		p.logger.Warn("failed to persist session history", "session_id", req.SessionID, "error", err)
	}
}

// fail finalizes a failed turn: typed reason in the audit record, an
// error event, no retry.
func (p *Pipeline) fail(res *TurnResult, req TurnRequest, start time.Time, emit EmitFunc, err error) (*TurnResult, error) {
	res.State = StateFailed
	res.TotalMS = elapsedMS(start)

	reason := core.ErrorTypeOf(err)
	emit(Event{Type: EventError, Data: map[string]any{
		"type":    "error",
		"reason":  reason,
		"message": err.Error(),
	}})

	p.logger.Error("turn failed",
		"session_id", res.SessionID,
		"state", string(res.State),
		"reason", reason,
		"error", err)

	p.record(res, req, "failed", reason)
	return res, err
}

// record writes the turn audit record and metrics observation.
func (p *Pipeline) record(res *TurnResult, req TurnRequest, status, failureReason string) {
	counts := make(map[string]int, len(res.EntityCounts))
	for t, n := range res.EntityCounts {
		counts[string(t)] = n
	}
	p.turns.Write(&turnlog.Record{
		ID:               uuid.NewString(),
		Timestamp:        time.Now().UTC(),
		SessionID:        res.SessionID,
		RequestID:        req.RequestID,
		Detector:         p.detector.Name(),
		Provider:         p.provider.Name(),
		Model:            p.model,
		Status:           status,
		FailureReason:    failureReason,
		EntityCounts:     counts,
		PlaceholderCount: len(res.Mapping),
		RetrievalType:    res.RetrievalType,
		EmployeeCount:    res.EmployeeCount,
		Streamed:         req.Stream,
		DetectionMS:      res.DetectionMS,
		TotalMS:          res.TotalMS,
	})
	if p.observer != nil {
		p.observer.ObserveTurn(status, p.detector.Name(), res.DetectionMS, res.TotalMS, res.EntityCounts)
	}
}

// splitMessages validates the conversation and separates the current user
// message from the prior history.
func splitMessages(messages []core.Message) (string, []core.Message, error) {
	if len(messages) == 0 {
		return "", nil, core.NewInvalidRequestError("no messages in request", nil)
	}
	last := messages[len(messages)-1]
	if last.Role != "user" {
		return "", nil, core.NewInvalidRequestError("last message must have role \"user\"", nil)
	}
	if last.Content == "" {
		return "", nil, core.NewInvalidRequestError("message content is empty", nil)
	}
	return last.Content, messages[:len(messages)-1], nil
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
