package core

// EntityType classifies a detected piece of personally identifiable information.
type EntityType string

const (
	EntityPerson     EntityType = "PERSON"
	EntityEmail      EntityType = "EMAIL_ADDRESS"
	EntityPhone      EntityType = "PHONE_NUMBER"
	EntityCreditCard EntityType = "CREDIT_CARD"
	EntityUSSSN      EntityType = "US_SSN"
	EntityDateTime   EntityType = "DATE_TIME"
	EntityLocation   EntityType = "LOCATION"
	EntityIBAN       EntityType = "IBAN_CODE"
	EntityBankNumber EntityType = "US_BANK_NUMBER"
	EntitySalary     EntityType = "SALARY"
)

// KnownEntityTypes lists the entity types the built-in detectors emit,
// in a stable order for reporting.
var KnownEntityTypes = []EntityType{
	EntityPerson,
	EntityEmail,
	EntityPhone,
	EntityCreditCard,
	EntityUSSSN,
	EntityDateTime,
	EntityLocation,
	EntityIBAN,
	EntityBankNumber,
	EntitySalary,
}

// EntitySpan is one detected entity occurrence.
// Start and End are byte offsets into the UTF-8 source text, half-open [Start, End).
type EntitySpan struct {
	Type       EntityType `json:"entity_type"`
	Start      int        `json:"start"`
	End        int        `json:"end"`
	Text       string     `json:"text"`
	Confidence float64    `json:"confidence"`
}

// ValidIn reports whether the span's offsets are structurally valid
// for a text of the given byte length.
func (s EntitySpan) ValidIn(textLen int) bool {
	return s.Start >= 0 && s.Start < s.End && s.End <= textLen
}

// Overlaps reports whether two spans share at least one byte.
func (s EntitySpan) Overlaps(other EntitySpan) bool {
	return s.Start < other.End && other.Start < s.End
}

// DetectionResult is the fail-closed output of a detector adapter call.
// A backend failure yields empty Spans and a non-empty Err string.
type DetectionResult struct {
	Spans     []EntitySpan `json:"spans"`
	ElapsedMS float64      `json:"elapsed_ms"`
	Err       string       `json:"error,omitempty"`
}

// Message represents a single message in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a chat completion request sent to a model provider.
type ChatRequest struct {
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream,omitempty"`
}

// WithStreaming returns a shallow copy of the request with Stream set to true.
// This avoids mutating the caller's request object.
func (r *ChatRequest) WithStreaming() *ChatRequest {
	return &ChatRequest{
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
		Model:       r.Model,
		Messages:    r.Messages,
		Stream:      true,
	}
}

// ChatResponse represents a non-streaming chat completion response.
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
	Created int64    `json:"created"`
}

// Choice represents a single completion choice.
type Choice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
	Index        int     `json:"index"`
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamChunk is one unit of streamed model output.
// Err is non-nil only on the terminal chunk of a failed stream.
type StreamChunk struct {
	Text string
	Err  error
}

// RetrievalResult is the context produced by the retrieval collaborator.
type RetrievalResult struct {
	Context       string `json:"context"`
	EmployeeCount int    `json:"employee_count"`
	RetrievalType string `json:"retrieval_type"`
}
