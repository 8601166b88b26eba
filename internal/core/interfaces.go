package core

import (
	"context"
	"io"
)

// Detector defines the interface for PII detector backends.
type Detector interface {
	// Name returns the backend identifier (e.g. "pattern", "zeroshot", "safety").
	Name() string

	// Detect finds PII entity spans in text. Offsets are byte offsets.
	Detect(ctx context.Context, text string) ([]EntitySpan, error)
}

// Provider defines the interface for model providers.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// ChatCompletion executes a chat completion request
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// StreamChatCompletion returns a raw SSE stream (caller must close)
	StreamChatCompletion(ctx context.Context, req *ChatRequest) (io.ReadCloser, error)
}

// Retriever defines the interface for the retrieval collaborator.
// A retriever failure is never fatal to a turn; the orchestrator
// degrades to an empty context.
type Retriever interface {
	// Retrieve builds context for a query. May return an empty result.
	Retrieve(ctx context.Context, query string) (*RetrievalResult, error)
}

// AvailabilityChecker is an optional interface for detectors and providers
// that need to verify service availability before registration.
type AvailabilityChecker interface {
	// CheckAvailability verifies the backend service is reachable.
	// Returns nil if available, error otherwise.
	CheckAvailability(ctx context.Context) error
}
