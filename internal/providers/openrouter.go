// Package providers implements the model collaborators the pipeline can
// talk to: OpenRouter for real completions and a mock provider for demo
// mode. Providers only ever receive anonymized text.
package providers

import (
	"context"
	"io"
	"net/http"

	"piiguard/internal/core"
	"piiguard/internal/pkg/llmclient"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouter implements core.Provider against the OpenRouter
// OpenAI-compatible chat completions API.
type OpenRouter struct {
	client  *llmclient.Client
	apiKey  string
	referer string
	title   string
}

// OpenRouterOption configures an OpenRouter provider.
type OpenRouterOption func(*OpenRouter)

// WithHTTPClient replaces the underlying HTTP client (used in tests).
func WithHTTPClient(httpClient *http.Client) OpenRouterOption {
	return func(p *OpenRouter) {
		p.client = llmclient.NewWithHTTPClient(httpClient, llmclient.DefaultConfig("openrouter", openRouterBaseURL), p.setHeaders)
	}
}

// WithAttribution sets the HTTP-Referer and X-Title headers OpenRouter
// uses for app attribution.
func WithAttribution(referer, title string) OpenRouterOption {
	return func(p *OpenRouter) {
		p.referer = referer
		p.title = title
	}
}

// NewOpenRouter creates an OpenRouter provider.
func NewOpenRouter(apiKey string, opts ...OpenRouterOption) *OpenRouter {
	p := &OpenRouter{
		apiKey:  apiKey,
		referer: "http://localhost:3000",
		title:   "PII Guardrail",
	}
	p.client = llmclient.New(llmclient.DefaultConfig("openrouter", openRouterBaseURL), p.setHeaders)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *OpenRouter) Name() string {
	return "openrouter"
}

// SetBaseURL allows configuring a custom base URL for the provider.
func (p *OpenRouter) SetBaseURL(url string) {
	p.client.SetBaseURL(url)
}

func (p *OpenRouter) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	if p.referer != "" {
		req.Header.Set("HTTP-Referer", p.referer)
	}
	if p.title != "" {
		req.Header.Set("X-Title", p.title)
	}
	if requestID := core.GetRequestID(req.Context()); requestID != "" {
		req.Header.Set("X-Request-Id", requestID)
	}
}

// ChatCompletion sends a non-streaming chat completion request.
func (p *OpenRouter) ChatCompletion(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	var resp core.ChatResponse
	err := p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     req,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	return &resp, nil
}

// StreamChatCompletion returns a raw SSE response body (caller must close).
func (p *OpenRouter) StreamChatCompletion(ctx context.Context, req *core.ChatRequest) (io.ReadCloser, error) {
	return p.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     req.WithStreaming(),
	})
}
