package server

import (
	"errors"
	"net/http"
	"sort"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"piiguard/internal/core"
	"piiguard/internal/dataset"
	"piiguard/internal/pipeline"
	"piiguard/internal/providers"
	"piiguard/internal/session"
)

// Handler holds the HTTP handlers and their collaborators.
type Handler struct {
	deps      Deps
	pipelines map[string]*pipeline.Pipeline
}

// NewHandler builds one pipeline per configured detector so a request
// can select its backend with ?detector=.
func NewHandler(deps Deps) *Handler {
	h := &Handler{
		deps:      deps,
		pipelines: make(map[string]*pipeline.Pipeline, len(deps.Detectors)),
	}

	opts := []pipeline.Option{}
	if deps.Retriever != nil {
		opts = append(opts, pipeline.WithRetriever(deps.Retriever))
	}
	if deps.Turns != nil {
		opts = append(opts, pipeline.WithTurnLogger(deps.Turns))
	}
	if deps.Metrics != nil {
		opts = append(opts, pipeline.WithObserver(deps.Metrics))
	}

	for name, det := range deps.Detectors {
		h.pipelines[name] = pipeline.New(det, deps.Provider, deps.Sessions, deps.Pipeline, opts...)
	}
	return h
}

// detectorName resolves the ?detector= query parameter.
func (h *Handler) detectorName(c echo.Context) string {
	if name := c.QueryParam("detector"); name != "" {
		return name
	}
	return h.deps.DefaultDetector
}

type chatRequest struct {
	Messages  []core.Message `json:"messages"`
	SessionID string         `json:"session_id"`
}

// Chat handles POST /api/chat: one streamed pipeline turn.
func (h *Handler) Chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}

	name := h.detectorName(c)
	pipe, ok := h.pipelines[name]
	if !ok {
		return handleError(c, core.NewInvalidRequestError("unknown detector: "+name, nil))
	}

	turn := pipeline.TurnRequest{
		SessionID: req.SessionID,
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
		Messages:  req.Messages,
		Stream:    true,
	}
	if turn.SessionID == "" {
		turn.SessionID = uuid.NewString()
	}

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, "text/plain; charset=utf-8")
	header.Set("X-Session-Id", turn.SessionID)
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	writer := newStreamWriter(c.Response())
	// Failures after this point are already on the wire as error events;
	// the status line is out.
	_, _ = pipe.Execute(c.Request().Context(), turn, writer.emit)
	return nil
}

type analyzeRequest struct {
	Text string `json:"text"`
}

// Analyze handles POST /api/analyze: detector run without a model call.
func (h *Handler) Analyze(c echo.Context) error {
	var req analyzeRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}
	if req.Text == "" {
		return handleError(c, core.NewInvalidRequestError("text is required", nil))
	}

	name := h.detectorName(c)
	detector, ok := h.deps.Detectors[name]
	if !ok {
		return handleError(c, core.NewInvalidRequestError("unknown detector: "+name, nil))
	}

	result := detector.Detect(c.Request().Context(), req.Text)

	stats := make(map[string]int)
	for _, span := range result.Spans {
		stats[string(span.Type)]++
	}

	return c.JSON(http.StatusOK, map[string]any{
		"text":         req.Text,
		"detector":     name,
		"entities":     result.Spans,
		"entity_count": len(result.Spans),
		"entity_stats": stats,
		"elapsed_ms":   result.ElapsedMS,
		"error":        nullableString(result.Err),
	})
}

// Scenarios handles GET /api/scenarios: the golden-set demo scenarios.
func (h *Handler) Scenarios(c echo.Context) error {
	scenarios, err := dataset.Scenarios()
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"scenarios": scenarios})
}

// Employees handles GET /api/employees: directory entries for the UI,
// names only, no sensitive fields.
func (h *Handler) Employees(c echo.Context) error {
	if h.deps.Directory == nil {
		return c.JSON(http.StatusOK, map[string]any{"employees": []any{}})
	}

	employees := h.deps.Directory.Employees()
	out := make([]map[string]string, 0, len(employees))
	for _, e := range employees {
		out = append(out, map[string]string{
			"id":         e.ID,
			"name":       e.Name,
			"department": e.Department,
			"title":      e.Title,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"employees": out})
}

// ClearSession handles DELETE /api/session/:id.
func (h *Handler) ClearSession(c echo.Context) error {
	id := c.Param("id")
	if err := h.deps.Sessions.Delete(c.Request().Context(), id); err != nil && !errors.Is(err, session.ErrNotFound) {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":     "cleared",
		"session_id": id,
	})
}

// Health handles GET /health.
func (h *Handler) Health(c echo.Context) error {
	detectors := make([]string, 0, len(h.deps.Detectors))
	for name := range h.deps.Detectors {
		detectors = append(detectors, name)
	}
	sort.Strings(detectors)

	provider := "unconfigured"
	if h.deps.Provider != nil {
		provider = h.deps.Provider.Name()
		if _, isMock := h.deps.Provider.(*providers.Mock); isMock {
			provider = "demo_mode"
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":    "healthy",
		"provider":  provider,
		"detectors": detectors,
	})
}

// handleError converts guardrail errors to HTTP responses.
func handleError(c echo.Context, err error) error {
	var gerr *core.GuardrailError
	if errors.As(err, &gerr) {
		return c.JSON(gerr.HTTPStatusCode(), gerr.ToJSON())
	}
	return c.JSON(http.StatusInternalServerError, map[string]any{
		"error": map[string]any{
			"type":    "internal_error",
			"message": "an unexpected error occurred",
		},
	})
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
