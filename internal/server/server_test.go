package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piiguard/internal/benchmark"
	"piiguard/internal/core"
	"piiguard/internal/dataset"
	"piiguard/internal/evaluation"
	"piiguard/internal/pipeline"
	"piiguard/internal/providers"
	"piiguard/internal/retrieval"
	"piiguard/internal/session"
)

// literalDetector flags every occurrence of each configured literal.
type literalDetector struct {
	entities map[string]core.EntityType
}

func (d *literalDetector) Name() string { return "literal" }

func (d *literalDetector) Detect(_ context.Context, text string) core.DetectionResult {
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
				Text: literal, Confidence: 0.9,
			})
			from = start + len(literal)
		}
	}
	return core.DetectionResult{Spans: spans, ElapsedMS: 1}
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()

	directory, err := retrieval.NewDirectoryFromFile("")
	require.NoError(t, err)

	evaluator, err := evaluation.NewEvaluator(evaluation.PassModeZeroFN, 0)
	require.NoError(t, err)

	mgr := session.NewManager(session.NewMemoryStore(time.Hour))
	t.Cleanup(func() { _ = mgr.Close() })

	deps := Deps{
		Detectors: map[string]pipeline.Detector{
			"literal": &literalDetector{entities: map[string]core.EntityType{
				"Alice Chen":              core.EntityPerson,
				"alice.chen@acmecorp.com": core.EntityEmail,
			}},
		},
		DefaultDetector: "literal",
		Provider:        providers.NewMock(),
		Sessions:        mgr,
		Retriever:       directory,
		Directory:       directory,
		Datasets:        dataset.NewStore("", nil),
		Results:         benchmark.NewMemoryStore(),
		Evaluator:       evaluator,
		BenchWorkers:    2,
		Pipeline:        pipeline.Config{Model: "mock"},
	}
	return New(deps, cfg)
}

func doJSON(t *testing.T, srv *Server, method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, Config{})
	rec := doJSON(t, srv, http.MethodGet, "/health", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "demo_mode", body["provider"])
}

func TestAuthMiddleware(t *testing.T) {
	srv := newTestServer(t, Config{MasterKey: "sekrit"})

	// Health skips auth.
	rec := doJSON(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"wrong key", "Bearer nope", http.StatusUnauthorized},
		{"correct key", "Bearer sekrit", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			rec := doJSON(t, srv, http.MethodGet, "/api/employees", "", headers)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAnalyze(t *testing.T) {
	srv := newTestServer(t, Config{})
	rec := doJSON(t, srv, http.MethodPost, "/api/analyze",
		`{"text": "Contact Alice Chen at alice.chen@acmecorp.com"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Detector    string            `json:"detector"`
		EntityCount int               `json:"entity_count"`
		EntityStats map[string]int    `json:"entity_stats"`
		Entities    []core.EntitySpan `json:"entities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "literal", body.Detector)
	assert.Equal(t, 2, body.EntityCount)
	assert.Equal(t, 1, body.EntityStats["PERSON"])
	assert.Equal(t, 1, body.EntityStats["EMAIL_ADDRESS"])
}

func TestAnalyzeUnknownDetector(t *testing.T) {
	srv := newTestServer(t, Config{})
	rec := doJSON(t, srv, http.MethodPost, "/api/analyze?detector=nope", `{"text": "hi"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatStream(t *testing.T) {
	srv := newTestServer(t, Config{})
	rec := doJSON(t, srv, http.MethodPost, "/api/chat",
		`{"messages": [{"role": "user", "content": "Find the email address for Alice Chen"}]}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Session-Id"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	var textChunks, dataEvents int
	var restored strings.Builder
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "0:"):
			textChunks++
			var s string
			require.NoError(t, json.Unmarshal([]byte(line[2:]), &s))
			restored.WriteString(s)
		case strings.HasPrefix(line, "2:"):
			dataEvents++
		default:
			t.Errorf("unexpected stream line: %q", line)
		}
	}
	assert.Greater(t, textChunks, 0, "no text chunks streamed")
	// pii_analysis + completion at minimum.
	assert.GreaterOrEqual(t, dataEvents, 2)

	// Placeholders must be restored before delivery.
	out := restored.String()
	assert.NotContains(t, out, "<PERSON_1>")
	assert.NotContains(t, out, "<EMAIL_ADDRESS_1>")
	assert.Contains(t, out, "Alice Chen")
}

func TestChatSessionIDRoundTrip(t *testing.T) {
	srv := newTestServer(t, Config{})
	rec := doJSON(t, srv, http.MethodPost, "/api/chat",
		`{"messages": [{"role": "user", "content": "hello"}], "session_id": "sess-42"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sess-42", rec.Header().Get("X-Session-Id"))
}

func TestScenarios(t *testing.T) {
	srv := newTestServer(t, Config{})
	rec := doJSON(t, srv, http.MethodGet, "/api/scenarios", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Scenarios []map[string]any `json:"scenarios"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Scenarios, 20)
}

func TestEmployees(t *testing.T) {
	srv := newTestServer(t, Config{})
	rec := doJSON(t, srv, http.MethodGet, "/api/employees", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Employees []map[string]string `json:"employees"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Employees)

	first := body.Employees[0]
	assert.NotEmpty(t, first["id"])
	assert.NotEmpty(t, first["name"])
	// No sensitive fields in the listing.
	_, hasSalary := first["salary"]
	assert.False(t, hasSalary)
}

func TestClearSession(t *testing.T) {
	srv := newTestServer(t, Config{})

	// Establish a session first.
	rec := doJSON(t, srv, http.MethodPost, "/api/chat",
		`{"messages": [{"role": "user", "content": "who is Alice Chen"}], "session_id": "sess-del"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodDelete, "/api/session/sess-del", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "cleared", body["status"])
	assert.Equal(t, "sess-del", body["session_id"])

	// Deleting an absent session is not an error.
	rec = doJSON(t, srv, http.MethodDelete, "/api/session/never-existed", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBenchmarkEndpoints(t *testing.T) {
	srv := newTestServer(t, Config{})

	rec := doJSON(t, srv, http.MethodGet, "/api/benchmark/datasets", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var datasets struct {
		Datasets []dataset.Info `json:"datasets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &datasets))
	require.Len(t, datasets.Datasets, 1)
	assert.Equal(t, dataset.GoldenName, datasets.Datasets[0].Name)

	// Run over a slice of the golden set.
	rec = doJSON(t, srv, http.MethodPost, "/api/benchmark/run",
		`{"detector": "literal", "dataset": "golden_hr", "limit": 3}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var runResp struct {
		Status  string               `json:"status"`
		RunID   string               `json:"run_id"`
		Summary evaluation.Aggregate `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runResp))
	assert.Equal(t, "completed", runResp.Status)
	assert.NotEmpty(t, runResp.RunID)
	assert.Equal(t, 3, runResp.Summary.TotalCases)

	// The run shows up in the index.
	rec = doJSON(t, srv, http.MethodGet, "/api/benchmark/results", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Results []map[string]any `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Results, 1)
	assert.Equal(t, runResp.RunID, list.Results[0]["run_id"])

	// Full fetch by id.
	rec = doJSON(t, srv, http.MethodGet, "/api/benchmark/results/"+runResp.RunID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var full benchmark.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &full))
	assert.Len(t, full.Cases, 3)

	// Compare a run with itself: no winners.
	rec = doJSON(t, srv, http.MethodPost, "/api/benchmark/compare",
		`{"run_id_1": "`+runResp.RunID+`", "run_id_2": "`+runResp.RunID+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var cmp benchmark.Comparison
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cmp))
	assert.Equal(t, runResp.RunID, cmp.Run1ID)
	for metric, mc := range cmp.Overall {
		assert.InDelta(t, 0, mc.Diff, 1e-9, metric)
	}
}

func TestBenchmarkRunUnknownDataset(t *testing.T) {
	srv := newTestServer(t, Config{})
	rec := doJSON(t, srv, http.MethodPost, "/api/benchmark/run",
		`{"detector": "literal", "dataset": "missing"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBenchmarkResultNotFound(t *testing.T) {
	srv := newTestServer(t, Config{})
	rec := doJSON(t, srv, http.MethodGet, "/api/benchmark/results/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
