package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"piiguard/internal/benchmark"
	"piiguard/internal/core"
)

// ListDatasets handles GET /api/benchmark/datasets.
func (h *Handler) ListDatasets(c echo.Context) error {
	if h.deps.Datasets == nil {
		return c.JSON(http.StatusOK, map[string]any{"datasets": []any{}})
	}
	infos, err := h.deps.Datasets.List(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"datasets": infos})
}

type benchmarkRequest struct {
	Detector string `json:"detector"`
	Dataset  string `json:"dataset"`
	Limit    int    `json:"limit"`
}

// RunBenchmark handles POST /api/benchmark/run: runs the named detector
// over the named dataset and persists the result.
func (h *Handler) RunBenchmark(c echo.Context) error {
	var req benchmarkRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}
	if req.Dataset == "" {
		return handleError(c, core.NewInvalidRequestError("dataset is required", nil))
	}

	detector, ok := h.deps.Detectors[req.Detector]
	if !ok {
		return handleError(c, core.NewInvalidRequestError("unknown detector: "+req.Detector, nil))
	}
	if h.deps.Datasets == nil || h.deps.Evaluator == nil {
		return handleError(c, core.NewEvaluationError("benchmarking is not configured", nil))
	}

	ds, err := h.deps.Datasets.Load(c.Request().Context(), req.Dataset)
	if err != nil {
		return handleError(c, err)
	}
	if req.Limit > 0 && req.Limit < len(ds.Cases) {
		ds.Cases = ds.Cases[:req.Limit]
	}

	runner := benchmark.NewRunner(h.deps.Evaluator, h.deps.Results, h.deps.BenchWorkers, nil)
	run, err := runner.Run(c.Request().Context(), detector, ds)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":         "completed",
		"run_id":         run.ID,
		"detector":       run.Detector,
		"dataset":        run.Dataset,
		"summary":        run.Summary,
		"entity_metrics": run.Summary.EntityMetrics,
	})
}

// ListResults handles GET /api/benchmark/results with cursor pagination.
func (h *Handler) ListResults(c echo.Context) error {
	if h.deps.Results == nil {
		return c.JSON(http.StatusOK, map[string]any{"results": []any{}})
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return handleError(c, core.NewInvalidRequestError("invalid limit: "+raw, err))
		}
		limit = n
	}

	runs, err := h.deps.Results.List(c.Request().Context(), limit, c.QueryParam("after"))
	if err != nil {
		if errors.Is(err, benchmark.ErrNotFound) {
			return handleError(c, core.NewNotFoundError("cursor not found: "+c.QueryParam("after")))
		}
		return handleError(c, err)
	}

	results := make([]map[string]any, 0, len(runs))
	for _, run := range runs {
		results = append(results, map[string]any{
			"run_id":       run.ID,
			"detector":     run.Detector,
			"dataset":      run.Dataset,
			"timestamp":    run.Timestamp,
			"total_cases":  run.Summary.TotalCases,
			"passed_cases": run.Summary.PassedCases,
			"overall_f1":   run.Summary.F1,
			"leakage_rate": run.Summary.LeakageRate,
			"latency_p50":  run.Summary.Latency.P50MS,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"results": results})
}

// GetResult handles GET /api/benchmark/results/:id: the full run record
// including per-case results.
func (h *Handler) GetResult(c echo.Context) error {
	if h.deps.Results == nil {
		return handleError(c, core.NewNotFoundError("benchmark result not found: "+c.Param("id")))
	}
	run, err := h.deps.Results.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, benchmark.ErrNotFound) {
			return handleError(c, core.NewNotFoundError("benchmark result not found: "+c.Param("id")))
		}
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, run)
}

type compareRequest struct {
	RunID1 string `json:"run_id_1"`
	RunID2 string `json:"run_id_2"`
}

// CompareResults handles POST /api/benchmark/compare.
func (h *Handler) CompareResults(c echo.Context) error {
	var req compareRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}
	if req.RunID1 == "" || req.RunID2 == "" {
		return handleError(c, core.NewInvalidRequestError("run_id_1 and run_id_2 are required", nil))
	}
	if h.deps.Results == nil {
		return handleError(c, core.NewNotFoundError("benchmark result not found: "+req.RunID1))
	}

	run1, err := h.deps.Results.Get(c.Request().Context(), req.RunID1)
	if err != nil {
		if errors.Is(err, benchmark.ErrNotFound) {
			return handleError(c, core.NewNotFoundError("benchmark result not found: "+req.RunID1))
		}
		return handleError(c, err)
	}
	run2, err := h.deps.Results.Get(c.Request().Context(), req.RunID2)
	if err != nil {
		if errors.Is(err, benchmark.ErrNotFound) {
			return handleError(c, core.NewNotFoundError("benchmark result not found: "+req.RunID2))
		}
		return handleError(c, err)
	}

	return c.JSON(http.StatusOK, benchmark.Compare(run1, run2))
}
