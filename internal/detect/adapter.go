package detect

import (
	"context"
	"log/slog"
	"time"

	"piiguard/internal/core"
)

// AdapterConfig controls the fail-closed adapter wrapping a backend.
type AdapterConfig struct {
	// Timeout bounds a single backend call. Zero means no extra deadline.
	Timeout time.Duration
	// ConfidenceThreshold drops spans below it when > 0.
	ConfidenceThreshold float64
	// CacheSize enables a bounded result cache when > 0.
	CacheSize int
}

// Adapter normalizes detector backends for the pipeline and benchmark
// runner. It fails closed: a backend error never propagates, it yields an
// empty span list plus the captured error string, and the caller decides
// whether an empty result may pass through.
type Adapter struct {
	backend core.Detector
	cfg     AdapterConfig
	cache   *resultCache
	logger  *slog.Logger
}

// NewAdapter wraps a backend detector.
func NewAdapter(backend core.Detector, cfg AdapterConfig, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		backend: backend,
		cfg:     cfg,
		cache:   newResultCache(cfg.CacheSize),
		logger:  logger,
	}
}

// Name returns the wrapped backend's name.
func (a *Adapter) Name() string { return a.backend.Name() }

// Detect runs the backend and normalizes the outcome. The input text is
// never mutated; structurally invalid spans are filtered out.
func (a *Adapter) Detect(ctx context.Context, text string) core.DetectionResult {
	start := time.Now()

	var key uint64
	if a.cache != nil {
		key = cacheKey(a.backend.Name(), text)
		if spans, ok := a.cache.get(key); ok {
			return core.DetectionResult{Spans: spans, ElapsedMS: elapsedMS(start)}
		}
	}

	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	spans, err := a.backend.Detect(ctx, text)
	if err != nil {
		// Fail closed: report no spans and carry the error string so the
		// turn records why detection was empty.
		a.logger.Warn("detector backend failed, returning empty result",
			"detector", a.backend.Name(),
			"error", err)
		return core.DetectionResult{
			Spans:     []core.EntitySpan{},
			ElapsedMS: elapsedMS(start),
			Err:       err.Error(),
		}
	}

	filtered := make([]core.EntitySpan, 0, len(spans))
	for _, s := range spans {
		if !s.ValidIn(len(text)) {
			a.logger.Warn("dropping invalid span from detector",
				"detector", a.backend.Name(),
				"start", s.Start, "end", s.End, "text_len", len(text))
			continue
		}
		if a.cfg.ConfidenceThreshold > 0 && s.Confidence < a.cfg.ConfidenceThreshold {
			continue
		}
		if s.Text == "" {
			s.Text = text[s.Start:s.End]
		}
		filtered = append(filtered, s)
	}

	if a.cache != nil {
		a.cache.put(key, filtered)
	}

	return core.DetectionResult{Spans: filtered, ElapsedMS: elapsedMS(start)}
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
