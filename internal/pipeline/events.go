package pipeline

import (
	"piiguard/internal/anonymizer"
	"piiguard/internal/core"
)

// EventType tags turn events for the transport layer.
type EventType string

const (
	// EventPIIAnalysis carries the detection summary after anonymization.
	EventPIIAnalysis EventType = "pii_analysis"
	// EventText carries one restored chunk of the model reply.
	EventText EventType = "text"
	// EventWarning carries a non-fatal degradation notice.
	EventWarning EventType = "warning"
	// EventError carries the typed failure of a failed turn.
	EventError EventType = "error"
	// EventCompletion closes the turn with timing metrics.
	EventCompletion EventType = "completion"
)

// Event is one unit of the per-turn event stream. Text is set for
// EventText; Data for the structured event types.
type Event struct {
	Type EventType
	Text string
	Data map[string]any
}

// EmitFunc consumes events in emission order.
type EmitFunc func(Event)

func piiAnalysisEvent(
	req TurnRequest,
	detector string,
	detection core.DetectionResult,
	anonymized anonymizer.Result,
	retrieval core.RetrievalResult,
	userMessage string,
	res *TurnResult,
) Event {
	stats := make(map[string]int, len(anonymized.Counts))
	for t, n := range anonymized.Counts {
		stats[string(t)] = n
	}

	var detectorError any
	if detection.Err != "" {
		detectorError = detection.Err
	}
	var ragContext any
	if retrieval.Context != "" {
		ragContext = retrieval.Context
	}

	return Event{
		Type: EventPIIAnalysis,
		Data: map[string]any{
			"type":              string(EventPIIAnalysis),
			"session_id":        req.SessionID,
			"detector":          detector,
			"detector_error":    detectorError,
			"mapping":           res.Mapping,
			"entities_found":    detection.Spans,
			"entity_stats":      stats,
			"original_prompt":   userMessage,
			"anonymized_prompt": res.AnonymizedPrompt,
			"rag_context":       ragContext,
			"retrieval_type":    retrieval.RetrievalType,
			"employee_count":    retrieval.EmployeeCount,
			"metrics": map[string]any{
				"retrieval_time_ms":     res.RetrievalMS,
				"anonymization_time_ms": res.DetectionMS,
			},
		},
	}
}

func completionEvent(res *TurnResult) Event {
	return Event{
		Type: EventCompletion,
		Data: map[string]any{
			"type": string(EventCompletion),
			"metrics": map[string]any{
				"retrieval_time_ms": res.RetrievalMS,
				"detection_time_ms": res.DetectionMS,
				"llm_time_ms":       res.ModelMS,
				"total_time_ms":     res.TotalMS,
			},
		},
	}
}
