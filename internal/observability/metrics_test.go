package observability

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"piiguard/internal/core"
)

func TestObserveTurn(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.ObserveTurn("delivered", "pattern", 12.5, 840.0, map[core.EntityType]int{
		core.EntityPerson: 2,
		core.EntityEmail:  1,
	})
	m.ObserveTurn("failed", "pattern", 5.0, 100.0, nil)

	if got := testutil.ToFloat64(m.turnsTotal.WithLabelValues("delivered", "pattern")); got != 1 {
		t.Errorf("delivered turns = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.turnsTotal.WithLabelValues("failed", "pattern")); got != 1 {
		t.Errorf("failed turns = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.entitiesDetected.WithLabelValues("pattern", "PERSON")); got != 2 {
		t.Errorf("person entities = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.entitiesDetected.WithLabelValues("pattern", "EMAIL_ADDRESS")); got != 1 {
		t.Errorf("email entities = %v, want 1", got)
	}
}

func TestHandlerExposition(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.ObserveTurn("delivered", "zeroshot", 20.0, 500.0, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"piiguard_turns_total",
		"piiguard_detection_latency_seconds",
		"piiguard_turn_duration_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %s", want)
		}
	}
}
