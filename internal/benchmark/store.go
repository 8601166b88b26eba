// Package benchmark runs labeled datasets through a detector and
// persists the scored results. Runs are append-only records: once
// written they are read back verbatim, never mutated.
package benchmark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"piiguard/internal/evaluation"
)

// ErrNotFound indicates a requested run was not found.
var ErrNotFound = errors.New("benchmark run not found")

// Run is one persisted benchmark execution.
type Run struct {
	ID        string    `json:"run_id"`
	Detector  string    `json:"detector"`
	Dataset   string    `json:"dataset"`
	Timestamp time.Time `json:"timestamp"`
	CreatedAt int64     `json:"created_at"`

	Summary evaluation.Aggregate    `json:"summary"`
	Cases   []evaluation.CaseResult `json:"cases"`
}

// ResultStore defines persistence for benchmark runs.
type ResultStore interface {
	Save(ctx context.Context, run *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	List(ctx context.Context, limit int, after string) ([]*Run, error)
	Close() error
}

// newRunID builds the run key: timestamp, detector, dataset, plus a
// short random suffix so two runs started the same second don't collide.
func newRunID(ts time.Time, detector, dataset string) string {
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("%s_%s_%s_%s", ts.UTC().Format("20060102T150405"), detector, dataset, suffix)
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 101:
		return 101
	default:
		return limit
	}
}

func cloneRun(src *Run) (*Run, error) {
	if src == nil {
		return nil, fmt.Errorf("run is nil")
	}
	b, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("marshal run: %w", err)
	}
	var dst Run
	if err := json.Unmarshal(b, &dst); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &dst, nil
}

func serializeRun(run *Run) ([]byte, error) {
	if run == nil {
		return nil, fmt.Errorf("run is nil")
	}
	b, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("marshal run: %w", err)
	}
	return b, nil
}

func deserializeRun(raw []byte) (*Run, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty run payload")
	}
	var run Run
	if err := json.Unmarshal(raw, &run); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &run, nil
}
