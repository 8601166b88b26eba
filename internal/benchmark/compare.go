package benchmark

import (
	"piiguard/internal/core"
)

// MetricComparison pits one metric of two runs against each other.
type MetricComparison struct {
	Run1   float64 `json:"run1"`
	Run2   float64 `json:"run2"`
	Diff   float64 `json:"diff"`
	Winner string  `json:"winner"`
}

// Comparison is the result of comparing two benchmark runs.
type Comparison struct {
	Run1ID    string `json:"run1_id"`
	Run2ID    string `json:"run2_id"`
	Detector1 string `json:"detector1"`
	Detector2 string `json:"detector2"`
	Dataset1  string `json:"dataset1"`
	Dataset2  string `json:"dataset2"`

	Overall map[string]MetricComparison `json:"overall"`

	// ByEntityType compares per-type F1.
	ByEntityType map[core.EntityType]MetricComparison `json:"by_entity_type"`
}

// Compare builds a per-metric comparison of two runs. For accuracy
// metrics higher wins; for latency and leakage lower wins.
func Compare(a, b *Run) *Comparison {
	higher := func(v1, v2 float64) string {
		if v1 > v2 {
			return a.Detector
		}
		return b.Detector
	}
	lower := func(v1, v2 float64) string {
		if v1 < v2 {
			return a.Detector
		}
		return b.Detector
	}

	cmp := &Comparison{
		Run1ID:       a.ID,
		Run2ID:       b.ID,
		Detector1:    a.Detector,
		Detector2:    b.Detector,
		Dataset1:     a.Dataset,
		Dataset2:     b.Dataset,
		Overall:      make(map[string]MetricComparison),
		ByEntityType: make(map[core.EntityType]MetricComparison),
	}

	cmp.Overall["precision"] = MetricComparison{
		Run1: a.Summary.Precision, Run2: b.Summary.Precision,
		Diff:   b.Summary.Precision - a.Summary.Precision,
		Winner: higher(a.Summary.Precision, b.Summary.Precision),
	}
	cmp.Overall["recall"] = MetricComparison{
		Run1: a.Summary.Recall, Run2: b.Summary.Recall,
		Diff:   b.Summary.Recall - a.Summary.Recall,
		Winner: higher(a.Summary.Recall, b.Summary.Recall),
	}
	cmp.Overall["f1"] = MetricComparison{
		Run1: a.Summary.F1, Run2: b.Summary.F1,
		Diff:   b.Summary.F1 - a.Summary.F1,
		Winner: higher(a.Summary.F1, b.Summary.F1),
	}
	cmp.Overall["latency_p50"] = MetricComparison{
		Run1: a.Summary.Latency.P50MS, Run2: b.Summary.Latency.P50MS,
		Diff:   b.Summary.Latency.P50MS - a.Summary.Latency.P50MS,
		Winner: lower(a.Summary.Latency.P50MS, b.Summary.Latency.P50MS),
	}
	cmp.Overall["leakage_rate"] = MetricComparison{
		Run1: a.Summary.LeakageRate, Run2: b.Summary.LeakageRate,
		Diff:   b.Summary.LeakageRate - a.Summary.LeakageRate,
		Winner: lower(a.Summary.LeakageRate, b.Summary.LeakageRate),
	}

	types := make(map[core.EntityType]bool)
	for t := range a.Summary.EntityMetrics {
		types[t] = true
	}
	for t := range b.Summary.EntityMetrics {
		types[t] = true
	}
	for t := range types {
		var f1a, f1b float64
		if m := a.Summary.EntityMetrics[t]; m != nil {
			f1a = m.F1
		}
		if m := b.Summary.EntityMetrics[t]; m != nil {
			f1b = m.F1
		}
		cmp.ByEntityType[t] = MetricComparison{
			Run1: f1a, Run2: f1b,
			Diff:   f1b - f1a,
			Winner: higher(f1a, f1b),
		}
	}

	return cmp
}
