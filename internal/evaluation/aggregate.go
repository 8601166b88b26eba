package evaluation

import (
	"sort"

	"piiguard/internal/core"
)

// EntityMetrics is the per-entity-type breakdown across a whole run.
type EntityMetrics struct {
	EntityType     core.EntityType `json:"entity_type"`
	TruePositives  int             `json:"true_positives"`
	FalsePositives int             `json:"false_positives"`
	FalseNegatives int             `json:"false_negatives"`
	TotalExpected  int             `json:"total_expected"`
	TotalDetected  int             `json:"total_detected"`
	Precision      float64         `json:"precision"`
	Recall         float64         `json:"recall"`
	F1             float64         `json:"f1_score"`
	AvgConfidence  float64         `json:"avg_confidence"`
	AvgLatencyMS   float64         `json:"avg_latency_ms"`
}

// LatencyStats summarizes per-case wall-clock latencies.
type LatencyStats struct {
	P50MS  float64 `json:"p50_ms"`
	P95MS  float64 `json:"p95_ms"`
	P99MS  float64 `json:"p99_ms"`
	MeanMS float64 `json:"mean_ms"`
}

// Aggregate is the dataset-wide scoring for one detector run.
type Aggregate struct {
	TotalCases  int     `json:"total_cases"`
	PassedCases int     `json:"passed_cases"`
	FailedCases int     `json:"failed_cases"`
	PassRate    float64 `json:"pass_rate"`

	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`

	// LeakageRate is span-count based: the fraction of expected spans
	// that ended up as false negatives. It is tracked apart from F1
	// because a detector with a decent F1 can still leak an absolute
	// fraction of sensitive spans.
	LeakageRate float64 `json:"leakage_rate"`

	// FalseRefusalRate is the fraction of cases expecting no entities
	// where the detector nonetheless flagged something.
	FalseRefusalRate float64 `json:"false_refusal_rate"`

	Latency LatencyStats `json:"latency"`

	// ConfidenceHistogram buckets every detected span's confidence
	// into ten equal-width bins over [0,1].
	ConfidenceHistogram [10]int `json:"confidence_histogram"`

	EntityMetrics map[core.EntityType]*EntityMetrics `json:"entity_metrics"`
}

// Aggregate folds individual case results into run-wide metrics.
func (ev *Evaluator) Aggregate(results []CaseResult) Aggregate {
	agg := Aggregate{
		TotalCases:    len(results),
		EntityMetrics: make(map[core.EntityType]*EntityMetrics),
	}

	perType := func(t core.EntityType) *EntityMetrics {
		m, ok := agg.EntityMetrics[t]
		if !ok {
			m = &EntityMetrics{EntityType: t}
			agg.EntityMetrics[t] = m
		}
		return m
	}

	var totalTP, totalFP, totalFN int
	var latencies, confidences []float64
	var safeCases, falseRefusals int
	confSums := make(map[core.EntityType]float64)
	latSums := make(map[core.EntityType]float64)
	latCounts := make(map[core.EntityType]int)

	for _, r := range results {
		if r.Passed {
			agg.PassedCases++
		}
		latencies = append(latencies, r.LatencyMS)

		if len(r.Expected) == 0 {
			safeCases++
			if len(r.FalsePositives) > 0 {
				falseRefusals++
			}
		}

		for _, pair := range r.TruePositives {
			totalTP++
			m := perType(pair.Detected.Type)
			m.TruePositives++
			confSums[pair.Detected.Type] += pair.Detected.Confidence
			latSums[pair.Detected.Type] += r.LatencyMS
			latCounts[pair.Detected.Type]++
			confidences = append(confidences, pair.Detected.Confidence)
		}
		for _, s := range r.FalsePositives {
			totalFP++
			perType(s.Type).FalsePositives++
			confidences = append(confidences, s.Confidence)
		}
		for _, s := range r.FalseNegatives {
			totalFN++
			perType(s.Type).FalseNegatives++
		}
		for _, s := range r.Expected {
			perType(s.Type).TotalExpected++
		}
		for _, s := range r.Detected {
			perType(s.Type).TotalDetected++
		}
	}

	agg.FailedCases = agg.TotalCases - agg.PassedCases
	if agg.TotalCases > 0 {
		agg.PassRate = float64(agg.PassedCases) / float64(agg.TotalCases)
	}

	agg.Precision = ratio(totalTP, totalTP+totalFP)
	agg.Recall = ratio(totalTP, totalTP+totalFN)
	if agg.Precision+agg.Recall > 0 {
		agg.F1 = 2 * agg.Precision * agg.Recall / (agg.Precision + agg.Recall)
	}
	agg.LeakageRate = ratio(totalFN, totalTP+totalFN)
	agg.FalseRefusalRate = ratio(falseRefusals, safeCases)

	for t, m := range agg.EntityMetrics {
		m.Precision = ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
		m.Recall = ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		if m.TruePositives > 0 {
			m.AvgConfidence = confSums[t] / float64(m.TruePositives)
		}
		if latCounts[t] > 0 {
			m.AvgLatencyMS = latSums[t] / float64(latCounts[t])
		}
	}

	sort.Float64s(latencies)
	agg.Latency = LatencyStats{
		P50MS:  Percentile(latencies, 50),
		P95MS:  Percentile(latencies, 95),
		P99MS:  Percentile(latencies, 99),
		MeanMS: mean(latencies),
	}

	for _, c := range confidences {
		bucket := int(c * 10)
		if bucket > 9 {
			bucket = 9
		}
		if bucket < 0 {
			bucket = 0
		}
		agg.ConfidenceHistogram[bucket]++
	}

	return agg
}

// Percentile computes the p-th percentile of sorted data using linear
// interpolation between closest ranks. Empty data yields 0.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	k := float64(len(sorted)-1) * p / 100
	f := int(k)
	c := f + 1
	if c >= len(sorted) {
		return sorted[f]
	}
	return sorted[f] + (k-float64(f))*(sorted[c]-sorted[f])
}

func mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
