// Package evaluation scores detector output against labeled ground truth.
// Matching is span-level: a detected span counts as a true positive when
// its entity type matches an expected span and the two overlap by at
// least one byte, each side consumed at most once.
package evaluation

import (
	"fmt"
	"sort"

	"piiguard/internal/core"
)

// Pass modes for individual cases.
const (
	// PassModeZeroFN passes a case only when no expected span was missed.
	PassModeZeroFN = "zero_fn"

	// PassModeF1Threshold passes a case when its F1 meets the threshold.
	PassModeF1Threshold = "f1_threshold"
)

// MatchPair couples a detected span with the expected span it satisfied.
type MatchPair struct {
	Detected core.EntitySpan `json:"detected"`
	Expected core.EntitySpan `json:"expected"`
}

// CaseResult is the scored outcome of one benchmark case. It is built
// once and never mutated afterwards.
type CaseResult struct {
	CaseID   string            `json:"case_id"`
	Query    string            `json:"query"`
	Detected []core.EntitySpan `json:"detected_entities"`
	Expected []core.EntitySpan `json:"expected_entities"`

	TruePositives  []MatchPair       `json:"true_positives"`
	FalsePositives []core.EntitySpan `json:"false_positives"`
	FalseNegatives []core.EntitySpan `json:"false_negatives"`

	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`

	LatencyMS float64 `json:"latency_ms"`
	Passed    bool    `json:"passed"`
	Error     string  `json:"error,omitempty"`
}

// Evaluator scores cases under a configured pass mode.
type Evaluator struct {
	passMode    string
	f1Threshold float64
}

// NewEvaluator creates an evaluator. An empty passMode defaults to
// zero_fn; the threshold only applies in f1_threshold mode.
func NewEvaluator(passMode string, f1Threshold float64) (*Evaluator, error) {
	switch passMode {
	case "":
		passMode = PassModeZeroFN
	case PassModeZeroFN, PassModeF1Threshold:
	default:
		return nil, core.NewEvaluationError(fmt.Sprintf("unknown pass mode: %s", passMode), nil)
	}
	return &Evaluator{passMode: passMode, f1Threshold: f1Threshold}, nil
}

// Match partitions detected spans against expected spans into true
// positives, false positives, and false negatives.
//
// Detected spans are considered in ascending start order and each
// claims the earliest unmatched expected span of the same type that it
// overlaps. Matching is one-to-one: a claimed expected span is not
// available to later detected spans.
func Match(detected, expected []core.EntitySpan) (tp []MatchPair, fp, fn []core.EntitySpan) {
	det := make([]core.EntitySpan, len(detected))
	copy(det, detected)
	sort.SliceStable(det, func(i, j int) bool { return det[i].Start < det[j].Start })

	exp := make([]core.EntitySpan, len(expected))
	copy(exp, expected)
	sort.SliceStable(exp, func(i, j int) bool { return exp[i].Start < exp[j].Start })

	claimed := make([]bool, len(exp))

	for _, d := range det {
		matched := false
		for i, e := range exp {
			if claimed[i] || d.Type != e.Type {
				continue
			}
			if d.Start < e.End && e.Start < d.End {
				tp = append(tp, MatchPair{Detected: d, Expected: e})
				claimed[i] = true
				matched = true
				break
			}
		}
		if !matched {
			fp = append(fp, d)
		}
	}

	for i, e := range exp {
		if !claimed[i] {
			fn = append(fn, e)
		}
	}

	return tp, fp, fn
}

// EvaluateCase scores a single case. detectErr, when non-empty, marks
// the case failed regardless of span counts.
func (ev *Evaluator) EvaluateCase(caseID, query string, detected, expected []core.EntitySpan, latencyMS float64, detectErr string) CaseResult {
	tp, fp, fn := Match(detected, expected)

	r := CaseResult{
		CaseID:         caseID,
		Query:          query,
		Detected:       detected,
		Expected:       expected,
		TruePositives:  tp,
		FalsePositives: fp,
		FalseNegatives: fn,
		LatencyMS:      latencyMS,
		Error:          detectErr,
	}

	// Empty-side conventions: a case expecting nothing scores perfect
	// precision when nothing was detected, and recall is vacuously 1
	// when there was nothing to find.
	switch {
	case len(tp)+len(fp) > 0:
		r.Precision = float64(len(tp)) / float64(len(tp)+len(fp))
	case len(expected) == 0:
		r.Precision = 1
	}
	if len(tp)+len(fn) > 0 {
		r.Recall = float64(len(tp)) / float64(len(tp)+len(fn))
	} else {
		r.Recall = 1
	}
	if r.Precision+r.Recall > 0 {
		r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
	}

	switch ev.passMode {
	case PassModeF1Threshold:
		r.Passed = r.F1 >= ev.f1Threshold
	default:
		r.Passed = len(fn) == 0
	}
	if detectErr != "" {
		r.Passed = false
	}

	return r
}
