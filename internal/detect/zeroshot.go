package detect

import (
	"context"
	"net/http"
	"strings"
	"time"

	"piiguard/internal/core"
	"piiguard/internal/pkg/llmclient"
)

// Labels requested from the zero-shot NER service and their mapping to
// entity types.
var zeroShotLabels = []string{
	"person",
	"email address",
	"phone number",
	"credit card number",
	"social security number",
	"date of birth",
	"address",
	"bank account number",
	"salary",
	"iban",
}

var zeroShotLabelMapping = map[string]core.EntityType{
	"person":                 core.EntityPerson,
	"name":                   core.EntityPerson,
	"full name":              core.EntityPerson,
	"email":                  core.EntityEmail,
	"email address":          core.EntityEmail,
	"phone":                  core.EntityPhone,
	"phone number":           core.EntityPhone,
	"credit card":            core.EntityCreditCard,
	"credit card number":     core.EntityCreditCard,
	"social security number": core.EntityUSSSN,
	"ssn":                    core.EntityUSSSN,
	"date":                   core.EntityDateTime,
	"date of birth":          core.EntityDateTime,
	"address":                core.EntityLocation,
	"location":               core.EntityLocation,
	"city":                   core.EntityLocation,
	"bank account":           core.EntityBankNumber,
	"bank account number":    core.EntityBankNumber,
	"salary":                 core.EntitySalary,
	"iban":                   core.EntityIBAN,
}

// ZeroShotDetector calls a zero-shot NER inference service over HTTP.
// The service contract is POST /detect with {text, labels, threshold}
// returning {entities: [{start, end, text, label, score}]}.
type ZeroShotDetector struct {
	client    *llmclient.Client
	threshold float64
}

// NewZeroShotDetector creates a detector backed by the service at baseURL.
func NewZeroShotDetector(baseURL string, threshold float64) *ZeroShotDetector {
	cfg := llmclient.DefaultConfig("zeroshot", baseURL)
	cfg.MaxRetries = 1
	cfg.InitialBackoff = 200 * time.Millisecond
	return &ZeroShotDetector{
		client:    llmclient.New(cfg, nil),
		threshold: threshold,
	}
}

// Name implements core.Detector.
func (d *ZeroShotDetector) Name() string { return "zeroshot" }

type zeroShotRequest struct {
	Text      string   `json:"text"`
	Labels    []string `json:"labels"`
	Threshold float64  `json:"threshold,omitempty"`
}

type zeroShotResponse struct {
	Entities []struct {
		Start int     `json:"start"`
		End   int     `json:"end"`
		Text  string  `json:"text"`
		Label string  `json:"label"`
		Score float64 `json:"score"`
	} `json:"entities"`
}

// Detect implements core.Detector.
func (d *ZeroShotDetector) Detect(ctx context.Context, text string) ([]core.EntitySpan, error) {
	var resp zeroShotResponse
	err := d.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/detect",
		Body: zeroShotRequest{
			Text:      text,
			Labels:    zeroShotLabels,
			Threshold: d.threshold,
		},
	}, &resp)
	if err != nil {
		return nil, err
	}

	spans := make([]core.EntitySpan, 0, len(resp.Entities))
	for _, e := range resp.Entities {
		t, known := zeroShotLabelMapping[e.Label]
		if !known {
			// Unknown labels still flow through; the anonymizer substitutes
			// them generically.
			t = core.EntityType(normalizeLabel(e.Label))
		}
		spans = append(spans, core.EntitySpan{
			Type:       t,
			Start:      e.Start,
			End:        e.End,
			Text:       e.Text,
			Confidence: e.Score,
		})
	}
	return spans, nil
}

// normalizeLabel turns a free-form backend label into entity type shape,
// e.g. "passport number" -> "PASSPORT_NUMBER".
func normalizeLabel(label string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(label), " ", "_"))
}

// CheckAvailability implements core.AvailabilityChecker.
func (d *ZeroShotDetector) CheckAvailability(ctx context.Context) error {
	_, err := d.client.DoRaw(ctx, llmclient.Request{
		Method:   http.MethodGet,
		Endpoint: "/health",
	})
	return err
}
