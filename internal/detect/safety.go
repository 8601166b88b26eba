package detect

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"

	"piiguard/internal/core"
)

// extraction prompt for the safety-classifier backend. The model is asked
// for a bare JSON array so replies can be parsed without tool support.
const safetySystemPrompt = `You are a PII (Personally Identifiable Information) detection system.
Analyze the user's text and identify all PII entities present.

For each PII found, output a JSON array with objects containing:
- "text": the exact text that contains PII
- "type": the category (one of: name, email, phone, ssn, credit_card, date, location, bank_account, salary, iban)
- "confidence": your confidence level (0.0 to 1.0)

If no PII is found, output an empty array: []

Output ONLY valid JSON, no other text.

Example input: "Contact John Smith at john@email.com or 555-123-4567"
Example output: [{"text": "John Smith", "type": "name", "confidence": 0.95}, {"text": "john@email.com", "type": "email", "confidence": 0.99}, {"text": "555-123-4567", "type": "phone", "confidence": 0.95}]`

var safetyTypeMapping = map[string]core.EntityType{
	"name":         core.EntityPerson,
	"person":       core.EntityPerson,
	"email":        core.EntityEmail,
	"phone":        core.EntityPhone,
	"ssn":          core.EntityUSSSN,
	"credit_card":  core.EntityCreditCard,
	"date":         core.EntityDateTime,
	"location":     core.EntityLocation,
	"bank_account": core.EntityBankNumber,
	"salary":       core.EntitySalary,
	"iban":         core.EntityIBAN,
}

// SafetyDetector prompts a safety-classifier model to list PII entities
// and locates each reported snippet in the source text by substring search.
type SafetyDetector struct {
	provider core.Provider
	model    string
}

// NewSafetyDetector creates a detector driven by the given model provider.
func NewSafetyDetector(provider core.Provider, model string) *SafetyDetector {
	return &SafetyDetector{provider: provider, model: model}
}

// Name implements core.Detector.
func (d *SafetyDetector) Name() string { return "safety" }

// Detect implements core.Detector.
func (d *SafetyDetector) Detect(ctx context.Context, text string) ([]core.EntitySpan, error) {
	resp, err := d.provider.ChatCompletion(ctx, &core.ChatRequest{
		Model: d.model,
		Messages: []core.Message{
			{Role: "system", Content: safetySystemPrompt},
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, core.NewDetectorFailureError("safety", "classifier returned no choices", nil)
	}

	return parseSafetyReply(resp.Choices[0].Message.Content, text), nil
}

// parseSafetyReply extracts entity spans from a classifier reply. Models
// sometimes wrap the JSON in prose or code fences, so parsing is tolerant:
// the first JSON array found in the reply wins.
func parseSafetyReply(reply, original string) []core.EntitySpan {
	arr := extractJSONArray(reply)
	if arr == "" {
		return nil
	}

	var spans []core.EntitySpan
	searchFrom := make(map[string]int)

	gjson.Parse(arr).ForEach(func(_, item gjson.Result) bool {
		entityText := item.Get("text").String()
		if entityText == "" {
			return true
		}
		t, known := safetyTypeMapping[strings.ToLower(strings.TrimSpace(item.Get("type").String()))]
		if !known {
			t = core.EntityPerson
		}
		confidence := item.Get("confidence").Float()
		if confidence == 0 {
			confidence = 0.8
		}

		start, end := locateEntity(original, entityText, searchFrom[entityText])
		if start < 0 {
			return true // reported text not present, skip
		}
		searchFrom[entityText] = end

		spans = append(spans, core.EntitySpan{
			Type:       t,
			Start:      start,
			End:        end,
			Text:       original[start:end],
			Confidence: confidence,
		})
		return true
	})

	return spans
}

// extractJSONArray returns the widest bracketed slice of the reply, or the
// whole reply when it is itself a JSON array.
func extractJSONArray(reply string) string {
	trimmed := strings.TrimSpace(reply)
	if gjson.Valid(trimmed) && gjson.Parse(trimmed).IsArray() {
		return trimmed
	}
	open := strings.Index(trimmed, "[")
	end := strings.LastIndex(trimmed, "]")
	if open < 0 || end <= open {
		return ""
	}
	candidate := trimmed[open : end+1]
	if !gjson.Valid(candidate) {
		return ""
	}
	return candidate
}

// locateEntity finds the entity text in the original, trying an exact match
// first, then case-insensitive. Repeated snippets advance through the text
// so every occurrence gets its own span.
func locateEntity(text, entity string, from int) (int, int) {
	if from > len(text) {
		from = 0
	}
	if i := strings.Index(text[from:], entity); i >= 0 {
		return from + i, from + i + len(entity)
	}
	lower, lowerEntity := strings.ToLower(text), strings.ToLower(entity)
	if i := strings.Index(lower[from:], lowerEntity); i >= 0 {
		return from + i, from + i + len(entity)
	}
	return -1, -1
}
