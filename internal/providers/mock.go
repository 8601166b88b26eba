package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"piiguard/internal/core"
)

// placeholderRe matches anonymization placeholders like <PERSON_1>.
var placeholderRe = regexp.MustCompile(`<[A-Z_]+_\d+>`)

// Mock implements core.Provider without any network calls. It is used in
// demo mode when no API key is configured. Responses echo back the
// placeholders found in the prompt so the restoration path still gets
// exercised end to end.
type Mock struct{}

// NewMock creates a mock provider.
func NewMock() *Mock {
	return &Mock{}
}

// Name returns the provider identifier.
func (m *Mock) Name() string {
	return "mock"
}

// ChatCompletion returns a canned placeholder-aware response.
func (m *Mock) ChatCompletion(_ context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	text := m.respond(req)
	return &core.ChatResponse{
		ID:      "mock-" + uuid.NewString(),
		Object:  "chat.completion",
		Model:   "mock",
		Created: time.Now().Unix(),
		Choices: []core.Choice{{
			Index:        0,
			Message:      core.Message{Role: "assistant", Content: text},
			FinishReason: "stop",
		}},
	}, nil
}

// StreamChatCompletion returns the canned response as an OpenAI-style SSE
// stream so callers parse mock and real output the same way.
func (m *Mock) StreamChatCompletion(_ context.Context, req *core.ChatRequest) (io.ReadCloser, error) {
	text := m.respond(req)

	var buf strings.Builder
	for _, chunk := range splitChunks(text) {
		payload, err := json.Marshal(map[string]any{
			"choices": []map[string]any{{"delta": map[string]string{"content": chunk}}},
		})
		if err != nil {
			return nil, core.NewModelCallError("mock", 500, "failed to encode chunk", err)
		}
		buf.WriteString("data: ")
		buf.Write(payload)
		buf.WriteString("\n\n")
	}
	buf.WriteString("data: [DONE]\n\n")

	return io.NopCloser(strings.NewReader(buf.String())), nil
}

// respond builds the canned response for the last user message.
func (m *Mock) respond(req *core.ChatRequest) string {
	prompt := lastUserMessage(req)
	return mockResponse(prompt, placeholderRe.FindAllString(prompt, -1))
}

func lastUserMessage(req *core.ChatRequest) string {
	if req == nil {
		return ""
	}
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}

// mockResponse picks a response template from the query intent and fills
// it with the placeholders present in the prompt.
func mockResponse(prompt string, placeholders []string) string {
	query := strings.ToLower(prompt)
	if idx := strings.LastIndex(query, "user query:"); idx >= 0 {
		query = strings.TrimSpace(query[idx+len("user query:"):])
	}

	seen := make(map[string]bool, len(placeholders))
	unique := make([]string, 0, len(placeholders))
	for _, p := range placeholders {
		if !seen[p] {
			seen[p] = true
			unique = append(unique, p)
		}
	}

	persons := filterPlaceholders(unique, "PERSON")
	salaries := filterPlaceholders(unique, "SALARY")
	emails := filterPlaceholders(unique, "EMAIL")
	phones := filterPlaceholders(unique, "PHONE")
	ssns := filterPlaceholders(unique, "US_SSN")
	banks := filterPlaceholders(unique, "US_BANK_NUMBER")

	switch {
	case strings.Contains(query, "salary") && containsAnyWord(query, "most", "top", "highest", "maximum", "max"):
		return topEarnersResponse(persons, salaries)

	case strings.Contains(query, "salary") && strings.Contains(query, "higher"):
		if len(persons) >= 2 {
			return fmt.Sprintf("Based on the employee records, %s has a higher salary than %s.", persons[1], persons[0])
		}
		return "I can see the salary information in the records. Let me compare them for you."

	case containsAnyWord(query, "draft email", "write email", "send email", "compose email", "draft an email", "write an email"):
		return emailDraftResponse(persons, salaries)

	case strings.Contains(query, "salary") && containsAnyWord(query, "lowest", "minimum", "min", "least"):
		return lowestSalaryResponse(persons, salaries)

	case containsAnyWord(query, "direct deposit", "bank", "account", "routing"):
		return directDepositResponse(persons, ssns, banks)

	case containsAnyWord(query, "meeting", "invite", "schedule", "call", "contact"):
		return contactResponse(persons, emails, phones)

	case containsAnyWord(query, "find", "lookup", "search", "get", "show", "what is", "who is"):
		return lookupResponse(persons, emails, phones, salaries)

	default:
		return summaryResponse(unique)
	}
}

func filterPlaceholders(placeholders []string, typeSubstr string) []string {
	var out []string
	for _, p := range placeholders {
		if strings.Contains(p, typeSubstr) {
			out = append(out, p)
		}
	}
	return out
}

func containsAnyWord(s string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func topEarnersResponse(persons, salaries []string) string {
	if len(persons) == 0 || len(salaries) == 0 {
		return "Based on the employee records provided, I can identify the top earners for you."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Based on the employee records, %s has the highest salary at %s.", persons[0], salaries[0])
	if len(persons) > 1 {
		b.WriteString("\n\nTop earners:\n")
		for i := 0; i < len(persons) && i < len(salaries) && i < 3; i++ {
			fmt.Fprintf(&b, "%d. %s: %s\n", i+1, persons[i], salaries[i])
		}
	}
	return b.String()
}

func emailDraftResponse(persons, salaries []string) string {
	person := "the employee"
	if len(persons) > 0 {
		person = persons[0]
	}
	salary := "the discussed amount"
	if len(salaries) > 0 {
		salary = salaries[0]
	}
	return fmt.Sprintf(`Subject: Compensation Update

Dear %s,

I hope this message finds you well. I am writing to inform you about an important update regarding your compensation.

After careful review, we are pleased to confirm the salary adjustment to %s. This change reflects our recognition of your valuable contributions to the team.

Please let me know if you have any questions.

Best regards,
HR Department`, person, salary)
}

func lowestSalaryResponse(persons, salaries []string) string {
	if len(persons) == 0 || len(salaries) == 0 {
		return "Based on the employee records provided, I can identify employees with lower salaries."
	}
	return fmt.Sprintf("Based on the employee records, %s has the lowest salary at %s.",
		persons[len(persons)-1], salaries[len(salaries)-1])
}

func directDepositResponse(persons, ssns, banks []string) string {
	var b strings.Builder
	b.WriteString("I'll help you update the direct deposit information.\n\n")
	b.WriteString("**Request Details:**\n")
	if len(ssns) > 0 {
		fmt.Fprintf(&b, "- Employee SSN: %s\n", ssns[0])
	}
	if len(banks) > 0 {
		fmt.Fprintf(&b, "- New Account: %s\n", banks[0])
	}
	if len(persons) > 0 {
		fmt.Fprintf(&b, "- Employee: %s\n", persons[0])
	}
	b.WriteString("\n**Note:** For security, direct deposit changes require employee verification. A confirmation email will be sent to the employee on file.")
	return b.String()
}

func contactResponse(persons, emails, phones []string) string {
	var b strings.Builder
	b.WriteString("I'll help you with this communication request.\n\n")
	b.WriteString("**Contact Details:**\n")
	if len(persons) > 0 {
		fmt.Fprintf(&b, "- Name: %s\n", persons[0])
	}
	if len(emails) > 0 {
		fmt.Fprintf(&b, "- Email: %s\n", emails[0])
	}
	if len(phones) > 0 {
		fmt.Fprintf(&b, "- Phone: %s\n", phones[0])
	}
	b.WriteString("\nMeeting invite will be sent to the specified contacts.")
	return b.String()
}

func lookupResponse(persons, emails, phones, salaries []string) string {
	var b strings.Builder
	b.WriteString("Here's the information I found:\n\n")
	for i, p := range persons {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&b, "**%s**\n", p)
	}
	if len(emails) > 0 {
		fmt.Fprintf(&b, "- Email: %s\n", strings.Join(head(emails, 2), ", "))
	}
	if len(phones) > 0 {
		fmt.Fprintf(&b, "- Phone: %s\n", strings.Join(head(phones, 2), ", "))
	}
	if len(salaries) > 0 {
		fmt.Fprintf(&b, "- Salary: %s\n", strings.Join(head(salaries, 2), ", "))
	}
	return b.String()
}

func summaryResponse(placeholders []string) string {
	groups := []struct {
		label  string
		substr string
	}{
		{"PERSON", "PERSON"},
		{"EMAIL", "EMAIL"},
		{"PHONE", "PHONE"},
		{"SSN", "US_SSN"},
		{"SALARY", "SALARY"},
		{"BANK", "US_BANK"},
		{"CREDIT_CARD", "CREDIT_CARD"},
	}

	var b strings.Builder
	b.WriteString("I've processed your request. Here's a summary of the information involved:\n\n")

	hasData := false
	for _, g := range groups {
		values := filterPlaceholders(placeholders, g.substr)
		if len(values) == 0 {
			continue
		}
		hasData = true
		fmt.Fprintf(&b, "**%s:** %s\n", g.label, strings.Join(head(values, 3), ", "))
	}
	if !hasData {
		return "I understand your request. No sensitive PII was detected in this query."
	}
	return b.String()
}

func head(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// splitChunks breaks text into ~20 character word-aligned chunks so the
// mock stream behaves like real token-by-token output.
func splitChunks(text string) []string {
	words := strings.Split(text, " ")
	var chunks []string
	var current strings.Builder
	for _, word := range words {
		current.WriteString(word)
		current.WriteString(" ")
		if current.Len() > 20 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
