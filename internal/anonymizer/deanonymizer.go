package anonymizer

import (
	"sort"
	"strings"
)

// Deanonymize restores original values for every known placeholder in text.
// Replacement is exact-string and processes longer placeholders first so
// that <PERSON_12> is never clipped by <PERSON_1>. Tokens that look like
// placeholders but are not in the mapping pass through unchanged.
func Deanonymize(text string, mapping *PlaceholderMapping) string {
	if text == "" || mapping == nil || mapping.Len() == 0 {
		return text
	}

	placeholders := make([]string, 0, mapping.Len())
	for p := range mapping.Placeholders() {
		placeholders = append(placeholders, p)
	}
	sort.Slice(placeholders, func(i, j int) bool {
		if len(placeholders[i]) != len(placeholders[j]) {
			return len(placeholders[i]) > len(placeholders[j])
		}
		return placeholders[i] < placeholders[j]
	})

	result := text
	for _, p := range placeholders {
		if !strings.Contains(result, p) {
			continue
		}
		original, _ := mapping.Lookup(p)
		result = strings.ReplaceAll(result, p, original)
	}
	return result
}
