package turn

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Assistant replies may end with a machine-readable block of UI suggestion
// chips: <suggestions>["A","B"]</suggestions>. The block must sit at the very
// end of the message and contain a JSON array of strings.
var suggestionsRx = regexp.MustCompile(`(?s)<suggestions>(.*?)</suggestions>\s*$`)

const maxSuggestions = 5

// ExtractSuggestions splits a reply into visible text and suggestion chips.
// Items are trimmed, empties dropped, duplicates removed preserving first-seen
// order, and the list capped at five. A missing, non-trailing, or malformed
// block leaves the text untouched and yields no suggestions; this function
// never fails.
func ExtractSuggestions(text string) (string, []string) {
	if text == "" {
		return "", nil
	}
	m := suggestionsRx.FindStringSubmatchIndex(text)
	if m == nil {
		return text, nil
	}
	rawBlock := text[m[2]:m[3]]

	var items []any
	if err := json.Unmarshal([]byte(rawBlock), &items); err != nil {
		return text, nil
	}

	clean := strings.TrimRight(text[:m[0]], " \t\r\n")
	suggestions := make([]string, 0, maxSuggestions)
	seen := make(map[string]bool)
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		suggestions = append(suggestions, s)
		if len(suggestions) == maxSuggestions {
			break
		}
	}
	return clean, suggestions
}
