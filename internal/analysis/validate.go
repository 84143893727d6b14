package analysis

import (
	"encoding/json"
	"sort"
	"strings"

	"lorekeeper/internal/services"
	"lorekeeper/internal/services/llm"
	"lorekeeper/internal/session"
)

var (
	textFields = []string{"narrative_summary", "tldr_summary", "session_title"}
	listFields = []string{"npcs", "items", "locations", "key_events"}
)

// Validate decodes a model reply into an AnalysisResult. Every field must be
// present: the three text fields as non-empty strings, the four lists as JSON
// arrays of strings.
func Validate(content string) (session.AnalysisResult, error) {
	var raw map[string]json.RawMessage
	if err := llm.DecodeLLMJSON(content, &raw); err != nil {
		return session.AnalysisResult{}, violation("reply is not a JSON object", err)
	}

	var problems []string
	for _, field := range textFields {
		value, ok := raw[field]
		if !ok {
			problems = append(problems, "missing "+field)
			continue
		}
		var str string
		if err := json.Unmarshal(value, &str); err != nil {
			problems = append(problems, field+" must be a string")
			continue
		}
		if strings.TrimSpace(str) == "" {
			problems = append(problems, field+" is empty")
		}
	}
	for _, field := range listFields {
		value, ok := raw[field]
		if !ok {
			problems = append(problems, "missing "+field)
			continue
		}
		var entries []string
		if strings.TrimSpace(string(value)) == "null" || json.Unmarshal(value, &entries) != nil {
			problems = append(problems, field+" must be a list of strings")
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return session.AnalysisResult{}, violation(strings.Join(problems, "; "), nil)
	}

	return session.AnalysisResult{
		NarrativeSummary: text(raw["narrative_summary"]),
		TLDRSummary:      text(raw["tldr_summary"]),
		NPCs:             list(raw["npcs"]),
		Items:            list(raw["items"]),
		Locations:        list(raw["locations"]),
		KeyEvents:        list(raw["key_events"]),
		SessionTitle:     text(raw["session_title"]),
	}, nil
}

func text(value json.RawMessage) string {
	var s string
	_ = json.Unmarshal(value, &s)
	return strings.TrimSpace(s)
}

// list trims entries and drops blanks, keeping a non-nil slice.
func list(value json.RawMessage) []string {
	var values []string
	_ = json.Unmarshal(value, &values)
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func violation(msg string, err error) error {
	return services.Wrap(services.ErrSchemaViolation, "analysis", "validate", msg, err)
}
