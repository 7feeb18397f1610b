package agents

import (
	"strings"

	jsonx "github.com/mhokchuekchuek/support-ticket-triage-agent/internal/shared/json"
)

// decodeObject decodes a model reply into a JSON object.
func decodeObject(content string) (map[string]any, error) {
	var out map[string]any
	if err := jsonx.DecodeModelOutput(content, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, jsonx.ErrEmpty
	}
	return out, nil
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func stringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key].(string)
	return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
}

func boolField(m map[string]any, key string) (bool, bool) {
	switch v := m[key].(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes":
			return true, true
		case "false", "no":
			return false, true
		}
	}
	return false, false
}

func floatField(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func stringSlice(v any) ([]string, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
