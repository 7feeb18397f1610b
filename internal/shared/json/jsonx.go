package jsonx

import (
	"errors"
	"strings"

	"github.com/goccy/go-json"
	"github.com/kaptinlin/jsonrepair"
)

// Thin wrapper so hot paths can swap JSON implementations in one place.
var (
	Marshal       = json.Marshal
	MarshalIndent = json.MarshalIndent
	Unmarshal     = json.Unmarshal
	NewDecoder    = json.NewDecoder
	NewEncoder    = json.NewEncoder
)

type RawMessage = json.RawMessage

// ErrEmpty is returned when there is no JSON payload to decode.
var ErrEmpty = errors.New("empty JSON payload")

// StripCodeFences removes a surrounding markdown code fence such as
// ```json ... ``` or ``` ... ``` and trims whitespace.
func StripCodeFences(content string) string {
	s := strings.TrimSpace(content)
	if start := strings.Index(s, "```json"); start >= 0 {
		s = s[start+len("```json"):]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		return strings.TrimSpace(s)
	}
	if start := strings.Index(s, "```"); start >= 0 {
		s = s[start+3:]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		return strings.TrimSpace(s)
	}
	return s
}

// Repair attempts to fix malformed JSON emitted by a model.
func Repair(raw string) (string, error) {
	return jsonrepair.JSONRepair(raw)
}

// DecodeModelOutput strips fences from content and decodes it into v. When
// strict decoding fails, one repair pass is attempted before giving up.
func DecodeModelOutput(content string, v any) error {
	payload := StripCodeFences(content)
	if payload == "" {
		return ErrEmpty
	}
	err := json.Unmarshal([]byte(payload), v)
	if err == nil {
		return nil
	}
	if !looksLikeJSON(payload) {
		return err
	}
	repaired, repairErr := Repair(payload)
	if repairErr != nil {
		return err
	}
	if retryErr := json.Unmarshal([]byte(repaired), v); retryErr != nil {
		return err
	}
	return nil
}

// looksLikeJSON keeps the repair pass from turning free prose into a JSON
// string that would decode "successfully" into nothing useful.
func looksLikeJSON(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}
