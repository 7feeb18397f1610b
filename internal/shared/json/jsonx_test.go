package jsonx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around fence", "Here you go:\n```json\n{\"a\":1}\n```\nThanks", `{"a":1}`},
		{"no fence", "  {\"a\":1}  ", `{"a":1}`},
		{"unterminated fence", "```json\n{\"a\":1}", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFences(tt.in))
		})
	}
}

func TestDecodeModelOutputRepairsTrailingComma(t *testing.T) {
	var out struct {
		Urgency string `json:"urgency"`
	}
	require.NoError(t, DecodeModelOutput("```json\n{\"urgency\": \"high\",}\n```", &out))
	assert.Equal(t, "high", out.Urgency)
}

func TestDecodeModelOutputRejectsProse(t *testing.T) {
	var out map[string]any
	assert.Error(t, DecodeModelOutput("I could not decide on a category.", &out))
	assert.ErrorIs(t, DecodeModelOutput("   ", &out), ErrEmpty)
}
