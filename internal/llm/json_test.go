package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain object", `{"best": 2}`, `{"best": 2}`},
		{"fenced json", "```json\n{\"best\": 2}\n```", `{"best": 2}`},
		{"fenced no lang", "```\n{\"best\": 2}\n```", `{"best": 2}`},
		{"prose around object", `Sure, here is the result: {"best": 2}. Let me know!`, `{"best": 2}`},
		{"array", `the items are [1, 2, 3] as requested`, `[1, 2, 3]`},
		{"no json at all", "no match found", "no match found"},
		{"nested braces", `{"items": [{"a": 1}]}`, `{"items": [{"a": 1}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSON(tt.input))
		})
	}
}
