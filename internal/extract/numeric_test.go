package extract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocaleNumber(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"1.200,50", 1200.50},
		{"30,00", 30.0},
		{"0,85", 0.85},
		{"12.345.678,90", 12345678.90},
		{"1200", 1200},
		{"1.200", 1200},
		{" 45,30 € ", 45.30},
		{"-3,50", -3.50},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLocaleNumber(tt.input)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestParseLocaleNumberInvalid(t *testing.T) {
	for _, input := range []string{"", "   ", "abc", "12,34,56"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseLocaleNumber(input)
			assert.Error(t, err)
		})
	}
}

func TestFlexNumberUnmarshal(t *testing.T) {
	var doc struct {
		A flexNumber `json:"a"`
		B flexNumber `json:"b"`
		C flexNumber `json:"c"`
		D flexNumber `json:"d"`
	}
	raw := `{"a": "1.200,50", "b": 30.5, "c": null, "d": ""}`
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))

	assert.InDelta(t, 1200.50, float64(doc.A), 1e-9)
	assert.InDelta(t, 30.5, float64(doc.B), 1e-9)
	assert.Zero(t, float64(doc.C))
	assert.Zero(t, float64(doc.D))
}
