package cli

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateKeepsShortStrings(t *testing.T) {
	assert.Equal(t, "tabique", truncate("tabique", 44))
	assert.Equal(t, "", truncate("", 44))
}

func TestTruncateDoesNotSplitRunes(t *testing.T) {
	long := "Demolición de tabique de ladrillo hueco sencillo de 4 cm, con retirada de escombros a pie de carga, medido en m²"

	got := truncate(long, 44)
	assert.True(t, utf8.ValidString(got), "truncation must not cut through a multi-byte character")
	assert.Equal(t, 44, utf8.RuneCountInString(got))
	assert.Equal(t, "...", got[len(got)-3:])
}

func TestTruncateExactBoundary(t *testing.T) {
	s := "m² de tabique"
	assert.Equal(t, s, truncate(s, utf8.RuneCountInString(s)))
}
