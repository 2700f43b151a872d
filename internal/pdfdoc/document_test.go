package pdfdoc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureDoc() *Document {
	return FromPages("catalog.pdf", []Page{
		{Number: 0, Text: "capítulo 01 demoliciones"},
		{Number: 1, Text: "0101005 demolición de tabique"},
		{Number: 2, Text: "0102010 carga manual de escombros"},
	})
}

func TestDocumentPage(t *testing.T) {
	doc := fixtureDoc()

	page, err := doc.Page(1)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Number)
	assert.Contains(t, page.Text, "tabique")
}

func TestDocumentPageOutOfRange(t *testing.T) {
	doc := fixtureDoc()

	_, err := doc.Page(3)
	assert.True(t, errors.Is(err, ErrInvalidRange))

	_, err = doc.Page(-1)
	assert.True(t, errors.Is(err, ErrInvalidRange))
}

func TestDocumentSlice(t *testing.T) {
	doc := fixtureDoc()

	sub, err := doc.Slice(2, 0)
	require.NoError(t, err)
	require.Equal(t, 2, sub.PageCount())

	// Original page numbers are preserved for provenance
	first, err := sub.Page(0)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Number)

	second, err := sub.Page(1)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Number)

	assert.Equal(t, "catalog.pdf", sub.Source)
}

func TestDocumentSliceInvalidIndex(t *testing.T) {
	doc := fixtureDoc()

	_, err := doc.Slice(0, 5)
	assert.True(t, errors.Is(err, ErrInvalidRange))
}
