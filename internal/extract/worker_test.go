package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelar/costbook-go/internal/llm"
	"github.com/avelar/costbook-go/internal/pdfdoc"
)

// fakeGenerator returns scripted responses or errors in order, then
// repeats the last entry.
type fakeGenerator struct {
	responses []string
	errs      []error
	calls     int
	usage     llm.Usage
}

func (f *fakeGenerator) GenerateJSON(ctx context.Context, system, user string) (string, llm.Usage, error) {
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], f.usage, f.errs[i]
}

// testWorker returns a worker with no real sleeping, recording delays.
func testWorker(gen Generator) (*Worker, *[]time.Duration) {
	w := NewWorker(gen)
	delays := &[]time.Duration{}
	w.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return w, delays
}

const pageJSON = `{
  "chapter": "Demoliciones",
  "section": "Tabiques",
  "items": [
    {
      "code": "0101005",
      "description": "Demolición de tabique de ladrillo hueco sencillo",
      "unit": "m²",
      "price": "4,85",
      "is_composite": true,
      "breakdown": [
        {"code": "O01OA070", "description": "Peón ordinario", "unit": "h",
         "quantity": "0,45", "unit_price": "16,50", "waste_factor": "0"}
      ]
    },
    {
      "code": "P01LH010",
      "description": "Ladrillo hueco sencillo 24x11,5x4",
      "unit": "ud",
      "price": "0,15",
      "is_composite": false,
      "material_price": "0,15"
    }
  ]
}`

func TestExtractPageSuccess(t *testing.T) {
	gen := &fakeGenerator{
		responses: []string{pageJSON},
		errs:      []error{nil},
		usage:     llm.Usage{InputTokens: 900, OutputTokens: 300},
	}
	w, _ := testWorker(gen)

	page := pdfdoc.Page{Number: 3, Text: "texto de la página"}
	result := w.ExtractPage(context.Background(), page, Context{})

	assert.False(t, result.Failed)
	require.Len(t, result.Items, 2)

	first := result.Items[0]
	assert.Equal(t, "0101005", first.Code)
	assert.InDelta(t, 4.85, first.Price, 1e-9)
	assert.Equal(t, "Demoliciones", first.Chapter)
	assert.Equal(t, "Tabiques", first.Section)
	assert.Equal(t, 3, first.Page)
	assert.True(t, first.IsComposite)
	require.Len(t, first.Breakdown, 1)
	assert.InDelta(t, 0.45*16.50, first.Breakdown[0].Subtotal, 1e-9)

	second := result.Items[1]
	assert.False(t, second.IsComposite)
	require.NotNil(t, second.MaterialPrice)
	assert.InDelta(t, 0.15, *second.MaterialPrice, 1e-9)

	// New headings become the running context for the next page
	assert.Equal(t, Context{Chapter: "Demoliciones", Section: "Tabiques"}, result.Context)
	assert.Equal(t, int64(900), result.Usage.InputTokens)
}

func TestExtractPageContextCarriesForward(t *testing.T) {
	gen := &fakeGenerator{
		responses: []string{`{"chapter": "", "section": "", "items": []}`},
		errs:      []error{nil},
	}
	w, _ := testWorker(gen)

	prev := Context{Chapter: "Cimentaciones", Section: "Zapatas"}
	result := w.ExtractPage(context.Background(), pdfdoc.Page{Number: 9, Text: "x"}, prev)

	assert.False(t, result.Failed)
	assert.Empty(t, result.Items)
	assert.Equal(t, prev, result.Context)
}

func TestExtractPageNewChapterResetsSection(t *testing.T) {
	gen := &fakeGenerator{
		responses: []string{`{"chapter": "Estructuras", "section": "", "items": []}`},
		errs:      []error{nil},
	}
	w, _ := testWorker(gen)

	prev := Context{Chapter: "Cimentaciones", Section: "Zapatas"}
	result := w.ExtractPage(context.Background(), pdfdoc.Page{Number: 10, Text: "x"}, prev)

	assert.Equal(t, Context{Chapter: "Estructuras", Section: ""}, result.Context)
}

func TestExtractPageRetriesWithBackoff(t *testing.T) {
	timeout := errors.New("request timed out")
	gen := &fakeGenerator{
		responses: []string{"", "", pageJSON},
		errs:      []error{timeout, timeout, nil},
	}
	w, delays := testWorker(gen)

	result := w.ExtractPage(context.Background(), pdfdoc.Page{Number: 1, Text: "x"}, Context{})

	assert.False(t, result.Failed)
	assert.Len(t, result.Items, 2)
	assert.Equal(t, 3, gen.calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *delays)
}

func TestExtractPageExhaustedRetriesYieldsEmptyPage(t *testing.T) {
	timeout := errors.New("request timed out")
	gen := &fakeGenerator{
		responses: []string{"", "", ""},
		errs:      []error{timeout, timeout, timeout},
	}
	w, delays := testWorker(gen)

	prev := Context{Chapter: "Albañilería"}
	result := w.ExtractPage(context.Background(), pdfdoc.Page{Number: 6, Text: "x"}, prev)

	assert.True(t, result.Failed)
	assert.Empty(t, result.Items)
	assert.Equal(t, prev, result.Context)
	assert.Equal(t, 3, gen.calls)
	// No sleep after the final attempt
	assert.Len(t, *delays, 2)
}

func TestExtractPageMalformedJSONRetried(t *testing.T) {
	gen := &fakeGenerator{
		responses: []string{"this is not json", pageJSON},
		errs:      []error{nil, nil},
	}
	w, _ := testWorker(gen)

	result := w.ExtractPage(context.Background(), pdfdoc.Page{Number: 2, Text: "x"}, Context{})

	assert.False(t, result.Failed)
	assert.Len(t, result.Items, 2)
	assert.Equal(t, 2, gen.calls)
}

func TestExtractPageEmptyTextSkipsCall(t *testing.T) {
	gen := &fakeGenerator{responses: []string{""}, errs: []error{nil}}
	w, _ := testWorker(gen)

	result := w.ExtractPage(context.Background(), pdfdoc.Page{Number: 0, Text: ""}, Context{})

	assert.False(t, result.Failed)
	assert.Empty(t, result.Items)
	assert.Equal(t, 0, gen.calls)
}
