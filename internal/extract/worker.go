// Package extract turns single catalog pages into structured line items
// through one LLM extraction call per page, with bounded classified retry.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/avelar/costbook-go/internal/llm"
	"github.com/avelar/costbook-go/internal/models"
	"github.com/avelar/costbook-go/internal/pdfdoc"
)

// Generator is the structured-extraction call the worker issues per page.
// Implemented by llm.Model.
type Generator interface {
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, llm.Usage, error)
}

// Context is the chapter/section heading carried forward from page to
// page so hierarchy can be attributed even to pages without an explicit
// heading.
type Context struct {
	Chapter string
	Section string
}

// PageResult is the outcome of extracting one page.
type PageResult struct {
	Items   []models.CatalogRecord
	Context Context // running context for the next page
	Usage   llm.Usage
	Failed  bool // retries exhausted; page contributed zero items
}

// Worker extracts line items from single pages. Page-level failures are
// isolated: after exhausting retries the page yields zero items instead of
// aborting the run.
type Worker struct {
	gen         Generator
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewWorker creates a worker with the default retry policy: 3 attempts,
// exponential backoff starting at 2s.
func NewWorker(gen Generator) *Worker {
	return &Worker{
		gen:         gen,
		maxAttempts: 3,
		baseDelay:   2 * time.Second,
		sleep:       sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

const extractSystemPrompt = `Eres un extractor de bancos de precios de construcción.
Se te da el texto de UNA página de un catálogo escaneado y el contexto
jerárquico (capítulo/apartado) vigente de páginas anteriores.

Extrae cada partida u hoja de recurso de la página. Responde SOLO con JSON:
{
  "chapter": "nuevo capítulo detectado en esta página, o \"\"",
  "section": "nuevo apartado detectado en esta página, o \"\"",
  "items": [
    {
      "code": "código de la partida",
      "description": "descripción completa",
      "unit": "m²|m³|m|ud|h|kg|...",
      "price": "precio unitario total",
      "labor_price": "parte de mano de obra, si aparece",
      "material_price": "parte de materiales, si aparece",
      "is_composite": true,
      "breakdown": [
        {"code": "...", "description": "...", "unit": "...",
         "quantity": "rendimiento", "unit_price": "...", "waste_factor": "% mermas"}
      ]
    }
  ]
}

Reglas:
- is_composite es true para unidades de obra compuestas, false para
  materiales o recursos sueltos.
- Los números pueden venir con coma decimal y punto de miles ("1.200,50");
  déjalos tal cual aparecen en la página.
- Si la página no contiene partidas, devuelve "items": [].`

type pageResponse struct {
	Chapter string `json:"chapter"`
	Section string `json:"section"`
	Items   []struct {
		Code          string      `json:"code"`
		Description   string      `json:"description"`
		Unit          string      `json:"unit"`
		Price         flexNumber  `json:"price"`
		LaborPrice    *flexNumber `json:"labor_price"`
		MaterialPrice *flexNumber `json:"material_price"`
		IsComposite   bool        `json:"is_composite"`
		Breakdown     []struct {
			Code        string     `json:"code"`
			Description string     `json:"description"`
			Unit        string     `json:"unit"`
			Quantity    flexNumber `json:"quantity"`
			UnitPrice   flexNumber `json:"unit_price"`
			WasteFactor flexNumber `json:"waste_factor"`
			Subtotal    flexNumber `json:"subtotal"`
		} `json:"breakdown"`
	} `json:"items"`
}

// ExtractPage runs one structured-extraction call for a page, retrying
// with exponential backoff (2s, 4s, 8s) on classified failures. The
// returned context is the input context unless the page reported a new
// chapter or section heading.
func (w *Worker) ExtractPage(ctx context.Context, page pdfdoc.Page, prev Context) PageResult {
	result := PageResult{Context: prev}

	if page.Text == "" {
		slog.Debug("skipping empty page", "page", page.Number)
		return result
	}

	userPrompt := fmt.Sprintf("Contexto vigente: capítulo %q, apartado %q.\n\nTexto de la página %d:\n%s",
		prev.Chapter, prev.Section, page.Number+1, page.Text)

	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			result.Failed = true
			return result
		}

		raw, usage, err := w.gen.GenerateJSON(ctx, extractSystemPrompt, userPrompt)
		result.Usage.Add(usage)

		if err == nil {
			var parsed pageResponse
			if parseErr := json.Unmarshal([]byte(raw), &parsed); parseErr == nil {
				w.apply(&result, parsed, page, prev)
				if attempt > 1 {
					slog.Debug("page extraction succeeded after retry", "page", page.Number, "attempt", attempt)
				}
				return result
			} else {
				err = fmt.Errorf("parse extraction output: %w", parseErr)
			}
		}

		lastErr = err
		class := Classify(err)
		slog.Warn("page extraction attempt failed",
			"page", page.Number, "attempt", attempt, "max_attempts", w.maxAttempts,
			"class", class, "error", err)

		if attempt == w.maxAttempts {
			break
		}

		delay := w.baseDelay << (attempt - 1)
		if sleepErr := w.sleep(ctx, delay); sleepErr != nil {
			result.Failed = true
			return result
		}
	}

	slog.Warn("page extraction failed after retries, page yields no items",
		"page", page.Number, "class", Classify(lastErr), "error", lastErr)
	result.Failed = true
	result.Items = nil
	result.Context = prev
	return result
}

// apply converts the parsed response into catalog records and advances
// the running context. A heading reported on this page applies to this
// page's items and carries forward.
func (w *Worker) apply(result *PageResult, parsed pageResponse, page pdfdoc.Page, prev Context) {
	next := prev
	if parsed.Chapter != "" && parsed.Chapter != prev.Chapter {
		next.Chapter = parsed.Chapter
		next.Section = parsed.Section // a new chapter resets the section
	} else if parsed.Section != "" {
		next.Section = parsed.Section
	}
	result.Context = next

	for _, item := range parsed.Items {
		if item.Code == "" || item.Description == "" {
			slog.Debug("dropping incomplete item", "page", page.Number, "code", item.Code)
			continue
		}

		record := models.CatalogRecord{
			Code:        item.Code,
			Description: item.Description,
			Unit:        item.Unit,
			Price:       float64(item.Price),
			IsComposite: item.IsComposite,
			Chapter:     next.Chapter,
			Section:     next.Section,
			Page:        page.Number,
		}
		if item.LaborPrice != nil {
			v := float64(*item.LaborPrice)
			record.LaborPrice = &v
		}
		if item.MaterialPrice != nil {
			v := float64(*item.MaterialPrice)
			record.MaterialPrice = &v
		}

		for _, comp := range item.Breakdown {
			subtotal := float64(comp.Subtotal)
			if subtotal == 0 {
				subtotal = float64(comp.Quantity) * float64(comp.UnitPrice) * (1 + float64(comp.WasteFactor)/100)
			}
			record.Breakdown = append(record.Breakdown, models.BreakdownComponent{
				Code:        comp.Code,
				Description: comp.Description,
				Unit:        comp.Unit,
				Quantity:    float64(comp.Quantity),
				UnitPrice:   float64(comp.UnitPrice),
				WasteFactor: float64(comp.WasteFactor),
				Subtotal:    subtotal,
			})
		}

		result.Items = append(result.Items, record)
	}
}
