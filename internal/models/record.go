// Package models defines data structures for the costbook catalog store.
package models

import (
	"fmt"
	"strings"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// BreakdownComponent is a sub-resource (labor, material or machinery)
// contributing to a composite item's total price.
type BreakdownComponent struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Unit        string  `json:"unit"`
	Quantity    float64 `json:"quantity"` // yield per unit of parent item
	UnitPrice   float64 `json:"unit_price"`
	WasteFactor float64 `json:"waste_factor,omitempty"`
	Subtotal    float64 `json:"subtotal"`
}

// CatalogRecord is a priced, searchable unit of construction work or
// material, identified by (year, code). Records are immutable after
// ingestion except for re-ingestion under the same key (upsert) or bulk
// deletion by year.
type CatalogRecord struct {
	ID surrealmodels.RecordID `json:"id,omitempty"`

	// Identity. Code is not globally unique across catalogs; (year, code)
	// is the dedup/upsert key.
	Code string `json:"code"`
	Year int    `json:"year"`

	// Descriptive fields. Chapter/Section carry the hierarchical context
	// propagated from page to page during extraction.
	Description string `json:"description"`
	Unit        string `json:"unit"`
	Chapter     string `json:"chapter,omitempty"`
	Section     string `json:"section,omitempty"`

	// Pricing.
	Price         float64              `json:"price"`
	LaborPrice    *float64             `json:"labor_price,omitempty"`
	MaterialPrice *float64             `json:"material_price,omitempty"`
	IsComposite   bool                 `json:"is_composite"`
	Breakdown     []BreakdownComponent `json:"breakdown,omitempty"`

	// Provenance.
	Page         int    `json:"page"`
	SourceDoc    string `json:"source_doc"`
	InputTokens  int64  `json:"input_tokens,omitempty"`
	OutputTokens int64  `json:"output_tokens,omitempty"`

	// Search. SearchText is the canonical string the embedding was computed
	// from; Embedding length must match the store's index dimension.
	SearchText string    `json:"search_text"`
	Embedding  []float32 `json:"embedding,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Key returns the deterministic record key used for upsert deduplication.
func (r *CatalogRecord) Key() string {
	return fmt.Sprintf("%d_%s", r.Year, r.Code)
}

// ContextPath returns the hierarchical "chapter > section" path, omitting
// empty levels.
func (r *CatalogRecord) ContextPath() string {
	parts := make([]string, 0, 2)
	if r.Chapter != "" {
		parts = append(parts, r.Chapter)
	}
	if r.Section != "" {
		parts = append(parts, r.Section)
	}
	return strings.Join(parts, " > ")
}

// BuildSearchText produces the canonical embedding input for a record:
// "context > description (code unit)". Retrieval quality depends on the
// record side of the index using exactly this shape.
func BuildSearchText(contextPath, description, code, unit string) string {
	var b strings.Builder
	if contextPath != "" {
		b.WriteString(contextPath)
		b.WriteString(" > ")
	}
	b.WriteString(description)
	suffix := strings.TrimSpace(strings.TrimSpace(code) + " " + strings.TrimSpace(unit))
	if suffix != "" {
		b.WriteString(" (")
		b.WriteString(suffix)
		b.WriteString(")")
	}
	return b.String()
}

// BuildSearchText returns the canonical embedding input for this record.
func (r *CatalogRecord) BuildSearchText() string {
	return BuildSearchText(r.ContextPath(), r.Description, r.Code, r.Unit)
}
