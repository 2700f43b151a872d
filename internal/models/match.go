package models

// MatchType classifies how a resolved line item was priced.
type MatchType string

const (
	MatchLabor    MatchType = "LABOR"
	MatchMaterial MatchType = "MATERIAL"
	MatchEstimate MatchType = "ESTIMATE"
)

// MatchCandidate is an ephemeral result of a single nearest-neighbor query.
// Candidates are never persisted; they are deduplicated by catalog identity
// before judging, keeping the highest score seen.
type MatchCandidate struct {
	Record  CatalogRecord
	Score   float64 // similarity in [0,1]
	Variant string  // the query variant that produced this candidate
}

// Subtask is one atomic, independently priceable unit of work produced by
// task decomposition.
type Subtask struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
}

// ResolvedLineItem is the output of the matching resolver for one task.
// It is never mutated after creation except for quantity aggregation when
// multiple subtasks resolve to the same catalog code.
type ResolvedLineItem struct {
	Position    int       `json:"position"`
	Code        string    `json:"code,omitempty"` // empty for estimates
	Description string    `json:"description"`
	Unit        string    `json:"unit"`
	Quantity    float64   `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	TotalPrice  float64   `json:"total_price"`
	MatchType   MatchType `json:"match_type"`
	Confidence  int       `json:"confidence"` // [0,100]
	IsEstimate  bool      `json:"is_estimate"`
	NeedsReview bool      `json:"needs_review"`
	Reason      string    `json:"reason"` // audit trail: what matched and why

	Breakdown  []BreakdownComponent `json:"breakdown,omitempty"`
	SourceYear int                  `json:"source_year,omitempty"`
	SourcePage int                  `json:"source_page,omitempty"`
}
