package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SynonymPair is a deterministic substitution rule for query expansion.
// Both directions are applied when the text contains either side.
type SynonymPair struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Rules holds the matching-domain knowledge: synonym substitutions, the
// singular-resource cap list, fallback pricing heuristics and resolver
// thresholds. All values have working defaults; an optional YAML file
// overrides individual fields.
type Rules struct {
	// Synonyms drive lexical query expansion in the resolver.
	Synonyms []SynonymPair `yaml:"synonyms"`

	// SingularKeywords name resources that physically cannot recur per unit
	// of work; matched quantities are capped at 1.
	SingularKeywords []string `yaml:"singular_keywords"`

	// FallbackPrices map unit symbols to heuristic unit prices used when no
	// catalog match is accepted. DefaultFallbackPrice applies to unknown
	// units.
	FallbackPrices       map[string]float64 `yaml:"fallback_prices"`
	DefaultFallbackPrice float64            `yaml:"default_fallback_price"`

	// SimilarityFloor discards candidates below this cosine similarity
	// before the judge step.
	SimilarityFloor float64 `yaml:"similarity_floor"`

	// MaxJudgeCandidates bounds the candidate list presented to the judge.
	MaxJudgeCandidates int `yaml:"max_judge_candidates"`

	// NeighborsPerVariant is the k for each nearest-neighbor query.
	NeighborsPerVariant int `yaml:"neighbors_per_variant"`

	// MaterialMarkup approximates missing labor when only a bare material
	// matches: price = material price * markup.
	MaterialMarkup float64 `yaml:"material_markup"`

	// Confidence constants per match type.
	LaborConfidence    int `yaml:"labor_confidence"`
	MaterialConfidence int `yaml:"material_confidence"`
}

// DefaultRules returns the built-in rule set for Spanish construction
// catalogs.
func DefaultRules() Rules {
	return Rules{
		Synonyms: []SynonymPair{
			{From: "retirada", To: "carga manual de"},
			{From: "demolición", To: "derribo"},
			{From: "colocación", To: "instalación"},
			{From: "sustitución", To: "reposición"},
			{From: "alicatado", To: "revestimiento cerámico"},
			{From: "pintado", To: "pintura plástica en"},
		},
		SingularKeywords: []string{
			"ascensor",
			"caldera",
			"cuadro eléctrico",
			"cuadro general",
			"grupo de presión",
			"montacargas",
			"depósito de agua",
		},
		FallbackPrices: map[string]float64{
			"m²": 25.0,
			"m³": 90.0,
			"m":  15.0,
			"ud": 60.0,
			"h":  35.0,
			"kg": 2.5,
		},
		DefaultFallbackPrice: 50.0,
		SimilarityFloor:      0.62,
		MaxJudgeCandidates:   5,
		NeighborsPerVariant:  5,
		MaterialMarkup:       1.4,
		LaborConfidence:      85,
		MaterialConfidence:   60,
	}
}

// LoadRules returns the defaults merged with overrides from path. An empty
// path returns the defaults unchanged.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("read rules file: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return rules, fmt.Errorf("parse rules file: %w", err)
	}

	// Unset numeric overrides fall back to defaults
	defaults := DefaultRules()
	if rules.SimilarityFloor <= 0 {
		rules.SimilarityFloor = defaults.SimilarityFloor
	}
	if rules.MaxJudgeCandidates <= 0 {
		rules.MaxJudgeCandidates = defaults.MaxJudgeCandidates
	}
	if rules.NeighborsPerVariant <= 0 {
		rules.NeighborsPerVariant = defaults.NeighborsPerVariant
	}
	if rules.MaterialMarkup <= 0 {
		rules.MaterialMarkup = defaults.MaterialMarkup
	}
	if rules.LaborConfidence <= 0 {
		rules.LaborConfidence = defaults.LaborConfidence
	}
	if rules.MaterialConfidence <= 0 {
		rules.MaterialConfidence = defaults.MaterialConfidence
	}
	if rules.DefaultFallbackPrice <= 0 {
		rules.DefaultFallbackPrice = defaults.DefaultFallbackPrice
	}
	if len(rules.FallbackPrices) == 0 {
		rules.FallbackPrices = defaults.FallbackPrices
	}

	return rules, nil
}

// FallbackPrice returns the heuristic unit price for a unit symbol.
func (r Rules) FallbackPrice(unit string) float64 {
	if p, ok := r.FallbackPrices[unit]; ok {
		return p
	}
	return r.DefaultFallbackPrice
}
