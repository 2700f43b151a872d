package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/avelar/costbook-go/internal/config"
	"github.com/avelar/costbook-go/internal/db"
	"github.com/avelar/costbook-go/internal/llm"
	"github.com/avelar/costbook-go/internal/metrics"
	"github.com/avelar/costbook-go/internal/models"
)

// catalogCodePattern matches bare 7-digit catalog codes typed directly
// by the user instead of a description.
var catalogCodePattern = regexp.MustCompile(`^\d{7}$`)

// SearchStore is the query surface the resolver needs. Implemented by
// db.Client.
type SearchStore interface {
	RecordByCode(ctx context.Context, code string, year int) (*models.CatalogRecord, error)
	NearestNeighbors(ctx context.Context, embedding []float32, k, year int) ([]db.ScoredRecord, error)
	LexicalSearch(ctx context.Context, query string, k, year int) ([]db.ScoredRecord, error)
}

// QueryEmbedder embeds a single query text. Implemented by llm.Embedder.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Judge picks the single semantically equivalent candidate, or none.
// Implemented by llm.Model.
type Judge interface {
	SelectBestMatch(ctx context.Context, task string, candidates []models.MatchCandidate) (int, llm.Usage, error)
}

// ResolveService resolves a free-text task to a priced catalog match, a
// marked-up material price, or a heuristic estimate.
type ResolveService struct {
	store    SearchStore
	embedder QueryEmbedder
	judge    Judge
	rules    config.Rules
	metrics  *metrics.Collector
}

// NewResolveService creates a resolver.
func NewResolveService(store SearchStore, embedder QueryEmbedder, judge Judge, rules config.Rules, collector *metrics.Collector) *ResolveService {
	return &ResolveService{
		store:    store,
		embedder: embedder,
		judge:    judge,
		rules:    rules,
		metrics:  collector,
	}
}

// Resolve prices one subtask against the catalog for a year.
func (s *ResolveService) Resolve(ctx context.Context, task models.Subtask, year int) (models.ResolvedLineItem, llm.Usage, error) {
	var usage llm.Usage

	// Bare catalog codes bypass search entirely.
	if code := strings.TrimSpace(task.Description); catalogCodePattern.MatchString(code) {
		record, err := s.store.RecordByCode(ctx, code, year)
		if err != nil {
			slog.Warn("direct code lookup failed", "code", code, "error", err)
		}
		if record != nil {
			return s.priceRecord(task, *record, 100, models.MatchLabor,
				fmt.Sprintf("código %s buscado directamente", code)), usage, nil
		}
	}

	candidates := s.gatherCandidates(ctx, task, year)

	// Threshold filter: a loose net gathers breadth, the floor removes
	// obvious noise before the judge call.
	viable := candidates[:0]
	for _, c := range candidates {
		if c.Score >= s.rules.SimilarityFloor {
			viable = append(viable, c)
		}
	}
	if len(viable) > s.rules.MaxJudgeCandidates {
		viable = viable[:s.rules.MaxJudgeCandidates]
	}

	if len(viable) == 0 {
		return s.estimate(task, "sin candidatos por encima del umbral de similitud"), usage, nil
	}

	began := time.Now()
	best, judgeUsage, err := s.judge.SelectBestMatch(ctx, task.Description, viable)
	usage.Add(judgeUsage)
	if s.metrics != nil {
		s.metrics.RecordLLMUsage(metrics.OpJudge, time.Since(began), judgeUsage.InputTokens, judgeUsage.OutputTokens)
	}
	if err != nil {
		slog.Warn("judge call failed, falling back to estimate", "task", task.Description, "error", err)
		return s.estimate(task, fmt.Sprintf("verificación fallida: %v", err)), usage, nil
	}
	if best < 0 {
		return s.estimate(task, fmt.Sprintf("el verificador rechazó los %d candidatos", len(viable))), usage, nil
	}

	chosen := viable[best]
	if chosen.Record.IsComposite {
		return s.priceRecord(task, chosen.Record, s.rules.LaborConfidence, models.MatchLabor,
			fmt.Sprintf("partida %s aceptada (similitud %.2f, variante %q)",
				chosen.Record.Code, chosen.Score, chosen.Variant)), usage, nil
	}

	// Bare material: mark up to approximate the missing labor.
	item := s.priceRecord(task, chosen.Record, s.rules.MaterialConfidence, models.MatchMaterial,
		fmt.Sprintf("material %s aceptado (similitud %.2f), precio × %.1f por instalación",
			chosen.Record.Code, chosen.Score, s.rules.MaterialMarkup))
	item.UnitPrice = round2(chosen.Record.Price * s.rules.MaterialMarkup)
	item.TotalPrice = round2(item.UnitPrice * item.Quantity)
	return item, usage, nil
}

// gatherCandidates expands the query, embeds each variant and pools the
// nearest neighbors, deduplicated by (year, code) with the best score
// kept. Per-variant failures degrade the pool instead of aborting; if no
// variant could be embedded at all, lexical search takes over.
func (s *ResolveService) gatherCandidates(ctx context.Context, task models.Subtask, year int) []models.MatchCandidate {
	variants := s.expandQuery(task.Description)

	best := make(map[string]models.MatchCandidate)
	embedded := 0

	for _, variant := range variants {
		vec, err := s.embedder.Embed(ctx, variant)
		if err != nil {
			slog.Warn("variant embedding failed, skipping", "variant", variant, "error", err)
			continue
		}
		embedded++

		began := time.Now()
		neighbors, err := s.store.NearestNeighbors(ctx, vec, s.rules.NeighborsPerVariant, year)
		if s.metrics != nil {
			s.metrics.RecordTiming(metrics.OpDBSearch, time.Since(began))
		}
		if err != nil {
			slog.Warn("vector search failed for variant", "variant", variant, "error", err)
			continue
		}

		for _, n := range neighbors {
			key := n.Key()
			if prev, ok := best[key]; !ok || n.Similarity > prev.Score {
				best[key] = models.MatchCandidate{
					Record:  n.CatalogRecord,
					Score:   n.Similarity,
					Variant: variant,
				}
			}
		}
	}

	if embedded == 0 {
		slog.Warn("all variant embeddings failed, using lexical search", "task", task.Description)
		results, err := s.store.LexicalSearch(ctx, task.Description, s.rules.NeighborsPerVariant, year)
		if err != nil {
			slog.Warn("lexical fallback failed", "task", task.Description, "error", err)
			return nil
		}
		// BM25 scores are unbounded; normalize presence as a pass of the
		// similarity floor so the judge still sees the candidates.
		for _, r := range results {
			best[r.Key()] = models.MatchCandidate{
				Record:  r.CatalogRecord,
				Score:   s.rules.SimilarityFloor,
				Variant: task.Description,
			}
		}
	}

	candidates := make([]models.MatchCandidate, 0, len(best))
	for _, c := range best {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	return candidates
}

// expandQuery produces the lexical variants of a description: always the
// original first, then deterministic synonym substitutions in both
// directions.
func (s *ResolveService) expandQuery(description string) []string {
	variants := []string{description}
	seen := map[string]bool{description: true}
	lower := strings.ToLower(description)

	add := func(v string) {
		if !seen[v] {
			seen[v] = true
			variants = append(variants, v)
		}
	}

	for _, pair := range s.rules.Synonyms {
		if strings.Contains(lower, pair.From) {
			add(replaceFold(description, pair.From, pair.To))
		}
		if strings.Contains(lower, pair.To) {
			add(replaceFold(description, pair.To, pair.From))
		}
	}

	return variants
}

// replaceFold replaces the first case-insensitive occurrence of old.
func replaceFold(text, old, new string) string {
	idx := strings.Index(strings.ToLower(text), old)
	if idx < 0 {
		return text
	}
	return text[:idx] + new + text[idx+len(old):]
}

// priceRecord builds a line item from an accepted catalog record.
func (s *ResolveService) priceRecord(task models.Subtask, record models.CatalogRecord, confidence int, matchType models.MatchType, reason string) models.ResolvedLineItem {
	quantity := task.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	unit := record.Unit
	if unit == "" {
		unit = task.Unit
	}
	return models.ResolvedLineItem{
		Code:        record.Code,
		Description: record.Description,
		Unit:        unit,
		Quantity:    quantity,
		UnitPrice:   record.Price,
		TotalPrice:  round2(record.Price * quantity),
		MatchType:   matchType,
		Confidence:  confidence,
		Reason:      reason,
		Breakdown:   record.Breakdown,
		SourceYear:  record.Year,
		SourcePage:  record.Page,
	}
}

// estimate builds the heuristic fallback line item for an unmatched task.
func (s *ResolveService) estimate(task models.Subtask, reason string) models.ResolvedLineItem {
	quantity := task.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	price := s.rules.FallbackPrice(task.Unit)
	return models.ResolvedLineItem{
		Description: task.Description,
		Unit:        task.Unit,
		Quantity:    quantity,
		UnitPrice:   price,
		TotalPrice:  round2(price * quantity),
		MatchType:   models.MatchEstimate,
		Confidence:  0,
		IsEstimate:  true,
		NeedsReview: true,
		Reason:      reason,
	}
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
