package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avelar/costbook-go/internal/config"
	"github.com/avelar/costbook-go/internal/llm"
	"github.com/avelar/costbook-go/internal/metrics"
	"github.com/avelar/costbook-go/internal/models"
)

// Request is a budget request variant. Dispatch is by explicit type
// switch, never by probing optional fields.
type Request interface {
	isRequest()
}

// DecomposeDescription asks for a full budget from a free-text work
// description: one decomposition call, then one resolution per subtask.
type DecomposeDescription struct {
	Description string
}

func (DecomposeDescription) isRequest() {}

// OptimizeExistingItem re-prices a single known line item against the
// catalog without decomposing it.
type OptimizeExistingItem struct {
	Description string
	Quantity    float64
	Unit        string
}

func (OptimizeExistingItem) isRequest() {}

// Progress is one user-facing progress event.
type Progress struct {
	Stage   string // "decompose", "resolve", "aggregate"
	Message string
	Index   int // 1-based subtask index, 0 outside the resolve loop
	Total   int
}

// ProgressSink consumes progress events in emission order.
type ProgressSink interface {
	Publish(Progress)
}

// ProgressFunc adapts a function to the ProgressSink interface.
type ProgressFunc func(Progress)

// Publish calls f(p).
func (f ProgressFunc) Publish(p Progress) { f(p) }

type discardSink struct{}

func (discardSink) Publish(Progress) {}

// Resolver prices one subtask. Implemented by ResolveService.
type Resolver interface {
	Resolve(ctx context.Context, task models.Subtask, year int) (models.ResolvedLineItem, llm.Usage, error)
}

// Decomposer splits a description into subtasks. Implemented by
// llm.Model.
type Decomposer interface {
	DecomposeTask(ctx context.Context, description string) ([]models.Subtask, llm.Usage, error)
}

// BudgetService composes decomposition and per-subtask resolution into a
// full priced budget.
type BudgetService struct {
	resolver   Resolver
	decomposer Decomposer
	rules      config.Rules
	metrics    *metrics.Collector
}

// NewBudgetService creates a budget service.
func NewBudgetService(resolver Resolver, decomposer Decomposer, rules config.Rules, collector *metrics.Collector) *BudgetService {
	return &BudgetService{
		resolver:   resolver,
		decomposer: decomposer,
		rules:      rules,
		metrics:    collector,
	}
}

// ResolveAll prices a budget request against one catalog year. Subtasks
// are resolved strictly sequentially so the sink observes events in
// order. A nil sink discards progress.
func (s *BudgetService) ResolveAll(ctx context.Context, req Request, year int, sink ProgressSink) ([]models.ResolvedLineItem, llm.Usage, error) {
	if sink == nil {
		sink = discardSink{}
	}
	var usage llm.Usage

	var subtasks []models.Subtask
	switch r := req.(type) {
	case DecomposeDescription:
		sink.Publish(Progress{Stage: "decompose", Message: "descomponiendo la petición en partidas"})

		began := time.Now()
		tasks, decomposeUsage, err := s.decomposer.DecomposeTask(ctx, r.Description)
		usage.Add(decomposeUsage)
		if s.metrics != nil {
			s.metrics.RecordLLMUsage(metrics.OpDecompose, time.Since(began), decomposeUsage.InputTokens, decomposeUsage.OutputTokens)
		}
		if err != nil {
			return nil, usage, fmt.Errorf("decompose: %w", err)
		}
		subtasks = tasks

	case OptimizeExistingItem:
		subtasks = []models.Subtask{{
			Description: r.Description,
			Quantity:    r.Quantity,
			Unit:        r.Unit,
		}}

	default:
		return nil, usage, fmt.Errorf("unknown request type %T", req)
	}

	items := make([]models.ResolvedLineItem, 0, len(subtasks))
	for i, task := range subtasks {
		sink.Publish(Progress{
			Stage:   "resolve",
			Message: task.Description,
			Index:   i + 1,
			Total:   len(subtasks),
		})

		item, resolveUsage, err := s.resolver.Resolve(ctx, task, year)
		usage.Add(resolveUsage)
		if err != nil {
			// A subtask is never silently dropped; a hard resolver error
			// degrades to an unpriced review entry.
			slog.Warn("subtask resolution failed", "task", task.Description, "error", err)
			item = models.ResolvedLineItem{
				Description: task.Description,
				Unit:        task.Unit,
				Quantity:    task.Quantity,
				MatchType:   models.MatchEstimate,
				IsEstimate:  true,
				NeedsReview: true,
				Reason:      fmt.Sprintf("resolución fallida: %v", err),
			}
		}
		items = append(items, item)
	}

	sink.Publish(Progress{Stage: "aggregate", Message: "agregando partidas repetidas"})
	return s.aggregate(items), usage, nil
}

// aggregate merges repeated matches to the same catalog code, applies
// the singular-resource quantity cap and renumbers positions 1..N.
func (s *BudgetService) aggregate(items []models.ResolvedLineItem) []models.ResolvedLineItem {
	merged := make(map[string]*models.ResolvedLineItem)
	var order []string

	for _, item := range items {
		// Matched items merge by catalog code; unmatched ones stay
		// distinct per description.
		key := "code:" + item.Code
		if item.Code == "" {
			key = "desc:" + item.Description
		}

		if prev, ok := merged[key]; ok {
			prev.Quantity += item.Quantity
			prev.TotalPrice = round2(prev.UnitPrice * prev.Quantity)
			continue
		}
		copied := item
		merged[key] = &copied
		order = append(order, key)
	}

	result := make([]models.ResolvedLineItem, 0, len(order))
	for i, key := range order {
		item := *merged[key]
		if item.Quantity > 1 && s.isSingular(item.Description) {
			slog.Info("capping singular resource quantity", "item", item.Description, "quantity", item.Quantity)
			item.Quantity = 1
			item.TotalPrice = round2(item.UnitPrice)
		}
		item.Position = i + 1
		result = append(result, item)
	}
	return result
}

// isSingular reports whether the description names a resource that
// physically cannot recur per unit of work.
func (s *BudgetService) isSingular(description string) bool {
	lower := strings.ToLower(description)
	for _, keyword := range s.rules.SingularKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
