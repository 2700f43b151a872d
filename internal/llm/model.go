// Package llm provides LLM and embedding services using langchaingo.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avelar/costbook-go/internal/config"
	"github.com/avelar/costbook-go/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Usage carries token counts for one generation call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Add accumulates another call's usage.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Model wraps a langchaingo LLM for text generation.
type Model struct {
	llm       llms.Model
	modelName string
}

// NewModel creates an LLM model based on configuration.
func NewModel(cfg config.Config) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Model{
		llm:       model,
		modelName: cfg.LLMModel,
	}, nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// GenerateWithSystem generates text with a system prompt.
func (m *Model) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	response, _, err := m.generate(ctx, systemPrompt, userPrompt)
	return response, err
}

// GenerateJSON generates text expected to contain a JSON document and
// reports token usage. The caller is responsible for parsing; CleanJSON
// strips fences and repairs common formatting slips first.
func (m *Model) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error) {
	response, usage, err := m.generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", usage, err
	}
	return CleanJSON(response), usage, nil
}

func (m *Model) generate(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	response, err := m.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", Usage{}, wrapFatalError(fmt.Errorf("generate: %w", err))
	}

	if len(response.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("no response choices")
	}

	choice := response.Choices[0]
	return choice.Content, usageFromGenerationInfo(choice.GenerationInfo), nil
}

// usageFromGenerationInfo extracts token counts from provider-specific
// generation info keys (OpenAI and Anthropic name them differently).
func usageFromGenerationInfo(info map[string]any) Usage {
	var usage Usage
	for _, key := range []string{"PromptTokens", "InputTokens"} {
		if v, ok := asInt64(info[key]); ok {
			usage.InputTokens = v
			break
		}
	}
	for _, key := range []string{"CompletionTokens", "OutputTokens"} {
		if v, ok := asInt64(info[key]); ok {
			usage.OutputTokens = v
			break
		}
	}
	return usage
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// DecomposeTask breaks a high-level work description into an ordered list
// of atomic, independently priceable subtasks.
func (m *Model) DecomposeTask(ctx context.Context, description string) ([]models.Subtask, Usage, error) {
	systemPrompt := `Eres un técnico de mediciones y presupuestos de obra.
Descompón la petición del usuario en partidas atómicas presupuestables.

Responde SOLO con JSON:
{"subtasks": [{"description": "...", "quantity": 0.0, "unit": "..."}]}

Reglas:
- Cada partida debe ser una unidad de obra buscable en un banco de precios.
- Usa unidades normalizadas: m², m³, m, ud, h, kg.
- La cantidad es numérica (punto decimal), nunca texto.
- Conserva el orden natural de ejecución.`

	raw, usage, err := m.GenerateJSON(ctx, systemPrompt, description)
	if err != nil {
		return nil, usage, fmt.Errorf("decompose task: %w", err)
	}

	var parsed struct {
		Subtasks []models.Subtask `json:"subtasks"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, usage, fmt.Errorf("parse decomposition: %w", err)
	}
	if len(parsed.Subtasks) == 0 {
		return nil, usage, fmt.Errorf("decomposition produced no subtasks")
	}
	return parsed.Subtasks, usage, nil
}

// SelectBestMatch asks the judge to pick the single candidate that is
// semantically equivalent to the task, or none. Returns a 0-based index
// into candidates, or -1 when no candidate is accepted. Malformed or
// out-of-range judge output is treated as rejection, never guessed at.
func (m *Model) SelectBestMatch(ctx context.Context, task string, candidates []models.MatchCandidate) (int, Usage, error) {
	if len(candidates) == 0 {
		return -1, Usage{}, nil
	}

	var list strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&list, "%d. [%s] %s — %.2f €/%s\n",
			i+1, c.Record.Code, c.Record.Description, c.Record.Price, c.Record.Unit)
	}

	systemPrompt := `Eres un verificador de partidas de obra. Se te da una tarea
y una lista corta de candidatos de un banco de precios.

Elige el único candidato que cubre semánticamente la misma unidad de obra
(mismo trabajo, mismo alcance). Parecido textual NO es suficiente.

Responde SOLO con JSON: {"best": N} donde N es el número del candidato,
o {"best": 0} si ninguno es equivalente.`

	userPrompt := fmt.Sprintf("Tarea: %s\n\nCandidatos:\n%s", task, list.String())

	raw, usage, err := m.GenerateJSON(ctx, systemPrompt, userPrompt)
	if err != nil {
		return -1, usage, fmt.Errorf("judge candidates: %w", err)
	}

	var parsed struct {
		Best int `json:"best"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		slog.Warn("judge returned malformed output, treating as rejection", "output", raw)
		return -1, usage, nil
	}
	if parsed.Best < 1 || parsed.Best > len(candidates) {
		return -1, usage, nil
	}
	return parsed.Best - 1, usage, nil
}
