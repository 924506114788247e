package llm

import (
	"context"
	"slices"
	"sort"

	"github.com/angelmondragon/symmetri/pkg/config"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// Embedding names a provider's embedding model and its vector length.
type Embedding struct {
	Model        string
	VectorLength int
}

// Entry lists the completion models a provider accepts.
type Entry struct {
	Models    []string
	Embedding Embedding
}

// Registry holds the supported providers and models.
var Registry = map[string]Entry{
	ProviderOpenAI: {
		Models:    []string{"gpt-4o", "gpt-4o-mini"},
		Embedding: Embedding{Model: "text-embedding-3-small", VectorLength: 1536},
	},
	ProviderAnthropic: {
		Models:    []string{"claude-3-7-sonnet-latest", "claude-3-5-haiku-latest"},
		Embedding: Embedding{Model: "voyage-3", VectorLength: 1024},
	},
	ProviderGoogle: {
		Models:    []string{"gemini-2.5-flash", "gemini-2.5-pro"},
		Embedding: Embedding{Model: "text-embedding-004", VectorLength: 768},
	},
}

// Providers returns the registered provider names, sorted.
func Providers() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup validates a provider and model pair against the registry.
func Lookup(name, model string) (Entry, error) {
	entry, ok := Registry[name]
	if !ok {
		return Entry{}, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown llm provider %q", name)
	}
	if !slices.Contains(entry.Models, model) {
		return Entry{}, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown model %q for llm %q", model, name)
	}
	return entry, nil
}

// New builds the provider named by name with credentials from cfg.
func New(ctx context.Context, name, model string, cfg config.LLMConfig, opts ...Option) (LLM, error) {
	entry, err := Lookup(name, model)
	if err != nil {
		return nil, err
	}
	base := []Option{WithTimeout(cfg.Timeout)}

	switch name {
	case ProviderOpenAI:
		c, err := NewOpenAI(cfg.OpenAIAPIKey, model, entry.Embedding.Model, withBase(base, cfg.OpenAIBaseURL, opts)...)
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderAnthropic:
		var voyage *Voyage
		if cfg.VoyageAPIKey != "" {
			if voyage, err = NewVoyage(cfg.VoyageAPIKey, withBase(base, cfg.VoyageBaseURL, opts)...); err != nil {
				return nil, err
			}
		}
		c, err := NewAnthropic(cfg.AnthropicAPIKey, model, entry.Embedding.Model, voyage, withBase(base, cfg.AnthropicURL, opts)...)
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderGoogle:
		c, err := NewGoogle(ctx, cfg.GeminiAPIKey, model, entry.Embedding.Model, append(base, opts...)...)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown llm provider %q", name)
	}
}

func withBase(base []Option, baseURL string, opts []Option) []Option {
	out := make([]Option, 0, len(base)+len(opts)+1)
	out = append(out, base...)
	out = append(out, WithBaseURL(baseURL))
	return append(out, opts...)
}
