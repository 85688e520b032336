package llm

import (
	"context"
	"fmt"

	"github.com/markdave123-py/Homedex/internal/config"
	"github.com/markdave123-py/Homedex/internal/core"
)

// Providers bundles the model roles the app needs.
type Providers struct {
	Chat        core.LLMProvider
	Translation core.LLMProvider
	Vision      core.VisionProvider
	Embedder    core.EmbeddingProvider

	closers []func() error
}

// Close releases any SDK clients. Safe to call more than once.
func (p *Providers) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	p.closers = nil
	return first
}

// NewProviders builds the model clients selected by cfg.LLMProvider.
func NewProviders(ctx context.Context, cfg *config.Config) (*Providers, error) {
	switch cfg.LLMProvider {
	case "", "ollama":
		base := NewOllamaClient(OllamaConfig{
			BaseURL:     cfg.OllamaURL,
			ChatModel:   cfg.LLMModel,
			VisionModel: cfg.OCRModel,
			EmbedModel:  cfg.EmbedModel,
			Timeout:     cfg.OCRTimeout,
			MaxRetries:  cfg.ModelMaxRetries,
		})
		return &Providers{
			Chat:        base,
			Translation: base.WithModel(cfg.TranslationModel).WithTemperature(0.1),
			Vision:      base,
			Embedder:    base,
		}, nil

	case "gemini":
		gen, err := NewGeminiLLM(ctx, cfg.AIAPIKey, cfg.GenModel)
		if err != nil {
			return nil, fmt.Errorf("gemini llm: %w", err)
		}
		emb, err := NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.GeminiEmbedModel)
		if err != nil {
			_ = gen.Close()
			return nil, fmt.Errorf("gemini embedder: %w", err)
		}
		return &Providers{
			Chat:        gen,
			Translation: gen.WithTemperature(0.1),
			Vision:      gen,
			Embedder:    emb,
			closers:     []func() error{gen.Close, emb.Close},
		}, nil

	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}
