package adapter

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/mistral"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/aionlabs/aion/engine/core"
	"github.com/aionlabs/aion/pkg/config"
)

// Factory builds and caches provider clients from the runtime credentials.
type Factory struct {
	providers *config.ProvidersConfig

	mu    sync.Mutex
	cache map[string]Client
}

func NewFactory(providers *config.ProvidersConfig) *Factory {
	return &Factory{providers: providers, cache: make(map[string]Client)}
}

// Available reports whether a provider has usable credentials. Ollama needs
// only a configured host.
func (f *Factory) Available(provider core.ProviderName) bool {
	switch provider {
	case core.ProviderAnthropic:
		return f.providers.AnthropicAPIKey.String() != ""
	case core.ProviderOpenAI:
		return f.providers.OpenAIAPIKey.String() != ""
	case core.ProviderMistral:
		return f.providers.MistralAPIKey.String() != ""
	case core.ProviderGrok:
		return f.providers.GrokAPIKey.String() != ""
	case core.ProviderOllama:
		return f.providers.OllamaHost != ""
	}
	return false
}

// Client returns a completion client for the provider/model pair, building
// it on first use.
func (f *Factory) Client(provider core.ProviderName, model string) (Client, error) {
	key := provider.String() + "/" + model
	f.mu.Lock()
	defer f.mu.Unlock()
	if client, ok := f.cache[key]; ok {
		return client, nil
	}
	llm, err := f.buildModel(provider, model)
	if err != nil {
		return nil, err
	}
	client, err := NewLangchainClient(provider, model, llm)
	if err != nil {
		return nil, err
	}
	f.cache[key] = client
	return client, nil
}

func (f *Factory) buildModel(provider core.ProviderName, model string) (llms.Model, error) {
	switch provider {
	case core.ProviderAnthropic:
		return f.buildAnthropic(model)
	case core.ProviderOpenAI:
		return f.buildOpenAI(model)
	case core.ProviderMistral:
		return f.buildMistral(model)
	case core.ProviderGrok:
		return f.buildGrok(model)
	case core.ProviderOllama:
		return f.buildOllama(model)
	default:
		return nil, core.NewError(errors.New("unsupported provider"), "UNSUPPORTED_PROVIDER",
			map[string]any{"provider": provider})
	}
}

func (f *Factory) buildAnthropic(model string) (llms.Model, error) {
	llm, err := anthropic.New(
		anthropic.WithToken(f.providers.AnthropicAPIKey.String()),
		anthropic.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("adapter: create anthropic client: %w", err)
	}
	return llm, nil
}

func (f *Factory) buildOpenAI(model string) (llms.Model, error) {
	llm, err := openai.New(
		openai.WithToken(f.providers.OpenAIAPIKey.String()),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("adapter: create openai client: %w", err)
	}
	return llm, nil
}

func (f *Factory) buildMistral(model string) (llms.Model, error) {
	llm, err := mistral.New(
		mistral.WithAPIKey(f.providers.MistralAPIKey.String()),
		mistral.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("adapter: create mistral client: %w", err)
	}
	return llm, nil
}

// buildGrok uses the OpenAI-compatible surface of the xAI API.
func (f *Factory) buildGrok(model string) (llms.Model, error) {
	baseURL := f.providers.GrokBaseURL
	if baseURL == "" {
		baseURL = "https://api.x.ai/v1"
	}
	llm, err := openai.New(
		openai.WithToken(f.providers.GrokAPIKey.String()),
		openai.WithModel(model),
		openai.WithBaseURL(baseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("adapter: create grok client: %w", err)
	}
	return llm, nil
}

func (f *Factory) buildOllama(model string) (llms.Model, error) {
	opts := []ollama.Option{ollama.WithModel(model)}
	if f.providers.OllamaHost != "" {
		opts = append(opts, ollama.WithServerURL(f.providers.OllamaHost))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("adapter: create ollama client: %w", err)
	}
	return llm, nil
}
