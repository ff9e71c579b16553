package factory

import (
	"ai-docchat-be/pkg/llm"
	"ai-docchat-be/pkg/llm/ollama"
	"ai-docchat-be/pkg/llm/openai"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidModelName = errors.New("model name must look like provider/model")

func NewLLMProvider(providerType, modelName, baseURL, apiKey string) (llm.LLMProvider, error) {
	switch providerType {
	case "ollama":
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(baseURL, modelName), nil
	case "openai":
		if apiKey == "" {
			return nil, errors.New("openai provider requires an API key")
		}
		return openai.NewOpenAIProvider(apiKey, modelName, baseURL), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", providerType)
	}
}

// ParseModelName splits a fully specified "provider/model" name.
func ParseModelName(fullName string) (provider, model string, err error) {
	provider, model, ok := strings.Cut(strings.TrimSpace(fullName), "/")
	if !ok || provider == "" || model == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidModelName, fullName)
	}
	return provider, model, nil
}
