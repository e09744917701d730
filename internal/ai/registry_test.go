package ai

import (
	"context"
	"testing"

	"github.com/headline-ai/headline-server/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		OllamaBaseURL:     "http://ollama.test:11434",
		OllamaModel:       "llama3:latest",
		OpenRouterBaseURL: "https://openrouter.test/api/v1",
		OpenRouterModel:   "openrouter/auto",
	}
}

func TestRegistryFromConfig_DefaultModel(t *testing.T) {
	reg := NewRegistryFromConfig(testConfig())

	p, err := reg.Get(context.Background(), "ollama", "")
	if err != nil {
		t.Fatalf("get ollama: %v", err)
	}
	op, ok := p.(*OllamaProvider)
	if !ok {
		t.Fatalf("expected *OllamaProvider, got %T", p)
	}
	if op.Model != "llama3:latest" {
		t.Fatalf("expected configured default model, got %q", op.Model)
	}
	if op.BaseURL != "http://ollama.test:11434" {
		t.Fatalf("expected configured base url, got %q", op.BaseURL)
	}
}

func TestRegistryFromConfig_ExplicitModelWins(t *testing.T) {
	reg := NewRegistryFromConfig(testConfig())

	p, err := reg.Get(context.Background(), "ollama", "mistral:7b")
	if err != nil {
		t.Fatalf("get ollama: %v", err)
	}
	if m := p.(*OllamaProvider).Model; m != "mistral:7b" {
		t.Fatalf("expected requested model, got %q", m)
	}
}

func TestRegistry_NameNormalization(t *testing.T) {
	reg := NewRegistryFromConfig(testConfig())

	if _, err := reg.Get(context.Background(), "  OpenRouter ", ""); err != nil {
		t.Fatalf("expected normalized lookup to succeed, got %v", err)
	}
	if _, err := reg.Get(context.Background(), "no-such-provider", ""); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}
