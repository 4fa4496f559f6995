package service

import (
	"context"
	"testing"

	"github.com/choraleia/daydigest/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestResolveBackend(t *testing.T) {
	tests := []struct {
		name       string
		summarizer config.SummarizerConfig
		configured bool
		label      string
		jsonMode   bool
	}{
		{
			name:       "no key",
			summarizer: config.SummarizerConfig{Provider: "openai", Model: "gpt-4o-mini"},
		},
		{
			name:       "openai with key",
			summarizer: config.SummarizerConfig{Provider: "OpenAI", APIKey: "sk-test", Model: "gpt-4o-mini"},
			configured: true,
			label:      "openai/gpt-4o-mini",
			jsonMode:   true,
		},
		{
			name:       "custom endpoint",
			summarizer: config.SummarizerConfig{Provider: "custom", APIKey: "k", BaseURL: "http://127.0.0.1:9/v1", Model: "local"},
			configured: true,
			label:      "custom/local",
			jsonMode:   true,
		},
		{
			name:       "deepseek has no json mode",
			summarizer: config.SummarizerConfig{Provider: "deepseek", APIKey: "k", Model: "deepseek-chat"},
			configured: true,
			label:      "deepseek/deepseek-chat",
		},
		{
			name:       "unsupported provider",
			summarizer: config.SummarizerConfig{Provider: "nope", APIKey: "k", Model: "m"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.AppConfig{Summarizer: tt.summarizer}
			backend := NewModelService().ResolveBackend(context.Background(), cfg)

			assert.Equal(t, tt.configured, backend.Configured())
			assert.Equal(t, tt.label, backend.Label())
			if tt.jsonMode {
				assert.Len(t, backend.KnowledgeOptions(), 1)
			} else {
				assert.Empty(t, backend.KnowledgeOptions())
			}
		})
	}
}

func TestKnowledgeOptions(t *testing.T) {
	assert.Len(t, KnowledgeOptions("openai"), 1)
	assert.Len(t, KnowledgeOptions("custom"), 1)
	assert.Nil(t, KnowledgeOptions("claude"))
	assert.Nil(t, KnowledgeOptions("ollama"))
}
