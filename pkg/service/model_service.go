package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/choraleia/daydigest/pkg/config"
	"github.com/choraleia/daydigest/pkg/summarizer"
	"github.com/choraleia/daydigest/pkg/utils"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino-ext/components/model/qianfan"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	einoModel "github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

// ModelService turns the summarizer section of the config into a chat model.
type ModelService struct {
	logger *slog.Logger
}

func NewModelService() *ModelService {
	return &ModelService{logger: utils.GetLogger()}
}

// ResolveBackend decides once, at startup, which summarization backend is in
// effect. Any construction failure degrades to the heuristic-only backend.
func (m *ModelService) ResolveBackend(ctx context.Context, cfg *config.AppConfig) summarizer.Backend {
	if !cfg.RemoteConfigured() {
		m.logger.Info("No remote model configured, using heuristic summaries",
			"provider", cfg.SummarizerProvider())
		return summarizer.Unconfigured()
	}
	chatModel, err := m.CreateChatModel(ctx, cfg.Summarizer, cfg.SummarizerModel())
	if err != nil {
		m.logger.Warn("Failed to create remote model, using heuristic summaries",
			"provider", cfg.SummarizerProvider(), "error", err)
		return summarizer.Unconfigured()
	}
	label := cfg.SummarizerProvider() + "/" + cfg.SummarizerModel()
	m.logger.Info("Remote summarizer ready",
		"model", label,
		"base_url", cfg.Summarizer.BaseURL,
		"api_key", utils.MaskSensitiveString(cfg.Summarizer.APIKey))
	backend := summarizer.Remote(chatModel, label)
	if opts := KnowledgeOptions(cfg.SummarizerProvider()); len(opts) > 0 {
		backend = backend.WithKnowledgeOptions(opts...)
	}
	return backend
}

// KnowledgeOptions returns the per-call options that put provider into JSON
// output mode for knowledge extraction. Providers without a JSON mode get
// none and rely on the prompt.
func KnowledgeOptions(provider string) []einoModel.Option {
	switch provider {
	case "openai", "custom":
		return []einoModel.Option{openai.WithExtraFields(map[string]any{
			"response_format": &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})}
	default:
		return nil
	}
}

// CreateChatModel creates an eino chat model from config
func (m *ModelService) CreateChatModel(ctx context.Context, sc config.SummarizerConfig, modelName string) (einoModel.BaseChatModel, error) {
	provider := strings.ToLower(strings.TrimSpace(sc.Provider))
	if provider == "" {
		provider = config.DefaultProvider
	}

	switch provider {
	case "openai", "custom":
		chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: sc.BaseURL,
			APIKey:  sc.APIKey,
			Model:   modelName,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI model: %w", err)
		}
		return chatModel, nil

	case "ark":
		timeout := time.Second * 600
		retries := 3
		chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:    sc.BaseURL,
			Region:     sc.Extra["region"],
			Timeout:    &timeout,
			RetryTimes: &retries,
			APIKey:     sc.APIKey,
			Model:      modelName,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Ark model: %w", err)
		}
		return chatModel, nil

	case "deepseek":
		chatModel, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			BaseURL: sc.BaseURL,
			APIKey:  sc.APIKey,
			Model:   modelName,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create DeepSeek model: %w", err)
		}
		return chatModel, nil

	case "anthropic", "claude":
		var baseURL *string
		if sc.BaseURL != "" {
			baseURL = &sc.BaseURL
		}
		maxTokens := 8192
		if v, err := strconv.Atoi(sc.Extra["max_tokens"]); err == nil && v > 0 {
			maxTokens = v
		}
		chatModel, err := claude.NewChatModel(ctx, &claude.Config{
			BaseURL:   baseURL,
			APIKey:    sc.APIKey,
			Model:     modelName,
			MaxTokens: maxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Claude model: %w", err)
		}
		return chatModel, nil

	case "ollama":
		chatModel, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: sc.BaseURL,
			Model:   modelName,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama model: %w", err)
		}
		return chatModel, nil

	case "google", "gemini":
		genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  sc.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client: genaiClient,
			Model:  modelName,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini model: %w", err)
		}
		return chatModel, nil

	case "qianfan":
		qianfanConfig := qianfan.GetQianfanSingletonConfig()
		qianfanConfig.BaseURL = sc.BaseURL
		qianfanConfig.BearerToken = sc.APIKey
		chatModel, err := qianfan.NewChatModel(ctx, &qianfan.ChatModelConfig{
			Model: modelName,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Qianfan model: %w", err)
		}
		return chatModel, nil

	case "qwen":
		chatModel, err := qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
			BaseURL: sc.BaseURL,
			APIKey:  sc.APIKey,
			Model:   modelName,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Qwen model: %w", err)
		}
		return chatModel, nil

	default:
		return nil, fmt.Errorf("unsupported model provider: %s", provider)
	}
}
