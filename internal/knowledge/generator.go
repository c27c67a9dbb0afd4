package knowledge

import (
	"context"
	"errors"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	apperrors "github.com/aihub/search-go/internal/errors"
	"github.com/aihub/search-go/internal/logger"
)

// Generator 回答生成接口。单次同步调用，失败不在内部重试。
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Ready() bool
}

// NoopGenerator 未配置生成服务时的占位实现
type NoopGenerator struct{}

func (n *NoopGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "", apperrors.NewGenerationUnavailableError(errors.New("generation provider not configured"))
}

func (n *NoopGenerator) Ready() bool {
	return false
}

// OpenAIGenerator 使用OpenAI Chat Completion API生成回答
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	limiter     sync.Mutex
}

// NewOpenAIGenerator 创建OpenAI生成器
func NewOpenAIGenerator(apiKey, model string, maxTokens int, temperature float64) Generator {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return &NoopGenerator{}
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	return &OpenAIGenerator{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Generate 调用LLM生成回答，失败返回GENERATION_UNAVAILABLE
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.client == nil {
		return "", apperrors.NewGenerationUnavailableError(errors.New("openai client not initialized"))
	}

	g.limiter.Lock()
	defer g.limiter.Unlock()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   g.maxTokens,
		Temperature: float32(g.temperature),
	})
	if err != nil {
		return "", apperrors.NewGenerationUnavailableError(err)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.NewGenerationUnavailableError(errors.New("empty completion response"))
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	logger.Debug("生成回答成功",
		zap.String("model", g.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))

	return answer, nil
}

// Ready 检查生成器是否可用
func (g *OpenAIGenerator) Ready() bool {
	return g != nil && g.client != nil
}
