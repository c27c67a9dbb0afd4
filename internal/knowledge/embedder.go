package knowledge

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	apperrors "github.com/aihub/search-go/internal/errors"
)

// Embedder 定义文本向量化接口。向量维度在进程生命周期内固定。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Ready() bool
}

// NoopEmbedder 默认占位实现
type NoopEmbedder struct{}

func (n *NoopEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, apperrors.NewEmbeddingUnavailableError(errors.New("embedding provider not configured"))
}

func (n *NoopEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, apperrors.NewEmbeddingUnavailableError(errors.New("embedding provider not configured"))
}

func (n *NoopEmbedder) Dimensions() int {
	return 0
}

func (n *NoopEmbedder) Ready() bool {
	return false
}

var embeddingDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedder 使用OpenAI Embedding API
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	limiter    sync.Mutex
}

// NewOpenAIEmbedder 创建OpenAI嵌入向量生成器
func NewOpenAIEmbedder(apiKey, model string) Embedder {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return &NoopEmbedder{}
	}
	if model == "" {
		model = "text-embedding-3-small"
	}

	client := openai.NewClient(apiKey)
	dims, ok := embeddingDimensions[model]
	if !ok {
		dims = 1536
	}

	return &OpenAIEmbedder{
		client:     client,
		model:      model,
		dimensions: dims,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("texts is empty")
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, errors.New("text is empty")
		}
	}
	if e.client == nil {
		return nil, apperrors.NewEmbeddingUnavailableError(errors.New("openai client not initialized"))
	}

	e.limiter.Lock()
	defer e.limiter.Unlock()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, apperrors.NewEmbeddingUnavailableError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, apperrors.NewEmbeddingUnavailableError(errors.New("embedding response incomplete"))
	}

	results := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		vec := make([]float32, len(item.Embedding))
		copy(vec, item.Embedding)
		results[i] = vec
	}
	return results, nil
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *OpenAIEmbedder) Ready() bool {
	return e.client != nil
}

// HashEmbedder 确定性哈希向量生成器，用于无外部依赖的本地部署与测试。
// 以文本MD5作为随机种子生成单位向量，相同文本必然得到相同向量。
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder 创建哈希向量生成器
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text is empty")
	}

	sum := md5.Sum([]byte(text))
	seed := int64(binary.BigEndian.Uint64(sum[:8]))
	rng := rand.New(rand.NewSource(seed))

	vec := make([]float32, e.dimensions)
	var norm float64
	for i := range vec {
		v := rng.Float64()
		vec[i] = float32(v)
		norm += v * v
	}

	// 归一化为单位向量
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}

func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = vec
	}
	return results, nil
}

func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *HashEmbedder) Ready() bool {
	return true
}

// LazyEmbedder 延迟初始化包装器，并发首次调用时保证底层Embedder只构造一次
type LazyEmbedder struct {
	factory func() Embedder
	once    sync.Once
	inner   Embedder
}

// NewLazyEmbedder 创建延迟初始化的向量生成器
func NewLazyEmbedder(factory func() Embedder) *LazyEmbedder {
	return &LazyEmbedder{factory: factory}
}

func (e *LazyEmbedder) get() Embedder {
	e.once.Do(func() {
		e.inner = e.factory()
		if e.inner == nil {
			e.inner = &NoopEmbedder{}
		}
	})
	return e.inner
}

func (e *LazyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.get().Embed(ctx, text)
}

func (e *LazyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.get().EmbedBatch(ctx, texts)
}

func (e *LazyEmbedder) Dimensions() int {
	return e.get().Dimensions()
}

func (e *LazyEmbedder) Ready() bool {
	return e.get().Ready()
}
