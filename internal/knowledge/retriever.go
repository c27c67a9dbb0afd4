package knowledge

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	apperrors "github.com/aihub/search-go/internal/errors"
	"github.com/aihub/search-go/internal/logger"
)

// SourceType 检索来源类型
type SourceType string

const (
	SourceDocument SourceType = "document"
	SourceWeb      SourceType = "web"
)

// Source 检索结果来源，供提示词组装与响应返回
type Source struct {
	Type          SourceType `json:"type"`
	ChunkID       string     `json:"chunk_id,omitempty"`
	DocumentID    string     `json:"document_id,omitempty"`
	Title         string     `json:"title,omitempty"`
	URL           string     `json:"url,omitempty"`
	Content       string     `json:"content"`
	Distance      float64    `json:"distance,omitempty"`
	Score         float64    `json:"score,omitempty"`
	SequenceIndex int        `json:"sequence_index,omitempty"`
}

// RetrieveRequest 混合检索请求
type RetrieveRequest struct {
	Query      string
	TopK       int
	IncludeWeb bool
}

// RetrieveResult 混合检索结果。Degraded表示网络搜索失败已降级为纯文档检索。
type RetrieveResult struct {
	Sources  []Source
	Degraded bool
}

const (
	defaultTopK = 5
	maxTopK     = 10
)

// Retriever 组合文档向量检索与网络搜索
type Retriever struct {
	embedder    Embedder
	vectorStore VectorStore
	webClient   WebSearchClient
}

// NewRetriever 创建检索器
func NewRetriever(embedder Embedder, vectorStore VectorStore, webClient WebSearchClient) *Retriever {
	if webClient == nil {
		webClient = &NoopWebSearchClient{}
	}
	return &Retriever{
		embedder:    embedder,
		vectorStore: vectorStore,
		webClient:   webClient,
	}
}

// NormalizeTopK 将TopK钳制在[1, 10]，0或负值取默认值5
func NormalizeTopK(topK int) int {
	if topK <= 0 {
		return defaultTopK
	}
	if topK > maxTopK {
		return maxTopK
	}
	return topK
}

// Retrieve 执行混合检索。文档检索与网络搜索并行发起；
// 向量化或索引失败使整个请求失败，网络搜索失败仅降级。
// 结果顺序固定：文档来源按距离升序在前，网络来源按提供方顺序在后。
func (r *Retriever) Retrieve(ctx context.Context, req RetrieveRequest) (*RetrieveResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, errors.New("query cannot be empty")
	}
	topK := NormalizeTopK(req.TopK)

	var (
		wg         sync.WaitGroup
		docMatches []VectorMatch
		docErr     error
		webResults []WebResult
		webErr     error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		docMatches, docErr = r.searchDocuments(ctx, req.Query, topK)
	}()

	includeWeb := req.IncludeWeb && r.webClient.Ready()
	if includeWeb {
		wg.Add(1)
		go func() {
			defer wg.Done()
			webResults, webErr = r.webClient.Search(ctx, req.Query)
		}()
	}

	wg.Wait()

	if docErr != nil {
		return nil, docErr
	}

	result := &RetrieveResult{}
	if webErr != nil {
		// 网络搜索失败不影响请求，记录警告并降级
		logger.Warn("网络搜索失败，降级为纯文档检索",
			zap.String("query", req.Query), zap.Error(webErr))
		result.Degraded = true
		webResults = nil
	}

	for _, m := range docMatches {
		result.Sources = append(result.Sources, Source{
			Type:          SourceDocument,
			ChunkID:       m.ChunkID,
			DocumentID:    m.DocumentID,
			Content:       m.Content,
			Distance:      m.Distance,
			SequenceIndex: m.SequenceIndex,
		})
	}
	for _, w := range webResults {
		result.Sources = append(result.Sources, Source{
			Type:    SourceWeb,
			Title:   w.Title,
			URL:     w.URL,
			Content: w.Content,
			Score:   w.Score,
		})
	}

	return result, nil
}

// searchDocuments 向量化查询并在索引中检索
func (r *Retriever) searchDocuments(ctx context.Context, query string, topK int) ([]VectorMatch, error) {
	if r.embedder == nil || !r.embedder.Ready() {
		return nil, apperrors.NewEmbeddingUnavailableError(errors.New("embedder not configured"))
	}
	if r.vectorStore == nil || !r.vectorStore.Ready() {
		return nil, apperrors.NewIndexUnavailableError(errors.New("vector store not ready"))
	}

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := r.vectorStore.Search(ctx, VectorSearchRequest{
		QueryEmbedding: embedding,
		TopK:           topK,
	})
	if err != nil {
		return nil, apperrors.NewIndexUnavailableError(err)
	}
	return matches, nil
}
