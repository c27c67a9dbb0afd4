package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/aihub/search-go/internal/errors"
	"github.com/aihub/search-go/internal/kafka"
	"github.com/aihub/search-go/internal/knowledge"
	"github.com/aihub/search-go/internal/logger"
	"github.com/aihub/search-go/internal/models"
	"github.com/aihub/search-go/internal/storage"
)

const (
	indexSnapshotKey = "index/snapshot.json"
	requestTimeout   = 60 * time.Second
)

// ChatRequest 对话请求
type ChatRequest struct {
	Query          string
	ConversationID string
	TopK           int
	IncludeWeb     bool
}

// ChatResponse 对话响应
type ChatResponse struct {
	Answer         string             `json:"answer"`
	ConversationID string             `json:"conversation_id"`
	Sources        []knowledge.Source `json:"sources"`
	Degraded       bool               `json:"degraded,omitempty"`
}

// ConversationStore 对话记录存储。编排服务只依赖这三个操作
type ConversationStore interface {
	CreateConversation(ctx context.Context) (*models.ConversationRecord, error)
	GetConversation(ctx context.Context, conversationID string) (*models.ConversationRecord, error)
	AppendTurn(ctx context.Context, conversationID, userContent, assistantContent string) (*models.ConversationRecord, error)
}

// RAGService 检索增强生成编排服务。负责文档摄入、检索、对话生成
// 与删除级联，并维护向量索引与权威存储的一致性。
// 索引变更由写锁串行化，单写者假设：同一时刻只有本进程写索引。
type RAGService struct {
	chunker       *knowledge.Chunker
	embedder      knowledge.Embedder
	vectorStore   knowledge.VectorStore
	memoryIndex   *knowledge.MemoryVectorIndex
	retriever     *knowledge.Retriever
	promptBuilder *knowledge.PromptBuilder
	generator     knowledge.Generator
	indexer       knowledge.FulltextIndexer
	documents     *DocumentService
	conversations ConversationStore
	chunkCache    *RedisChunkStore
	blobStore     *storage.BlobStore
	metrics       *MetricsService
	historyTurns  int

	snapshotting atomic.Bool
}

// RAGServiceOptions 编排服务依赖
type RAGServiceOptions struct {
	Chunker       *knowledge.Chunker
	Embedder      knowledge.Embedder
	VectorStore   knowledge.VectorStore
	MemoryIndex   *knowledge.MemoryVectorIndex // 使用外置向量库时为nil
	WebClient     knowledge.WebSearchClient
	PromptBuilder *knowledge.PromptBuilder
	Generator     knowledge.Generator
	Indexer       knowledge.FulltextIndexer
	Documents     *DocumentService
	Conversations ConversationStore
	ChunkCache    *RedisChunkStore
	BlobStore     *storage.BlobStore
	Metrics       *MetricsService
	HistoryTurns  int
}

// NewRAGService 创建编排服务
func NewRAGService(opts RAGServiceOptions) *RAGService {
	if opts.Indexer == nil {
		opts.Indexer = &knowledge.NoopFulltextIndexer{}
	}
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = 5
	}
	return &RAGService{
		chunker:       opts.Chunker,
		embedder:      opts.Embedder,
		vectorStore:   opts.VectorStore,
		memoryIndex:   opts.MemoryIndex,
		retriever:     knowledge.NewRetriever(opts.Embedder, opts.VectorStore, opts.WebClient),
		promptBuilder: opts.PromptBuilder,
		generator:     opts.Generator,
		indexer:       opts.Indexer,
		documents:     opts.Documents,
		conversations: opts.Conversations,
		chunkCache:    opts.ChunkCache,
		blobStore:     opts.BlobStore,
		metrics:       opts.Metrics,
		historyTurns:  opts.HistoryTurns,
	}
}

// Ingest 摄入文档：分块、向量化、入索引、落库。
// 无可分块内容时拒绝摄入，不持久化任何数据。
func (s *RAGService) Ingest(ctx context.Context, title, content string) (*models.Document, error) {
	chunks, err := s.chunker.Split(content)
	if err != nil {
		s.recordIngest("rejected")
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		s.recordIngest("failed")
		return nil, err
	}

	doc, err := s.documents.CreateDocument(ctx, title, content)
	if err != nil {
		s.recordIngest("failed")
		return nil, err
	}

	chunkRows := make([]models.DocumentChunk, len(chunks))
	now := time.Now()
	for i, c := range chunks {
		chunkRows[i] = models.DocumentChunk{
			DocumentID: doc.ID,
			ChunkIndex: c.Index,
			Content:    c.Text,
			CreatedAt:  now,
		}

		vc := knowledge.VectorChunk{
			ChunkID:       chunkID(doc.ID, c.Index),
			DocumentID:    doc.ID,
			Content:       c.Text,
			SequenceIndex: c.Index,
			Embedding:     embeddings[i],
		}
		if err := s.vectorStore.Add(ctx, vc); err != nil {
			s.rollbackIngest(ctx, doc.ID)
			s.recordIngest("failed")
			return nil, apperrors.NewIndexUnavailableError(err)
		}

		if err := s.indexer.IndexChunk(ctx, knowledge.FulltextChunk{
			ChunkID:       vc.ChunkID,
			DocumentID:    doc.ID,
			Content:       c.Text,
			SequenceIndex: c.Index,
			CreatedAt:     now,
		}); err != nil {
			logger.Warn("全文索引写入失败", zap.String("document_id", doc.ID), zap.Error(err))
		}
	}

	if err := s.documents.SaveChunks(ctx, doc.ID, chunkRows); err != nil {
		s.rollbackIngest(ctx, doc.ID)
		s.recordIngest("failed")
		return nil, err
	}
	doc.Status = models.DocumentStatusIndexed
	doc.ChunkCount = len(chunkRows)

	if s.chunkCache != nil {
		s.chunkCache.StoreChunks(ctx, doc.ID, chunkRows)
	}
	s.updateIndexSize()
	s.recordIngest("success")
	s.scheduleSnapshot()

	kafka.PublishEvent(kafka.RAGEvent{
		Type:       kafka.EventDocumentIngested,
		DocumentID: doc.ID,
		ChunkCount: len(chunkRows),
	})

	logger.Info("文档摄入完成",
		zap.String("document_id", doc.ID),
		zap.Int("chunks", len(chunkRows)))
	return doc, nil
}

// Search 纯文档检索，返回按距离升序的来源列表
func (s *RAGService) Search(ctx context.Context, query string, topK int) ([]knowledge.Source, error) {
	start := time.Now()
	result, err := s.retriever.Retrieve(ctx, knowledge.RetrieveRequest{
		Query:      query,
		TopK:       topK,
		IncludeWeb: false,
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordRetrieval(false, time.Since(start))
	}

	s.resolveDocumentTitles(ctx, result.Sources)

	s.documents.LogSearch(ctx, &models.SearchLog{
		Query:        query,
		TopK:         knowledge.NormalizeTopK(topK),
		DocumentHits: len(result.Sources),
		LatencyMs:    time.Since(start).Milliseconds(),
	})
	return result.Sources, nil
}

// Chat 执行一轮检索增强对话。状态机严格向前推进：
// 检索（含并行网络搜索）→ 提示词组装 → 生成 → 持久化。
// 生成失败不写入对话记录；请求超时同样不持久化。
func (s *RAGService) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	sm := NewRequestStateMachine()
	start := time.Now()

	fail := func(err error) (*ChatResponse, error) {
		sm.Fail()
		s.recordChat("failed")
		return nil, err
	}

	// 加载或创建对话。未知或过期的ID按新对话处理。
	record, err := s.loadOrCreateConversation(ctx, req.ConversationID)
	if err != nil {
		return fail(err)
	}

	// 检索阶段，网络搜索在检索器内部并行执行
	if err := sm.Transition(StateRetrieving); err != nil {
		return fail(err)
	}
	if req.IncludeWeb {
		sm.Transition(StateWebSearching)
	}

	retrieveStart := time.Now()
	result, err := s.retriever.Retrieve(ctx, knowledge.RetrieveRequest{
		Query:      req.Query,
		TopK:       req.TopK,
		IncludeWeb: req.IncludeWeb,
	})
	if err != nil {
		return fail(err)
	}
	if s.metrics != nil {
		s.metrics.RecordRetrieval(req.IncludeWeb, time.Since(retrieveStart))
		if result.Degraded {
			s.metrics.RecordDegraded()
		}
	}
	s.resolveDocumentTitles(ctx, result.Sources)

	// 提示词组装
	if err := sm.Transition(StatePromptBuilding); err != nil {
		return fail(err)
	}
	history := record.LastTurns(s.historyTurns)
	prompt := s.promptBuilder.Build(req.Query, result.Sources, history)

	// 生成
	if err := sm.Transition(StateGenerating); err != nil {
		return fail(err)
	}
	genStart := time.Now()
	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return fail(err)
	}
	if s.metrics != nil {
		s.metrics.RecordGeneration(time.Since(genStart))
	}

	// 持久化，仅在生成成功后追加对话
	if err := sm.Transition(StatePersisting); err != nil {
		return fail(err)
	}
	if _, err := s.conversations.AppendTurn(ctx, record.ID, req.Query, answer); err != nil {
		return fail(err)
	}
	sm.Transition(StateCompleted)
	s.recordChat("success")

	docHits, webHits := countSources(result.Sources)
	s.documents.LogSearch(ctx, &models.SearchLog{
		ConversationID: record.ID,
		Query:          req.Query,
		TopK:           knowledge.NormalizeTopK(req.TopK),
		DocumentHits:   docHits,
		WebHits:        webHits,
		Degraded:       result.Degraded,
		LatencyMs:      time.Since(start).Milliseconds(),
	})

	kafka.PublishEvent(kafka.RAGEvent{
		Type:           kafka.EventChatTurn,
		ConversationID: record.ID,
		Query:          req.Query,
		Degraded:       result.Degraded,
	})

	return &ChatResponse{
		Answer:         answer,
		ConversationID: record.ID,
		Sources:        result.Sources,
		Degraded:       result.Degraded,
	}, nil
}

// DeleteDocument 删除文档，级联删除分块、索引条目与缓存
func (s *RAGService) DeleteDocument(ctx context.Context, documentID string) error {
	if err := s.documents.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if err := s.vectorStore.Remove(ctx, documentID); err != nil {
		return apperrors.NewIndexUnavailableError(err)
	}
	if err := s.indexer.RemoveDocument(ctx, documentID); err != nil {
		logger.Warn("全文索引删除失败", zap.String("document_id", documentID), zap.Error(err))
	}
	if s.chunkCache != nil {
		s.chunkCache.DeleteDocument(ctx, documentID)
	}
	s.updateIndexSize()
	s.scheduleSnapshot()

	kafka.PublishEvent(kafka.RAGEvent{
		Type:       kafka.EventDocumentDeleted,
		DocumentID: documentID,
	})
	return nil
}

// KeywordSearch 关键词（全文）检索。全文索引不可用时降级为向量检索，
// 降级不视为错误，仅记录告警并在返回值中标记。
func (s *RAGService) KeywordSearch(ctx context.Context, query string, topK int) ([]knowledge.Source, bool, error) {
	if !s.indexer.Ready() {
		logger.Warn("全文索引未就绪，关键词检索降级为向量检索")
		sources, err := s.Search(ctx, query, topK)
		return sources, true, err
	}

	start := time.Now()
	limit := knowledge.NormalizeTopK(topK)
	matches, err := s.indexer.Search(ctx, knowledge.FulltextSearchRequest{
		Query: query,
		Limit: limit,
	})
	if err != nil {
		logger.Warn("关键词检索失败，降级为向量检索", zap.Error(err))
		sources, fallbackErr := s.Search(ctx, query, topK)
		return sources, true, fallbackErr
	}

	sources := make([]knowledge.Source, 0, len(matches))
	for _, m := range matches {
		content := m.Content
		if m.Highlight != "" {
			content = m.Highlight
		}
		sources = append(sources, knowledge.Source{
			Type:       knowledge.SourceDocument,
			ChunkID:    m.ChunkID,
			DocumentID: m.DocumentID,
			Content:    content,
			Score:      m.Score,
		})
	}
	s.resolveDocumentTitles(ctx, sources)

	s.documents.LogSearch(ctx, &models.SearchLog{
		Query:        query,
		TopK:         limit,
		DocumentHits: len(sources),
		LatencyMs:    time.Since(start).Milliseconds(),
	})
	return sources, false, nil
}

// rollbackIngest 摄入中途失败时回收已写入的索引条目，
// 索引只能包含权威分块存储中存在的分块。文档行标记为failed留痕。
func (s *RAGService) rollbackIngest(ctx context.Context, documentID string) {
	if err := s.vectorStore.Remove(ctx, documentID); err != nil {
		logger.Warn("摄入回滚失败，索引可能残留孤儿分块",
			zap.String("document_id", documentID), zap.Error(err))
	}
	if err := s.indexer.RemoveDocument(ctx, documentID); err != nil {
		logger.Warn("全文索引回滚失败", zap.String("document_id", documentID), zap.Error(err))
	}
	s.documents.UpdateDocumentStatus(ctx, documentID, models.DocumentStatusFailed)
	s.updateIndexSize()
}

// scheduleSnapshot 摄入或删除后异步保存索引快照，同一时刻至多一个在途任务
func (s *RAGService) scheduleSnapshot() {
	if s.memoryIndex == nil || s.blobStore == nil || !s.blobStore.Ready() {
		return
	}
	if !s.snapshotting.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.snapshotting.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.SaveSnapshot(ctx); err != nil {
			logger.Warn("索引快照保存失败", zap.Error(err))
		}
	}()
}

// GetDocumentChunks 读取文档分块，优先走Redis缓存，
// 未命中时回源数据库并回填缓存
func (s *RAGService) GetDocumentChunks(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	if s.chunkCache != nil {
		cached, err := s.chunkCache.GetChunks(ctx, documentID)
		if err != nil {
			logger.Warn("分块缓存读取失败，回源数据库",
				zap.String("document_id", documentID), zap.Error(err))
		}
		if len(cached) > 0 {
			return cached, nil
		}
	}

	chunks, err := s.documents.GetChunks(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if s.chunkCache != nil && len(chunks) > 0 {
		s.chunkCache.StoreChunks(ctx, documentID, chunks)
	}
	return chunks, nil
}

// SaveSnapshot 将内存索引快照写入对象存储
func (s *RAGService) SaveSnapshot(ctx context.Context) error {
	if s.memoryIndex == nil {
		return nil
	}
	if s.blobStore == nil || !s.blobStore.Ready() {
		return fmt.Errorf("对象存储未配置")
	}

	data, err := s.memoryIndex.Snapshot()
	if err != nil {
		return err
	}
	if err := s.blobStore.WriteBlob(ctx, indexSnapshotKey, data); err != nil {
		return err
	}
	logger.Info("索引快照已保存", zap.Int("entries", s.memoryIndex.Size()))
	return nil
}

// RestoreIndex 启动时恢复内存索引：优先从快照恢复，
// 快照缺失或损坏时回退为从权威分块存储重建。
func (s *RAGService) RestoreIndex(ctx context.Context) error {
	if s.memoryIndex == nil {
		return nil
	}

	if s.blobStore != nil && s.blobStore.Ready() {
		data, err := s.blobStore.ReadBlob(ctx, indexSnapshotKey)
		if err == nil {
			restoreErr := s.memoryIndex.Restore(data)
			if restoreErr == nil {
				s.updateIndexSize()
				logger.Info("索引已从快照恢复", zap.Int("entries", s.memoryIndex.Size()))
				return nil
			}
			logger.Warn("索引快照损坏，回退为重建", zap.Error(restoreErr))
		} else if !apperrors.IsCode(err, apperrors.ErrCodeSnapshotNotFound) {
			logger.Warn("读取索引快照失败，回退为重建", zap.Error(err))
		}
	}

	return s.RebuildIndex(ctx)
}

// RebuildIndex 从权威分块存储重建向量索引（重新向量化全部分块）
func (s *RAGService) RebuildIndex(ctx context.Context) error {
	chunks, err := s.documents.GetAllChunks(ctx)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	for _, chunk := range chunks {
		embedding, err := s.embedder.Embed(ctx, chunk.Content)
		if err != nil {
			return err
		}
		if err := s.vectorStore.Add(ctx, knowledge.VectorChunk{
			ChunkID:       chunkID(chunk.DocumentID, chunk.ChunkIndex),
			DocumentID:    chunk.DocumentID,
			Content:       chunk.Content,
			SequenceIndex: chunk.ChunkIndex,
			Embedding:     embedding,
		}); err != nil {
			return apperrors.NewIndexUnavailableError(err)
		}
	}

	s.updateIndexSize()
	logger.Info("索引重建完成", zap.Int("chunks", len(chunks)))
	return nil
}

// loadOrCreateConversation 按ID加载对话；ID为空、未知或已过期时创建新对话
func (s *RAGService) loadOrCreateConversation(ctx context.Context, conversationID string) (*models.ConversationRecord, error) {
	if conversationID == "" {
		return s.conversations.CreateConversation(ctx)
	}

	record, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Code == apperrors.ErrCodeConversationNotFound {
			logger.Debug("对话不存在或已过期，创建新对话", zap.String("conversation_id", conversationID))
			return s.conversations.CreateConversation(ctx)
		}
		return nil, err
	}
	return record, nil
}

// resolveDocumentTitles 为文档来源补充标题
func (s *RAGService) resolveDocumentTitles(ctx context.Context, sources []knowledge.Source) {
	titles := make(map[string]string)
	for i := range sources {
		if sources[i].Type != knowledge.SourceDocument {
			continue
		}
		title, ok := titles[sources[i].DocumentID]
		if !ok {
			doc, err := s.documents.GetDocument(ctx, sources[i].DocumentID)
			if err == nil {
				title = doc.Title
			}
			titles[sources[i].DocumentID] = title
		}
		sources[i].Title = title
	}
}

func (s *RAGService) updateIndexSize() {
	if s.metrics != nil && s.memoryIndex != nil {
		s.metrics.SetIndexSize(s.memoryIndex.Size())
	}
}

func (s *RAGService) recordIngest(status string) {
	if s.metrics != nil {
		s.metrics.RecordIngest(status)
	}
}

func (s *RAGService) recordChat(status string) {
	if s.metrics != nil {
		s.metrics.RecordChat(status)
	}
}

func chunkID(documentID string, index int) string {
	return fmt.Sprintf("%s:%d", documentID, index)
}

func countSources(sources []knowledge.Source) (docHits, webHits int) {
	for _, src := range sources {
		if src.Type == knowledge.SourceDocument {
			docHits++
		} else {
			webHits++
		}
	}
	return
}
