package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/search-go/internal/errors"
	"github.com/aihub/search-go/internal/knowledge"
	"github.com/aihub/search-go/internal/models"
)

// newTestRAGService 构建内存索引加哈希向量的编排服务
func newTestRAGService(t *testing.T, documents *DocumentService) (*RAGService, *knowledge.MemoryVectorIndex) {
	t.Helper()

	chunker, err := knowledge.NewChunker(300, 50)
	require.NoError(t, err)

	idx := knowledge.NewMemoryVectorIndex(0)
	service := NewRAGService(RAGServiceOptions{
		Chunker:       chunker,
		Embedder:      knowledge.NewHashEmbedder(64),
		VectorStore:   idx,
		MemoryIndex:   idx,
		PromptBuilder: knowledge.NewPromptBuilder(8000, 5),
		Generator:     &knowledge.NoopGenerator{},
		Documents:     documents,
	})
	return service, idx
}

func TestRAGService_Ingest_EmptyContentRejected(t *testing.T) {
	service, idx := newTestRAGService(t, nil)

	// 无可分块内容时拒绝摄入，不写入任何数据
	for _, content := range []string{"", "   \n\t "} {
		_, err := service.Ingest(context.Background(), "empty doc", content)
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeEmptyContent))
	}
	assert.Equal(t, 0, idx.Size())
}

func TestRAGService_Ingest_EmbeddingFailure(t *testing.T) {
	chunker, err := knowledge.NewChunker(300, 50)
	require.NoError(t, err)

	idx := knowledge.NewMemoryVectorIndex(0)
	service := NewRAGService(RAGServiceOptions{
		Chunker:     chunker,
		Embedder:    &knowledge.NoopEmbedder{},
		VectorStore: idx,
		MemoryIndex: idx,
	})

	// 向量化失败使摄入失败，索引保持不变
	_, err = service.Ingest(context.Background(), "doc", "The sky is blue. Water is wet.")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeEmbeddingUnavailable))
	assert.Equal(t, 0, idx.Size())
}

func TestRAGService_RebuildIndex(t *testing.T) {
	documents, mock := newMockDocumentService(t)
	service, idx := newTestRAGService(t, documents)

	rows := sqlmock.NewRows([]string{"id", "document_id", "chunk_index", "content"}).
		AddRow(1, "doc-1", 0, "the sky is blue").
		AddRow(2, "doc-1", 1, "water is wet").
		AddRow(3, "doc-2", 0, "grass is green")
	mock.ExpectQuery(`SELECT \* FROM "document_chunks" ORDER BY document_id ASC, chunk_index ASC`).
		WillReturnRows(rows)

	require.NoError(t, service.RebuildIndex(context.Background()))
	assert.Equal(t, 3, idx.Size())

	// 重建后的索引可按内容精确命中
	embedder := knowledge.NewHashEmbedder(64)
	query, err := embedder.Embed(context.Background(), "water is wet")
	require.NoError(t, err)
	matches, err := idx.Search(context.Background(), knowledge.VectorSearchRequest{
		QueryEmbedding: query,
		TopK:           1,
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "doc-1:1", matches[0].ChunkID)
	assert.Equal(t, 0.0, matches[0].Distance)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRAGService_DeleteDocument_Cascade(t *testing.T) {
	documents, mock := newMockDocumentService(t)
	service, idx := newTestRAGService(t, documents)

	embedder := knowledge.NewHashEmbedder(64)
	for i, text := range []string{"first chunk", "second chunk"} {
		vec, err := embedder.Embed(context.Background(), text)
		require.NoError(t, err)
		require.NoError(t, idx.Add(context.Background(), knowledge.VectorChunk{
			ChunkID:       chunkID("doc-1", i),
			DocumentID:    "doc-1",
			Content:       text,
			SequenceIndex: i,
			Embedding:     vec,
		}))
	}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "document_chunks" WHERE document_id = \$1`).
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM "documents" WHERE id = \$1`).
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, service.DeleteDocument(context.Background(), "doc-1"))

	// 删除级联清空索引中该文档的全部分块
	assert.Equal(t, 0, idx.Size())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRAGService_DeleteDocument_NotFound(t *testing.T) {
	documents, mock := newMockDocumentService(t)
	service, idx := newTestRAGService(t, documents)

	vec := make([]float32, 4)
	vec[0] = 1
	require.NoError(t, idx.Add(context.Background(), knowledge.VectorChunk{
		ChunkID:    "other:0",
		DocumentID: "other",
		Embedding:  vec,
	}))

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "document_chunks" WHERE document_id = \$1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM "documents" WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := service.DeleteDocument(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDocumentNotFound))

	// 权威存储删除失败时不触碰索引
	assert.Equal(t, 1, idx.Size())
	assert.NoError(t, mock.ExpectationsWereMet())
}

// fakeConversationStore 内存对话存储
type fakeConversationStore struct {
	records map[string]*models.ConversationRecord
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{records: make(map[string]*models.ConversationRecord)}
}

func (f *fakeConversationStore) CreateConversation(ctx context.Context) (*models.ConversationRecord, error) {
	now := time.Now()
	record := &models.ConversationRecord{
		ID:        fmt.Sprintf("conv-%d", len(f.records)+1),
		Turns:     []models.ConversationTurn{},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	f.records[record.ID] = record
	return record, nil
}

func (f *fakeConversationStore) GetConversation(ctx context.Context, conversationID string) (*models.ConversationRecord, error) {
	record, ok := f.records[conversationID]
	if !ok {
		return nil, apperrors.NewConversationNotFoundError(conversationID)
	}
	return record, nil
}

func (f *fakeConversationStore) AppendTurn(ctx context.Context, conversationID, userContent, assistantContent string) (*models.ConversationRecord, error) {
	record, err := f.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	record.Turns = append(record.Turns,
		models.ConversationTurn{Role: models.RoleUser, Content: userContent, CreatedAt: now},
		models.ConversationTurn{Role: models.RoleAssistant, Content: assistantContent, CreatedAt: now},
	)
	record.UpdatedAt = now
	return record, nil
}

// fakeGenerator 可注入回答与错误的生成器
type fakeGenerator struct {
	answer string
	err    error
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return f.answer, f.err
}

func (f *fakeGenerator) Ready() bool {
	return true
}

// failOnSecondAddStore 第二次Add返回错误，其余操作透传内存索引
type failOnSecondAddStore struct {
	*knowledge.MemoryVectorIndex
	adds int
}

func (f *failOnSecondAddStore) Add(ctx context.Context, chunk knowledge.VectorChunk) error {
	f.adds++
	if f.adds >= 2 {
		return errors.New("add failed")
	}
	return f.MemoryVectorIndex.Add(ctx, chunk)
}

// fakeIndexer 可注入结果与错误的全文索引
type fakeIndexer struct {
	knowledge.NoopFulltextIndexer
	matches []knowledge.FulltextMatch
	err     error
	ready   bool
}

func (f *fakeIndexer) Search(ctx context.Context, req knowledge.FulltextSearchRequest) ([]knowledge.FulltextMatch, error) {
	return f.matches, f.err
}

func (f *fakeIndexer) Ready() bool {
	return f.ready
}

func TestRAGService_KeywordSearch(t *testing.T) {
	documents, mock := newMockDocumentService(t)

	chunker, err := knowledge.NewChunker(300, 50)
	require.NoError(t, err)
	idx := knowledge.NewMemoryVectorIndex(0)
	service := NewRAGService(RAGServiceOptions{
		Chunker:     chunker,
		Embedder:    knowledge.NewHashEmbedder(64),
		VectorStore: idx,
		MemoryIndex: idx,
		Indexer: &fakeIndexer{
			ready: true,
			matches: []knowledge.FulltextMatch{
				{ChunkID: "doc-1:0", DocumentID: "doc-1", Content: "the sky is blue", Score: 2.4},
				{ChunkID: "doc-1:1", DocumentID: "doc-1", Content: "water is wet", Highlight: "water is <em>wet</em>", Score: 1.1},
			},
		},
		Documents: documents,
	})

	mock.ExpectQuery(`SELECT \* FROM "documents" WHERE id = \$1`).
		WithArgs("doc-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow("doc-1", "天空"))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "search_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	sources, degraded, err := service.KeywordSearch(context.Background(), "sky", 5)
	require.NoError(t, err)
	assert.False(t, degraded)
	require.Len(t, sources, 2)
	assert.Equal(t, "doc-1:0", sources[0].ChunkID)
	assert.Equal(t, "天空", sources[0].Title)
	// 有高亮时优先返回高亮片段
	assert.Equal(t, "water is <em>wet</em>", sources[1].Content)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRAGService_KeywordSearch_FallbackWhenNotReady(t *testing.T) {
	documents, mock := newMockDocumentService(t)
	service, _ := newTestRAGService(t, documents)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "search_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	// 全文索引未就绪时降级为向量检索，空索引返回空结果而非错误
	sources, degraded, err := service.KeywordSearch(context.Background(), "sky", 5)
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.Empty(t, sources)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRAGService_Ingest_SaveChunksFailureRollsBackIndex(t *testing.T) {
	documents, mock := newMockDocumentService(t)
	service, idx := newTestRAGService(t, documents)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "documents"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// 分块落库事务失败
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "document_chunks"`).
		WillReturnError(errors.New("insert failed"))
	mock.ExpectRollback()

	// 回滚时文档标记为failed
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "documents" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := service.Ingest(context.Background(), "doc", "The sky is blue. Water is wet.")
	require.Error(t, err)

	// 落库失败后索引不残留孤儿分块，检索不到未持久化的文档
	assert.Equal(t, 0, idx.Size())
	embedder := knowledge.NewHashEmbedder(64)
	query, err := embedder.Embed(context.Background(), "The sky is blue. Water is wet.")
	require.NoError(t, err)
	matches, err := idx.Search(context.Background(), knowledge.VectorSearchRequest{
		QueryEmbedding: query,
		TopK:           1,
	})
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRAGService_Ingest_MidLoopAddFailureRollsBackIndex(t *testing.T) {
	documents, mock := newMockDocumentService(t)

	chunker, err := knowledge.NewChunker(300, 50)
	require.NoError(t, err)
	idx := knowledge.NewMemoryVectorIndex(0)
	service := NewRAGService(RAGServiceOptions{
		Chunker:     chunker,
		Embedder:    knowledge.NewHashEmbedder(64),
		VectorStore: &failOnSecondAddStore{MemoryVectorIndex: idx},
		MemoryIndex: idx,
		Documents:   documents,
	})

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "documents"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "documents" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// 400个字符产生两个分块，第二块入索引失败
	content := strings.Repeat("a", 400)
	_, err = service.Ingest(context.Background(), "doc", content)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeIndexUnavailable))

	// 已写入的第一块被回收
	assert.Equal(t, 0, idx.Size())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRAGService_IngestThenSearch(t *testing.T) {
	documents, mock := newMockDocumentService(t)
	service, idx := newTestRAGService(t, documents)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "documents"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "document_chunks"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(`UPDATE "documents" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	content := "The sky is blue. Water is wet."
	doc, err := service.Ingest(context.Background(), "Handbook", content)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusIndexed, doc.Status)
	assert.Equal(t, 1, doc.ChunkCount)
	assert.Equal(t, 1, idx.Size())

	// 检索时补充标题并记录日志
	mock.ExpectQuery(`SELECT \* FROM "documents" WHERE id = \$1`).
		WithArgs(doc.ID, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow(doc.ID, "Handbook"))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "search_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	sources, err := service.Search(context.Background(), content, 3)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, knowledge.SourceDocument, sources[0].Type)
	assert.Equal(t, doc.ID, sources[0].DocumentID)
	assert.Equal(t, chunkID(doc.ID, 0), sources[0].ChunkID)
	assert.Equal(t, "Handbook", sources[0].Title)
	assert.Equal(t, 0.0, sources[0].Distance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRAGService_Chat_GenerationFailureSkipsPersistence(t *testing.T) {
	documents, mock := newMockDocumentService(t)

	chunker, err := knowledge.NewChunker(300, 50)
	require.NoError(t, err)
	idx := knowledge.NewMemoryVectorIndex(0)
	store := newFakeConversationStore()
	service := NewRAGService(RAGServiceOptions{
		Chunker:       chunker,
		Embedder:      knowledge.NewHashEmbedder(64),
		VectorStore:   idx,
		MemoryIndex:   idx,
		PromptBuilder: knowledge.NewPromptBuilder(8000, 5),
		Generator:     &fakeGenerator{err: errors.New("generation failed")},
		Documents:     documents,
		Conversations: store,
	})

	_, err = service.Chat(context.Background(), ChatRequest{Query: "What color is the sky?"})
	require.Error(t, err)

	// 生成失败不追加任何对话消息
	record, ok := store.records["conv-1"]
	require.True(t, ok)
	assert.Empty(t, record.Turns)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRAGService_Chat_AppendsTurnPairOnSuccess(t *testing.T) {
	documents, mock := newMockDocumentService(t)

	chunker, err := knowledge.NewChunker(300, 50)
	require.NoError(t, err)
	idx := knowledge.NewMemoryVectorIndex(0)
	store := newFakeConversationStore()
	service := NewRAGService(RAGServiceOptions{
		Chunker:       chunker,
		Embedder:      knowledge.NewHashEmbedder(64),
		VectorStore:   idx,
		MemoryIndex:   idx,
		PromptBuilder: knowledge.NewPromptBuilder(8000, 5),
		Generator:     &fakeGenerator{answer: "天空是蓝色的"},
		Documents:     documents,
		Conversations: store,
	})

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "search_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	resp, err := service.Chat(context.Background(), ChatRequest{Query: "天空是什么颜色？"})
	require.NoError(t, err)
	assert.Equal(t, "天空是蓝色的", resp.Answer)
	assert.Equal(t, "conv-1", resp.ConversationID)

	// 成功后成对追加用户与助手消息
	record := store.records["conv-1"]
	require.Len(t, record.Turns, 2)
	assert.Equal(t, models.RoleUser, record.Turns[0].Role)
	assert.Equal(t, "天空是什么颜色？", record.Turns[0].Content)
	assert.Equal(t, models.RoleAssistant, record.Turns[1].Role)
	assert.Equal(t, "天空是蓝色的", record.Turns[1].Content)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRAGService_GetDocumentChunks_ReadThrough(t *testing.T) {
	documents, mock := newMockDocumentService(t)

	chunker, err := knowledge.NewChunker(300, 50)
	require.NoError(t, err)
	idx := knowledge.NewMemoryVectorIndex(0)
	service := NewRAGService(RAGServiceOptions{
		Chunker:     chunker,
		Embedder:    knowledge.NewHashEmbedder(64),
		VectorStore: idx,
		MemoryIndex: idx,
		Documents:   documents,
		ChunkCache:  NewRedisChunkStoreWithClient(nil),
	})

	rows := sqlmock.NewRows([]string{"id", "document_id", "chunk_index", "content"}).
		AddRow(1, "doc-1", 0, "the sky is blue").
		AddRow(2, "doc-1", 1, "water is wet")
	mock.ExpectQuery(`SELECT \* FROM "document_chunks" WHERE document_id = \$1 ORDER BY chunk_index ASC`).
		WithArgs("doc-1").
		WillReturnRows(rows)

	// 缓存未配置时静默回源数据库
	chunks, err := service.GetDocumentChunks(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "the sky is blue", chunks[0].Content)
	assert.Equal(t, 1, chunks[1].ChunkIndex)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, "doc-1:0", chunkID("doc-1", 0))
	assert.Equal(t, "doc-1:12", chunkID("doc-1", 12))
}

func TestCountSources(t *testing.T) {
	docHits, webHits := countSources([]knowledge.Source{
		{Type: knowledge.SourceDocument},
		{Type: knowledge.SourceDocument},
		{Type: knowledge.SourceWeb},
	})
	assert.Equal(t, 2, docHits)
	assert.Equal(t, 1, webHits)
}
