package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/aihub/search-go/internal/logger"
)

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address    string
	Username   string
	Password   string
	Collection string
	Database   string
	VectorSize int
	UseTLS     bool
	Timeout    time.Duration
}

type milvusVectorStore struct {
	milvusClient client.Client
	collection   string
	vectorSize   int
}

// NewMilvusVectorStore 创建Milvus向量存储，作为内存索引之外的外置向量库
func NewMilvusVectorStore(opts MilvusOptions) (VectorStore, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.Collection == "" {
		opts.Collection = "rag_chunks"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 1536
	}
	if opts.Database == "" {
		opts.Database = "default"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	milvusClient, err := client.NewClient(ctx, client.Config{
		Address:       opts.Address,
		DBName:        opts.Database,
		Username:      opts.Username,
		Password:      opts.Password,
		EnableTLSAuth: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	store := &milvusVectorStore{
		milvusClient: milvusClient,
		collection:   opts.Collection,
		vectorSize:   opts.VectorSize,
	}

	if err := store.ensureCollection(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *milvusVectorStore) ensureCollection(ctx context.Context) error {
	hasCollection, err := s.milvusClient.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if hasCollection {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: s.collection,
		Description:    "document chunk vectors",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "document_id",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "content",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "65535"},
			},
			{
				Name:     "sequence_index",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:       "vector",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", s.vectorSize)},
			},
		},
	}

	if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// 精确检索用FLAT索引，与内存索引保持一致的结果语义
	index, err := entity.NewIndexFlat(entity.L2)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := s.milvusClient.CreateIndex(ctx, s.collection, "vector", index, false); err != nil {
		logger.Warn("Milvus索引创建失败", zap.String("collection", s.collection), zap.Error(err))
	}

	return nil
}

func (s *milvusVectorStore) Add(ctx context.Context, chunk VectorChunk) error {
	if len(chunk.Embedding) == 0 {
		return fmt.Errorf("embedding is empty")
	}
	if len(chunk.Embedding) != s.vectorSize {
		return fmt.Errorf("embedding dimension mismatch: collection=%d got=%d", s.vectorSize, len(chunk.Embedding))
	}

	chunkIDColumn := entity.NewColumnVarChar("chunk_id", []string{chunk.ChunkID})
	documentIDColumn := entity.NewColumnVarChar("document_id", []string{chunk.DocumentID})
	contentColumn := entity.NewColumnVarChar("content", []string{chunk.Content})
	sequenceColumn := entity.NewColumnInt64("sequence_index", []int64{int64(chunk.SequenceIndex)})
	vectorColumn := entity.NewColumnFloatVector("vector", s.vectorSize, [][]float32{chunk.Embedding})

	if _, err := s.milvusClient.Insert(ctx, s.collection, "", chunkIDColumn, documentIDColumn, contentColumn, sequenceColumn, vectorColumn); err != nil {
		return fmt.Errorf("milvus insert failed: %w", err)
	}

	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		logger.Warn("Milvus刷新失败", zap.String("collection", s.collection), zap.Error(err))
	}
	return nil
}

func (s *milvusVectorStore) Remove(ctx context.Context, documentID string) error {
	expr := fmt.Sprintf(`document_id == "%s"`, documentID)
	if err := s.milvusClient.Delete(ctx, s.collection, "", expr); err != nil {
		return fmt.Errorf("milvus delete failed: %w", err)
	}
	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		logger.Warn("Milvus删除后刷新失败", zap.Error(err))
	}
	return nil
}

func (s *milvusVectorStore) Search(ctx context.Context, req VectorSearchRequest) ([]VectorMatch, error) {
	if len(req.QueryEmbedding) == 0 {
		return nil, nil
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	sp, _ := entity.NewIndexFlatSearchParam()
	queryVector := entity.FloatVector(req.QueryEmbedding)
	searchResults, err := s.milvusClient.Search(
		ctx,
		s.collection,
		[]string{},
		"",
		[]string{"chunk_id", "document_id", "content", "sequence_index"},
		[]entity.Vector{queryVector},
		"vector",
		entity.L2,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}

	if len(searchResults) == 0 {
		return nil, nil
	}
	result := searchResults[0]
	if result.Err != nil {
		return nil, fmt.Errorf("milvus search error: %w", result.Err)
	}
	if result.ResultCount == 0 {
		return nil, nil
	}

	var chunkIDs, documentIDs, contents []string
	var sequences []int64
	for _, field := range result.Fields {
		switch field.Name() {
		case "chunk_id":
			if val, ok := field.(*entity.ColumnVarChar); ok {
				chunkIDs = val.Data()
			}
		case "document_id":
			if val, ok := field.(*entity.ColumnVarChar); ok {
				documentIDs = val.Data()
			}
		case "content":
			if val, ok := field.(*entity.ColumnVarChar); ok {
				contents = val.Data()
			}
		case "sequence_index":
			if val, ok := field.(*entity.ColumnInt64); ok {
				sequences = val.Data()
			}
		}
	}

	matches := make([]VectorMatch, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		match := VectorMatch{}
		if i < len(chunkIDs) {
			match.ChunkID = chunkIDs[i]
		}
		if i < len(documentIDs) {
			match.DocumentID = documentIDs[i]
		}
		if i < len(contents) {
			match.Content = contents[i]
		}
		if i < len(sequences) {
			match.SequenceIndex = int(sequences[i])
		}
		if i < len(result.Scores) {
			match.Distance = float64(result.Scores[i])
		}
		matches = append(matches, match)
	}
	return matches, nil
}

func (s *milvusVectorStore) Ready() bool {
	if s.milvusClient == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.milvusClient.ListCollections(ctx)
	return err == nil
}
