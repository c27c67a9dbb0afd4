package knowledge

import "context"

// VectorChunk 带向量的文本块
type VectorChunk struct {
	ChunkID       string
	DocumentID    string
	Content       string
	SequenceIndex int
	Embedding     []float32
}

// VectorMatch 向量检索命中结果，Distance为平方L2距离，越小越相似
type VectorMatch struct {
	ChunkID       string
	DocumentID    string
	Content       string
	SequenceIndex int
	Distance      float64
}

// VectorSearchRequest 向量检索请求
type VectorSearchRequest struct {
	QueryEmbedding []float32
	TopK           int
}

// VectorStore 向量存储抽象。索引是派生数据，权威数据在块存储中。
type VectorStore interface {
	Add(ctx context.Context, chunk VectorChunk) error
	Remove(ctx context.Context, documentID string) error
	Search(ctx context.Context, req VectorSearchRequest) ([]VectorMatch, error)
	Ready() bool
}
