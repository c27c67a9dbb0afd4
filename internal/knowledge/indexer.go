package knowledge

import (
	"context"
	"time"
)

// FulltextChunk 提供给全文索引的分块结构
type FulltextChunk struct {
	ChunkID       string
	DocumentID    string
	Content       string
	SequenceIndex int
	CreatedAt     time.Time
}

// FulltextSearchRequest 全文搜索请求
type FulltextSearchRequest struct {
	Query string
	Limit int
}

// FulltextMatch 全文搜索结果
type FulltextMatch struct {
	ChunkID    string
	DocumentID string
	Content    string
	Score      float64
	Highlight  string
}

// FulltextIndexer 全文索引接口，关键词检索模式使用，不参与对话流程
type FulltextIndexer interface {
	IndexChunk(ctx context.Context, chunk FulltextChunk) error
	RemoveDocument(ctx context.Context, documentID string) error
	Search(ctx context.Context, req FulltextSearchRequest) ([]FulltextMatch, error)
	Ready() bool
}

// NoopFulltextIndexer 未配置全文索引时的占位实现
type NoopFulltextIndexer struct{}

func (n *NoopFulltextIndexer) IndexChunk(ctx context.Context, chunk FulltextChunk) error {
	return nil
}

func (n *NoopFulltextIndexer) RemoveDocument(ctx context.Context, documentID string) error {
	return nil
}

func (n *NoopFulltextIndexer) Search(ctx context.Context, req FulltextSearchRequest) ([]FulltextMatch, error) {
	return nil, nil
}

func (n *NoopFulltextIndexer) Ready() bool {
	return false
}
