package models

import (
	"time"
)

// 文档状态
const (
	DocumentStatusPending  = "pending"
	DocumentStatusIndexing = "indexing"
	DocumentStatusIndexed  = "indexed"
	DocumentStatusFailed   = "failed"
)

// Document 文档表
type Document struct {
	ID         string    `gorm:"primaryKey;column:id;size:64" json:"id"`
	Title      string    `gorm:"column:title;size:200" json:"title"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Status     string    `gorm:"column:status;size:20;default:pending;index" json:"status"`
	ChunkCount int       `gorm:"column:chunk_count;default:0" json:"chunk_count"`
	Metadata   string    `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time `gorm:"column:created_at;not null;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Document) TableName() string {
	return "documents"
}

// DocumentChunk 文档分块表，向量索引重建时从此表回放
type DocumentChunk struct {
	ID         uint      `gorm:"primaryKey;column:id" json:"id"`
	DocumentID string    `gorm:"column:document_id;size:64;not null;index" json:"document_id"`
	ChunkIndex int       `gorm:"column:chunk_index;not null" json:"chunk_index"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	CreatedAt  time.Time `gorm:"column:created_at;not null" json:"created_at"`

	Document Document `gorm:"foreignKey:DocumentID" json:"-"`
}

func (DocumentChunk) TableName() string {
	return "document_chunks"
}

// SearchLog 检索日志表
type SearchLog struct {
	ID             uint      `gorm:"primaryKey;column:id" json:"id"`
	ConversationID string    `gorm:"column:conversation_id;size:64;index" json:"conversation_id"`
	Query          string    `gorm:"type:text;not null" json:"query"`
	TopK           int       `gorm:"column:top_k" json:"top_k"`
	DocumentHits   int       `gorm:"column:document_hits" json:"document_hits"`
	WebHits        int       `gorm:"column:web_hits" json:"web_hits"`
	Degraded       bool      `gorm:"column:degraded;default:false" json:"degraded"`
	LatencyMs      int64     `gorm:"column:latency_ms" json:"latency_ms"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;index" json:"created_at"`
}

func (SearchLog) TableName() string {
	return "search_logs"
}
