package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/aihub/search-go/internal/errors"
)

const snapshotVersion = 1

// indexEntry 索引中的一条向量记录
type indexEntry struct {
	ChunkID       string    `json:"chunk_id"`
	DocumentID    string    `json:"document_id"`
	Content       string    `json:"content"`
	SequenceIndex int       `json:"sequence_index"`
	Embedding     []float32 `json:"embedding"`
}

// indexSnapshot 索引快照的序列化格式
type indexSnapshot struct {
	Version   int          `json:"version"`
	Dimension int          `json:"dimension"`
	Entries   []indexEntry `json:"entries"`
}

// MemoryVectorIndex 内存中的精确L2向量索引。
// 检索遍历全部向量计算平方L2距离，按距离升序返回；
// 距离相同时按插入顺序排序，保证结果确定。
// 写锁保护变更操作，并发读取只会看到变更前或变更后的完整状态。
type MemoryVectorIndex struct {
	mu        sync.RWMutex
	dimension int
	entries   []indexEntry
}

// NewMemoryVectorIndex 创建内存向量索引，dimension为0时以首个向量的维度为准
func NewMemoryVectorIndex(dimension int) *MemoryVectorIndex {
	return &MemoryVectorIndex{dimension: dimension}
}

// Add 添加一条向量记录，维度与索引不一致时报错
func (idx *MemoryVectorIndex) Add(ctx context.Context, chunk VectorChunk) error {
	if len(chunk.Embedding) == 0 {
		return fmt.Errorf("embedding is empty")
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.dimension == 0 {
		idx.dimension = len(chunk.Embedding)
	}
	if len(chunk.Embedding) != idx.dimension {
		return fmt.Errorf("embedding dimension mismatch: index=%d got=%d", idx.dimension, len(chunk.Embedding))
	}

	embedding := make([]float32, len(chunk.Embedding))
	copy(embedding, chunk.Embedding)

	idx.entries = append(idx.entries, indexEntry{
		ChunkID:       chunk.ChunkID,
		DocumentID:    chunk.DocumentID,
		Content:       chunk.Content,
		SequenceIndex: chunk.SequenceIndex,
		Embedding:     embedding,
	})
	return nil
}

// Remove 删除指定文档的全部向量记录
func (idx *MemoryVectorIndex) Remove(ctx context.Context, documentID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	kept := idx.entries[:0]
	for _, entry := range idx.entries {
		if entry.DocumentID != documentID {
			kept = append(kept, entry)
		}
	}
	idx.entries = kept
	return nil
}

// Search 精确检索，返回距离升序的前TopK条结果
func (idx *MemoryVectorIndex) Search(ctx context.Context, req VectorSearchRequest) ([]VectorMatch, error) {
	if len(req.QueryEmbedding) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.entries) == 0 {
		return nil, nil
	}
	if len(req.QueryEmbedding) != idx.dimension {
		return nil, fmt.Errorf("query dimension mismatch: index=%d got=%d", idx.dimension, len(req.QueryEmbedding))
	}

	matches := make([]VectorMatch, 0, len(idx.entries))
	for _, entry := range idx.entries {
		matches = append(matches, VectorMatch{
			ChunkID:       entry.ChunkID,
			DocumentID:    entry.DocumentID,
			Content:       entry.Content,
			SequenceIndex: entry.SequenceIndex,
			Distance:      squaredL2(req.QueryEmbedding, entry.Embedding),
		})
	}

	// 稳定排序保证相同距离时按插入顺序返回
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Ready 索引始终可用
func (idx *MemoryVectorIndex) Ready() bool {
	return idx != nil
}

// Size 返回当前索引中的向量数
func (idx *MemoryVectorIndex) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Dimension 返回索引向量维度
func (idx *MemoryVectorIndex) Dimension() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dimension
}

// Snapshot 序列化索引全量内容，可持久化到对象存储
func (idx *MemoryVectorIndex) Snapshot() ([]byte, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	snap := indexSnapshot{
		Version:   snapshotVersion,
		Dimension: idx.dimension,
		Entries:   idx.entries,
	}
	return json.Marshal(snap)
}

// Restore 从快照恢复索引，快照损坏或维度冲突时返回INDEX_UNAVAILABLE
func (idx *MemoryVectorIndex) Restore(data []byte) error {
	var snap indexSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return apperrors.NewIndexUnavailableError(fmt.Errorf("corrupt snapshot: %w", err))
	}
	if snap.Version != snapshotVersion {
		return apperrors.NewIndexUnavailableError(fmt.Errorf("unsupported snapshot version %d", snap.Version))
	}
	for _, entry := range snap.Entries {
		if len(entry.Embedding) != snap.Dimension {
			return apperrors.NewIndexUnavailableError(
				fmt.Errorf("snapshot entry %s has dimension %d, expected %d", entry.ChunkID, len(entry.Embedding), snap.Dimension))
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.dimension != 0 && snap.Dimension != 0 && idx.dimension != snap.Dimension {
		return apperrors.NewIndexUnavailableError(
			fmt.Errorf("snapshot dimension %d conflicts with index dimension %d", snap.Dimension, idx.dimension))
	}

	idx.dimension = snap.Dimension
	idx.entries = snap.Entries
	return nil
}

// squaredL2 计算两个向量的平方L2距离
func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
