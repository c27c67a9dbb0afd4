package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aihub/search-go/internal/models"
)

func TestRedisChunkStore_NilClientNoop(t *testing.T) {
	store := &RedisChunkStore{hitStats: &CacheHitStats{}}
	ctx := context.Background()

	// Redis未初始化时所有操作静默跳过
	assert.NoError(t, store.StoreChunks(ctx, "doc-1", []models.DocumentChunk{{Content: "x"}}))

	chunks, err := store.GetChunks(ctx, "doc-1")
	assert.NoError(t, err)
	assert.Nil(t, chunks)

	assert.NoError(t, store.DeleteDocument(ctx, "doc-1"))
}

func TestCacheHitStats_Rate(t *testing.T) {
	stats := &CacheHitStats{}
	assert.Equal(t, 0.0, stats.rate())

	stats.recordHit()
	stats.recordHit()
	stats.recordMiss()
	assert.InDelta(t, 2.0/3.0, stats.rate(), 1e-9)
}

func TestRedisChunkStore_DocumentKey(t *testing.T) {
	store := &RedisChunkStore{}
	assert.Equal(t, "doc_chunks:doc-1", store.documentKey("doc-1"))
}
