package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aihub/search-go/internal/database"
	"github.com/aihub/search-go/internal/logger"
	"github.com/aihub/search-go/internal/models"
)

const chunkCacheTTL = time.Hour

// RedisChunkStore 分块数据的Redis读缓存，权威数据仍在数据库中。
// Redis未初始化时所有操作静默跳过。
type RedisChunkStore struct {
	client   *redis.Client
	hitStats *CacheHitStats
}

// CacheHitStats 缓存命中率统计
type CacheHitStats struct {
	hits   int64
	misses int64
	mu     sync.RWMutex
}

// NewRedisChunkStore 创建分块缓存
func NewRedisChunkStore() *RedisChunkStore {
	return NewRedisChunkStoreWithClient(database.RedisClient)
}

// NewRedisChunkStoreWithClient 使用指定Redis客户端创建分块缓存
func NewRedisChunkStoreWithClient(client *redis.Client) *RedisChunkStore {
	return &RedisChunkStore{
		client:   client,
		hitStats: &CacheHitStats{},
	}
}

// StoreChunks 缓存文档的全部分块
func (r *RedisChunkStore) StoreChunks(ctx context.Context, documentID string, chunks []models.DocumentChunk) error {
	if r.client == nil {
		return nil
	}

	data, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("序列化分块失败: %w", err)
	}

	key := r.documentKey(documentID)
	if err := r.client.Set(ctx, key, data, chunkCacheTTL).Err(); err != nil {
		logger.Warn("分块缓存写入失败", zap.String("document_id", documentID), zap.Error(err))
		return err
	}
	return nil
}

// GetChunks 读取文档分块缓存，未命中时返回nil
func (r *RedisChunkStore) GetChunks(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	if r.client == nil {
		return nil, nil
	}

	raw, err := r.client.Get(ctx, r.documentKey(documentID)).Result()
	if err == redis.Nil {
		r.hitStats.recordMiss()
		return nil, nil
	}
	if err != nil {
		r.hitStats.recordMiss()
		return nil, err
	}

	var chunks []models.DocumentChunk
	if err := json.Unmarshal([]byte(raw), &chunks); err != nil {
		return nil, fmt.Errorf("解析分块缓存失败: %w", err)
	}

	r.hitStats.recordHit()
	return chunks, nil
}

// DeleteDocument 删除文档的分块缓存
func (r *RedisChunkStore) DeleteDocument(ctx context.Context, documentID string) error {
	if r.client == nil {
		return nil
	}
	return r.client.Del(ctx, r.documentKey(documentID)).Err()
}

// HitRate 返回缓存命中率
func (r *RedisChunkStore) HitRate() float64 {
	return r.hitStats.rate()
}

func (r *RedisChunkStore) documentKey(documentID string) string {
	return fmt.Sprintf("doc_chunks:%s", documentID)
}

func (s *CacheHitStats) recordHit() {
	s.mu.Lock()
	s.hits++
	s.mu.Unlock()
}

func (s *CacheHitStats) recordMiss() {
	s.mu.Lock()
	s.misses++
	s.mu.Unlock()
}

func (s *CacheHitStats) rate() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := s.hits + s.misses
	if total == 0 {
		return 0
	}
	return float64(s.hits) / float64(total)
}
