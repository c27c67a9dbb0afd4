package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aihub/search-go/internal/config"
	"github.com/aihub/search-go/internal/database"
	apperrors "github.com/aihub/search-go/internal/errors"
	"github.com/aihub/search-go/internal/models"
)

const conversationPrefix = "conversation:"

// ConversationService 对话记录服务。记录存储在Redis中，
// 物理TTL与逻辑ExpiresAt双重约束：过期记录即使尚未被Redis清理也不可读。
type ConversationService struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewConversationService 创建对话服务
func NewConversationService() *ConversationService {
	ttlDays := 15
	if cfg := config.AppConfig; cfg != nil && cfg.Knowledge.ConversationTTL > 0 {
		ttlDays = cfg.Knowledge.ConversationTTL
	}
	return &ConversationService{
		redis: database.RedisClient,
		ttl:   time.Duration(ttlDays) * 24 * time.Hour,
	}
}

// NewConversationServiceWithClient 使用指定Redis客户端创建对话服务
func NewConversationServiceWithClient(client *redis.Client, ttl time.Duration) *ConversationService {
	return &ConversationService{redis: client, ttl: ttl}
}

// CreateConversation 创建新对话
func (s *ConversationService) CreateConversation(ctx context.Context) (*models.ConversationRecord, error) {
	if s.redis == nil {
		return nil, fmt.Errorf("Redis 未初始化")
	}

	now := time.Now()
	record := &models.ConversationRecord{
		ID:        uuid.NewString(),
		Turns:     []models.ConversationTurn{},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	if err := s.save(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// GetConversation 获取对话记录，不存在或已过期时返回CONVERSATION_NOT_FOUND
func (s *ConversationService) GetConversation(ctx context.Context, conversationID string) (*models.ConversationRecord, error) {
	if s.redis == nil {
		return nil, fmt.Errorf("Redis 未初始化")
	}

	key := buildConversationKey(conversationID)
	raw, err := s.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, apperrors.NewConversationNotFoundError(conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("获取对话失败: %w", err)
	}

	record, err := decodeConversation(conversationID, raw, time.Now())
	if apperrors.IsCode(err, apperrors.ErrCodeConversationNotFound) {
		// 逻辑过期的记录删除后按不存在处理
		s.redis.Del(ctx, key)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// decodeConversation 反序列化对话记录并做逻辑过期检查。
// 物理TTL尚未触发但ExpiresAt已过的记录视同不存在。
func decodeConversation(conversationID, raw string, now time.Time) (*models.ConversationRecord, error) {
	var record models.ConversationRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("解析对话失败: %w", err)
	}
	if now.After(record.ExpiresAt) {
		return nil, apperrors.NewConversationNotFoundError(conversationID)
	}
	return &record, nil
}

// AppendTurn 向对话追加一轮问答（用户消息与助手消息成对写入），
// 写入同时刷新过期时间。对话只追加，历史消息从不修改。
func (s *ConversationService) AppendTurn(ctx context.Context, conversationID, userContent, assistantContent string) (*models.ConversationRecord, error) {
	record, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	record.Turns = append(record.Turns,
		models.ConversationTurn{Role: models.RoleUser, Content: userContent, CreatedAt: now},
		models.ConversationTurn{Role: models.RoleAssistant, Content: assistantContent, CreatedAt: now},
	)
	record.UpdatedAt = now
	record.ExpiresAt = now.Add(s.ttl)

	if err := s.save(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// DeleteConversation 删除对话记录
func (s *ConversationService) DeleteConversation(ctx context.Context, conversationID string) error {
	if s.redis == nil {
		return fmt.Errorf("Redis 未初始化")
	}

	deleted, err := s.redis.Del(ctx, buildConversationKey(conversationID)).Result()
	if err != nil {
		return fmt.Errorf("删除对话失败: %w", err)
	}
	if deleted == 0 {
		return apperrors.NewConversationNotFoundError(conversationID)
	}
	return nil
}

// ListConversations 遍历返回未过期的对话摘要，按更新时间倒序。
// 基于SCAN游标遍历，不阻塞Redis；limit<=0时使用默认值100。
func (s *ConversationService) ListConversations(ctx context.Context, limit int) ([]models.ConversationSummary, error) {
	if s.redis == nil {
		return nil, fmt.Errorf("Redis 未初始化")
	}
	if limit <= 0 {
		limit = 100
	}

	summaries := make([]models.ConversationSummary, 0)
	now := time.Now()
	iter := s.redis.Scan(ctx, 0, conversationPrefix+"*", 64).Iterator()
	for iter.Next(ctx) {
		raw, err := s.redis.Get(ctx, iter.Val()).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("读取对话失败: %w", err)
		}

		var record models.ConversationRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			continue
		}
		if now.After(record.ExpiresAt) {
			continue
		}
		summaries = append(summaries, record.Summary())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("遍历对话失败: %w", err)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	if len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// ListRecentTurns 返回对话最近n轮问答，供提示词组装使用
func (s *ConversationService) ListRecentTurns(ctx context.Context, conversationID string, n int) ([]models.ConversationTurn, error) {
	record, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return record.LastTurns(n), nil
}

// save 整条记录序列化后写入，SET自带物理TTL
func (s *ConversationService) save(ctx context.Context, record *models.ConversationRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化对话失败: %w", err)
	}

	key := buildConversationKey(record.ID)
	if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("保存对话到Redis失败: %w", err)
	}
	return nil
}

func buildConversationKey(conversationID string) string {
	return conversationPrefix + conversationID
}
