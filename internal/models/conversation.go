package models

import (
	"time"
)

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn 对话中的一条消息
type ConversationTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationRecord 对话记录，存储在Redis中并带逻辑过期时间
type ConversationRecord struct {
	ID        string             `json:"id"`
	Turns     []ConversationTurn `json:"turns"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// ConversationSummary 对话列表项，不携带消息正文
type ConversationSummary struct {
	ID        string    `json:"id"`
	TurnCount int       `json:"turn_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Summary 生成对话摘要
func (r *ConversationRecord) Summary() ConversationSummary {
	return ConversationSummary{
		ID:        r.ID,
		TurnCount: len(r.Turns) / 2,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		ExpiresAt: r.ExpiresAt,
	}
}

// LastTurns 返回最近n轮问答（最多2n条消息），保持时间顺序。
// n不为正时不返回任何历史
func (r *ConversationRecord) LastTurns(n int) []ConversationTurn {
	if n <= 0 {
		return nil
	}
	limit := n * 2
	if len(r.Turns) <= limit {
		return r.Turns
	}
	return r.Turns[len(r.Turns)-limit:]
}
