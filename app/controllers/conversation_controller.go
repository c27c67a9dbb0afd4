package controllers

import (
	"net/http"
	"strconv"

	"github.com/aihub/search-go/internal/services"
)

// ConversationController 对话记录控制器
type ConversationController struct {
	BaseController
	conversationService *services.ConversationService
}

// Prepare 注入服务实例
func (c *ConversationController) Prepare() {
	if c.conversationService == nil {
		c.conversationService = registeredConversations
	}
}

// List 列出未过期对话的摘要，按更新时间倒序
func (c *ConversationController) List() {
	limit, _ := strconv.Atoi(c.GetString("limit", "100"))

	summaries, err := c.conversationService.ListConversations(c.Ctx.Request.Context(), limit)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"total":         len(summaries),
		"conversations": summaries,
	})
}

// Get 获取对话记录，不存在或已过期返回404
func (c *ConversationController) Get() {
	conversationID := c.GetString(":id")
	if conversationID == "" {
		c.JSONError(http.StatusBadRequest, "缺少对话ID")
		return
	}

	record, err := c.conversationService.GetConversation(c.Ctx.Request.Context(), conversationID)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(record)
}

// Delete 删除对话记录
func (c *ConversationController) Delete() {
	conversationID := c.GetString(":id")
	if conversationID == "" {
		c.JSONError(http.StatusBadRequest, "缺少对话ID")
		return
	}

	if err := c.conversationService.DeleteConversation(c.Ctx.Request.Context(), conversationID); err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"conversation_id": conversationID,
		"deleted":         true,
	})
}
