package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/aihub/search-go/internal/services"
)

// ChatController 对话控制器
type ChatController struct {
	BaseController
	ragService *services.RAGService
}

// Prepare 注入服务实例
func (c *ChatController) Prepare() {
	if c.ragService == nil {
		c.ragService = registeredRAG
	}
}

// chatRequest 对话请求
type chatRequest struct {
	Query          string `json:"query" validate:"required"`
	ConversationID string `json:"conversation_id"`
	TopK           int    `json:"top_k" validate:"gte=0,lte=10"`
	IncludeWeb     bool   `json:"include_web"`
}

// Chat 执行一轮检索增强对话
func (c *ChatController) Chat() {
	var req chatRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "请求体格式错误")
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSONError(http.StatusBadRequest, "请求参数无效")
		return
	}

	resp, err := c.ragService.Chat(c.Ctx.Request.Context(), services.ChatRequest{
		Query:          req.Query,
		ConversationID: req.ConversationID,
		TopK:           req.TopK,
		IncludeWeb:     req.IncludeWeb,
	})
	if err != nil {
		c.JSONAppError(err)
		return
	}

	c.JSONSuccess(resp)
}
