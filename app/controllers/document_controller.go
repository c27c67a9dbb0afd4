package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/aihub/search-go/internal/services"
)

// DocumentController 文档控制器
type DocumentController struct {
	BaseController
	ragService      *services.RAGService
	documentService *services.DocumentService
}

// Prepare 注入服务实例
func (c *DocumentController) Prepare() {
	if c.ragService == nil {
		c.ragService = registeredRAG
	}
	if c.documentService == nil {
		c.documentService = registeredDocuments
	}
}

// ingestRequest 文档摄入请求
type ingestRequest struct {
	Title   string `json:"title"`
	Content string `json:"content" validate:"required"`
}

// Create 摄入文档
func (c *DocumentController) Create() {
	var req ingestRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "请求体格式错误")
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSONError(http.StatusBadRequest, "content不能为空")
		return
	}

	doc, err := c.ragService.Ingest(c.Ctx.Request.Context(), req.Title, req.Content)
	if err != nil {
		c.JSONAppError(err)
		return
	}

	c.JSONSuccess(map[string]interface{}{
		"document_id": doc.ID,
		"chunk_count": doc.ChunkCount,
		"status":      doc.Status,
	})
}

// List 列出全部文档
func (c *DocumentController) List() {
	docs, err := c.documentService.ListDocuments(c.Ctx.Request.Context())
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"documents": docs,
		"total":     len(docs),
	})
}

// Get 获取单个文档
func (c *DocumentController) Get() {
	documentID := c.GetString(":id")
	if documentID == "" {
		c.JSONError(http.StatusBadRequest, "缺少文档ID")
		return
	}

	doc, err := c.documentService.GetDocument(c.Ctx.Request.Context(), documentID)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(doc)
}

// Chunks 获取文档的全部分块，优先读Redis缓存
func (c *DocumentController) Chunks() {
	documentID := c.GetString(":id")
	if documentID == "" {
		c.JSONError(http.StatusBadRequest, "缺少文档ID")
		return
	}

	if _, err := c.documentService.GetDocument(c.Ctx.Request.Context(), documentID); err != nil {
		c.JSONAppError(err)
		return
	}
	chunks, err := c.ragService.GetDocumentChunks(c.Ctx.Request.Context(), documentID)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"document_id": documentID,
		"chunks":      chunks,
		"total":       len(chunks),
	})
}

// Delete 删除文档，级联删除分块与索引条目
func (c *DocumentController) Delete() {
	documentID := c.GetString(":id")
	if documentID == "" {
		c.JSONError(http.StatusBadRequest, "缺少文档ID")
		return
	}

	if err := c.ragService.DeleteDocument(c.Ctx.Request.Context(), documentID); err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"document_id": documentID,
		"deleted":     true,
	})
}
