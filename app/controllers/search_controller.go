package controllers

import (
	"net/http"
	"strconv"

	"github.com/aihub/search-go/internal/knowledge"
	"github.com/aihub/search-go/internal/services"
)

// SearchController 检索控制器
type SearchController struct {
	BaseController
	ragService *services.RAGService
}

// Prepare 注入服务实例
func (c *SearchController) Prepare() {
	if c.ragService == nil {
		c.ragService = registeredRAG
	}
}

// Search 文档检索。mode=vector为向量检索（默认），
// mode=keyword走全文索引，索引不可用时自动降级为向量检索。
func (c *SearchController) Search() {
	query := c.GetString("query")
	if query == "" {
		c.JSONError(http.StatusBadRequest, "查询参数不能为空")
		return
	}

	topK, _ := strconv.Atoi(c.GetString("top_k", "5"))
	mode := c.GetString("mode", "vector")

	var (
		sources  []knowledge.Source
		degraded bool
		err      error
	)
	switch mode {
	case "vector":
		sources, err = c.ragService.Search(c.Ctx.Request.Context(), query, topK)
	case "keyword":
		sources, degraded, err = c.ragService.KeywordSearch(c.Ctx.Request.Context(), query, topK)
	default:
		c.JSONError(http.StatusBadRequest, "不支持的检索模式: "+mode)
		return
	}
	if err != nil {
		c.JSONAppError(err)
		return
	}

	resp := map[string]interface{}{
		"query":   query,
		"mode":    mode,
		"results": sources,
	}
	if degraded {
		resp["degraded"] = true
	}
	c.JSONSuccess(resp)
}
