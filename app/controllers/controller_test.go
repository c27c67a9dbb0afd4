package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/beego/beego/v2/server/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aihub/search-go/internal/knowledge"
	"github.com/aihub/search-go/internal/services"
)

// newTestServices 构建控制器测试所需的服务栈，数据库基于sqlmock
func newTestServices(t *testing.T) (*services.RAGService, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	chunker, err := knowledge.NewChunker(300, 50)
	require.NoError(t, err)
	idx := knowledge.NewMemoryVectorIndex(0)
	ragService := services.NewRAGService(services.RAGServiceOptions{
		Chunker:       chunker,
		Embedder:      knowledge.NewHashEmbedder(64),
		VectorStore:   idx,
		MemoryIndex:   idx,
		PromptBuilder: knowledge.NewPromptBuilder(8000, 5),
		Generator:     &knowledge.NoopGenerator{},
		Documents:     services.NewDocumentServiceWithDB(gormDB),
	})
	return ragService, mock
}

// beego按请求新建控制器实例且不复制未导出字段，
// 路由必须经过Prepare注入服务后才能执行动作。
func TestSearchController_DispatchThroughRouter(t *testing.T) {
	ragService, mock := newTestServices(t)
	RegisterServices(ragService, nil, nil)
	t.Cleanup(func() { RegisterServices(nil, nil, nil) })

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "search_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	handler := web.NewControllerRegister()
	handler.Add("/api/search", &SearchController{},
		web.WithRouterMethods(&SearchController{}, "get:Search"))

	r, _ := http.NewRequest("GET", "/api/search?query=hello", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Query   string             `json:"query"`
			Mode    string             `json:"mode"`
			Results []knowledge.Source `json:"results"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "hello", resp.Data.Query)
	assert.Equal(t, "vector", resp.Data.Mode)
	assert.Empty(t, resp.Data.Results)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchController_MissingQuery(t *testing.T) {
	ragService, _ := newTestServices(t)
	RegisterServices(ragService, nil, nil)
	t.Cleanup(func() { RegisterServices(nil, nil, nil) })

	handler := web.NewControllerRegister()
	handler.Add("/api/search", &SearchController{},
		web.WithRouterMethods(&SearchController{}, "get:Search"))

	r, _ := http.NewRequest("GET", "/api/search", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestConversationController_DispatchInjectsService(t *testing.T) {
	RegisterServices(nil, nil, services.NewConversationServiceWithClient(nil, 0))
	t.Cleanup(func() { RegisterServices(nil, nil, nil) })

	handler := web.NewControllerRegister()
	handler.Add("/api/conversations", &ConversationController{},
		web.WithRouterMethods(&ConversationController{}, "get:List"))

	r, _ := http.NewRequest("GET", "/api/conversations", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	// Redis未配置返回错误响应而非空指针崩溃，说明服务已注入
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", resp.Code)
}
