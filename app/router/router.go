package router

import (
	"github.com/beego/beego/v2/server/web"

	"github.com/aihub/search-go/app/controllers"
	"github.com/aihub/search-go/internal/services"
)

// Init registers all routes. Must be called after bootstrap completes.
func Init(ragService *services.RAGService, documentService *services.DocumentService, conversationService *services.ConversationService) {
	controllers.RegisterServices(ragService, documentService, conversationService)

	web.Router("/", &controllers.RootController{}, "get:Index")
	web.Router("/health", &controllers.HealthController{}, "get:Health")
	web.Router("/metrics", &controllers.MetricsController{}, "get:Metrics")

	// 文档路由
	web.Router("/api/documents", &controllers.DocumentController{}, "get:List;post:Create")
	web.Router("/api/documents/:id", &controllers.DocumentController{}, "get:Get;delete:Delete")
	web.Router("/api/documents/:id/chunks", &controllers.DocumentController{}, "get:Chunks")

	// 检索路由
	web.Router("/api/search", &controllers.SearchController{}, "get:Search")

	// 对话路由
	web.Router("/api/chat", &controllers.ChatController{}, "post:Chat")

	web.Router("/api/conversations", &controllers.ConversationController{}, "get:List")
	web.Router("/api/conversations/:id", &controllers.ConversationController{}, "get:Get;delete:Delete")
}
