package controllers

import (
	"github.com/aihub/search-go/internal/services"
)

// beego每次请求通过反射新建控制器实例，且只复制可导出字段，
// 服务实例统一登记在包级注册表中，由各控制器的Prepare注入。
var (
	registeredRAG           *services.RAGService
	registeredDocuments     *services.DocumentService
	registeredConversations *services.ConversationService
)

// RegisterServices 登记控制器依赖的服务实例，必须在路由注册前调用
func RegisterServices(rag *services.RAGService, documents *services.DocumentService, conversations *services.ConversationService) {
	registeredRAG = rag
	registeredDocuments = documents
	registeredConversations = conversations
}
