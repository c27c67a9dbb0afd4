package main

import (
	"log"
	"strconv"

	"github.com/beego/beego/v2/server/web"
	"go.uber.org/zap"

	"github.com/aihub/search-go/app/bootstrap"
	"github.com/aihub/search-go/app/router"
	"github.com/aihub/search-go/internal/config"
	"github.com/aihub/search-go/internal/logger"
)

func main() {
	app, err := bootstrap.Init()
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()

	router.Init(app.RAGService, app.DocumentService, app.ConversationService)

	web.BConfig.AppName = "RAG Search Service"
	web.BConfig.CopyRequestBody = true
	if p, err := strconv.Atoi(config.AppConfig.Server.Port); err == nil {
		web.BConfig.Listen.HTTPPort = p
	}

	logger.Info("🚀 Starting RAG Search Service", zap.Int("port", web.BConfig.Listen.HTTPPort))
	web.Run()
}
