package controllers

import (
	"github.com/aihub/search-go/internal/database"
)

// RootController 根路径控制器
type RootController struct {
	BaseController
}

// Index 服务信息
func (c *RootController) Index() {
	c.JSONSuccess(map[string]interface{}{
		"service": "search-go",
		"status":  "running",
	})
}

// HealthController 健康检查控制器
type HealthController struct {
	BaseController
}

// Health 健康检查
func (c *HealthController) Health() {
	checks := map[string]string{
		"database": "ok",
		"redis":    "ok",
	}

	if database.DB == nil {
		checks["database"] = "unavailable"
	}
	if database.RedisClient == nil {
		checks["redis"] = "unavailable"
	}

	c.JSONSuccess(map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	})
}
