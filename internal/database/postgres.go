package database

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aihub/search-go/internal/config"
	"github.com/aihub/search-go/internal/models"
)

var DB *gorm.DB

func InitDB() (*gorm.DB, error) {
	cfg := config.AppConfig
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 获取底层的sql.DB设置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	// 自动迁移文档相关表
	if err := autoMigrate(db); err != nil {
		log.Printf("⚠️  Database migration warning: %v", err)
	}

	DB = db
	log.Println("✅ Database connected successfully")
	return db, nil
}

// autoMigrate 自动迁移文档相关表（按依赖顺序）
func autoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Document{}); err != nil {
		return fmt.Errorf("failed to migrate documents: %w", err)
	}
	if err := db.AutoMigrate(&models.DocumentChunk{}); err != nil {
		return fmt.Errorf("failed to migrate document_chunks: %w", err)
	}
	if err := db.AutoMigrate(&models.SearchLog{}); err != nil {
		return fmt.Errorf("failed to migrate search_logs: %w", err)
	}
	return nil
}

func CloseDB() error {
	if DB == nil {
		return nil
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}
