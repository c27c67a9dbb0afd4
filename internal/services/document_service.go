package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aihub/search-go/internal/database"
	apperrors "github.com/aihub/search-go/internal/errors"
	"github.com/aihub/search-go/internal/models"
)

// DocumentService 文档与分块的权威存储。向量索引是派生数据，
// 重建索引时以本服务中的分块为准。
type DocumentService struct {
	db *gorm.DB
}

// NewDocumentService 创建文档服务
func NewDocumentService() *DocumentService {
	return &DocumentService{db: database.DB}
}

// NewDocumentServiceWithDB 使用指定数据库连接创建文档服务
func NewDocumentServiceWithDB(db *gorm.DB) *DocumentService {
	return &DocumentService{db: db}
}

// CreateDocument 创建文档记录，初始状态为pending
func (s *DocumentService) CreateDocument(ctx context.Context, title, content string) (*models.Document, error) {
	doc := &models.Document{
		ID:        uuid.NewString(),
		Title:     title,
		Content:   content,
		Status:    models.DocumentStatusPending,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "创建文档失败").WithCause(err)
	}
	return doc, nil
}

// GetDocument 按ID获取文档
func (s *DocumentService) GetDocument(ctx context.Context, documentID string) (*models.Document, error) {
	var doc models.Document
	err := s.db.WithContext(ctx).First(&doc, "id = ?", documentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewDocumentNotFoundError(documentID)
	}
	if err != nil {
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "查询文档失败").WithCause(err)
	}
	return &doc, nil
}

// ListDocuments 列出全部文档，按创建时间倒序
func (s *DocumentService) ListDocuments(ctx context.Context) ([]models.Document, error) {
	var docs []models.Document
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&docs).Error; err != nil {
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "查询文档列表失败").WithCause(err)
	}
	return docs, nil
}

// SaveChunks 事务内保存文档的全部分块并更新文档状态为indexed
func (s *DocumentService) SaveChunks(ctx context.Context, documentID string, chunks []models.DocumentChunk) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(chunks) > 0 {
			if err := tx.Create(&chunks).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.Document{}).
			Where("id = ?", documentID).
			Updates(map[string]interface{}{
				"status":      models.DocumentStatusIndexed,
				"chunk_count": len(chunks),
				"updated_at":  time.Now(),
			}).Error
	})
}

// UpdateDocumentStatus 更新文档状态
func (s *DocumentService) UpdateDocumentStatus(ctx context.Context, documentID, status string) error {
	return s.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ?", documentID).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()}).Error
}

// GetChunks 获取文档的分块，按序号升序
func (s *DocumentService) GetChunks(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	var chunks []models.DocumentChunk
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "查询分块失败").WithCause(err)
	}
	return chunks, nil
}

// GetAllChunks 获取全部分块，重建向量索引时使用
func (s *DocumentService) GetAllChunks(ctx context.Context) ([]models.DocumentChunk, error) {
	var chunks []models.DocumentChunk
	err := s.db.WithContext(ctx).
		Order("document_id ASC, chunk_index ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "查询全部分块失败").WithCause(err)
	}
	return chunks, nil
}

// DeleteDocument 删除文档及其全部分块
func (s *DocumentService) DeleteDocument(ctx context.Context, documentID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&models.DocumentChunk{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Document{}, "id = ?", documentID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.NewDocumentNotFoundError(documentID)
		}
		return nil
	})
}

// LogSearch 记录一次检索日志
func (s *DocumentService) LogSearch(ctx context.Context, log *models.SearchLog) error {
	log.CreatedAt = time.Now()
	return s.db.WithContext(ctx).Create(log).Error
}
