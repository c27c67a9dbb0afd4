package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/aihub/search-go/internal/config"
	apperrors "github.com/aihub/search-go/internal/errors"
	"github.com/aihub/search-go/internal/logger"
)

// BlobStore 对象存储服务，用于保存和读取向量索引快照
type BlobStore struct {
	client *minio.Client
	bucket string
}

var globalBlobStore *BlobStore

// NewBlobStore 创建对象存储服务实例
func NewBlobStore() (*BlobStore, error) {
	if globalBlobStore != nil {
		return globalBlobStore, nil
	}

	cfg := config.AppConfig.Knowledge.Storage
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint not configured")
	}

	// minio.New 的 endpoint 不包含协议前缀
	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	store := &BlobStore{
		client: client,
		bucket: cfg.Bucket,
	}

	// 确保bucket存在
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, store.bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, store.bucket, minio.MakeBucketOptions{}); err != nil {
			errStr := err.Error()
			if !strings.Contains(errStr, "BucketAlreadyExists") &&
				!strings.Contains(errStr, "BucketAlreadyOwnedByYou") {
				return nil, fmt.Errorf("failed to create bucket %s: %w", store.bucket, err)
			}
		}
		logger.Info(fmt.Sprintf("已创建MinIO bucket: %s", store.bucket))
	}

	globalBlobStore = store
	return store, nil
}

// GetBlobStore 获取全局对象存储实例，未初始化时返回nil
func GetBlobStore() *BlobStore {
	return globalBlobStore
}

// Ready 检查对象存储是否可用
func (s *BlobStore) Ready() bool {
	return s != nil && s.client != nil
}

// WriteBlob 写入对象
func (s *BlobStore) WriteBlob(ctx context.Context, key string, data []byte) error {
	if !s.Ready() {
		return fmt.Errorf("minio client not initialized")
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

// ReadBlob 读取对象，对象不存在时返回SNAPSHOT_NOT_FOUND
func (s *BlobStore) ReadBlob(ctx context.Context, key string) ([]byte, error) {
	if !s.Ready() {
		return nil, fmt.Errorf("minio client not initialized")
	}

	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil, apperrors.NewBusinessError(apperrors.ErrCodeSnapshotNotFound,
				fmt.Sprintf("snapshot %s not found", key))
		}
		return nil, err
	}
	return data, nil
}

// RemoveBlob 删除对象
func (s *BlobStore) RemoveBlob(ctx context.Context, key string) error {
	if !s.Ready() {
		return fmt.Errorf("minio client not initialized")
	}
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}
