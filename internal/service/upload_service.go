package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"

	"dejny-gpt-go/internal/config"
	"dejny-gpt-go/pkg/log"
	"dejny-gpt-go/pkg/storage"
)

// DefaultMaxFileSize 定义了允许上传的最大文件字节数 (5MB)。
const DefaultMaxFileSize = 5 * 1024 * 1024

// UploadService 接口定义了文件上传相关的业务操作。
type UploadService interface {
	// UploadImage 将上传的文件写入对象存储并返回公开访问 URL。
	UploadImage(ctx context.Context, fileName string, size int64, file io.Reader, contentType string) (string, error)
	// MaxFileSize 返回当前生效的文件大小上限。
	MaxFileSize() int64
}

type uploadService struct {
	store       *storage.Store
	maxFileSize int64
}

// NewUploadService 创建一个新的 UploadService 实例。
func NewUploadService(store *storage.Store, cfg config.UploadConfig) UploadService {
	maxSize := cfg.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &uploadService{store: store, maxFileSize: maxSize}
}

// UploadImage 校验文件大小后写入对象存储。
// 只按大小拒绝超限文件，不校验内容类型，与原有行为保持一致。
func (s *uploadService) UploadImage(ctx context.Context, fileName string, size int64, file io.Reader, contentType string) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("%w: 未收到上传文件", ErrValidation)
	}
	if size > s.maxFileSize {
		return "", fmt.Errorf("%w: 文件大小 %d 超过上限 %d", ErrValidation, size, s.maxFileSize)
	}

	// 使用随机对象名避免同名覆盖，保留原始扩展名以便浏览器识别。
	objectName := uuid.NewString() + filepath.Ext(fileName)
	url, err := s.store.Upload(ctx, objectName, file, size, contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInfrastructure, err)
	}

	log.Infof("文件上传完成: %s -> %s", fileName, objectName)
	return url, nil
}

// MaxFileSize 返回当前生效的文件大小上限。
func (s *uploadService) MaxFileSize() int64 {
	return s.maxFileSize
}
