package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"healthcheck_srv/internal/config"

	"github.com/sirupsen/logrus"
)

const (
	// Типы хранилищ
	TypeLocal = "local"
	TypeS3    = "s3"

	// Настройки retry
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second

	maxKeyLength = 1024
)

var (
	// ErrNotFound is returned when no object is stored under the key.
	ErrNotFound = errors.New("file not found")

	// ErrInvalidKey is returned for empty, absolute or escaping keys.
	ErrInvalidKey = errors.New("invalid file key")
)

// Storage интерфейс для хранения книг с результатами прогонов
type Storage interface {
	Save(ctx context.Context, key string, reader io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Stat(ctx context.Context, key string) (*FileInfo, error)

	// URL возвращает ссылку на файл; для S3 это pre-signed URL
	URL(ctx context.Context, key string, expiration time.Duration) (string, error)
}

// FileInfo метаданные файла
type FileInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ContentType  string    `json:"content_type,omitempty"`
}

// ValidateKey проверяет ключ: непустой, относительный, без выхода за корень.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	case len(key) > maxKeyLength:
		return fmt.Errorf("%w: key is %d bytes long (max %d)", ErrInvalidKey, len(key), maxKeyLength)
	case strings.HasPrefix(key, "/") || strings.Contains(key, "\\"):
		return fmt.Errorf("%w: %q must be a relative slash-separated path", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return fmt.Errorf("%w: %q cannot contain '..'", ErrInvalidKey, key)
		}
	}
	return nil
}

// JoinKey собирает ключ из частей
func JoinKey(elem ...string) string {
	return path.Join(elem...)
}

// Builder строитель для конфигурации хранилища
type Builder struct {
	config config.Config
	logger *logrus.Logger
}

// NewBuilder создает новый строитель хранилища
func NewBuilder(cfg config.Config, logger *logrus.Logger) *Builder {
	return &Builder{config: cfg, logger: logger}
}

// Build создает хранилище на основе конфигурации и оборачивает его в middleware
func (b *Builder) Build(ctx context.Context) (Storage, error) {
	var (
		backend Storage
		err     error
	)

	switch b.config.Storage.Type {
	case TypeS3:
		s3 := b.config.Storage.S3
		backend, err = NewS3Storage(ctx, S3Config{
			Region:         s3.Region,
			Bucket:         s3.Bucket,
			Endpoint:       s3.Endpoint,
			AccessKey:      s3.AccessKey,
			SecretKey:      s3.SecretKey,
			ForcePathStyle: s3.Endpoint != "",
		})
		if err != nil {
			return nil, fmt.Errorf("ошибка создания S3 хранилища: %w", err)
		}

	case TypeLocal:
		backend, err = NewLocalStorage(b.config.Storage.BasePath)
		if err != nil {
			return nil, fmt.Errorf("ошибка создания локального хранилища: %w", err)
		}

	default:
		return nil, fmt.Errorf("неподдерживаемый тип хранилища: %s", b.config.Storage.Type)
	}

	return Wrap(backend, b.logger), nil
}

// Wrap оборачивает хранилище: валидация снаружи, затем retry, затем логирование.
func Wrap(backend Storage, logger *logrus.Logger) Storage {
	s := backend
	if logger != nil {
		s = NewLoggingMiddleware(s, logger)
	}
	s = NewRetryMiddleware(s, DefaultMaxRetries, DefaultRetryDelay, logger)
	return NewValidationMiddleware(s)
}

// NewStorageFromConfig создает хранилище из конфигурации
func NewStorageFromConfig(cfg config.Config, logger *logrus.Logger) (Storage, error) {
	return NewBuilder(cfg, logger).Build(context.Background())
}
