package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// LoggingMiddleware пишет в лог каждую операцию с длительностью
type LoggingMiddleware struct {
	storage Storage
	logger  *logrus.Logger
}

// NewLoggingMiddleware создает новый logging middleware
func NewLoggingMiddleware(storage Storage, logger *logrus.Logger) Storage {
	return &LoggingMiddleware{storage: storage, logger: logger}
}

func (m *LoggingMiddleware) observe(operation, key string, start time.Time, err error) {
	entry := m.logger.WithFields(logrus.Fields{
		"operation": operation,
		"key":       key,
		"duration":  time.Since(start),
	})
	switch {
	case err == nil:
		entry.Debug("Операция хранилища выполнена")
	case errors.Is(err, ErrNotFound):
		entry.WithError(err).Warn("Файл не найден")
	default:
		entry.WithError(err).Error("Ошибка операции хранилища")
	}
}

func (m *LoggingMiddleware) Save(ctx context.Context, key string, reader io.Reader) (err error) {
	defer func(start time.Time) { m.observe("save", key, start, err) }(time.Now())
	return m.storage.Save(ctx, key, reader)
}

func (m *LoggingMiddleware) Get(ctx context.Context, key string) (_ io.ReadCloser, err error) {
	defer func(start time.Time) { m.observe("get", key, start, err) }(time.Now())
	return m.storage.Get(ctx, key)
}

func (m *LoggingMiddleware) Delete(ctx context.Context, key string) (err error) {
	defer func(start time.Time) { m.observe("delete", key, start, err) }(time.Now())
	return m.storage.Delete(ctx, key)
}

func (m *LoggingMiddleware) Stat(ctx context.Context, key string) (_ *FileInfo, err error) {
	defer func(start time.Time) { m.observe("stat", key, start, err) }(time.Now())
	return m.storage.Stat(ctx, key)
}

func (m *LoggingMiddleware) URL(ctx context.Context, key string, expiration time.Duration) (_ string, err error) {
	defer func(start time.Time) { m.observe("url", key, start, err) }(time.Now())
	return m.storage.URL(ctx, key, expiration)
}

// RetryMiddleware повторяет операции после временных ошибок
type RetryMiddleware struct {
	storage    Storage
	maxRetries int
	retryDelay time.Duration
	logger     *logrus.Logger
}

// NewRetryMiddleware создает новый retry middleware
func NewRetryMiddleware(storage Storage, maxRetries int, retryDelay time.Duration, logger *logrus.Logger) Storage {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RetryMiddleware{
		storage:    storage,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

// Save повторяет запись только для потоков, которые можно перемотать
func (m *RetryMiddleware) Save(ctx context.Context, key string, reader io.Reader) error {
	seeker, ok := reader.(io.Seeker)
	if !ok {
		return m.storage.Save(ctx, key, reader)
	}
	return m.retry(ctx, "save", func() error {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return err
		}
		return m.storage.Save(ctx, key, reader)
	})
}

func (m *RetryMiddleware) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	var result io.ReadCloser
	err := m.retry(ctx, "get", func() error {
		var err error
		result, err = m.storage.Get(ctx, key)
		return err
	})
	return result, err
}

func (m *RetryMiddleware) Delete(ctx context.Context, key string) error {
	return m.retry(ctx, "delete", func() error {
		return m.storage.Delete(ctx, key)
	})
}

func (m *RetryMiddleware) Stat(ctx context.Context, key string) (*FileInfo, error) {
	var result *FileInfo
	err := m.retry(ctx, "stat", func() error {
		var err error
		result, err = m.storage.Stat(ctx, key)
		return err
	})
	return result, err
}

func (m *RetryMiddleware) URL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	return m.storage.URL(ctx, key, expiration)
}

// retry выполняет операцию с паузой retryDelay между попытками
func (m *RetryMiddleware) retry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil || !shouldRetry(lastErr) {
			return lastErr
		}

		if attempt < m.maxRetries {
			m.logger.WithFields(logrus.Fields{
				"operation":   operation,
				"attempt":     attempt + 1,
				"max_retries": m.maxRetries,
			}).WithError(lastErr).Warn("Повтор операции после ошибки")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.retryDelay):
			}
		}
	}

	return lastErr
}

// shouldRetry: отсутствующий файл, неверный ключ и отмена контекста не лечатся повтором
func shouldRetry(err error) bool {
	return !errors.Is(err, ErrNotFound) &&
		!errors.Is(err, ErrInvalidKey) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// ValidationMiddleware отклоняет некорректные ключи до обращения к хранилищу
type ValidationMiddleware struct {
	storage Storage
}

// NewValidationMiddleware создает новый validation middleware
func NewValidationMiddleware(storage Storage) Storage {
	return &ValidationMiddleware{storage: storage}
}

func (m *ValidationMiddleware) Save(ctx context.Context, key string, reader io.Reader) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	return m.storage.Save(ctx, key, reader)
}

func (m *ValidationMiddleware) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	return m.storage.Get(ctx, key)
}

func (m *ValidationMiddleware) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	return m.storage.Delete(ctx, key)
}

func (m *ValidationMiddleware) Stat(ctx context.Context, key string) (*FileInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	return m.storage.Stat(ctx, key)
}

func (m *ValidationMiddleware) URL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return m.storage.URL(ctx, key, expiration)
}
