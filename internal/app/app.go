// Package app собирает общие для сервера и CLI зависимости из конфигурации.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"healthcheck_srv/internal/catalog"
	"healthcheck_srv/internal/config"
	"healthcheck_srv/internal/infrastructure/sql"
	"healthcheck_srv/internal/infrastructure/swis"
	"healthcheck_srv/internal/usecase/repository"

	"github.com/sirupsen/logrus"
)

const (
	ExecutorSWIS = "swis"
	ExecutorSQL  = "sql"
)

// NewLogger создает и настраивает логгер на основе конфигурации
func NewLogger(cfg config.Logging) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
		logger.WithError(err).Warn("Неверный уровень логирования, используется info")
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	return logger
}

// LoadCatalog возвращает встроенный каталог или каталог из файла, если путь задан
func LoadCatalog(cfg config.Catalog, logger *logrus.Logger) (*catalog.Catalog, error) {
	var (
		cat    *catalog.Catalog
		err    error
		source = "embedded"
	)
	if cfg.Path != "" {
		source = cfg.Path
		cat, err = catalog.ParseFile(cfg.Path)
	} else {
		cat, err = catalog.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки каталога: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"source":     source,
		"categories": cat.Len(),
		"entries":    cat.ReportCount(),
	}).Info("Каталог загружен")
	return cat, nil
}

// NewExecutor создает исполнитель запросов по конфигурации. Возвращаемая
// функция закрывает соединение и вызывается при остановке.
func NewExecutor(ctx context.Context, cfg config.Executor, logger *logrus.Logger) (repository.QueryExecutor, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Type {
	case ExecutorSWIS:
		client, err := swis.NewClient(swis.Config{
			Host:               cfg.SWIS.Host,
			Port:               cfg.SWIS.Port,
			Username:           cfg.SWIS.Username,
			Password:           cfg.SWIS.Password,
			InsecureSkipVerify: cfg.SWIS.InsecureSkipVerify,
			Timeout:            cfg.SWIS.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.WithFields(logrus.Fields{
			"host": cfg.SWIS.Host,
			"port": cfg.SWIS.Port,
			"user": cfg.SWIS.Username,
		}).Info("Используется исполнитель SWIS")
		return client, noop, nil

	case ExecutorSQL:
		db, err := sql.Open(ctx, cfg.SQL.Driver, cfg.SQL.DSN)
		if err != nil {
			return nil, nil, err
		}
		logger.WithField("db", db.String()).Info("Используется исполнитель SQL")
		return db, db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported executor type: %q", cfg.Type)
	}
}
