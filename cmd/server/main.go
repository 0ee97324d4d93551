package main

import (
	"context"
	"os"
	"time"

	"healthcheck_srv/internal/app"
	"healthcheck_srv/internal/catalog"
	"healthcheck_srv/internal/config"
	"healthcheck_srv/internal/database"
	"healthcheck_srv/internal/infrastructure/template"
	"healthcheck_srv/internal/server"
	"healthcheck_srv/internal/service"
	"healthcheck_srv/internal/storage"
	"healthcheck_srv/internal/usecase"
	"healthcheck_srv/internal/usecase/repository"

	"github.com/sirupsen/logrus"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const (
	startTimeout = 15 * time.Second
	stopTimeout  = 30 * time.Second
)

func main() {
	application := fx.New(
		// Поставщики зависимостей
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDatabase,
			storage.NewStorageFromConfig,
			provideCatalog,
			provideExecutor,
			provideRunner,
			provideRenderer,
			provideRunFileStorage,
			service.NewGormRunRepository,
			service.NewRunProcessor,
			provideBackgroundProcessor,
			service.NewHealthCheckService,
			server.NewServer,
		),

		// Хуки жизненного цикла
		fx.Invoke(registerLifecycleHooks),
	)

	// Запуск приложения с остановкой
	runWithGracefulShutdown(application)
}

// provideConfig загружает и предоставляет конфигурацию приложения
func provideConfig() (config.Config, error) {
	return config.Load(os.Getenv("APP_CONFIG_FILE"))
}

// provideLogger создает и настраивает логгер на основе конфигурации
func provideLogger(cfg config.Config) *logrus.Logger {
	logger := app.NewLogger(cfg.Logging)
	logger.WithField("config", cfg.String()).Info("Запуск сервиса проверок")
	return logger
}

// provideDatabase подключается к БД истории прогонов и применяет миграции
func provideDatabase(cfg config.Config, logger *logrus.Logger) (*gorm.DB, error) {
	db, err := database.NewDatabase(database.Config{
		Driver: cfg.DB.Driver,
		DSN:    cfg.DB.DSN,
		Debug:  cfg.IsDevelopment(),
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func provideCatalog(cfg config.Config, logger *logrus.Logger) (*catalog.Catalog, error) {
	return app.LoadCatalog(cfg.Catalog, logger)
}

// provideExecutor создает исполнитель запросов; соединение закрывается при остановке
func provideExecutor(lc fx.Lifecycle, cfg config.Config, logger *logrus.Logger) (repository.QueryExecutor, error) {
	executor, closeExecutor, err := app.NewExecutor(context.Background(), cfg.Executor, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return closeExecutor()
		},
	})
	return executor, nil
}

func provideRunner(executor repository.QueryExecutor, cfg config.Config, logger *logrus.Logger) *usecase.Runner {
	return usecase.NewRunner(executor, logger, usecase.Options{
		Concurrency:  cfg.Runner.Concurrency,
		QueryTimeout: cfg.Runner.QueryTimeout,
	})
}

func provideRenderer(logger *logrus.Logger) repository.ResultRenderer {
	return template.NewXLSX(logger)
}

func provideRunFileStorage(s storage.Storage, cfg config.Config) service.RunFileStorage {
	return service.NewRunFileStorage(s, cfg.Storage.S3.PresignExpiry)
}

func provideBackgroundProcessor(p *service.RunProcessor) service.BackgroundProcessor {
	return p
}

// registerLifecycleHooks настраивает хуки жизненного цикла приложения
func registerLifecycleHooks(
	srv *server.Server,
	processor *service.RunProcessor,
	logger *logrus.Logger,
	lc fx.Lifecycle,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// ctx старта ограничен таймаутом, воркерам нужен свой
			processor.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			processor.Stop()
			return nil
		},
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Запуск HTTP сервера")
			go func() {
				if err := srv.Start(); err != nil {
					logger.WithError(err).Error("Не удалось запустить HTTP сервер")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Завершение работы HTTP сервера")
			return srv.Shutdown(ctx)
		},
	})
}

// runWithGracefulShutdown запускает приложение и останавливает его по SIGINT/SIGTERM
func runWithGracefulShutdown(application *fx.App) {
	startCtx, startCancel := context.WithTimeout(context.Background(), startTimeout)
	defer startCancel()

	if err := application.Start(startCtx); err != nil {
		logrus.WithError(err).Fatal("Не удалось запустить приложение")
	}

	// fx сам подписывается на SIGINT и SIGTERM
	sig := <-application.Wait()
	logrus.WithField("signal", sig.Signal).Info("Получен сигнал завершения работы")

	// текущие прогоны прерываются и помечаются failed
	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()

	if err := application.Stop(stopCtx); err != nil {
		logrus.WithError(err).Error("Ошибка при завершении работы")
		os.Exit(1)
	}

	logrus.Info("Сервис проверок остановлен корректно")
	os.Exit(sig.ExitCode)
}
