package main

import (
	"os"

	"healthcheck_srv/internal/app"
	"healthcheck_srv/internal/config"
	"healthcheck_srv/internal/database"

	"github.com/sirupsen/logrus"
)

func main() {
	// путь к конфигу можно передать первым аргументом
	var path string
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	cfg, err := config.Load(path)
	if err != nil {
		logrus.WithError(err).Fatal("Не удалось загрузить конфигурацию")
	}
	logger := app.NewLogger(cfg.Logging)

	// Create database connection
	db, err := database.NewDatabase(database.Config{
		Driver: cfg.DB.Driver,
		DSN:    cfg.DB.DSN,
		Debug:  true,
		Logger: logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	// Run migrations
	if err := database.AutoMigrate(db); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}

	logger.WithField("driver", cfg.DB.Driver).Info("Migrations completed successfully")
}
