package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"healthcheck_srv/internal/config"
	"healthcheck_srv/internal/infrastructure/sql"
	"healthcheck_srv/internal/infrastructure/swis"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger(config.Logging{Level: "debug", Format: "json"})
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	logger = NewLogger(config.Logging{Level: "loud"})
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}

func TestLoadCatalog(t *testing.T) {
	cat, err := LoadCatalog(config.Catalog{}, logrus.New())
	require.NoError(t, err)
	assert.Equal(t, 16, cat.Len())

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("Custom:\n  - table: Nodes\n    query: SELECT 1\n"), 0o644))

	cat, err = LoadCatalog(config.Catalog{Path: path}, logrus.New())
	require.NoError(t, err)
	assert.Equal(t, []string{"Custom"}, cat.Names())

	_, err = LoadCatalog(config.Catalog{Path: filepath.Join(t.TempDir(), "missing.yaml")}, logrus.New())
	assert.Error(t, err)
}

func TestNewExecutor(t *testing.T) {
	ctx := context.Background()

	exec, closeFn, err := NewExecutor(ctx, config.Executor{
		Type: ExecutorSWIS,
		SWIS: config.SWIS{Host: "orion.example.com", Port: 17774, Username: "admin"},
	}, logrus.New())
	require.NoError(t, err)
	assert.IsType(t, &swis.Client{}, exec)
	assert.NoError(t, closeFn())

	exec, closeFn, err = NewExecutor(ctx, config.Executor{
		Type: ExecutorSQL,
		SQL:  config.SQL{Driver: sql.DriverSQLite, DSN: ":memory:"},
	}, logrus.New())
	require.NoError(t, err)
	assert.IsType(t, &sql.DB{}, exec)
	assert.NoError(t, closeFn())

	_, _, err = NewExecutor(ctx, config.Executor{Type: ExecutorSWIS}, logrus.New())
	assert.Error(t, err)

	_, _, err = NewExecutor(ctx, config.Executor{Type: "ldap"}, logrus.New())
	assert.EqualError(t, err, `unsupported executor type: "ldap"`)
}
