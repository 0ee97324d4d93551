package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"healthcheck_srv/internal/catalog"
	"healthcheck_srv/internal/config"
	"healthcheck_srv/internal/models"
	"healthcheck_srv/internal/service"
	"healthcheck_srv/internal/storage"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

const xlsxMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Server represents the HTTP server
type Server struct {
	echo    *echo.Echo
	service service.HealthCheckService
	catalog *catalog.Catalog
	logger  *logrus.Logger
	address string
}

// NewServer creates a new HTTP server
func NewServer(cfg config.Config, svc service.HealthCheckService, cat *catalog.Catalog, logger *logrus.Logger) *Server {
	e := echo.New()
	e.Debug = cfg.Server.Debug
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:    e,
		service: svc,
		catalog: cat,
		logger:  logger,
		address: cfg.Server.Address,
	}

	server.setupRoutes()
	return server
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.WithField("address", s.address).Info("Starting HTTP server")
	if err := s.echo.Start(s.address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

// ServeHTTP lets the server be used directly as an http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// setupRoutes configures the server routes
func (s *Server) setupRoutes() {
	// Health check
	s.echo.GET("/health", s.healthCheck)

	// API routes
	api := s.echo.Group("/api/v1")
	{
		cat := api.Group("/catalog")
		{
			cat.GET("", s.getCatalog)
			cat.GET("/categories", s.listCategories)
			cat.GET("/categories/:name", s.getCategory)
		}

		runs := api.Group("/runs")
		{
			runs.POST("", s.startRun)
			runs.GET("", s.listRuns)
			runs.GET("/:id", s.getRun)
			runs.DELETE("/:id", s.deleteRun)
			runs.POST("/:id/cancel", s.cancelRun)
			runs.GET("/:id/download", s.downloadRun)
			runs.GET("/:id/link", s.linkRun)
		}
	}
}

func requestLogger(logger *logrus.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := logger.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency,
				"request_id": v.RequestID,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Error("Request failed")
				return nil
			}
			entry.Debug("Request handled")
			return nil
		},
	})
}

// healthCheck handles health check requests
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "healthcheck-service",
	})
}

// getCatalog returns the whole catalog keeping category order
func (s *Server) getCatalog(c echo.Context) error {
	data, err := s.catalog.MarshalJSON()
	if err != nil {
		s.logger.WithError(err).Error("Failed to encode catalog")
		return errorJSON(c, http.StatusInternalServerError, "Failed to encode catalog")
	}
	return c.JSONBlob(http.StatusOK, data)
}

type categorySummary struct {
	Name         string `json:"name"`
	Entries      int    `json:"entries"`
	Placeholders int    `json:"placeholders"`
}

// listCategories handles listing catalog categories
func (s *Server) listCategories(c echo.Context) error {
	categories := make([]categorySummary, 0, s.catalog.Len())
	for category := range s.catalog.All() {
		categories = append(categories, categorySummary{
			Name:         category.Name,
			Entries:      len(category.Reports),
			Placeholders: category.Placeholders(),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}

// getCategory handles getting the entries of one category
func (s *Server) getCategory(c echo.Context) error {
	category, ok := s.catalog.Category(c.Param("name"))
	if !ok {
		return errorJSON(c, http.StatusNotFound, "Category not found")
	}
	return c.JSON(http.StatusOK, category)
}

// startRun handles run creation
func (s *Server) startRun(c echo.Context) error {
	var req service.StartRunRequest
	if err := c.Bind(&req); err != nil {
		s.logger.WithError(err).Error("Failed to bind request")
		return errorJSON(c, http.StatusBadRequest, "Invalid request format")
	}

	run, err := s.service.StartRun(c.Request().Context(), req)
	if err != nil {
		return s.handleError(c, err, "Failed to start run")
	}

	return c.JSON(http.StatusCreated, run)
}

// listRuns handles listing runs
func (s *Server) listRuns(c echo.Context) error {
	var params service.ListRunParams
	var err error

	if params.Page, err = intParam(c, "page"); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid page")
	}
	if params.PageSize, err = intParam(c, "page_size"); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid page_size")
	}
	if status := c.QueryParam("status"); status != "" {
		st := models.RunStatus(status)
		params.Status = &st
	}
	params.Search = c.QueryParam("search")
	params.SortBy = c.QueryParam("sort_by")
	params.SortDesc, _ = strconv.ParseBool(c.QueryParam("sort_desc"))

	list, err := s.service.ListRuns(c.Request().Context(), params)
	if err != nil {
		return s.handleError(c, err, "Failed to list runs")
	}

	return c.JSON(http.StatusOK, list)
}

// getRun handles getting a single run
func (s *Server) getRun(c echo.Context) error {
	id, err := runID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid run ID")
	}

	run, err := s.service.GetRun(c.Request().Context(), id)
	if err != nil {
		return s.handleError(c, err, "Failed to get run")
	}

	return c.JSON(http.StatusOK, run)
}

// deleteRun handles run deletion
func (s *Server) deleteRun(c echo.Context) error {
	id, err := runID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid run ID")
	}

	if err := s.service.DeleteRun(c.Request().Context(), id); err != nil {
		return s.handleError(c, err, "Failed to delete run")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": "Run deleted successfully",
	})
}

// cancelRun handles run cancellation
func (s *Server) cancelRun(c echo.Context) error {
	id, err := runID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid run ID")
	}

	if err := s.service.CancelRun(c.Request().Context(), id); err != nil {
		return s.handleError(c, err, "Failed to cancel run")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": "Run canceled",
	})
}

// downloadRun streams the run workbook
func (s *Server) downloadRun(c echo.Context) error {
	id, err := runID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid run ID")
	}

	reader, filename, err := s.service.GetRunFile(c.Request().Context(), id)
	if err != nil {
		return s.handleError(c, err, "Failed to get run workbook")
	}
	defer reader.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Stream(http.StatusOK, xlsxMimeType, reader)
}

// linkRun returns a time-limited link to the run workbook
func (s *Server) linkRun(c echo.Context) error {
	id, err := runID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid run ID")
	}

	link, err := s.service.GetRunLink(c.Request().Context(), id)
	if err != nil {
		return s.handleError(c, err, "Failed to get run link")
	}

	return c.JSON(http.StatusOK, link)
}

// handleError maps service errors to HTTP status codes
func (s *Server) handleError(c echo.Context, err error, message string) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrRunNotFound), errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, catalog.ErrUnknownCategory), errors.Is(err, service.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrRunNotReady):
		status = http.StatusConflict
	case errors.Is(err, service.ErrQueueFull):
		status = http.StatusServiceUnavailable
	}

	logger := s.logger.WithFields(logrus.Fields{
		"path":   c.Path(),
		"status": status,
	}).WithError(err)
	if status == http.StatusInternalServerError {
		logger.Error(message)
		return errorJSON(c, status, message)
	}
	logger.Warn(message)

	return c.JSON(status, map[string]string{
		"error":   message,
		"details": err.Error(),
	})
}

func errorJSON(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{
		"error": message,
	})
}

func runID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

func intParam(c echo.Context, name string) (int, error) {
	value := c.QueryParam(name)
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}
