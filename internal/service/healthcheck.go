package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"healthcheck_srv/internal/catalog"
	"healthcheck_srv/internal/models"
	"healthcheck_srv/internal/usecase/repository"

	"github.com/sirupsen/logrus"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxTitleLength  = 255
)

var (
	ErrRunNotFound       = errors.New("run not found")
	ErrRunNotReady       = errors.New("run workbook is not ready")
	ErrInvalidTransition = errors.New("invalid run status transition")
	ErrInvalidRequest    = errors.New("invalid run request")
)

// HealthCheckService интерфейс для запуска проверок и работы с их историей
type HealthCheckService interface {
	StartRun(ctx context.Context, req StartRunRequest) (*models.Run, error)
	GetRun(ctx context.Context, id uint) (*models.Run, error)
	ListRuns(ctx context.Context, params ListRunParams) (*RunList, error)
	DeleteRun(ctx context.Context, id uint) error
	CancelRun(ctx context.Context, id uint) error
	GetRunFile(ctx context.Context, id uint) (io.ReadCloser, string, error)
	GetRunLink(ctx context.Context, id uint) (*RunLink, error)
}

// RunLink ссылка на скачивание книги
type RunLink struct {
	URL       string    `json:"url"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StartRunRequest параметры нового прогона. Пустой список категорий
// означает весь каталог.
type StartRunRequest struct {
	Title      string   `json:"title"`
	Categories []string `json:"categories"`
	CreatedBy  string   `json:"created_by"`
}

// ListRunParams параметры для получения списка прогонов
type ListRunParams struct {
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Status   *models.RunStatus `json:"status,omitempty"`
	Search   string            `json:"search,omitempty"`
	SortBy   string            `json:"sort_by,omitempty"`
	SortDesc bool              `json:"sort_desc,omitempty"`
}

// RunList результат получения списка прогонов с пагинацией
type RunList struct {
	Runs       []models.Run `json:"runs"`
	Total      int64        `json:"total"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
	TotalPages int          `json:"total_pages"`
}

// HealthCheckServiceImpl реализация сервиса проверок
type HealthCheckServiceImpl struct {
	repository  RunRepository
	catalog     *catalog.Catalog
	renderer    repository.ResultRenderer
	fileStorage RunFileStorage
	processor   BackgroundProcessor
	logger      *logrus.Logger
}

// NewHealthCheckService создает новый сервис проверок
func NewHealthCheckService(
	repository RunRepository,
	cat *catalog.Catalog,
	renderer repository.ResultRenderer,
	fileStorage RunFileStorage,
	processor BackgroundProcessor,
	logger *logrus.Logger,
) HealthCheckService {
	return &HealthCheckServiceImpl{
		repository:  repository,
		catalog:     cat,
		renderer:    renderer,
		fileStorage: fileStorage,
		processor:   processor,
		logger:      logger,
	}
}

// StartRun сохраняет прогон и ставит его в очередь
func (s *HealthCheckServiceImpl) StartRun(ctx context.Context, req StartRunRequest) (*models.Run, error) {
	logger := s.logger.WithFields(logrus.Fields{
		"title":      req.Title,
		"categories": req.Categories,
		"created_by": req.CreatedBy,
	})

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		req.Title = "Health check " + time.Now().UTC().Format("2006-01-02 15:04")
	}
	if len(req.Title) > maxTitleLength {
		return nil, fmt.Errorf("%w: title is longer than %d bytes", ErrInvalidRequest, maxTitleLength)
	}
	if req.CreatedBy == "" {
		req.CreatedBy = "anonymous"
	}

	// неизвестные категории отклоняются до записи в БД
	if _, err := s.catalog.Filter(req.Categories...); err != nil {
		logger.WithError(err).Warn("Запрошена неизвестная категория")
		return nil, err
	}

	run := &models.Run{
		Title:      req.Title,
		Status:     models.StatusPending,
		Categories: models.Categories(req.Categories),
		CreatedBy:  req.CreatedBy,
	}
	if err := s.repository.Create(ctx, run); err != nil {
		logger.WithError(err).Error("Ошибка сохранения прогона в БД")
		return nil, fmt.Errorf("ошибка создания прогона: %w", err)
	}

	logger = logger.WithField("run_id", run.ID)
	logger.Info("Прогон создан, постановка в очередь")

	if err := s.processor.Submit(ctx, Task{RunID: run.ID, Categories: req.Categories}); err != nil {
		logger.WithError(err).Error("Ошибка постановки прогона в очередь")
		failed := map[string]interface{}{"error": err.Error()}
		if terr := s.repository.Transition(ctx, run.ID, models.StatusFailed, failed); terr != nil {
			logger.WithError(terr).Error("Ошибка обновления статуса на failed")
		}
		return nil, fmt.Errorf("ошибка запуска прогона: %w", err)
	}

	return run, nil
}

// GetRun получает прогон по ID
func (s *HealthCheckServiceImpl) GetRun(ctx context.Context, id uint) (*models.Run, error) {
	run, err := s.repository.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrRunNotFound) {
			s.logger.WithError(err).WithField("run_id", id).Error("Ошибка получения прогона")
		}
		return nil, fmt.Errorf("ошибка получения прогона: %w", err)
	}
	return run, nil
}

// ListRuns получает список прогонов с пагинацией
func (s *HealthCheckServiceImpl) ListRuns(ctx context.Context, params ListRunParams) (*RunList, error) {
	if params.Page <= 0 {
		params.Page = 1
	}
	if params.PageSize <= 0 {
		params.PageSize = defaultPageSize
	}
	if params.PageSize > maxPageSize {
		params.PageSize = maxPageSize
	}
	if params.Status != nil && !params.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, *params.Status)
	}

	runs, total, err := s.repository.List(ctx, params)
	if err != nil {
		s.logger.WithError(err).Error("Ошибка получения списка прогонов")
		return nil, fmt.Errorf("ошибка получения списка прогонов: %w", err)
	}

	return &RunList{
		Runs:       runs,
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: int((total + int64(params.PageSize) - 1) / int64(params.PageSize)),
	}, nil
}

// DeleteRun отменяет прогон, если он идет, и удаляет его вместе с книгой
func (s *HealthCheckServiceImpl) DeleteRun(ctx context.Context, id uint) error {
	logger := s.logger.WithField("run_id", id)

	run, err := s.repository.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("ошибка получения прогона: %w", err)
	}

	s.processor.Cancel(id)

	if run.HasFile() {
		if err := s.fileStorage.Delete(ctx, run.FileKey); err != nil {
			// запись удаляем даже если файл удалить не удалось
			logger.WithError(err).WithField("file_key", run.FileKey).Error("Ошибка удаления книги")
		}
	}

	if err := s.repository.Delete(ctx, id); err != nil {
		logger.WithError(err).Error("Ошибка удаления прогона из БД")
		return fmt.Errorf("ошибка удаления прогона: %w", err)
	}

	logger.WithField("title", run.Title).Info("Прогон удален")
	return nil
}

// CancelRun отменяет ожидающий или выполняющийся прогон
func (s *HealthCheckServiceImpl) CancelRun(ctx context.Context, id uint) error {
	logger := s.logger.WithField("run_id", id)

	finished := map[string]interface{}{"finished_at": time.Now().UTC()}
	if err := s.repository.Transition(ctx, id, models.StatusCanceled, finished); err != nil {
		return fmt.Errorf("ошибка отмены прогона: %w", err)
	}

	s.processor.Cancel(id)
	logger.Info("Прогон отменен")
	return nil
}

// GetRunFile возвращает книгу завершенного прогона и имя файла для скачивания
func (s *HealthCheckServiceImpl) GetRunFile(ctx context.Context, id uint) (io.ReadCloser, string, error) {
	run, err := s.repository.GetByID(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("ошибка получения прогона: %w", err)
	}

	if !run.IsCompleted() || !run.HasFile() {
		return nil, "", fmt.Errorf("%w: run %d is %s", ErrRunNotReady, id, run.Status)
	}

	reader, err := s.fileStorage.Get(ctx, run.FileKey)
	if err != nil {
		s.logger.WithError(err).WithField("file_key", run.FileKey).Error("Ошибка получения книги из хранилища")
		return nil, "", fmt.Errorf("ошибка получения файла: %w", err)
	}

	return reader, downloadName(run, s.renderer.FileExtension()), nil
}

// GetRunLink возвращает ссылку на книгу; для S3 это pre-signed URL
func (s *HealthCheckServiceImpl) GetRunLink(ctx context.Context, id uint) (*RunLink, error) {
	run, err := s.repository.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения прогона: %w", err)
	}
	if !run.IsCompleted() || !run.HasFile() {
		return nil, fmt.Errorf("%w: run %d is %s", ErrRunNotReady, id, run.Status)
	}

	info, err := s.fileStorage.Stat(ctx, run.FileKey)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	url, expires, err := s.fileStorage.URL(ctx, run.FileKey)
	if err != nil {
		s.logger.WithError(err).WithField("file_key", run.FileKey).Error("Ошибка формирования ссылки")
		return nil, fmt.Errorf("ошибка формирования ссылки: %w", err)
	}

	return &RunLink{
		URL:       url,
		Filename:  downloadName(run, s.renderer.FileExtension()),
		Size:      info.Size,
		ExpiresAt: expires,
	}, nil
}

var filenameReplacer = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_",
)

func downloadName(run *models.Run, ext string) string {
	name := strings.TrimSpace(filenameReplacer.Replace(run.Title))
	if name == "" {
		name = fmt.Sprintf("healthcheck_%d", run.ID)
	}
	return name + "." + ext
}
