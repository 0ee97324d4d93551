package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"healthcheck_srv/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RunRepository интерфейс для работы с историей прогонов
type RunRepository interface {
	Create(ctx context.Context, run *models.Run) error
	GetByID(ctx context.Context, id uint) (*models.Run, error)
	List(ctx context.Context, params ListRunParams) ([]models.Run, int64, error)
	Delete(ctx context.Context, id uint) error

	// Transition переводит прогон в статус to, если это допустимо из текущего
	// статуса, и сохраняет updates в той же операции.
	Transition(ctx context.Context, id uint, to models.RunStatus, updates map[string]interface{}) error

	// FailUnfinished переводит все pending и processing прогоны в failed
	FailUnfinished(ctx context.Context, reason string) (int64, error)
}

var sortColumns = map[string]string{
	"id":         "id",
	"title":      "title",
	"status":     "status",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

// GormRunRepository реализация репозитория прогонов для GORM
type GormRunRepository struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewGormRunRepository создает новый GORM репозиторий прогонов
func NewGormRunRepository(db *gorm.DB, logger *logrus.Logger) RunRepository {
	return &GormRunRepository{db: db, logger: logger}
}

// Create создает новую запись прогона
func (r *GormRunRepository) Create(ctx context.Context, run *models.Run) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// GetByID получает прогон по ID
func (r *GormRunRepository) GetByID(ctx context.Context, id uint) (*models.Run, error) {
	var run models.Run
	if err := r.db.WithContext(ctx).First(&run, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
		}
		return nil, err
	}
	return &run, nil
}

// List получает список прогонов с фильтрацией и пагинацией
func (r *GormRunRepository) List(ctx context.Context, params ListRunParams) ([]models.Run, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Run{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	if params.Search != "" {
		// LOWER вместо ILIKE, чтобы запрос работал и на sqlite
		query = query.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(params.Search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at DESC, id DESC"
	if column, ok := sortColumns[params.SortBy]; ok {
		order = column
		if params.SortDesc {
			order += " DESC"
		}
	}

	var runs []models.Run
	err := query.Order(order).
		Offset((params.Page - 1) * params.PageSize).
		Limit(params.PageSize).
		Find(&runs).Error

	return runs, total, err
}

// Delete удаляет прогон (soft delete)
func (r *GormRunRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Run{}, id).Error
}

// Transition выполняет условный UPDATE, поэтому гонка отмены и завершения
// разрешается на стороне БД.
func (r *GormRunRepository) Transition(ctx context.Context, id uint, to models.RunStatus, updates map[string]interface{}) error {
	sources := models.SourcesOf(to)
	if len(sources) == 0 {
		return fmt.Errorf("%w: nothing transitions to %s", ErrInvalidTransition, to)
	}

	values := make(map[string]interface{}, len(updates)+2)
	for k, v := range updates {
		values[k] = v
	}
	values["status"] = to
	values["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).Model(&models.Run{}).
		Where("id = ? AND status IN ?", id, sources).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
}

// FailUnfinished закрывает прогоны, оставшиеся от прошлого запуска сервиса
func (r *GormRunRepository) FailUnfinished(ctx context.Context, reason string) (int64, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.Run{}).
		Where("status IN ?", []models.RunStatus{models.StatusPending, models.StatusProcessing}).
		Updates(map[string]interface{}{
			"status":      models.StatusFailed,
			"error":       reason,
			"finished_at": now,
			"updated_at":  now,
		})
	return res.RowsAffected, res.Error
}
