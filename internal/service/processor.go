package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"healthcheck_srv/internal/catalog"
	"healthcheck_srv/internal/models"
	"healthcheck_srv/internal/storage"
	"healthcheck_srv/internal/usecase"
	"healthcheck_srv/internal/usecase/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultRunTimeout = 30 * time.Minute
	queueSize         = 100
	workerCount       = 2
	saveTimeout       = time.Minute
)

// ErrQueueFull is returned when the task queue has no room left.
var ErrQueueFull = errors.New("run queue is full")

var (
	errServiceStopped   = errors.New("service stopped")
	errServiceRestarted = errors.New("service restarted")
)

// Task фоновая задача: один прогон каталога
type Task struct {
	RunID      uint
	Categories []string
}

// BackgroundProcessor интерфейс для фоновой обработки прогонов
type BackgroundProcessor interface {
	Submit(ctx context.Context, task Task) error
	Cancel(runID uint) bool
}

// RunFileStorage хранилище книг прогонов
type RunFileStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Stat(ctx context.Context, key string) (*storage.FileInfo, error)
	URL(ctx context.Context, key string) (string, time.Time, error)
	GenerateKey(run *models.Run, ext string) string
}

// RunFileStorageImpl реализация хранилища книг поверх storage.Storage
type RunFileStorageImpl struct {
	storage    storage.Storage
	linkExpiry time.Duration
}

// NewRunFileStorage создает новое хранилище книг; linkExpiry задает срок
// жизни ссылок на скачивание.
func NewRunFileStorage(s storage.Storage, linkExpiry time.Duration) RunFileStorage {
	if linkExpiry <= 0 {
		linkExpiry = time.Hour
	}
	return &RunFileStorageImpl{storage: s, linkExpiry: linkExpiry}
}

func (s *RunFileStorageImpl) Save(ctx context.Context, key string, data io.Reader) error {
	return s.storage.Save(ctx, key, data)
}

func (s *RunFileStorageImpl) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.storage.Get(ctx, key)
}

func (s *RunFileStorageImpl) Delete(ctx context.Context, key string) error {
	return s.storage.Delete(ctx, key)
}

func (s *RunFileStorageImpl) Stat(ctx context.Context, key string) (*storage.FileInfo, error) {
	return s.storage.Stat(ctx, key)
}

// URL возвращает ссылку на книгу и момент, когда она перестанет работать
func (s *RunFileStorageImpl) URL(ctx context.Context, key string) (string, time.Time, error) {
	expires := time.Now().UTC().Add(s.linkExpiry)
	url, err := s.storage.URL(ctx, key, s.linkExpiry)
	if err != nil {
		return "", time.Time{}, err
	}
	return url, expires, nil
}

// GenerateKey генерирует ключ вида runs/<id>/<uuid>.<ext>
func (s *RunFileStorageImpl) GenerateKey(run *models.Run, ext string) string {
	return storage.JoinKey("runs", fmt.Sprint(run.ID), uuid.NewString()+"."+ext)
}

// RunProcessor выполняет прогоны из очереди фиксированным числом воркеров
type RunProcessor struct {
	repository  RunRepository
	catalog     *catalog.Catalog
	runner      *usecase.Runner
	renderer    repository.ResultRenderer
	fileStorage RunFileStorage
	logger      *logrus.Logger
	timeout     time.Duration

	tasks         chan Task
	cancellations sync.Map // map[uint]context.CancelFunc
	wg            sync.WaitGroup
	stop          context.CancelFunc
	stopOnce      sync.Once
}

// NewRunProcessor создает процессор; воркеры стартуют в Start
func NewRunProcessor(
	repository RunRepository,
	cat *catalog.Catalog,
	runner *usecase.Runner,
	renderer repository.ResultRenderer,
	fileStorage RunFileStorage,
	logger *logrus.Logger,
) *RunProcessor {
	return &RunProcessor{
		repository:  repository,
		catalog:     cat,
		runner:      runner,
		renderer:    renderer,
		fileStorage: fileStorage,
		logger:      logger,
		timeout:     defaultRunTimeout,
		tasks:       make(chan Task, queueSize),
	}
}

// Submit ставит задачу в очередь, не блокируясь на полной очереди
func (p *RunProcessor) Submit(ctx context.Context, task Task) error {
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Cancel прерывает выполняющийся прогон. Возвращает false, если прогон не выполняется.
func (p *RunProcessor) Cancel(runID uint) bool {
	cancel, ok := p.cancellations.LoadAndDelete(runID)
	if !ok {
		return false
	}
	cancel.(context.CancelFunc)()
	return true
}

// Start запускает воркеры. Они работают до Stop или отмены ctx.
// Прогоны, не завершенные прошлым запуском, помечаются failed: их задачи
// жили только в памяти.
func (p *RunProcessor) Start(ctx context.Context) {
	if n, err := p.repository.FailUnfinished(ctx, errServiceRestarted.Error()); err != nil {
		p.logger.WithError(err).Error("Ошибка закрытия незавершенных прогонов")
	} else if n > 0 {
		p.logger.WithField("runs", n).Warn("Незавершенные прогоны помечены failed")
	}

	ctx, p.stop = context.WithCancel(ctx)
	for range workerCount {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task := <-p.tasks:
					if ctx.Err() != nil {
						p.abandon(task)
						continue
					}
					p.process(ctx, task)
				}
			}
		}()
	}
	p.logger.WithField("workers", workerCount).Info("Обработчик прогонов запущен")
}

// Stop отменяет текущие прогоны, ждет завершения воркеров и помечает failed
// задачи, оставшиеся в очереди. Повторный вызов ничего не делает.
func (p *RunProcessor) Stop() {
	p.stopOnce.Do(func() {
		if p.stop != nil {
			p.stop()
		}
		p.wg.Wait()

		for drained := false; !drained; {
			select {
			case task := <-p.tasks:
				p.abandon(task)
			default:
				drained = true
			}
		}
		p.logger.Info("Обработчик прогонов остановлен")
	})
}

// abandon закрывает прогон, который так и не начал выполняться
func (p *RunProcessor) abandon(task Task) {
	p.fail(context.Background(), task.RunID, errServiceStopped, p.logger.WithField("run_id", task.RunID))
}

func (p *RunProcessor) process(parent context.Context, task Task) {
	logger := p.logger.WithField("run_id", task.RunID)

	ctx, cancel := context.WithTimeout(parent, p.timeout)
	defer cancel()
	p.cancellations.Store(task.RunID, cancel)
	defer p.cancellations.Delete(task.RunID)

	started := map[string]interface{}{"started_at": time.Now().UTC()}
	if err := p.repository.Transition(ctx, task.RunID, models.StatusProcessing, started); err != nil {
		if parent.Err() != nil {
			p.abandon(task)
			return
		}
		// прогон могли отменить или удалить, пока он ждал в очереди
		logger.WithError(err).Warn("Прогон не может быть запущен")
		return
	}

	fileKey, counts, err := p.execute(ctx, task)
	if err != nil {
		p.fail(ctx, task.RunID, err, logger)
		return
	}

	completed := map[string]interface{}{
		"file_key":    fileKey,
		"executed":    counts[0],
		"skipped":     counts[1],
		"failed":      counts[2],
		"finished_at": time.Now().UTC(),
	}
	if err := p.repository.Transition(context.WithoutCancel(ctx), task.RunID, models.StatusCompleted, completed); err != nil {
		logger.WithError(err).Warn("Прогон завершен, но статус уже изменен; книга удаляется")
		if derr := p.fileStorage.Delete(context.WithoutCancel(ctx), fileKey); derr != nil {
			logger.WithError(derr).Error("Ошибка удаления книги")
		}
		return
	}

	logger.WithFields(logrus.Fields{
		"file_key": fileKey,
		"executed": counts[0],
		"skipped":  counts[1],
		"failed":   counts[2],
	}).Info("Прогон завершен")
}

// execute runs the catalog, renders the workbook and stores it. counts holds
// executed, skipped and failed tables.
func (p *RunProcessor) execute(ctx context.Context, task Task) (string, [3]int, error) {
	var counts [3]int

	cat, err := p.catalog.Filter(task.Categories...)
	if err != nil {
		return "", counts, err
	}

	result, err := p.runner.Run(ctx, cat)
	if err != nil {
		return "", counts, err
	}
	counts = [3]int{result.Executed(), result.Skipped(), result.Failed()}

	data, err := p.renderer.Render(result)
	if err != nil {
		return "", counts, fmt.Errorf("ошибка формирования книги: %w", err)
	}

	run, err := p.repository.GetByID(ctx, task.RunID)
	if err != nil {
		return "", counts, err
	}
	key := p.fileStorage.GenerateKey(run, p.renderer.FileExtension())

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := p.fileStorage.Save(saveCtx, key, bytes.NewReader(data)); err != nil {
		return "", counts, fmt.Errorf("ошибка сохранения книги: %w", err)
	}
	return key, counts, nil
}

func (p *RunProcessor) fail(ctx context.Context, runID uint, cause error, logger *logrus.Entry) {
	if errors.Is(cause, context.DeadlineExceeded) {
		cause = fmt.Errorf("run exceeded %s: %w", p.timeout, cause)
	}

	failed := map[string]interface{}{
		"error":       cause.Error(),
		"finished_at": time.Now().UTC(),
	}
	err := p.repository.Transition(context.WithoutCancel(ctx), runID, models.StatusFailed, failed)
	switch {
	case err == nil:
		logger.WithError(cause).Error("Ошибка выполнения прогона")
	case errors.Is(err, ErrInvalidTransition):
		// CancelRun уже записал статус canceled
		logger.Info("Прогон прерван")
	default:
		logger.WithError(err).Error("Ошибка обновления статуса на failed")
	}
}
