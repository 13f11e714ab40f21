package taskmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrTooManyTasks = errors.New("too many active tasks")
	ErrTaskNotFound = errors.New("task not found")
	ErrShuttingDown = errors.New("task manager is shutting down")
)

// TaskStatus представляет статус задачи
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

func (s TaskStatus) IsFinal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// Task - снимок асинхронной задачи.
type Task struct {
	ID        uuid.UUID
	Status    TaskStatus
	Result    interface{}
	Err       error
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TaskFunc - функция, выполняемая в задаче.
type TaskFunc func(ctx context.Context) (interface{}, error)

// TaskCallback вызывается ровно один раз, когда задача завершилась.
type TaskCallback func(task Task)

type taskEntry struct {
	task   Task
	cancel context.CancelFunc
}

// Config содержит конфигурацию для TaskManager
type Config struct {
	MaxTasks int
	Logger   *zap.Logger
}

// TaskManager запускает задачи в отдельных горутинах с ограничением на число активных.
type TaskManager struct {
	mu        sync.RWMutex
	tasks     map[uuid.UUID]*taskEntry
	maxTasks  int
	running   int // горутины задач, еще не вернувшие управление, включая отмененные
	wg        sync.WaitGroup
	closing   chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
}

// New создает новый экземпляр TaskManager
func New(cfg Config) *TaskManager {
	maxTasks := cfg.MaxTasks
	if maxTasks <= 0 {
		maxTasks = 10
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskManager{
		tasks:    make(map[uuid.UUID]*taskEntry),
		maxTasks: maxTasks,
		closing:  make(chan struct{}),
		logger:   logger.Named("TaskManager"),
	}
}

// Submit запускает задачу. Контекст задачи не наследует отмену ctx, но сохраняет его значения.
func (tm *TaskManager) Submit(ctx context.Context, fn TaskFunc, onDone TaskCallback) (uuid.UUID, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	select {
	case <-tm.closing:
		return uuid.Nil, ErrShuttingDown
	default:
	}

	if tm.running >= tm.maxTasks {
		tm.logger.Warn("Task rejected, limit reached", zap.Int("running", tm.running), zap.Int("max", tm.maxTasks))
		return uuid.Nil, ErrTooManyTasks
	}

	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	now := time.Now()
	entry := &taskEntry{
		task: Task{
			ID:        uuid.New(),
			Status:    TaskStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		},
		cancel: cancel,
	}
	tm.tasks[entry.task.ID] = entry
	tm.running++

	tm.wg.Add(1)
	go func() {
		defer tm.wg.Done()
		defer tm.release()
		defer cancel()
		tm.runTask(taskCtx, entry, fn, onDone)
	}()

	return entry.task.ID, nil
}

func (tm *TaskManager) runTask(ctx context.Context, entry *taskEntry, fn TaskFunc, onDone TaskCallback) {
	log := tm.logger.With(zap.String("taskID", entry.task.ID.String()))
	tm.setStatus(entry, TaskStatusRunning, nil, nil)

	result, err := fn(ctx)

	var final Task
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		log.Debug("Task cancelled")
		final = tm.setStatus(entry, TaskStatusCancelled, nil, context.Canceled)
	case err != nil:
		log.Debug("Task failed", zap.Error(err))
		final = tm.setStatus(entry, TaskStatusFailed, nil, err)
	default:
		log.Debug("Task completed")
		final = tm.setStatus(entry, TaskStatusCompleted, result, nil)
	}

	if onDone != nil {
		onDone(final)
	}
}

func (tm *TaskManager) setStatus(entry *taskEntry, status TaskStatus, result interface{}, err error) Task {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	// отмененная задача остается отмененной
	if entry.task.Status == TaskStatusCancelled {
		return entry.task
	}
	entry.task.Status = status
	entry.task.Result = result
	entry.task.Err = err
	entry.task.UpdatedAt = time.Now()
	return entry.task
}

func (tm *TaskManager) release() {
	tm.mu.Lock()
	tm.running--
	tm.mu.Unlock()
}

// ActiveCount возвращает число выполняющихся задач.
// Отмененная задача считается, пока ее функция не вернула управление.
func (tm *TaskManager) ActiveCount() int {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.running
}

// Get возвращает снимок задачи по ID.
func (tm *TaskManager) Get(taskID uuid.UUID) (Task, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	entry, ok := tm.tasks[taskID]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return entry.task, nil
}

// Cancel отменяет задачу. Для завершенной задачи ничего не делает.
func (tm *TaskManager) Cancel(taskID uuid.UUID) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	entry, ok := tm.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if entry.task.Status.IsFinal() {
		return nil
	}
	entry.cancel()
	entry.task.Status = TaskStatusCancelled
	entry.task.Err = context.Canceled
	entry.task.UpdatedAt = time.Now()
	return nil
}

// Cleanup удаляет завершенные задачи старше age.
func (tm *TaskManager) Cleanup(age time.Duration) int {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	removed := 0
	now := time.Now()
	for id, e := range tm.tasks {
		if e.task.Status.IsFinal() && now.Sub(e.task.UpdatedAt) > age {
			delete(tm.tasks, id)
			removed++
		}
	}
	return removed
}

// Shutdown перестает принимать задачи и ждет завершения активных.
// По истечении ctx оставшиеся задачи отменяются.
func (tm *TaskManager) Shutdown(ctx context.Context) error {
	tm.closeOnce.Do(func() { close(tm.closing) })

	done := make(chan struct{})
	go func() {
		tm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		tm.mu.Lock()
		for _, e := range tm.tasks {
			if !e.task.Status.IsFinal() {
				e.cancel()
			}
		}
		tm.mu.Unlock()
		return fmt.Errorf("timeout waiting for tasks to finish: %w", ctx.Err())
	}
}
