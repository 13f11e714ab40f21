package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"tolerance-journey/internal/models"
	"tolerance-journey/internal/scenario"
	"tolerance-journey/pkg/taskmanager"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	// HeroScoreThreshold - счет, начиная с которого (строго больше) игрок получает звание героя.
	HeroScoreThreshold = 3

	HeroVerdict          = "أنت بطل في التسامح! استمر في نشر اللطف."
	EncouragementVerdict = "لقد تعلمت الكثير! كل خطوة هي بداية جديدة."
)

var (
	gameTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tolerance_game_transitions_total",
			Help: "Total number of game state transitions by target state.",
		},
		[]string{"state"},
	)
	staleFetchResults = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tolerance_stale_fetch_results_total",
			Help: "Scenario fetch results discarded because a newer fetch superseded them.",
		},
	)
)

// Observer получает снимок после каждого перехода. Снимки приходят в порядке переходов.
// Observer не должен вызывать методы переходов того же контроллера.
type Observer func(models.Snapshot)

// TaskRunner запускает асинхронные загрузки сценариев.
type TaskRunner interface {
	Submit(ctx context.Context, fn taskmanager.TaskFunc, onDone taskmanager.TaskCallback) (uuid.UUID, error)
	Cancel(taskID uuid.UUID) error
}

// Options - зависимости контроллера.
type Options struct {
	SessionID string
	Fetcher   scenario.Fetcher
	Tasks     TaskRunner
	Logger    *zap.Logger
	Now       func() time.Time
}

// Controller - конечный автомат одной игровой сессии.
type Controller struct {
	// notifyMu упорядочивает доставку снимков подписчикам, mu защищает состояние.
	notifyMu sync.Mutex
	mu       sync.Mutex

	id      string
	fetcher scenario.Fetcher
	tasks   TaskRunner
	logger  *zap.Logger
	now     func() time.Time

	state     models.GameState
	score     int
	level     int
	scenario  *models.Scenario
	feedback  *models.Feedback
	errMsg    string
	errKind   string
	version   uint64
	updatedAt time.Time

	// fetchToken - ID последней запущенной загрузки. Результаты других загрузок отбрасываются.
	fetchToken uuid.UUID
	closed     bool

	observers      map[int]Observer
	nextObserverID int
}

// New создает контроллер в состоянии start.
func New(opts Options) *Controller {
	c := newController(opts)
	c.state = models.StateStart
	c.level = 1
	c.updatedAt = c.now()
	return c
}

// Restore восстанавливает контроллер из сохраненного снимка.
// Снимок в состоянии loading становится ошибкой: его загрузка не пережила перезапуск.
func Restore(opts Options, snap models.Snapshot) *Controller {
	c := newController(opts)
	c.state = snap.State
	c.score = snap.Score
	c.level = snap.Level
	c.scenario = snap.Scenario.Clone()
	if snap.Feedback != nil {
		fb := *snap.Feedback
		c.feedback = &fb
	}
	c.errMsg = snap.Error
	c.errKind = snap.ErrorKind
	c.version = snap.Version
	c.updatedAt = snap.UpdatedAt

	if !c.state.IsValid() {
		c.state = models.StateStart
	}
	if c.level < 1 {
		c.level = 1
	}
	needsScenario := c.state == models.StatePlaying || c.state == models.StateFeedback
	if c.state == models.StateLoading || (needsScenario && c.scenario == nil) {
		c.failLocked(scenario.NewGenerationError(scenario.KindInterrupted, errors.New("session restored while scenario was loading")))
	}
	return c
}

func newController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	id := opts.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	return &Controller{
		id:        id,
		fetcher:   opts.Fetcher,
		tasks:     opts.Tasks,
		logger:    logger.Named("GameController").With(zap.String("sessionID", id)),
		now:       now,
		observers: make(map[int]Observer),
	}
}

// ID возвращает идентификатор сессии.
func (c *Controller) ID() string { return c.id }

// StartGame начинает новую игру из любого состояния: счет 0, уровень 1, запрос сценария.
// Незавершенная загрузка предыдущей игры отменяется, ее результат будет отброшен.
func (c *Controller) StartGame(ctx context.Context) (models.Snapshot, error) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return models.Snapshot{}, models.ErrSessionClosed
	}
	c.score = 0
	c.level = 1
	c.scenario = nil
	c.feedback = nil
	c.clearErrorLocked()
	c.requestScenarioLocked(ctx)
	snap, observers := c.snapshotLocked(), c.observersLocked()
	c.mu.Unlock()

	c.logger.Info("Game started", zap.String("state", string(snap.State)))
	notify(observers, snap)
	return snap, nil
}

// SelectChoice фиксирует ответ игрока. Допустим только в состоянии playing.
func (c *Controller) SelectChoice(index int) (models.Snapshot, error) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return models.Snapshot{}, models.ErrSessionClosed
	}
	if c.state != models.StatePlaying || c.scenario == nil {
		state := c.state
		c.mu.Unlock()
		c.logger.Debug("Choice ignored in current state", zap.String("state", string(state)))
		return models.Snapshot{}, models.ErrInvalidTransition
	}
	if index < 0 || index >= len(c.scenario.Choices) {
		c.mu.Unlock()
		return models.Snapshot{}, models.ErrInvalidChoice
	}

	choice := c.scenario.Choices[index]
	if choice.IsCorrect {
		c.score++
	}
	c.feedback = &models.Feedback{Text: choice.Feedback, IsCorrect: choice.IsCorrect}
	c.transitionLocked(models.StateFeedback)
	snap, observers := c.snapshotLocked(), c.observersLocked()
	c.mu.Unlock()

	c.logger.Info("Choice selected", zap.Int("level", snap.Level), zap.Bool("correct", choice.IsCorrect), zap.Int("score", snap.Score))
	notify(observers, snap)
	return snap, nil
}

// Advance переходит к следующему раунду или к финалу. Допустим только в состоянии feedback.
func (c *Controller) Advance(ctx context.Context) (models.Snapshot, error) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return models.Snapshot{}, models.ErrSessionClosed
	}
	if c.state != models.StateFeedback {
		c.mu.Unlock()
		return models.Snapshot{}, models.ErrInvalidTransition
	}

	c.feedback = nil
	if c.level >= models.TotalLevels {
		c.scenario = nil
		c.transitionLocked(models.StateEnd)
	} else {
		c.level++
		c.scenario = nil
		c.requestScenarioLocked(ctx)
	}
	snap, observers := c.snapshotLocked(), c.observersLocked()
	c.mu.Unlock()

	if snap.State == models.StateEnd {
		c.logger.Info("Game finished", zap.Int("score", snap.Score))
	}
	notify(observers, snap)
	return snap, nil
}

// Snapshot возвращает текущее состояние.
func (c *Controller) Snapshot() models.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe добавляет подписчика. Возвращает функцию отписки.
func (c *Controller) Subscribe(o Observer) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextObserverID
	c.nextObserverID++
	c.observers[id] = o
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

// Close отменяет текущую загрузку. Последующие операции возвращают ErrSessionClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancelFetchLocked()
	c.observers = make(map[int]Observer)
}

// requestScenarioLocked запускает загрузку и переводит автомат в loading.
func (c *Controller) requestScenarioLocked(ctx context.Context) {
	c.cancelFetchLocked()
	c.transitionLocked(models.StateLoading)

	fetchCtx := scenario.WithSessionID(ctx, c.id)
	token, err := c.tasks.Submit(fetchCtx, func(taskCtx context.Context) (interface{}, error) {
		return c.fetcher.FetchScenario(taskCtx)
	}, c.onFetchDone)
	if err != nil {
		c.logger.Warn("Scenario fetch rejected", zap.Error(err))
		c.failLocked(scenario.NewGenerationError(scenario.KindBusy, err))
		return
	}
	c.fetchToken = token
}

func (c *Controller) cancelFetchLocked() {
	if c.fetchToken == uuid.Nil {
		return
	}
	if err := c.tasks.Cancel(c.fetchToken); err != nil && !errors.Is(err, taskmanager.ErrTaskNotFound) {
		c.logger.Warn("Failed to cancel superseded fetch", zap.String("taskID", c.fetchToken.String()), zap.Error(err))
	}
	c.fetchToken = uuid.Nil
}

// onFetchDone применяет результат загрузки, только если он от последней запущенной загрузки.
func (c *Controller) onFetchDone(task taskmanager.Task) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.closed || task.ID != c.fetchToken || c.state != models.StateLoading {
		c.mu.Unlock()
		staleFetchResults.Inc()
		c.logger.Debug("Discarding stale scenario result", zap.String("taskID", task.ID.String()), zap.String("status", string(task.Status)))
		return
	}
	c.fetchToken = uuid.Nil

	switch task.Status {
	case taskmanager.TaskStatusCompleted:
		s, _ := task.Result.(*models.Scenario)
		if err := scenario.ValidateScenario(s); err != nil {
			c.failLocked(err)
			break
		}
		c.scenario = s.Clone()
		c.transitionLocked(models.StatePlaying)
	case taskmanager.TaskStatusCancelled:
		c.failLocked(scenario.NewGenerationError(scenario.KindInterrupted, task.Err))
	default:
		c.failLocked(task.Err)
	}
	snap, observers := c.snapshotLocked(), c.observersLocked()
	c.mu.Unlock()

	if snap.State == models.StateError {
		c.logger.Warn("Scenario unavailable", zap.String("errorKind", snap.ErrorKind), zap.Error(task.Err))
	}
	notify(observers, snap)
}

// failLocked переводит автомат в error. Счет и уровень сбрасывает следующий StartGame.
func (c *Controller) failLocked(err error) {
	c.scenario = nil
	c.feedback = nil
	c.errKind = string(scenario.KindOf(err))
	c.errMsg = scenario.UserMessage(err)
	c.transitionLocked(models.StateError)
}

func (c *Controller) clearErrorLocked() {
	c.errMsg = ""
	c.errKind = ""
}

func (c *Controller) transitionLocked(state models.GameState) {
	c.state = state
	c.version++
	c.updatedAt = c.now()
	gameTransitions.With(prometheus.Labels{"state": string(state)}).Inc()
}

func (c *Controller) snapshotLocked() models.Snapshot {
	snap := models.Snapshot{
		SessionID:   c.id,
		State:       c.state,
		Score:       c.score,
		Level:       c.level,
		TotalLevels: models.TotalLevels,
		Scenario:    c.scenario.Clone(),
		Error:       c.errMsg,
		ErrorKind:   c.errKind,
		Version:     c.version,
		UpdatedAt:   c.updatedAt,
	}
	if c.feedback != nil {
		fb := *c.feedback
		snap.Feedback = &fb
	}
	if c.state == models.StateEnd {
		snap.Verdict = Verdict(c.score)
	}
	return snap
}

func (c *Controller) observersLocked() []Observer {
	if len(c.observers) == 0 {
		return nil
	}
	list := make([]Observer, 0, len(c.observers))
	for i := 0; i < c.nextObserverID; i++ {
		if o, ok := c.observers[i]; ok {
			list = append(list, o)
		}
	}
	return list
}

func notify(observers []Observer, snap models.Snapshot) {
	for _, o := range observers {
		o(snap)
	}
}

// Verdict возвращает итоговое сообщение для финального экрана.
func Verdict(score int) string {
	if score > HeroScoreThreshold {
		return HeroVerdict
	}
	return EncouragementVerdict
}
