package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tolerance-journey/internal/game"
	"tolerance-journey/internal/models"
	"tolerance-journey/internal/scenario"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	storeTimeout   = 3 * time.Second
	publishTimeout = 5 * time.Second
)

var activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "tolerance_active_sessions",
	Help: "Number of game sessions held in memory.",
})

// EventPublisher публикует события завершения игры и ошибок генерации.
type EventPublisher interface {
	PublishGameEvent(ctx context.Context, event models.GameEvent) error
}

// TaskCleaner удаляет завершенные задачи загрузки.
type TaskCleaner interface {
	Cleanup(age time.Duration) int
}

// Config - зависимости и настройки реестра.
type Config struct {
	Fetcher         scenario.Fetcher
	Tasks           game.TaskRunner
	Store           Store
	Publisher       EventPublisher // может быть nil
	TTL             time.Duration
	CleanupInterval time.Duration
	Logger          *zap.Logger
}

type entry struct {
	ctrl       *game.Controller
	lastAccess time.Time
}

// Registry владеет контроллерами всех сессий.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	closed   bool

	fetcher         scenario.Fetcher
	tasks           game.TaskRunner
	store           Store
	publisher       EventPublisher
	ttl             time.Duration
	cleanupInterval time.Duration
	logger          *zap.Logger
	now             func() time.Time

	publishWG sync.WaitGroup
}

// NewRegistry создает реестр. Без Store используется MemoryStore.
func NewRegistry(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Registry{
		sessions:        make(map[string]*entry),
		fetcher:         cfg.Fetcher,
		tasks:           cfg.Tasks,
		store:           store,
		publisher:       cfg.Publisher,
		ttl:             ttl,
		cleanupInterval: interval,
		logger:          logger.Named("SessionRegistry"),
		now:             time.Now,
	}
}

func (r *Registry) controllerOptions(sessionID string) game.Options {
	return game.Options{
		SessionID: sessionID,
		Fetcher:   r.fetcher,
		Tasks:     r.tasks,
		Logger:    r.logger,
	}
}

// Create создает новую сессию в состоянии start.
func (r *Registry) Create(ctx context.Context) (models.Snapshot, error) {
	ctrl := game.New(r.controllerOptions(uuid.NewString()))
	snap := ctrl.Snapshot()
	if err := r.save(ctx, snap); err != nil {
		return models.Snapshot{}, err
	}
	if _, err := r.attach(ctrl); err != nil {
		ctrl.Close()
		return models.Snapshot{}, err
	}
	r.logger.Info("Session created", zap.String("sessionID", snap.SessionID))
	return snap, nil
}

// Get возвращает контроллер сессии, при необходимости восстанавливая его из Store.
func (r *Registry) Get(ctx context.Context, sessionID string) (*game.Controller, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, fmt.Errorf("%w: session %s", models.ErrNotFound, sessionID)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, models.ErrSessionClosed
	}
	if e, ok := r.sessions[sessionID]; ok {
		e.lastAccess = r.now()
		r.mu.Unlock()
		return e.ctrl, nil
	}
	r.mu.Unlock()

	snap, err := r.store.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: session %s", models.ErrNotFound, sessionID)
		}
		return nil, err
	}

	ctrl := game.Restore(r.controllerOptions(sessionID), snap)
	restored := ctrl.Snapshot()

	winner, err := r.attach(ctrl)
	if err != nil {
		ctrl.Close()
		return nil, err
	}
	if winner != ctrl {
		// параллельный Get успел восстановить сессию раньше
		ctrl.Close()
		return winner, nil
	}

	if restored.Version != snap.Version {
		if err := r.save(ctx, restored); err != nil {
			r.logger.Warn("Failed to persist restored session", zap.String("sessionID", sessionID), zap.Error(err))
		}
	}
	r.logger.Info("Session restored", zap.String("sessionID", sessionID), zap.String("state", string(restored.State)))
	return ctrl, nil
}

// attach регистрирует контроллер и подписывает на него запись в Store и публикацию событий.
// Если сессия уже зарегистрирована, возвращается существующий контроллер.
func (r *Registry) attach(ctrl *game.Controller) (*game.Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, models.ErrSessionClosed
	}
	if e, ok := r.sessions[ctrl.ID()]; ok {
		e.lastAccess = r.now()
		return e.ctrl, nil
	}
	ctrl.Subscribe(r.onTransition)
	r.sessions[ctrl.ID()] = &entry{ctrl: ctrl, lastAccess: r.now()}
	activeSessions.Set(float64(len(r.sessions)))
	return ctrl, nil
}

func (r *Registry) onTransition(snap models.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := r.save(ctx, snap); err != nil {
		r.logger.Error("Failed to persist session snapshot", zap.String("sessionID", snap.SessionID), zap.Error(err))
	}

	switch snap.State {
	case models.StateEnd:
		r.publish(models.GameEvent{Type: models.GameEventFinished, SessionID: snap.SessionID, Score: snap.Score, Level: snap.Level, OccurredAt: snap.UpdatedAt})
	case models.StateError:
		r.publish(models.GameEvent{Type: models.GameEventGenerationFailed, SessionID: snap.SessionID, Score: snap.Score, Level: snap.Level, ErrorKind: snap.ErrorKind, OccurredAt: snap.UpdatedAt})
	}
}

func (r *Registry) save(ctx context.Context, snap models.Snapshot) error {
	return r.store.Save(ctx, snap, r.ttl)
}

func (r *Registry) publish(event models.GameEvent) {
	if r.publisher == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.publishWG.Add(1)
	r.mu.Unlock()
	go func() {
		defer r.publishWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := r.publisher.PublishGameEvent(ctx, event); err != nil {
			r.logger.Error("Failed to publish game event", zap.String("type", string(event.Type)), zap.String("sessionID", event.SessionID), zap.Error(err))
		}
	}()
}

// Len возвращает число сессий в памяти.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ReapIdle закрывает сессии без обращений дольше TTL. Снимки в Store истекают сами.
func (r *Registry) ReapIdle() int {
	r.mu.Lock()
	now := r.now()
	var idle []*game.Controller
	for id, e := range r.sessions {
		if now.Sub(e.lastAccess) > r.ttl {
			idle = append(idle, e.ctrl)
			delete(r.sessions, id)
		}
	}
	activeSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	for _, ctrl := range idle {
		ctrl.Close()
		r.logger.Info("Idle session closed", zap.String("sessionID", ctrl.ID()))
	}
	return len(idle)
}

// Run периодически убирает простаивающие сессии, пока ctx не отменен.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reaped := r.ReapIdle()
			if cleaner, ok := r.tasks.(TaskCleaner); ok {
				cleaner.Cleanup(r.cleanupInterval)
			}
			if ms, ok := r.store.(*MemoryStore); ok {
				ms.Purge()
			}
			if reaped > 0 {
				r.logger.Debug("Session cleanup finished", zap.Int("reaped", reaped), zap.Int("active", r.Len()))
			}
		}
	}
}

// Close закрывает все сессии и дожидается отправки событий.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	sessions := r.sessions
	r.sessions = make(map[string]*entry)
	activeSessions.Set(0)
	r.mu.Unlock()

	for _, e := range sessions {
		e.ctrl.Close()
	}
	r.publishWG.Wait()
}
