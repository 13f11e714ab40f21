package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"tolerance-journey/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	publishAttempts = 3
	publishTimeout  = 10 * time.Second
	appID           = "tolerance-journey"
)

// GameEventPublisher публикует события игровых сессий.
type GameEventPublisher interface {
	PublishGameEvent(ctx context.Context, event models.GameEvent) error
	Close() error
}

// rabbitMQPublisher публикует события в очередь RabbitMQ через default exchange.
type rabbitMQPublisher struct {
	mu        sync.Mutex
	channel   *amqp.Channel
	queueName string
	logger    *zap.Logger
}

// NewRabbitMQGameEventPublisher открывает канал и объявляет durable очередь.
func NewRabbitMQGameEventPublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (GameEventPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("game event publisher: failed to open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("game event publisher: failed to declare queue '%s': %w", queueName, err)
	}
	log := logger.Named("GameEventPublisher")
	log.Info("Queue declared", zap.String("queue", queueName))
	return &rabbitMQPublisher{channel: ch, queueName: queueName, logger: log}, nil
}

// PublishGameEvent сериализует событие в JSON и публикует его.
func (p *rabbitMQPublisher) PublishGameEvent(ctx context.Context, event models.GameEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal game event: %w", err)
	}
	if err := p.publishMessage(ctx, body); err != nil {
		p.logger.Error("Failed to publish game event",
			zap.String("type", string(event.Type)), zap.String("sessionID", event.SessionID), zap.Error(err))
		return fmt.Errorf("failed to publish %s event for session %s: %w", event.Type, event.SessionID, err)
	}
	p.logger.Debug("Game event published", zap.String("type", string(event.Type)), zap.String("sessionID", event.SessionID))
	return nil
}

func (p *rabbitMQPublisher) publishMessage(ctx context.Context, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil {
		return errors.New("rabbitmq channel is not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		err = p.channel.PublishWithContext(ctx,
			"",          // default exchange
			p.queueName, // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
				Timestamp:    time.Now(),
				AppId:        appID,
			},
		)
		if err == nil {
			return nil
		}
		p.logger.Warn("Publish attempt failed", zap.Int("attempt", attempt), zap.String("queue", p.queueName), zap.Error(err))
		select {
		case <-ctx.Done():
			return fmt.Errorf("publish to %s cancelled: %w", p.queueName, ctx.Err())
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return fmt.Errorf("publish to %s failed after %d attempts: %w", p.queueName, publishAttempts, err)
}

func (p *rabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil {
		return nil
	}
	err := p.channel.Close()
	p.channel = nil
	return err
}

// noopPublisher используется, когда RabbitMQ не настроен.
type noopPublisher struct {
	logger *zap.Logger
}

// NewNoopPublisher возвращает публикатор, который только пишет событие в лог.
func NewNoopPublisher(logger *zap.Logger) GameEventPublisher {
	return &noopPublisher{logger: logger.Named("GameEventPublisher")}
}

func (p *noopPublisher) PublishGameEvent(_ context.Context, event models.GameEvent) error {
	p.logger.Debug("Game event (not published)", zap.String("type", string(event.Type)), zap.String("sessionID", event.SessionID))
	return nil
}

func (p *noopPublisher) Close() error { return nil }
