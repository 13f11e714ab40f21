package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tolerance-journey/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const sessionKeyPrefix = "session:"

// RedisStore хранит снимки сессий в Redis с TTL.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger.Named("RedisSessionStore")}
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

func (s *RedisStore) Save(ctx context.Context, snap models.Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(snap.SessionID), data, ttl).Err(); err != nil {
		s.logger.Error("Failed to save session snapshot", zap.String("sessionID", snap.SessionID), zap.Error(err))
		return fmt.Errorf("failed to save session %s: %w", snap.SessionID, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (models.Snapshot, error) {
	data, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Snapshot{}, models.ErrNotFound
		}
		s.logger.Error("Failed to load session snapshot", zap.String("sessionID", sessionID), zap.Error(err))
		return models.Snapshot{}, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("Corrupted session snapshot", zap.String("sessionID", sessionID), zap.Error(err))
		return models.Snapshot{}, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	return snap, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}
