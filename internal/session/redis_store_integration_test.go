package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	deliveryhttp "tolerance-journey/internal/delivery/http"
	"tolerance-journey/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

type RedisStoreSuite struct {
	suite.Suite
	ctx         context.Context
	rdContainer *tcredis.RedisContainer
	client      *redis.Client
	store       *RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.ctx = context.Background()

	var err error
	s.rdContainer, err = tcredis.Run(s.ctx,
		"docker.io/redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("* Ready to accept connections").
				WithOccurrence(1).
				WithStartupTimeout(1*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to start redis container")

	host, err := s.rdContainer.Host(s.ctx)
	require.NoError(s.T(), err)
	port, err := s.rdContainer.MappedPort(s.ctx, "6379/tcp")
	require.NoError(s.T(), err)

	s.client = redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	require.NoError(s.T(), s.client.Ping(s.ctx).Err())
	s.store = NewRedisStore(s.client, zap.NewNop())
}

func (s *RedisStoreSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.rdContainer != nil {
		_ = s.rdContainer.Terminate(s.ctx)
	}
}

func (s *RedisStoreSuite) SetupTest() {
	require.NoError(s.T(), s.client.FlushAll(s.ctx).Err())
}

func (s *RedisStoreSuite) TestSaveLoadDelete() {
	snap := models.Snapshot{
		SessionID:   "11111111-1111-1111-1111-111111111111",
		State:       models.StateFeedback,
		Score:       2,
		Level:       3,
		TotalLevels: models.TotalLevels,
		Scenario: &models.Scenario{
			ScenarioText: "نص",
			Choices:      []models.Choice{{Text: "a", IsCorrect: true, Feedback: "f"}, {Text: "b", Feedback: "g"}},
		},
		Feedback:  &models.Feedback{Text: "f", IsCorrect: true},
		Version:   9,
		UpdatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	s.Require().NoError(s.store.Save(s.ctx, snap, time.Minute))

	ttl, err := s.client.TTL(s.ctx, "session:"+snap.SessionID).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))

	loaded, err := s.store.Load(s.ctx, snap.SessionID)
	s.Require().NoError(err)
	s.Equal(snap, loaded)

	s.Require().NoError(s.store.Delete(s.ctx, snap.SessionID))
	_, err = s.store.Load(s.ctx, snap.SessionID)
	s.ErrorIs(err, models.ErrNotFound)
}

func (s *RedisStoreSuite) TestLoadCorrupted() {
	s.Require().NoError(s.client.Set(s.ctx, "session:broken", "{not json", time.Minute).Err())
	_, err := s.store.Load(s.ctx, "broken")
	s.Error(err)
	s.NotErrorIs(err, models.ErrNotFound)
}

// Два экземпляра сервера с общим Redis делят один счетчик запросов.
func (s *RedisStoreSuite) TestRateLimiterSharedAcrossInstances() {
	gin.SetMode(gin.TestMode)
	newRouter := func() *gin.Engine {
		r := gin.New()
		limiter := deliveryhttp.NewRateLimiter(s.client, 2, zap.NewNop())
		r.POST("/start", limiter, func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}
	first, second := newRouter(), newRouter()

	call := func(r *gin.Engine) int {
		req := httptest.NewRequest(http.MethodPost, "/start", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	s.Equal(http.StatusOK, call(first))
	s.Equal(http.StatusOK, call(second))
	s.Equal(http.StatusTooManyRequests, call(first))
	s.Equal(http.StatusTooManyRequests, call(second))

	keys, err := s.client.Keys(s.ctx, "*").Result()
	s.Require().NoError(err)
	s.NotEmpty(keys, "limiter counters are stored in Redis")
}
