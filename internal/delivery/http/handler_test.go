package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"tolerance-journey/internal/delivery/websocket"
	"tolerance-journey/internal/game"
	"tolerance-journey/internal/mocks"
	"tolerance-journey/internal/models"
	"tolerance-journey/internal/scenario"
	"tolerance-journey/internal/session"
	"tolerance-journey/pkg/taskmanager"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fetcherFunc func(ctx context.Context) (*models.Scenario, error)

func (f fetcherFunc) FetchScenario(ctx context.Context) (*models.Scenario, error) { return f(ctx) }

func correctFirst() *models.Scenario {
	return &models.Scenario{
		ScenarioText: "سلحفاة بطيئة تريد اللعب",
		CharacterA:   models.Character{Name: "الأرنب", Emoji: "🐰"},
		CharacterB:   models.Character{Name: "السلحفاة", Emoji: "🐢"},
		Choices: []models.Choice{
			{Text: "ننتظرها", IsCorrect: true, Feedback: "أحسنت"},
			{Text: "نتركها", Feedback: "فكّر مرة أخرى"},
		},
	}
}

type testServer struct {
	router   *gin.Engine
	registry *session.Registry
}

func newTestServer(t *testing.T, fetcher scenario.Fetcher, limiter gin.HandlerFunc, lister GenerationLister, internalAuth gin.HandlerFunc) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tm := taskmanager.New(taskmanager.Config{MaxTasks: 10, Logger: zap.NewNop()})
	registry := session.NewRegistry(session.Config{
		Fetcher: fetcher,
		Tasks:   tm,
		TTL:     time.Hour,
		Logger:  zap.NewNop(),
	})
	hub := websocket.NewHub([]string{"*"}, zap.NewNop())
	t.Cleanup(func() {
		hub.Close()
		registry.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = tm.Shutdown(ctx)
	})

	router := gin.New()
	NewHandler(registry, lister, hub, zap.NewNop()).RegisterRoutes(router, limiter, internalAuth)
	return &testServer{router: router, registry: registry}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) models.SnapshotView {
	t.Helper()
	var v models.SnapshotView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *testServer) createSession(t *testing.T) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	return decodeView(t, w).SessionID
}

func (s *testServer) waitState(t *testing.T, id string, state models.GameState) models.SnapshotView {
	t.Helper()
	var v models.SnapshotView
	require.Eventually(t, func() bool {
		w := s.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)
		if w.Code != http.StatusOK {
			return false
		}
		v = decodeView(t, w)
		return v.State == state
	}, 2*time.Second, 5*time.Millisecond)
	return v
}

func TestMeta(t *testing.T) {
	s := newTestServer(t, fetcherFunc(func(context.Context) (*models.Scenario, error) { return correctFirst(), nil }), nil, nil, nil)

	w := s.do(t, http.MethodGet, "/api/v1/meta", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"totalLevels":5}`, w.Body.String())
}

func TestCreateAndGetSession(t *testing.T) {
	s := newTestServer(t, fetcherFunc(func(context.Context) (*models.Scenario, error) { return correctFirst(), nil }), nil, nil, nil)

	id := s.createSession(t)
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	w := s.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	v := decodeView(t, w)
	assert.Equal(t, models.StateStart, v.State)
	assert.Equal(t, 0, v.Score)
	assert.Equal(t, 1, v.Level)
	assert.Equal(t, models.TotalLevels, v.TotalLevels)
}

func TestUnknownSession(t *testing.T) {
	s := newTestServer(t, fetcherFunc(func(context.Context) (*models.Scenario, error) { return correctFirst(), nil }), nil, nil, nil)

	for _, id := range []string{"not-a-uuid", uuid.NewString()} {
		w := s.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, id)
		w = s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/start", nil)
		assert.Equal(t, http.StatusNotFound, w.Code, id)
	}
}

func TestSelectChoice_UnknownSessionBeforeBody(t *testing.T) {
	s := newTestServer(t, fetcherFunc(func(context.Context) (*models.Scenario, error) { return correctFirst(), nil }), nil, nil, nil)

	bodies := []string{"", "{not json", `{"choiceIndex":-1}`, `{"choiceIndex":0}`}
	for _, id := range []string{"not-a-uuid", uuid.NewString()} {
		for _, body := range bodies {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/choice", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusNotFound, w.Code, "id=%s body=%q", id, body)
		}
	}

	// у существующей сессии плохое тело по-прежнему дает 400
	id := s.createSession(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/choice", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleServiceError_Mapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(nil, nil, nil, zap.NewNop())

	tests := []struct {
		err  error
		code int
	}{
		{models.ErrNotFound, http.StatusNotFound},
		{models.ErrInvalidTransition, http.StatusConflict},
		{models.ErrInvalidChoice, http.StatusBadRequest},
		{models.ErrSessionClosed, http.StatusGone},
		{models.ErrTokenExpired, http.StatusUnauthorized},
		{models.ErrTokenInvalid, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)
		h.handleServiceError(c, tt.err)
		assert.Equal(t, tt.code, w.Code, tt.err.Error())
		assert.NotContains(t, w.Body.String(), "boom")
	}
}

func TestFullGameOverHTTP(t *testing.T) {
	s := newTestServer(t, fetcherFunc(func(context.Context) (*models.Scenario, error) { return correctFirst(), nil }), nil, nil, nil)
	id := s.createSession(t)

	w := s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code)

	for level := 1; level <= models.TotalLevels; level++ {
		playing := s.waitState(t, id, models.StatePlaying)
		assert.Equal(t, level, playing.Level)
		require.NotNil(t, playing.Scenario)
		for _, c := range playing.Scenario.Choices {
			assert.Nil(t, c.IsCorrect, "answer leaked while playing")
			assert.Empty(t, c.Feedback)
		}

		w = s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/choice", gin.H{"choiceIndex": 0})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		fb := decodeView(t, w)
		assert.Equal(t, models.StateFeedback, fb.State)
		assert.Equal(t, level, fb.Score)
		require.NotNil(t, fb.Feedback)
		assert.True(t, fb.Feedback.IsCorrect)
		require.NotNil(t, fb.Scenario.Choices[0].IsCorrect)

		w = s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/next", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	end := s.waitState(t, id, models.StateEnd)
	assert.Equal(t, models.TotalLevels, end.Score)
	assert.Equal(t, game.HeroVerdict, end.Verdict)
}

func TestInvalidTransitionsAndChoices(t *testing.T) {
	s := newTestServer(t, fetcherFunc(func(context.Context) (*models.Scenario, error) { return correctFirst(), nil }), nil, nil, nil)
	id := s.createSession(t)

	w := s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/choice", gin.H{"choiceIndex": 0})
	assert.Equal(t, http.StatusConflict, w.Code, "choice in start state")
	w = s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/next", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "next in start state")

	s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/start", nil)
	s.waitState(t, id, models.StatePlaying)

	w = s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/choice", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing choiceIndex")
	w = s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/choice", gin.H{"choiceIndex": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code, "negative choiceIndex")
	w = s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/choice", gin.H{"choiceIndex": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code, "choiceIndex out of range")

	w = s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/next", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "next while playing")

	// состояние не изменилось
	v := s.waitState(t, id, models.StatePlaying)
	assert.Equal(t, 0, v.Score)
}

func TestFetchFailure_FixedMessageAndFullReset(t *testing.T) {
	var calls atomic.Int32
	fetcher := fetcherFunc(func(context.Context) (*models.Scenario, error) {
		if calls.Add(1) == 2 {
			return nil, scenario.NewGenerationError(scenario.KindSchema, errors.New("unexpected token at offset 17"))
		}
		return correctFirst(), nil
	})
	s := newTestServer(t, fetcher, nil, nil, nil)
	id := s.createSession(t)

	s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/start", nil)
	s.waitState(t, id, models.StatePlaying)
	s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/choice", gin.H{"choiceIndex": 0})
	s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/next", nil)

	failed := s.waitState(t, id, models.StateError)
	assert.Equal(t, string(scenario.KindSchema), failed.ErrorKind)
	assert.Equal(t, scenario.UserMessage(scenario.NewGenerationError(scenario.KindSchema, nil)), failed.Error)
	assert.NotContains(t, failed.Error, "offset")

	w := s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	retried := s.waitState(t, id, models.StatePlaying)
	assert.Equal(t, 0, retried.Score)
	assert.Equal(t, 1, retried.Level)
	assert.Empty(t, retried.Error)
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(nil, 1, zap.NewNop())
	s := newTestServer(t, fetcherFunc(func(context.Context) (*models.Scenario, error) { return correctFirst(), nil }), limiter, nil, nil)
	id := s.createSession(t)

	w := s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/start", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// чтение не ограничивается
	w = s.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInternalGenerations(t *testing.T) {
	lister := mocks.NewMockGenerationLister(t)
	records := []models.GenerationResult{{ID: uuid.New(), Model: "m", Status: models.GenerationStatusSuccess}}
	lister.On("ListRecent", mock.Anything, 20).Return(records, nil).Once()
	lister.On("ListRecent", mock.Anything, 0).Return(nil, errors.New("db down")).Once()

	allow := func(c *gin.Context) { c.Next() }
	s := newTestServer(t, fetcherFunc(func(context.Context) (*models.Scenario, error) { return correctFirst(), nil }), nil, lister, allow)

	w := s.do(t, http.MethodGet, "/internal/generations?limit=20", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), records[0].ID.String())

	w = s.do(t, http.MethodGet, "/internal/generations?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/internal/generations", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db down")
}

func TestInternalGenerations_NotRegisteredWithoutAuth(t *testing.T) {
	lister := mocks.NewMockGenerationLister(t)
	s := newTestServer(t, fetcherFunc(func(context.Context) (*models.Scenario, error) { return correctFirst(), nil }), nil, lister, nil)

	w := s.do(t, http.MethodGet, "/internal/generations", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClosedRegistry_Gone(t *testing.T) {
	s := newTestServer(t, fetcherFunc(func(context.Context) (*models.Scenario, error) { return correctFirst(), nil }), nil, nil, nil)
	id := s.createSession(t)
	s.registry.Close()

	w := s.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "Session closed"))
}
