package repository_test

import (
	"context"
	"testing"
	"time"

	"tolerance-journey/internal/models"
	"tolerance-journey/internal/repository"
	"tolerance-journey/pkg/migration"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

type GenerationRepositorySuite struct {
	suite.Suite
	ctx         context.Context
	logger      *zap.Logger
	pgContainer *postgres.PostgresContainer
	pool        *pgxpool.Pool
	repo        repository.GenerationResultRepository
}

func TestGenerationRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	suite.Run(t, new(GenerationRepositorySuite))
}

func (s *GenerationRepositorySuite) SetupSuite() {
	s.ctx = context.Background()
	var err error

	s.logger, err = zap.NewDevelopment()
	require.NoError(s.T(), err)

	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to start postgres container")

	connStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err)

	s.pool, err = pgxpool.New(s.ctx, connStr)
	require.NoError(s.T(), err)

	migrator := migration.NewMigrator(migration.Config{
		MigrationsFS:   repository.MigrationsFS,
		MigrationsPath: repository.MigrationsPath,
	}, s.pool, s.logger)
	require.NoError(s.T(), migrator.Up(s.ctx))
	// Повторный запуск не должен падать.
	require.NoError(s.T(), migrator.Up(s.ctx))

	version, dirty, err := migrator.Version(s.ctx)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), uint(1), version)
	assert.False(s.T(), dirty)

	s.repo = repository.NewPgGenerationResultRepository(s.pool, s.logger)
}

func (s *GenerationRepositorySuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.pgContainer != nil {
		_ = s.pgContainer.Terminate(s.ctx)
	}
}

func (s *GenerationRepositorySuite) SetupTest() {
	_, err := s.pool.Exec(s.ctx, "TRUNCATE generation_results")
	require.NoError(s.T(), err)
}

func strPtr(v string) *string { return &v }

func (s *GenerationRepositorySuite) TestSaveAndListRecent() {
	base := time.Now().UTC().Truncate(time.Millisecond)

	ok := &models.GenerationResult{
		ID:               uuid.New(),
		SessionID:        "s-1",
		Model:            "test-model",
		Status:           models.GenerationStatusSuccess,
		RawResponse:      strPtr(`{"title":"t"}`),
		LatencyMS:        120,
		PromptTokens:     40,
		CompletionTokens: 80,
		CreatedAt:        base.Add(-time.Minute),
	}
	failed := &models.GenerationResult{
		ID:        uuid.New(),
		SessionID: "s-2",
		Model:     "test-model",
		Status:    models.GenerationStatusFailed,
		ErrorKind: strPtr("semantic"),
		Error:     strPtr("expected exactly one correct choice"),
		CreatedAt: base,
	}
	require.NoError(s.T(), s.repo.Save(s.ctx, ok))
	require.NoError(s.T(), s.repo.Save(s.ctx, failed))

	results, err := s.repo.ListRecent(s.ctx, 10)
	require.NoError(s.T(), err)
	require.Len(s.T(), results, 2)

	assert.Equal(s.T(), failed.ID, results[0].ID)
	require.NotNil(s.T(), results[0].ErrorKind)
	assert.Equal(s.T(), "semantic", *results[0].ErrorKind)
	assert.Nil(s.T(), results[0].RawResponse)

	assert.Equal(s.T(), ok.ID, results[1].ID)
	assert.Equal(s.T(), models.GenerationStatusSuccess, results[1].Status)
	assert.Equal(s.T(), 80, results[1].CompletionTokens)
	assert.True(s.T(), ok.CreatedAt.Equal(results[1].CreatedAt))
}

func (s *GenerationRepositorySuite) TestSaveUpsertsByID() {
	res := &models.GenerationResult{
		ID:        uuid.New(),
		Model:     "test-model",
		Status:    models.GenerationStatusFailed,
		ErrorKind: strPtr("transport"),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(s.T(), s.repo.Save(s.ctx, res))

	res.Status = models.GenerationStatusSuccess
	res.ErrorKind = nil
	require.NoError(s.T(), s.repo.Save(s.ctx, res))

	results, err := s.repo.ListRecent(s.ctx, 0)
	require.NoError(s.T(), err)
	require.Len(s.T(), results, 1)
	assert.Equal(s.T(), models.GenerationStatusSuccess, results[0].Status)
	assert.Nil(s.T(), results[0].ErrorKind)
}

func (s *GenerationRepositorySuite) TestListRecentRespectsLimit() {
	for i := 0; i < 3; i++ {
		require.NoError(s.T(), s.repo.Save(s.ctx, &models.GenerationResult{
			ID:        uuid.New(),
			Model:     "test-model",
			Status:    models.GenerationStatusSuccess,
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
		}))
	}

	results, err := s.repo.ListRecent(s.ctx, 2)
	require.NoError(s.T(), err)
	assert.Len(s.T(), results, 2)
}
