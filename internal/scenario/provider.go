package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tolerance-journey/internal/models"
	"tolerance-journey/internal/schemas"
	"tolerance-journey/pkg/ai"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	systemPrompt = "Generate a scenario for a children's game about tolerance. " +
		"The target audience is 6-8 years old. The language must be simple Arabic. " +
		"The scenario should involve a simple conflict or misunderstanding. " +
		"Provide two clear choices: one that shows tolerance and kindness, and one that does not. " +
		"Also provide feedback for each choice."
	userInput = "Create a new scenario. Respond only with JSON matching the schema."

	recordTimeout = 5 * time.Second
)

// ResultRecorder сохраняет результат каждой попытки генерации.
type ResultRecorder interface {
	Save(ctx context.Context, result *models.GenerationResult) error
}

// Fetcher - то, что нужно контроллеру игры от провайдера.
type Fetcher interface {
	FetchScenario(ctx context.Context) (*models.Scenario, error)
}

// Config - параметры сэмплирования для запросов к AI.
type Config struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// Provider запрашивает сценарий у AI и проверяет его.
type Provider struct {
	client   ai.AIClient
	recorder ResultRecorder
	params   ai.GenerationParams
	validate *validator.Validate
	logger   *zap.Logger
}

// NewProvider создает провайдер. recorder может быть nil.
func NewProvider(client ai.AIClient, recorder ResultRecorder, cfg Config, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	params := ai.GenerationParams{
		Temperature: &cfg.Temperature,
		TopP:        &cfg.TopP,
	}
	if cfg.MaxTokens > 0 {
		params.MaxTokens = &cfg.MaxTokens
	}
	return &Provider{
		client:   client,
		recorder: recorder,
		params:   params,
		validate: validator.New(),
		logger:   logger.Named("ScenarioProvider"),
	}
}

// FetchScenario выполняет один запрос к AI. Повторов нет.
// Любая ошибка возвращается как *GenerationError.
func (p *Provider) FetchScenario(ctx context.Context) (*models.Scenario, error) {
	sessionID := SessionIDFromContext(ctx)
	log := p.logger.With(zap.String("sessionID", sessionID))

	start := time.Now()
	raw, usage, err := p.client.GenerateJSON(ctx, ai.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserInput:    userInput,
		SchemaName:   schemas.ScenarioSchemaName,
		Schema:       schemas.ScenarioSchema(),
		Params:       p.params,
	})
	latency := time.Since(start)

	var scenario *models.Scenario
	if err != nil {
		err = NewGenerationError(KindTransport, err)
	} else {
		scenario, err = p.parse(raw)
	}

	if err != nil {
		log.Warn("Scenario generation failed",
			zap.String("kind", string(KindOf(err))),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
	} else {
		log.Info("Scenario generated", zap.Duration("latency", latency), zap.Int("totalTokens", usage.TotalTokens))
	}
	p.record(ctx, sessionID, raw, usage, latency, err)

	if err != nil {
		return nil, err
	}
	return scenario, nil
}

type rawCharacter struct {
	Name  string `json:"name" validate:"required"`
	Emoji string `json:"emoji" validate:"required"`
}

type rawChoice struct {
	Text      string `json:"text" validate:"required"`
	IsCorrect *bool  `json:"isCorrect" validate:"required"`
	Feedback  string `json:"feedback" validate:"required"`
}

type rawScenario struct {
	ScenarioText string        `json:"scenarioText" validate:"required"`
	CharacterA   *rawCharacter `json:"characterA" validate:"required"`
	CharacterB   *rawCharacter `json:"characterB" validate:"required"`
	Choices      []rawChoice   `json:"choices" validate:"required,dive"`
}

// parse разбирает и проверяет ответ модели.
func (p *Provider) parse(raw string) (*models.Scenario, error) {
	body := ai.ExtractJSON(raw)
	if body == "" {
		return nil, NewGenerationError(KindSchema, errors.New("empty response body"))
	}

	var rs rawScenario
	if err := json.Unmarshal([]byte(body), &rs); err != nil {
		return nil, NewGenerationError(KindSchema, fmt.Errorf("failed to decode scenario: %w", err))
	}
	if err := p.validate.Struct(rs); err != nil {
		return nil, NewGenerationError(KindSchema, fmt.Errorf("scenario does not match schema: %w", err))
	}

	scenario := &models.Scenario{
		ScenarioText: rs.ScenarioText,
		CharacterA:   models.Character{Name: rs.CharacterA.Name, Emoji: rs.CharacterA.Emoji},
		CharacterB:   models.Character{Name: rs.CharacterB.Name, Emoji: rs.CharacterB.Emoji},
		Choices:      make([]models.Choice, 0, len(rs.Choices)),
	}
	for _, c := range rs.Choices {
		scenario.Choices = append(scenario.Choices, models.Choice{Text: c.Text, IsCorrect: *c.IsCorrect, Feedback: c.Feedback})
	}

	if err := ValidateScenario(scenario); err != nil {
		return nil, err
	}
	return scenario, nil
}

// ValidateScenario проверяет, что вариантов ровно два и правильный ровно один.
func ValidateScenario(s *models.Scenario) error {
	if s == nil {
		return NewGenerationError(KindSchema, errors.New("scenario is nil"))
	}
	if len(s.Choices) != 2 {
		return NewGenerationError(KindSemantic, fmt.Errorf("expected 2 choices, got %d", len(s.Choices)))
	}
	if n := s.CorrectCount(); n != 1 {
		return NewGenerationError(KindSemantic, fmt.Errorf("expected exactly 1 correct choice, got %d", n))
	}
	return nil
}

func (p *Provider) record(ctx context.Context, sessionID, raw string, usage ai.UsageInfo, latency time.Duration, genErr error) {
	if p.recorder == nil {
		return
	}
	result := &models.GenerationResult{
		ID:               uuid.New(),
		SessionID:        sessionID,
		Model:            p.client.ModelName(),
		Status:           models.GenerationStatusSuccess,
		LatencyMS:        latency.Milliseconds(),
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		CreatedAt:        time.Now().UTC(),
	}
	if raw != "" {
		result.RawResponse = &raw
	}
	if genErr != nil {
		kind := string(KindOf(genErr))
		msg := genErr.Error()
		result.Status = models.GenerationStatusFailed
		result.ErrorKind = &kind
		result.Error = &msg
	}

	// запись не должна зависеть от отмены самой генерации
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := p.recorder.Save(saveCtx, result); err != nil {
		p.logger.Error("Failed to record generation result", zap.String("resultID", result.ID.String()), zap.Error(err))
	}
}

type sessionIDKey struct{}

// WithSessionID добавляет ID сессии в контекст для журналов генерации.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

// SessionIDFromContext возвращает ID сессии из контекста или пустую строку.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}
