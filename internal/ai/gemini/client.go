package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/peermatch/internal/ai"
	"github.com/spigell/peermatch/internal/logger"
	"github.com/spigell/peermatch/internal/utils"
)

const (
	ProviderName = "gemini"

	defaultModel      = "text-embedding-004"
	defaultMaxRetries = 3
	taskType          = "SEMANTIC_SIMILARITY"

	baseDelay     = 500 * time.Millisecond
	maxDelay      = 8 * time.Second
	maxQuotaDelay = 10 * time.Second
	previewLimit  = 80
)

var (
	sleep = utils.WaitFor

	quotaDelayPattern = regexp.MustCompile(`(?i)retry (?:after|in) (\d+(?:\.\d+)?)\s*s`)
)

// Config is the gemini section of the embedding configuration.
type Config struct {
	APIKeyFile string `mapstructure:"api-key-file"`
	APIKey     string `mapstructure:"api-key"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max-retries"`
}

type embedAPI interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Embedder wraps the Google GenAI client to embed profile text.
type Embedder struct {
	models     embedAPI
	model      string
	maxRetries int
	logger     *zap.Logger
}

// NewEmbedder creates an Embedder configured for the Gemini API backend.
func NewEmbedder(ctx context.Context, apiKey string, cfg Config, log *zap.Logger) (*Embedder, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newEmbedder(client.Models, cfg, log), nil
}

func newEmbedder(models embedAPI, cfg Config, log *zap.Logger) *Embedder {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}

	return &Embedder{
		models:     models,
		model:      model,
		maxRetries: retries,
		logger:     logger.WithProviderFields(log, ProviderName, model),
	}
}

func (e *Embedder) Name() string { return ProviderName }

func (e *Embedder) Model() string { return e.model }

// Embed returns the embedding of text. Transient API errors are retried up to
// maxRetries attempts in total; every failure wraps ai.ErrProviderUnavailable.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", ai.ErrProviderUnavailable)
	}

	e.logger.Debug("embedding text", zap.String("text", utils.TruncateForLog(text, previewLimit)))

	config := &genai.EmbedContentConfig{TaskType: taskType}

	var lastErr error
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		resp, err := e.models.EmbedContent(ctx, e.model, genai.Text(text), config)
		if err == nil {
			return vectorFrom(resp)
		}
		lastErr = err

		delay, retry := retryDelay(err, attempt)
		if !retry || attempt == e.maxRetries-1 {
			break
		}

		e.logger.Warn("gemini embedding failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w: %w", ai.ErrProviderUnavailable, err)
		}
	}

	return nil, fmt.Errorf("%w: embed content: %w", ai.ErrProviderUnavailable, lastErr)
}

func vectorFrom(resp *genai.EmbedContentResponse) ([]float32, error) {
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("%w: gemini api returned no embeddings", ai.ErrProviderUnavailable)
	}
	values := resp.Embeddings[0].Values
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: gemini api returned an empty vector", ai.ErrProviderUnavailable)
	}
	return values, nil
}

// retryDelay reports whether err is worth another attempt and how long to wait.
// Quota errors that ask for a long pause are not retried.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var apiErrPtr *genai.APIError
		if !errors.As(err, &apiErrPtr) || apiErrPtr == nil {
			return 0, false
		}
		apiErr = *apiErrPtr
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		if wait, ok := quotaDelay(apiErr.Message); ok {
			if wait > maxQuotaDelay {
				return 0, false
			}
			return wait, true
		}
		return utils.Backoff(attempt, baseDelay, maxDelay), true
	case apiErr.Code >= http.StatusInternalServerError:
		return utils.Backoff(attempt, baseDelay, maxDelay), true
	default:
		return 0, false
	}
}

func quotaDelay(message string) (time.Duration, bool) {
	m := quotaDelayPattern.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}
