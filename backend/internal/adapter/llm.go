package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"linkboard/backend/internal/constants"
	"linkboard/backend/internal/prompt"
	"linkboard/backend/pkg/config"
	apperrors "linkboard/backend/pkg/errors"
	"linkboard/backend/pkg/logger"
)

const chatCompletionsSuffix = "/chat/completions"

// RedactedKey replaces the API key in settings shown to operators
const RedactedKey = "********"

// Settings is the per-request inference configuration
type Settings struct {
	Provider    string        `json:"provider"`
	Endpoint    string        `json:"endpoint"` // Full chat-completions URL
	Model       string        `json:"model"`
	APIKey      string        `json:"api_key,omitempty"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Timeout     time.Duration `json:"timeout"` // 0 disables the timeout
}

// SettingsFromConfig builds the initial settings from loaded configuration
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Provider:    cfg.AIProvider,
		Endpoint:    cfg.AIEndpoint,
		Model:       cfg.AIModel,
		APIKey:      cfg.AIAPIKey,
		Temperature: float32(cfg.AITemperature),
		MaxTokens:   cfg.AIMaxTokens,
		Timeout:     cfg.AIRequestTimeout,
	}
}

// Validate checks the settings before they replace the active ones
func (s Settings) Validate() error {
	switch s.Provider {
	case config.ProviderOllama, config.ProviderOpenAI, config.ProviderCustom:
	default:
		return apperrors.NewInvalidSettings("provider", fmt.Sprintf("unknown provider %q", s.Provider))
	}
	u, err := url.Parse(s.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return apperrors.NewInvalidSettings("endpoint", "must be an absolute URL")
	}
	if strings.TrimSpace(s.Model) == "" {
		return apperrors.NewInvalidSettings("model", "must not be empty")
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		return apperrors.NewInvalidSettings("temperature", "must be between 0 and 2")
	}
	if s.MaxTokens <= 0 {
		return apperrors.NewInvalidSettings("max_tokens", "must be positive")
	}
	if s.Timeout < 0 {
		return apperrors.NewInvalidSettings("timeout", "must not be negative")
	}
	return nil
}

// Redacted returns a copy safe to show or log
func (s Settings) Redacted() Settings {
	if s.APIKey != "" {
		s.APIKey = RedactedKey
	}
	return s
}

func (s Settings) isOllama() bool {
	return s.Provider == config.ProviderOllama
}

// baseURL derives the OpenAI-compatible API root from the completions URL
func (s Settings) baseURL() string {
	return strings.TrimSuffix(strings.TrimRight(s.Endpoint, "/"), chatCompletionsSuffix)
}

// LLMAdapter issues chat-completion requests against an OpenAI-compatible endpoint
type LLMAdapter struct {
	logger *zap.Logger
}

// NewLLMAdapter creates a new LLM adapter
func NewLLMAdapter() *LLMAdapter {
	return &LLMAdapter{
		logger: logger.Get(),
	}
}

func (a *LLMAdapter) client(s Settings) *openai.Client {
	cfg := openai.DefaultConfig(s.APIKey)
	cfg.BaseURL = s.baseURL()
	return openai.NewClientWithConfig(cfg)
}

// Infer sends one extraction request and returns the raw response content.
// It never retries. Cancelling ctx aborts the underlying HTTP request and
// yields *errors.ErrCancelled.
func (a *LLMAdapter) Infer(ctx context.Context, p prompt.Prompt, s Settings) (string, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model: s.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: p.System,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: p.User,
			},
		},
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
		Stream:      false,
	}

	start := time.Now()
	a.logger.Info("Sending extraction request",
		zap.String("provider", s.Provider),
		zap.String("model", s.Model),
		zap.Int("prompt_chars", len(p.User)),
	)

	resp, err := a.client(s).CreateChatCompletion(ctx, req)
	if err != nil {
		mapped := a.classify(err, s)
		if apperrors.IsCancelled(mapped) {
			a.logger.Info("Extraction request cancelled", zap.Duration("elapsed", time.Since(start)))
		} else {
			a.logger.Warn("Extraction request failed",
				zap.String("model", s.Model),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
		}
		return "", mapped
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", apperrors.NewEmptyResponse(s.Model, nil)
	}

	content := resp.Choices[0].Message.Content
	a.logger.Info("Extraction response received",
		zap.String("model", s.Model),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("response_chars", len(content)),
	)
	return content, nil
}

// ConnectionResult reports a successful connectivity probe
type ConnectionResult struct {
	OK     bool     `json:"ok"`
	Models []string `json:"models"`
}

// TestConnection checks that the configured endpoint answers. Local providers
// (Ollama, or any endpoint without an API key) list their models; cloud
// providers get a minimal completion request.
func (a *LLMAdapter) TestConnection(ctx context.Context, s Settings) (*ConnectionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ProbeTimeout)
	defer cancel()

	client := a.client(s)

	if s.isOllama() || s.APIKey == "" {
		list, err := client.ListModels(ctx)
		if err != nil {
			return nil, a.classify(err, s)
		}
		models := make([]string, 0, len(list.Models))
		for _, m := range list.Models {
			models = append(models, m.ID)
		}
		a.logger.Debug("Connection probe succeeded", zap.Int("models", len(models)))
		return &ConnectionResult{OK: true, Models: models}, nil
	}

	_, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: constants.ProbePrompt},
		},
		MaxTokens: constants.ProbeMaxTokens,
	})
	if err != nil {
		return nil, a.classify(err, s)
	}
	a.logger.Debug("Connection probe succeeded", zap.String("model", s.Model))
	return &ConnectionResult{OK: true, Models: []string{}}, nil
}

// classify maps a go-openai error onto the inference error taxonomy
func (a *LLMAdapter) classify(err error, s Settings) error {
	if errors.Is(err, context.Canceled) {
		return apperrors.NewCancelled("inference request", err)
	}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	status, body := 0, ""
	switch {
	case errors.As(err, &apiErr):
		status, body = apiErr.HTTPStatusCode, apiErr.Message
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
	}

	if status != 0 {
		switch status {
		case 401, 403:
			return apperrors.NewAuthError(status, err)
		case 404:
			return apperrors.NewModelNotFound(s.Model, modelHint(s), err)
		case 429:
			return apperrors.NewRateLimited(err)
		default:
			return apperrors.NewServerError(status, body, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewConnectionError(s.Endpoint, "Request timed out.", err)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return apperrors.NewEmptyResponse(s.Model, err)
	}

	return apperrors.NewConnectionError(s.Endpoint, connectionHint(s), err)
}

func connectionHint(s Settings) string {
	if s.isOllama() {
		return "Is Ollama running? Check that it is available at localhost:11434."
	}
	return fmt.Sprintf("Check that %s is reachable.", s.Endpoint)
}

func modelHint(s Settings) string {
	if s.isOllama() {
		return fmt.Sprintf("Run `ollama pull %s` to download it.", s.Model)
	}
	return "Check the model name in settings."
}
