package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sevigo/goframe/llms"
	"github.com/sevigo/goframe/llms/gemini"
	"github.com/sevigo/goframe/llms/ollama"

	"github.com/sevigo/regression-warden/internal/config"
	"github.com/sevigo/regression-warden/internal/core"
)

// Reviewer generates a markdown regression review for a prepared prompt.
// Implementations classify every failure into a core error kind.
type Reviewer interface {
	GenerateReview(ctx context.Context, prompt string) (string, error)
}

// maxAttempts is the application-level retry bound for transient backend
// failures. Exhausting it records a failed outcome instead of escalating.
const maxAttempts = 3

type modelReviewer struct {
	model  llms.Model
	logger *slog.Logger
}

// NewReviewer builds a Reviewer backed by the configured LLM provider.
func NewReviewer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Reviewer, error) {
	model, err := createModel(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &modelReviewer{model: model, logger: logger}, nil
}

// GenerateReview sends the prompt to the model, retrying transient errors
// with exponential backoff up to the application-level bound. Content
// errors fail immediately; retrying a malformed or unsafe generation
// request is unlikely to help.
func (r *modelReviewer) GenerateReview(ctx context.Context, prompt string) (string, error) {
	full := systemPrompt + "\n\n" + prompt
	r.logger.Info("calling review backend", "prompt_chars", len(full))

	var review string
	start := time.Now()
	err := retryWithBackoff(ctx, maxAttempts, r.logger, func() error {
		resp, err := r.model.Call(ctx, full)
		if err != nil {
			return classifyBackendError(err)
		}
		review = resp
		return nil
	})
	if err != nil {
		return "", err
	}

	r.logger.Info("review backend responded",
		"response_chars", len(review),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return review, nil
}

// retryWithBackoff runs fn up to maxAttempts times, sleeping 1s, 2s, 4s...
// between attempts. Only transient errors are retried.
func retryWithBackoff(ctx context.Context, maxAttempts int, logger *slog.Logger, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if core.KindOf(lastErr) != core.KindTransient {
			return lastErr
		}
		if attempt < maxAttempts {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			logger.Warn("transient backend error, backing off",
				"attempt", attempt, "backoff", backoff, "error", lastErr)
			select {
			case <-ctx.Done():
				return core.WrapError(core.KindTransient, ctx.Err())
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}

// classifyBackendError maps a model error onto the core taxonomy. The
// provider libraries do not expose typed errors, so this is a best-effort
// text match: recognizable content failures are tagged non-retryable and
// everything else is treated as transient, matching how a worker should
// behave when the backend hiccups.
func classifyBackendError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, cue := range []string{"safety", "blocked", "invalid argument", "invalid request", "prompt too long", "context length"} {
		if strings.Contains(msg, cue) {
			return core.WrapError(core.KindContent, err)
		}
	}
	return core.WrapError(core.KindTransient, err)
}

// createModel picks the LLM client for the configured provider.
func createModel(ctx context.Context, cfg *config.Config, logger *slog.Logger) (llms.Model, error) {
	switch cfg.LLM.Provider {
	case "gemini":
		logger.Info("using Gemini review backend", "model", cfg.LLM.GeneratorModelName)
		if cfg.LLM.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is not set in environment for gemini provider")
		}
		return gemini.New(ctx,
			gemini.WithModel(cfg.LLM.GeneratorModelName),
			gemini.WithAPIKey(cfg.LLM.GeminiAPIKey),
		)

	case "ollama":
		logger.Info("using Ollama review backend", "model", cfg.LLM.GeneratorModelName)
		return ollama.New(
			ollama.WithServerURL(cfg.LLM.OllamaHost),
			ollama.WithModel(cfg.LLM.GeneratorModelName),
			ollama.WithHTTPClient(newBackendHTTPClient()),
			ollama.WithLogger(logger),
		)

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLM.Provider)
	}
}

// newBackendHTTPClient uses generous timeouts; local models can take a
// while to produce a full review.
func newBackendHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxConnsPerHost:     10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   5 * time.Minute,
	}
}
