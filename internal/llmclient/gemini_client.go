// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/xkilldash9x/regress-cli/api/schemas"
	"github.com/xkilldash9x/regress-cli/internal/config"
	"github.com/xkilldash9x/regress-cli/internal/faults"
	"github.com/xkilldash9x/regress-cli/internal/llmutil"
)

const apiKeyRemedy = "set generator.api_key in config.yaml or export REGRESS_GENERATOR_API_KEY"

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("generation service returned no content")

// CheckAPIKey rejects an empty or placeholder credential.
func CheckAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" || key == config.PlaceholderAPIKey {
		return &faults.Error{
			Kind:   faults.KindExternal,
			Op:     "generate.credentials",
			Msg:    "generation API key is not configured",
			Remedy: apiKeyRemedy,
		}
	}
	return nil
}

// GeminiClient generates test scripts with the Gemini API.
type GeminiClient struct {
	client  *genai.Client
	model   string
	cfg     config.GeneratorConfig
	limiter *rate.Limiter
	logger  *zap.Logger

	// maxElapsed bounds retries of transient failures for one request.
	maxElapsed time.Duration
}

var _ schemas.CodeGenerator = (*GeminiClient)(nil)

// NewGeminiClient validates the credential and builds the client.
func NewGeminiClient(ctx context.Context, cfg config.GeneratorConfig, logger *zap.Logger) (*GeminiClient, error) {
	if err := CheckAPIKey(cfg.APIKey); err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	cc := &genai.ClientConfig{
		APIKey:     strings.TrimSpace(cfg.APIKey),
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, faults.External("generate.client", err)
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60)
	}

	return &GeminiClient{
		client:     client,
		model:      cfg.Model,
		cfg:        cfg,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger.Named("llm_client.gemini"),
		maxElapsed: 2 * time.Minute,
	}, nil
}

// GenerateTest returns the source of one test script.
func (c *GeminiClient) GenerateTest(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	prompt, err := BuildPrompt(req)
	if err != nil {
		return "", err
	}

	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(c.cfg.Temperature),
	}
	if c.cfg.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(c.cfg.MaxTokens)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.maxElapsed
	b.MaxInterval = 30 * time.Second

	var text string
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		start := time.Now()
		resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), genCfg)
		if err != nil {
			if ctx.Err() != nil || !isTransient(err) {
				return backoff.Permanent(err)
			}
			c.logger.Warn("Transient generation error, retrying.", zap.String("test_id", req.Case.TestID), zap.Error(err))
			return err
		}

		out := resp.Text()
		if strings.TrimSpace(out) == "" {
			reason := ""
			if len(resp.Candidates) > 0 {
				reason = string(resp.Candidates[0].FinishReason)
			}
			return backoff.Permanent(fmt.Errorf("%w (finish reason %q)", ErrEmptyResponse, reason))
		}

		fields := []zap.Field{zap.String("test_id", req.Case.TestID), zap.Duration("duration", time.Since(start))}
		if u := resp.UsageMetadata; u != nil {
			fields = append(fields,
				zap.Int32("prompt_tokens", u.PromptTokenCount),
				zap.Int32("completion_tokens", u.CandidatesTokenCount))
		}
		c.logger.Info("Generation complete.", fields...)
		text = out
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", faults.External("generate."+req.Case.TestID, err)
	}

	code := llmutil.ExtractCode(text)
	c.logger.Debug("Extracted script.", zap.String("test_id", req.Case.TestID), zap.String("head", llmutil.Truncate(code, 120)))
	return code, nil
}

// isTransient reports whether a failed call is worth retrying.
func isTransient(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	// Transport failures carry no status.
	return true
}
