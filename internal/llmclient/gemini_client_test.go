// internal/llmclient/gemini_client_test.go
package llmclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/regress-cli/api/schemas"
	"github.com/xkilldash9x/regress-cli/internal/config"
	"github.com/xkilldash9x/regress-cli/internal/faults"
)

// -- Test Setup Helpers --

func validGeneratorConfig(endpoint string) config.GeneratorConfig {
	return config.GeneratorConfig{
		Provider:    config.ProviderGemini,
		APIKey:      "test-api-key",
		Model:       "test-model",
		Endpoint:    endpoint,
		MaxTokens:   1024,
		Temperature: 0.2,
		TimeoutMs:   5000,
	}
}

// setupGeminiClient points a client at a mock HTTP server.
func setupGeminiClient(t *testing.T, handler http.HandlerFunc) (*GeminiClient, *observer.ObservedLogs) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	core, logs := observer.New(zap.InfoLevel)
	client, err := NewGeminiClient(context.Background(), validGeneratorConfig(server.URL), zap.New(core))
	require.NoError(t, err)
	client.maxElapsed = 2 * time.Second
	return client, logs
}

func geminiReply(text string) string {
	return `{"candidates":[{"content":{"role":"model","parts":[{"text":` + mustQuote(text) + `}]},"finishReason":"STOP"}],` +
		`"usageMetadata":{"promptTokenCount":11,"candidatesTokenCount":7,"totalTokenCount":18}}`
}

func mustQuote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func sampleRequest() schemas.GenerationRequest {
	return schemas.GenerationRequest{
		Case: schemas.TestCase{
			TestID:       "3",
			Purpose:      "Orders can be confirmed",
			Precondition: "Cart has one item",
			Expected:     "Confirmation dialog is shown",
		},
		TargetURL: "https://app.example.com/home",
	}
}

// -- Test Cases --

func TestCheckAPIKey(t *testing.T) {
	for _, key := range []string{"", "  ", config.PlaceholderAPIKey} {
		err := CheckAPIKey(key)
		require.Error(t, err, "key %q", key)
		assert.True(t, faults.Is(err, faults.KindExternal))
		assert.Contains(t, faults.RemedyOf(err), "REGRESS_GENERATOR_API_KEY")
	}
	assert.NoError(t, CheckAPIKey("real-key"))
}

func TestNewGeminiClient_RejectsPlaceholderKey(t *testing.T) {
	cfg := validGeneratorConfig("")
	cfg.APIKey = config.PlaceholderAPIKey
	_, err := NewGeminiClient(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindExternal))
}

func TestGenerateTest_Success(t *testing.T) {
	var gotPath, gotKey, gotBody string
	client, logs := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, geminiReply("Sure!\n```ts\ntest('3', async ({ page }) => {});\n```"))
	})

	code, err := client.GenerateTest(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "test('3', async ({ page }) => {});", code)

	assert.True(t, strings.HasSuffix(gotPath, "/models/test-model:generateContent"), "unexpected path %s", gotPath)
	assert.Equal(t, "test-api-key", gotKey)
	assert.Contains(t, gotBody, "Orders can be confirmed")
	assert.Contains(t, gotBody, "maxOutputTokens")

	entries := logs.FilterMessage("Generation complete.").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "3", entries[0].ContextMap()["test_id"])
}

func TestGenerateTest_RetriesTransientErrors(t *testing.T) {
	var calls int32
	client, logs := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`)
			return
		}
		_, _ = io.WriteString(w, geminiReply("const ok = true;"))
	})

	code, err := client.GenerateTest(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "const ok = true;", code)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, logs.FilterMessage("Transient generation error, retrying.").Len())
}

func TestGenerateTest_PermanentErrorIsExternal(t *testing.T) {
	var calls int32
	client, _ := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)
	})

	_, err := client.GenerateTest(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindExternal))
	assert.Contains(t, err.Error(), "generate.3")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "client errors are not retried")
}

func TestGenerateTest_EmptyResponse(t *testing.T) {
	client, _ := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[]},"finishReason":"SAFETY"}]}`)
	})

	_, err := client.GenerateTest(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestGenerateTest_CancelledContext(t *testing.T) {
	client, _ := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, geminiReply("unused"))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GenerateTest(ctx, sampleRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClient_Factory(t *testing.T) {
	gen, err := NewClient(context.Background(), validGeneratorConfig("http://127.0.0.1:1"), zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &GeminiClient{}, gen)

	cfg := validGeneratorConfig("")
	cfg.Provider = "openai"
	_, err = NewClient(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported generation provider")
}
