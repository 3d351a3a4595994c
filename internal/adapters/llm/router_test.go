package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-collective/z88/internal/config"
	"github.com/helix-collective/z88/internal/core"
)

// fakeVendor serves OpenAI, Anthropic and Gemini wire formats from one
// server, dispatching on path.
type fakeVendor struct {
	t        *testing.T
	reply    string
	failures int32 // number of 503s before succeeding
	status   int   // when non-zero every request fails with it
	calls    atomic.Int32
	lastBody atomic.Value
}

func (f *fakeVendor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := f.calls.Add(1)
	body, _ := io.ReadAll(r.Body)
	f.lastBody.Store(string(body))

	if f.status != 0 {
		writeError(w, f.status)
		return
	}
	if n <= f.failures {
		writeError(w, http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/chat/completions"):
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "served-model",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": f.reply},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 11, "completion_tokens": 7, "total_tokens": 18},
		})
	case strings.HasSuffix(r.URL.Path, "/messages"):
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_1",
			"type":          "message",
			"role":          "assistant",
			"model":         "claude-served",
			"content":       []map[string]any{{"type": "text", "text": f.reply}},
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"usage":         map[string]any{"input_tokens": 20, "output_tokens": 5},
		})
	case strings.Contains(r.URL.Path, ":generateContent"):
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content":      map[string]any{"role": "model", "parts": []map[string]any{{"text": f.reply}}},
				"finishReason": "STOP",
			}},
			"usageMetadata": map[string]any{"promptTokenCount": 3, "candidatesTokenCount": 4, "totalTokenCount": 7},
			"modelVersion":  "gemini-served",
		})
	default:
		f.t.Errorf("unexpected path %s", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func writeError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": "boom", "type": "server_error", "code": status},
	})
}

func newFake(t *testing.T, reply string) (*fakeVendor, *httptest.Server) {
	t.Helper()
	f := &fakeVendor{t: t, reply: reply}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func providersAt(url string, only ...core.Provider) config.ProvidersConfig {
	d := config.Default().Providers
	set := func(p core.Provider, pc *config.ProviderConfig) {
		if len(only) > 0 {
			found := false
			for _, o := range only {
				found = found || o == p
			}
			if !found {
				return
			}
		}
		pc.APIKey = "test-key"
		pc.BaseURL = url
	}
	set(core.ProviderOpenAI, &d.OpenAI)
	set(core.ProviderAnthropic, &d.Anthropic)
	set(core.ProviderXAI, &d.XAI)
	set(core.ProviderGoogle, &d.Google)
	set(core.ProviderPerplexity, &d.Perplexity)
	return d
}

func fastRetry() config.LLMConfig {
	return config.LLMConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
	}
}

func TestRouter_EachProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		provider   core.Provider
		wantModel  string
		wantTokens int
	}{
		{core.ProviderOpenAI, "served-model", 18},
		{core.ProviderXAI, "served-model", 18},
		{core.ProviderPerplexity, "served-model", 18},
		{core.ProviderAnthropic, "claude-served", 25},
		{core.ProviderGoogle, "gemini-served", 7},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			t.Parallel()
			fake, srv := newFake(t, "The neon rain never stops.")
			r, err := NewRouter(context.Background(), providersAt(srv.URL, tt.provider), fastRetry(),
				WithHTTPClient(srv.Client()))
			require.NoError(t, err)
			require.Equal(t, []core.Provider{tt.provider}, r.Configured())

			resp, err := r.Call(context.Background(), tt.provider, []core.Message{
				core.SystemMessage("You are Oracle."),
				core.UserMessage("Plot it."),
			}, core.CallOptions{Temperature: 0.7, MaxTokens: 100})
			require.NoError(t, err)

			assert.Equal(t, "The neon rain never stops.", resp.Content)
			assert.Equal(t, tt.provider, resp.Provider)
			assert.Equal(t, tt.wantModel, resp.Model)
			assert.Equal(t, tt.wantTokens, resp.Usage.TotalTokens)
			assert.Contains(t, fake.lastBody.Load().(string), "You are Oracle.")
		})
	}
}

func TestRouter_AnthropicSeparatesSystem(t *testing.T) {
	t.Parallel()
	fake, srv := newFake(t, "ok")
	r, err := NewRouter(context.Background(), providersAt(srv.URL, core.ProviderAnthropic), fastRetry(),
		WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = r.Call(context.Background(), core.ProviderAnthropic, []core.Message{
		core.SystemMessage("persona"),
		core.UserMessage("question"),
	}, core.DefaultCallOptions())
	require.NoError(t, err)

	var body struct {
		System   []map[string]any `json:"system"`
		Messages []map[string]any `json:"messages"`
		Model    string           `json:"model"`
	}
	require.NoError(t, json.Unmarshal([]byte(fake.lastBody.Load().(string)), &body))
	require.Len(t, body.System, 1)
	assert.Equal(t, "persona", body.System[0]["text"])
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "user", body.Messages[0]["role"])
	assert.Equal(t, "claude-3-5-sonnet-20241022", body.Model)
}

func TestRouter_RetriesTransientFailures(t *testing.T) {
	t.Parallel()
	fake, srv := newFake(t, "eventually")
	fake.failures = 2

	r, err := NewRouter(context.Background(), providersAt(srv.URL, core.ProviderOpenAI), fastRetry(),
		WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	resp, err := r.Call(context.Background(), core.ProviderOpenAI, []core.Message{core.UserMessage("hi")}, core.DefaultCallOptions())
	require.NoError(t, err)
	assert.Equal(t, "eventually", resp.Content)
	assert.Equal(t, int32(3), fake.calls.Load())
}

func TestRouter_DoesNotRetryAuthFailures(t *testing.T) {
	t.Parallel()
	fake, srv := newFake(t, "")
	fake.status = http.StatusUnauthorized

	r, err := NewRouter(context.Background(), providersAt(srv.URL, core.ProviderXAI), fastRetry(),
		WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = r.Call(context.Background(), core.ProviderXAI, []core.Message{core.UserMessage("hi")}, core.DefaultCallOptions())
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatAuth), "got %v", err)
	assert.Equal(t, int32(1), fake.calls.Load())
}

func TestRouter_GivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()
	fake, srv := newFake(t, "")
	fake.status = http.StatusTooManyRequests

	r, err := NewRouter(context.Background(), providersAt(srv.URL, core.ProviderAnthropic), fastRetry(),
		WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = r.Call(context.Background(), core.ProviderAnthropic, []core.Message{core.UserMessage("hi")}, core.DefaultCallOptions())
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatRateLimit), "got %v", err)
	assert.Equal(t, int32(4), fake.calls.Load(), "one attempt plus three retries")
}

func TestRouter_EmptyContent(t *testing.T) {
	t.Parallel()
	_, srv := newFake(t, "")

	r, err := NewRouter(context.Background(), providersAt(srv.URL, core.ProviderPerplexity), fastRetry(),
		WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = r.Call(context.Background(), core.ProviderPerplexity, []core.Message{core.UserMessage("hi")}, core.DefaultCallOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no content in perplexity response")
}

func TestRouter_UnconfiguredAndUnknown(t *testing.T) {
	t.Parallel()
	r, err := NewRouter(context.Background(), config.Default().Providers, fastRetry())
	require.NoError(t, err)
	assert.Empty(t, r.Configured())

	_, err = r.Call(context.Background(), core.ProviderOpenAI, nil, core.CallOptions{})
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatAuth))

	_, err = r.Call(context.Background(), core.Provider("mistral"), nil, core.CallOptions{})
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestRouter_TestAll(t *testing.T) {
	t.Parallel()
	fake, srv := newFake(t, "OK")

	r, err := NewRouter(context.Background(),
		providersAt(srv.URL, core.ProviderOpenAI, core.ProviderAnthropic, core.ProviderGoogle),
		fastRetry(), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	results := r.TestAll(context.Background())
	assert.Equal(t, map[core.Provider]bool{
		core.ProviderOpenAI:     true,
		core.ProviderAnthropic:  true,
		core.ProviderXAI:        false,
		core.ProviderGoogle:     true,
		core.ProviderPerplexity: false,
	}, results)
	assert.Equal(t, int32(3), fake.calls.Load())
}

func TestRouter_CancelledContext(t *testing.T) {
	t.Parallel()
	fake, srv := newFake(t, "")
	fake.status = http.StatusServiceUnavailable

	r, err := NewRouter(context.Background(), providersAt(srv.URL, core.ProviderOpenAI), config.LLMConfig{
		MaxRetries:     10,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     time.Second,
	}, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = r.Call(ctx, core.ProviderOpenAI, []core.Message{core.UserMessage("hi")}, core.DefaultCallOptions())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
