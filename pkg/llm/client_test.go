package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xiaowen-go/internal/config"
)

func newTestConfig(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Model:   "test-chat-v1",
		Timeout: 5 * time.Second,
	}
}

func TestCompleteReturnsAnswer(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices":[{"message":{"content":"光合作用将光能转化为化学能。"}}]}`))
	}))
	defer server.Close()

	c := NewClient(newTestConfig(server.URL))
	answer, err := c.Complete(context.Background(), []Message{
		{Role: "system", Content: "Answer using ONLY the context."},
		{Role: "user", Content: "什么是光合作用？"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "光合作用将光能转化为化学能。", answer)
	assert.False(t, got.Stream, "应使用非流式调用")
	assert.Equal(t, "test-chat-v1", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
}

func TestCompleteAppliesGenerationParams(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	temp := 0.7
	maxTokens := 800
	c := NewClient(newTestConfig(server.URL))
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}},
		&GenerationParams{Temperature: &temp, MaxTokens: &maxTokens})
	require.NoError(t, err)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.7, *got.Temperature, 1e-9)
	require.NotNil(t, got.MaxTokens)
	assert.Equal(t, 800, *got.MaxTokens)
	assert.Nil(t, got.TopP)
}

func TestCompleteConfigDefaultsWhenNoParams(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	cfg := newTestConfig(server.URL)
	cfg.Generation.Temperature = 0.3
	cfg.Generation.MaxTokens = 1024
	c := NewClient(cfg)
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	require.NoError(t, err)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.3, *got.Temperature, 1e-9)
	require.NotNil(t, got.MaxTokens)
	assert.Equal(t, 1024, *got.MaxTokens)
}

func TestCompleteErrorOnNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"overloaded"}`))
	}))
	defer server.Close()

	c := NewClient(newTestConfig(server.URL))
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-200")
}

func TestCompleteErrorOnEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	c := NewClient(newTestConfig(server.URL))
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}
