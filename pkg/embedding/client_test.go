package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xiaowen-go/internal/config"
)

func newTestClient(baseURL string, maxRetries int) Client {
	return NewClient(config.EmbeddingConfig{
		APIKey:     "test-key",
		BaseURL:    baseURL,
		Model:      "test-embed-v1",
		Dimensions: 3,
		MaxRetries: maxRetries,
		Timeout:    5 * time.Second,
	})
}

func TestEmbedBatchPreservesInputOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-embed-v1", req.Model)
		assert.Equal(t, []string{"alpha", "beta"}, req.Input)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		// 故意乱序返回，客户端应按 index 还原顺序
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[
			{"index":1,"embedding":[0.4,0.5,0.6]},
			{"index":0,"embedding":[0.1,0.2,0.3]}
		]}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, 0)
	vectors, err := c.EmbedBatch(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vectors[0])
	assert.Equal(t, []float32{0.4, 0.5, 0.6}, vectors[1])
}

func TestEmbedRetriesOnTooManyRequests(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"data":[{"index":0,"embedding":[1,2,3]}]}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, 2)
	vector, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vector)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEmbedDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c := newTestClient(server.URL, 3)
	_, err := c.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx 应视为永久失败，不重试")
}

func TestEmbedFailsAfterRetriesExhausted(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(server.URL, 2)
	_, err := c.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "首次调用 + 2 次重试")
}

func TestEmbedRejectsDimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"index":0,"embedding":[1,2]}]}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, 0)
	_, err := c.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensions mismatch")
}

func TestEmbedHonorsFractionalRateLimit(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"data":[{"index":0,"embedding":[1,2,3]}]}`))
	}))
	defer server.Close()

	// 限速配置是每秒请求数，允许小数；突发额度取其整数部分，最低为 1
	c := NewClient(config.EmbeddingConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Model:      "test-embed-v1",
		Dimensions: 3,
		Timeout:    5 * time.Second,
		RateLimit:  0.5,
	})

	start := time.Now()
	_, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), "world")
	require.NoError(t, err)

	// 每秒 0.5 个请求：第二次调用需等待约 2s 的令牌
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.GreaterOrEqual(t, time.Since(start), 1500*time.Millisecond)
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	c := newTestClient("http://127.0.0.1:0", 0)
	vectors, err := c.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestModelVersionAndDimensions(t *testing.T) {
	c := newTestClient("http://127.0.0.1:0", 0)
	assert.Equal(t, "test-embed-v1", c.ModelVersion())
	assert.Equal(t, 3, c.Dimensions())
}
