// Package embedding provides a client for interacting with embedding models.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"xiaowen-go/internal/config"
	"xiaowen-go/pkg/log"
)

// Client defines the interface for an embedding client.
type Client interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// ModelVersion identifies the model producing the vectors.
	ModelVersion() string
	// Dimensions is the fixed output dimensionality of the model.
	Dimensions() int
}

type openAICompatibleClient struct {
	cfg     config.EmbeddingConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new embedding client based on the config.
func NewClient(cfg config.EmbeddingConfig) Client {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := int(cfg.RateLimit)
	if burst <= 0 {
		burst = 1
	}
	return &openAICompatibleClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *openAICompatibleClient) ModelVersion() string {
	return c.cfg.Model
}

func (c *openAICompatibleClient) Dimensions() int {
	return c.cfg.Dimensions
}

// Embed calls the OpenAI-compatible API to get the vector for a given text.
func (c *openAICompatibleClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch calls the OpenAI-compatible API with a batch of texts.
// Transient failures (429, 5xx, network errors) are retried with
// exponential backoff up to MaxRetries; 4xx responses are permanent.
func (c *openAICompatibleClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	log.Infof("[EmbeddingClient] 开始调用 Embedding API, model: %s, batch: %d", c.cfg.Model, len(texts))

	reqBody := embeddingRequest{
		Model:      c.cfg.Model,
		Input:      texts,
		Dimensions: c.cfg.Dimensions,
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt, lastErr); err != nil {
				return nil, err
			}
			log.Warnf("[EmbeddingClient] 第 %d 次重试 Embedding API 调用", attempt)
		}

		vectors, err := c.doRequest(ctx, reqBytes, len(texts))
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	log.Errorf("[EmbeddingClient] Embedding API 调用在 %d 次重试后仍然失败: %v", c.cfg.MaxRetries, lastErr)
	return nil, fmt.Errorf("embedding api failed after %d retries: %w", c.cfg.MaxRetries, lastErr)
}

// doRequest performs a single API call and validates the response shape.
func (c *openAICompatibleClient) doRequest(ctx context.Context, body []byte, want int) ([][]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &transientError{err: fmt.Errorf("failed to call embedding api: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		apiErr := fmt.Errorf("embedding api returned non-200 status: %s", resp.Status)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, &transientError{err: apiErr, retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
		}
		return nil, apiErr
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(embeddingResp.Data) != want {
		return nil, fmt.Errorf("embedding api returned %d vectors, want %d", len(embeddingResp.Data), want)
	}

	// 按 index 字段回填，保证输出顺序与输入一致
	vectors := make([][]float32, want)
	for _, item := range embeddingResp.Data {
		if item.Index < 0 || item.Index >= want {
			return nil, fmt.Errorf("embedding api returned out-of-range index %d", item.Index)
		}
		if len(item.Embedding) == 0 {
			return nil, fmt.Errorf("received empty embedding from api")
		}
		if c.cfg.Dimensions > 0 && len(item.Embedding) != c.cfg.Dimensions {
			return nil, fmt.Errorf("embedding dimensions mismatch: got %d, want %d", len(item.Embedding), c.cfg.Dimensions)
		}
		vectors[item.Index] = item.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("embedding api response missing index %d", i)
		}
	}
	return vectors, nil
}

// transientError marks failures worth retrying.
type transientError struct {
	err        error
	retryAfter time.Duration
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	_, ok := err.(*transientError)
	return ok
}

// sleepBackoff waits 200ms << (attempt-1) capped at 5s, or the server's
// Retry-After when it asks for longer.
func sleepBackoff(ctx context.Context, attempt int, lastErr error) error {
	delay := 200 * time.Millisecond << (attempt - 1)
	if delay > 5*time.Second {
		delay = 5 * time.Second
	}
	if te, ok := lastErr.(*transientError); ok && te.retryAfter > delay {
		delay = te.retryAfter
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
