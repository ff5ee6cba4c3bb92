package repository

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// EmbeddingCache 缓存文本向量。
// 缓存键由文本指纹与模型版本共同决定：同一段文本换了模型版本就是未命中，
// 绝不会把旧模型的向量当作新模型的结果返回。
type EmbeddingCache interface {
	Get(ctx context.Context, text, modelVersion string) ([]float32, bool, error)
	Put(ctx context.Context, text, modelVersion string, vector []float32) error
}

type redisEmbeddingCache struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewEmbeddingCache 创建一个基于 Redis 的向量缓存。
func NewEmbeddingCache(redisClient *redis.Client, ttl time.Duration) EmbeddingCache {
	return &redisEmbeddingCache{redisClient: redisClient, ttl: ttl}
}

func embeddingKey(text, modelVersion string) string {
	sum := md5.Sum([]byte(text))
	return fmt.Sprintf("embed:%s:%s", modelVersion, hex.EncodeToString(sum[:]))
}

// Get 查询缓存。未命中返回 (nil, false, nil)；Redis 故障返回错误，由调用方决定降级。
func (c *redisEmbeddingCache) Get(ctx context.Context, text, modelVersion string) ([]float32, bool, error) {
	jsonData, err := c.redisClient.Get(ctx, embeddingKey(text, modelVersion)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached embedding: %w", err)
	}
	var vector []float32
	if err := json.Unmarshal([]byte(jsonData), &vector); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached embedding: %w", err)
	}
	return vector, true, nil
}

// Put 写入缓存并设置 TTL。
func (c *redisEmbeddingCache) Put(ctx context.Context, text, modelVersion string, vector []float32) error {
	jsonData, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}
	if err := c.redisClient.Set(ctx, embeddingKey(text, modelVersion), jsonData, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache embedding: %w", err)
	}
	return nil
}
