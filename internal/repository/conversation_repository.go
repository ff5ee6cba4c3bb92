// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"xiaowen-go/internal/model"
)

// ConversationRepository 定义了会话历史记录的操作接口。
// 历史整体以 JSON 数组存储，读写都是整份替换；按 key 的互斥由上层保证。
type ConversationRepository interface {
	GetTurns(ctx context.Context, sessionID string) ([]model.ChatTurn, error)
	SaveTurns(ctx context.Context, sessionID string, turns []model.ChatTurn) error
	Delete(ctx context.Context, sessionID string) error
}

type redisConversationRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client, ttl time.Duration) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient, ttl: ttl}
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s:turns", sessionID)
}

// GetTurns 从 Redis 获取会话历史。会话不存在时返回空历史。
func (r *redisConversationRepository) GetTurns(ctx context.Context, sessionID string) ([]model.ChatTurn, error) {
	jsonData, err := r.redisClient.Get(ctx, sessionKey(sessionID)).Result()
	if err == redis.Nil {
		return []model.ChatTurn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	var turns []model.ChatTurn
	if err := json.Unmarshal([]byte(jsonData), &turns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation history: %w", err)
	}
	return turns, nil
}

// SaveTurns 在 Redis 中整份替换会话历史，并续期 TTL。
func (r *redisConversationRepository) SaveTurns(ctx context.Context, sessionID string, turns []model.ChatTurn) error {
	jsonData, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation history: %w", err)
	}
	if err := r.redisClient.Set(ctx, sessionKey(sessionID), jsonData, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set conversation history: %w", err)
	}
	return nil
}

// Delete 删除会话历史，幂等。
func (r *redisConversationRepository) Delete(ctx context.Context, sessionID string) error {
	return r.redisClient.Del(ctx, sessionKey(sessionID)).Err()
}
