package service

import (
	"context"
	"fmt"
	"time"

	"xiaowen-go/internal/config"
	"xiaowen-go/internal/model"
	"xiaowen-go/internal/repository"
	"xiaowen-go/pkg/log"
	"xiaowen-go/pkg/syncx"
	"xiaowen-go/pkg/tokenizer"
)

// ConversationService 维护每个会话的有序对话历史。
// 同一会话的追加串行执行（按 session id 互斥），不同会话互不阻塞；
// 每次追加后按预算淘汰最老的轮次：总 token 数不超过 token 预算，
// 轮次数不超过上限。
type ConversationService interface {
	Append(ctx context.Context, sessionID string, turns ...model.ChatTurn) error
	History(ctx context.Context, sessionID string) ([]model.ChatTurn, error)
	Reset(ctx context.Context, sessionID string) error
}

type conversationService struct {
	repo        repository.ConversationRepository
	locks       *syncx.KeyedMutex
	tokenBudget int
	maxTurns    int
}

// NewConversationService 创建一个新的 ConversationService 实例。
func NewConversationService(repo repository.ConversationRepository, cfg config.ChatConfig) ConversationService {
	return &conversationService{
		repo:        repo,
		locks:       syncx.NewKeyedMutex(),
		tokenBudget: cfg.HistoryTokenBudget,
		maxTurns:    cfg.HistoryMaxTurns,
	}
}

// Append 追加若干轮次并执行预算淘汰。
func (s *conversationService) Append(ctx context.Context, sessionID string, turns ...model.ChatTurn) error {
	if len(turns) == 0 {
		return nil
	}
	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	history, err := s.repo.GetTurns(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("读取会话历史失败: %w", err)
	}

	now := time.Now()
	for _, turn := range turns {
		if turn.TokenCount == 0 {
			turn.TokenCount = tokenizer.Count(turn.Content)
		}
		if turn.Timestamp.IsZero() {
			turn.Timestamp = now
		}
		history = append(history, turn)
	}

	history = s.evict(history)
	if err := s.repo.SaveTurns(ctx, sessionID, history); err != nil {
		return fmt.Errorf("保存会话历史失败: %w", err)
	}
	return nil
}

// evict 从最老的轮次开始淘汰，直到历史回到预算之内。
func (s *conversationService) evict(history []model.ChatTurn) []model.ChatTurn {
	total := 0
	for _, turn := range history {
		total += turn.TokenCount
	}
	evicted := 0
	for len(history) > 0 && (total > s.tokenBudget || len(history) > s.maxTurns) {
		total -= history[0].TokenCount
		history = history[1:]
		evicted++
	}
	if evicted > 0 {
		log.Infof("[Conversation] 历史超出预算，淘汰最早的 %d 轮", evicted)
	}
	return history
}

// History 返回会话历史，最老的在前。
func (s *conversationService) History(ctx context.Context, sessionID string) ([]model.ChatTurn, error) {
	turns, err := s.repo.GetTurns(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("读取会话历史失败: %w", err)
	}
	return turns, nil
}

// Reset 清空会话历史，幂等。
func (s *conversationService) Reset(ctx context.Context, sessionID string) error {
	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)
	return s.repo.Delete(ctx, sessionID)
}
