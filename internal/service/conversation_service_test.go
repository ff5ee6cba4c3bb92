package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xiaowen-go/internal/config"
	"xiaowen-go/internal/model"
)

func conversationCfg() config.ChatConfig {
	return config.ChatConfig{HistoryTokenBudget: 100, HistoryMaxTurns: 6}
}

func turn(role, content string, tokens int) model.ChatTurn {
	return model.ChatTurn{Role: role, Content: content, TokenCount: tokens}
}

func TestAppendKeepsOrder(t *testing.T) {
	svc := NewConversationService(newFakeConvRepo(), conversationCfg())
	ctx := context.Background()

	require.NoError(t, svc.Append(ctx, "s1",
		turn("user", "第一问", 10),
		turn("assistant", "第一答", 10)))
	require.NoError(t, svc.Append(ctx, "s1",
		turn("user", "第二问", 10),
		turn("assistant", "第二答", 10)))

	history, err := svc.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "第一问", history[0].Content)
	assert.Equal(t, "第二答", history[3].Content)
	// 角色交替保持追加时的顺序
	assert.Equal(t, []string{"user", "assistant", "user", "assistant"},
		[]string{history[0].Role, history[1].Role, history[2].Role, history[3].Role})
}

func TestAppendFillsTokenCountAndTimestamp(t *testing.T) {
	repo := newFakeConvRepo()
	svc := NewConversationService(repo, conversationCfg())

	require.NoError(t, svc.Append(context.Background(), "s1",
		model.ChatTurn{Role: "user", Content: "what is photosynthesis"}))

	history, _ := svc.History(context.Background(), "s1")
	require.Len(t, history, 1)
	assert.Equal(t, 3, history[0].TokenCount)
	assert.False(t, history[0].Timestamp.IsZero())
}

func TestAppendEvictsOldestOverTokenBudget(t *testing.T) {
	svc := NewConversationService(newFakeConvRepo(), conversationCfg())
	ctx := context.Background()

	// 预算 100：三轮各 40 token，第三轮进来时最老的一轮被淘汰
	require.NoError(t, svc.Append(ctx, "s1", turn("user", "甲", 40)))
	require.NoError(t, svc.Append(ctx, "s1", turn("assistant", "乙", 40)))
	require.NoError(t, svc.Append(ctx, "s1", turn("user", "丙", 40)))

	history, err := svc.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "乙", history[0].Content)
	assert.Equal(t, "丙", history[1].Content)
}

func TestAppendEvictsOverTurnCap(t *testing.T) {
	svc := NewConversationService(newFakeConvRepo(), conversationCfg())
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		require.NoError(t, svc.Append(ctx, "s1", turn("user", fmt.Sprintf("第%d轮", i), 1)))
	}

	history, err := svc.History(ctx, "s1")
	require.NoError(t, err)
	// 上限 6 轮，最早的 2 轮被淘汰
	require.Len(t, history, 6)
	assert.Equal(t, "第2轮", history[0].Content)
	assert.Equal(t, "第7轮", history[5].Content)
}

func TestSessionsAreIsolated(t *testing.T) {
	svc := NewConversationService(newFakeConvRepo(), conversationCfg())
	ctx := context.Background()

	require.NoError(t, svc.Append(ctx, "s1", turn("user", "会话一的问题", 5)))
	require.NoError(t, svc.Append(ctx, "s2", turn("user", "会话二的问题", 5)))

	h1, _ := svc.History(ctx, "s1")
	h2, _ := svc.History(ctx, "s2")
	require.Len(t, h1, 1)
	require.Len(t, h2, 1)
	assert.Equal(t, "会话一的问题", h1[0].Content)
	assert.Equal(t, "会话二的问题", h2[0].Content)
}

func TestConcurrentAppendsToSameSessionAllLand(t *testing.T) {
	cfg := config.ChatConfig{HistoryTokenBudget: 10000, HistoryMaxTurns: 100}
	svc := NewConversationService(newFakeConvRepo(), cfg)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, svc.Append(ctx, "s1", turn("user", fmt.Sprintf("并发第%d条", i), 1)))
		}(i)
	}
	wg.Wait()

	// 同会话追加按 session id 互斥，读改写不会丢消息
	history, err := svc.History(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, history, 20)
}

func TestResetClearsHistory(t *testing.T) {
	svc := NewConversationService(newFakeConvRepo(), conversationCfg())
	ctx := context.Background()

	require.NoError(t, svc.Append(ctx, "s1", turn("user", "问题", 5)))
	require.NoError(t, svc.Reset(ctx, "s1"))

	history, err := svc.History(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, history)

	// 幂等：重复清空不报错
	assert.NoError(t, svc.Reset(ctx, "s1"))
}
