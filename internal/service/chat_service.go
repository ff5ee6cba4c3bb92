package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"xiaowen-go/internal/config"
	"xiaowen-go/internal/errs"
	"xiaowen-go/internal/model"
	"xiaowen-go/pkg/llm"
	"xiaowen-go/pkg/log"
)

// 上下文包裹符与无结果占位，提示模型引用范围的边界。
const (
	refStart     = "<<REF>>"
	refEnd       = "<<END>>"
	noResultText = "（本轮无检索结果）"
)

// ChatService 协调一次完整的问答：检索上下文、加载历史、构造有据提示词、
// 调用大模型，并在成功后把问答对写回会话历史。
// 生成失败对服务非致命：错误返回给调用方，不影响文档状态与已有历史。
type ChatService interface {
	Ask(ctx context.Context, documentID, question, sessionID string) (*model.AnswerDTO, error)
}

type chatService struct {
	retrieval    RetrievalService
	conversation ConversationService
	llmClient    llm.Client
	cfg          config.ChatConfig
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	retrieval RetrievalService,
	conversation ConversationService,
	llmClient llm.Client,
	cfg config.ChatConfig,
) ChatService {
	return &chatService{
		retrieval:    retrieval,
		conversation: conversation,
		llmClient:    llmClient,
		cfg:          cfg,
	}
}

// Ask 回答针对一篇文档的问题。sessionID 为空时新建会话并随结果返回。
func (s *chatService) Ask(ctx context.Context, documentID, question, sessionID string) (*model.AnswerDTO, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("问题不能为空")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
		log.Infof("[Chat] 新建会话: %s", sessionID)
	}

	// 1. 检索上下文（文档必须 ready，状态闸门在检索服务里）
	retrieved, err := s.retrieval.Retrieve(ctx, documentID, question, s.cfg.TopK)
	if err != nil {
		return nil, err
	}

	// 2. 加载历史。历史读取失败降级为无历史作答，不阻塞本轮问答。
	history, err := s.conversation.History(ctx, sessionID)
	if err != nil {
		log.Errorf("[Chat] 读取会话历史失败, session: %s, error: %v", sessionID, err)
		history = nil
	}

	// 3. 构造消息并调用大模型
	messages := s.composeMessages(retrieved.ContextText, history, question)
	answer, err := s.llmClient.Complete(ctx, messages, nil)
	if err != nil {
		return nil, errs.NewSynthesisError("生成回答失败", err)
	}

	// 4. 成功后把问答对写回历史。历史写入失败只记录日志，答案照常返回。
	// 使用后台上下文：请求此刻已有结果，取消不应丢掉这轮历史。
	if err := s.conversation.Append(context.Background(), sessionID,
		model.ChatTurn{Role: "user", Content: question},
		model.ChatTurn{Role: "assistant", Content: answer},
	); err != nil {
		log.Errorf("[Chat] 保存会话历史失败, session: %s, error: %v", sessionID, err)
	}

	return &model.AnswerDTO{
		Answer:    answer,
		Citations: retrieved.Citations,
		SessionID: sessionID,
	}, nil
}

// composeMessages 组装 system 提示 + 历史轮次 + 本轮问题。
func (s *chatService) composeMessages(contextText string, history []model.ChatTurn, question string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: buildSystemMessage(contextText)})
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: question})
	return messages
}

// buildSystemMessage 构造有据回答的 system 提示：只依据给定片段作答，
// 片段不足以回答时明确说明。这是提示层面的约束，不是机械保证。
func buildSystemMessage(contextText string) string {
	var sb strings.Builder
	sb.WriteString("你是一名文档问答助手。回答用户问题时必须遵守以下规则：\n")
	sb.WriteString("1. 只依据下方 " + refStart + " 与 " + refEnd + " 之间的文档片段作答，不得使用片段之外的知识，不得编造。\n")
	sb.WriteString("2. 片段内容不足以回答问题时，明确回答“提供的文档内容不足以回答该问题”。\n")
	sb.WriteString("3. 回答保持简洁，引用某个片段时在句末标注其编号，如 [1]。\n\n")
	sb.WriteString(refStart)
	sb.WriteString("\n")
	if contextText != "" {
		sb.WriteString(contextText)
	} else {
		sb.WriteString(noResultText)
		sb.WriteString("\n")
	}
	sb.WriteString(refEnd)
	return sb.String()
}
