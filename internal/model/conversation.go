// Package model 包含了应用的数据模型定义。
package model

import "time"

// ChatTurn 代表存储在 Redis 中的单条对话消息。
// TokenCount 在写入时计算并缓存，供历史预算淘汰使用。
type ChatTurn struct {
	Role       string    `json:"role"` // "user" 或 "assistant"
	Content    string    `json:"content"`
	TokenCount int       `json:"tokenCount"`
	Timestamp  time.Time `json:"timestamp"`
}

// SessionHistoryDTO 是返回给前端的会话历史结构。
type SessionHistoryDTO struct {
	SessionID string     `json:"sessionId"`
	Turns     []ChatTurn `json:"turns"`
}

// AnswerDTO 是一次问答的完整结果：答案、引用以及（可能新建的）会话 ID。
type AnswerDTO struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	SessionID string     `json:"sessionId"`
}
