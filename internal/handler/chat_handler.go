package handler

import (
	"github.com/gin-gonic/gin"

	"xiaowen-go/internal/service"
	"xiaowen-go/pkg/log"
)

// ChatHandler 负责问答相关的 API 请求。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler 实例。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

type askRequest struct {
	DocumentID string `json:"documentId" binding:"required"`
	Question   string `json:"question" binding:"required"`
	SessionID  string `json:"sessionId"`
}

// Ask 回答针对一篇文档的问题。sessionId 缺省时新建会话并随结果返回。
func (h *ChatHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "缺少 documentId 或 question 字段")
		return
	}

	answer, err := h.chatService.Ask(c.Request.Context(), req.DocumentID, req.Question, req.SessionID)
	if err != nil {
		log.Warnf("Ask: 问答失败, document: %s, error: %v", req.DocumentID, err)
		respondError(c, err)
		return
	}
	respondOK(c, "问答成功", answer)
}
