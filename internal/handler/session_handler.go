package handler

import (
	"github.com/gin-gonic/gin"

	"xiaowen-go/internal/model"
	"xiaowen-go/internal/service"
)

// SessionHandler 负责会话历史相关的 API 请求。
type SessionHandler struct {
	conversationService service.ConversationService
}

// NewSessionHandler 创建一个新的 SessionHandler 实例。
func NewSessionHandler(conversationService service.ConversationService) *SessionHandler {
	return &SessionHandler{conversationService: conversationService}
}

// GetHistory 返回会话历史，最老的轮次在前。未知会话返回空历史。
func (h *SessionHandler) GetHistory(c *gin.Context) {
	sessionID := c.Param("id")
	turns, err := h.conversationService.History(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "获取会话历史成功", model.SessionHistoryDTO{
		SessionID: sessionID,
		Turns:     turns,
	})
}

// Reset 清空会话历史，幂等。
func (h *SessionHandler) Reset(c *gin.Context) {
	if err := h.conversationService.Reset(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "会话已重置", nil)
}
