package handler

import (
	"github.com/gin-gonic/gin"

	"xiaowen-go/internal/service"
	"xiaowen-go/pkg/log"
)

// SummaryHandler 负责文档摘要相关的 API 请求。
type SummaryHandler struct {
	summaryService service.SummaryService
}

// NewSummaryHandler 创建一个新的 SummaryHandler 实例。
func NewSummaryHandler(summaryService service.SummaryService) *SummaryHandler {
	return &SummaryHandler{summaryService: summaryService}
}

type summaryRequest struct {
	Kind string `json:"kind"` // short / detailed / both，缺省 short
}

// Summarize 生成文档摘要。kind 为 both 时两种摘要并发生成。
func (h *SummaryHandler) Summarize(c *gin.Context) {
	var req summaryRequest
	// 请求体可以为空，等价于 {"kind": "short"}
	_ = c.ShouldBindJSON(&req)

	dto, err := h.summaryService.Summarize(c.Request.Context(), c.Param("id"), req.Kind)
	if err != nil {
		log.Warnf("Summarize: 摘要生成失败, document: %s, error: %v", c.Param("id"), err)
		respondError(c, err)
		return
	}
	respondOK(c, "摘要生成成功", dto)
}
