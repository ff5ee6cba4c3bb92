package handler

import (
	"github.com/gin-gonic/gin"

	"xiaowen-go/internal/model"
	"xiaowen-go/internal/service"
	"xiaowen-go/pkg/log"
)

// QuizHandler 负责出题、判分与建议问题相关的 API 请求。
type QuizHandler struct {
	quizService service.QuizService
}

// NewQuizHandler 创建一个新的 QuizHandler 实例。
func NewQuizHandler(quizService service.QuizService) *QuizHandler {
	return &QuizHandler{quizService: quizService}
}

type quizRequest struct {
	Count      int    `json:"count"`
	Difficulty string `json:"difficulty"` // easy / medium / hard，缺省混合
}

// Generate 基于文档内容生成选择题。
func (h *QuizHandler) Generate(c *gin.Context) {
	var req quizRequest
	_ = c.ShouldBindJSON(&req)

	dto, err := h.quizService.Generate(c.Request.Context(), c.Param("id"), req.Count, req.Difficulty)
	if err != nil {
		log.Warnf("Generate: 出题失败, document: %s, error: %v", c.Param("id"), err)
		respondError(c, err)
		return
	}
	respondOK(c, "出题成功", dto)
}

type validateRequest struct {
	Questions []model.QuizQuestion `json:"questions" binding:"required"`
	Answers   []string             `json:"answers" binding:"required"`
}

// Validate 对一组作答判分。
func (h *QuizHandler) Validate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "缺少 questions 或 answers 字段")
		return
	}

	results, score := h.quizService.Validate(req.Questions, req.Answers)
	respondOK(c, "判分完成", gin.H{
		"results": results,
		"score":   score,
	})
}

// Suggestions 返回基于文档开头生成的建议学习问题。
func (h *QuizHandler) Suggestions(c *gin.Context) {
	questions, err := h.quizService.Suggest(c.Request.Context(), c.Param("id"))
	if err != nil {
		log.Warnf("Suggestions: 生成建议问题失败, document: %s, error: %v", c.Param("id"), err)
		respondError(c, err)
		return
	}
	respondOK(c, "建议问题生成成功", gin.H{"questions": questions})
}
