package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册全部 API 路由。
func RegisterRoutes(
	r *gin.Engine,
	documentHandler *DocumentHandler,
	chatHandler *ChatHandler,
	sessionHandler *SessionHandler,
	summaryHandler *SummaryHandler,
	quizHandler *QuizHandler,
) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := r.Group("/api/v1")
	{
		documents := apiV1.Group("/documents")
		{
			documents.POST("", documentHandler.Submit)
			documents.GET("", documentHandler.List)
			documents.GET("/:id", documentHandler.GetStatus)
			documents.DELETE("/:id", documentHandler.Delete)
			documents.POST("/:id/search", documentHandler.Search)
			documents.POST("/:id/summary", summaryHandler.Summarize)
			documents.POST("/:id/quiz", quizHandler.Generate)
			documents.GET("/:id/suggestions", quizHandler.Suggestions)
		}

		apiV1.POST("/chat/ask", chatHandler.Ask)

		sessions := apiV1.Group("/sessions")
		{
			sessions.GET("/:id", sessionHandler.GetHistory)
			sessions.DELETE("/:id", sessionHandler.Reset)
		}

		apiV1.POST("/quiz/validate", quizHandler.Validate)
	}
}
