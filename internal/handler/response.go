// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"xiaowen-go/internal/errs"
	"xiaowen-go/internal/repository"
	"xiaowen-go/pkg/log"
)

// API 错误码。0 表示成功，错误类别映射到稳定的非零码。
const (
	CodeOK         = 0
	CodeBadRequest = 1001
	CodeInternal   = 1500
	CodeDownload   = 2001
	CodeExtraction = 2002
	CodeEmbedding  = 2003
	CodeRetrieval  = 2004
	CodeSynthesis  = 2005
)

// respondOK 按统一信封返回成功结果。
func respondOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    CodeOK,
		"message": message,
		"data":    data,
	})
}

// respondBadRequest 返回参数错误。
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    CodeBadRequest,
		"message": message,
	})
}

// respondError 把业务错误映射到信封。查询路径错误对服务非致命：
// 返回结构化的类别与消息，服务继续运行。
func respondError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, CodeInternal
	switch errs.KindOf(err) {
	case errs.KindDownload:
		status, code = http.StatusBadRequest, CodeDownload
	case errs.KindExtraction:
		status, code = http.StatusUnprocessableEntity, CodeExtraction
	case errs.KindEmbedding:
		status, code = http.StatusBadGateway, CodeEmbedding
	case errs.KindRetrieval:
		status, code = http.StatusConflict, CodeRetrieval
	case errs.KindSynthesis:
		status, code = http.StatusBadGateway, CodeSynthesis
	default:
		if errors.Is(err, repository.ErrDocumentNotFound) {
			status, code = http.StatusNotFound, CodeBadRequest
		} else {
			log.Error("未分类的请求处理错误", err)
		}
	}
	c.JSON(status, gin.H{
		"code":    code,
		"message": err.Error(),
	})
}
