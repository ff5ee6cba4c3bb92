package handler

import (
	"io"
	"strconv"

	"github.com/gin-gonic/gin"

	"xiaowen-go/internal/service"
	"xiaowen-go/pkg/log"
)

// DocumentHandler 负责文档摄取与检索预览相关的 API 请求。
type DocumentHandler struct {
	ingestService    service.IngestService
	retrievalService service.RetrievalService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(ingestService service.IngestService, retrievalService service.RetrievalService) *DocumentHandler {
	return &DocumentHandler{
		ingestService:    ingestService,
		retrievalService: retrievalService,
	}
}

type submitURLRequest struct {
	URL string `json:"url" binding:"required"`
}

// Submit 受理一个摄取请求：multipart 的 file 字段或 JSON 的 url 字段。
// 返回文档 ID（内容指纹）与当前状态，调用方轮询状态直到终态。
func (h *DocumentHandler) Submit(c *gin.Context) {
	if fileHeader, err := c.FormFile("file"); err == nil {
		file, err := fileHeader.Open()
		if err != nil {
			respondBadRequest(c, "无法读取上传文件")
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			respondBadRequest(c, "无法读取上传文件")
			return
		}

		dto, err := h.ingestService.SubmitUpload(c.Request.Context(),
			fileHeader.Filename, fileHeader.Header.Get("Content-Type"), data)
		if err != nil {
			log.Warnf("Submit: 上传受理失败, file: %s, error: %v", fileHeader.Filename, err)
			respondError(c, err)
			return
		}
		respondOK(c, "摄取请求已受理", dto)
		return
	}

	var req submitURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "请提供 file 字段或 url 字段")
		return
	}
	dto, err := h.ingestService.SubmitURL(c.Request.Context(), req.URL)
	if err != nil {
		log.Warnf("Submit: URL 受理失败, url: %s, error: %v", req.URL, err)
		respondError(c, err)
		return
	}
	respondOK(c, "摄取请求已受理", dto)
}

// GetStatus 返回一篇文档的摄取状态。
func (h *DocumentHandler) GetStatus(c *gin.Context) {
	dto, err := h.ingestService.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "获取文档状态成功", dto)
}

// List 分页列出文档，支持按状态过滤。
func (h *DocumentHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	status := c.Query("status")

	docs, total, err := h.ingestService.List(c.Request.Context(), status, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "获取文档列表成功", gin.H{
		"documents": docs,
		"total":     total,
		"page":      page,
		"pageSize":  pageSize,
	})
}

// Delete 删除一篇文档及其全部片段与向量，幂等。
func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.ingestService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		log.Error("Delete: 删除文档失败", err)
		respondError(c, err)
		return
	}
	respondOK(c, "文档删除成功", nil)
}

type searchRequest struct {
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"topK"`
}

// Search 检索预览：返回原始的排序命中，不做答案生成。
func (h *DocumentHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "缺少 question 字段")
		return
	}

	hits, err := h.retrievalService.Search(c.Request.Context(), c.Param("id"), req.Question, req.TopK)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "检索成功", gin.H{"hits": hits})
}
