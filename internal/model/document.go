// Package model 包含了应用的数据模型定义。
package model

import "time"

// 文档摄取状态。状态机严格按序推进：
// requested → downloading → extracting → chunking → embedding → ready，
// 任一非终态都可进入 failed；ready 与 failed 为终态，此后仅显式删除可移除文档。
const (
	StatusRequested   = "requested"
	StatusDownloading = "downloading"
	StatusExtracting  = "extracting"
	StatusChunking    = "chunking"
	StatusEmbedding   = "embedding"
	StatusReady       = "ready"
	StatusFailed      = "failed"
)

// 文档来源类型。
const (
	SourceTypeURL    = "url"
	SourceTypeUpload = "upload"
)

// IsTerminalStatus 判断状态是否为终态。
func IsTerminalStatus(status string) bool {
	return status == StatusReady || status == StatusFailed
}

// Document 对应 documents 表，记录一篇文档的来源、指纹与摄取状态。
// Fingerprint 是原始字节的 MD5，相同内容产生相同指纹，用于去重与合并摄取。
type Document struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Fingerprint   string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"fingerprint"`
	SourceType    string    `gorm:"type:varchar(10);not null" json:"sourceType"`
	SourceURL     string    `gorm:"type:varchar(1024)" json:"sourceUrl"`
	FileName      string    `gorm:"type:varchar(255)" json:"fileName"`
	ObjectKey     string    `gorm:"type:varchar(255)" json:"objectKey"`
	ContentType   string    `gorm:"type:varchar(100)" json:"contentType"`
	SizeBytes     int64     `gorm:"not null" json:"sizeBytes"`
	PageCount     int       `gorm:"not null;default:0" json:"pageCount"`
	PassageCount  int       `gorm:"not null;default:0" json:"passageCount"`
	ModelVersion  string    `gorm:"type:varchar(64)" json:"modelVersion"`
	VectorDims    int       `gorm:"not null;default:0" json:"vectorDims"`
	Status        string    `gorm:"type:varchar(16);not null;index" json:"status"`
	FailedStage   string    `gorm:"type:varchar(16)" json:"failedStage"`
	FailureReason string    `gorm:"type:varchar(512)" json:"failureReason"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"-"`
}

func (Document) TableName() string {
	return "documents"
}

// DocumentStatusDTO 是返回给前端的文档状态结构。
type DocumentStatusDTO struct {
	DocumentID    string    `json:"documentId"`
	SourceType    string    `json:"sourceType"`
	SourceURL     string    `json:"sourceUrl,omitempty"`
	FileName      string    `json:"fileName,omitempty"`
	SizeBytes     int64     `json:"sizeBytes"`
	PageCount     int       `json:"pageCount"`
	PassageCount  int       `json:"passageCount"`
	ModelVersion  string    `json:"modelVersion,omitempty"`
	Status        string    `json:"status"`
	FailedStage   string    `json:"failedStage,omitempty"`
	FailureReason string    `json:"failureReason,omitempty"`
	CreatedAt     LocalTime `json:"createdAt"`
	UpdatedAt     LocalTime `json:"updatedAt"`
}

// NewDocumentStatusDTO 由 Document 构造状态 DTO，对外以指纹作为文档 ID。
func NewDocumentStatusDTO(doc *Document) DocumentStatusDTO {
	return DocumentStatusDTO{
		DocumentID:    doc.Fingerprint,
		SourceType:    doc.SourceType,
		SourceURL:     doc.SourceURL,
		FileName:      doc.FileName,
		SizeBytes:     doc.SizeBytes,
		PageCount:     doc.PageCount,
		PassageCount:  doc.PassageCount,
		ModelVersion:  doc.ModelVersion,
		Status:        doc.Status,
		FailedStage:   doc.FailedStage,
		FailureReason: doc.FailureReason,
		CreatedAt:     LocalTime(doc.CreatedAt),
		UpdatedAt:     LocalTime(doc.UpdatedAt),
	}
}
