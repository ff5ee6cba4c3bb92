// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"errors"

	"gorm.io/gorm"

	"xiaowen-go/internal/model"
)

// ErrDocumentNotFound 表示指纹对应的文档不存在。
var ErrDocumentNotFound = errors.New("document not found")

// DocumentRepository 接口定义了文档记录的数据持久化操作。
type DocumentRepository interface {
	Create(doc *model.Document) error
	GetByFingerprint(fingerprint string) (*model.Document, error)
	UpdateStatus(fingerprint, status string) error
	MarkFailed(fingerprint, stage, reason string) error
	MarkReady(fingerprint string, pageCount, passageCount int, modelVersion string, vectorDims int) error
	ResetForReingest(fingerprint string) error
	Delete(fingerprint string) error
	List(status string, page, pageSize int) ([]model.Document, int64, error)
}

// documentRepository 是 DocumentRepository 接口的 GORM 实现。
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create 插入一条文档记录。指纹唯一索引冲突时返回 gorm.ErrDuplicatedKey，
// 受理侧借此识别并发重复提交。
func (r *documentRepository) Create(doc *model.Document) error {
	return r.db.Create(doc).Error
}

// GetByFingerprint 按指纹检索文档记录。
func (r *documentRepository) GetByFingerprint(fingerprint string) (*model.Document, error) {
	var doc model.Document
	err := r.db.Where("fingerprint = ?", fingerprint).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// UpdateStatus 推进文档状态。终态由 MarkFailed / MarkReady 负责写入。
func (r *documentRepository) UpdateStatus(fingerprint, status string) error {
	return r.db.Model(&model.Document{}).
		Where("fingerprint = ?", fingerprint).
		Update("status", status).Error
}

// MarkFailed 将文档置为 failed 终态，并记录失败阶段与原因。
func (r *documentRepository) MarkFailed(fingerprint, stage, reason string) error {
	if len(reason) > 512 {
		reason = reason[:512]
	}
	return r.db.Model(&model.Document{}).
		Where("fingerprint = ?", fingerprint).
		Updates(map[string]interface{}{
			"status":         model.StatusFailed,
			"failed_stage":   stage,
			"failure_reason": reason,
		}).Error
}

// MarkReady 将文档置为 ready 终态，同时落盘页数、片段数与向量模型信息。
// 状态翻到 ready 之前，该文档的任何片段对检索都不可见。
func (r *documentRepository) MarkReady(fingerprint string, pageCount, passageCount int, modelVersion string, vectorDims int) error {
	return r.db.Model(&model.Document{}).
		Where("fingerprint = ?", fingerprint).
		Updates(map[string]interface{}{
			"status":         model.StatusReady,
			"page_count":     pageCount,
			"passage_count":  passageCount,
			"model_version":  modelVersion,
			"vector_dims":    vectorDims,
			"failed_stage":   "",
			"failure_reason": "",
		}).Error
}

// ResetForReingest 把 failed 终态的文档拉回 requested，清空失败信息，
// 供操作者重新发起摄取。
func (r *documentRepository) ResetForReingest(fingerprint string) error {
	return r.db.Model(&model.Document{}).
		Where("fingerprint = ?", fingerprint).
		Updates(map[string]interface{}{
			"status":         model.StatusRequested,
			"failed_stage":   "",
			"failure_reason": "",
		}).Error
}

// Delete 删除文档记录及其全部片段记录。
func (r *documentRepository) Delete(fingerprint string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("fingerprint = ?", fingerprint).Delete(&model.Passage{}).Error; err != nil {
			return err
		}
		return tx.Where("fingerprint = ?", fingerprint).Delete(&model.Document{}).Error
	})
}

// List 分页列出文档，status 非空时按状态过滤。
func (r *documentRepository) List(status string, page, pageSize int) ([]model.Document, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := r.db.Model(&model.Document{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var docs []model.Document
	err := query.Order("created_at desc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&docs).Error
	return docs, total, err
}
