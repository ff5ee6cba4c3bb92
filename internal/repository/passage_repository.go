package repository

import (
	"gorm.io/gorm"

	"xiaowen-go/internal/model"
)

// PassageRepository 接口定义了片段记录的数据持久化操作。
// MySQL 中的片段是原文的权威副本，支撑摘要、出题等需要整篇文本的功能；
// Elasticsearch 中的副本只服务向量检索。
type PassageRepository interface {
	BatchCreate(passages []model.Passage) error
	ListByFingerprint(fingerprint string) ([]model.Passage, error)
	DeleteByFingerprint(fingerprint string) error
}

// passageRepository 是 PassageRepository 接口的 GORM 实现。
type passageRepository struct {
	db *gorm.DB
}

// NewPassageRepository 创建一个新的 PassageRepository 实例。
func NewPassageRepository(db *gorm.DB) PassageRepository {
	return &passageRepository{db: db}
}

// BatchCreate 批量写入片段，重建场景下先清空同指纹的旧片段。
func (r *passageRepository) BatchCreate(passages []model.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	fingerprint := passages[0].Fingerprint
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("fingerprint = ?", fingerprint).Delete(&model.Passage{}).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(passages, 100).Error
	})
}

// ListByFingerprint 按序号升序返回一篇文档的全部片段。
func (r *passageRepository) ListByFingerprint(fingerprint string) ([]model.Passage, error) {
	var passages []model.Passage
	err := r.db.Where("fingerprint = ?", fingerprint).Order("ordinal asc").Find(&passages).Error
	return passages, err
}

// DeleteByFingerprint 删除一篇文档的全部片段。
func (r *passageRepository) DeleteByFingerprint(fingerprint string) error {
	return r.db.Where("fingerprint = ?", fingerprint).Delete(&model.Passage{}).Error
}
