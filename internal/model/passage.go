package model

import "fmt"

// Passage 对应 passages 表，是一篇文档中一个有界且可重叠的文本片段，
// 也是向量化与检索的基本单位。Ordinal 在文档内从 0 起连续递增；
// StartOffset 是片段在整篇抽取文本中的字节偏移，OverlapTokens 记录与前
// 一个片段共享的 token 数，两者共同支持按序去重叠还原原文。
type Passage struct {
	ID            uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Fingerprint   string `gorm:"type:varchar(32);not null;index" json:"fingerprint"`
	Ordinal       int    `gorm:"not null" json:"ordinal"`
	PageStart     int    `gorm:"not null" json:"pageStart"`
	PageEnd       int    `gorm:"not null" json:"pageEnd"`
	StartOffset   int    `gorm:"not null" json:"startOffset"`
	TokenCount    int    `gorm:"not null" json:"tokenCount"`
	OverlapTokens int    `gorm:"not null;default:0" json:"overlapTokens"`
	Text          string `gorm:"type:mediumtext" json:"text"`
}

func (Passage) TableName() string {
	return "passages"
}

// PassageID 返回片段在向量索引中的文档 ID：<指纹>-<序号>。
func (p *Passage) PassageID() string {
	return fmt.Sprintf("%s-%d", p.Fingerprint, p.Ordinal)
}

// EsPassage 代表存储在 Elasticsearch 中的片段文档，
// 在 Passage 之上附加向量与产生该向量的模型版本。
type EsPassage struct {
	PassageID     string    `json:"passage_id"`
	Fingerprint   string    `json:"fingerprint"`
	Ordinal       int       `json:"ordinal"`
	PageStart     int       `json:"page_start"`
	PageEnd       int       `json:"page_end"`
	StartOffset   int       `json:"start_offset"`
	TokenCount    int       `json:"token_count"`
	OverlapTokens int       `json:"overlap_tokens"`
	TextContent   string    `json:"text_content"`
	Vector        []float32 `json:"vector"`
	ModelVersion  string    `json:"model_version"`
}

// SearchHit 是向量检索返回的单条命中：片段引用加上归一化到 [0,1] 的余弦得分。
type SearchHit struct {
	Fingerprint string  `json:"fingerprint"`
	Ordinal     int     `json:"ordinal"`
	PageStart   int     `json:"pageStart"`
	PageEnd     int     `json:"pageEnd"`
	TokenCount  int     `json:"tokenCount"`
	Text        string  `json:"text"`
	Score       float64 `json:"score"`
}

// Citation 标注答案实际引用的片段及其页码范围。
type Citation struct {
	DocumentID string  `json:"documentId"`
	Ordinal    int     `json:"ordinal"`
	PageStart  int     `json:"pageStart"`
	PageEnd    int     `json:"pageEnd"`
	Score      float64 `json:"score"`
}
