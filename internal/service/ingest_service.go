// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"xiaowen-go/internal/errs"
	"xiaowen-go/internal/model"
	"xiaowen-go/internal/pipeline"
	"xiaowen-go/internal/repository"
	"xiaowen-go/pkg/log"
	"xiaowen-go/pkg/tasks"
)

// ObjectStager 在受理与摄取之间暂存原始文档字节。
type ObjectStager interface {
	PutObject(ctx context.Context, objectKey string, data []byte, contentType string) error
	RemoveObject(ctx context.Context, objectKey string) error
}

// TaskProducer 投递摄取任务。
type TaskProducer interface {
	ProduceIngestTask(ctx context.Context, task tasks.IngestTask) error
}

// VectorDeleter 清空一篇文档在向量索引中的全部片段，幂等。
type VectorDeleter interface {
	DeleteByFingerprint(ctx context.Context, fingerprint string) error
}

// IngestService 受理文档摄取请求：解析来源、按指纹去重、暂存字节并投递
// 摄取任务。摄取本身在消费者侧异步执行，调用方轮询状态直到终态。
type IngestService interface {
	SubmitURL(ctx context.Context, rawURL string) (*model.DocumentStatusDTO, error)
	SubmitUpload(ctx context.Context, fileName, contentType string, data []byte) (*model.DocumentStatusDTO, error)
	GetStatus(ctx context.Context, documentID string) (*model.DocumentStatusDTO, error)
	List(ctx context.Context, status string, page, pageSize int) ([]model.DocumentStatusDTO, int64, error)
	Delete(ctx context.Context, documentID string) error
}

type ingestService struct {
	resolver      *pipeline.Resolver
	stager        ObjectStager
	producer      TaskProducer
	docRepo       repository.DocumentRepository
	vectorDeleter VectorDeleter
}

// NewIngestService 创建一个新的 IngestService 实例。
func NewIngestService(
	resolver *pipeline.Resolver,
	stager ObjectStager,
	producer TaskProducer,
	docRepo repository.DocumentRepository,
	vectorDeleter VectorDeleter,
) IngestService {
	return &ingestService{
		resolver:      resolver,
		stager:        stager,
		producer:      producer,
		docRepo:       docRepo,
		vectorDeleter: vectorDeleter,
	}
}

// SubmitURL 受理一个 URL 来源的摄取请求。
func (s *ingestService) SubmitURL(ctx context.Context, rawURL string) (*model.DocumentStatusDTO, error) {
	resolved, err := s.resolver.ResolveURL(ctx, rawURL)
	if err != nil {
		return nil, errs.NewDownloadError("下载文档失败", err)
	}
	return s.accept(ctx, resolved)
}

// SubmitUpload 受理一个直接上传来源的摄取请求。
func (s *ingestService) SubmitUpload(ctx context.Context, fileName, contentType string, data []byte) (*model.DocumentStatusDTO, error) {
	resolved, err := s.resolver.ResolveUpload(fileName, contentType, data)
	if err != nil {
		return nil, errs.NewDownloadError("上传内容不可用", err)
	}
	return s.accept(ctx, resolved)
}

// accept 是两种来源共同的受理路径：指纹去重 → 暂存字节 → 建立记录 → 投递任务。
// 同一指纹已存在且未失败时直接复用既有文档，不触发第二次摄取；
// failed 终态的文档被视为操作者重新发起摄取。
func (s *ingestService) accept(ctx context.Context, resolved *pipeline.Resolved) (*model.DocumentStatusDTO, error) {
	existing, err := s.docRepo.GetByFingerprint(resolved.Fingerprint)
	switch {
	case err == nil && existing.Status != model.StatusFailed:
		log.Infof("[Ingest] 指纹命中已有文档, fingerprint: %s, status: %s", existing.Fingerprint, existing.Status)
		dto := model.NewDocumentStatusDTO(existing)
		return &dto, nil
	case err == nil:
		return s.reingest(ctx, existing, resolved)
	case !errors.Is(err, repository.ErrDocumentNotFound):
		return nil, fmt.Errorf("查询文档记录失败: %w", err)
	}

	objectKey := stagingKey(resolved)
	if err := s.stager.PutObject(ctx, objectKey, resolved.Data, resolved.ContentType); err != nil {
		return nil, fmt.Errorf("暂存文档字节失败: %w", err)
	}

	doc := &model.Document{
		Fingerprint: resolved.Fingerprint,
		SourceType:  resolved.SourceType,
		SourceURL:   resolved.SourceURL,
		FileName:    resolved.FileName,
		ObjectKey:   objectKey,
		ContentType: resolved.ContentType,
		SizeBytes:   int64(len(resolved.Data)),
		Status:      model.StatusRequested,
	}
	if err := s.docRepo.Create(doc); err != nil {
		// 并发提交同一份内容：另一个请求已经建立记录，复用它的摄取
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			winner, gErr := s.docRepo.GetByFingerprint(resolved.Fingerprint)
			if gErr != nil {
				return nil, fmt.Errorf("查询并发建立的文档记录失败: %w", gErr)
			}
			log.Infof("[Ingest] 并发提交合并到已有摄取, fingerprint: %s", winner.Fingerprint)
			dto := model.NewDocumentStatusDTO(winner)
			return &dto, nil
		}
		return nil, fmt.Errorf("建立文档记录失败: %w", err)
	}

	if err := s.enqueue(ctx, doc); err != nil {
		return nil, err
	}
	log.Infof("[Ingest] 受理摄取请求, fingerprint: %s, source: %s, file: %s",
		doc.Fingerprint, doc.SourceType, doc.FileName)
	dto := model.NewDocumentStatusDTO(doc)
	return &dto, nil
}

// reingest 对 failed 终态的文档重新发起摄取。
func (s *ingestService) reingest(ctx context.Context, doc *model.Document, resolved *pipeline.Resolved) (*model.DocumentStatusDTO, error) {
	if err := s.stager.PutObject(ctx, doc.ObjectKey, resolved.Data, resolved.ContentType); err != nil {
		return nil, fmt.Errorf("暂存文档字节失败: %w", err)
	}
	if err := s.docRepo.ResetForReingest(doc.Fingerprint); err != nil {
		return nil, fmt.Errorf("重置文档状态失败: %w", err)
	}
	doc.Status = model.StatusRequested
	doc.FailedStage = ""
	doc.FailureReason = ""
	if err := s.enqueue(ctx, doc); err != nil {
		return nil, err
	}
	log.Infof("[Ingest] 重新摄取失败文档, fingerprint: %s", doc.Fingerprint)
	dto := model.NewDocumentStatusDTO(doc)
	return &dto, nil
}

// enqueue 投递摄取任务。投递失败时把文档记为 failed，调用方可重新提交。
func (s *ingestService) enqueue(ctx context.Context, doc *model.Document) error {
	task := tasks.IngestTask{
		Fingerprint: doc.Fingerprint,
		SourceType:  doc.SourceType,
		SourceURL:   doc.SourceURL,
		ObjectKey:   doc.ObjectKey,
		FileName:    doc.FileName,
		ContentType: doc.ContentType,
	}
	if err := s.producer.ProduceIngestTask(ctx, task); err != nil {
		log.Errorf("[Ingest] 投递摄取任务失败, fingerprint: %s, error: %v", doc.Fingerprint, err)
		if mErr := s.docRepo.MarkFailed(doc.Fingerprint, model.StatusRequested, "摄取任务投递失败"); mErr != nil {
			log.Errorf("[Ingest] 记录投递失败状态失败: %v", mErr)
		}
		return fmt.Errorf("投递摄取任务失败: %w", err)
	}
	return nil
}

// GetStatus 返回文档的当前摄取状态。
func (s *ingestService) GetStatus(ctx context.Context, documentID string) (*model.DocumentStatusDTO, error) {
	doc, err := s.docRepo.GetByFingerprint(documentID)
	if err != nil {
		return nil, err
	}
	dto := model.NewDocumentStatusDTO(doc)
	return &dto, nil
}

// List 分页列出文档。
func (s *ingestService) List(ctx context.Context, status string, page, pageSize int) ([]model.DocumentStatusDTO, int64, error) {
	docs, total, err := s.docRepo.List(status, page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("查询文档列表失败: %w", err)
	}
	dtos := make([]model.DocumentStatusDTO, len(docs))
	for i := range docs {
		dtos[i] = model.NewDocumentStatusDTO(&docs[i])
	}
	return dtos, total, nil
}

// Delete 删除文档：向量索引、片段与文档记录、暂存对象，幂等。
func (s *ingestService) Delete(ctx context.Context, documentID string) error {
	doc, err := s.docRepo.GetByFingerprint(documentID)
	if errors.Is(err, repository.ErrDocumentNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("查询文档记录失败: %w", err)
	}

	if err := s.vectorDeleter.DeleteByFingerprint(ctx, documentID); err != nil {
		return fmt.Errorf("清空向量索引失败: %w", err)
	}
	if doc.ObjectKey != "" {
		if err := s.stager.RemoveObject(ctx, doc.ObjectKey); err != nil {
			// 暂存对象清理失败不阻塞删除，留给对象存储的生命周期策略兜底
			log.Warnf("[Ingest] 删除暂存对象失败, key: %s, error: %v", doc.ObjectKey, err)
		}
	}
	if err := s.docRepo.Delete(documentID); err != nil {
		return fmt.Errorf("删除文档记录失败: %w", err)
	}
	log.Infof("[Ingest] 文档已删除, fingerprint: %s", documentID)
	return nil
}

// stagingKey 返回原始字节在对象存储中的暂存键。
func stagingKey(resolved *pipeline.Resolved) string {
	name := resolved.FileName
	if name == "" {
		name = "document.bin"
	}
	return fmt.Sprintf("documents/%s/%s", resolved.Fingerprint, name)
}
