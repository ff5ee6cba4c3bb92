package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"xiaowen-go/internal/config"
	"xiaowen-go/internal/errs"
	"xiaowen-go/internal/model"
	"xiaowen-go/internal/repository"
	"xiaowen-go/pkg/embedding"
	"xiaowen-go/pkg/log"
	"xiaowen-go/pkg/tokenizer"
)

// VectorSearcher 在一篇文档的命名空间内做向量近邻检索。
type VectorSearcher interface {
	SearchByVector(ctx context.Context, fingerprint string, queryVector []float32, topK int) ([]model.SearchHit, error)
}

// RetrievedContext 是检索引擎的产物：拼好的上下文文本与实际使用的片段引用。
type RetrievedContext struct {
	ContextText string
	Citations   []model.Citation
	Hits        []model.SearchHit
}

// RetrievalService 把一个问题变成有界的上下文窗口：向量化问题、在指定
// 文档内检索 top-k 片段、按排名拼接直到 token 预算用尽。
// 文档不在 ready 状态或向量模型版本不一致时拒绝检索。
type RetrievalService interface {
	// Search 返回原始的排序命中，供检索预览接口使用。
	Search(ctx context.Context, documentID, question string, topK int) ([]model.SearchHit, error)
	// Retrieve 返回按预算拼好的上下文与引用。
	Retrieve(ctx context.Context, documentID, question string, topK int) (*RetrievedContext, error)
}

type retrievalService struct {
	docRepo  repository.DocumentRepository
	embedder embedding.Client
	cache    repository.EmbeddingCache
	searcher VectorSearcher
	cfg      config.ChatConfig
}

// NewRetrievalService 创建一个新的 RetrievalService 实例。
func NewRetrievalService(
	docRepo repository.DocumentRepository,
	embedder embedding.Client,
	cache repository.EmbeddingCache,
	searcher VectorSearcher,
	cfg config.ChatConfig,
) RetrievalService {
	return &retrievalService{
		docRepo:  docRepo,
		embedder: embedder,
		cache:    cache,
		searcher: searcher,
		cfg:      cfg,
	}
}

// Search 在一篇 ready 文档内检索与问题最相似的片段。
func (s *retrievalService) Search(ctx context.Context, documentID, question string, topK int) ([]model.SearchHit, error) {
	if _, err := s.readyDocument(documentID); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	queryVector, err := s.embedQuestion(ctx, question)
	if err != nil {
		return nil, err
	}
	hits, err := s.searcher.SearchByVector(ctx, documentID, queryVector, topK)
	if err != nil {
		return nil, errs.NewRetrievalError("向量检索失败", err)
	}
	return hits, nil
}

// Retrieve 检索并拼装上下文窗口。命中按排名加入，token 预算将要超出时
// 丢弃排名更低的片段；低于最小分数阈值的命中不进入上下文。
func (s *retrievalService) Retrieve(ctx context.Context, documentID, question string, topK int) (*RetrievedContext, error) {
	hits, err := s.Search(ctx, documentID, question, topK)
	if err != nil {
		return nil, err
	}

	if s.cfg.MinScore > 0 {
		filtered := hits[:0]
		for _, h := range hits {
			if h.Score >= s.cfg.MinScore {
				filtered = append(filtered, h)
			}
		}
		hits = filtered
	}

	contextText, citations := s.assemble(hits)
	log.Infof("[Retrieval] 检索完成, fingerprint: %s, 命中: %d, 进入上下文: %d",
		documentID, len(hits), len(citations))
	return &RetrievedContext{
		ContextText: contextText,
		Citations:   citations,
		Hits:        hits,
	}, nil
}

// readyDocument 是查询路径的状态闸门：只有 ready 文档可检索，
// 且文档摄取时的向量模型必须与当前模型一致（不同模型的向量空间不可比）。
func (s *retrievalService) readyDocument(documentID string) (*model.Document, error) {
	doc, err := s.docRepo.GetByFingerprint(documentID)
	if errors.Is(err, repository.ErrDocumentNotFound) {
		return nil, errs.NewRetrievalError("文档不存在", err)
	}
	if err != nil {
		return nil, fmt.Errorf("查询文档记录失败: %w", err)
	}
	if doc.Status != model.StatusReady {
		return nil, errs.NewRetrievalError(
			fmt.Sprintf("文档尚不可检索，当前状态: %s", doc.Status), nil)
	}
	if current := s.embedder.ModelVersion(); doc.ModelVersion != current {
		return nil, errs.NewRetrievalError(
			fmt.Sprintf("向量模型版本不匹配: 文档使用 %s, 当前配置 %s", doc.ModelVersion, current), nil)
	}
	return doc, nil
}

// embedQuestion 向量化问题文本，缓存对问题同样生效。
func (s *retrievalService) embedQuestion(ctx context.Context, question string) ([]float32, error) {
	modelVersion := s.embedder.ModelVersion()
	if vec, hit, err := s.cache.Get(ctx, question, modelVersion); err == nil && hit {
		return vec, nil
	}
	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, errs.NewRetrievalError("向量化问题失败", err)
	}
	if err := s.cache.Put(ctx, question, modelVersion, vec); err != nil {
		log.Warnf("[Retrieval] 写入问题向量缓存失败: %v", err)
	}
	return vec, nil
}

// assemble 按排名拼接片段文本直到 token 预算用尽。
// 排名第一的片段单独超出预算时按 token 边界截断，保证上下文不为空。
func (s *retrievalService) assemble(hits []model.SearchHit) (string, []model.Citation) {
	budget := s.cfg.ContextTokenBudget
	var sb strings.Builder
	var citations []model.Citation
	used := 0

	for i, hit := range hits {
		text := hit.Text
		cost := hit.TokenCount
		if cost == 0 {
			cost = tokenizer.Count(text)
		}
		if used+cost > budget {
			if i > 0 {
				break
			}
			text = tokenizer.Truncate(text, budget)
			cost = budget
		}
		fmt.Fprintf(&sb, "[%d] (第%d-%d页) %s\n", i+1, hit.PageStart, hit.PageEnd, text)
		used += cost
		citations = append(citations, model.Citation{
			DocumentID: hit.Fingerprint,
			Ordinal:    hit.Ordinal,
			PageStart:  hit.PageStart,
			PageEnd:    hit.PageEnd,
			Score:      hit.Score,
		})
	}
	return sb.String(), citations
}
