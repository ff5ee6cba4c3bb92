package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"xiaowen-go/internal/config"
	"xiaowen-go/internal/errs"
	"xiaowen-go/internal/model"
	"xiaowen-go/internal/pipeline"
	"xiaowen-go/internal/repository"
	"xiaowen-go/pkg/llm"
	"xiaowen-go/pkg/log"
	"xiaowen-go/pkg/tokenizer"
)

// 摘要类型。
const (
	SummaryKindShort    = "short"
	SummaryKindDetailed = "detailed"
	SummaryKindBoth     = "both"
)

// SummaryService 基于整篇文档生成摘要。输入文本由片段按序去重叠还原，
// 再按配置的 token 预算截断后交给大模型。
type SummaryService interface {
	Summarize(ctx context.Context, documentID, kind string) (*model.SummaryDTO, error)
}

type summaryService struct {
	docRepo     repository.DocumentRepository
	passageRepo repository.PassageRepository
	llmClient   llm.Client
	cfg         config.ChatConfig
}

// NewSummaryService 创建一个新的 SummaryService 实例。
func NewSummaryService(
	docRepo repository.DocumentRepository,
	passageRepo repository.PassageRepository,
	llmClient llm.Client,
	cfg config.ChatConfig,
) SummaryService {
	return &summaryService{
		docRepo:     docRepo,
		passageRepo: passageRepo,
		llmClient:   llmClient,
		cfg:         cfg,
	}
}

// Summarize 生成摘要。kind 为 both 时两种摘要并发生成。
func (s *summaryService) Summarize(ctx context.Context, documentID, kind string) (*model.SummaryDTO, error) {
	if kind == "" {
		kind = SummaryKindShort
	}
	if kind != SummaryKindShort && kind != SummaryKindDetailed && kind != SummaryKindBoth {
		return nil, fmt.Errorf("不支持的摘要类型: %s", kind)
	}

	text, err := readyDocumentText(s.docRepo, s.passageRepo, documentID)
	if err != nil {
		return nil, err
	}

	result := &model.SummaryDTO{DocumentID: documentID}
	g, gctx := errgroup.WithContext(ctx)
	if kind == SummaryKindShort || kind == SummaryKindBoth {
		g.Go(func() error {
			summary, err := s.generateShort(gctx, text)
			if err != nil {
				return err
			}
			result.ShortSummary = summary
			return nil
		})
	}
	if kind == SummaryKindDetailed || kind == SummaryKindBoth {
		g.Go(func() error {
			summary, err := s.generateDetailed(gctx, text)
			if err != nil {
				return err
			}
			result.DetailedSummary = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errs.NewSynthesisError("生成摘要失败", err)
	}
	log.Infof("[Summary] 摘要生成完成, fingerprint: %s, kind: %s", documentID, kind)
	return result, nil
}

func (s *summaryService) generateShort(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(
		"请用不超过300字概括下面这篇文档的核心内容，直接给出概括，不要任何前缀说明。\n\n%s",
		tokenizer.Truncate(text, s.cfg.ShortSummaryTokens))
	return s.llmClient.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}}, nil)
}

func (s *summaryService) generateDetailed(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(
		"请为下面这篇文档生成一份结构化的详细摘要，包含：\n"+
			"1. 主题概述\n2. 主要论点或章节要点（分条列出）\n3. 关键结论\n"+
			"使用 Markdown 格式输出。\n\n%s",
		tokenizer.Truncate(text, s.cfg.LongSummaryTokens))
	return s.llmClient.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}}, nil)
}

// readyDocumentText 是摘要与出题共用的入口闸门：
// 文档必须 ready，整篇文本由片段按序去重叠还原。
func readyDocumentText(docRepo repository.DocumentRepository, passageRepo repository.PassageRepository, documentID string) (string, error) {
	doc, err := docRepo.GetByFingerprint(documentID)
	if errors.Is(err, repository.ErrDocumentNotFound) {
		return "", errs.NewRetrievalError("文档不存在", err)
	}
	if err != nil {
		return "", fmt.Errorf("查询文档记录失败: %w", err)
	}
	if doc.Status != model.StatusReady {
		return "", errs.NewRetrievalError(fmt.Sprintf("文档尚不可用，当前状态: %s", doc.Status), nil)
	}

	passages, err := passageRepo.ListByFingerprint(documentID)
	if err != nil {
		return "", fmt.Errorf("读取片段失败: %w", err)
	}
	text := pipeline.Reconstruct(passages)
	if text == "" {
		return "", errs.NewRetrievalError("文档没有可用文本", nil)
	}
	return text, nil
}
