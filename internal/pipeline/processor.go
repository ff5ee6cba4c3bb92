// Package pipeline 实现文档摄取管道：下载、抽取、切块、向量化、入库。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"xiaowen-go/internal/config"
	"xiaowen-go/internal/errs"
	"xiaowen-go/internal/model"
	"xiaowen-go/internal/repository"
	"xiaowen-go/pkg/embedding"
	"xiaowen-go/pkg/log"
	"xiaowen-go/pkg/tasks"
)

// ObjectStore 读取受理阶段暂存的原始文档字节。
type ObjectStore interface {
	GetObject(ctx context.Context, objectKey string) ([]byte, error)
}

// Extractor 将原始字节转换为逐页文本。
type Extractor interface {
	ExtractPages(ctx context.Context, data []byte, fileName string) ([]string, error)
}

// VectorIndex 以文档为单位提交片段向量，提交是全有或全无的。
type VectorIndex interface {
	UpsertPassages(ctx context.Context, fingerprint string, passages []model.EsPassage) error
}

// Processor 驱动摄取状态机：
// requested → downloading → extracting → chunking → embedding → ready。
// 任一阶段失败都把文档置为 failed 终态并记录阶段与原因；
// 片段只有在全部向量化并整体提交、状态翻到 ready 之后才对检索可见。
type Processor struct {
	store       ObjectStore
	extractor   Extractor
	embedder    embedding.Client
	cache       repository.EmbeddingCache
	index       VectorIndex
	docRepo     repository.DocumentRepository
	passageRepo repository.PassageRepository
	chunker     *Chunker
	ingestCfg   config.IngestConfig
	embedCfg    config.EmbeddingConfig
	flight      singleflight.Group
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	store ObjectStore,
	extractor Extractor,
	embedder embedding.Client,
	cache repository.EmbeddingCache,
	index VectorIndex,
	docRepo repository.DocumentRepository,
	passageRepo repository.PassageRepository,
	ingestCfg config.IngestConfig,
	embedCfg config.EmbeddingConfig,
) *Processor {
	return &Processor{
		store:       store,
		extractor:   extractor,
		embedder:    embedder,
		cache:       cache,
		index:       index,
		docRepo:     docRepo,
		passageRepo: passageRepo,
		chunker:     NewChunker(ingestCfg.ChunkSize, ingestCfg.ChunkOverlap, ingestCfg.SentenceLookback),
		ingestCfg:   ingestCfg,
		embedCfg:    embedCfg,
	}
}

// Process 处理一个摄取任务。同一指纹的并发任务通过 singleflight 合并成
// 一次执行，所有调用方看到同一个结果。返回非 nil 仅表示基础设施故障
// （结果无法落库），由消费者决定重试；文档本身的失败记录为 failed 终态。
func (p *Processor) Process(ctx context.Context, task tasks.IngestTask) error {
	_, err, _ := p.flight.Do(task.Fingerprint, func() (interface{}, error) {
		return nil, p.run(ctx, task)
	})
	return err
}

func (p *Processor) run(ctx context.Context, task tasks.IngestTask) error {
	log.Infof("[Processor] 开始处理摄取任务, fingerprint: %s, file: %s", task.Fingerprint, task.FileName)

	doc, err := p.docRepo.GetByFingerprint(task.Fingerprint)
	if err != nil {
		return fmt.Errorf("读取文档记录失败: %w", err)
	}
	// 去重：已经到达终态的文档不再重复摄取（重复投递或合并后的并发请求）
	if model.IsTerminalStatus(doc.Status) {
		log.Infof("[Processor] 文档已处于终态 %s，跳过摄取, fingerprint: %s", doc.Status, task.Fingerprint)
		return nil
	}

	if p.ingestCfg.PipelineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.ingestCfg.PipelineTimeout)
		defer cancel()
	}

	// 阶段1：下载（从受理时暂存的对象取回原始字节）
	if err := p.advance(task.Fingerprint, model.StatusDownloading); err != nil {
		return err
	}
	log.Infof("[Processor] 步骤1: 取回暂存文档, object: %s", task.ObjectKey)
	data, err := p.store.GetObject(ctx, task.ObjectKey)
	if err != nil {
		return p.fail(task.Fingerprint, model.StatusDownloading, errs.NewDownloadError("取回暂存文档失败", err))
	}
	if len(data) == 0 {
		return p.fail(task.Fingerprint, model.StatusDownloading, errs.NewDownloadError("文档内容为空", nil))
	}

	// 阶段2：文本抽取。抽取失败是永久性的，不做重试。
	if err := p.advance(task.Fingerprint, model.StatusExtracting); err != nil {
		return err
	}
	log.Infof("[Processor] 步骤2: 使用 Tika 抽取逐页文本, size: %d 字节", len(data))
	pages, err := p.extractor.ExtractPages(ctx, data, task.FileName)
	if err != nil {
		return p.fail(task.Fingerprint, model.StatusExtracting, errs.NewExtractionError("文本抽取失败", err))
	}

	// 阶段3：切块
	if err := p.advance(task.Fingerprint, model.StatusChunking); err != nil {
		return err
	}
	log.Infof("[Processor] 步骤3: 文本切块, 页数: %d, chunkSize: %d, overlap: %d",
		len(pages), p.ingestCfg.ChunkSize, p.ingestCfg.ChunkOverlap)
	passages := p.chunker.Split(pages)
	if len(passages) == 0 {
		return p.fail(task.Fingerprint, model.StatusChunking, errs.NewExtractionError("文档没有可用文本", nil))
	}
	for i := range passages {
		passages[i].Fingerprint = task.Fingerprint
	}
	if err := p.passageRepo.BatchCreate(passages); err != nil {
		return fmt.Errorf("保存片段记录失败: %w", err)
	}
	log.Infof("[Processor] 步骤3: 切块完成, 共 %d 个片段", len(passages))

	// 阶段4：向量化。整批成功才继续，任何失败都让文档进入 failed，
	// 不会有半成品片段对检索可见。
	if err := p.advance(task.Fingerprint, model.StatusEmbedding); err != nil {
		return err
	}
	log.Infof("[Processor] 步骤4: 开始向量化, 并发上限: %d, 批大小: %d",
		p.embedCfg.Concurrency, p.embedCfg.BatchSize)
	vectors, err := p.embedPassages(ctx, passages)
	if err != nil {
		return p.fail(task.Fingerprint, model.StatusEmbedding, err)
	}

	esPassages := make([]model.EsPassage, len(passages))
	for i, passage := range passages {
		esPassages[i] = model.EsPassage{
			PassageID:     passage.PassageID(),
			Fingerprint:   passage.Fingerprint,
			Ordinal:       passage.Ordinal,
			PageStart:     passage.PageStart,
			PageEnd:       passage.PageEnd,
			StartOffset:   passage.StartOffset,
			TokenCount:    passage.TokenCount,
			OverlapTokens: passage.OverlapTokens,
			TextContent:   passage.Text,
			Vector:        vectors[i],
			ModelVersion:  p.embedder.ModelVersion(),
		}
	}
	log.Infof("[Processor] 步骤5: 整体提交 %d 个片段到向量索引", len(esPassages))
	if err := p.index.UpsertPassages(ctx, task.Fingerprint, esPassages); err != nil {
		if ctx.Err() != nil {
			return p.fail(task.Fingerprint, model.StatusEmbedding, err)
		}
		return fmt.Errorf("提交片段到向量索引失败: %w", err)
	}

	// 终态：ready。此刻起片段才对检索可见。
	if err := p.docRepo.MarkReady(task.Fingerprint, len(pages), len(passages),
		p.embedder.ModelVersion(), p.embedder.Dimensions()); err != nil {
		return fmt.Errorf("记录 ready 状态失败: %w", err)
	}
	log.Infof("[Processor] 摄取完成, fingerprint: %s, 页数: %d, 片段数: %d",
		task.Fingerprint, len(pages), len(passages))
	return nil
}

// advance 将状态机推进到下一阶段。
func (p *Processor) advance(fingerprint, status string) error {
	if err := p.docRepo.UpdateStatus(fingerprint, status); err != nil {
		return fmt.Errorf("推进状态到 %s 失败: %w", status, err)
	}
	return nil
}

// fail 将文档置为 failed 终态并记录失败阶段与原因。
// 返回 nil 表示失败结果已经落库，任务按处理完成提交。
func (p *Processor) fail(fingerprint, stage string, err error) error {
	reason := errs.Reason(err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		reason = "timeout"
	}
	log.Errorf("[Processor] 摄取在 %s 阶段失败, fingerprint: %s, error: %v", stage, fingerprint, err)
	if mErr := p.docRepo.MarkFailed(fingerprint, stage, reason); mErr != nil {
		return fmt.Errorf("记录失败状态失败: %w", mErr)
	}
	return nil
}

// embedPassages 返回与 passages 一一对应的向量。
// 先查缓存（键 = 文本指纹 + 模型版本），未命中的按批大小分组后由
// errgroup 有界并发地调用向量化接口，结果回写缓存。
func (p *Processor) embedPassages(ctx context.Context, passages []model.Passage) ([][]float32, error) {
	modelVersion := p.embedder.ModelVersion()
	vectors := make([][]float32, len(passages))

	var misses []int
	for i, passage := range passages {
		vec, hit, err := p.cache.Get(ctx, passage.Text, modelVersion)
		if err != nil {
			// 缓存故障降级为直接调用向量化接口
			log.Warnf("[Processor] 读取向量缓存失败, ordinal: %d, error: %v", passage.Ordinal, err)
		}
		if hit {
			vectors[i] = vec
			continue
		}
		misses = append(misses, i)
	}
	log.Infof("[Processor] 向量缓存命中 %d/%d", len(passages)-len(misses), len(passages))

	batchSize := p.embedCfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	if p.embedCfg.Concurrency > 0 {
		g.SetLimit(p.embedCfg.Concurrency)
	}
	var done int64
	for start := 0; start < len(misses); start += batchSize {
		end := start + batchSize
		if end > len(misses) {
			end = len(misses)
		}
		batch := misses[start:end]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for j, idx := range batch {
				texts[j] = passages[idx].Text
			}
			vecs, err := p.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return err
			}
			// 各批写入互不相交的下标，无需加锁
			for j, idx := range batch {
				vectors[idx] = vecs[j]
				if cErr := p.cache.Put(gctx, passages[idx].Text, modelVersion, vecs[j]); cErr != nil {
					log.Warnf("[Processor] 写入向量缓存失败, ordinal: %d, error: %v", passages[idx].Ordinal, cErr)
				}
			}
			n := atomic.AddInt64(&done, int64(len(batch)))
			log.Infof("[Processor] 向量化进度 %d/%d", n, len(misses))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errs.NewEmbeddingError("片段向量化失败", err)
	}

	if dims := p.embedder.Dimensions(); dims > 0 {
		for i, vec := range vectors {
			if len(vec) != dims {
				return nil, errs.NewEmbeddingError(
					fmt.Sprintf("片段 %d 向量维度 %d 与配置 %d 不一致", passages[i].Ordinal, len(vec), dims), nil)
			}
		}
	}
	return vectors, nil
}
