package service

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"xiaowen-go/internal/model"
	"xiaowen-go/internal/repository"
	"xiaowen-go/pkg/llm"
	"xiaowen-go/pkg/tasks"
)

// 服务层测试共用的依赖替身。

type fakeDocRepo struct {
	mu        sync.Mutex
	docs      map[string]*model.Document
	createErr error
	resets    []string
}

func newFakeDocRepo(docs ...*model.Document) *fakeDocRepo {
	r := &fakeDocRepo{docs: make(map[string]*model.Document)}
	for _, d := range docs {
		r.docs[d.Fingerprint] = d
	}
	return r
}

func (r *fakeDocRepo) Create(doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.docs[doc.Fingerprint]; ok {
		return gorm.ErrDuplicatedKey
	}
	r.docs[doc.Fingerprint] = doc
	return nil
}

func (r *fakeDocRepo) GetByFingerprint(fingerprint string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[fingerprint]
	if !ok {
		return nil, repository.ErrDocumentNotFound
	}
	copied := *doc
	return &copied, nil
}

func (r *fakeDocRepo) UpdateStatus(fingerprint, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[fingerprint].Status = status
	return nil
}

func (r *fakeDocRepo) MarkFailed(fingerprint, stage, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc := r.docs[fingerprint]
	doc.Status = model.StatusFailed
	doc.FailedStage = stage
	doc.FailureReason = reason
	return nil
}

func (r *fakeDocRepo) MarkReady(fingerprint string, pageCount, passageCount int, modelVersion string, vectorDims int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc := r.docs[fingerprint]
	doc.Status = model.StatusReady
	doc.PageCount = pageCount
	doc.PassageCount = passageCount
	doc.ModelVersion = modelVersion
	doc.VectorDims = vectorDims
	return nil
}

func (r *fakeDocRepo) ResetForReingest(fingerprint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc := r.docs[fingerprint]
	doc.Status = model.StatusRequested
	doc.FailedStage = ""
	doc.FailureReason = ""
	r.resets = append(r.resets, fingerprint)
	return nil
}

func (r *fakeDocRepo) Delete(fingerprint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, fingerprint)
	return nil
}

func (r *fakeDocRepo) List(status string, page, pageSize int) ([]model.Document, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var docs []model.Document
	for _, d := range r.docs {
		if status == "" || d.Status == status {
			docs = append(docs, *d)
		}
	}
	return docs, int64(len(docs)), nil
}

type fakePassageRepo struct {
	passages map[string][]model.Passage
}

func newFakePassageRepo() *fakePassageRepo {
	return &fakePassageRepo{passages: make(map[string][]model.Passage)}
}

func (r *fakePassageRepo) BatchCreate(passages []model.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	r.passages[passages[0].Fingerprint] = append([]model.Passage(nil), passages...)
	return nil
}

func (r *fakePassageRepo) ListByFingerprint(fingerprint string) ([]model.Passage, error) {
	return append([]model.Passage(nil), r.passages[fingerprint]...), nil
}

func (r *fakePassageRepo) DeleteByFingerprint(fingerprint string) error {
	delete(r.passages, fingerprint)
	return nil
}

type fakeEmbedCache struct {
	mu      sync.Mutex
	vectors map[string][]float32
	getErr  error
}

func newFakeEmbedCache() *fakeEmbedCache {
	return &fakeEmbedCache{vectors: make(map[string][]float32)}
}

func (c *fakeEmbedCache) Get(ctx context.Context, text, modelVersion string) ([]float32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	vec, ok := c.vectors[modelVersion+":"+text]
	return vec, ok, nil
}

func (c *fakeEmbedCache) Put(ctx context.Context, text, modelVersion string, vector []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectors[modelVersion+":"+text] = vector
	return nil
}

type fakeEmbedder struct {
	mu      sync.Mutex
	calls   int
	err     error
	version string
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	return vecs, nil
}

func (e *fakeEmbedder) ModelVersion() string {
	if e.version != "" {
		return e.version
	}
	return "test-embed-v1"
}

func (e *fakeEmbedder) Dimensions() int { return 3 }

type fakeSearcher struct {
	hits []model.SearchHit
	err  error

	lastFingerprint string
	lastTopK        int
}

func (s *fakeSearcher) SearchByVector(ctx context.Context, fingerprint string, queryVector []float32, topK int) ([]model.SearchHit, error) {
	s.lastFingerprint = fingerprint
	s.lastTopK = topK
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     [][]llm.Message
	params    []*llm.GenerationParams
}

func (l *fakeLLM) Complete(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, messages)
	l.params = append(l.params, gen)
	if l.err != nil {
		return "", l.err
	}
	if len(l.responses) == 0 {
		return "默认回答", nil
	}
	resp := l.responses[0]
	if len(l.responses) > 1 {
		l.responses = l.responses[1:]
	}
	return resp, nil
}

func (l *fakeLLM) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

type fakeConvRepo struct {
	mu       sync.Mutex
	sessions map[string][]model.ChatTurn
	getErr   error
	saveErr  error
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{sessions: make(map[string][]model.ChatTurn)}
}

func (r *fakeConvRepo) GetTurns(ctx context.Context, sessionID string) ([]model.ChatTurn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	return append([]model.ChatTurn(nil), r.sessions[sessionID]...), nil
}

func (r *fakeConvRepo) SaveTurns(ctx context.Context, sessionID string, turns []model.ChatTurn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.sessions[sessionID] = append([]model.ChatTurn(nil), turns...)
	return nil
}

func (r *fakeConvRepo) Delete(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}

type fakeStager struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	removed []string
}

func newFakeStager() *fakeStager {
	return &fakeStager{objects: make(map[string][]byte)}
}

func (s *fakeStager) PutObject(ctx context.Context, objectKey string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.objects[objectKey] = append([]byte(nil), data...)
	return nil
}

func (s *fakeStager) RemoveObject(ctx context.Context, objectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectKey)
	s.removed = append(s.removed, objectKey)
	return nil
}

type fakeProducer struct {
	mu    sync.Mutex
	tasks []tasks.IngestTask
	err   error
}

func (p *fakeProducer) ProduceIngestTask(ctx context.Context, task tasks.IngestTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.tasks = append(p.tasks, task)
	return nil
}

func (p *fakeProducer) taskCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

type fakeVectorDeleter struct {
	deleted []string
	err     error
}

func (d *fakeVectorDeleter) DeleteByFingerprint(ctx context.Context, fingerprint string) error {
	if d.err != nil {
		return d.err
	}
	d.deleted = append(d.deleted, fingerprint)
	return nil
}

// fakeRetrieval 供 ChatService 测试直接注入检索结果。
type fakeRetrieval struct {
	retrieved *RetrievedContext
	err       error
}

func (r *fakeRetrieval) Search(ctx context.Context, documentID, question string, topK int) ([]model.SearchHit, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.retrieved.Hits, nil
}

func (r *fakeRetrieval) Retrieve(ctx context.Context, documentID, question string, topK int) (*RetrievedContext, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.retrieved, nil
}
