package app

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"documind/internal/ai"
	"documind/internal/apperr"
	"documind/internal/config"
	"documind/internal/index"
	"documind/internal/model"
	"documind/internal/repository"
)

const answerSystemPrompt = `You are a question answering assistant for a document knowledge base.
Answer using ONLY the numbered sources provided. After every sentence that uses a source,
append its marker, for example [S1]. If the sources do not contain the answer, say so plainly
instead of guessing. Do not invent sources or markers.`

type queryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	Model() string
}

type completer interface {
	Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error)
}

type ragChunkStore interface {
	ListByIDsAndTenantID(ids []uint, tenantID uint) ([]model.Chunk, error)
	CountByTenantID(tenantID uint) (int64, error)
}

type ragDocStore interface {
	ListByTenantID(tenantID uint) ([]model.Document, error)
}

type answerStore interface {
	CreateWithCitations(answer *model.Answer, citations []model.Citation) error
	GetByIDAndTenantID(id, tenantID uint) (*model.Answer, error)
	StatsByTenantID(tenantID uint) (*repository.AnswerStats, error)
}

type taskCreator interface {
	Create(task *model.ValidationTask) error
}

type answerCache interface {
	Get(ctx context.Context, tenantID uint, question string) (*model.Answer, bool, error)
	Set(ctx context.Context, tenantID uint, question string, answer *model.Answer, documentIDs []uint) error
}

// RAGService answers questions over the indexed document set: hybrid
// retrieval across both index views, grounded generation, and citation
// extraction with confidence-gated review routing.
type RAGService struct {
	chunkStore ragChunkStore
	docStore   ragDocStore
	answers    answerStore
	tasks      taskCreator
	indexer    *index.Indexer
	embedder   queryEmbedder
	llm        completer
	chatCfg    ai.ChatConfig
	ragCfg     config.RAGConfig
	cache      answerCache // optional
}

func NewRAGService(
	chunkStore ragChunkStore,
	docStore ragDocStore,
	answers answerStore,
	tasks taskCreator,
	indexer *index.Indexer,
	embedder queryEmbedder,
	llm completer,
	chatCfg ai.ChatConfig,
	ragCfg config.RAGConfig,
	cache answerCache,
) *RAGService {
	return &RAGService{
		chunkStore: chunkStore,
		docStore:   docStore,
		answers:    answers,
		tasks:      tasks,
		indexer:    indexer,
		embedder:   embedder,
		llm:        llm,
		chatCfg:    chatCfg,
		ragCfg:     ragCfg,
		cache:      cache,
	}
}

// SearchFilters narrows retrieval before ranking is cut to top-K.
type SearchFilters struct {
	DocumentIDs   []uint
	MimeType      string
	UploadedAfter *time.Time
}

type SearchResult struct {
	ChunkID      uint      `json:"chunk_id"`
	DocumentID   uint      `json:"document_id"`
	Content      string    `json:"content"`
	Score        float64   `json:"score"`
	DocCreatedAt time.Time `json:"doc_created_at"`
}

// Search runs hybrid retrieval: both views are queried, raw scores are
// min-max normalized per view and combined as a weighted sum. Only indexed
// documents are searchable because chunks enter the views at the final
// pipeline stage and leave them when a re-run or delete starts.
func (s *RAGService) Search(ctx context.Context, tenantID uint, query string, topK int, filters SearchFilters) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.New(apperr.KindValidation, "query is required")
	}
	if topK <= 0 {
		topK = s.ragCfg.TopK
	}

	hits, err := s.hybridSearch(ctx, tenantID, query, topK, filters)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]uint, len(hits))
	for i, h := range hits {
		ids[i] = h.chunkID
	}
	chunks, err := s.chunkStore.ListByIDsAndTenantID(ids, tenantID)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]*model.Chunk, len(chunks))
	for i := range chunks {
		byID[chunks[i].ID] = &chunks[i]
	}

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		r := SearchResult{
			ChunkID:      h.chunkID,
			DocumentID:   h.documentID,
			Score:        h.score,
			DocCreatedAt: h.docCreatedAt,
		}
		if c := byID[h.chunkID]; c != nil {
			r.Content = c.Content
		}
		results = append(results, r)
	}
	return results, nil
}

type AskInput struct {
	TenantID uint
	UserID   uint
	Question string
	// History carries prior conversation turns, oldest first.
	History []ai.ChatMessage
	TopK    int
	Filters SearchFilters
}

// Ask answers a question with citations. Low-confidence answers are flagged
// requires_review and open a validation task; only clean answers are cached.
func (s *RAGService) Ask(ctx context.Context, input AskInput) (*model.Answer, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, apperr.New(apperr.KindValidation, "question is required")
	}
	started := time.Now()

	// Cached answers are only stored for filter-free questions, so a cache
	// hit can never leak results a filter would have excluded.
	cacheable := len(input.History) == 0 && filtersEmpty(input.Filters)
	if s.cache != nil && cacheable {
		if cached, ok, err := s.cache.Get(ctx, input.TenantID, question); err != nil {
			log.Printf("answer cache get failed: %v", err)
		} else if ok {
			return cached, nil
		}
	}

	topK := input.TopK
	if topK <= 0 {
		topK = s.ragCfg.TopK
	}
	hits, err := s.hybridSearch(ctx, input.TenantID, question, topK, input.Filters)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, apperr.New(apperr.KindNotFound, "no relevant content found for this question")
	}

	ids := make([]uint, len(hits))
	for i, h := range hits {
		ids[i] = h.chunkID
	}
	chunks, err := s.chunkStore.ListByIDsAndTenantID(ids, input.TenantID)
	if err != nil {
		return nil, err
	}
	ranked := orderChunks(chunks, ids)
	ctxChunks := packContext(ranked, s.ragCfg.ContextBudget)
	if len(ctxChunks) == 0 {
		return nil, apperr.New(apperr.KindNotFound, "no relevant content found for this question")
	}

	messages := s.buildMessages(question, ctxChunks, input.History)
	raw, err := s.llm.Complete(ctx, s.chatCfg, messages)
	if err != nil {
		return nil, err
	}

	answerText, citations := extractCitations(raw, ctxChunks)
	if answerText == "" {
		return nil, apperr.New(apperr.KindPermanentProvider, "model returned an empty answer")
	}
	confidence := aggregateConfidence(citations)
	clampSpans(answerText, citations)

	answer := &model.Answer{
		TenantID:         input.TenantID,
		UserID:           input.UserID,
		Question:         question,
		AnswerText:       answerText,
		ModelUsed:        s.chatCfg.Model,
		ConfidenceScore:  confidence,
		RequiresReview:   confidence < s.ragCfg.CitationThreshold,
		ProcessingTimeMS: time.Since(started).Milliseconds(),
	}
	ctxIDs := make([]uint, len(ctxChunks))
	for i := range ctxChunks {
		ctxIDs[i] = ctxChunks[i].ID
	}
	answer.SetChunkIDs(ctxIDs)

	if err := s.answers.CreateWithCitations(answer, citations); err != nil {
		return nil, err
	}

	if answer.RequiresReview {
		s.openReviewTask(answer, citations, ctxChunks)
	} else if s.cache != nil && cacheable {
		if err := s.cache.Set(ctx, input.TenantID, question, answer, citedDocumentIDs(citations, ctxChunks)); err != nil {
			log.Printf("answer cache set failed: %v", err)
		}
	}
	return answer, nil
}

func (s *RAGService) GetAnswer(tenantID, answerID uint) (*model.Answer, error) {
	answer, err := s.answers.GetByIDAndTenantID(answerID, tenantID)
	if err != nil {
		return nil, err
	}
	if answer == nil {
		return nil, apperr.Newf(apperr.KindNotFound, "answer %d not found", answerID)
	}
	return answer, nil
}

// Stats reports per-tenant corpus and answer metrics.
type Stats struct {
	IndexedChunks int64                  `json:"indexed_chunks"`
	StoredChunks  int64                  `json:"stored_chunks"`
	Answers       repository.AnswerStats `json:"answers"`
}

func (s *RAGService) Stats(tenantID uint) (*Stats, error) {
	stored, err := s.chunkStore.CountByTenantID(tenantID)
	if err != nil {
		return nil, err
	}
	answerStats, err := s.answers.StatsByTenantID(tenantID)
	if err != nil {
		return nil, err
	}
	return &Stats{
		IndexedChunks: int64(s.indexer.ChunkCount(tenantID)),
		StoredChunks:  stored,
		Answers:       *answerStats,
	}, nil
}

// scoredHit is one chunk after hybrid score fusion.
type scoredHit struct {
	chunkID      uint
	documentID   uint
	score        float64
	docCreatedAt time.Time
}

// hybridSearch queries both views, min-max normalizes each score list,
// fuses with the configured weights and cuts to topK. Ties break toward
// the chunk whose document was uploaded more recently.
func (s *RAGService) hybridSearch(ctx context.Context, tenantID uint, query string, topK int, filters SearchFilters) ([]scoredHit, error) {
	// Overfetch each leg so filters and fusion still fill topK.
	fetch := topK * 3
	if fetch < topK {
		fetch = topK
	}

	vector, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, err
	}

	// Both legs read the same partition snapshot independently.
	var lexHits, vecHits []index.Hit
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexHits = s.indexer.SearchLexical(tenantID, query, fetch)
		return nil
	})
	g.Go(func() error {
		vecHits = s.indexer.SearchVector(tenantID, vector, s.embedder.Model(), fetch)
		return nil
	})
	_ = g.Wait()

	allowedDocs, err := s.allowedDocuments(tenantID, filters)
	if err != nil {
		return nil, err
	}

	lexNorm := normalizeScores(lexHits)
	vecNorm := normalizeScores(vecHits)

	fused := make(map[uint]*scoredHit)
	merge := func(hits []index.Hit, norms []float64, weight float64) {
		for i, h := range hits {
			if allowedDocs != nil {
				if _, ok := allowedDocs[h.DocumentID]; !ok {
					continue
				}
			}
			sh := fused[h.ChunkID]
			if sh == nil {
				sh = &scoredHit{chunkID: h.ChunkID, documentID: h.DocumentID, docCreatedAt: h.DocCreatedAt}
				fused[h.ChunkID] = sh
			}
			sh.score += weight * norms[i]
		}
	}
	merge(lexHits, lexNorm, s.ragCfg.LexicalWeight)
	merge(vecHits, vecNorm, s.ragCfg.VectorWeight)

	out := make([]scoredHit, 0, len(fused))
	for _, sh := range fused {
		out = append(out, *sh)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if !out[i].docCreatedAt.Equal(out[j].docCreatedAt) {
			return out[i].docCreatedAt.After(out[j].docCreatedAt)
		}
		return out[i].chunkID < out[j].chunkID
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// allowedDocuments resolves filters to a document id set, or nil when no
// filter applies.
func (s *RAGService) allowedDocuments(tenantID uint, filters SearchFilters) (map[uint]struct{}, error) {
	if filtersEmpty(filters) {
		return nil, nil
	}
	allowed := make(map[uint]struct{})
	if filters.MimeType != "" || filters.UploadedAfter != nil {
		docs, err := s.docStore.ListByTenantID(tenantID)
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			if filters.MimeType != "" && d.MimeType != filters.MimeType {
				continue
			}
			if filters.UploadedAfter != nil && d.CreatedAt.Before(*filters.UploadedAfter) {
				continue
			}
			allowed[d.ID] = struct{}{}
		}
		if len(filters.DocumentIDs) > 0 {
			requested := make(map[uint]struct{}, len(filters.DocumentIDs))
			for _, id := range filters.DocumentIDs {
				requested[id] = struct{}{}
			}
			for id := range allowed {
				if _, ok := requested[id]; !ok {
					delete(allowed, id)
				}
			}
		}
		return allowed, nil
	}
	for _, id := range filters.DocumentIDs {
		allowed[id] = struct{}{}
	}
	return allowed, nil
}

func (s *RAGService) buildMessages(question string, ctxChunks []model.Chunk, history []ai.ChatMessage) []ai.ChatMessage {
	var sources strings.Builder
	for i, c := range ctxChunks {
		fmt.Fprintf(&sources, "[S%d] %s\n\n", i+1, c.Content)
	}

	messages := make([]ai.ChatMessage, 0, len(history)+2)
	messages = append(messages, ai.ChatMessage{Role: "system", Content: answerSystemPrompt})
	messages = append(messages, history...)
	messages = append(messages, ai.ChatMessage{
		Role:    "user",
		Content: fmt.Sprintf("Sources:\n\n%sQuestion: %s", sources.String(), question),
	})
	return messages
}

func (s *RAGService) openReviewTask(answer *model.Answer, citations []model.Citation, ctxChunks []model.Chunk) {
	docID := uint(0)
	if len(citations) > 0 {
		docID = citations[0].DocumentID
	} else if len(ctxChunks) > 0 {
		docID = ctxChunks[0].DocumentID
	}
	task := &model.ValidationTask{
		TenantID:       answer.TenantID,
		DocumentID:     docID,
		AnswerID:       answer.ID,
		FieldName:      "answer",
		ExtractedValue: answer.AnswerText,
		Status:         model.TaskStatusPending,
		Priority:       reviewPriority(answer.ConfidenceScore),
	}
	if err := s.tasks.Create(task); err != nil {
		log.Printf("open validation task for answer %d failed: %v", answer.ID, err)
	}
}

// reviewPriority maps lower confidence to higher urgency.
func reviewPriority(confidence float64) int {
	switch {
	case confidence < 0.3:
		return 3
	case confidence < 0.6:
		return 2
	}
	return 1
}

// normalizeScores min-max normalizes hit scores to [0,1]. A single hit, or
// hits that all share one score, normalize to 1.
func normalizeScores(hits []index.Hit) []float64 {
	if len(hits) == 0 {
		return nil
	}
	min, max := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < min {
			min = h.Score
		}
		if h.Score > max {
			max = h.Score
		}
	}
	norms := make([]float64, len(hits))
	if max == min {
		for i := range norms {
			norms[i] = 1
		}
		return norms
	}
	for i, h := range hits {
		norms[i] = (h.Score - min) / (max - min)
	}
	return norms
}

// orderChunks re-sorts fetched chunks into the given rank order.
func orderChunks(chunks []model.Chunk, rankedIDs []uint) []model.Chunk {
	byID := make(map[uint]*model.Chunk, len(chunks))
	for i := range chunks {
		byID[chunks[i].ID] = &chunks[i]
	}
	out := make([]model.Chunk, 0, len(rankedIDs))
	for _, id := range rankedIDs {
		if c := byID[id]; c != nil {
			out = append(out, *c)
		}
	}
	return out
}

// clampSpans forces citation spans inside the answer's rune bounds.
func clampSpans(answer string, citations []model.Citation) {
	n := len([]rune(answer))
	for i := range citations {
		if citations[i].SpanStart < 0 {
			citations[i].SpanStart = 0
		}
		if citations[i].SpanEnd > n {
			citations[i].SpanEnd = n
		}
		if citations[i].SpanStart > citations[i].SpanEnd {
			citations[i].SpanStart = citations[i].SpanEnd
		}
	}
}

func citedDocumentIDs(citations []model.Citation, ctxChunks []model.Chunk) []uint {
	seen := make(map[uint]struct{})
	var ids []uint
	add := func(id uint) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, c := range citations {
		add(c.DocumentID)
	}
	for _, c := range ctxChunks {
		add(c.DocumentID)
	}
	return ids
}

func filtersEmpty(f SearchFilters) bool {
	return len(f.DocumentIDs) == 0 && f.MimeType == "" && f.UploadedAfter == nil
}
