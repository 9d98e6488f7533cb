// Package index maintains the two retrieval views over the chunk set: a
// lexical BM25 index and a cosine-similarity vector index. Both views of a
// tenant partition are guarded by one RWMutex, so a chunk is never visible
// in one view but not the other, and deletion removes it from both or
// neither. Durability lives in MySQL; partitions are rebuilt from the chunk
// table at bootstrap.
package index

import (
	"sync"
	"time"

	"documind/internal/apperr"
)

// Entry is one indexable chunk.
type Entry struct {
	ChunkID        uint
	DocumentID     uint
	Ordinal        int
	Content        string
	Vector         []float32
	EmbeddingModel string
	// DocCreatedAt is the owning document's creation time, kept for the
	// retriever's recency tie-break.
	DocCreatedAt time.Time
}

// Hit is one scored result from either view. Scores are raw: BM25 mass for
// the lexical view, cosine similarity for the vector view.
type Hit struct {
	ChunkID      uint
	DocumentID   uint
	Score        float64
	DocCreatedAt time.Time
}

type partition struct {
	mu  sync.RWMutex
	lex *lexicalIndex
	vec *vectorIndex
}

// Indexer owns all tenant partitions.
type Indexer struct {
	mu         sync.RWMutex
	partitions map[uint]*partition
}

func NewIndexer() *Indexer {
	return &Indexer{partitions: make(map[uint]*partition)}
}

func (x *Indexer) partition(tenantID uint, create bool) *partition {
	x.mu.RLock()
	p := x.partitions[tenantID]
	x.mu.RUnlock()
	if p != nil || !create {
		return p
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if p = x.partitions[tenantID]; p == nil {
		p = &partition{lex: newLexicalIndex(), vec: newVectorIndex()}
		x.partitions[tenantID] = p
	}
	return p
}

// Index adds all entries to both views of the tenant partition. Holding the
// partition write lock for the whole batch is the write barrier: readers see
// either none of the entries or all of them in both views.
func (x *Indexer) Index(tenantID uint, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	p := x.partition(tenantID, true)
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range entries {
		p.lex.add(&entries[i])
		p.vec.add(&entries[i])
	}
	return nil
}

// RemoveDocument drops every chunk of the document from both views. Returns
// an index_consistency error if the views disagree afterwards, so the caller
// can retry until they converge.
func (x *Indexer) RemoveDocument(tenantID, documentID uint) error {
	p := x.partition(tenantID, false)
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	lexRemoved := p.lex.removeDocument(documentID)
	vecRemoved := p.vec.removeDocument(documentID)
	if lexRemoved != vecRemoved {
		return apperr.Newf(apperr.KindIndexConsistency,
			"document %d: lexical removed %d chunks, vector removed %d", documentID, lexRemoved, vecRemoved)
	}
	return nil
}

// SearchLexical runs a BM25 query over the tenant partition.
func (x *Indexer) SearchLexical(tenantID uint, query string, limit int) []Hit {
	p := x.partition(tenantID, false)
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lex.search(query, limit)
}

// SearchVector runs a cosine-similarity query over the tenant partition.
// Chunks embedded with a model other than embeddingModel are excluded, so
// version-skewed vectors never mix into one ranking.
func (x *Indexer) SearchVector(tenantID uint, vector []float32, embeddingModel string, limit int) []Hit {
	p := x.partition(tenantID, false)
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.vec.search(vector, embeddingModel, limit)
}

// ChunkCount reports how many chunks the tenant partition holds, taken from
// the lexical view (both views hold the same set by construction).
func (x *Indexer) ChunkCount(tenantID uint) int {
	p := x.partition(tenantID, false)
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lex.size()
}
