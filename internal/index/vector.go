package index

import (
	"math"
	"sort"
	"time"
)

type vectorDoc struct {
	documentID     uint
	docCreatedAt   time.Time
	vector         []float32
	norm           float64
	embeddingModel string
}

// vectorIndex is a flat cosine-similarity index. Not safe for concurrent
// use on its own; the owning partition serializes access.
type vectorIndex struct {
	docs    map[uint]*vectorDoc // chunkID -> doc
	byDocID map[uint][]uint     // documentID -> chunkIDs
}

func newVectorIndex() *vectorIndex {
	return &vectorIndex{
		docs:    make(map[uint]*vectorDoc),
		byDocID: make(map[uint][]uint),
	}
}

func (v *vectorIndex) add(e *Entry) {
	if _, exists := v.docs[e.ChunkID]; exists {
		return
	}
	v.docs[e.ChunkID] = &vectorDoc{
		documentID:     e.DocumentID,
		docCreatedAt:   e.DocCreatedAt,
		vector:         e.Vector,
		norm:           norm(e.Vector),
		embeddingModel: e.EmbeddingModel,
	}
	v.byDocID[e.DocumentID] = append(v.byDocID[e.DocumentID], e.ChunkID)
}

func (v *vectorIndex) removeDocument(documentID uint) int {
	chunkIDs := v.byDocID[documentID]
	for _, id := range chunkIDs {
		delete(v.docs, id)
	}
	delete(v.byDocID, documentID)
	return len(chunkIDs)
}

func (v *vectorIndex) search(query []float32, embeddingModel string, limit int) []Hit {
	if len(query) == 0 || limit <= 0 {
		return nil
	}
	queryNorm := norm(query)
	if queryNorm == 0 {
		return nil
	}

	var hits []Hit
	for chunkID, doc := range v.docs {
		if doc.embeddingModel != embeddingModel {
			continue // version skew: stale-model vectors are excluded
		}
		if len(doc.vector) != len(query) || doc.norm == 0 {
			continue
		}
		var dot float64
		for i := range query {
			dot += float64(query[i]) * float64(doc.vector[i])
		}
		score := dot / (queryNorm * doc.norm)
		hits = append(hits, Hit{
			ChunkID:      chunkID,
			DocumentID:   doc.documentID,
			Score:        score,
			DocCreatedAt: doc.docCreatedAt,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func norm(vec []float32) float64 {
	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
