package index

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
)

// BM25 parameters, standard values.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`)

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

type lexicalDoc struct {
	documentID   uint
	docCreatedAt time.Time
	termFreq     map[string]int
	length       int
}

// lexicalIndex is an in-process BM25 index. Not safe for concurrent use on
// its own; the owning partition serializes access.
type lexicalIndex struct {
	docs     map[uint]*lexicalDoc // chunkID -> doc
	byDocID  map[uint][]uint      // documentID -> chunkIDs
	docFreq  map[string]int
	totalLen int
}

func newLexicalIndex() *lexicalIndex {
	return &lexicalIndex{
		docs:    make(map[uint]*lexicalDoc),
		byDocID: make(map[uint][]uint),
		docFreq: make(map[string]int),
	}
}

func (l *lexicalIndex) size() int { return len(l.docs) }

func (l *lexicalIndex) add(e *Entry) {
	if _, exists := l.docs[e.ChunkID]; exists {
		return
	}
	tokens := tokenize(e.Content)
	tf := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}
	for term := range tf {
		l.docFreq[term]++
	}
	l.docs[e.ChunkID] = &lexicalDoc{
		documentID:   e.DocumentID,
		docCreatedAt: e.DocCreatedAt,
		termFreq:     tf,
		length:       len(tokens),
	}
	l.byDocID[e.DocumentID] = append(l.byDocID[e.DocumentID], e.ChunkID)
	l.totalLen += len(tokens)
}

func (l *lexicalIndex) removeDocument(documentID uint) int {
	chunkIDs := l.byDocID[documentID]
	for _, id := range chunkIDs {
		doc := l.docs[id]
		if doc == nil {
			continue
		}
		for term := range doc.termFreq {
			if l.docFreq[term] <= 1 {
				delete(l.docFreq, term)
			} else {
				l.docFreq[term]--
			}
		}
		l.totalLen -= doc.length
		delete(l.docs, id)
	}
	delete(l.byDocID, documentID)
	return len(chunkIDs)
}

func (l *lexicalIndex) search(query string, limit int) []Hit {
	terms := tokenize(query)
	if len(terms) == 0 || len(l.docs) == 0 || limit <= 0 {
		return nil
	}

	n := float64(len(l.docs))
	avgLen := float64(l.totalLen) / n

	var hits []Hit
	for chunkID, doc := range l.docs {
		var score float64
		for _, term := range terms {
			tf := doc.termFreq[term]
			if tf == 0 {
				continue
			}
			df := float64(l.docFreq[term])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			norm := float64(tf) * (bm25K1 + 1) /
				(float64(tf) + bm25K1*(1-bm25B+bm25B*float64(doc.length)/avgLen))
			score += idf * norm
		}
		if score > 0 {
			hits = append(hits, Hit{
				ChunkID:      chunkID,
				DocumentID:   doc.documentID,
				Score:        score,
				DocCreatedAt: doc.docCreatedAt,
			})
		}
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
