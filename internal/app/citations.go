package app

import (
	"regexp"
	"strings"
	"unicode"

	"documind/internal/model"
)

// markerPattern matches source markers like [S1] that the model is asked
// to place after each cited sentence.
var markerPattern = regexp.MustCompile(`\[S(\d+)\]`)

// minFallbackOverlap is the token-overlap floor below which an unmarked
// sentence gets no citation at all.
const minFallbackOverlap = 0.3

// packContext selects as many ranked chunks as fit into the rune budget,
// preserving rank order. At least one chunk is always included, truncated
// if it alone exceeds the budget.
func packContext(chunks []model.Chunk, budget int) []model.Chunk {
	if len(chunks) == 0 {
		return nil
	}
	var packed []model.Chunk
	used := 0
	for _, c := range chunks {
		n := len([]rune(c.Content))
		if used+n > budget {
			if len(packed) == 0 {
				runes := []rune(c.Content)
				c.Content = string(runes[:budget])
				packed = append(packed, c)
			}
			break
		}
		packed = append(packed, c)
		used += n
	}
	return packed
}

// extractCitations parses source markers out of the generated answer and
// maps each cited sentence to its context chunk. Markers are stripped
// from the returned answer text; citation spans are rune offsets into
// that cleaned text. Sentences without a marker fall back to the best
// token-overlap chunk when the overlap is strong enough.
func extractCitations(answer string, ctxChunks []model.Chunk) (string, []model.Citation) {
	var clean strings.Builder
	var citations []model.Citation
	cleanLen := 0

	for _, sentence := range splitSentences(answer) {
		labels := markerLabels(sentence)
		stripped := markerPattern.ReplaceAllString(sentence, "")
		stripped = collapseSpaces(stripped)
		if stripped == "" {
			continue
		}

		if cleanLen > 0 {
			clean.WriteByte(' ')
			cleanLen++
		}
		start := cleanLen
		clean.WriteString(stripped)
		cleanLen += len([]rune(stripped))

		if len(labels) > 0 {
			for _, label := range labels {
				if label < 1 || label > len(ctxChunks) {
					continue
				}
				chunk := ctxChunks[label-1]
				overlap := tokenOverlap(stripped, chunk.Content)
				citations = append(citations, model.Citation{
					ChunkID:        chunk.ID,
					DocumentID:     chunk.DocumentID,
					SpanStart:      start,
					SpanEnd:        cleanLen,
					Confidence:     0.9 + 0.1*overlap,
					ContentPreview: preview(chunk.Content),
				})
			}
			continue
		}

		// No marker: attribute to the closest chunk by token overlap,
		// or leave the sentence uncited when nothing comes close.
		best, overlap := bestOverlapChunk(stripped, ctxChunks)
		if best != nil && overlap >= minFallbackOverlap {
			citations = append(citations, model.Citation{
				ChunkID:        best.ID,
				DocumentID:     best.DocumentID,
				SpanStart:      start,
				SpanEnd:        cleanLen,
				Confidence:     overlap,
				ContentPreview: preview(best.Content),
			})
		}
	}
	return clean.String(), citations
}

// aggregateConfidence combines per-citation confidences into an answer
// confidence, weighting each citation by its span length. An answer with
// no citations scores zero.
func aggregateConfidence(citations []model.Citation) float64 {
	if len(citations) == 0 {
		return 0
	}
	var weighted, total float64
	for _, c := range citations {
		w := float64(c.SpanEnd - c.SpanStart)
		if w <= 0 {
			w = 1
		}
		weighted += c.Confidence * w
		total += w
	}
	return weighted / total
}

func markerLabels(sentence string) []int {
	var labels []int
	for _, m := range markerPattern.FindAllStringSubmatch(sentence, -1) {
		n := 0
		for _, r := range m[1] {
			n = n*10 + int(r-'0')
		}
		labels = append(labels, n)
	}
	return labels
}

// splitSentences breaks text on sentence enders and newlines, keeping
// trailing markers attached to the sentence they follow.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	i := 0
	for i < len(runes) {
		r := runes[i]
		if r == '\n' {
			if s := strings.TrimSpace(string(runes[start:i])); s != "" {
				sentences = append(sentences, s)
			}
			i++
			start = i
			continue
		}
		if r == '.' || r == '!' || r == '?' {
			i++
			// Attach any marker that immediately follows the ender.
			for {
				j := i
				for j < len(runes) && runes[j] == ' ' {
					j++
				}
				loc := markerPattern.FindStringIndex(string(runes[j:]))
				if loc == nil || loc[0] != 0 {
					break
				}
				i = j + len([]rune(string(runes[j:])[:loc[1]]))
			}
			if s := strings.TrimSpace(string(runes[start:i])); s != "" {
				sentences = append(sentences, s)
			}
			start = i
			continue
		}
		i++
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func bestOverlapChunk(sentence string, chunks []model.Chunk) (*model.Chunk, float64) {
	var best *model.Chunk
	bestOverlap := 0.0
	for i := range chunks {
		if o := tokenOverlap(sentence, chunks[i].Content); o > bestOverlap {
			best = &chunks[i]
			bestOverlap = o
		}
	}
	return best, bestOverlap
}

// tokenOverlap is the fraction of the sentence's distinct tokens that
// also appear in the chunk.
func tokenOverlap(sentence, chunk string) float64 {
	sentTokens := tokenSet(sentence)
	if len(sentTokens) == 0 {
		return 0
	}
	chunkTokens := tokenSet(chunk)
	hits := 0
	for t := range sentTokens {
		if _, ok := chunkTokens[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(sentTokens))
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		set[t] = struct{}{}
	}
	return set
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func preview(content string) string {
	const maxPreview = 200
	runes := []rune(content)
	if len(runes) <= maxPreview {
		return content
	}
	return string(runes[:maxPreview])
}
