// Package chunker splits extracted document text into overlapping chunks.
//
// The chunking unit is runes. Blocks are detected structurally: blank lines
// separate paragraphs, and consecutive lines whose first non-space rune is
// '|' form a table block. A chunk never mixes table content with surrounding
// text; a table larger than the chunk size is force-split and flagged.
// Splitting is a pure function of the input text and parameters.
package chunker

import "unicode"

const (
	defaultSize    = 1000
	defaultOverlap = 200
)

// Chunk is one candidate chunk with its contiguous rune span into the
// source text.
type Chunk struct {
	Text  string
	Start int // inclusive rune offset
	End   int // exclusive rune offset
	// ForceSplit marks chunks cut inside a table block that alone exceeded
	// the chunk size.
	ForceSplit bool
}

type Params struct {
	Size    int // maximum chunk length in runes
	Overlap int // trailing runes of the previous chunk repeated in the next
}

type block struct {
	start, end int
	table      bool
}

// Split chunks text under the given parameters. Identical input always
// yields identical chunk boundaries.
func Split(text string, p Params) []Chunk {
	size := p.Size
	if size <= 0 {
		size = defaultSize
	}
	overlap := p.Overlap
	if overlap < 0 {
		overlap = defaultOverlap
	}
	if overlap >= size {
		overlap = size / 2
	}

	runes := []rune(text)
	blocks := segment(runes)
	if len(blocks) == 0 {
		return nil
	}

	var out []Chunk
	lastWasTable := false
	curStart := -1
	curEnd := -1

	flush := func() {
		if curStart >= 0 && curEnd > curStart {
			out = append(out, makeChunk(runes, curStart, curEnd, false))
			lastWasTable = false
		}
		curStart, curEnd = -1, -1
	}

	for _, b := range blocks {
		blen := b.end - b.start

		if b.table {
			flush()
			if blen > size {
				out = append(out, windowSplit(runes, b.start, b.end, size, overlap, true)...)
			} else {
				out = append(out, makeChunk(runes, b.start, b.end, false))
			}
			lastWasTable = true
			continue
		}

		if blen > size {
			flush()
			out = append(out, windowSplit(runes, b.start, b.end, size, overlap, false)...)
			lastWasTable = false
			continue
		}

		if curStart >= 0 && b.end-curStart > size {
			flush()
		}
		if curStart < 0 {
			curStart = b.start
			// Repeat the tail of the previous chunk for context continuity,
			// but never reach back across a table boundary.
			if len(out) > 0 && overlap > 0 && !lastWasTable {
				prev := out[len(out)-1]
				tail := prev.End - overlap
				if tail < prev.Start {
					tail = prev.Start
				}
				if tail < curStart {
					curStart = tail
				}
			}
		}
		curEnd = b.end
	}
	flush()

	return out
}

// windowSplit cuts [start,end) into size-long windows advancing by
// size-overlap runes.
func windowSplit(runes []rune, start, end, size, overlap int, force bool) []Chunk {
	var chunks []Chunk
	for s := start; s < end; {
		e := s + size
		if e > end {
			e = end
		}
		chunks = append(chunks, makeChunk(runes, s, e, force))
		if e == end {
			break
		}
		s = e - overlap
	}
	return chunks
}

func makeChunk(runes []rune, start, end int, force bool) Chunk {
	return Chunk{
		Text:       string(runes[start:end]),
		Start:      start,
		End:        end,
		ForceSplit: force,
	}
}

// segment walks the text line by line and groups lines into paragraph and
// table blocks. Blank lines terminate the current block.
func segment(runes []rune) []block {
	var blocks []block
	curStart, curEnd := -1, -1
	curTable := false

	endBlock := func() {
		if curStart >= 0 && curEnd > curStart {
			blocks = append(blocks, block{start: curStart, end: curEnd, table: curTable})
		}
		curStart, curEnd = -1, -1
	}

	i := 0
	n := len(runes)
	for i < n {
		lineStart := i
		for i < n && runes[i] != '\n' {
			i++
		}
		lineEnd := i // exclusive, newline not included
		if i < n {
			i++ // consume the newline
		}

		switch {
		case blankLine(runes[lineStart:lineEnd]):
			endBlock()
		case tableLine(runes[lineStart:lineEnd]):
			if curStart >= 0 && !curTable {
				endBlock()
			}
			if curStart < 0 {
				curStart = lineStart
				curTable = true
			}
			curEnd = lineEnd
		default:
			if curStart >= 0 && curTable {
				endBlock()
			}
			if curStart < 0 {
				curStart = lineStart
				curTable = false
			}
			curEnd = lineEnd
		}
	}
	endBlock()

	return blocks
}

func blankLine(line []rune) bool {
	for _, r := range line {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func tableLine(line []rune) bool {
	for _, r := range line {
		if unicode.IsSpace(r) {
			continue
		}
		return r == '|'
	}
	return false
}
