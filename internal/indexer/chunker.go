package indexer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ChunkOptions bounds chunk sizes. Sizes are in bytes.
type ChunkOptions struct {
	MaxSize int // upper bound for a chunk
	Overlap int // how much of the previous chunk's tail seeds the next one
	MinSize int // chunks shorter than this are dropped unless they are the only chunk
}

// Chunk is one slice of the source text; CharStart/CharEnd are byte offsets into it
type Chunk struct {
	Index     int
	Text      string
	CharStart int
	CharEnd   int
}

type span struct{ start, end int }

// Split cuts text into overlapping chunks on sentence boundaries. Text that fits in one
// chunk is returned whole. Identical chunks are kept once.
func Split(text string, opts ChunkOptions) []Chunk {
	if opts.MaxSize <= 0 {
		return nil
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.MaxSize {
		opts.Overlap = 0
	}

	whole := trimSpan(text, span{0, len(text)})
	if whole.start >= whole.end {
		return nil
	}
	if whole.end-whole.start <= opts.MaxSize {
		return []Chunk{{Text: text[whole.start:whole.end], CharStart: whole.start, CharEnd: whole.end}}
	}

	pieceMax := opts.MaxSize - opts.Overlap
	var spans []span
	for _, s := range sentenceSpans(text) {
		spans = append(spans, splitLong(text, s, pieceMax)...)
	}

	var raw []span
	cs, ce := spans[0].start, spans[0].start
	for _, s := range spans {
		if s.end-cs > opts.MaxSize && ce > cs {
			raw = append(raw, span{cs, ce})
			cs = nextStart(text, cs, ce, s, opts)
		}
		ce = s.end
	}
	raw = append(raw, span{cs, ce})

	return finalize(text, raw, opts.MinSize)
}

// nextStart seeds a new chunk with the tail of the closed one [cs, ce), kept small enough
// that sentence s still fits
func nextStart(text string, cs, ce int, s span, opts ChunkOptions) int {
	ns := ce - opts.Overlap
	if ns < cs {
		ns = cs
	}
	if s.end-ns > opts.MaxSize {
		ns = s.end - opts.MaxSize
	}
	for ns < s.start && !utf8.RuneStart(text[ns]) {
		ns++
	}
	for ns < s.start && isSpace(text[ns]) {
		ns++
	}
	return ns
}

func finalize(text string, raw []span, minSize int) []Chunk {
	seen := make(map[string]bool, len(raw))
	var chunks []Chunk
	for _, r := range raw {
		r = trimSpan(text, r)
		if r.start >= r.end {
			continue
		}
		t := text[r.start:r.end]
		if seen[t] {
			continue
		}
		seen[t] = true
		chunks = append(chunks, Chunk{Text: t, CharStart: r.start, CharEnd: r.end})
	}

	if len(chunks) > 1 && minSize > 0 {
		kept := chunks[:0]
		for _, c := range chunks {
			if len(c.Text) >= minSize {
				kept = append(kept, c)
			}
		}
		if len(kept) == 0 {
			// keep the longest rather than index nothing
			longest := chunks[0]
			for _, c := range chunks[1:] {
				if len(c.Text) > len(longest.Text) {
					longest = c
				}
			}
			kept = append(kept, longest)
		}
		chunks = kept
	}

	for i := range chunks {
		chunks[i].Index = i
	}
	return chunks
}

// sentenceSpans returns sentences ending after . ! ? or a newline, without leading whitespace
func sentenceSpans(text string) []span {
	var spans []span
	start := -1
	for i := 0; i < len(text); i++ {
		c := text[i]
		if start < 0 {
			if isSpace(c) {
				continue
			}
			start = i
		}
		if c == '.' || c == '!' || c == '?' || c == '\n' {
			spans = append(spans, span{start, i + 1})
			start = -1
		}
	}
	if start >= 0 {
		spans = append(spans, span{start, len(text)})
	}
	return spans
}

// splitLong breaks a sentence longer than limit at whitespace where possible, otherwise at
// a rune boundary
func splitLong(text string, s span, limit int) []span {
	if limit <= 0 || s.end-s.start <= limit {
		return []span{s}
	}

	var out []span
	start := s.start
	for s.end-start > limit {
		cut := start + limit
		for cut > start && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if ws := strings.LastIndexFunc(text[start:cut], unicode.IsSpace); ws > limit/2 {
			cut = start + ws
		}
		if cut <= start {
			// a single rune wider than limit
			_, size := utf8.DecodeRuneInString(text[start:])
			cut = start + size
		}
		out = append(out, span{start, cut})

		start = cut
		for start < s.end && isSpace(text[start]) {
			start++
		}
	}
	if start < s.end {
		out = append(out, span{start, s.end})
	}
	return out
}

func trimSpan(text string, s span) span {
	for s.start < s.end && isSpace(text[s.start]) {
		s.start++
	}
	for s.end > s.start && isSpace(text[s.end-1]) {
		s.end--
	}
	return s
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}
