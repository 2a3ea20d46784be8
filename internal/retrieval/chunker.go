package retrieval

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Chunk is a bounded fragment of a larger corpus, the unit of retrieval.
// Text is immutable once created; the embedding field is a lazily populated
// cache owned by the ranker (see FindSimilar).
type Chunk struct {
	Text   string
	Index  int
	Offset int
	Length int

	embedding []float32
}

var sentenceRe = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)

// splitSentences breaks text into trimmed sentences on terminal punctuation.
// A trailing fragment without a terminator counts as a final sentence.
func splitSentences(text string) []string {
	locs := sentenceRe.FindAllStringIndex(text, -1)
	sentences := make([]string, 0, len(locs)+1)
	end := 0
	for _, loc := range locs {
		if s := strings.TrimSpace(text[loc[0]:loc[1]]); s != "" {
			sentences = append(sentences, s)
		}
		end = loc[1]
	}
	if rest := strings.TrimSpace(text[end:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// SplitText splits text into chunks of at most maxChunkSize characters without
// breaking sentences. When a chunk fills up, the next one starts with the
// trailing overlap characters of the previous chunk so context carries across
// boundaries. A single sentence longer than maxChunkSize becomes its own
// oversized chunk. Deterministic for identical input.
func SplitText(text string, maxChunkSize, overlap int) []*Chunk {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []*Chunk
	cur := ""
	curOffset := 0
	pos := 0 // position of the next sentence in the normalized sentence stream

	emit := func() {
		chunks = append(chunks, &Chunk{
			Text:   cur,
			Index:  len(chunks),
			Offset: curOffset,
			Length: len(cur),
		})
	}

	for _, s := range sentences {
		cand := s
		if cur != "" {
			cand = cur + " " + s
		}

		if len(cand) > maxChunkSize && cur != "" {
			emit()
			seed := tailChars(cur, overlap)
			cur = seed
			curOffset = pos
			if cur != "" {
				cand = cur + " " + s
			} else {
				cand = s
			}
		}

		if cur == "" {
			curOffset = pos
		}
		cur = cand
		pos += len(s) + 1
	}

	if strings.TrimSpace(cur) != "" {
		emit()
	}
	return chunks
}

// tailChars returns the last n bytes of s aligned to a rune boundary.
func tailChars(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	tail := s[len(s)-n:]
	for len(tail) > 0 && !utf8.RuneStart(tail[0]) {
		tail = tail[1:]
	}
	return tail
}
