package chunk

import (
	"context"
	"regexp"
	"strings"
)

var (
	paragraphBoundary = regexp.MustCompile(`\n\s*\n+`)
	sentenceBoundary  = regexp.MustCompile(`[.!?]+\s+`)
)

// Options configures ThreeTierChunker behaviour.
type Options struct {
	ChunkSize    int // target tokens per chunk
	ChunkOverlap int // tokens of trailing context carried into the next chunk
	Counter      TokenCounter
}

// ThreeTierChunker implements the paragraph → sentence → word-window
// chunking algorithm: each tier is tried only when the previous one
// leaves a segment too large for the target chunk size.
type ThreeTierChunker struct {
	opts Options
}

// New creates a ThreeTierChunker. A nil Counter defaults to a whitespace
// word-count approximation.
func New(opts Options) *ThreeTierChunker {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap <= 0 {
		opts.ChunkOverlap = DefaultChunkOverlap
	}
	if opts.ChunkOverlap > opts.ChunkSize/2 {
		opts.ChunkOverlap = opts.ChunkSize / 2
	}
	if opts.Counter == nil {
		opts.Counter = wordCountTokenizer
	}
	return &ThreeTierChunker{opts: opts}
}

func wordCountTokenizer(text string) int {
	return len(strings.Fields(text))
}

// Chunk implements Chunker.
func (c *ThreeTierChunker) Chunk(_ context.Context, doc Document) ([]Chunk, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return nil, nil
	}

	segments := c.segment(doc.Content)
	return c.assemble(segments), nil
}

// segment reduces the document to a flat list of leaf segments, each at
// or under the chunk size whenever the tier chain can manage it.
func (c *ThreeTierChunker) segment(content string) []string {
	var segments []string

	for _, paragraph := range splitNonEmpty(paragraphBoundary, content) {
		if c.opts.Counter(paragraph) <= c.opts.ChunkSize {
			segments = append(segments, paragraph)
			continue
		}

		for _, sentence := range splitSentences(paragraph) {
			if c.opts.Counter(sentence) <= c.opts.ChunkSize {
				segments = append(segments, sentence)
				continue
			}
			segments = append(segments, c.splitWordWindows(sentence)...)
		}
	}

	return segments
}

// assemble greedily packs segments into chunks, carrying an overlap tail
// of the previous chunk's trailing segments into the next one.
func (c *ThreeTierChunker) assemble(segments []string) []Chunk {
	var chunks []Chunk
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		text := strings.Join(current, " ")
		chunks = append(chunks, Chunk{
			Text:       text,
			ChunkIndex: len(chunks),
			TokenCount: c.opts.Counter(text),
		})
	}

	for _, seg := range segments {
		segTokens := c.opts.Counter(seg)

		if len(current) > 0 && currentTokens+segTokens > c.opts.ChunkSize {
			flush()
			current = overlapTail(current, c.opts.ChunkOverlap, c.opts.Counter)
			currentTokens = c.opts.Counter(strings.Join(current, " "))
			for len(current) > 0 && currentTokens+segTokens > c.opts.ChunkSize {
				current = current[1:]
				currentTokens = c.opts.Counter(strings.Join(current, " "))
			}
		}

		current = append(current, seg)
		currentTokens += segTokens
	}
	flush()

	return chunks
}

// overlapTail returns the trailing segments of a just-emitted chunk
// whose cumulative token count is within the overlap budget, to seed
// the next chunk with context continuity.
func overlapTail(segments []string, overlap int, counter TokenCounter) []string {
	if overlap <= 0 {
		return nil
	}
	var tail []string
	tokens := 0
	for i := len(segments) - 1; i >= 0; i-- {
		t := counter(segments[i])
		if tokens+t > overlap {
			break
		}
		tail = append([]string{segments[i]}, tail...)
		tokens += t
	}
	return tail
}

func (c *ThreeTierChunker) splitWordWindows(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var windows []string
	var cur []string
	for _, w := range words {
		trial := append(append([]string{}, cur...), w)
		if len(cur) > 0 && c.opts.Counter(strings.Join(trial, " ")) > c.opts.ChunkSize {
			windows = append(windows, strings.Join(cur, " "))
			cur = []string{w}
			continue
		}
		cur = trial
	}
	if len(cur) > 0 {
		windows = append(windows, strings.Join(cur, " "))
	}
	return windows
}

func splitNonEmpty(re *regexp.Regexp, text string) []string {
	var out []string
	for _, part := range re.Split(text, -1) {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func splitSentences(text string) []string {
	matches := sentenceBoundary.FindAllStringIndex(text, -1)
	if matches == nil {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}

	var sentences []string
	start := 0
	for _, m := range matches {
		sentence := strings.TrimSpace(text[start:m[1]])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = m[1]
	}
	if start < len(text) {
		rest := strings.TrimSpace(text[start:])
		if rest != "" {
			sentences = append(sentences, rest)
		}
	}
	return sentences
}
