package kb

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"

	"github.com/pkoukk/tiktoken-go"
)

// ChunkerConfig holds chunking configuration
type ChunkerConfig struct {
	ChunkSize    int // Tokens per chunk (default: 512)
	ChunkOverlap int // Token overlap between chunks (default: 50)
}

// Chunk is one slice of an article with its metadata.
type Chunk struct {
	Text     string
	Index    int
	Metadata map[string]string
}

// Chunker splits article text into token-bounded chunks on line boundaries.
type Chunker struct {
	config   ChunkerConfig
	encoding *tiktoken.Tiktoken
}

// NewChunker creates a chunker using the cl100k_base encoding. When the
// encoding cannot be loaded (offline hosts) token counts are estimated.
func NewChunker(config ChunkerConfig) *Chunker {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 512
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = 50
		if config.ChunkOverlap >= config.ChunkSize {
			config.ChunkOverlap = config.ChunkSize / 10
		}
	}

	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logging.NewComponentLogger("KBChunker").Warn("tiktoken encoding unavailable, estimating tokens: %v", err)
		encoding = nil
	}
	return &Chunker{config: config, encoding: encoding}
}

// CountTokens returns the token count for text.
func (c *Chunker) CountTokens(text string) int {
	if c.encoding != nil {
		return len(c.encoding.Encode(text, nil, nil))
	}
	// Roughly four characters per token for English prose.
	return (utf8.RuneCountInString(text) + 3) / 4
}

// Split chunks text. Every chunk carries a copy of metadata plus its
// "chunk_index".
func (c *Chunker) Split(text string, metadata map[string]string) []Chunk {
	lines := strings.Split(strings.TrimSpace(text), "\n")

	var chunks []Chunk
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		body := strings.TrimSpace(strings.Join(current, "\n"))
		if body != "" {
			chunks = append(chunks, c.newChunk(body, len(chunks), metadata))
		}
	}

	for _, line := range lines {
		lineTokens := c.CountTokens(line + "\n")

		if lineTokens > c.config.ChunkSize {
			flush()
			current, currentTokens = nil, 0
			for _, piece := range c.splitLongLine(line) {
				chunks = append(chunks, c.newChunk(piece, len(chunks), metadata))
			}
			continue
		}

		if currentTokens+lineTokens > c.config.ChunkSize && len(current) > 0 {
			flush()
			current, currentTokens = c.overlap(current)
		}
		current = append(current, line)
		currentTokens += lineTokens
	}
	flush()
	return chunks
}

// overlap keeps the trailing lines of the previous chunk that fit in the
// configured overlap budget.
func (c *Chunker) overlap(lines []string) ([]string, int) {
	if c.config.ChunkOverlap == 0 {
		return nil, 0
	}
	tokens := 0
	start := len(lines)
	for i := len(lines) - 1; i >= 0; i-- {
		lineTokens := c.CountTokens(lines[i] + "\n")
		if tokens+lineTokens > c.config.ChunkOverlap {
			break
		}
		tokens += lineTokens
		start = i
	}
	return append([]string(nil), lines[start:]...), tokens
}

func (c *Chunker) splitLongLine(line string) []string {
	runes := []rune(line)
	charsPerChunk := c.config.ChunkSize * 4
	var pieces []string
	for start := 0; start < len(runes); start += charsPerChunk {
		end := start + charsPerChunk
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}

func (c *Chunker) newChunk(text string, index int, metadata map[string]string) Chunk {
	meta := make(map[string]string, len(metadata)+1)
	for key, value := range metadata {
		meta[key] = value
	}
	meta["chunk_index"] = strconv.Itoa(index)
	return Chunk{Text: text, Index: index, Metadata: meta}
}
